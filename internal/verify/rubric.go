package verify

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"listingfix/internal/domain"
)

const (
	WeightIdentity    = 0.40
	WeightCompliance  = 0.30
	WeightQuality     = 0.20
	WeightNoNewIssues = 0.10

	// AcceptThreshold is the minimum composite score for acceptance.
	AcceptThreshold = 80.0
	// DriftTolerance is how far a declared composite may sit from the
	// weighted sum before it is logged.
	DriftTolerance = 1.0
)

// Composite returns the weighted combination of the sub-scores.
func Composite(s ComponentScores) float64 {
	return WeightIdentity*s.Identity +
		WeightCompliance*s.Compliance +
		WeightQuality*s.Quality +
		WeightNoNewIssues*s.NoNewIssues
}

// Accepted is the orchestrator's accept rule: the composite reaches
// AcceptThreshold, the oracle judged the candidate satisfactory and the
// subject still matches. A subject mismatch always rejects.
func Accepted(r *Result) bool {
	return r != nil && r.IsSatisfactory && r.SubjectMatch && r.Score >= AcceptThreshold
}

// Drift is the declared composite minus the recomputed weighted sum.
func Drift(r *Result) float64 {
	if r == nil {
		return 0
	}
	return r.Score - Composite(r.ComponentScores)
}

// LogDiscrepancies records oracle output that disagrees with the scoring
// contract. The declared values are never corrected.
func LogDiscrepancies(logger *zerolog.Logger, r *Result) {
	if logger == nil || r == nil {
		return
	}
	if drift := Drift(r); math.Abs(drift) > DriftTolerance {
		logger.Warn().
			Float64("declared", r.Score).
			Float64("weighted", Composite(r.ComponentScores)).
			Float64("drift", drift).
			Msg("verify: composite disagrees with weighted sub-scores")
	}
	if r.IsSatisfactory != (r.Score >= AcceptThreshold) {
		logger.Warn().
			Float64("score", r.Score).
			Bool("is_satisfactory", r.IsSatisfactory).
			Msg("verify: satisfactory flag disagrees with threshold")
	}
}

var primaryRubric = []string{
	"Background is a uniform, neutral (white or near-white) color with no scenery, props, or gradients.",
	"The product fills roughly 85% of the frame, is centered, and is not cropped.",
	"No promotional badges, watermarks, price tags, stickers, or added marketing text remain.",
}

var secondaryRubric = []string{
	"The original scene and background are preserved; they were not replaced or restyled.",
	"Only disallowed overlays (promotional badges, watermarks, price tags, added marketing text) were removed.",
	"Existing callouts, annotations, dimension lines, and infographic labels are intact.",
}

// Rubric returns the role-specific compliance checks.
func Rubric(role domain.Role) []string {
	if role == domain.RoleSecondary {
		return append([]string(nil), secondaryRubric...)
	}
	return append([]string(nil), primaryRubric...)
}

// RubricPrompt renders the scoring instructions for model-backed verifiers.
func RubricPrompt(role domain.Role, hasReference bool) string {
	var b strings.Builder
	b.WriteString("You are a marketplace image compliance reviewer. Image 1 is the original product photo. Image 2 is an edited candidate.")
	if hasReference {
		b.WriteString(" Image 3 is the listing's main photo; the candidate must show the same product.")
	}
	b.WriteString("\n\nScore the candidate from 0 to 100 on four components:\n")
	fmt.Fprintf(&b, "- identity (weight %.2f): the product is the same item as the original, with unchanged shape, color, labels and branding.\n", WeightIdentity)
	fmt.Fprintf(&b, "- compliance (weight %.2f): the candidate satisfies every check below.\n", WeightCompliance)
	fmt.Fprintf(&b, "- quality (weight %.2f): the image is sharp, well lit and free of generation artefacts.\n", WeightQuality)
	fmt.Fprintf(&b, "- noNewIssues (weight %.2f): the edit introduced no new problems.\n", WeightNoNewIssues)
	b.WriteString("\nCompliance checks:\n")
	for _, check := range Rubric(role) {
		b.WriteString("- ")
		b.WriteString(check)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nscore is the weighted sum of the components. isSatisfactory is true only when score >= %.0f. ", AcceptThreshold)
	b.WriteString("subjectMatch is false whenever the candidate depicts a different product than the original.\n")
	b.WriteString("Respond with JSON only: {\"score\": number, \"isSatisfactory\": bool, \"subjectMatch\": bool, ")
	b.WriteString("\"componentScores\": {\"identity\": number, \"compliance\": number, \"quality\": number, \"noNewIssues\": number}, ")
	b.WriteString("\"critique\": string, \"improvements\": [string], \"passedChecks\": [string], \"failedChecks\": [string]}")
	return b.String()
}
