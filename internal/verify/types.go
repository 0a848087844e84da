package verify

import (
	"context"

	"listingfix/internal/domain"
)

// ComponentScores are the four weighted sub-scores, each 0-100.
type ComponentScores struct {
	Identity    float64 `json:"identity"`
	Compliance  float64 `json:"compliance"`
	Quality     float64 `json:"quality"`
	NoNewIssues float64 `json:"noNewIssues"`
}

// Result is a validated verification outcome for one candidate.
type Result struct {
	Score           float64         `json:"score"`
	IsSatisfactory  bool            `json:"isSatisfactory"`
	SubjectMatch    bool            `json:"subjectMatch"`
	ComponentScores ComponentScores `json:"componentScores"`
	Critique        string          `json:"critique"`
	Improvements    []string        `json:"improvements"`
	PassedChecks    []string        `json:"passedChecks"`
	FailedChecks    []string        `json:"failedChecks"`
}

// Clone returns a deep copy so callers never share slices with a cache.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Improvements = append([]string(nil), r.Improvements...)
	out.PassedChecks = append([]string(nil), r.PassedChecks...)
	out.FailedChecks = append([]string(nil), r.FailedChecks...)
	return &out
}

// Request is one verification call. Reference is only sent for secondary assets.
type Request struct {
	Original  domain.Image
	Candidate domain.Image
	Reference domain.Image
	Role      domain.Role
}

// HasReference reports whether a reference image accompanies the call.
func (r Request) HasReference() bool {
	return r.Role == domain.RoleSecondary && !r.Reference.IsZero()
}

// Verifier scores a candidate against its original.
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Result, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, req Request) (*Result, error)

func (f VerifierFunc) Verify(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
