package verify

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"listingfix/internal/domain"
)

func TestComposite(t *testing.T) {
	got := Composite(ComponentScores{Identity: 90, Compliance: 80, Quality: 70, NoNewIssues: 100})
	want := 0.4*90 + 0.3*80 + 0.2*70 + 0.1*100
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Composite() = %v, want %v", got, want)
	}
}

func TestAcceptedRequiresSubjectMatch(t *testing.T) {
	cases := []struct {
		name string
		res  *Result
		want bool
	}{
		{name: "nil", res: nil, want: false},
		{name: "satisfactory and matching", res: &Result{Score: 85, IsSatisfactory: true, SubjectMatch: true}, want: true},
		{name: "high score but subject mismatch", res: &Result{Score: 95, IsSatisfactory: true, SubjectMatch: false}, want: false},
		{name: "unsatisfactory", res: &Result{Score: 60, IsSatisfactory: false, SubjectMatch: true}, want: false},
		{name: "satisfactory flag below threshold", res: &Result{Score: 60, IsSatisfactory: true, SubjectMatch: true}, want: false},
		{name: "exactly at threshold", res: &Result{Score: AcceptThreshold, IsSatisfactory: true, SubjectMatch: true}, want: true},
		{name: "score above threshold but unsatisfactory", res: &Result{Score: 90, IsSatisfactory: false, SubjectMatch: true}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Accepted(tc.res); got != tc.want {
				t.Fatalf("Accepted() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLogDiscrepanciesKeepsDeclaredScore(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	res := &Result{
		Score:           92,
		IsSatisfactory:  true,
		SubjectMatch:    true,
		ComponentScores: ComponentScores{Identity: 50, Compliance: 50, Quality: 50, NoNewIssues: 50},
	}
	LogDiscrepancies(&logger, res)

	if res.Score != 92 {
		t.Fatalf("declared score must not be corrected, got %v", res.Score)
	}
	if !strings.Contains(buf.String(), "composite disagrees") {
		t.Fatalf("expected drift log, got %q", buf.String())
	}
	if math.Abs(Drift(res)-42) > 1e-9 {
		t.Fatalf("Drift() = %v, want 42", Drift(res))
	}
}

func TestLogDiscrepanciesQuietWhenConsistent(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	scores := ComponentScores{Identity: 90, Compliance: 85, Quality: 80, NoNewIssues: 90}
	LogDiscrepancies(&logger, &Result{Score: Composite(scores), IsSatisfactory: true, SubjectMatch: true, ComponentScores: scores})
	if buf.Len() != 0 {
		t.Fatalf("expected no log output, got %q", buf.String())
	}
}

func TestRubricPerRole(t *testing.T) {
	primary := RubricPrompt(domain.RolePrimary, false)
	if !strings.Contains(primary, "uniform, neutral") || !strings.Contains(primary, "85% of the frame") {
		t.Fatalf("primary rubric missing background or framing check: %s", primary)
	}
	if strings.Contains(primary, "Image 3") {
		t.Fatalf("primary rubric without reference must not mention image 3")
	}

	secondary := RubricPrompt(domain.RoleSecondary, true)
	if !strings.Contains(secondary, "scene and background are preserved") {
		t.Fatalf("secondary rubric missing preservation check: %s", secondary)
	}
	if !strings.Contains(secondary, "Image 3") {
		t.Fatalf("secondary rubric with reference must mention image 3")
	}

	checks := Rubric(domain.RolePrimary)
	checks[0] = "mutated"
	if Rubric(domain.RolePrimary)[0] == "mutated" {
		t.Fatalf("Rubric must return a copy")
	}
}
