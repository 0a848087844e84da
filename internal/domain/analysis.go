package domain

// Severity grades a single policy violation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Violation is one category-tagged finding of a compliance analysis.
type Violation struct {
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ComplianceAnalysis is produced outside the refinement engine and only seeds
// the first generation prompt.
type ComplianceAnalysis struct {
	Score            float64     `json:"score"`
	Passed           bool        `json:"passed"`
	Violations       []Violation `json:"violations"`
	GenerationPrompt string      `json:"generationPrompt"`
}

// Empty reports whether the analysis carries nothing usable for a prompt.
func (c *ComplianceAnalysis) Empty() bool {
	return c == nil || (len(c.Violations) == 0 && c.GenerationPrompt == "")
}
