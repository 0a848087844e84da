package verify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"listingfix/internal/transport"
)

// payload mirrors the wire result. Pointer fields tell an absent key apart
// from a zero value.
type payload struct {
	Score           *float64          `json:"score" validate:"required,min=0,max=100"`
	IsSatisfactory  *bool             `json:"isSatisfactory" validate:"required"`
	SubjectMatch    *bool             `json:"subjectMatch" validate:"required"`
	ComponentScores *componentPayload `json:"componentScores" validate:"required"`
	Critique        *string           `json:"critique" validate:"required"`
	Improvements    []string          `json:"improvements"`
	PassedChecks    []string          `json:"passedChecks"`
	FailedChecks    []string          `json:"failedChecks"`
}

type componentPayload struct {
	Identity    *float64 `json:"identity" validate:"required,min=0,max=100"`
	Compliance  *float64 `json:"compliance" validate:"required,min=0,max=100"`
	Quality     *float64 `json:"quality" validate:"required,min=0,max=100"`
	NoNewIssues *float64 `json:"noNewIssues" validate:"required,min=0,max=100"`
}

var validate = validator.New()

// Parse decodes and validates a verification response body. Anything that
// does not match the schema fails closed as a terminal bad_request.
func Parse(raw []byte) (*Result, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, transport.NewClassifiedError(transport.ErrorTypeBadRequest, 0,
			fmt.Sprintf("verification response is not valid JSON: %v", err), err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, transport.NewClassifiedError(transport.ErrorTypeBadRequest, 0,
			"verification response failed schema validation: "+describe(err), err)
	}
	return &Result{
		Score:          *p.Score,
		IsSatisfactory: *p.IsSatisfactory,
		SubjectMatch:   *p.SubjectMatch,
		ComponentScores: ComponentScores{
			Identity:    *p.ComponentScores.Identity,
			Compliance:  *p.ComponentScores.Compliance,
			Quality:     *p.ComponentScores.Quality,
			NoNewIssues: *p.ComponentScores.NoNewIssues,
		},
		Critique:     strings.TrimSpace(*p.Critique),
		Improvements: trimAll(p.Improvements),
		PassedChecks: trimAll(p.PassedChecks),
		FailedChecks: trimAll(p.FailedChecks),
	}, nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s (%s)", strings.TrimPrefix(fe.Namespace(), "payload."), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
