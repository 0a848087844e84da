package imagegen

import (
	"context"

	"listingfix/internal/domain"
)

// Request is one generation call. Reference is only honored for secondary
// assets; Analysis is only supplied on the first attempt of a run.
type Request struct {
	Original          domain.Image
	Role              domain.Role
	Reference         domain.Image
	Prior             domain.Image
	Critique          string
	CustomInstruction string
	Analysis          *domain.ComplianceAnalysis
	Subject           string
}

// HasReference reports whether a reference image accompanies the call.
func (r Request) HasReference() bool {
	return r.Role == domain.RoleSecondary && !r.Reference.IsZero()
}

// Attachments returns the images sent alongside the prompt, in prompt order:
// original, reference (secondary only), prior candidate.
func (r Request) Attachments() []domain.Image {
	images := []domain.Image{r.Original}
	if r.HasReference() {
		images = append(images, r.Reference)
	}
	if !r.Prior.IsZero() {
		images = append(images, r.Prior)
	}
	return images
}

// Generator produces exactly one candidate image per call or a classified error.
type Generator interface {
	Generate(ctx context.Context, req Request) (domain.Image, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (domain.Image, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (domain.Image, error) {
	return f(ctx, req)
}
