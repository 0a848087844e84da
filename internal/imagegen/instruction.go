package imagegen

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"listingfix/internal/domain"
)

const defaultPrimaryInstruction = `Edit this product photo so it complies with the marketplace main-image policy.
Replace the background with a uniform, neutral pure white (#FFFFFF) background with no gradients, props, or shadows that read as scenery.
Remove every prohibited badge, sticker, watermark, logo overlay, price tag, promotional text, and border that is not printed on the product itself.
Center the product and scale it so it fills roughly 85% of the frame without cropping any part of it.
Do not change the product's shape, color, texture, labels, or branding.`

const defaultSecondaryInstruction = `Edit this supporting product photo so it complies with the marketplace gallery-image policy.
Keep the original scene, background, lighting, and composition exactly as they are; do not replace or restyle the background.
Remove only disallowed overlays: promotional badges, watermarks, price tags, and marketing text added on top of the photo.
Preserve existing callouts, annotations, dimension lines, and infographic labels that describe the product.
Do not change the product's shape, color, texture, labels, or branding.`

// InstructionSet holds the built-in instruction body for each role.
type InstructionSet struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

// DefaultInstructionSet returns the bundled role instructions.
func DefaultInstructionSet() InstructionSet {
	return InstructionSet{Primary: defaultPrimaryInstruction, Secondary: defaultSecondaryInstruction}
}

// For returns the instruction body for role.
func (s InstructionSet) For(role domain.Role) string {
	if role == domain.RoleSecondary {
		if body := strings.TrimSpace(s.Secondary); body != "" {
			return body
		}
		return defaultSecondaryInstruction
	}
	if body := strings.TrimSpace(s.Primary); body != "" {
		return body
	}
	return defaultPrimaryInstruction
}

// LoadInstructionSet reads a YAML file with `primary` and `secondary` keys.
// Missing keys keep the bundled defaults. An empty path returns the defaults.
func LoadInstructionSet(path string) (InstructionSet, error) {
	set := DefaultInstructionSet()
	path = strings.TrimSpace(path)
	if path == "" {
		return set, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("read instructions %s: %w", path, err)
	}
	var override InstructionSet
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return set, fmt.Errorf("parse instructions %s: %w", path, err)
	}
	if strings.TrimSpace(override.Primary) == "" && strings.TrimSpace(override.Secondary) == "" {
		return set, errors.New("instructions file defines neither primary nor secondary")
	}
	if body := strings.TrimSpace(override.Primary); body != "" {
		set.Primary = body
	}
	if body := strings.TrimSpace(override.Secondary); body != "" {
		set.Secondary = body
	}
	return set, nil
}

// BuildPrompt assembles the text sent with a generation call. Exactly one
// instruction body is used: the caller's custom instruction, or the role body
// from set. Analysis, reference, prior-candidate and critique sections are
// appended whichever body is active.
func BuildPrompt(req Request, set InstructionSet) string {
	body := strings.TrimSpace(req.CustomInstruction)
	if body == "" {
		body = set.For(req.Role)
	}
	sections := []string{body}

	if subject := strings.TrimSpace(req.Subject); subject != "" {
		sections = append(sections, fmt.Sprintf("Product: %s.", subject))
	}
	if seed := analysisSection(req.Analysis); seed != "" {
		sections = append(sections, seed)
	}

	image := 2
	if req.HasReference() {
		sections = append(sections, fmt.Sprintf(
			"Image %d is the listing's main photo. The product in your output must match it exactly in shape, color and branding.", image))
		image++
	}
	if !req.Prior.IsZero() {
		sections = append(sections, fmt.Sprintf(
			"Image %d is your previous attempt. It was rejected; fix its mistakes instead of repeating them.", image))
	}
	if critique := strings.TrimSpace(req.Critique); critique != "" {
		sections = append(sections, "Reviewer feedback on the previous attempt:\n"+critique)
	}
	return strings.Join(sections, "\n\n")
}

func analysisSection(analysis *domain.ComplianceAnalysis) string {
	if analysis.Empty() {
		return ""
	}
	title := cases.Title(language.Und)
	var lines []string
	if len(analysis.Violations) > 0 {
		lines = append(lines, "Policy violations found in the original:")
		for _, v := range analysis.Violations {
			category := title.String(strings.ReplaceAll(strings.TrimSpace(v.Category), "_", " "))
			if category == "" {
				category = "General"
			}
			severity := title.String(string(v.Severity))
			if severity == "" {
				severity = "Info"
			}
			lines = append(lines, fmt.Sprintf("- [%s] %s: %s", severity, category, strings.TrimSpace(v.Message)))
		}
	}
	if seed := strings.TrimSpace(analysis.GenerationPrompt); seed != "" {
		lines = append(lines, "Analysis guidance: "+seed)
	}
	return strings.Join(lines, "\n")
}
