package refine

import (
	"strings"

	"listingfix/internal/verify"
)

// MergeCritique renders a verification's critique and improvement list as the
// critique input for the next generation call. Only res is considered; older
// critiques are superseded, never appended.
func MergeCritique(res *verify.Result) string {
	if res == nil {
		return ""
	}
	var lines []string
	if critique := strings.TrimSpace(res.Critique); critique != "" {
		lines = append(lines, critique)
	}
	var bullets []string
	for _, item := range res.Improvements {
		if item = strings.TrimSpace(item); item != "" {
			bullets = append(bullets, "- "+item)
		}
	}
	if len(bullets) > 0 {
		lines = append(lines, "Improvements:")
		lines = append(lines, bullets...)
	}
	return strings.Join(lines, "\n")
}
