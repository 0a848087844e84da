package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	gemini "google.golang.org/genai"

	"listingfix/internal/domain"
	"listingfix/internal/transport"
)

var safetyFinishReasons = map[string]bool{
	"SAFETY":                   true,
	"PROHIBITED_CONTENT":       true,
	"BLOCKLIST":                true,
	"SPII":                     true,
	"IMAGE_SAFETY":             true,
	"IMAGE_PROHIBITED_CONTENT": true,
}

// classifyError maps SDK failures onto the transport taxonomy.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr gemini.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr, err)
	}
	var apiErrPtr *gemini.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return classifyAPIError(*apiErrPtr, err)
	}
	return transport.NewNetworkError(err)
}

func classifyAPIError(apiErr gemini.APIError, cause error) *transport.ClassifiedError {
	body := fmt.Sprintf(`{"error":{"code":%d,"message":%q,"status":%q}}`, apiErr.Code, apiErr.Message, apiErr.Status)
	ce := transport.Classify(apiErr.Code, []byte(body))
	ce.Cause = cause
	return ce
}

// blockedError reports a prompt or candidate stopped by safety filters.
func blockedError(resp *gemini.GenerateContentResponse) *transport.ClassifiedError {
	if resp == nil {
		return nil
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		msg := strings.TrimSpace(fb.BlockReasonMessage)
		if msg == "" {
			msg = "prompt blocked: " + string(fb.BlockReason)
		}
		return transport.NewClassifiedError(transport.ErrorTypeSafetyBlock, 0, msg, nil)
	}
	for _, cand := range resp.Candidates {
		if cand != nil && safetyFinishReasons[string(cand.FinishReason)] {
			msg := strings.TrimSpace(cand.FinishMessage)
			if msg == "" {
				msg = "candidate blocked: " + string(cand.FinishReason)
			}
			return transport.NewClassifiedError(transport.ErrorTypeSafetyBlock, 0, msg, nil)
		}
	}
	return nil
}

// extractImage returns the first inline image of the response.
func extractImage(resp *gemini.GenerateContentResponse) (domain.Image, error) {
	if blocked := blockedError(resp); blocked != nil {
		return domain.Image{}, blocked
	}
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand == nil || cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return domain.Image{Data: part.InlineData.Data, MIMEType: mime}, nil
			}
		}
	}
	msg := "model returned no image"
	if text := strings.TrimSpace(responseText(resp)); text != "" {
		msg += ": " + truncate(text, 200)
	}
	return domain.Image{}, transport.NewClassifiedError(transport.ErrorTypeServer, 0, msg, nil)
}

func responseText(resp *gemini.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought || part.Text == "" {
				continue
			}
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
