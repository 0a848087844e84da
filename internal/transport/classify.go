package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// errorEnvelope covers both the oracle wire shape {error, errorType} and the
// Google API shape {error: {code, message, status}}.
type errorEnvelope struct {
	Error     json.RawMessage `json:"error"`
	ErrorType string          `json:"errorType"`
	Message   string          `json:"message"`
}

type nestedError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

var (
	safetyMarkers       = []string{"safety", "blocked", "prohibited content", "policy violation", "inappropriate content", "datainspectionfailed"}
	invalidImageMarkers = []string{"invalid image", "invalid_image", "unsupported image", "image format", "could not decode image", "corrupt"}
)

// Classify maps a non-2xx status and its body onto a ClassifiedError.
func Classify(status int, body []byte) *ClassifiedError {
	declared, message := parseErrorBody(body)
	if message == "" {
		message = fmt.Sprintf("oracle status %d", status)
		if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 {
			message = fmt.Sprintf("oracle status %d: %s", status, text)
		}
	}

	t := classifyStatus(status)
	if t == ErrorTypeBadRequest {
		t = refineBadRequest(declared, message)
	}
	return &ClassifiedError{Type: t, StatusCode: status, Message: message}
}

// ClassifyEnvelope inspects a 2xx body for the wire error envelope. It returns
// nil when the body does not declare an error.
func ClassifyEnvelope(status int, body []byte) *ClassifiedError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	hasError := len(env.Error) > 0 && string(env.Error) != "null" && string(env.Error) != `""`
	if !hasError && strings.TrimSpace(env.ErrorType) == "" {
		return nil
	}
	declared, message := parseErrorBody(body)
	t := ParseErrorType(declared)
	if message == "" {
		message = string(t)
	}
	return &ClassifiedError{Type: t, StatusCode: status, Message: message}
}

func classifyStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusBadRequest:
		return ErrorTypeBadRequest
	case status >= http.StatusInternalServerError:
		return ErrorTypeServer
	default:
		return ErrorTypeUnknown
	}
}

func refineBadRequest(declared, message string) ErrorType {
	switch ParseErrorType(declared) {
	case ErrorTypeSafetyBlock:
		return ErrorTypeSafetyBlock
	case ErrorTypeInvalidImage:
		return ErrorTypeInvalidImage
	}
	lower := strings.ToLower(declared + " " + message)
	for _, marker := range safetyMarkers {
		if strings.Contains(lower, marker) {
			return ErrorTypeSafetyBlock
		}
	}
	for _, marker := range invalidImageMarkers {
		if strings.Contains(lower, marker) {
			return ErrorTypeInvalidImage
		}
	}
	return ErrorTypeBadRequest
}

func parseErrorBody(body []byte) (declared string, message string) {
	if len(body) == 0 {
		return "", ""
	}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", ""
	}
	declared = strings.TrimSpace(env.ErrorType)
	message = strings.TrimSpace(env.Message)
	if len(env.Error) == 0 || string(env.Error) == "null" {
		return declared, message
	}
	var text string
	if err := json.Unmarshal(env.Error, &text); err == nil {
		if t := strings.TrimSpace(text); t != "" {
			message = t
		}
		return declared, message
	}
	var nested nestedError
	if err := json.Unmarshal(env.Error, &nested); err == nil {
		if t := strings.TrimSpace(nested.Message); t != "" {
			message = t
		}
		if declared == "" {
			declared = strings.ToLower(strings.TrimSpace(nested.Status))
		}
	}
	return declared, message
}
