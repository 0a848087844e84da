package qwen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"listingfix/internal/domain"
	"listingfix/internal/imagegen"
	"listingfix/internal/infra"
	"listingfix/internal/transport"
)

const (
	DefaultBaseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	DefaultModel   = "qwen-image-edit-plus"

	generationPath = "/services/aigc/multimodal-generation/generation"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("qwen: api key is required")

// Options configures the DashScope Qwen image-edit client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	NegativePrompt string
	Instructions   imagegen.InstructionSet
	Transport      *transport.Client
	Logger         *infra.Logger
}

// Client is a Generator backed by the DashScope image-edit model. Every HTTP
// call, including the result download, goes through the shared transport.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	negative     string
	instructions imagegen.InstructionSet
	transport    *transport.Client
	logger       *infra.Logger
}

type editRequest struct {
	Model      string     `json:"model"`
	Input      editInput  `json:"input"`
	Parameters editParams `json:"parameters"`
}

type editInput struct {
	Messages []editMessage `json:"messages"`
}

type editMessage struct {
	Role    string        `json:"role"`
	Content []editContent `json:"content"`
}

type editContent struct {
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type editParams struct {
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Watermark      bool   `json:"watermark"`
	N              int    `json:"n,omitempty"`
}

type editResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	tr := opts.Transport
	if tr == nil {
		tr = transport.NewClient(transport.Options{Logger: logger})
	}
	instructions := opts.Instructions
	if instructions == (imagegen.InstructionSet{}) {
		instructions = imagegen.DefaultInstructionSet()
	}
	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		model:        model,
		negative:     strings.TrimSpace(opts.NegativePrompt),
		instructions: instructions,
		transport:    tr,
		logger:       logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Generate edits the original image and downloads the single result.
func (c *Client) Generate(ctx context.Context, req imagegen.Request) (domain.Image, error) {
	content := make([]editContent, 0, 4)
	for _, img := range req.Attachments() {
		content = append(content, editContent{Image: dataURL(img)})
	}
	content = append(content, editContent{Text: imagegen.BuildPrompt(req, c.instructions)})

	payload := editRequest{
		Model: c.model,
		Input: editInput{Messages: []editMessage{{Role: "user", Content: content}}},
		Parameters: editParams{
			NegativePrompt: c.negative,
			Watermark:      false,
			N:              1,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Image{}, transport.NewClassifiedError(transport.ErrorTypeBadRequest, 0, fmt.Sprintf("qwen: encode request: %v", err), err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.transport.Send(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + generationPath,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return domain.Image{}, err
	}

	var decoded editResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return domain.Image{}, transport.NewClassifiedError(transport.ErrorTypeBadRequest, resp.StatusCode, fmt.Sprintf("qwen: decode response: %v", err), err)
	}
	if decoded.Code != "" {
		return domain.Image{}, codeError(decoded.Code, decoded.Message)
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return domain.Image{}, transport.NewClassifiedError(transport.ErrorTypeServer, resp.StatusCode, "qwen: empty image url", nil)
	}
	img, err := c.download(ctx, imageURL)
	if err != nil {
		return domain.Image{}, err
	}
	c.logger.Debug().
		Str("model", c.model).
		Str("request_id", decoded.RequestID).
		Int("bytes", len(img.Data)).
		Msg("qwen: edited image")
	return img, nil
}

func (c *Client) download(ctx context.Context, imageURL string) (domain.Image, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return domain.Image{}, transport.NewClassifiedError(transport.ErrorTypeBadRequest, 0, fmt.Sprintf("qwen: invalid image url: %s", imageURL), err)
	}
	resp, err := c.transport.Send(ctx, &transport.Request{Method: http.MethodGet, URL: parsed.String()})
	if err != nil {
		return domain.Image{}, err
	}
	format := resp.Header.Get("Content-Type")
	if format == "" || !strings.HasPrefix(format, "image/") {
		format = http.DetectContentType(resp.Body)
	}
	return domain.Image{Data: resp.Body, MIMEType: format}, nil
}

// codeError classifies a DashScope error code carried in a 2xx body.
func codeError(code, message string) *transport.ClassifiedError {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = code
	}
	switch {
	case code == "DataInspectionFailed" || strings.Contains(code, "Safety"):
		return transport.NewClassifiedError(transport.ErrorTypeSafetyBlock, 0, msg, nil)
	case code == "InvalidApiKey" || strings.HasPrefix(code, "AccessDenied"):
		return transport.NewClassifiedError(transport.ErrorTypeAuth, 0, msg, nil)
	case strings.HasPrefix(code, "Throttling"):
		return transport.NewClassifiedError(transport.ErrorTypeRateLimit, 0, msg, nil)
	case strings.HasPrefix(code, "InvalidParameter"):
		if strings.Contains(strings.ToLower(msg), "image") {
			return transport.NewClassifiedError(transport.ErrorTypeInvalidImage, 0, msg, nil)
		}
		return transport.NewClassifiedError(transport.ErrorTypeBadRequest, 0, msg, nil)
	default:
		return transport.NewClassifiedError(transport.ErrorTypeUnknown, 0, msg, nil)
	}
}

func dataURL(img domain.Image) string {
	mime := strings.TrimSpace(img.MIMEType)
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func firstImageURL(resp editResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if u := strings.TrimSpace(content.Image); u != "" {
				return u
			}
		}
	}
	return ""
}

var _ imagegen.Generator = (*Client)(nil)
