package genai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	gemini "google.golang.org/genai"

	"listingfix/internal/domain"
	"listingfix/internal/imagegen"
	"listingfix/internal/infra"
	"listingfix/internal/transport"
	"listingfix/internal/verify"
)

const (
	DefaultImageModel  = "gemini-2.5-flash-image"
	DefaultVerifyModel = "gemini-2.5-flash"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("genai: api key is required")

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey       string
	BaseURL      string
	ImageModel   string
	VerifyModel  string
	HTTPClient   *http.Client
	Instructions imagegen.InstructionSet
	Policy       transport.Policy
	Sleep        transport.SleepFunc
	Logger       *infra.Logger
}

// Client implements both ports on top of the Gemini SDK. Each logical call
// goes through transport.Retry so backoff and classification match the
// HTTP oracle client.
type Client struct {
	sdk          *gemini.Client
	imageModel   string
	verifyModel  string
	instructions imagegen.InstructionSet
	policy       transport.Policy
	sleep        transport.SleepFunc
	logger       *infra.Logger
}

// NewClient constructs a Gemini client with sane defaults.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	cfg := &gemini.ClientConfig{
		APIKey:     apiKey,
		Backend:    gemini.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = gemini.HTTPOptions{BaseURL: base}
	}
	sdk, err := gemini.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	instructions := opts.Instructions
	if instructions == (imagegen.InstructionSet{}) {
		instructions = imagegen.DefaultInstructionSet()
	}
	return &Client{
		sdk:          sdk,
		imageModel:   firstNonEmpty(opts.ImageModel, DefaultImageModel),
		verifyModel:  firstNonEmpty(opts.VerifyModel, DefaultVerifyModel),
		instructions: instructions,
		policy:       opts.Policy,
		sleep:        opts.Sleep,
		logger:       logger,
	}, nil
}

// Models returns the configured image and verification model identifiers.
func (c *Client) Models() (string, string) {
	return c.imageModel, c.verifyModel
}

// Generate asks the image model for one edited candidate.
func (c *Client) Generate(ctx context.Context, req imagegen.Request) (domain.Image, error) {
	parts := []*gemini.Part{gemini.NewPartFromText(imagegen.BuildPrompt(req, c.instructions))}
	for _, img := range req.Attachments() {
		parts = append(parts, gemini.NewPartFromBytes(img.Data, mimeOf(img)))
	}
	contents := []*gemini.Content{gemini.NewContentFromParts(parts, gemini.RoleUser)}
	config := &gemini.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}

	logger := c.logger.With().Str("model", c.imageModel).Str("role", string(req.Role)).Logger()
	var out domain.Image
	err := transport.Retry(ctx, c.policy, c.sleep, &logger, func(ctx context.Context, attempt int) error {
		resp, err := c.sdk.Models.GenerateContent(ctx, c.imageModel, contents, config)
		if err != nil {
			return classifyError(err)
		}
		img, err := extractImage(resp)
		if err != nil {
			return err
		}
		out = img
		return nil
	})
	if err != nil {
		return domain.Image{}, err
	}
	logger.Debug().Int("bytes", len(out.Data)).Msg("genai: generated candidate")
	return out, nil
}

// Verify asks the text model to score a candidate against the role rubric.
func (c *Client) Verify(ctx context.Context, req verify.Request) (*verify.Result, error) {
	parts := []*gemini.Part{
		gemini.NewPartFromText(verify.RubricPrompt(req.Role, req.HasReference())),
		gemini.NewPartFromBytes(req.Original.Data, mimeOf(req.Original)),
		gemini.NewPartFromBytes(req.Candidate.Data, mimeOf(req.Candidate)),
	}
	if req.HasReference() {
		parts = append(parts, gemini.NewPartFromBytes(req.Reference.Data, mimeOf(req.Reference)))
	}
	contents := []*gemini.Content{gemini.NewContentFromParts(parts, gemini.RoleUser)}
	config := &gemini.GenerateContentConfig{ResponseMIMEType: "application/json"}

	logger := c.logger.With().Str("model", c.verifyModel).Str("role", string(req.Role)).Logger()
	var text string
	err := transport.Retry(ctx, c.policy, c.sleep, &logger, func(ctx context.Context, attempt int) error {
		resp, err := c.sdk.Models.GenerateContent(ctx, c.verifyModel, contents, config)
		if err != nil {
			return classifyError(err)
		}
		if blocked := blockedError(resp); blocked != nil {
			return blocked
		}
		text = responseText(resp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return verify.Parse([]byte(stripFences(text)))
}

func mimeOf(img domain.Image) string {
	if mime := strings.TrimSpace(img.MIMEType); mime != "" {
		return mime
	}
	return http.DetectContentType(img.Data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var (
	_ imagegen.Generator = (*Client)(nil)
	_ verify.Verifier    = (*Client)(nil)
)
