package oracle

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"listingfix/internal/domain"
	"listingfix/internal/imagegen"
	"listingfix/internal/infra"
	"listingfix/internal/transport"
	"listingfix/internal/verify"
)

// ErrMissingBaseURL indicates that the client was configured without an endpoint.
var ErrMissingBaseURL = errors.New("oracle: base url is required")

// Options configures the oracle wire client.
type Options struct {
	BaseURL      string
	APIKey       string
	Instructions imagegen.InstructionSet
	Transport    *transport.Client
	Logger       *infra.Logger
}

// Client speaks the JSON generate/verify contract of the hosted oracles. It
// implements both imagegen.Generator and verify.Verifier.
type Client struct {
	baseURL      string
	apiKey       string
	instructions imagegen.InstructionSet
	transport    *transport.Client
	logger       *infra.Logger
}

type wireImage struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

type generateRequest struct {
	OriginalImage     wireImage  `json:"originalImage"`
	Role              string     `json:"role"`
	ReferenceImage    *wireImage `json:"referenceImage,omitempty"`
	PriorCandidate    *wireImage `json:"priorCandidate,omitempty"`
	Critique          string     `json:"critique,omitempty"`
	CustomInstruction string     `json:"customInstruction,omitempty"`
	SubjectMetadata   string     `json:"subjectMetadata,omitempty"`
	Instruction       string     `json:"instruction"`
}

type generateResponse struct {
	CandidateImage *wireImage `json:"candidateImage"`
}

type verifyRequest struct {
	OriginalImage  wireImage  `json:"originalImage"`
	CandidateImage wireImage  `json:"candidateImage"`
	Role           string     `json:"role"`
	ReferenceImage *wireImage `json:"referenceImage,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
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
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(opts.APIKey),
		instructions: instructions,
		transport:    tr,
		logger:       logger,
	}, nil
}

// Generate requests one corrected candidate.
func (c *Client) Generate(ctx context.Context, req imagegen.Request) (domain.Image, error) {
	payload := generateRequest{
		OriginalImage:     encode(req.Original),
		Role:              string(req.Role),
		Critique:          strings.TrimSpace(req.Critique),
		CustomInstruction: strings.TrimSpace(req.CustomInstruction),
		SubjectMetadata:   strings.TrimSpace(req.Subject),
		Instruction:       imagegen.BuildPrompt(req, c.instructions),
	}
	if req.HasReference() {
		ref := encode(req.Reference)
		payload.ReferenceImage = &ref
	}
	if !req.Prior.IsZero() {
		prior := encode(req.Prior)
		payload.PriorCandidate = &prior
	}

	raw, err := c.post(ctx, "/generate", payload)
	if err != nil {
		return domain.Image{}, err
	}
	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.Image{}, transport.NewClassifiedError(transport.ErrorTypeBadRequest, http.StatusOK,
			fmt.Sprintf("oracle: decode generate response: %v", err), err)
	}
	if decoded.CandidateImage == nil {
		return domain.Image{}, transport.NewClassifiedError(transport.ErrorTypeBadRequest, http.StatusOK,
			"oracle: generate response has no candidateImage", nil)
	}
	img, err := decode(*decoded.CandidateImage)
	if err != nil {
		return domain.Image{}, transport.NewClassifiedError(transport.ErrorTypeBadRequest, http.StatusOK,
			fmt.Sprintf("oracle: candidateImage: %v", err), err)
	}
	c.logger.Debug().
		Str("role", string(req.Role)).
		Int("bytes", len(img.Data)).
		Bool("has_critique", payload.Critique != "").
		Msg("oracle: generated candidate")
	return img, nil
}

// Verify scores a candidate. The response is schema-validated and fails closed.
func (c *Client) Verify(ctx context.Context, req verify.Request) (*verify.Result, error) {
	payload := verifyRequest{
		OriginalImage:  encode(req.Original),
		CandidateImage: encode(req.Candidate),
		Role:           string(req.Role),
	}
	if req.HasReference() {
		ref := encode(req.Reference)
		payload.ReferenceImage = &ref
	}
	raw, err := c.post(ctx, "/verify", payload)
	if err != nil {
		return nil, err
	}
	return verify.Parse(raw)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, transport.NewClassifiedError(transport.ErrorTypeBadRequest, 0, fmt.Sprintf("oracle: encode request: %v", err), err)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.transport.Send(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + path,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func encode(img domain.Image) wireImage {
	mime := strings.TrimSpace(img.MIMEType)
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	return wireImage{Data: base64.StdEncoding.EncodeToString(img.Data), MIMEType: mime}
}

func decode(w wireImage) (domain.Image, error) {
	data := strings.TrimSpace(w.Data)
	mime := strings.TrimSpace(w.MIMEType)
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return domain.Image{}, errors.New("malformed data url")
		}
		if mime == "" {
			mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		data = payload
	}
	if data == "" {
		return domain.Image{}, errors.New("empty image data")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return domain.Image{}, fmt.Errorf("decode base64: %w", err)
	}
	if mime == "" {
		mime = http.DetectContentType(raw)
	}
	return domain.Image{Data: raw, MIMEType: mime}, nil
}

var (
	_ imagegen.Generator = (*Client)(nil)
	_ verify.Verifier    = (*Client)(nil)
)
