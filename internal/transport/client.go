package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Policy     Policy
	Sleep      SleepFunc
	Timeout    time.Duration
	Logger     *zerolog.Logger
}

// Client sends single oracle requests and classifies every outcome. It keeps
// no mutable state between calls.
type Client struct {
	httpClient *http.Client
	policy     Policy
	sleep      SleepFunc
	logger     *zerolog.Logger
}

// Request is one logical call. Body is replayed on every physical attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a successful (2xx) oracle response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// NewClient constructs a Client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Client{
		httpClient: httpClient,
		policy:     opts.Policy.normalized(),
		sleep:      sleep,
		logger:     logger,
	}
}

// Policy returns the retry policy applied by Send.
func (c *Client) Policy() Policy {
	return c.policy
}

// Sleeper returns the sleep function used between attempts.
func (c *Client) Sleeper() SleepFunc {
	return c.sleep
}

// Send performs the request with the client's retry policy.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, NewClassifiedError(ErrorTypeBadRequest, 0, "transport: nil request", nil)
	}
	logger := c.logger.With().Str("method", req.Method).Str("url", redactURL(req.URL)).Logger()

	var out *Response
	err := Retry(ctx, c.policy, c.sleep, &logger, func(ctx context.Context, attempt int) error {
		resp, err := c.sendOnce(ctx, req)
		if err != nil {
			return err
		}
		resp.Attempts = attempt
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("status", out.StatusCode).Int("attempts", out.Attempts).Msg("transport: ok")
	return out, nil
}

func (c *Client) sendOnce(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, NewClassifiedError(ErrorTypeBadRequest, 0, fmt.Sprintf("build request: %v", err), err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, Classify(resp.StatusCode, raw)
	}
	if ce := ClassifyEnvelope(resp.StatusCode, raw); ce != nil {
		return nil, ce
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
