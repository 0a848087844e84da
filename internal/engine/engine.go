// Package engine assembles the refinement engine from configuration: the
// generation and verification backends, the shared transport and the
// orchestrator that drives them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"listingfix/internal/imagegen"
	"listingfix/internal/infra"
	"listingfix/internal/infra/credentials"
	"listingfix/internal/providers/genai"
	"listingfix/internal/providers/oracle"
	"listingfix/internal/providers/qwen"
	"listingfix/internal/refine"
	"listingfix/internal/transport"
	"listingfix/internal/verify"
)

// ErrMissingCredentials is returned when a selected backend has no API key
// in the environment or the credential store.
var ErrMissingCredentials = errors.New("engine: backend credentials missing")

// Engine holds the wired ports and the orchestrator built on them.
type Engine struct {
	Generator    imagegen.Generator
	Verifier     verify.Verifier
	Orchestrator *refine.Orchestrator
	Instructions imagegen.InstructionSet

	cfg    *infra.Config
	logger infra.Logger
	sleep  transport.SleepFunc
}

// Options carries optional collaborators. Credentials may be nil when no
// database is configured. Sleep replaces every real pause when set.
type Options struct {
	Credentials *credentials.Store
	HTTPClient  *http.Client
	Sleep       transport.SleepFunc
	Observers   []refine.Observer
}

// Build wires the backends named in cfg.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine: config is required")
	}
	instructions, err := imagegen.LoadInstructionSet(cfg.InstructionsFile)
	if err != nil {
		return nil, err
	}

	policy := transport.Policy{MaxAttempts: cfg.TransportMaxAttempts, BaseDelay: cfg.TransportBaseDelay}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := cfg.TransportTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	transportLogger := logger.With().Str("component", "transport").Logger()
	tr := transport.NewClient(transport.Options{
		HTTPClient: httpClient,
		Policy:     policy,
		Sleep:      opts.Sleep,
		Logger:     &transportLogger,
	})

	b := &builder{
		ctx:          ctx,
		cfg:          cfg,
		logger:       logger,
		creds:        opts.Credentials,
		httpClient:   httpClient,
		policy:       policy,
		sleep:        opts.Sleep,
		transport:    tr,
		instructions: instructions,
	}

	generator, err := b.generator()
	if err != nil {
		return nil, err
	}
	verifier, err := b.verifier()
	if err != nil {
		return nil, err
	}
	if cfg.VerifyCacheSize > 0 {
		cached, err := verify.NewCachedVerifier(verifier, cfg.VerifyCacheSize)
		if err != nil {
			return nil, fmt.Errorf("engine: verification cache: %w", err)
		}
		verifier = cached
	}

	refineLogger := logger.With().Str("component", "refine").Logger()
	orchestrator := refine.NewOrchestrator(generator, verifier, refine.Options{
		RetryPause: cfg.RetryPause,
		Sleep:      opts.Sleep,
		Logger:     &refineLogger,
		Observers:  opts.Observers,
	})

	logger.Info().
		Str("generation_backend", cfg.GenerationBackend).
		Str("verification_backend", cfg.VerificationBackend).
		Int("verify_cache_size", cfg.VerifyCacheSize).
		Msg("engine: ready")

	return &Engine{
		Generator:    generator,
		Verifier:     verifier,
		Orchestrator: orchestrator,
		Instructions: instructions,
		cfg:          cfg,
		logger:       logger,
		sleep:        opts.Sleep,
	}, nil
}

// NewBatch returns a batch coordinator that resolves references through
// resolver and persists accepted candidates through writer.
func (e *Engine) NewBatch(resolver refine.ReferenceResolver, writer refine.CandidateWriter) *refine.Batch {
	batchLogger := e.logger.With().Str("component", "batch").Logger()
	return refine.NewBatch(e.Orchestrator, refine.BatchConfig{
		Spacing:         e.cfg.BatchSpacing,
		Sleep:           e.sleep,
		Resolver:        resolver,
		Writer:          writer,
		Logger:          &batchLogger,
		AcceptExhausted: e.cfg.AcceptExhausted,
	})
}

type builder struct {
	ctx          context.Context
	cfg          *infra.Config
	logger       infra.Logger
	creds        *credentials.Store
	httpClient   *http.Client
	policy       transport.Policy
	sleep        transport.SleepFunc
	transport    *transport.Client
	instructions imagegen.InstructionSet

	oracle *oracle.Client
	gemini *genai.Client
}

func (b *builder) generator() (imagegen.Generator, error) {
	switch b.cfg.GenerationBackend {
	case infra.BackendOracle:
		return b.oracleClient()
	case infra.BackendGemini:
		return b.geminiClient()
	case infra.BackendQwen:
		key, err := b.key(credentials.ProviderQwen, b.cfg.QwenAPIKey)
		if err != nil {
			return nil, err
		}
		logger := b.logger.With().Str("component", "qwen").Logger()
		return qwen.NewClient(qwen.Options{
			APIKey:       key,
			BaseURL:      b.cfg.QwenBaseURL,
			Model:        b.cfg.QwenModel,
			Instructions: b.instructions,
			Transport:    b.transport,
			Logger:       &logger,
		})
	default:
		return nil, fmt.Errorf("engine: unsupported generation backend %q", b.cfg.GenerationBackend)
	}
}

func (b *builder) verifier() (verify.Verifier, error) {
	switch b.cfg.VerificationBackend {
	case infra.BackendOracle:
		return b.oracleClient()
	case infra.BackendGemini:
		return b.geminiClient()
	default:
		return nil, fmt.Errorf("engine: unsupported verification backend %q", b.cfg.VerificationBackend)
	}
}

// oracleClient and geminiClient are built once and shared by both ports.
func (b *builder) oracleClient() (*oracle.Client, error) {
	if b.oracle != nil {
		return b.oracle, nil
	}
	key, err := b.creds.Resolve(b.ctx, credentials.ProviderOracle, b.cfg.OracleAPIKey)
	if err != nil {
		return nil, fmt.Errorf("engine: load oracle key: %w", err)
	}
	logger := b.logger.With().Str("component", "oracle").Logger()
	client, err := oracle.NewClient(oracle.Options{
		BaseURL:      b.cfg.OracleBaseURL,
		APIKey:       key,
		Instructions: b.instructions,
		Transport:    b.transport,
		Logger:       &logger,
	})
	if err != nil {
		return nil, err
	}
	b.oracle = client
	return client, nil
}

func (b *builder) geminiClient() (*genai.Client, error) {
	if b.gemini != nil {
		return b.gemini, nil
	}
	key, err := b.key(credentials.ProviderGemini, b.cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	logger := b.logger.With().Str("component", "gemini").Logger()
	client, err := genai.NewClient(b.ctx, genai.Options{
		APIKey:       key,
		BaseURL:      b.cfg.GeminiBaseURL,
		ImageModel:   b.cfg.GeminiImageModel,
		VerifyModel:  b.cfg.GeminiVerifyModel,
		HTTPClient:   b.httpClient,
		Instructions: b.instructions,
		Policy:       b.policy,
		Sleep:        b.sleep,
		Logger:       &logger,
	})
	if err != nil {
		return nil, err
	}
	b.gemini = client
	return client, nil
}

func (b *builder) key(provider, configured string) (string, error) {
	key, err := b.creds.Resolve(b.ctx, provider, configured)
	if err != nil {
		return "", fmt.Errorf("engine: load %s key: %w", provider, err)
	}
	if key == "" {
		return "", fmt.Errorf("%w: set %s", ErrMissingCredentials, credentials.EnvVar(provider))
	}
	return key, nil
}
