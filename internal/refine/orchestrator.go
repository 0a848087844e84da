package refine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"listingfix/internal/domain"
	"listingfix/internal/imagegen"
	"listingfix/internal/transport"
	"listingfix/internal/verify"
)

// Options configures an Orchestrator.
type Options struct {
	// RetryPause is the quiet period between a rejected verification and the
	// next generation call. Zero means DefaultRetryPause.
	RetryPause time.Duration
	Sleep      transport.SleepFunc
	Logger     *zerolog.Logger
	Observers  []Observer
}

// Orchestrator sequences generation and verification for a single asset.
// It holds no per-run state and may serve concurrent Fix calls.
type Orchestrator struct {
	generator imagegen.Generator
	verifier  verify.Verifier
	pause     time.Duration
	sleep     transport.SleepFunc
	logger    *zerolog.Logger
	observers []Observer
}

// FixRequest asks for one refinement run. Reference is the primary asset's
// current best image and is only used for secondary assets.
type FixRequest struct {
	Asset             *domain.Asset
	Reference         domain.Image
	CustomInstruction string
	Observer          Observer
}

// NewOrchestrator wires the two ports into a refinement loop.
func NewOrchestrator(generator imagegen.Generator, verifier verify.Verifier, opts Options) *Orchestrator {
	pause := opts.RetryPause
	if pause <= 0 {
		pause = DefaultRetryPause
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = transport.Sleep
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Orchestrator{
		generator: generator,
		verifier:  verifier,
		pause:     pause,
		sleep:     sleep,
		logger:    logger,
		observers: opts.Observers,
	}
}

// Fix runs up to MaxAttempts generate/verify iterations and returns how the
// run ended. Failures are reported in the Result, never as a Go error.
func (o *Orchestrator) Fix(ctx context.Context, req FixRequest) Result {
	asset := req.Asset
	if err := asset.Validate(); err != nil {
		id := ""
		if asset != nil {
			id = asset.ID
		}
		return Result{
			AssetID: id,
			Outcome: OutcomeAborted,
			Err:     transport.NewClassifiedError(transport.ErrorTypeBadRequest, 0, err.Error(), err),
		}
	}

	observers := o.observers
	if req.Observer != nil {
		observers = append(append([]Observer(nil), observers...), req.Observer)
	}
	run := newRun(asset, observers)
	logger := o.logger.With().Str("asset_id", asset.ID).Str("role", string(asset.Role)).Logger()

	var reference domain.Image
	if asset.Role == domain.RoleSecondary {
		reference = req.Reference
		if reference.IsZero() {
			logger.Warn().Msg("refine: secondary asset without reference image")
		}
	}

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		run.begin(attempt)

		genReq := imagegen.Request{
			Original:          asset.Original,
			Role:              asset.Role,
			Reference:         reference,
			Prior:             run.prior,
			Critique:          run.critique,
			CustomInstruction: req.CustomInstruction,
			Subject:           asset.Subject,
		}
		if attempt == 1 {
			genReq.Analysis = asset.Analysis
		}
		candidate, err := o.generator.Generate(ctx, genReq)
		if err == nil && candidate.IsZero() {
			err = transport.NewClassifiedError(transport.ErrorTypeBadRequest, 0, "generator returned an empty image", nil)
		}
		if err != nil {
			logger.Error().Err(err).Int("attempt", attempt).Str("error_type", string(transport.TypeOf(err))).Msg("refine: generation failed")
			return run.finish(OutcomeAborted, abortError(err))
		}
		run.generated(candidate)

		res, err := o.verifier.Verify(ctx, verify.Request{
			Original:  asset.Original,
			Candidate: candidate,
			Reference: reference,
			Role:      asset.Role,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return run.finish(OutcomeAborted, ctxErr)
			}
			if !transport.IsTerminal(err) {
				logger.Warn().Err(err).Int("attempt", attempt).Msg("refine: verification unreachable, accepting unverified candidate")
				a := run.current()
				a.Status = StatusPassed
				a.Unverified = true
				return run.finish(OutcomePassed, nil)
			}
			logger.Error().Err(err).Int("attempt", attempt).Str("error_type", string(transport.TypeOf(err))).Msg("refine: verification failed")
			return run.finish(OutcomeAborted, abortError(err))
		}

		verify.LogDiscrepancies(&logger, res)
		a := run.current()
		a.Verification = res.Clone()
		if verify.Accepted(res) {
			a.Status = StatusPassed
			logger.Info().Int("attempt", attempt).Float64("score", res.Score).Msg("refine: candidate accepted")
			return run.finish(OutcomePassed, nil)
		}
		a.Status = StatusFailed
		logger.Info().
			Int("attempt", attempt).
			Float64("score", res.Score).
			Bool("subject_match", res.SubjectMatch).
			Msg("refine: candidate rejected")

		if attempt == MaxAttempts {
			break
		}
		run.critique = MergeCritique(res)
		run.transition(StateRetrying)
		if err := o.sleep(ctx, o.pause); err != nil {
			return run.finish(OutcomeAborted, err)
		}
	}
	return run.finish(OutcomeExhausted, nil)
}
