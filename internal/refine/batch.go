package refine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"listingfix/internal/domain"
	"listingfix/internal/transport"
)

// DefaultBatchSpacing separates consecutive runs inside a batch.
const DefaultBatchSpacing = 1 * time.Second

// ReferenceResolver loads primary assets referenced by secondary ones.
type ReferenceResolver interface {
	GetByID(ctx context.Context, id string) (*domain.Asset, error)
}

// CandidateWriter persists an accepted candidate on its asset.
type CandidateWriter interface {
	SaveCandidate(ctx context.Context, id string, candidate domain.Image) error
}

// BatchConfig configures a Batch.
type BatchConfig struct {
	Spacing  time.Duration
	Sleep    transport.SleepFunc
	Resolver ReferenceResolver
	Writer   CandidateWriter
	Logger   *zerolog.Logger
	// AcceptExhausted also writes back the last candidate of exhausted runs.
	AcceptExhausted bool
}

// BatchOptions apply to a single Run call.
type BatchOptions struct {
	CustomInstruction string
	// Force also refines assets whose analysis already passed.
	Force bool
	// Progress is called after each asset completes, in order.
	Progress func(BatchItem)
}

// BatchItem is the recorded outcome for one asset. WriteErr is set when the
// accepted candidate could not be persisted.
type BatchItem struct {
	AssetID  string
	Result   Result
	Saved    bool
	WriteErr error
}

// AssetOutcome flattens the item into the record kept on a fix job.
func (item BatchItem) AssetOutcome() domain.AssetOutcome {
	out := domain.AssetOutcome{
		AssetID:    item.AssetID,
		Outcome:    string(item.Result.Outcome),
		Score:      item.Result.Score,
		Attempts:   len(item.Result.Attempts),
		Unverified: item.Result.Unverified,
	}
	if item.Result.Err != nil {
		out.Error = item.Result.ErrorMessage()
		out.ErrorType = string(item.Result.ErrorType())
	} else if item.WriteErr != nil {
		out.Error = "save candidate: " + item.WriteErr.Error()
	}
	return out
}

// Batch runs the orchestrator over assets strictly one after another.
type Batch struct {
	orchestrator *Orchestrator
	cfg          BatchConfig
	logger       *zerolog.Logger
}

// NewBatch builds a coordinator around orchestrator.
func NewBatch(orchestrator *Orchestrator, cfg BatchConfig) *Batch {
	if cfg.Spacing <= 0 {
		cfg.Spacing = DefaultBatchSpacing
	}
	if cfg.Sleep == nil {
		cfg.Sleep = transport.Sleep
	}
	logger := cfg.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Batch{orchestrator: orchestrator, cfg: cfg, logger: logger}
}

// Run processes every asset and returns one item per asset in input order. A
// failing asset never stops the batch. Once ctx is done the remaining assets
// are recorded as aborted without calling the oracles.
func (b *Batch) Run(ctx context.Context, assets []*domain.Asset, opts BatchOptions) []BatchItem {
	items := make([]BatchItem, 0, len(assets))
	local := make(map[string]*domain.Asset, len(assets))
	for _, a := range assets {
		if a != nil && a.ID != "" {
			local[a.ID] = a
		}
	}

	for i, asset := range assets {
		if i > 0 && ctx.Err() == nil {
			_ = b.cfg.Sleep(ctx, b.cfg.Spacing)
		}
		item := b.runOne(ctx, asset, local, opts)
		items = append(items, item)
		if opts.Progress != nil {
			opts.Progress(item)
		}
	}

	passed, exhausted, aborted, skipped := 0, 0, 0, 0
	for _, item := range items {
		switch item.Result.Outcome {
		case OutcomePassed:
			passed++
		case OutcomeExhausted:
			exhausted++
		case OutcomeSkipped:
			skipped++
		default:
			aborted++
		}
	}
	b.logger.Info().
		Int("assets", len(items)).
		Int("passed", passed).
		Int("exhausted", exhausted).
		Int("aborted", aborted).
		Int("skipped", skipped).
		Msg("refine: batch complete")
	return items
}

func (b *Batch) runOne(ctx context.Context, asset *domain.Asset, local map[string]*domain.Asset, opts BatchOptions) BatchItem {
	id := ""
	if asset != nil {
		id = asset.ID
	}
	item := BatchItem{AssetID: id}
	if err := ctx.Err(); err != nil {
		item.Result = Result{AssetID: id, Outcome: OutcomeAborted, Err: err}
		return item
	}

	if !opts.Force && asset != nil && asset.Analysis != nil && asset.Analysis.Passed {
		b.logger.Debug().Str("asset_id", id).Msg("refine: analysis already passed, skipping")
		item.Result = Result{AssetID: id, Outcome: OutcomeSkipped}
		return item
	}

	reference, err := b.reference(ctx, asset, local)
	if err != nil {
		b.logger.Warn().Err(err).Str("asset_id", id).Msg("refine: reference unavailable")
		item.Result = Result{AssetID: id, Outcome: OutcomeAborted, Err: abortError(err)}
		return item
	}

	item.Result = b.orchestrator.Fix(ctx, FixRequest{
		Asset:             asset,
		Reference:         reference,
		CustomInstruction: opts.CustomInstruction,
	})

	keep := item.Result.Outcome == OutcomePassed ||
		(b.cfg.AcceptExhausted && item.Result.Outcome == OutcomeExhausted)
	if !keep || item.Result.Candidate.IsZero() {
		return item
	}

	// Later secondaries in this batch see the new candidate through BestImage.
	updated := *asset
	updated.Candidate = item.Result.Candidate
	local[id] = &updated

	if b.cfg.Writer == nil {
		return item
	}
	if err := b.cfg.Writer.SaveCandidate(ctx, id, item.Result.Candidate); err != nil {
		b.logger.Error().Err(err).Str("asset_id", id).Msg("refine: save candidate failed")
		item.WriteErr = err
		return item
	}
	item.Saved = true
	return item
}

func (b *Batch) reference(ctx context.Context, asset *domain.Asset, local map[string]*domain.Asset) (domain.Image, error) {
	if asset == nil || asset.Role != domain.RoleSecondary || asset.ReferenceID == "" {
		return domain.Image{}, nil
	}
	if ref, ok := local[asset.ReferenceID]; ok {
		return ref.BestImage(), nil
	}
	if b.cfg.Resolver == nil {
		return domain.Image{}, fmt.Errorf("%w: %s", domain.ErrMissingReference, asset.ReferenceID)
	}
	ref, err := b.cfg.Resolver.GetByID(ctx, asset.ReferenceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Image{}, fmt.Errorf("%w: %s", domain.ErrMissingReference, asset.ReferenceID)
		}
		return domain.Image{}, fmt.Errorf("load reference %s: %w", asset.ReferenceID, err)
	}
	best := ref.BestImage()
	if best.IsZero() {
		return domain.Image{}, fmt.Errorf("%w: %s has no image", domain.ErrMissingReference, asset.ReferenceID)
	}
	return best, nil
}
