package repo

import (
	"context"
	"errors"
	"testing"

	"listingfix/internal/domain"
)

func TestMemoryAssetRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssetRepository()
	asset := &domain.Asset{Role: domain.RolePrimary, Original: domain.Image{Data: []byte("orig"), MIMEType: "image/jpeg"}}
	if err := repo.Create(ctx, asset); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if asset.ID == "" {
		t.Fatalf("Create should assign an id")
	}

	asset.Original.Data[0] = 'X'
	got, err := repo.GetByID(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if string(got.Original.Data) != "orig" {
		t.Fatalf("stored asset aliased caller bytes: %q", got.Original.Data)
	}

	if err := repo.SaveCandidate(ctx, asset.ID, domain.Image{Data: []byte("cand"), MIMEType: "image/png"}); err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}
	if err := repo.SetAnalysis(ctx, asset.ID, domain.ComplianceAnalysis{Score: 40, Violations: []domain.Violation{{Category: "text_overlay"}}}); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}
	got, _ = repo.GetByID(ctx, asset.ID)
	if string(got.BestImage().Data) != "cand" {
		t.Fatalf("best image = %q", got.BestImage().Data)
	}
	if got.Analysis == nil || got.Analysis.Violations[0].Category != "text_overlay" {
		t.Fatalf("analysis not stored: %+v", got.Analysis)
	}
}

func TestMemoryAssetRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAssetRepository()
	if err := repo.Create(ctx, &domain.Asset{Role: domain.RolePrimary}); !errors.Is(err, domain.ErrInvalidAsset) {
		t.Fatalf("expected ErrInvalidAsset, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.SaveCandidate(ctx, "missing", domain.Image{Data: []byte("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryJobRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	if err := repo.Enqueue(ctx, &domain.FixJob{}); !errors.Is(err, domain.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}

	first := &domain.FixJob{AssetIDs: []string{"a", "b"}}
	second := &domain.FixJob{AssetIDs: []string{"c"}}
	for _, j := range []*domain.FixJob{first, second} {
		if err := repo.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	claimed, err := repo.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.ID != first.ID || claimed.Status != domain.JobStatusRunning {
		t.Fatalf("claimed %+v, want first job running", claimed)
	}
	if err := repo.RecordOutcome(ctx, first.ID, domain.AssetOutcome{AssetID: "a", Outcome: "passed", Attempts: 1}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if err := repo.Finish(ctx, first.ID, domain.JobStatusSucceeded, ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	next, err := repo.Claim(ctx)
	if err != nil || next.ID != second.ID {
		t.Fatalf("second claim = %+v, %v", next, err)
	}
	if _, err := repo.Claim(ctx); !errors.Is(err, domain.ErrNoJobAvailable) {
		t.Fatalf("expected ErrNoJobAvailable, got %v", err)
	}

	got, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.JobStatusSucceeded || len(got.Outcomes) != 1 || got.Outcomes[0].AssetID != "a" {
		t.Fatalf("unexpected job state %+v", got)
	}
	if _, err := repo.GetByID(ctx, "nope"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
