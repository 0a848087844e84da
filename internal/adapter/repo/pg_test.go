package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"listingfix/internal/domain"
	"listingfix/internal/sqlinline"
	"listingfix/internal/storage"
)

type assetRow struct {
	id, role, referenceID, subject, storageKey, mime string
	candidateKey, candidateMIME                      string
	analysis                                         []byte
}

type jobRow struct {
	id, status, instruction, errMsg string
	assetIDs                        []byte
	outcomes                        []json.RawMessage
}

// fakeSQL answers the inline queries of this package from in-memory tables.
type fakeSQL struct {
	mu     sync.Mutex
	assets map[string]*assetRow
	jobs   map[string]*jobRow
	order  []string
	now    time.Time

	migrations int
}

func newFakeSQL() *fakeSQL {
	return &fakeSQL{
		assets: map[string]*assetRow{},
		jobs:   map[string]*jobRow{},
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

type funcRow func(dest ...any) error

func (f funcRow) Scan(dest ...any) error { return f(dest...) }

func assign(dest []any, values ...any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			if v == nil {
				*d = nil
			} else {
				*d = v.([]byte)
			}
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

func (f *fakeSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	affected := 0
	switch query {
	case sqlinline.QEnsureSchema:
		f.migrations++
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	case sqlinline.QUpdateAssetAnalysis:
		if a, ok := f.assets[args[0].(string)]; ok {
			a.analysis = args[1].([]byte)
			affected = 1
		}
	case sqlinline.QUpdateAssetCandidate:
		if a, ok := f.assets[args[0].(string)]; ok {
			a.candidateKey, a.candidateMIME = args[1].(string), args[2].(string)
			affected = 1
		}
	case sqlinline.QAppendFixJobOutcome:
		if j, ok := f.jobs[args[0].(string)]; ok {
			j.outcomes = append(j.outcomes, json.RawMessage(args[1].([]byte)))
			affected = 1
		}
	case sqlinline.QFinishFixJob:
		if j, ok := f.jobs[args[0].(string)]; ok {
			j.status, j.errMsg = args[1].(string), args[2].(string)
			affected = 1
		}
	default:
		return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %.60s", query)
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", affected)), nil
}

func (f *fakeSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch query {
	case sqlinline.QInsertAsset:
		row := &assetRow{
			id: args[0].(string), role: args[1].(string), referenceID: args[2].(string),
			subject: args[3].(string), storageKey: args[4].(string), mime: args[5].(string),
		}
		f.assets[row.id] = row
		return funcRow(func(dest ...any) error { return assign(dest, f.now, f.now) })
	case sqlinline.QSelectAssetByID:
		a, ok := f.assets[args[0].(string)]
		if !ok {
			return funcRow(func(dest ...any) error { return pgx.ErrNoRows })
		}
		snapshot := *a
		return funcRow(func(dest ...any) error {
			var analysis any
			if snapshot.analysis != nil {
				analysis = snapshot.analysis
			}
			return assign(dest, snapshot.id, snapshot.role, snapshot.referenceID, snapshot.subject,
				snapshot.storageKey, snapshot.mime, snapshot.candidateKey, snapshot.candidateMIME,
				analysis, f.now, f.now)
		})
	case sqlinline.QInsertFixJob:
		row := &jobRow{id: args[0].(string), status: "QUEUED", assetIDs: args[1].([]byte), instruction: args[2].(string)}
		f.jobs[row.id] = row
		f.order = append(f.order, row.id)
		return funcRow(func(dest ...any) error { return assign(dest, f.now, f.now) })
	case sqlinline.QClaimFixJob:
		for _, id := range f.order {
			if j := f.jobs[id]; j.status == "QUEUED" {
				j.status = "RUNNING"
				return f.jobRow(j)
			}
		}
		return funcRow(func(dest ...any) error { return pgx.ErrNoRows })
	case sqlinline.QSelectFixJobByID:
		j, ok := f.jobs[args[0].(string)]
		if !ok {
			return funcRow(func(dest ...any) error { return pgx.ErrNoRows })
		}
		return f.jobRow(j)
	}
	return funcRow(func(dest ...any) error { return fmt.Errorf("unexpected query: %.60s", query) })
}

func (f *fakeSQL) jobRow(j *jobRow) pgx.Row {
	outcomes, _ := json.Marshal(j.outcomes)
	if len(j.outcomes) == 0 {
		outcomes = []byte("[]")
	}
	snapshot := *j
	return funcRow(func(dest ...any) error {
		return assign(dest, snapshot.id, snapshot.status, snapshot.assetIDs, snapshot.instruction, outcomes, snapshot.errMsg, f.now, f.now)
	})
}

func (f *fakeSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported")
}

func TestAssetRepositoryPGRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sql := newFakeSQL()
	repo := NewAssetRepository(sql, store)

	primary := &domain.Asset{Role: domain.RolePrimary, Subject: "Ceramic mug", Original: domain.Image{Data: []byte("orig"), MIMEType: "image/jpeg"}}
	if err := repo.Create(ctx, primary); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if primary.StorageKey != "assets/"+primary.ID+"/original.jpg" {
		t.Fatalf("storage key = %q", primary.StorageKey)
	}
	if !primary.CreatedAt.Equal(sql.now) {
		t.Fatalf("created_at not scanned")
	}

	if err := repo.SetAnalysis(ctx, primary.ID, domain.ComplianceAnalysis{Score: 55, GenerationPrompt: "remove the badge"}); err != nil {
		t.Fatalf("SetAnalysis: %v", err)
	}
	if err := repo.SaveCandidate(ctx, primary.ID, domain.Image{Data: []byte("cand"), MIMEType: "image/png"}); err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}

	got, err := repo.GetByID(ctx, primary.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Role != domain.RolePrimary || got.Subject != "Ceramic mug" {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if string(got.Original.Data) != "orig" || string(got.Candidate.Data) != "cand" || got.Candidate.MIMEType != "image/png" {
		t.Fatalf("image bytes mismatch: original=%q candidate=%q", got.Original.Data, got.Candidate.Data)
	}
	if got.Analysis == nil || got.Analysis.GenerationPrompt != "remove the badge" {
		t.Fatalf("analysis mismatch: %+v", got.Analysis)
	}
}

func TestAssetRepositoryPGNotFound(t *testing.T) {
	ctx := context.Background()
	store, _ := storage.NewFileStore(t.TempDir())
	repo := NewAssetRepository(newFakeSQL(), store)

	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "4b9c1f0e-4b7a-4c53-9d8c-0f3c2a9e1d11"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.SetAnalysis(ctx, "4b9c1f0e-4b7a-4c53-9d8c-0f3c2a9e1d11", domain.ComplianceAnalysis{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobRepositoryPGLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newFakeSQL())

	job := &domain.FixJob{AssetIDs: []string{"a1", "a2"}, CustomInstruction: "keep the shadow"}
	if err := repo.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("status = %s", job.Status)
	}

	claimed, err := repo.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.ID != job.ID || claimed.Status != domain.JobStatusRunning || len(claimed.AssetIDs) != 2 {
		t.Fatalf("unexpected claim %+v", claimed)
	}
	if claimed.CustomInstruction != "keep the shadow" {
		t.Fatalf("instruction lost: %q", claimed.CustomInstruction)
	}
	if _, err := repo.Claim(ctx); !errors.Is(err, domain.ErrNoJobAvailable) {
		t.Fatalf("expected ErrNoJobAvailable, got %v", err)
	}

	if err := repo.RecordOutcome(ctx, job.ID, domain.AssetOutcome{AssetID: "a1", Outcome: "passed", Score: 86, Attempts: 2}); err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if err := repo.Finish(ctx, job.ID, domain.JobStatusSucceeded, ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.JobStatusSucceeded || len(got.Outcomes) != 1 || got.Outcomes[0].Score != 86 {
		t.Fatalf("unexpected job %+v", got)
	}
	if err := repo.Finish(ctx, "4b9c1f0e-4b7a-4c53-9d8c-0f3c2a9e1d11", domain.JobStatusFailed, "x"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMigrateRunsSchema(t *testing.T) {
	sql := newFakeSQL()
	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), sql); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
	if sql.migrations != 2 {
		t.Fatalf("migrations = %d", sql.migrations)
	}
}
