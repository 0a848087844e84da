package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"listingfix/internal/domain"
	"listingfix/internal/infra"
	"listingfix/internal/sqlinline"
	"listingfix/internal/storage"
)

// AssetRepositoryPG implements domain.AssetRepository with metadata in
// PostgreSQL and image bytes in an ImageStore.
type AssetRepositoryPG struct {
	sql   infra.SQLExecutor
	store storage.ImageStore
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(sql infra.SQLExecutor, store storage.ImageStore) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql, store: store}
}

// Create stores the original bytes and inserts the asset row. An empty ID is
// filled with a new UUID.
func (r *AssetRepositoryPG) Create(ctx context.Context, asset *domain.Asset) error {
	if err := asset.Validate(); err != nil {
		return err
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	key, err := r.store.Write(ctx, storage.AssetKey(asset.ID, "original", asset.Original.MIMEType), asset.Original.Data, asset.Original.MIMEType)
	if err != nil {
		return fmt.Errorf("store original: %w", err)
	}
	asset.StorageKey = key

	row := r.sql.QueryRow(ctx, sqlinline.QInsertAsset,
		asset.ID,
		string(asset.Role),
		asset.ReferenceID,
		asset.Subject,
		asset.StorageKey,
		asset.Original.MIMEType,
	)
	if err := row.Scan(&asset.CreatedAt, &asset.UpdatedAt); err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// GetByID loads an asset with its original and candidate bytes.
func (r *AssetRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	var (
		asset         domain.Asset
		role          string
		mime          string
		candidateMIME string
		analysisJSON  []byte
	)
	row := r.sql.QueryRow(ctx, sqlinline.QSelectAssetByID, id)
	if err := row.Scan(
		&asset.ID,
		&role,
		&asset.ReferenceID,
		&asset.Subject,
		&asset.StorageKey,
		&mime,
		&asset.CandidateKey,
		&candidateMIME,
		&analysisJSON,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	asset.Role = domain.Role(role)

	if len(analysisJSON) > 0 && string(analysisJSON) != "null" {
		var analysis domain.ComplianceAnalysis
		if err := json.Unmarshal(analysisJSON, &analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		asset.Analysis = &analysis
	}

	original, err := r.store.Read(ctx, asset.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read original %s: %w", asset.StorageKey, err)
	}
	asset.Original = domain.Image{Data: original, MIMEType: mime}

	if strings.TrimSpace(asset.CandidateKey) != "" {
		candidate, err := r.store.Read(ctx, asset.CandidateKey)
		switch {
		case err == nil:
			asset.Candidate = domain.Image{Data: candidate, MIMEType: candidateMIME}
		case errors.Is(err, storage.ErrNotFound):
			asset.CandidateKey = ""
		default:
			return nil, fmt.Errorf("read candidate %s: %w", asset.CandidateKey, err)
		}
	}
	return &asset, nil
}

// SetAnalysis attaches a compliance analysis to an existing asset.
func (r *AssetRepositoryPG) SetAnalysis(ctx context.Context, id string, analysis domain.ComplianceAnalysis) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	raw, err := json.Marshal(analysis)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateAssetAnalysis, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveCandidate writes the candidate bytes and points the asset at them. The
// blob key is versioned so earlier candidates stay readable.
func (r *AssetRepositoryPG) SaveCandidate(ctx context.Context, id string, candidate domain.Image) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	if candidate.IsZero() {
		return domain.ErrInvalidAsset
	}
	variant := fmt.Sprintf("candidate-%d", time.Now().UTC().UnixNano())
	key, err := r.store.Write(ctx, storage.AssetKey(id, variant, candidate.MIMEType), candidate.Data, candidate.MIMEType)
	if err != nil {
		return fmt.Errorf("store candidate: %w", err)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateAssetCandidate, id, key, candidate.MIMEType)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.AssetRepository = (*AssetRepositoryPG)(nil)
