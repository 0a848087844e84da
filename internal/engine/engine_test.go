package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"listingfix/internal/adapter/repo"
	"listingfix/internal/domain"
	"listingfix/internal/infra"
	"listingfix/internal/providers/genai"
	"listingfix/internal/providers/oracle"
	"listingfix/internal/providers/qwen"
	"listingfix/internal/refine"
	"listingfix/internal/verify"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func baseConfig() *infra.Config {
	return &infra.Config{
		GenerationBackend:    infra.BackendOracle,
		VerificationBackend:  infra.BackendOracle,
		TransportMaxAttempts: 3,
		TransportBaseDelay:   time.Second,
		RetryPause:           2 * time.Second,
		BatchSpacing:         time.Second,
		VerifyCacheSize:      16,
	}
}

func oracleServer(t *testing.T, scores []float64) (*httptest.Server, *int32, *int32) {
	t.Helper()
	var generates, verifies int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		switch r.URL.Path {
		case "/generate":
			n := atomic.AddInt32(&generates, 1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"candidateImage": map[string]string{
					"data":     base64.StdEncoding.EncodeToString([]byte{'c', byte('0' + n)}),
					"mimeType": "image/png",
				},
			})
		case "/verify":
			n := atomic.AddInt32(&verifies, 1)
			score := scores[len(scores)-1]
			if int(n) <= len(scores) {
				score = scores[n-1]
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"score":          score,
				"isSatisfactory": score >= verify.AcceptThreshold,
				"subjectMatch":   true,
				"componentScores": map[string]float64{
					"identity": score, "compliance": score, "quality": score, "noNewIssues": score,
				},
				"critique":     "Background still grey.",
				"improvements": []string{"Use pure white"},
				"passedChecks": []string{},
				"failedChecks": []string{"background"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &generates, &verifies
}

func TestBuildOracleEngineRunsBatch(t *testing.T) {
	ts, generates, verifies := oracleServer(t, []float64{62, 88})
	cfg := baseConfig()
	cfg.OracleBaseURL = ts.URL

	eng, err := Build(context.Background(), cfg, zerolog.Nop(), Options{Sleep: noSleep})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := eng.Generator.(*oracle.Client); !ok {
		t.Fatalf("generator = %T", eng.Generator)
	}
	if _, ok := eng.Verifier.(*verify.CachedVerifier); !ok {
		t.Fatalf("verifier should be cached, got %T", eng.Verifier)
	}

	assets := repo.NewMemoryAssetRepository()
	asset := &domain.Asset{Role: domain.RolePrimary, Original: domain.Image{Data: []byte("orig"), MIMEType: "image/jpeg"}}
	if err := assets.Create(context.Background(), asset); err != nil {
		t.Fatalf("Create: %v", err)
	}

	items := eng.NewBatch(assets, assets).Run(context.Background(), []*domain.Asset{asset}, refine.BatchOptions{})
	if len(items) != 1 || items[0].Result.Outcome != refine.OutcomePassed || !items[0].Saved {
		t.Fatalf("unexpected batch items %+v", items)
	}
	if atomic.LoadInt32(generates) != 2 || atomic.LoadInt32(verifies) != 2 {
		t.Fatalf("generate=%d verify=%d, want 2/2", *generates, *verifies)
	}
	stored, _ := assets.GetByID(context.Background(), asset.ID)
	if string(stored.Candidate.Data) != "c2" {
		t.Fatalf("stored candidate = %q", stored.Candidate.Data)
	}
}

func TestBuildWithoutCacheUsesBackendDirectly(t *testing.T) {
	cfg := baseConfig()
	cfg.OracleBaseURL = "http://oracle.internal"
	cfg.VerifyCacheSize = 0
	eng, err := Build(context.Background(), cfg, zerolog.Nop(), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	gen, ok := eng.Generator.(*oracle.Client)
	if !ok {
		t.Fatalf("generator = %T", eng.Generator)
	}
	if ver, ok := eng.Verifier.(*oracle.Client); !ok || ver != gen {
		t.Fatalf("oracle client should serve both ports, got %T", eng.Verifier)
	}
}

func TestBuildRequiresOracleBaseURL(t *testing.T) {
	_, err := Build(context.Background(), baseConfig(), zerolog.Nop(), Options{})
	if !errors.Is(err, oracle.ErrMissingBaseURL) {
		t.Fatalf("expected ErrMissingBaseURL, got %v", err)
	}
}

func TestBuildGeminiRequiresKey(t *testing.T) {
	cfg := baseConfig()
	cfg.GenerationBackend = infra.BackendGemini
	_, err := Build(context.Background(), cfg, zerolog.Nop(), Options{})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("error should name the variable: %v", err)
	}
}

func TestBuildMixedBackends(t *testing.T) {
	cfg := baseConfig()
	cfg.GenerationBackend = infra.BackendQwen
	cfg.QwenAPIKey = "sk-qwen"
	cfg.VerificationBackend = infra.BackendGemini
	cfg.GeminiAPIKey = "gm-key"
	cfg.VerifyCacheSize = 0

	eng, err := Build(context.Background(), cfg, zerolog.Nop(), Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := eng.Generator.(*qwen.Client); !ok {
		t.Fatalf("generator = %T", eng.Generator)
	}
	if _, ok := eng.Verifier.(*genai.Client); !ok {
		t.Fatalf("verifier = %T", eng.Verifier)
	}
}

func TestBuildRejectsBadInstructionsFile(t *testing.T) {
	cfg := baseConfig()
	cfg.OracleBaseURL = "http://oracle.internal"
	cfg.InstructionsFile = t.TempDir() + "/missing.yaml"
	if _, err := Build(context.Background(), cfg, zerolog.Nop(), Options{}); err == nil {
		t.Fatalf("expected error for missing instructions file")
	}
}
