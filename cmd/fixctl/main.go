package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"listingfix/internal/adapter/repo"
	"listingfix/internal/domain"
	"listingfix/internal/engine"
	"listingfix/internal/infra"
	"listingfix/internal/refine"
	"listingfix/internal/storage"
)

// fileAsset ties an input path to the in-memory asset built from it.
type fileAsset struct {
	path  string
	asset *domain.Asset
}

type report struct {
	File      string  `json:"file"`
	Role      string  `json:"role"`
	Outcome   string  `json:"outcome"`
	Score     float64 `json:"score"`
	Attempts  int     `json:"attempts"`
	Output    string  `json:"output,omitempty"`
	ErrorType string  `json:"errorType,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func main() {
	var (
		primaryFlag     string
		secondaryFlag   string
		subjectFlag     string
		instructionFlag string
		analysisFlag    string
		outFlag         string
	)
	flag.StringVar(&primaryFlag, "primary", "", "Path to the primary listing image")
	flag.StringVar(&secondaryFlag, "secondary", "", "Comma separated paths to secondary images of the same listing")
	flag.StringVar(&subjectFlag, "subject", "", "Short description of the product shown")
	flag.StringVar(&instructionFlag, "instruction", "", "Extra instruction appended to every generation prompt")
	flag.StringVar(&analysisFlag, "analysis", "", "Optional JSON file with a compliance analysis for the primary image")
	flag.StringVar(&outFlag, "out", "./fixed", "Directory that receives accepted candidates")
	flag.Parse()

	if strings.TrimSpace(primaryFlag) == "" && strings.TrimSpace(secondaryFlag) == "" {
		fmt.Fprintln(os.Stderr, "at least one of -primary or -secondary is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger("cli", cfg.LogLevel).With().Str("cmd", "fixctl").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assets := repo.NewMemoryAssetRepository()
	inputs, err := loadInputs(ctx, assets, primaryFlag, secondaryFlag, subjectFlag, analysisFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "input: %v\n", err)
		os.Exit(1)
	}

	out, err := storage.NewFileStore(outFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "output: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.Build(ctx, cfg, logger, engine.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}

	batchAssets := make([]*domain.Asset, 0, len(inputs))
	for _, in := range inputs {
		batchAssets = append(batchAssets, in.asset)
	}
	items := eng.NewBatch(assets, assets).Run(ctx, batchAssets, refine.BatchOptions{
		CustomInstruction: strings.TrimSpace(instructionFlag),
		Progress: func(item refine.BatchItem) {
			logger.Info().Str("asset_id", item.AssetID).Str("outcome", string(item.Result.Outcome)).Msg("fixctl: asset done")
		},
	})

	enc := json.NewEncoder(os.Stdout)
	failed := false
	for i, item := range items {
		in := inputs[i]
		outcome := item.AssetOutcome()
		rep := report{
			File:      in.path,
			Role:      string(in.asset.Role),
			Outcome:   outcome.Outcome,
			Score:     outcome.Score,
			Attempts:  outcome.Attempts,
			ErrorType: outcome.ErrorType,
			Error:     outcome.Error,
		}
		if item.Saved {
			candidate := item.Result.Candidate
			key, err := out.Write(ctx, outputName(in.path, candidate.MIMEType), candidate.Data, candidate.MIMEType)
			if err != nil {
				rep.Error = "write candidate: " + err.Error()
			} else {
				rep.Output = filepath.Join(out.BasePath(), filepath.FromSlash(key))
			}
		}
		if item.Result.Outcome == refine.OutcomeExhausted || item.Result.Outcome == refine.OutcomeAborted {
			failed = true
		}
		_ = enc.Encode(rep)
	}
	if failed {
		os.Exit(1)
	}
}

// loadInputs reads the image files into the in-memory repository. Secondary
// images reference the primary when one is given.
func loadInputs(ctx context.Context, assets *repo.MemoryAssetRepository, primary, secondary, subject, analysisPath string) ([]fileAsset, error) {
	var inputs []fileAsset
	primaryID := ""
	if path := strings.TrimSpace(primary); path != "" {
		asset, err := readAsset(path, domain.RolePrimary, "", subject)
		if err != nil {
			return nil, err
		}
		if analysisPath = strings.TrimSpace(analysisPath); analysisPath != "" {
			raw, err := os.ReadFile(analysisPath)
			if err != nil {
				return nil, err
			}
			var analysis domain.ComplianceAnalysis
			if err := json.Unmarshal(raw, &analysis); err != nil {
				return nil, fmt.Errorf("decode analysis %s: %w", analysisPath, err)
			}
			asset.Analysis = &analysis
		}
		if err := assets.Create(ctx, asset); err != nil {
			return nil, err
		}
		primaryID = asset.ID
		inputs = append(inputs, fileAsset{path: path, asset: asset})
	}
	for _, path := range strings.Split(secondary, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		asset, err := readAsset(path, domain.RoleSecondary, primaryID, subject)
		if err != nil {
			return nil, err
		}
		if err := assets.Create(ctx, asset); err != nil {
			return nil, err
		}
		inputs = append(inputs, fileAsset{path: path, asset: asset})
	}
	if len(inputs) == 0 {
		return nil, errors.New("no images given")
	}
	return inputs, nil
}

func readAsset(path string, role domain.Role, ref, subject string) (*domain.Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%s is not an image (%s)", path, mime)
	}
	return &domain.Asset{
		Role:        role,
		ReferenceID: ref,
		Subject:     strings.TrimSpace(subject),
		Original:    domain.Image{Data: data, MIMEType: mime},
	}, nil
}

func outputName(path, mime string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-fixed" + storage.Extension(mime)
}
