package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/storage/object"
	"go.uber.org/zap"
)

// SupportedSchemaVersion is the artifact layout this loader understands.
const SupportedSchemaVersion = 1

// Loader reads trained model bundles from object storage. Loading is lazy and
// memoized per run ID; loaded bundles are immutable.
type Loader struct {
	storage object.Storage
	prefix  string
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]*Bundle
}

// NewLoader creates a loader under the given key prefix
// (e.g. "trained_models/").
func NewLoader(storage object.Storage, prefix string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		storage: storage,
		prefix:  prefix,
		logger:  logger,
		cache:   make(map[string]*Bundle),
	}
}

// Load returns the bundle for a run ID, fetching it on first use.
func (l *Loader) Load(ctx context.Context, runID string) (*Bundle, error) {
	l.mu.Lock()
	if b, ok := l.cache[runID]; ok {
		l.mu.Unlock()
		return b, nil
	}
	l.mu.Unlock()

	b, err := l.fetch(ctx, runID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[runID] = b
	l.mu.Unlock()

	return b, nil
}

func (l *Loader) artifactKey(runID, name string) string {
	return l.prefix + runID + "/artifacts/" + name
}

func (l *Loader) fetch(ctx context.Context, runID string) (*Bundle, error) {
	meta, err := l.fetchMetadata(ctx, runID)
	if err != nil {
		return nil, err
	}

	scaler, err := l.fetchScaler(ctx, runID, len(meta.FeatureNames))
	if err != nil {
		return nil, err
	}

	adjacency, err := l.fetchAdjacency(ctx, runID, len(meta.Countries))
	if err != nil {
		return nil, err
	}

	regressors := make(map[core.CountryCode]Regressor, len(meta.Countries))
	for _, country := range meta.Countries {
		key := l.artifactKey(runID, "regressors/"+string(country)+".json")
		data, err := l.storage.Read(ctx, key)
		if err != nil {
			// A missing country regressor is a warning: inference skips it.
			l.logger.Warn("country regressor missing",
				zap.String("run_id", runID),
				zap.String("country", string(country)),
			)
			continue
		}
		reg, err := UnmarshalRegressor(data)
		if err != nil {
			return nil, core.WrapError(core.ErrModelMissing,
				fmt.Errorf("regressor %s: %w", country, err))
		}
		regressors[country] = reg
	}
	if len(regressors) == 0 {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s has no loadable regressors", runID))
	}

	l.logger.Info("model bundle loaded",
		zap.String("run_id", runID),
		zap.String("model_version", meta.ModelVersion),
		zap.Int("countries", len(meta.Countries)),
		zap.Int("regressors", len(regressors)),
		zap.Int("features", len(meta.FeatureNames)),
	)

	return &Bundle{
		Regressors: regressors,
		Scaler:     scaler,
		Adjacency:  adjacency,
		Metadata:   *meta,
		Universe:   core.NewUniverse(meta.Countries),
	}, nil
}

func (l *Loader) fetchMetadata(ctx context.Context, runID string) (*Metadata, error) {
	data, err := l.storage.Read(ctx, l.artifactKey(runID, "metadata.json"))
	if err != nil {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s metadata: %w", runID, err))
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s metadata: %w", runID, err))
	}
	if meta.SchemaVersion != SupportedSchemaVersion {
		return nil, core.WrapError(core.ErrSchemaMismatch,
			fmt.Errorf("run %s has schema version %d, loader supports %d",
				runID, meta.SchemaVersion, SupportedSchemaVersion))
	}
	if len(meta.FeatureNames) == 0 || len(meta.Countries) == 0 {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s metadata lacks feature names or countries", runID))
	}
	return &meta, nil
}

func (l *Loader) fetchScaler(ctx context.Context, runID string, featureCount int) (*Scaler, error) {
	data, err := l.storage.Read(ctx, l.artifactKey(runID, "scaler.json"))
	if err != nil {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s scaler: %w", runID, err))
	}

	var scaler Scaler
	if err := json.Unmarshal(data, &scaler); err != nil {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s scaler: %w", runID, err))
	}
	if len(scaler.Mean) != featureCount || len(scaler.Scale) != featureCount {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s scaler has %d/%d entries, want %d",
				runID, len(scaler.Mean), len(scaler.Scale), featureCount))
	}

	return &scaler, nil
}

func (l *Loader) fetchAdjacency(ctx context.Context, runID string, n int) ([][]float64, error) {
	data, err := l.storage.Read(ctx, l.artifactKey(runID, "adjacency.json"))
	if err != nil {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s adjacency: %w", runID, err))
	}

	var adjacency [][]float64
	if err := json.Unmarshal(data, &adjacency); err != nil {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s adjacency: %w", runID, err))
	}
	if len(adjacency) != n {
		return nil, core.WrapError(core.ErrModelMissing,
			fmt.Errorf("run %s adjacency has %d rows, want %d", runID, len(adjacency), n))
	}
	for i, row := range adjacency {
		if len(row) != n {
			return nil, core.WrapError(core.ErrModelMissing,
				fmt.Errorf("run %s adjacency row %d has %d columns, want %d",
					runID, i, len(row), n))
		}
	}

	return adjacency, nil
}
