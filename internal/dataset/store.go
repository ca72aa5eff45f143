package dataset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/metrics"
	"github.com/crudecast/crudecast/internal/storage/object"
	"go.uber.org/zap"
)

const (
	keyPrefix = "final_aligned_data_"
	keySuffix = ".json.gz"
)

// Store publishes and loads dated processed datasets. Keys sort by date, so
// the lexicographically greatest key is the latest publication. Publication
// is write-once in spirit: republishing a date replaces the object atomically
// through the storage backend.
type Store struct {
	storage object.Storage
	prefix  string
	logger  *zap.Logger
	metrics *metrics.Registry
}

// NewStore creates a dataset store under the given key prefix
// (e.g. "processed_data/").
func NewStore(storage object.Storage, prefix string, logger *zap.Logger, m *metrics.Registry) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		storage: storage,
		prefix:  prefix,
		logger:  logger,
		metrics: m,
	}
}

// Key returns the object key for a target date.
func (s *Store) Key(date core.Date) string {
	return s.prefix + keyPrefix + date.Compact() + keySuffix
}

// Publish serializes and stores the dataset for its target date, filling in
// the content hash. It returns the object key.
func (s *Store) Publish(ctx context.Context, ds *core.ProcessedDataset) (string, error) {
	compressed, hash, err := Encode(ds)
	if err != nil {
		return "", err
	}
	ds.ContentHash = hash

	key := s.Key(ds.TargetDate)
	if err := s.storage.Write(ctx, key, compressed); err != nil {
		return "", fmt.Errorf("publishing %s: %w", key, err)
	}

	s.metrics.DatasetPublished()
	s.logger.Info("dataset published",
		zap.String("key", key),
		zap.String("content_hash", hash),
		zap.Int("rows", len(ds.Rows)),
	)

	return key, nil
}

// LoadFor loads the dataset published for the given target date.
func (s *Store) LoadFor(ctx context.Context, date core.Date) (*core.ProcessedDataset, error) {
	return s.load(ctx, s.Key(date), date)
}

// LoadLatest loads the most recently dated dataset.
func (s *Store) LoadLatest(ctx context.Context) (*core.ProcessedDataset, error) {
	dates, err := s.PublishedDates(ctx)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, core.WrapError(core.ErrNotFound,
			fmt.Errorf("no datasets under %s", s.prefix))
	}
	latest := dates[len(dates)-1]
	return s.load(ctx, s.Key(latest), latest)
}

// PublishedDates lists target dates with a published dataset, ascending.
func (s *Store) PublishedDates(ctx context.Context) ([]core.Date, error) {
	keys, err := s.storage.List(ctx, s.prefix+keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}

	var dates []core.Date
	for _, key := range keys {
		date, ok := s.dateOfKey(key)
		if !ok {
			continue
		}
		dates = append(dates, date)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func (s *Store) dateOfKey(key string) (core.Date, bool) {
	name := strings.TrimPrefix(key, s.prefix+keyPrefix)
	name = strings.TrimSuffix(name, keySuffix)
	if len(name) != 8 {
		return core.Date{}, false
	}
	date, err := core.ParseDate(name[:4] + "-" + name[4:6] + "-" + name[6:])
	if err != nil {
		return core.Date{}, false
	}
	return date, true
}

func (s *Store) load(ctx context.Context, key string, date core.Date) (*core.ProcessedDataset, error) {
	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", key, err)
	}
	if !exists {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("no dataset at %s", key))
	}

	data, err := s.storage.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	ds, err := Decode(data)
	if err != nil {
		return nil, err
	}
	ds.TargetDate = date

	return ds, nil
}
