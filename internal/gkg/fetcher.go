package gkg

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/metrics"
	"go.uber.org/zap"
)

// bundlesPerDay is fixed by the upstream publication schedule: one bundle
// every 15 minutes.
const bundlesPerDay = 96

// Config holds event fetcher settings.
type Config struct {
	BaseURL            string
	Concurrency        int
	BundleTimeout      time.Duration
	DayTimeout         time.Duration
	MinBundlesFraction float64
}

// Fetcher retrieves and parses one day of global event bundles. It holds no
// per-day state; FetchDay is idempotent over the date.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates a new event fetcher.
func New(cfg Config, logger *zap.Logger, m *metrics.Registry) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 8
	}
	if cfg.BundleTimeout <= 0 {
		cfg.BundleTimeout = 30 * time.Second
	}
	if cfg.DayTimeout <= 0 {
		cfg.DayTimeout = 540 * time.Second
	}
	if cfg.MinBundlesFraction <= 0 {
		cfg.MinBundlesFraction = 0.5
	}
	return &Fetcher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.BundleTimeout},
		logger:  logger,
		metrics: m,
	}
}

// bundleTimestamps returns the 96 bundle addresses for a day, one per
// 15-minute boundary, formatted YYYYMMDDhhmmss.
func bundleTimestamps(day core.Date) []string {
	prefix := day.Compact()
	out := make([]string, 0, bundlesPerDay)
	for hour := 0; hour < 24; hour++ {
		for _, minute := range []string{"00", "15", "30", "45"} {
			out = append(out, fmt.Sprintf("%s%02d%s00", prefix, hour, minute))
		}
	}
	return out
}

// FetchDay retrieves all bundles for the day with bounded concurrency and
// returns the parsed event records. Individual bundle failures are skipped
// with a warning; the day fails only when fewer than the configured fraction
// of bundles succeed.
func (f *Fetcher) FetchDay(ctx context.Context, day core.Date) ([]core.EventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.DayTimeout)
	defer cancel()

	timestamps := bundleTimestamps(day)
	perBundle := make([][]core.EventRecord, len(timestamps))
	var succeeded int64

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, f.cfg.Concurrency)

	for i, ts := range timestamps {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int, ts string) {
				defer wg.Done()
				defer func() { <-sem }()

				records, ok := f.fetchBundle(ctx, ts, day)
				if !ok {
					return
				}
				mu.Lock()
				perBundle[i] = records
				succeeded++
				mu.Unlock()
			}(i, ts)
		}
	}
	wg.Wait()

	floor := int64(f.cfg.MinBundlesFraction * bundlesPerDay)
	if succeeded < floor {
		return nil, core.WrapError(core.ErrUpstreamUnavailable,
			fmt.Errorf("only %d of %d event bundles fetched for %s (floor %d)",
				succeeded, bundlesPerDay, day, floor))
	}

	var all []core.EventRecord
	for _, records := range perBundle {
		all = append(all, records...)
	}

	// Bundle download order must not be observable: fix record order by
	// timestamp, then source.
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.Before(all[j].Timestamp)
		}
		return all[i].SourceID < all[j].SourceID
	})

	f.logger.Info("event day fetched",
		zap.String("date", day.String()),
		zap.Int64("bundles", succeeded),
		zap.Int("records", len(all)),
	)

	return all, nil
}

// fetchBundle downloads, decompresses and parses one bundle. All failures are
// recoverable: the bundle is skipped and counted.
func (f *Fetcher) fetchBundle(ctx context.Context, timestamp string, day core.Date) ([]core.EventRecord, bool) {
	url := fmt.Sprintf("%s/%s.gkg.csv.zip", f.cfg.BaseURL, timestamp)

	body, skipReason := f.download(ctx, url)
	if skipReason != "" {
		f.metrics.BundleSkipped(skipReason)
		f.logger.Warn("event bundle skipped",
			zap.String("timestamp", timestamp),
			zap.String("reason", skipReason),
		)
		return nil, false
	}

	payload, err := unzipFirst(body)
	if err != nil {
		f.metrics.BundleSkipped("corrupt")
		f.logger.Warn("event bundle skipped",
			zap.String("timestamp", timestamp),
			zap.String("reason", "corrupt"),
			zap.Error(err),
		)
		return nil, false
	}

	records, dropped := ParseBundle(payload, day)
	f.metrics.BundleFetched()
	f.metrics.RowsParsed(len(records))
	f.metrics.RowsDropped(dropped)

	return records, true
}

// download fetches a bundle, retrying once on server errors. It returns a
// non-empty skip reason instead of an error; the caller never fails the day
// on a single bundle.
func (f *Fetcher) download(ctx context.Context, url string) ([]byte, string) {
	var lastStatus int
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "request"
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "timeout"
			}
			return nil, "network"
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, "network"
			}
			return data, ""
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, "missing"
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastStatus = resp.StatusCode
			continue // one retry for server errors
		default:
			resp.Body.Close()
			return nil, fmt.Sprintf("http_%d", resp.StatusCode)
		}
	}
	return nil, fmt.Sprintf("http_%d", lastStatus)
}

// unzipFirst returns the contents of the first file in a zip archive.
func unzipFirst(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("empty archive")
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry: %w", err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}
