package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/crudecast/crudecast/internal/core"
	"github.com/crudecast/crudecast/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Instrument functions understood by the daily price service.
const (
	InstrumentWTI   = "WTI"
	InstrumentBrent = "BRENT"
)

// Config holds price fetcher settings.
type Config struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
}

// Client fetches WTI and Brent daily close series. It keeps an at-most-one
// snapshot per instrument; a fetch failure inside the snapshot TTL degrades to
// the cached series with a staleness flag instead of failing the run.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Registry

	mu    sync.Mutex
	cache map[string]snapshot

	now func() time.Time
}

type snapshot struct {
	series    []observation
	fetchedAt time.Time
}

type observation struct {
	date  core.Date
	value float64
}

// New creates a new price client.
func New(cfg Config, logger *zap.Logger, m *metrics.Registry) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		// Free-tier services throttle aggressively; keep well under the limit.
		limiter: rate.NewLimiter(rate.Every(15*time.Second), 2),
		logger:  logger,
		metrics: m,
		cache:   make(map[string]snapshot),
		now:     time.Now,
	}
}

type seriesResult struct {
	series []observation
	stale  bool
	err    error
}

// FetchPrices retrieves a trailing window of daily closes ending at endDate.
// The two instruments are fetched in parallel and inner-joined on date. The
// returned flag reports whether any instrument came from a stale snapshot.
func (c *Client) FetchPrices(ctx context.Context, endDate core.Date, lookbackDays int) ([]core.PricePoint, bool, error) {
	results := make(map[string]seriesResult, 2)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, instrument := range []string{InstrumentWTI, InstrumentBrent} {
		wg.Add(1)
		go func(instrument string) {
			defer wg.Done()
			series, stale, err := c.instrumentSeries(ctx, instrument)
			mu.Lock()
			results[instrument] = seriesResult{series: series, stale: stale, err: err}
			mu.Unlock()
		}(instrument)
	}
	wg.Wait()

	wti := results[InstrumentWTI]
	brent := results[InstrumentBrent]
	if wti.err != nil {
		return nil, false, wti.err
	}
	if brent.err != nil {
		return nil, false, brent.err
	}

	start := endDate.AddDays(-lookbackDays)
	points := innerJoin(wti.series, brent.series, start, endDate)
	if len(points) == 0 {
		return nil, false, core.WrapError(core.ErrUpstreamUnavailable,
			fmt.Errorf("no overlapping price observations in [%s, %s]", start, endDate))
	}

	return points, wti.stale || brent.stale, nil
}

// instrumentSeries fetches one instrument, falling back to the cached
// snapshot when the upstream fails or throttles.
func (c *Client) instrumentSeries(ctx context.Context, instrument string) ([]observation, bool, error) {
	series, err := c.fetch(ctx, instrument)
	if err == nil {
		c.metrics.PriceRequest(instrument, "ok")
		c.storeSnapshot(instrument, series)
		return series, false, nil
	}

	c.metrics.PriceRequest(instrument, "failed")
	c.logger.Warn("price fetch failed",
		zap.String("instrument", instrument),
		zap.Error(err),
	)

	if cached, ok := c.loadSnapshot(instrument); ok {
		c.metrics.PriceCacheHit(instrument, "stale")
		c.logger.Warn("serving stale price snapshot",
			zap.String("instrument", instrument),
		)
		return cached, true, nil
	}

	return nil, false, core.WrapError(core.ErrUpstreamUnavailable, err)
}

func (c *Client) storeSnapshot(instrument string, series []observation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[instrument] = snapshot{series: series, fetchedAt: c.now()}
}

func (c *Client) loadSnapshot(instrument string) ([]observation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.cache[instrument]
	if !ok || c.now().Sub(snap.fetchedAt) > c.cfg.CacheTTL {
		return nil, false
	}
	// Snapshot readers get a copy; the cache stays single-writer.
	out := make([]observation, len(snap.series))
	copy(out, snap.series)
	return out, true
}

// serviceResponse is the daily price service payload. A throttled request
// carries a marker string in one of the top-level note fields instead of data.
type serviceResponse struct {
	Data []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"data"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

func (c *Client) fetch(ctx context.Context, instrument string) ([]observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/query?function=%s&interval=daily&apikey=%s",
		c.cfg.BaseURL, instrument, c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", instrument, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status for %s: %d", instrument, resp.StatusCode)
	}

	var payload serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", instrument, err)
	}

	// Rate limiting is reported in-band with HTTP 200; treat as soft failure.
	if payload.Note != "" || payload.Information != "" {
		return nil, fmt.Errorf("%s request throttled by upstream", instrument)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("empty %s series", instrument)
	}

	series := make([]observation, 0, len(payload.Data))
	for _, item := range payload.Data {
		date, err := core.ParseDate(item.Date)
		if err != nil {
			continue
		}
		// Missing observations are published as "."
		value, err := strconv.ParseFloat(item.Value, 64)
		if err != nil || value <= 0 {
			continue
		}
		series = append(series, observation{date: date, value: value})
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no parsable %s observations", instrument)
	}

	return series, nil
}

// innerJoin merges two instrument series on date, restricted to [start, end],
// sorted ascending.
func innerJoin(wti, brent []observation, start, end core.Date) []core.PricePoint {
	brentByDate := make(map[core.Date]float64, len(brent))
	for _, obs := range brent {
		brentByDate[obs.date] = obs.value
	}

	var points []core.PricePoint
	for _, obs := range wti {
		if obs.date.Before(start) || obs.date.After(end) {
			continue
		}
		brentClose, ok := brentByDate[obs.date]
		if !ok {
			continue
		}
		points = append(points, core.PricePoint{
			Date:       obs.date,
			WTIClose:   obs.value,
			BrentClose: brentClose,
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	return points
}
