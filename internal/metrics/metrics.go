package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics for the pipeline.
type Registry struct {
	*prometheus.Registry

	// Event fetcher metrics
	bundlesFetched prometheus.Counter
	bundlesSkipped *prometheus.CounterVec
	rowsParsed     prometheus.Counter
	rowsDropped    prometheus.Counter

	// Price fetcher metrics
	priceRequests  *prometheus.CounterVec
	priceCacheHits *prometheus.CounterVec

	// Feature engineering metrics
	valuesClamped prometheus.Counter

	// Pipeline metrics
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	publishes   prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		bundlesFetched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crudecast_event_bundles_fetched_total",
				Help: "Total number of event bundles fetched and parsed",
			},
		),
		bundlesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crudecast_event_bundles_skipped_total",
				Help: "Total number of event bundles skipped",
			},
			[]string{"reason"},
		),
		rowsParsed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crudecast_event_rows_parsed_total",
				Help: "Total number of event rows parsed",
			},
		),
		rowsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crudecast_event_rows_dropped_total",
				Help: "Total number of malformed event rows dropped",
			},
		),
		priceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crudecast_price_requests_total",
				Help: "Total number of price service requests",
			},
			[]string{"instrument", "outcome"},
		),
		priceCacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crudecast_price_cache_hits_total",
				Help: "Total number of price snapshot cache hits",
			},
			[]string{"instrument", "freshness"},
		),
		valuesClamped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crudecast_feature_values_clamped_total",
				Help: "Total number of non-finite feature values clamped to zero",
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crudecast_pipeline_runs_total",
				Help: "Total number of pipeline runs by terminal state",
			},
			[]string{"state"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crudecast_pipeline_run_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		publishes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crudecast_datasets_published_total",
				Help: "Total number of processed datasets published",
			},
		),
	}

	reg.MustRegister(
		r.bundlesFetched,
		r.bundlesSkipped,
		r.rowsParsed,
		r.rowsDropped,
		r.priceRequests,
		r.priceCacheHits,
		r.valuesClamped,
		r.runsTotal,
		r.runDuration,
		r.publishes,
	)

	return r
}

// BundleFetched increments the fetched-bundle counter.
func (r *Registry) BundleFetched() {
	if r == nil {
		return
	}
	r.bundlesFetched.Inc()
}

// BundleSkipped records a skipped bundle with its reason.
func (r *Registry) BundleSkipped(reason string) {
	if r == nil {
		return
	}
	r.bundlesSkipped.WithLabelValues(reason).Inc()
}

// RowsParsed adds to the parsed-row counter.
func (r *Registry) RowsParsed(n int) {
	if r == nil {
		return
	}
	r.rowsParsed.Add(float64(n))
}

// RowsDropped adds to the dropped-row counter.
func (r *Registry) RowsDropped(n int) {
	if r == nil {
		return
	}
	r.rowsDropped.Add(float64(n))
}

// PriceRequest records a price service request outcome.
func (r *Registry) PriceRequest(instrument, outcome string) {
	if r == nil {
		return
	}
	r.priceRequests.WithLabelValues(instrument, outcome).Inc()
}

// PriceCacheHit records a cache hit, fresh or stale.
func (r *Registry) PriceCacheHit(instrument, freshness string) {
	if r == nil {
		return
	}
	r.priceCacheHits.WithLabelValues(instrument, freshness).Inc()
}

// ValuesClamped adds to the clamped-value counter.
func (r *Registry) ValuesClamped(n int) {
	if r == nil {
		return
	}
	r.valuesClamped.Add(float64(n))
}

// RunFinished records a terminal run state and duration.
func (r *Registry) RunFinished(state string, seconds float64) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(state).Inc()
	r.runDuration.Observe(seconds)
}

// DatasetPublished increments the publish counter.
func (r *Registry) DatasetPublished() {
	if r == nil {
		return
	}
	r.publishes.Inc()
}
