package models

import (
	"strconv"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	resultLabel  = "result"
	cachedLabel  = "cached"
)

var (
	tilingCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tiling_count",
		Help: "The number of registered tilings.",
	})

	tilingCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tiling_count_total",
		Help: "The total number of registered tilings.",
	})

	visibilityQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "visibility_query_latency",
		Help:    "The time to compute the tile visibility of a head orientation.",
		Buckets: prometheus.ExponentialBuckets(0.000005, 2, 14),
	}, []string{cachedLabel})

	visibilityQueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_query_errors",
		Help: "The errors that occured while computing a tile visibility.",
	}, []string{errTypeLabel})

	visibilityCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "visibility_cache_lookups",
		Help: "The number of visibility cache lookups.",
	}, []string{resultLabel})
)

func instrumentAddTiling() {
	tilingCount.Inc()
	tilingCountTotal.Inc()
}

func instrumentRemoveTiling() {
	tilingCount.Dec()
}

func instrumentVisibilityQuery(start time.Time, cached bool, err error) {
	if err != nil {
		visibilityQueryErrors.
			With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
			Inc()
		return
	}

	visibilityQueryLatency.
		With(prometheus.Labels{cachedLabel: strconv.FormatBool(cached)}).
		Observe(time.Since(start).Seconds())
}

func instrumentCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	visibilityCacheLookups.
		With(prometheus.Labels{resultLabel: result}).
		Inc()
}
