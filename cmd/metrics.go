package cmd

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/infra-sim/infra-sim/sim"
	"github.com/infra-sim/infra-sim/sim/game"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "infrasim_ticks_total",
		Help: "Ticks simulated",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infrasim_requests_total",
		Help: "Requests by kind and final outcome",
	}, []string{"kind", "outcome"})

	availabilityGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infrasim_availability_percent",
		Help: "Availability of the latest tick",
	})

	reputationGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infrasim_reputation",
		Help: "Current reputation score",
	})

	latencyGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "infrasim_avg_latency_ms",
		Help: "Average latency of processed requests in the latest tick",
	})

	providerCost = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "infrasim_provider_cost",
		Help: "Cost incurred per provider in the latest tick",
	}, []string{"provider"})

	serviceLoad = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "infrasim_service_load",
		Help: "Load ratio (offered/capacity) per deployed service",
	}, []string{"service", "provider", "type"})

	gameOvers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infrasim_game_over_total",
		Help: "Games ended, by reason",
	}, []string{"reason"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "infrasim_http_request_duration_seconds",
		Help:    "API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// recordEvent feeds game notifications into the collectors.
func recordEvent(ev game.Event) {
	switch p := ev.Payload.(type) {
	case game.ProcessedPayload:
		for kind, kc := range p.ByKind {
			requestsTotal.WithLabelValues(string(kind), string(sim.StatusProcessed)).Add(float64(kc.Processed))
			requestsTotal.WithLabelValues(string(kind), string(sim.StatusDropped)).Add(float64(kc.Dropped))
			requestsTotal.WithLabelValues(string(kind), string(sim.StatusBlocked)).Add(float64(kc.Blocked))
		}
	case sim.MetricsSnapshot:
		ticksTotal.Inc()
		availabilityGauge.Set(p.Availability)
		reputationGauge.Set(p.Reputation)
		latencyGauge.Set(p.AvgLatencyMs)
	case game.Snapshot:
		for _, sec := range p.Sections {
			providerCost.WithLabelValues(string(sec.Provider)).Set(sec.Cost.InexactFloat64())
		}
		serviceLoad.Reset()
		for _, st := range p.Services {
			serviceLoad.WithLabelValues(st.ID, string(st.Provider), string(st.Type)).Set(st.Load)
		}
	case game.GameOverPayload:
		gameOvers.WithLabelValues(p.Reason).Inc()
	case game.RemovedPayload:
		serviceLoad.DeletePartialMatch(prometheus.Labels{"service": p.ID})
	}
}

// metricsMiddleware observes API latency per route.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpLatency.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}
