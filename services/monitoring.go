package services

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// Guard metrics
var (
	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewall_verdicts_total",
			Help: "Classification verdicts by status",
		},
		[]string{"status"},
	)

	blocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewall_blocks_total",
			Help: "Blocking responses emitted",
		},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatewall_notifications_total",
			Help: "Rate limit alert outcomes",
		},
		[]string{"result"},
	)

	retentionDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewall_retention_deleted_total",
			Help: "Event rows removed by retention",
		},
	)

	countCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewall_count_cache_hits_total",
			Help: "Rolling count cache hits",
		},
	)

	countCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatewall_count_cache_misses_total",
			Help: "Rolling count cache misses",
		},
	)
)

// MonitoringService exposes guard metrics on a dedicated prometheus port.
type MonitoringService struct {
	context.DefaultService

	registry *prometheus.Registry
	port     int
	server   *http.Server
}

func (svc MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Configure(ctx *context.Context) error {
	svc.port = DEFAULT_PROMETHEUS_PORT
	if port := os.Getenv("PROMETHEUS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			svc.port = p
		}
	}

	svc.registry = prometheus.NewRegistry()
	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		verdictsTotal,
		blocksTotal,
		notificationsTotal,
		retentionDeletedTotal,
		countCacheHits,
		countCacheMisses,
	)

	return svc.DefaultService.Configure(ctx)
}

func (svc *MonitoringService) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{}))

	svc.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", svc.port),
		Handler: mux,
	}

	go func() {
		log.WithField("port", svc.port).Info("Prometheus metrics listening")
		if err := svc.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()

	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Close()
	}
}
