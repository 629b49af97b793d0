package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"procnet/classifier"
	"procnet/logging"
	"procnet/snapshot"
)

const namespace = "procnet"

// Exporter 把快照结果暴露成 Prometheus 指标
type Exporter struct {
	registry *prometheus.Registry

	processBytes     *prometheus.GaugeVec
	processSpeed     *prometheus.GaugeVec
	droppedTotal     prometheus.Counter
	snapshotDuration prometheus.Histogram
}

var _ snapshot.Sink = (*Exporter)(nil)

// NewExporter stats 和 connections 在采集时回调，可为空
func NewExporter(stats func() classifier.Stats, connections func() int) *Exporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	e := &Exporter{
		registry: reg,
		processBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "process_bytes",
				Help:      "Cumulative bytes attributed to process",
			},
			[]string{"pid", "name", "direction"},
		),
		processSpeed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "process_speed_bytes",
				Help:      "Bytes attributed to process during the last snapshot period",
			},
			[]string{"pid", "name", "direction"},
		),
		droppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_dropped_total",
				Help:      "Process ids dropped from snapshots",
			},
		),
		snapshotDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_duration_seconds",
				Help:      "Snapshot computation duration seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
	}

	if stats != nil {
		for _, v := range []classifier.Verdict{classifier.Ignored, classifier.Upload, classifier.Download} {
			v := v
			factory.NewCounterFunc(
				prometheus.CounterOpts{
					Namespace:   namespace,
					Name:        "packets_total",
					Help:        "Captured packets by classification verdict",
					ConstLabels: prometheus.Labels{"verdict": v.String()},
				},
				func() float64 { return float64(stats().Packets[v]) },
			)
			factory.NewCounterFunc(
				prometheus.CounterOpts{
					Namespace:   namespace,
					Name:        "packet_bytes_total",
					Help:        "Captured bytes by classification verdict",
					ConstLabels: prometheus.Labels{"verdict": v.String()},
				},
				func() float64 { return float64(stats().Bytes[v]) },
			)
		}
	}
	if connections != nil {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registry_connections",
				Help:      "Connection keys known to the registry",
			},
			func() float64 { return float64(connections()) },
		)
	}
	return e
}

func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Publish 每个周期重置进程指标，已退出的进程随之消失
func (e *Exporter) Publish(r snapshot.Report) {
	e.processBytes.Reset()
	e.processSpeed.Reset()

	if r.Snapshot != nil {
		for _, entity := range r.Snapshot.Entries {
			pid := strconv.Itoa(int(entity.Pid))
			e.processBytes.WithLabelValues(pid, entity.Name, "upload").Set(float64(entity.TxTotal))
			e.processBytes.WithLabelValues(pid, entity.Name, "download").Set(float64(entity.RxTotal))
			e.processSpeed.WithLabelValues(pid, entity.Name, "upload").Set(float64(entity.TxRate))
			e.processSpeed.WithLabelValues(pid, entity.Name, "download").Set(float64(entity.RxRate))
		}
	}
	e.droppedTotal.Add(float64(r.Dropped))
	e.snapshotDuration.Observe(r.Took.Seconds())
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上提供 /metrics，ctx 结束时关闭
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("metrics exporter listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "serve metrics on %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warnf("shutdown metrics server: %v", err)
	}
	return nil
}
