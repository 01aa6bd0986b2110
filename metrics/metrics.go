// Package metrics exposes the harness counters in Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slog "github.com/vearne/simplelog"
)

const namespace = "wndprobe"

var (
	// PacketsCaptured counts TCP segments appended to the capture log
	PacketsCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "packets_total",
		Help:      "TCP segments captured on the test port.",
	})
	// DecodeFailures counts frames that carried no usable TCP layer
	DecodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "decode_failures_total",
		Help:      "Frames that could not be decoded into a TCP segment.",
	})
	// LogEvictions counts packets pushed out of the bounded capture log
	LogEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "log_evictions_total",
		Help:      "Packets evicted from the capture log.",
	})

	SegmentsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "send",
		Name:      "segments_total",
		Help:      "Segments emitted, by flag combination.",
	}, []string{"flags"})
	SendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "send",
		Name:      "errors_total",
		Help:      "Segment emissions that failed.",
	})

	// Sessions counts finished sessions by outcome
	Sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "sessions_total",
		Help:      "Finished sessions, by outcome.",
	}, []string{"outcome"})
	PhaseTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "phase_timeouts_total",
		Help:      "Waits that expired, by phase.",
	}, []string{"phase"})
	UnackedChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "unacked_chunks_total",
		Help:      "Gated response chunks whose ack never arrived.",
	})

	// ReportsDropped counts session reports the emitter could not queue
	ReportsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "report",
		Name:      "dropped_total",
		Help:      "Session reports dropped because the emitter queue was full.",
	})
)

// Registry 自定义 registry，避免污染全局
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	Registry.MustRegister(PacketsCaptured, DecodeFailures, LogEvictions,
		SegmentsSent, SendErrors, Sessions, PhaseTimeouts, UnackedChunks, ReportsDropped)
}

// Server serves /metrics until Stop is called
type Server struct {
	httpServer *http.Server
}

// Serve starts the metrics endpoint in the background.
func Serve(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		Registry: Registry,
	}))

	s := &Server{httpServer: &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}}

	go func() {
		slog.Info("[METRICS]listen on %v", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[METRICS]server error, %v", err)
		}
	}()
	return s
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx) // nolint: errcheck
}
