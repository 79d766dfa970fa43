package watch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/proxyrunner/internal/metrics"
	"git.home.luguber.info/inful/proxyrunner/internal/pipeline"
)

// reportSource yields the most recent launch report; satisfied by the
// Supervisor.
type reportSource interface {
	Last() *pipeline.LaunchReport
}

// StatusServer exposes the daemon over HTTP: Prometheus metrics, a liveness
// probe, and the last launch report.
type StatusServer struct {
	addr   string
	bound  string
	srv    *http.Server
	logger *slog.Logger
}

// NewStatusServer wires the endpoints. Pass the registry backing the
// daemon's recorder so /metrics scrapes live counters.
func NewStatusServer(addr string, reg *prom.Registry, source reportSource, logger *slog.Logger) *StatusServer {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		report := source.Last()
		if report == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no launch completed yet"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			logger.Warn("Status encode failed", "error", err)
		}
	})

	return &StatusServer{
		addr: addr,
		srv: &http.Server{
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener and serves in the background. Bind failures are
// returned synchronously so a bad address fails daemon startup.
func (s *StatusServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.bound = ln.Addr().String()
	s.logger.Info("Status server listening", "addr", s.bound)
	go func() {
		if serveErr := s.srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("Status server failed", "error", serveErr)
		}
	}()
	return nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (s *StatusServer) Addr() string {
	if s.bound != "" {
		return s.bound
	}
	return s.addr
}

// Stop drains and shuts the server down.
func (s *StatusServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
