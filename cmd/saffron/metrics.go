package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Veraticus/saffron/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func serveMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose Prometheus metrics over HTTP until interrupted",
		RunE:  runServeMetrics,
	}
	cmd.Flags().String("addr", "", "listen address (overrides metrics.addr)")
	return cmd
}

func runServeMetrics(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	addr := cfg.Metrics.Addr
	if a, _ := cmd.Flags().GetString("addr"); a != "" {
		addr = a
	}

	srv, err := startMetricsServer(addr)
	if err != nil {
		return err
	}
	<-cmd.Context().Done()
	return srv.stop()
}

type metricsServer struct {
	srv  *http.Server
	done chan error
	addr string
}

// startMetricsServer listens on addr and serves /metrics and /healthz in
// the background.
func startMetricsServer(addr string) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	m := &metricsServer{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		done: make(chan error, 1),
		addr: ln.Addr().String(),
	}
	go func() {
		m.done <- m.srv.Serve(ln)
	}()
	slog.Info("Serving metrics", "addr", m.addr)
	return m, nil
}

func (m *metricsServer) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	if err := <-m.done; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
