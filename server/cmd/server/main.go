package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/wattboard/wattboard/pkg/meterpb"
	"github.com/wattboard/wattboard/server/internal/alerts"
	"github.com/wattboard/wattboard/server/internal/api"
	"github.com/wattboard/wattboard/server/internal/auth"
	"github.com/wattboard/wattboard/server/internal/config"
	"github.com/wattboard/wattboard/server/internal/dashboard"
	"github.com/wattboard/wattboard/server/internal/metrics"
	"github.com/wattboard/wattboard/server/internal/receiver"
	"github.com/wattboard/wattboard/server/internal/store"
	"github.com/wattboard/wattboard/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard UI static files from this directory; leave empty to disable")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.Log.SlogLevel()}))
	slog.SetDefault(logger)

	slog.Info("wattboard-server starting",
		"config", *configPath,
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"buildings", len(cfg.Server.Buildings),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	live, err := dashboard.NewLive(cfg.Server)
	if err != nil {
		slog.Error("invalid dashboard settings", "err", err)
		os.Exit(1)
	}

	// Thresholds, chart geometry and the building registry reload in place.
	// Ports, auth and alert delivery need a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			if err := live.Apply(next.Server); err != nil {
				slog.Error("config reload rejected", "err", err)
				return
			}
			slog.Info("config reloaded", "buildings", len(next.Server.Buildings))
		})
		if err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	st := store.New(cfg.Server.Snapshot.TTL, cfg.Server.Snapshot.HistorySize)
	go st.Run(ctx)

	tracker := alerts.New(cfg.Server.Alerts)
	m := metrics.New(metrics.Gauges{
		ActiveAlerts: tracker.ActiveCount,
		Buildings:    st.Count,
	})

	// gRPC ingest with optional API key authentication.
	interceptor := auth.APIKeyInterceptor(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	meterpb.RegisterReadingServiceServer(grpcSrv, receiver.New(st, live, tracker, m))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC receiver listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	views := dashboard.NewBuilder(live, st, tracker)

	hub := ws.New(views, func() time.Duration { return live.Settings().Charts.BroadcastInterval })
	go hub.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(api.Options{
		Builder: views,
		Tracker: tracker,
		Metrics: m,
		OperatorAuth: auth.HTTPMiddleware(
			cfg.Server.Auth.Mode,
			cfg.Server.Auth.EffectiveHeader(),
			cfg.Server.Auth.Key(),
		),
	}))
	httpMux.Handle("/ws", hub)
	httpMux.Handle("/metrics", m.Handler())

	// The "/" catch-all serves index.html for unknown paths (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := filepath.Join(*uiDir, filepath.Clean("/"+r.URL.Path))
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, filepath.Join(*uiDir, "index.html"))
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("wattboard-server shutting down")
	grpcSrv.GracefulStop()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
