package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/race-evolution/internal/evolved"
	"github.com/GoSim-25-26J-441/race-evolution/internal/storage"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/config"
	"github.com/GoSim-25-26J-441/race-evolution/pkg/logger"
)

func main() {
	var configPath string
	var grpcAddr string
	var httpAddr string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to config YAML (defaults are used when empty)")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides config)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if grpcAddr != "" {
		cfg.Server.GRPCAddr = grpcAddr
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger.SetDefault(logger.NewText(cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenBadgerStore(cfg.Store.BadgerDir)
	if err != nil {
		logger.Error("failed to open run store", "dir", cfg.Store.BadgerDir, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close run store", "error", err)
		}
	}()

	store := evolved.NewRunStore(db)
	restored, err := store.Restore()
	if err != nil {
		logger.Error("failed to restore runs", "error", err)
		os.Exit(1)
	}
	logger.Info("run store ready", "dir", cfg.Store.BadgerDir, "restored_runs", restored)

	hub := evolved.NewHub()
	opts := []evolved.ExecutorOption{
		evolved.WithBroadcaster(hub),
		evolved.WithNotifier(evolved.NewNotifier()),
	}
	if cfg.Events.NATSURL != "" {
		pub, err := evolved.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			logger.Error("failed to set up NATS publishing", "url", cfg.Events.NATSURL, "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		opts = append(opts, evolved.WithPublisher(pub))
		logger.Info("publishing run events", "url", cfg.Events.NATSURL, "subject", cfg.Events.Subject)
	}
	executor := evolved.NewRunExecutor(store, opts...)

	// TODO: Configure gRPC server security (e.g., TLS, authentication, rate limiting)
	// before using this service in a production environment.
	grpcServer := grpc.NewServer()
	evolved.RegisterEvolutionServiceServer(grpcServer, evolved.NewEvolutionGRPCServer(store, executor, *cfg))

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen for gRPC", "addr", cfg.Server.GRPCAddr, "error", err)
		stop()
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           evolved.NewHTTPServer(store, executor, hub, *cfg).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if err := executor.Shutdown(shutdownCtx); err != nil {
		logger.Error("runs did not stop in time", "error", err)
	}
}
