package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/swipeless/payment-relay/internal/adapter/grpc"
	"github.com/swipeless/payment-relay/internal/adapter/httpapi"
	badgerrepo "github.com/swipeless/payment-relay/internal/adapter/repository/badger"
	"github.com/swipeless/payment-relay/internal/adapter/repository/memory"
	"github.com/swipeless/payment-relay/internal/adapter/repository/postgres"
	"github.com/swipeless/payment-relay/internal/adapter/terminal"
	wsadapter "github.com/swipeless/payment-relay/internal/adapter/websocket"
	"github.com/swipeless/payment-relay/internal/config"
	"github.com/swipeless/payment-relay/internal/domain"
	"github.com/swipeless/payment-relay/internal/logging"
	"github.com/swipeless/payment-relay/internal/metrics"
	"github.com/swipeless/payment-relay/internal/usecase/payment"
	"github.com/swipeless/payment-relay/internal/usecase/registrar"
	"github.com/swipeless/payment-relay/internal/usecase/relay"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and gRPC endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

// sessionStore is a repository that can also report readiness
type sessionStore struct {
	repo  domain.SessionRepository
	ping  httpapi.Pinger
	close func() error
}

// openStore selects the session store backend.
// Background sweeping or GC runs until ctx is cancelled.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*sessionStore, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		db, err := badgerrepo.NewDB(cfg.BadgerPath, logger)
		if err != nil {
			return nil, err
		}
		db.StartGC(ctx, cfg.SweepInterval)
		return &sessionStore{repo: badgerrepo.NewSessionRepository(db), ping: db, close: db.Close}, nil

	case config.BackendPostgres:
		db, err := postgres.NewDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		repo := postgres.NewSessionRepository(db)
		repo.StartSweeper(ctx, cfg.SweepInterval, logger)
		return &sessionStore{repo: repo, ping: db, close: db.Close}, nil

	default:
		store := memory.NewSessionStore(logger)
		store.StartSweeper(ctx, cfg.SweepInterval)
		return &sessionStore{repo: store, ping: store, close: func() error { return nil }}, nil
	}
}

func serve(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// 1. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 2. Session store
	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		cancel()
		if err := store.close(); err != nil {
			logger.Error("failed to close store", "err", err)
		}
	}()
	logger.Info("session store ready", slog.String("backend", cfg.Store.Backend))

	// 3. Terminal gateway client
	gateway, err := terminal.NewClient(terminal.Config{
		URL:      cfg.Terminal.URL,
		PosName:  cfg.Terminal.PosName,
		VendorID: cfg.Terminal.VendorID,
		Timeout:  cfg.Terminal.Timeout,
	}, nil)
	if err != nil {
		return err
	}

	// 4. Use cases
	paymentService := payment.NewPaymentService(gateway, payment.Settings{
		Credentials: domain.Credentials{User: cfg.Terminal.User, Key: cfg.Terminal.Key},
		Currency:    cfg.Terminal.Currency,
		StationID:   cfg.Terminal.StationID,
	}, logger, m)
	registrarService := registrar.NewRegistrarService(store.repo, cfg.Store.RecordTTL, logger, m)
	hub := wsadapter.NewHub(registrarService, wsadapter.Options{AllowedOrigins: cfg.AllowedOrigins}, logger, m)
	relayService := relay.NewRelayService(store.repo, hub, cfg.DuplicatePolicy(), cfg.Relay.PushTimeout, logger, m)

	// 5. HTTP server
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Payments: paymentService,
			Relay:    relayService,
			Store:    store.ping,
			Sessions: hub,
			Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. gRPC server
	interceptors := []grpclib.UnaryServerInterceptor{grpcadapter.LoggingInterceptor(logger)}
	if cfg.APIToken != "" {
		interceptors = append(interceptors, grpcadapter.AuthInterceptor(cfg.APIToken))
	} else {
		logger.Warn("api_token is empty, gRPC calls are not authenticated")
	}
	grpcServer := grpclib.NewServer(grpclib.ChainUnaryInterceptor(interceptors...))
	grpcadapter.RegisterPaymentServiceServer(grpcServer, grpcadapter.NewServer(paymentService))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	serveErr := make(chan error, 2)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// Graceful shutdown
	err = waitForShutdown(ctx, serveErr, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	hub.Close()
	grpcServer.GracefulStop()
	logger.Info("servers stopped")

	return err
}

// waitForShutdown blocks until SIGTERM or SIGINT, a server failure, or ctx cancellation
func waitForShutdown(ctx context.Context, serveErr <-chan error, logger *slog.Logger) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", slog.String("signal", sig.String()))
		return nil
	case err := <-serveErr:
		logger.Error("server failed", "err", err)
		return err
	case <-ctx.Done():
		return nil
	}
}
