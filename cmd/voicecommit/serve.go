// cmd/voicecommit/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voice-commit/internal/api"
	"voice-commit/internal/codegen"
	"voice-commit/internal/config"
	"voice-commit/internal/coordinator"
	"voice-commit/internal/credentials"
	"voice-commit/internal/devicesync"
	"voice-commit/internal/github"
	"voice-commit/internal/model"
	"voice-commit/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(role, short string) *cobra.Command {
	return &cobra.Command{
		Use:   role,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), role)
		},
	}
}

func run(parent context.Context, role string) error {
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler).With("role", role)
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(role)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully")

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus := transport.NewBus(64)

	durable, closeDurable, err := openDurableContext(ctx, cfg, bus, logger)
	if err != nil {
		return err
	}
	defer closeDurable()

	live := transport.NewLivePeer(cfg.PeerURL, cfg.PairingSecret, cfg.LiveTimeout)
	heartbeat := transport.NewHeartbeat(live, bus, logger, cfg.PeerCheckInterval)

	vault := credentials.NewVault(credentials.NewFileStore(cfg.CredentialsDir, cfg.CredentialsService))
	channel := devicesync.NewChannel(role, live, durable, vault, logger)

	ghClient, err := github.NewClient(cfg.GithubAPIURL, cfg.GithubUserAgent, logger)
	if err != nil {
		return fmt.Errorf("failed to create GitHub client: %w", err)
	}

	deps := api.Deps{
		Inbox:         bus,
		Account:       devicesync.NewAccount(channel, ghClient),
		SyncTimeout:   cfg.LiveTimeout,
		PairingSecret: cfg.PairingSecret,
	}
	if role == model.RoleSatellite {
		coord, err := newCoordinator(cfg, channel, ghClient, logger)
		if err != nil {
			return err
		}
		channel.Subscribe(coord)
		deps.Coordinator = coord
	}

	if err := channel.Load(ctx); err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	router, err := api.NewRouter(deps, logger)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	server := &http.Server{Addr: cfg.ListenAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		heartbeat.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return durable.Run(gctx)
	})
	g.Go(func() error {
		return channel.Run(gctx, bus.Events())
	})
	g.Go(func() error {
		channel.Announce(gctx)
		return nil
	})

	logger.Info("Application started. Waiting for shutdown signal...")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func newCoordinator(cfg *config.Config, channel *devicesync.Channel, engine *github.Client, logger *slog.Logger) (*coordinator.Coordinator, error) {
	format, err := codegen.FormatFor(cfg.GeneratorProvider)
	if err != nil {
		return nil, err
	}
	keys := codegen.KeyChain{channel, codegen.StaticKey(cfg.GeneratorAPIKey)}
	backend := codegen.NewHTTPBackend(format, cfg.GeneratorEndpoint, cfg.GeneratorModel,
		cfg.GeneratorMaxTokens, cfg.GeneratorTemperature, cfg.GeneratorTimeout, keys)
	pipeline := codegen.NewPipeline(backend, logger.With("component", "codegen"), cfg.DemoMode)
	return coordinator.New(pipeline, engine, logger), nil
}

func openDurableContext(ctx context.Context, cfg *config.Config, bus *transport.Bus, logger *slog.Logger) (transport.DurableContext, func(), error) {
	if cfg.DurableBackend != config.DurablePostgres {
		fc, err := transport.NewFileContext(cfg.DurableDir, cfg.Role, bus, logger)
		return fc, func() {}, err
	}

	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	pc, err := transport.NewPGContext(dbpool, cfg.Role, bus, logger)
	if err != nil {
		dbpool.Close()
		return nil, nil, err
	}
	return pc, dbpool.Close, nil
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}
