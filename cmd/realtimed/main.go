// Command realtimed keeps an escrow account's realtime channels open and
// mirrors them into an in-memory store.
//
// It serves /health, /metrics, /debug/store and /debug/notifications on the
// metrics port and logs every new notification in the configured locale.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/escrow-realtime/internal/api"
	"github.com/rickgao/escrow-realtime/internal/auth"
	"github.com/rickgao/escrow-realtime/internal/bridge"
	"github.com/rickgao/escrow-realtime/internal/channel"
	"github.com/rickgao/escrow-realtime/internal/config"
	"github.com/rickgao/escrow-realtime/internal/connection"
	"github.com/rickgao/escrow-realtime/internal/database"
	"github.com/rickgao/escrow-realtime/internal/i18n"
	"github.com/rickgao/escrow-realtime/internal/journal"
	"github.com/rickgao/escrow-realtime/internal/loop"
	"github.com/rickgao/escrow-realtime/internal/metrics"
	"github.com/rickgao/escrow-realtime/internal/store"
	"github.com/rickgao/escrow-realtime/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/realtimed.local.yaml", "path to config file")
	projectID := flag.Int64("project", 0, "open the chat for this project id")
	invite := flag.String("invite", "", "watch payment status for this invite token")
	flag.Parse()

	// Bootstrap logger until the config picks the real one
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting realtimed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, *projectID, *invite, logger); err != nil {
		logger.Error("realtimed failed", "error", err)
		os.Exit(1)
	}

	logger.Info("realtimed stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, projectID int64, invite string, logger *slog.Logger) error {
	tokens, err := auth.NewTokenSource(cfg.API.Token, cfg.API.TokenFile)
	if err != nil {
		return fmt.Errorf("token source: %w", err)
	}

	renderer, err := i18n.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("load locale catalogs: %w", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observers := connection.Observers{metrics.New(registry)}

	// Optional frame journal
	var pool *pgxpool.Pool
	var journalWriter *journal.Writer
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Database.Journal.Host,
			"port", cfg.Database.Journal.Port,
			"database", cfg.Database.Journal.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database.Journal, logger)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		journalWriter = journal.NewWriter(journal.Config{
			InstanceID:    cfg.Instance.ID,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := journalWriter.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := journalWriter.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			journalWriter.Stop(stopCtx)
		}()
		observers = append(observers, journalWriter)
	}

	// Create API client
	apiClient := api.NewClient(
		cfg.API.RestURL,
		tokens,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	userID := cfg.Session.UserID
	if userID == 0 {
		user, err := apiClient.CurrentUser(ctx)
		if err != nil {
			return fmt.Errorf("resolve session user: %w", err)
		}
		userID = user.ID
		logger.Info("session user resolved", "user_id", userID, "username", user.Username)
	}

	// Event loop
	lp := loop.New(logger)
	if err := lp.Start(ctx); err != nil {
		return fmt.Errorf("start event loop: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		lp.Stop(stopCtx)
	}()

	st := store.New(logger)
	session := bridge.NewSession(sessionConfig(cfg, userID, observers, logger), lp, st, tokens, apiClient, logger)
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.Stop()

	if projectID > 0 {
		session.Chat.Open(ctx, projectID)
		session.Chat.SetViewing(true)
	}
	if invite != "" {
		session.Payment.Open(invite)
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: newHandler(handlerDeps{
			store:       st,
			registry:    registry,
			metricsPath: cfg.Metrics.Path,
			renderer:    renderer,
			locale:      cfg.Locale,
			status:      sessionStatus(session),
			journal:     journalWriter,
			db:          pingerOrNil(pool),
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		watchStore(gctx, st, renderer, cfg.Locale, logger)
		return nil
	})

	logger.Info("realtimed running",
		"user_id", userID,
		"project_id", projectID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	err = g.Wait()
	logger.Info("shutting down...")
	return err
}

// sessionConfig maps the YAML settings onto the bridge and its channels.
func sessionConfig(cfg *config.Config, userID int64, observers connection.Observers, logger *slog.Logger) bridge.Config {
	conn := cfg.Connections

	connCfg := connection.DefaultConfig("")
	connCfg.MaxReconnectAttempts = conn.MaxReconnectAttempts
	connCfg.BaseReconnectDelay = conn.ReconnectBaseDelay
	connCfg.HandshakeTimeout = conn.HandshakeTimeout

	clientCfg := connection.DefaultClientConfig()
	clientCfg.HandshakeTimeout = conn.HandshakeTimeout
	clientCfg.WriteTimeout = conn.WriteTimeout
	clientCfg.PingInterval = conn.PingInterval
	clientCfg.PongTimeout = conn.PongTimeout
	clientCfg.ReadLimit = conn.ReadLimit

	bcfg := bridge.DefaultConfig()
	bcfg.UserID = userID
	bcfg.PrefetchTimeout = cfg.Session.PrefetchTimeout
	bcfg.Channel = channel.Config{
		BaseURL:    cfg.API.WSURL,
		Connection: connCfg,
		Dialer:     connection.NewDialer(clientCfg, logger),
		Observer:   observers,
	}
	return bcfg
}

func sessionStatus(s *bridge.Session) func() map[string]bool {
	return func() map[string]bool {
		return map[string]bool{
			channel.NameNotifications: s.NotificationsConnected(),
			channel.NameChat:          s.Chat.Connected(),
			channel.NamePayment:       s.Payment.Connected(),
		}
	}
}

// pingerOrNil keeps a nil pool from becoming a non-nil interface.
func pingerOrNil(pool *pgxpool.Pool) pinger {
	if pool == nil {
		return nil
	}
	return pool
}
