package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"github.com/nimbusdesk/console/internal/api"
	"github.com/nimbusdesk/console/internal/authz"
	"github.com/nimbusdesk/console/internal/config"
	"github.com/nimbusdesk/console/internal/directory"
	"github.com/nimbusdesk/console/internal/health"
	"github.com/nimbusdesk/console/internal/metrics"
	"github.com/nimbusdesk/console/internal/notify"
	"github.com/nimbusdesk/console/internal/risk"
	"github.com/nimbusdesk/console/internal/store"
	"github.com/nimbusdesk/console/internal/workflow"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting support console")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Authorization policy — all fail-fast: a console with a broken role
	// hierarchy or action catalog must not come up.
	registry := authz.DefaultRegistry()
	if cfg.RolesPath != "" {
		registry, err = authz.LoadRegistry(cfg.RolesPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.RolesPath).Msg("failed to load role registry")
		}
	}
	resolver := authz.NewResolver(registry)

	catalog := risk.DefaultCatalog()
	if cfg.ActionsPath != "" {
		catalog, err = risk.LoadCatalog(cfg.ActionsPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.ActionsPath).Msg("failed to load action catalog")
		}
	}

	policy := risk.DefaultConfirmationPolicy()
	if cfg.PolicyPath != "" {
		policy, err = risk.LoadConfirmationPolicy(cfg.PolicyPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PolicyPath).Msg("failed to load confirmation policy")
		}
	}

	principals := directory.New()
	if cfg.PrincipalsPath != "" {
		principals, err = directory.Load(cfg.PrincipalsPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PrincipalsPath).Msg("failed to load principal directory")
		}
		logger.Info().Int("principals", principals.Count()).Msg("principal directory loaded")
	} else {
		logger.Warn().Msg("PRINCIPALS_PATH not set — directory is empty, every request will be rejected")
	}

	// Storage
	db, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open store")
	}
	defer db.Close()

	// Metrics & health
	collector := metrics.New()
	checker := health.NewChecker(logger)
	checker.Register("store", health.PingCheck(db))

	// The real remote-control transport plugs in here; until it does, approved
	// actions are acknowledged without touching any machine.
	exec := &simExecutor{logger: logger.With().Str("component", "executor").Logger()}
	logger.Warn().Msg("no agent gateway wired — approved actions are simulated")

	// Slack notifications (optional)
	var notifier notify.Notifier = notify.Nop{}
	if cfg.SlackEnabled() {
		slackAPI := slack.New(cfg.SlackBotToken)
		notifier = notify.NewSlackNotifier(slackAPI, cfg.SlackChannel, logger)
		logger.Info().Str("channel", cfg.SlackChannel).Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack not configured — notifications disabled")
	}

	// Approval workflow
	wf, err := workflow.New(workflow.Options{
		Backend:    db,
		Audit:      db,
		Resolver:   resolver,
		Catalog:    catalog,
		Policy:     policy,
		Principals: principals,
		Executor:   exec,
		Notifier:   notifier,
		Metrics:    collector,
		Window:     cfg.ApprovalWindow,
		ExecLimit:  cfg.ExecTimeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build workflow")
	}

	// Periodic expiry sweep
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
		if n, err := wf.ExpireOverdue(ctx); err != nil {
			logger.Error().Err(err).Msg("expiry sweep failed")
		} else if n > 0 {
			logger.Info().Int("expired", n).Msg("expiry sweep")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.SweepSchedule).Msg("invalid sweep schedule")
	}
	// Audit retention (off unless configured)
	if cfg.AuditRetention > 0 {
		if _, err := sweeper.AddFunc("@daily", func() {
			if _, err := db.PruneAudit(time.Now().Add(-cfg.AuditRetention)); err != nil {
				logger.Error().Err(err).Msg("audit retention sweep failed")
			}
		}); err != nil {
			logger.Fatal().Err(err).Msg("failed to schedule audit retention")
		}
		logger.Info().Dur("window", cfg.AuditRetention).Msg("audit retention enabled")
	}

	sweeper.Start()
	defer sweeper.Stop()

	// HTTP API
	handlers := api.NewHandlers(wf, resolver, catalog, policy, db, checker, logger)
	server := api.NewServer(api.ServerConfig{
		ListenAddr: cfg.ListenAddr,
		AuthConfig: api.AuthConfig{
			Mode:      cfg.AuthMode,
			JWTSecret: cfg.JWTSecret,
		},
		RateLimit:   api.RateLimitConfig{RPS: cfg.RateLimitRPS},
		CORSOrigins: cfg.CORSOriginList(),
	}, handlers, principals, collector, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("API server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}

	logger.Info().Msg("support console stopped")
}

// simExecutor stands in for the remote agent gateway.
type simExecutor struct {
	logger zerolog.Logger
}

func (s *simExecutor) Execute(ctx context.Context, actionID string, params map[string]string) (string, error) {
	s.logger.Info().Str("action", actionID).Msg("simulating action execution")
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return fmt.Sprintf("simulated execution of %s", actionID), nil
}
