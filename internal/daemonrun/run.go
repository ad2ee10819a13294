// Package daemonrun assembles the encodesync daemon from configuration and
// runs it until the process is signalled.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"encodesync/internal/assets"
	"encodesync/internal/broadcast"
	"encodesync/internal/config"
	"encodesync/internal/daemon"
	"encodesync/internal/logging"
	"encodesync/internal/monitor"
	"encodesync/internal/notifications"
	"encodesync/internal/probe"
	"encodesync/internal/reconcile"
	"encodesync/internal/services/awscfg"
	"encodesync/internal/services/mediaconvert"
	"encodesync/internal/submit"
	"encodesync/internal/webhook"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the encodesync daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logCfg := *cfg
	if opts.LogLevel != "" {
		logCfg.Logging.Level = opts.LogLevel
	}
	logger, err := logging.NewFromConfig(&logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logging.DailyLogPath(cfg.Paths.LogDir, time.Now()))

	pidPath := filepath.Join(cfg.Paths.DataDir, "encodesyncd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	d, cleanup, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("daemon assembly failed", logging.Error(err))
		return err
	}
	defer cleanup()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, api_bind and database access"),
			logging.String(logging.FieldImpact, "no jobs are tracked"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("encodesync daemon shutting down")
	return nil
}

// Build wires every component the daemon runs. The returned cleanup closes
// the daemon, the asset store and the broadcast connection.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, func(), error) {
	awsCfg, err := awscfg.Load(ctx, cfg.AWS)
	if err != nil {
		return nil, nil, err
	}

	store, err := assets.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open asset store: %w", err)
	}

	hub := broadcast.NewHub()
	broadcaster := broadcast.Multi{hub}
	describe := "in-process"
	var natsConn *broadcast.NATS
	if cfg.Broadcast.NATSURL != "" {
		natsConn, err = broadcast.ConnectNATS(cfg.Broadcast.NATSURL, cfg.Broadcast.ChannelPrefix, logger)
		if err != nil {
			// Live updates degrade to the in-process hub; lifecycle state is unaffected.
			logging.WarnWithContext(logger, "nats unavailable", "broadcast_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check broadcast.nats_url"),
				logging.String(logging.FieldImpact, "status snapshots only reach SSE subscribers"),
			)
		} else {
			broadcaster = append(broadcaster, natsConn)
			describe = "nats " + cfg.Broadcast.NATSURL
		}
	}

	notifier := notifications.NewService(cfg.Notifications)
	encoder := mediaconvert.New(cfg.AWS, awsCfg, logger)
	prober := probe.New(probe.NewS3Client(awsCfg, cfg.Storage), cfg, logger)

	rec := reconcile.New(store, broadcaster, cfg.CommitTimeout(), logger)
	mon := monitor.New(cfg.PollSchedule(), monitor.Dependencies{
		Jobs:       encoder,
		Probe:      prober,
		Reconciler: rec,
		Assets:     store,
		Alerts:     notifier,
	}, logger)
	rec.AddListener(mon)
	rec.AddListener(notifications.NewListener(notifier, logger))

	sub := submit.New(cfg, submit.Dependencies{
		Encoder:    encoder,
		Assets:     store,
		Reconciler: rec,
		Monitor:    mon,
	}, logger)

	var verifier webhook.SignatureVerifier
	if cfg.Webhook.VerifySignatures {
		verifier = webhook.NewVerifier(webhook.HTTPCertFetcher{Client: &http.Client{Timeout: 10 * time.Second}})
	}
	hook := webhook.NewHandler(cfg.Webhook, rec, verifier, newConfirmer(cfg.Webhook.ConfirmMode, awsCfg), logger)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:     store,
		Monitor:   mon,
		Submitter: sub,
		Hub:       hub,
		Webhook:   hook,
		Notifier:  notifier,
		Broadcast: describe,
	}, logger)
	if err != nil {
		store.Close()
		if natsConn != nil {
			natsConn.Close()
		}
		return nil, nil, fmt.Errorf("create daemon: %w", err)
	}

	cleanup := func() {
		if err := d.Close(); err != nil {
			logger.Warn("closing asset store failed", logging.Error(err))
		}
		if natsConn != nil {
			natsConn.Close()
		}
	}
	return d, cleanup, nil
}

func newConfirmer(mode string, awsCfg aws.Config) webhook.Confirmer {
	switch mode {
	case "url":
		return webhook.URLConfirmer{Client: &http.Client{Timeout: 10 * time.Second}}
	default:
		return webhook.APIConfirmer{API: sns.NewFromConfig(awsCfg)}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
