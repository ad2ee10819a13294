package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"encodesync/internal/assets"
	"encodesync/internal/broadcast"
	"encodesync/internal/config"
	"encodesync/internal/logging"
	"encodesync/internal/logs"
	"encodesync/internal/monitor"
	"encodesync/internal/notifications"
	"encodesync/internal/services"
	"encodesync/internal/submit"
	"encodesync/internal/webhook"
)

// Submitter starts and cancels encoding jobs.
type Submitter interface {
	Submit(ctx context.Context, assetID, sourceKey string) (string, error)
	Cancel(ctx context.Context, assetID string) (string, error)
}

// Dependencies are the components the daemon runs and serves.
type Dependencies struct {
	Store     *assets.Store
	Monitor   *monitor.Monitor
	Submitter Submitter
	Hub       *broadcast.Hub
	Webhook   *webhook.Handler
	Notifier  notifications.Service
	// Broadcast describes where snapshots are published, for status output.
	Broadcast string
}

// Daemon owns the monitor and API server lifecycle and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Dependencies
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Counts       map[assets.Status]int
	Attention    int
	Watching     []monitor.Watch
	Broadcast    string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Monitor == nil || deps.Submitter == nil {
		return nil, errors.New("daemon requires config, store, monitor, and submitter")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(config.Notifications{})
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, resumes monitoring of in-flight jobs and
// starts serving the API and webhook.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another encodesync daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		d.deps.Monitor.Stop()
		_ = d.lock.Unlock()
		return err
	}
	if err := d.deps.Monitor.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start monitor: %w", err))
	}
	resumed, err := d.deps.Monitor.Resume(runCtx)
	if err != nil {
		return fail(fmt.Errorf("resume monitoring: %w", err))
	}
	if err := d.api.start(runCtx); err != nil {
		return fail(err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("encodesync daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Int("resumed_jobs", resumed),
	)
	return nil
}

// Stop stops polling and the API server and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.deps.Monitor.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("encodesync daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.deps.Store.Close()
}

// Address returns the bound API address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	counts, err := d.deps.Store.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	health, err := d.deps.Store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.deps.Store.Path(),
		LockFilePath: d.lockPath,
		Counts:       counts,
		Attention:    health.NeedsAttention,
		Watching:     d.deps.Monitor.Watching(),
		Broadcast:    d.deps.Broadcast,
	}, nil
}

// ListAssets returns assets filtered by optional statuses.
func (d *Daemon) ListAssets(ctx context.Context, statuses []assets.Status) ([]*assets.Asset, error) {
	return d.deps.Store.List(ctx, statuses...)
}

// GetAsset returns an asset or a wrapped ErrNotFound.
func (d *Daemon) GetAsset(ctx context.Context, id string) (*assets.Asset, error) {
	asset, err := d.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "get asset", fmt.Sprintf("asset %q not found", id), nil)
	}
	return asset, nil
}

// CreateAsset records a new draft asset. An empty id is generated.
func (d *Daemon) CreateAsset(ctx context.Context, id, title, sourceKey string) (*assets.Asset, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	sourceKey = strings.TrimSpace(sourceKey)
	if sourceKey != "" && !submit.SupportedExtension(sourceKey) {
		return nil, services.Wrap(services.ErrValidation, "daemon", "create asset",
			fmt.Sprintf("unsupported source container %q", sourceKey), nil)
	}
	asset, err := d.deps.Store.Create(ctx, &assets.Asset{ID: id, Title: title, SourceKey: sourceKey})
	if err != nil {
		return nil, err
	}
	logging.WithContext(services.WithAssetID(ctx, id), d.logger).Info("asset created",
		logging.String(logging.FieldEventType, "asset_created"),
		logging.String("source_key", sourceKey),
	)
	return asset, nil
}

// Submit starts an encoding job for the asset.
func (d *Daemon) Submit(ctx context.Context, assetID, sourceKey string) (string, error) {
	return d.deps.Submitter.Submit(ctx, assetID, sourceKey)
}

// Cancel cancels the asset's current encoding job.
func (d *Daemon) Cancel(ctx context.Context, assetID string) (string, error) {
	return d.deps.Submitter.Cancel(ctx, assetID)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.deps.Notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// TailLogs reads today's daemon log file. It returns the file path along with
// the lines read.
func (d *Daemon) TailLogs(ctx context.Context, offset int64, lines int, wait time.Duration) (string, logs.TailResult, error) {
	if strings.TrimSpace(d.cfg.Paths.LogDir) == "" {
		return "", logs.TailResult{}, services.Wrap(services.ErrNotFound, "daemon", "tail logs", "log directory not configured", nil)
	}
	path := logging.DailyLogPath(d.cfg.Paths.LogDir, time.Now())
	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Limit: lines, Wait: wait})
	return path, result, err
}
