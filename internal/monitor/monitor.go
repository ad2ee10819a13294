package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"encodesync/internal/assets"
	"encodesync/internal/config"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/reconcile"
	"encodesync/internal/services"
	"encodesync/internal/services/mediaconvert"
)

// JobQuerier reads encoder job state.
type JobQuerier interface {
	GetJobStatus(ctx context.Context, jobID string) (mediaconvert.JobStatus, error)
}

// Prober looks for finished outputs in storage.
type Prober interface {
	Check(ctx context.Context, asset *assets.Asset) (events.Event, bool, error)
}

// Reconciler is the subset of reconcile.Reconciler the monitor drives.
type Reconciler interface {
	Apply(ctx context.Context, event events.Event) (reconcile.Outcome, error)
	FlagAttention(ctx context.Context, assetID, jobID, reason string) (reconcile.Outcome, error)
}

// AssetSource loads asset records.
type AssetSource interface {
	Get(ctx context.Context, id string) (*assets.Asset, error)
	ListWatchable(ctx context.Context) ([]*assets.Asset, error)
}

// Alerter tells an operator an asset needs a look.
type Alerter interface {
	NotifyAttention(ctx context.Context, asset *assets.Asset, reason string) error
}

// Dependencies wires the monitor to its collaborators.
type Dependencies struct {
	Jobs       JobQuerier
	Probe      Prober
	Reconciler Reconciler
	Assets     AssetSource
	Alerts     Alerter
}

// Watch is the polling state of one asset.
type Watch struct {
	AssetID    string    `json:"asset_id"`
	JobID      string    `json:"job_id"`
	Attempts   int       `json:"attempts"`
	NotFound   int       `json:"not_found"`
	LastStatus string    `json:"last_status,omitempty"`
	ArmedAt    time.Time `json:"armed_at"`
	NextCheck  time.Time `json:"next_check"`
}

// Monitor polls the encoder for armed assets.
type Monitor struct {
	deps     Dependencies
	schedule config.PollSchedule
	logger   *slog.Logger

	mu        sync.Mutex
	watches   map[string]*Watch
	scheduler *Scheduler
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs a stopped monitor.
func New(schedule config.PollSchedule, deps Dependencies, logger *slog.Logger) *Monitor {
	return &Monitor{
		deps:     deps,
		schedule: schedule,
		logger:   logging.NewComponentLogger(logger, "monitor"),
		watches:  make(map[string]*Watch),
	}
}

// Start enables polling and schedules any watches armed while stopped.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("monitor already running")
	}
	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.scheduler = NewScheduler()
	m.running = true
	for _, w := range m.watches {
		m.scheduleLocked(w.AssetID, w.JobID, m.schedule.InitialDelay)
	}
	return nil
}

// Stop cancels pending timers and waits for in-flight checks.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.scheduler.Stop()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Resume arms every processing asset that has a job id.
func (m *Monitor) Resume(ctx context.Context) (int, error) {
	watchable, err := m.deps.Assets.ListWatchable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list watchable assets: %w", err)
	}
	for _, asset := range watchable {
		m.Arm(asset.ID, asset.JobID)
	}
	if len(watchable) > 0 {
		m.logger.Info("resumed polling", logging.Int("assets", len(watchable)))
	}
	return len(watchable), nil
}

// Arm starts (or restarts) polling an asset's job.
func (m *Monitor) Arm(assetID, jobID string) {
	if assetID == "" || jobID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches[assetID] = &Watch{AssetID: assetID, JobID: jobID, ArmedAt: time.Now().UTC()}
	if m.running {
		m.scheduleLocked(assetID, jobID, m.schedule.InitialDelay)
	}
	m.logger.Debug("polling armed",
		logging.String(logging.FieldAssetID, assetID),
		logging.String(logging.FieldJobID, jobID),
	)
}

// Disarm stops polling an asset. It reports whether a watch existed.
func (m *Monitor) Disarm(assetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disarmLocked(assetID)
}

func (m *Monitor) disarmLocked(assetID string) bool {
	_, ok := m.watches[assetID]
	delete(m.watches, assetID)
	if m.scheduler != nil {
		m.scheduler.Cancel(assetID)
	}
	return ok
}

// Watching returns a snapshot of every active watch ordered by asset id.
func (m *Monitor) Watching() []Watch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Watch, 0, len(m.watches))
	for _, w := range m.watches {
		snapshot := *w
		if m.scheduler != nil {
			if due, ok := m.scheduler.Due(w.AssetID); ok {
				snapshot.NextCheck = due.UTC()
			}
		}
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}

// OnTransition implements reconcile.Listener.
func (m *Monitor) OnTransition(_ context.Context, t reconcile.Transition) {
	if t.Asset == nil || !t.Asset.Status.IsTerminal() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.watches[t.Asset.ID]; ok && w.JobID == t.Asset.JobID {
		m.disarmLocked(t.Asset.ID)
		m.logger.Debug("polling disarmed on terminal state",
			logging.String(logging.FieldAssetID, t.Asset.ID),
			logging.String("status", string(t.Asset.Status)),
		)
	}
}

func (m *Monitor) scheduleLocked(assetID, jobID string, delay time.Duration) {
	m.scheduler.Schedule(assetID, delay, func() { m.tick(assetID, jobID) })
}

// reschedule re-arms only if the watch still belongs to jobID.
func (m *Monitor) reschedule(assetID, jobID string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if w, ok := m.watches[assetID]; ok && w.JobID == jobID {
		m.scheduleLocked(assetID, jobID, delay)
	}
}

func (m *Monitor) finish(assetID, jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.watches[assetID]; ok && w.JobID == jobID {
		m.disarmLocked(assetID)
	}
}

// begin claims a tick. It returns false for a disarmed or re-armed watch.
func (m *Monitor) begin(assetID, jobID string) (context.Context, Watch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watches[assetID]
	if !m.running || !ok || w.JobID != jobID {
		return nil, Watch{}, false
	}
	w.Attempts++
	m.wg.Add(1)
	return m.runCtx, *w, true
}

func (m *Monitor) update(assetID, jobID string, fn func(*Watch)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.watches[assetID]; ok && w.JobID == jobID {
		fn(w)
	}
}

func (m *Monitor) tick(assetID, jobID string) {
	ctx, watch, ok := m.begin(assetID, jobID)
	if !ok {
		return
	}
	defer m.wg.Done()

	ctx = services.WithAssetID(ctx, assetID)
	ctx = services.WithJobID(ctx, jobID)
	ctx = services.WithEventSource(ctx, string(events.SourcePoll))
	logger := logging.WithContext(ctx, m.logger)

	status, err := m.query(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, services.ErrNotFound) {
			m.handleNotFound(ctx, logger, watch)
			return
		}
		logging.WarnWithContext(logger, "job status query failed", "poll_query_failed",
			logging.Int("attempt", watch.Attempts),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check MediaConvert reachability and credentials"),
			logging.String(logging.FieldImpact, "retrying at the error interval"),
		)
		m.next(ctx, logger, watch, m.schedule.ErrorInterval)
		return
	}

	m.update(assetID, jobID, func(w *Watch) {
		w.NotFound = 0
		w.LastStatus = status.Status
	})

	kind, err := events.ParseKind(status.Status)
	if err != nil {
		logging.WarnWithContext(logger, "unrecognized job status", "poll_status_unknown",
			logging.String("job_status", status.Status),
			logging.String(logging.FieldImpact, "retrying at the error interval"),
		)
		m.next(ctx, logger, watch, m.schedule.ErrorInterval)
		return
	}

	event := events.Event{
		AssetID:         assetID,
		JobID:           jobID,
		Kind:            kind,
		Progress:        status.PercentComplete,
		DurationSeconds: status.DurationSeconds,
		ErrorCode:       status.ErrorCode,
		ErrorMessage:    status.ErrorMessage,
		ObservedAt:      time.Now().UTC(),
		Source:          events.SourcePoll,
	}
	outcome, err := m.deps.Reconciler.Apply(ctx, event)
	if err != nil {
		logging.WarnWithContext(logger, "applying polled status failed", "poll_apply_failed",
			logging.String("job_status", status.Status),
			logging.Error(err),
			logging.String(logging.FieldImpact, "retrying at the error interval"),
		)
		m.next(ctx, logger, watch, m.schedule.ErrorInterval)
		return
	}
	logger.Debug("job polled",
		logging.String("job_status", status.Status),
		logging.String("outcome", outcome.String()),
		logging.Int("attempt", watch.Attempts),
	)

	switch outcome {
	case reconcile.OutcomeStale, reconcile.OutcomeUnknownAsset, reconcile.OutcomeTerminal:
		m.finish(assetID, jobID)
		return
	case reconcile.OutcomeDeferred:
		if m.probeAndApply(ctx, logger, watch) {
			return
		}
		m.next(ctx, logger, watch, m.schedule.ErrorInterval)
		return
	}
	if kind.IsTerminal() {
		m.finish(assetID, jobID)
		return
	}

	delay := m.schedule.ProgressingInterval
	if kind == events.KindSubmitted {
		delay = m.schedule.SubmittedInterval
	}
	m.next(ctx, logger, watch, delay)
}

func (m *Monitor) query(ctx context.Context, jobID string) (mediaconvert.JobStatus, error) {
	if m.schedule.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.schedule.QueryTimeout)
		defer cancel()
	}
	return m.deps.Jobs.GetJobStatus(ctx, jobID)
}

// next reschedules, or falls back to exhaustion once the budget is spent.
func (m *Monitor) next(ctx context.Context, logger *slog.Logger, watch Watch, delay time.Duration) {
	if m.schedule.MaxAttempts > 0 && watch.Attempts >= m.schedule.MaxAttempts {
		m.exhaust(ctx, logger, watch)
		return
	}
	m.reschedule(watch.AssetID, watch.JobID, delay)
}

func (m *Monitor) handleNotFound(ctx context.Context, logger *slog.Logger, watch Watch) {
	notFound := 0
	m.update(watch.AssetID, watch.JobID, func(w *Watch) {
		w.NotFound++
		w.LastStatus = "NOT_FOUND"
		notFound = w.NotFound
	})

	if m.probeAndApply(ctx, logger, watch) {
		return
	}

	limit := m.schedule.NotFoundLimit
	if limit > 0 && notFound >= limit {
		event := events.Event{
			AssetID:      watch.AssetID,
			JobID:        watch.JobID,
			Kind:         events.KindError,
			ErrorMessage: fmt.Sprintf("encoding job %s not found and no output present", watch.JobID),
			ObservedAt:   time.Now().UTC(),
			Source:       events.SourcePoll,
		}
		if _, err := m.deps.Reconciler.Apply(ctx, event); err != nil {
			logging.WarnWithContext(logger, "failing missing job failed", "poll_apply_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "retrying at the error interval"),
			)
			m.next(ctx, logger, watch, m.schedule.ErrorInterval)
			return
		}
		m.finish(watch.AssetID, watch.JobID)
		return
	}

	logging.WarnWithContext(logger, "encoder job not found", "poll_job_not_found",
		logging.Int("not_found", notFound),
		logging.Int("limit", limit),
		logging.String(logging.FieldErrorHint, "the job may have been purged from MediaConvert history"),
		logging.String(logging.FieldImpact, "retrying at the error interval"),
	)
	m.next(ctx, logger, watch, m.schedule.ErrorInterval)
}

// probeAndApply reports whether the probe found outputs and they were applied.
func (m *Monitor) probeAndApply(ctx context.Context, logger *slog.Logger, watch Watch) bool {
	if m.deps.Probe == nil {
		return false
	}
	asset, err := m.deps.Assets.Get(ctx, watch.AssetID)
	if err != nil {
		logging.WarnWithContext(logger, "loading asset for probe failed", "probe_load_failed", logging.Error(err))
		return false
	}
	if asset == nil || asset.JobID != watch.JobID || asset.Status.IsTerminal() {
		m.finish(watch.AssetID, watch.JobID)
		return true
	}

	event, found, err := m.deps.Probe.Check(ctx, asset)
	if err != nil {
		logging.WarnWithContext(logger, "storage probe failed", "probe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage.outputs_bucket permissions"),
		)
		return false
	}
	if !found {
		return false
	}
	event.JobID = watch.JobID
	outcome, err := m.deps.Reconciler.Apply(ctx, event)
	if err != nil {
		logging.WarnWithContext(logger, "applying probe result failed", "probe_apply_failed", logging.Error(err))
		return false
	}
	if outcome == reconcile.OutcomeDeferred {
		return false
	}
	logger.Info("storage probe resolved job", logging.String("outcome", outcome.String()))
	m.finish(watch.AssetID, watch.JobID)
	return true
}

func (m *Monitor) exhaust(ctx context.Context, logger *slog.Logger, watch Watch) {
	if m.probeAndApply(ctx, logger, watch) {
		return
	}
	reason := fmt.Sprintf("polling exhausted after %d attempts without a terminal status", watch.Attempts)
	outcome, err := m.deps.Reconciler.FlagAttention(ctx, watch.AssetID, watch.JobID, reason)
	if err != nil {
		logging.ErrorWithContext(logger, "flagging asset for attention failed", "attention_flag_failed", logging.Error(err))
	}
	m.finish(watch.AssetID, watch.JobID)
	if outcome != reconcile.OutcomeApplied || m.deps.Alerts == nil {
		return
	}

	asset, err := m.deps.Assets.Get(ctx, watch.AssetID)
	if err != nil || asset == nil {
		return
	}
	if err := m.deps.Alerts.NotifyAttention(ctx, asset, reason); err != nil {
		logging.WarnWithContext(logger, "attention notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "operator was not alerted; the asset is flagged"),
		)
	}
}
