package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"encodesync/internal/artifacts"
	"encodesync/internal/assets"
	"encodesync/internal/broadcast"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/services"
)

const (
	defaultFailureReason  = "encoding failed"
	canceledFailureReason = "encoding job canceled"
)

// Store is the persistence the Reconciler needs.
type Store interface {
	Get(ctx context.Context, id string) (*assets.Asset, error)
	Update(ctx context.Context, asset *assets.Asset) error
}

// Reconciler applies lifecycle events to assets.
type Reconciler struct {
	store         Store
	broadcaster   broadcast.Broadcaster
	commitTimeout time.Duration
	logger        *slog.Logger
	locks         *keyedMutex

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New constructs a Reconciler. A nil broadcaster discards snapshots.
func New(store Store, broadcaster broadcast.Broadcaster, commitTimeout time.Duration, logger *slog.Logger) *Reconciler {
	if broadcaster == nil {
		broadcaster = broadcast.Nop{}
	}
	if commitTimeout <= 0 {
		commitTimeout = 10 * time.Second
	}
	return &Reconciler{
		store:         store,
		broadcaster:   broadcaster,
		commitTimeout: commitTimeout,
		logger:        logging.NewComponentLogger(logger, "reconciler"),
		locks:         newKeyedMutex(),
	}
}

// AddListener registers a transition listener.
func (r *Reconciler) AddListener(listener Listener) {
	if listener == nil {
		return
	}
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, listener)
	r.listenersMu.Unlock()
}

// Apply folds one event into its asset.
func (r *Reconciler) Apply(ctx context.Context, event events.Event) (Outcome, error) {
	if strings.TrimSpace(event.AssetID) == "" {
		return OutcomeIgnored, services.Wrap(services.ErrValidation, "reconciler", "apply", "event has no asset id", nil)
	}
	if event.Kind == events.KindUnknown {
		return OutcomeIgnored, services.Wrap(services.ErrValidation, "reconciler", "apply", "event kind is unknown", nil)
	}

	ctx = services.WithAssetID(ctx, event.AssetID)
	ctx = services.WithJobID(ctx, event.JobID)
	ctx = services.WithEventSource(ctx, string(event.Source))

	unlock := r.locks.Lock(event.AssetID)
	transition, outcome, err := r.applyLocked(ctx, event)
	unlock()

	if transition != nil {
		r.notify(ctx, *transition)
	}
	return outcome, err
}

func (r *Reconciler) applyLocked(ctx context.Context, event events.Event) (*Transition, Outcome, error) {
	logger := logging.WithContext(ctx, r.logger)

	current, err := r.store.Get(ctx, event.AssetID)
	if err != nil {
		return nil, OutcomeIgnored, services.Wrap(services.ErrTransient, "reconciler", "load asset", event.AssetID, err)
	}
	if current == nil {
		logging.WarnWithContext(logger, "event for unknown asset dropped", "asset_unknown",
			logging.String("event_kind", event.Kind.String()),
			logging.String(logging.FieldErrorHint, "the asset record may have been removed"),
			logging.String(logging.FieldImpact, "event ignored"),
		)
		return nil, OutcomeUnknownAsset, nil
	}
	if event.JobID == "" || event.JobID != current.JobID {
		logger.Debug("stale event discarded",
			logging.String("event_kind", event.Kind.String()),
			logging.String("current_job_id", current.JobID),
		)
		return nil, OutcomeStale, nil
	}
	if current.Status.IsTerminal() {
		logger.Debug("event after terminal state discarded",
			logging.String("event_kind", event.Kind.String()),
			logging.String("status", string(current.Status)),
		)
		return nil, OutcomeTerminal, nil
	}

	next := current.Clone()
	switch event.Kind {
	case events.KindSubmitted:
		return nil, OutcomeIgnored, nil
	case events.KindProgressing:
		if !applyProgress(current, next, event) {
			return nil, OutcomeIgnored, nil
		}
	case events.KindComplete:
		if !assets.CanTransition(current.Status, assets.StatusReady) {
			return nil, OutcomeIgnored, nil
		}
		outputs := resolveOutputs(current, event.Outputs)
		if outputs.IsEmpty() {
			logging.WarnWithContext(logger, "completion deferred without output locations", "completion_deferred",
				logging.String(logging.FieldErrorHint, "no output paths reported and no source key to derive them from"),
				logging.String(logging.FieldImpact, "asset stays processing until a probe finds outputs"),
			)
			return nil, OutcomeDeferred, nil
		}
		next.Status = assets.StatusReady
		next.Progress = 100
		next.Outputs = outputs
		if event.DurationSeconds > 0 {
			next.DurationSeconds = event.DurationSeconds
		}
		clearAttention(next)
	case events.KindError, events.KindCanceled:
		if !assets.CanTransition(current.Status, assets.StatusFailed) {
			return nil, OutcomeIgnored, nil
		}
		next.Status = assets.StatusFailed
		next.FailureReason = FailureReason(event)
		clearAttention(next)
	default:
		return nil, OutcomeIgnored, nil
	}

	if err := r.commit(ctx, next); err != nil {
		return nil, OutcomeIgnored, err
	}
	r.publish(ctx, logger, next)

	if next.Status != current.Status {
		attrs := []logging.Attr{
			logging.String("from", string(current.Status)),
			logging.String("to", string(next.Status)),
		}
		if next.Status == assets.StatusFailed {
			attrs = append(attrs, logging.String("failure_reason", next.FailureReason))
			if code := strings.TrimSpace(event.ErrorCode); code != "" {
				attrs = append(attrs, logging.String("error_code", code))
			}
		}
		logger.Info("asset transitioned", logging.Args(attrs...)...)
	} else {
		logger.Debug("progress updated", logging.Int("progress", next.Progress))
	}
	return &Transition{Previous: current.Status, Asset: next.Clone(), Event: event}, OutcomeApplied, nil
}

// BeginAttempt records a freshly submitted job on a draft or failed asset.
func (r *Reconciler) BeginAttempt(ctx context.Context, assetID, jobID, sourceKey string) (*assets.Asset, error) {
	if strings.TrimSpace(assetID) == "" || strings.TrimSpace(jobID) == "" {
		return nil, services.Wrap(services.ErrValidation, "reconciler", "begin attempt", "asset id and job id are required", nil)
	}
	ctx = services.WithAssetID(ctx, assetID)
	ctx = services.WithJobID(ctx, jobID)

	unlock := r.locks.Lock(assetID)
	transition, err := r.beginLocked(ctx, assetID, jobID, sourceKey)
	unlock()
	if err != nil {
		return nil, err
	}

	r.notify(ctx, *transition)
	return transition.Asset.Clone(), nil
}

func (r *Reconciler) beginLocked(ctx context.Context, assetID, jobID, sourceKey string) (*Transition, error) {
	logger := logging.WithContext(ctx, r.logger)

	current, err := r.store.Get(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "reconciler", "load asset", assetID, err)
	}
	if current == nil {
		return nil, services.Wrap(services.ErrNotFound, "reconciler", "begin attempt", fmt.Sprintf("asset %q not found", assetID), nil)
	}
	if !current.Status.Submittable() {
		return nil, services.Wrap(services.ErrInvalidState, "reconciler", "begin attempt",
			fmt.Sprintf("asset %q is %s", assetID, current.Status), nil)
	}

	now := time.Now().UTC()
	next := current.Clone()
	next.Status = assets.StatusProcessing
	next.JobID = jobID
	next.Generation = current.Generation + 1
	if strings.TrimSpace(sourceKey) != "" {
		next.SourceKey = sourceKey
	}
	next.Progress = 0
	next.Outputs = assets.Outputs{}
	next.DurationSeconds = 0
	next.FailureReason = ""
	clearAttention(next)
	next.SubmittedAt = &now

	if err := r.commit(ctx, next); err != nil {
		return nil, err
	}
	r.publish(ctx, logger, next)
	logger.Info("encoding attempt started",
		logging.String("from", string(current.Status)),
		logging.Int("generation", next.Generation),
		logging.String("source_key", next.SourceKey),
	)
	return &Transition{Previous: current.Status, Asset: next.Clone()}, nil
}

// FlagAttention marks a processing asset as needing an operator. It does not
// change status and is not broadcast.
func (r *Reconciler) FlagAttention(ctx context.Context, assetID, jobID, reason string) (Outcome, error) {
	ctx = services.WithAssetID(ctx, assetID)
	ctx = services.WithJobID(ctx, jobID)
	logger := logging.WithContext(ctx, r.logger)

	unlock := r.locks.Lock(assetID)
	defer unlock()

	current, err := r.store.Get(ctx, assetID)
	if err != nil {
		return OutcomeIgnored, services.Wrap(services.ErrTransient, "reconciler", "load asset", assetID, err)
	}
	if current == nil {
		return OutcomeUnknownAsset, nil
	}
	if jobID != current.JobID {
		return OutcomeStale, nil
	}
	if current.Status != assets.StatusProcessing {
		return OutcomeTerminal, nil
	}
	reason = strings.TrimSpace(reason)
	if current.NeedsAttention && current.AttentionReason == reason {
		return OutcomeIgnored, nil
	}

	next := current.Clone()
	next.NeedsAttention = true
	next.AttentionReason = reason
	if err := r.commit(ctx, next); err != nil {
		return OutcomeIgnored, err
	}
	logging.WarnWithContext(logger, "asset flagged for attention", "asset_attention",
		logging.String("reason", reason),
		logging.String(logging.FieldErrorHint, "inspect the encoder job and output bucket"),
		logging.String(logging.FieldImpact, "asset remains processing"),
	)
	return OutcomeApplied, nil
}

func (r *Reconciler) commit(ctx context.Context, asset *assets.Asset) error {
	commitCtx, cancel := context.WithTimeout(ctx, r.commitTimeout)
	defer cancel()
	if err := r.store.Update(commitCtx, asset); err != nil {
		return services.Wrap(services.ErrTransient, "reconciler", "commit", asset.ID, err)
	}
	return nil
}

func (r *Reconciler) publish(ctx context.Context, logger *slog.Logger, asset *assets.Asset) {
	if err := r.broadcaster.Publish(ctx, broadcast.SnapshotFromAsset(asset)); err != nil {
		logging.WarnWithContext(logger, "status broadcast failed", "broadcast_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check broadcast.nats_url connectivity"),
			logging.String(logging.FieldImpact, "subscribers miss this update; the record is committed"),
		)
	}
}

func (r *Reconciler) notify(ctx context.Context, t Transition) {
	r.listenersMu.RLock()
	listeners := append([]Listener(nil), r.listeners...)
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		l.OnTransition(ctx, t)
	}
}

func applyProgress(current, next *assets.Asset, event events.Event) bool {
	if current.Status != assets.StatusProcessing {
		return false
	}
	value, ok := event.ProgressValue()
	if !ok {
		return false
	}
	value = clampProgress(value)
	if value <= current.Progress {
		return false
	}
	next.Progress = value
	return true
}

func clampProgress(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}

// resolveOutputs fills gaps in reported outputs from the naming convention.
func resolveOutputs(asset *assets.Asset, reported assets.Outputs) assets.Outputs {
	derived := artifacts.Derive(asset.ID, asset.SourceKey)
	if reported.IsEmpty() {
		return derived
	}
	if derived.IsEmpty() {
		derived = artifacts.DeriveFromStream(asset.ID, reported.Stream)
	}
	if reported.Thumbnail == "" {
		reported.Thumbnail = derived.Thumbnail
	}
	if reported.Preview == "" {
		reported.Preview = derived.Preview
	}
	if reported.Sprite == "" {
		reported.Sprite = derived.Sprite
	}
	return reported
}

func clearAttention(asset *assets.Asset) {
	asset.NeedsAttention = false
	asset.AttentionReason = ""
}

// FailureReason is the persisted failure text for an error or cancellation
// event: the encoder's message verbatim, or a generic reason without one. The
// error code is logged, never folded into the text.
func FailureReason(event events.Event) string {
	message := strings.TrimSpace(event.ErrorMessage)
	if message == "" {
		if event.Kind == events.KindCanceled {
			message = canceledFailureReason
		} else {
			message = defaultFailureReason
		}
	}
	return message
}
