package notifications

import (
	"context"
	"log/slog"

	"encodesync/internal/assets"
	"encodesync/internal/logging"
	"encodesync/internal/reconcile"
)

// Listener sends ready and failed notifications for committed transitions.
type Listener struct {
	svc    Service
	logger *slog.Logger
}

// NewListener wraps svc as a reconciler transition listener.
func NewListener(svc Service, logger *slog.Logger) *Listener {
	return &Listener{svc: svc, logger: logging.NewComponentLogger(logger, "notifications")}
}

// OnTransition implements reconcile.Listener.
func (l *Listener) OnTransition(ctx context.Context, t reconcile.Transition) {
	if l == nil || l.svc == nil || !t.StatusChanged() {
		return
	}
	// The triggering request may finish before ntfy answers.
	ctx = context.WithoutCancel(ctx)

	var err error
	switch t.Asset.Status {
	case assets.StatusReady:
		err = l.svc.NotifyAssetReady(ctx, t.Asset)
	case assets.StatusFailed:
		err = l.svc.NotifyAssetFailed(ctx, t.Asset)
	default:
		return
	}
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, l.logger), "notification delivery failed", "notification_failed",
			logging.String("status", string(t.Asset.Status)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and ntfy reachability"),
			logging.String(logging.FieldImpact, "operator was not notified"),
		)
	}
}
