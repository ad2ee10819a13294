package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"encodesync/internal/config"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/reconcile"
	"encodesync/internal/services"
)

// Path is where the SNS subscription delivers.
const Path = "/webhooks/mediaconvert"

const maxBodyBytes = 256 << 10

// Applier receives normalized events.
type Applier interface {
	Apply(ctx context.Context, event events.Event) (reconcile.Outcome, error)
}

// SignatureVerifier authenticates SNS envelopes.
type SignatureVerifier interface {
	Verify(ctx context.Context, msg Message) error
}

// Handler serves the MediaConvert webhook.
type Handler struct {
	applier   Applier
	verifier  SignatureVerifier
	confirmer Confirmer
	topics    map[string]struct{}
	token     string
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler builds the webhook handler. A nil verifier disables signature
// checks regardless of configuration; callers pass one when
// webhook.verify_signatures is set.
func NewHandler(cfg config.Webhook, applier Applier, verifier SignatureVerifier, confirmer Confirmer, logger *slog.Logger) *Handler {
	topics := make(map[string]struct{}, len(cfg.AllowedTopicARNs))
	for _, arn := range cfg.AllowedTopicARNs {
		topics[arn] = struct{}{}
	}
	if !cfg.VerifySignatures {
		verifier = nil
	}
	return &Handler{
		applier:   applier,
		verifier:  verifier,
		confirmer: confirmer,
		topics:    topics,
		token:     cfg.Token,
		logger:    logging.NewComponentLogger(logger, "webhook"),
		now:       time.Now,
	}
}

// Mount registers the webhook route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post(Path, h.ServeHTTP)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := services.WithEventSource(r.Context(), string(events.SourceWebhook))
	logger := logging.WithContext(ctx, h.logger)

	if h.token != "" && subtle.ConstantTimeCompare([]byte(r.URL.Query().Get("token")), []byte(h.token)) != 1 {
		logging.WarnWithContext(logger, "webhook token mismatch", "webhook_unauthorized",
			logging.String("remote_addr", r.RemoteAddr),
			logging.String(logging.FieldImpact, "request rejected"),
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Debug("webhook body is not json", logging.Error(err))
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !msg.KnownType() {
		logging.WarnWithContext(logger, "unknown sns message type", "webhook_bad_type",
			logging.String("sns_type", msg.Type),
			logging.String(logging.FieldImpact, "request rejected"),
		)
		http.Error(w, "unknown message type", http.StatusBadRequest)
		return
	}
	logger = logger.With(logging.String("sns_message_id", msg.MessageID), logging.String("sns_type", msg.Type))

	if h.verifier != nil {
		if err := h.verifier.Verify(ctx, msg); err != nil {
			logging.WarnWithContext(logger, "sns signature rejected", "webhook_signature_invalid",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "confirm the request came from SNS"),
				logging.String(logging.FieldImpact, "request rejected"),
			)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}
	if len(h.topics) > 0 {
		if _, ok := h.topics[msg.TopicARN]; !ok {
			logging.WarnWithContext(logger, "sns topic not allowed", "webhook_topic_forbidden",
				logging.String("topic_arn", msg.TopicARN),
				logging.String(logging.FieldErrorHint, "add the topic to webhook.allowed_topic_arns"),
				logging.String(logging.FieldImpact, "request rejected"),
			)
			http.Error(w, "topic not allowed", http.StatusForbidden)
			return
		}
	}

	switch msg.Type {
	case TypeSubscriptionConfirmation:
		h.confirm(ctx, logger, w, msg)
	case TypeUnsubscribeConfirmation:
		logger.Info("sns unsubscribe confirmation received", logging.String("topic_arn", msg.TopicARN))
		w.WriteHeader(http.StatusOK)
	case TypeNotification:
		h.notification(ctx, logger, w, msg)
	}
}

func (h *Handler) confirm(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, msg Message) {
	if h.confirmer == nil {
		logging.WarnWithContext(logger, "subscription confirmation ignored", "webhook_confirm_disabled",
			logging.String("topic_arn", msg.TopicARN),
			logging.String(logging.FieldImpact, "topic stays pending until confirmed manually"),
		)
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := h.confirmer.Confirm(ctx, msg); err != nil {
		logging.ErrorWithContext(logger, "sns subscription confirmation failed", "webhook_confirm_failed",
			logging.String("topic_arn", msg.TopicARN),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "SNS resends the confirmation; check outbound access and credentials"),
		)
		http.Error(w, "confirmation failed", services.HTTPStatus(err))
		return
	}
	logger.Info("sns subscription confirmed", logging.String("topic_arn", msg.TopicARN))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) notification(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, msg Message) {
	change, err := ParseJobStateChange(msg.Message)
	if err != nil {
		logging.WarnWithContext(logger, "notification is not a MediaConvert state change", "webhook_bad_message",
			logging.Error(err),
			logging.String(logging.FieldImpact, "notification ignored"),
		)
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}
	detail := change.Detail
	ctx = services.WithJobID(ctx, detail.JobID)
	logger = logger.With(logging.String(logging.FieldJobID, detail.JobID), logging.String("job_status", detail.Status))

	assetID, err := detail.ResolveAssetID()
	if err != nil {
		logging.WarnWithContext(logger, "webhook event dropped", "webhook_unresolved_asset",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "jobs must carry asset_id user metadata"),
			logging.String(logging.FieldImpact, "event ignored"),
		)
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx = services.WithAssetID(ctx, assetID)

	observed := change.Time
	if observed.IsZero() {
		observed = h.now().UTC()
	}
	event, err := detail.Event(assetID, observed)
	if err != nil {
		logging.WarnWithContext(logger, "unrecognized job status", "webhook_status_unknown",
			logging.Error(err),
			logging.String(logging.FieldImpact, "event ignored"),
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	outcome, err := h.applier.Apply(ctx, event)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, h.logger), "applying webhook event failed", "webhook_apply_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "SNS will redeliver"),
		)
		http.Error(w, "reconcile failed", http.StatusInternalServerError)
		return
	}
	logging.WithContext(ctx, h.logger).Debug("webhook event reconciled",
		logging.String("job_status", detail.Status),
		logging.String("outcome", outcome.String()),
	)
	w.WriteHeader(http.StatusOK)
}
