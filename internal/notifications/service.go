package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"encodesync/internal/assets"
	"encodesync/internal/config"
)

const userAgent = "encodesync/0.1.0"

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyAssetReady(ctx context.Context, asset *assets.Asset) error
	NotifyAssetFailed(ctx context.Context, asset *assets.Asset) error
	NotifyAttention(ctx context.Context, asset *assets.Asset, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

type kind int

const (
	kindReady kind = iota
	kindFailed
	kindAttention
	kindError
	kindTest
)

// header values ntfy reads for each kind of note.
var kinds = map[kind]struct {
	title    string
	tags     string
	priority string
}{
	kindReady:     {"Ready", "encodesync,asset,ready", ""},
	kindFailed:    {"Encoding Failed", "encodesync,asset,failed", "high"},
	kindAttention: {"Attention Required", "encodesync,attention,review", "high"},
	kindError:     {"Error", "encodesync,error,alert", "high"},
	kindTest:      {"Test", "encodesync,test", "low"},
}

// NewService returns an ntfy-backed Service, or a no-op one when no topic is
// configured.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		topic:  topic,
		client: &http.Client{Timeout: timeout},
		enabled: map[kind]bool{
			kindReady:     cfg.Ready,
			kindFailed:    cfg.Failed,
			kindAttention: cfg.Attention,
			kindError:     true,
			kindTest:      true,
		},
	}
}

type ntfyService struct {
	topic   string
	client  *http.Client
	enabled map[kind]bool
}

func (n *ntfyService) NotifyAssetReady(ctx context.Context, asset *assets.Asset) error {
	lines := []string{"✅ Ready to stream: " + asset.DisplayTitle()}
	if asset.DurationSeconds > 0 {
		lines[0] += fmt.Sprintf(" (%s)", time.Duration(asset.DurationSeconds)*time.Second)
	}
	if asset.Outputs.Stream != "" {
		lines = append(lines, "Stream: "+asset.Outputs.Stream)
	}
	return n.publish(ctx, kindReady, lines...)
}

func (n *ntfyService) NotifyAssetFailed(ctx context.Context, asset *assets.Asset) error {
	return n.publish(ctx, kindFailed,
		"❌ Encoding failed: "+asset.DisplayTitle(),
		"Job: "+asset.JobID,
		"Reason: "+orDefault(asset.FailureReason, "unknown"),
	)
}

func (n *ntfyService) NotifyAttention(ctx context.Context, asset *assets.Asset, reason string) error {
	return n.publish(ctx, kindAttention,
		"⚠️ "+asset.DisplayTitle()+" still processing",
		"Job: "+asset.JobID,
		orDefault(reason, "no result from the encoder"),
	)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, label string) error {
	head := "❌ Error"
	if label = strings.TrimSpace(label); label != "" {
		head += " with " + label
	}
	detail := "unknown"
	if err != nil {
		detail = orDefault(err.Error(), detail)
	}
	return n.publish(ctx, kindError, head+": "+detail)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.publish(ctx, kindTest, "🧪 Notification system test")
}

// publish posts the lines as one plain-text message to the topic URL.
func (n *ntfyService) publish(ctx context.Context, k kind, lines ...string) error {
	if !n.enabled[k] {
		return nil
	}
	meta := kinds[k]
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topic, strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", "encodesync - "+meta.title)
	req.Header.Set("Tags", meta.tags)
	if meta.priority != "" {
		req.Header.Set("Priority", meta.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

type noopService struct{}

func (noopService) NotifyAssetReady(context.Context, *assets.Asset) error        { return nil }
func (noopService) NotifyAssetFailed(context.Context, *assets.Asset) error       { return nil }
func (noopService) NotifyAttention(context.Context, *assets.Asset, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error             { return nil }
func (noopService) TestNotification(context.Context) error                       { return nil }
