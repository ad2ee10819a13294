package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"encodesync/internal/logging"
)

// NATS publishes snapshots as JSON on per-asset subjects.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

// ConnectNATS dials the server and keeps reconnecting for the daemon's lifetime.
func ConnectNATS(url, prefix string, logger *slog.Logger) (*NATS, error) {
	logger = logging.NewComponentLogger(logger, "broadcast")
	nc, err := nats.Connect(url,
		nats.Name("encodesyncd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.WarnWithContext(logger, "nats disconnected", "nats_disconnected",
					logging.Error(err),
					logging.String(logging.FieldImpact, "status snapshots are buffered until reconnect"),
				)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", logging.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATS{nc: nc, prefix: prefix}, nil
}

// Publish sends the snapshot without waiting for delivery.
func (n *NATS) Publish(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := n.nc.Publish(Subject(n.prefix, snapshot.AssetID), payload); err != nil {
		return fmt.Errorf("publish %s: %w", Subject(n.prefix, snapshot.AssetID), err)
	}
	return nil
}

// Subscribe decodes snapshots for one asset until the subscription is drained.
func (n *NATS) Subscribe(assetID string, handler func(Snapshot)) (*nats.Subscription, error) {
	return n.nc.Subscribe(Subject(n.prefix, assetID), func(msg *nats.Msg) {
		var snap Snapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			return
		}
		handler(snap)
	})
}

// Flush waits for buffered publishes to reach the server.
func (n *NATS) Flush(timeout time.Duration) error {
	return n.nc.FlushTimeout(timeout)
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() {
	if n != nil && n.nc != nil {
		_ = n.nc.Drain()
	}
}
