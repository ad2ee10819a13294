package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"encodesync/internal/services"
)

// Create inserts a new asset record. Status defaults to draft.
func (s *Store) Create(ctx context.Context, asset *Asset) (*Asset, error) {
	if asset == nil {
		return nil, errors.New("asset is nil")
	}
	id := strings.TrimSpace(asset.ID)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "assets", "create", "asset id is required", nil)
	}
	status := asset.Status
	if status == "" {
		status = StatusDraft
	}
	if _, ok := statusSet[status]; !ok {
		return nil, services.Wrap(services.ErrValidation, "assets", "create", fmt.Sprintf("unknown status %q", status), nil)
	}

	now := time.Now().UTC()
	_, err := s.exec(
		ctx,
		`INSERT INTO assets (
            id, title, status, progress, job_id, generation, source_key,
            output_stream, output_thumbnail, output_preview, output_sprite,
            duration_seconds, failure_reason, needs_attention, attention_reason,
            created_at, updated_at, submitted_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		nullableString(strings.TrimSpace(asset.Title)),
		status,
		asset.Progress,
		nullableString(asset.JobID),
		asset.Generation,
		nullableString(asset.SourceKey),
		nullableString(asset.Outputs.Stream),
		nullableString(asset.Outputs.Thumbnail),
		nullableString(asset.Outputs.Preview),
		nullableString(asset.Outputs.Sprite),
		asset.DurationSeconds,
		nullableString(asset.FailureReason),
		boolToInt(asset.NeedsAttention),
		nullableString(asset.AttentionReason),
		formatTime(now),
		formatTime(now),
		nullableTime(asset.SubmittedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, services.Wrap(services.ErrInvalidState, "assets", "create", fmt.Sprintf("asset %q already exists", id), nil)
		}
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return s.Get(ctx, id)
}

// Get fetches an asset by identifier. A missing asset returns (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(orBackground(ctx), `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// Update persists every mutable field of an existing asset. UpdatedAt is
// advanced past its previous value even when the clock has not moved.
func (s *Store) Update(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	now := time.Now().UTC()
	if !now.After(asset.UpdatedAt) {
		now = asset.UpdatedAt.Add(time.Nanosecond)
	}

	res, err := s.exec(
		ctx,
		`UPDATE assets
         SET title = ?, status = ?, progress = ?, job_id = ?, generation = ?, source_key = ?,
             output_stream = ?, output_thumbnail = ?, output_preview = ?, output_sprite = ?,
             duration_seconds = ?, failure_reason = ?, needs_attention = ?, attention_reason = ?,
             updated_at = ?, submitted_at = ?
         WHERE id = ?`,
		nullableString(asset.Title),
		asset.Status,
		asset.Progress,
		nullableString(asset.JobID),
		asset.Generation,
		nullableString(asset.SourceKey),
		nullableString(asset.Outputs.Stream),
		nullableString(asset.Outputs.Thumbnail),
		nullableString(asset.Outputs.Preview),
		nullableString(asset.Outputs.Sprite),
		asset.DurationSeconds,
		nullableString(asset.FailureReason),
		boolToInt(asset.NeedsAttention),
		nullableString(asset.AttentionReason),
		formatTime(now),
		nullableTime(asset.SubmittedAt),
		asset.ID,
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return services.Wrap(services.ErrNotFound, "assets", "update", fmt.Sprintf("asset %q not found", asset.ID), nil)
	}
	asset.UpdatedAt = now
	return nil
}

// List returns assets filtered by status (all when none given), newest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, id`
	return s.queryAssets(ctx, query, args...)
}

// ListWatchable returns processing assets that carry an encoder job id.
func (s *Store) ListWatchable(ctx context.Context) ([]*Asset, error) {
	return s.queryAssets(ctx,
		`SELECT `+assetColumns+` FROM assets
         WHERE status = ? AND job_id IS NOT NULL AND job_id != ''
         ORDER BY updated_at`,
		StatusProcessing,
	)
}

func (s *Store) queryAssets(ctx context.Context, query string, args ...any) ([]*Asset, error) {
	rows, err := s.db.QueryContext(orBackground(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var out []*Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, asset)
	}
	return out, rows.Err()
}
