package assets

import (
	"database/sql"
	"errors"
	"time"
)

const assetColumns = "id, title, status, progress, job_id, generation, source_key, output_stream, output_thumbnail, output_preview, output_sprite, duration_seconds, failure_reason, needs_attention, attention_reason, created_at, updated_at, submitted_at"

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		id              string
		title           sql.NullString
		statusStr       string
		progress        int
		jobID           sql.NullString
		generation      int
		sourceKey       sql.NullString
		stream          sql.NullString
		thumbnail       sql.NullString
		preview         sql.NullString
		sprite          sql.NullString
		duration        int
		failureReason   sql.NullString
		needsAttention  sql.NullInt64
		attentionReason sql.NullString
		createdRaw      string
		updatedRaw      string
		submittedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&statusStr,
		&progress,
		&jobID,
		&generation,
		&sourceKey,
		&stream,
		&thumbnail,
		&preview,
		&sprite,
		&duration,
		&failureReason,
		&needsAttention,
		&attentionReason,
		&createdRaw,
		&updatedRaw,
		&submittedRaw,
	); err != nil {
		return nil, err
	}

	asset := &Asset{
		ID:         id,
		Title:      title.String,
		Status:     Status(statusStr),
		Progress:   progress,
		JobID:      jobID.String,
		Generation: generation,
		SourceKey:  sourceKey.String,
		Outputs: Outputs{
			Stream:    stream.String,
			Thumbnail: thumbnail.String,
			Preview:   preview.String,
			Sprite:    sprite.String,
		},
		DurationSeconds: duration,
		FailureReason:   failureReason.String,
		NeedsAttention:  needsAttention.Valid && needsAttention.Int64 != 0,
		AttentionReason: attentionReason.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		asset.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		asset.UpdatedAt = updated
	}
	if submittedRaw.Valid {
		if submitted, err := parseTimeString(submittedRaw.String); err == nil {
			asset.SubmittedAt = &submitted
		}
	}
	return asset, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
