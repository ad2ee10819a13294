package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Stats counts assets per lifecycle status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(orBackground(ctx), `SELECT status, COUNT(1) FROM assets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("asset stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(AllStatuses()))
	for rows.Next() {
		var (
			status Status
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan asset stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates asset state for the status endpoint in a single query.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var h HealthSummary
	err := s.db.QueryRowContext(orBackground(ctx), `
		SELECT COUNT(1),
		       COALESCE(SUM(status = ?), 0),
		       COALESCE(SUM(status = ?), 0),
		       COALESCE(SUM(status = ?), 0),
		       COALESCE(SUM(status = ?), 0),
		       COALESCE(SUM(needs_attention), 0)
		FROM assets`,
		StatusDraft, StatusProcessing, StatusReady, StatusFailed,
	).Scan(&h.Total, &h.Draft, &h.Processing, &h.Ready, &h.Failed, &h.NeedsAttention)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("asset health: %w", err)
	}
	return h, nil
}

// CheckHealth inspects the database file, schema version and integrity.
// Query problems are reported in DatabaseHealth.Error rather than returned.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	ctx = orBackground(ctx)
	report := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return report, errors.New("asset database path is unknown")
	}

	switch info, err := os.Stat(s.path); {
	case errors.Is(err, fs.ErrNotExist):
		return report, nil
	case err != nil:
		return report, fmt.Errorf("stat asset database: %w", err)
	case info.IsDir():
		return report, fmt.Errorf("asset database path %q is a directory", s.path)
	}
	report.DatabaseExists = true

	version, err := s.userVersion(ctx)
	if err != nil {
		report.Error = err.Error()
		return report, nil
	}
	report.SchemaVersion = version

	var verdict string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&verdict); err != nil {
		report.Error = fmt.Sprintf("integrity check: %v", err)
		return report, nil
	}
	report.IntegrityCheck = verdict == "ok"

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM assets`).Scan(&report.TotalAssets); err != nil {
		report.Error = fmt.Sprintf("count assets: %v", err)
	}
	return report, nil
}
