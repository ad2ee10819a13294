package assets

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an asset record.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusDraft,
	StatusProcessing,
	StatusReady,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// allowedTransitions lists every permitted status edge. Anything absent is a no-op.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusDraft:      {StatusProcessing: {}},
	StatusProcessing: {StatusReady: {}, StatusFailed: {}},
	StatusFailed:     {StatusProcessing: {}},
}

// AllStatuses returns every known status in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// CanTransition reports whether from → to is a permitted edge.
func CanTransition(from, to Status) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

// IsTerminal reports whether the status ends an encoding attempt.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Submittable reports whether a new encoding job may be started from this status.
func (s Status) Submittable() bool {
	return CanTransition(s, StatusProcessing)
}

// Outputs holds the playable artifact locations of a ready asset.
type Outputs struct {
	Stream    string `json:"stream"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Preview   string `json:"preview,omitempty"`
	Sprite    string `json:"sprite,omitempty"`
}

// IsEmpty reports whether no stream location is known.
func (o Outputs) IsEmpty() bool {
	return strings.TrimSpace(o.Stream) == ""
}

// Asset is an asset record persisted in SQLite.
type Asset struct {
	ID              string
	Title           string
	Status          Status
	Progress        int
	JobID           string
	Generation      int
	SourceKey       string
	Outputs         Outputs
	DurationSeconds int
	FailureReason   string
	NeedsAttention  bool
	AttentionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SubmittedAt     *time.Time
}

// Clone returns a deep copy that callers may mutate freely.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	if a.SubmittedAt != nil {
		submitted := *a.SubmittedAt
		clone.SubmittedAt = &submitted
	}
	return &clone
}

// DisplayTitle returns the title or the id when no title was given.
func (a *Asset) DisplayTitle() string {
	if a == nil {
		return ""
	}
	if title := strings.TrimSpace(a.Title); title != "" {
		return title
	}
	return a.ID
}

// HealthSummary describes aggregated asset counts per lifecycle state.
type HealthSummary struct {
	Total          int
	Draft          int
	Processing     int
	Ready          int
	Failed         int
	NeedsAttention int
}

// DatabaseHealth captures diagnostic information about the asset database.
type DatabaseHealth struct {
	DBPath         string
	DatabaseExists bool
	SchemaVersion  int
	IntegrityCheck bool
	TotalAssets    int
	Error          string
}
