package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Asset describes an asset record in a transport-friendly format.
type Asset struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	Progress        int      `json:"progress"`
	JobID           string   `json:"jobId,omitempty"`
	Generation      int      `json:"generation"`
	SourceKey       string   `json:"sourceKey,omitempty"`
	Outputs         *Outputs `json:"outputs,omitempty"`
	DurationSeconds int      `json:"durationSeconds,omitempty"`
	FailureReason   string   `json:"failureReason,omitempty"`
	NeedsAttention  bool     `json:"needsAttention"`
	AttentionReason string   `json:"attentionReason,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
	SubmittedAt     string   `json:"submittedAt,omitempty"`
}

// Outputs lists the derived artifact paths of a ready asset.
type Outputs struct {
	Stream    string `json:"stream"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Preview   string `json:"preview,omitempty"`
	Sprite    string `json:"sprite,omitempty"`
}

// Watch is a job the polling monitor is tracking.
type Watch struct {
	AssetID    string `json:"assetId"`
	JobID      string `json:"jobId"`
	Attempts   int    `json:"attempts"`
	NotFound   int    `json:"notFound"`
	LastStatus string `json:"lastStatus,omitempty"`
	ArmedAt    string `json:"armedAt,omitempty"`
	NextCheck  string `json:"nextCheck,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Counts       map[string]int `json:"counts"`
	Attention    int            `json:"attention"`
	Watching     []Watch        `json:"watching"`
	Broadcast    string         `json:"broadcast"`
}

// AssetListResponse wraps a collection of assets.
type AssetListResponse struct {
	Assets []Asset `json:"assets"`
}

// AssetResponse wraps a single asset.
type AssetResponse struct {
	Asset Asset `json:"asset"`
}

// CreateAssetRequest creates a draft asset. An empty ID is generated.
type CreateAssetRequest struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	SourceKey string `json:"sourceKey,omitempty"`
}

// SubmitRequest starts an encoding job. An empty SourceKey reuses the key
// recorded on the asset.
type SubmitRequest struct {
	SourceKey string `json:"sourceKey,omitempty"`
}

// JobResponse reports the job an action created or targeted.
type JobResponse struct {
	AssetID string `json:"assetId"`
	JobID   string `json:"jobId"`
}

// TestNotificationResponse reports the outcome of a test notification.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LogTailResponse carries daemon log lines and the offset to resume from.
type LogTailResponse struct {
	File   string   `json:"file"`
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
