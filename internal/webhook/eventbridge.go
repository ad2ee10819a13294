package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"encodesync/internal/artifacts"
	"encodesync/internal/events"
	"encodesync/internal/services/mediaconvert"
)

// JobStateChange is the EventBridge document MediaConvert emits.
type JobStateChange struct {
	DetailType string    `json:"detail-type"`
	Source     string    `json:"source"`
	Time       time.Time `json:"time"`
	Detail     JobDetail `json:"detail"`
}

// JobDetail is the MediaConvert-specific part of a state change.
type JobDetail struct {
	Timestamp          int64               `json:"timestamp"`
	JobID              string              `json:"jobId"`
	Status             string              `json:"status"`
	UserMetadata       map[string]string   `json:"userMetadata"`
	JobProgress        *JobProgress        `json:"jobProgress,omitempty"`
	ErrorCode          flexString          `json:"errorCode,omitempty"`
	ErrorMessage       string              `json:"errorMessage,omitempty"`
	OutputGroupDetails []OutputGroupDetail `json:"outputGroupDetails,omitempty"`
}

// JobProgress appears on STATUS_UPDATE and PROGRESSING events.
type JobProgress struct {
	JobPercentComplete *int   `json:"jobPercentComplete,omitempty"`
	CurrentPhase       string `json:"currentPhase,omitempty"`
}

// OutputGroupDetail lists the files one output group produced.
type OutputGroupDetail struct {
	Type              string         `json:"type"`
	OutputDetails     []OutputDetail `json:"outputDetails"`
	PlaylistFilePaths []string       `json:"playlistFilePaths,omitempty"`
}

// OutputDetail is a single output of a group.
type OutputDetail struct {
	OutputFilePaths []string `json:"outputFilePaths"`
	DurationInMs    int64    `json:"durationInMs"`
}

// flexString accepts JSON strings and numbers; errorCode arrives as a number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

var (
	errNoDetail        = errors.New("state change has no job detail")
	errUnresolvedAsset = errors.New("asset id could not be resolved")
)

// ParseJobStateChange decodes an SNS Message body.
func ParseJobStateChange(body string) (JobStateChange, error) {
	var change JobStateChange
	if err := json.Unmarshal([]byte(body), &change); err != nil {
		return JobStateChange{}, fmt.Errorf("decode state change: %w", err)
	}
	if strings.TrimSpace(change.Detail.JobID) == "" || strings.TrimSpace(change.Detail.Status) == "" {
		return JobStateChange{}, errNoDetail
	}
	return change, nil
}

// ResolveAssetID applies the identity order: asset_id metadata, legacy
// program id metadata, then the /hls/<id>/ path of any output.
func (d JobDetail) ResolveAssetID() (string, error) {
	for _, key := range []string{mediaconvert.MetadataAssetID, mediaconvert.MetadataLegacyID, "programId"} {
		if id := strings.TrimSpace(d.UserMetadata[key]); id != "" {
			return id, nil
		}
	}
	for _, path := range d.paths() {
		if id, ok := artifacts.AssetIDFromPath(path); ok {
			return id, nil
		}
	}
	return "", errUnresolvedAsset
}

func (d JobDetail) paths() []string {
	var out []string
	for _, group := range d.OutputGroupDetails {
		out = append(out, group.PlaylistFilePaths...)
		for _, detail := range group.OutputDetails {
			out = append(out, detail.OutputFilePaths...)
		}
	}
	return out
}

// StreamPath returns the bucket-stripped HLS playlist, master preferred.
func (d JobDetail) StreamPath() string {
	var playlists []string
	for _, path := range d.paths() {
		if artifacts.IsPlaylist(path) {
			playlists = append(playlists, path)
		}
	}
	chosen := artifacts.PreferredPlaylist(playlists)
	if chosen == "" {
		return ""
	}
	return artifacts.StripBucket(chosen)
}

// DurationSeconds returns the first reported output duration rounded to seconds.
func (d JobDetail) DurationSeconds() int {
	for _, group := range d.OutputGroupDetails {
		for _, detail := range group.OutputDetails {
			if detail.DurationInMs > 0 {
				return int(math.Round(float64(detail.DurationInMs) / 1000))
			}
		}
	}
	return 0
}

// Event normalizes the detail for the reconciler.
func (d JobDetail) Event(assetID string, observed time.Time) (events.Event, error) {
	kind, err := events.ParseKind(d.Status)
	if err != nil {
		return events.Event{}, err
	}
	event := events.Event{
		AssetID:         assetID,
		JobID:           d.JobID,
		Kind:            kind,
		DurationSeconds: d.DurationSeconds(),
		ErrorCode:       string(d.ErrorCode),
		ErrorMessage:    d.ErrorMessage,
		ObservedAt:      observed,
		Source:          events.SourceWebhook,
	}
	if d.JobProgress != nil && d.JobProgress.JobPercentComplete != nil {
		event = event.WithProgress(*d.JobProgress.JobPercentComplete)
	}
	if kind == events.KindComplete {
		if stream := d.StreamPath(); stream != "" {
			event.Outputs = artifacts.DeriveFromStream(assetID, stream)
		}
	}
	return event, nil
}
