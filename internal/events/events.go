// Package events defines the normalized lifecycle event shared by every
// signal source (SNS webhook, GetJob polling, storage probe).
package events

import (
	"fmt"
	"strings"
	"time"

	"encodesync/internal/assets"
)

// Kind is the closed set of encoder lifecycle signals.
type Kind int

const (
	KindUnknown Kind = iota
	KindSubmitted
	KindProgressing
	KindComplete
	KindError
	KindCanceled
)

// ParseKind maps an external job status string onto a Kind.
func ParseKind(value string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "SUBMITTED", "PENDING":
		return KindSubmitted, nil
	case "PROGRESSING", "STATUS_UPDATE", "INPUT_INFORMATION":
		return KindProgressing, nil
	case "COMPLETE":
		return KindComplete, nil
	case "ERROR":
		return KindError, nil
	case "CANCELED":
		return KindCanceled, nil
	default:
		return KindUnknown, fmt.Errorf("unknown job status %q", value)
	}
}

func (k Kind) String() string {
	switch k {
	case KindSubmitted:
		return "SUBMITTED"
	case KindProgressing:
		return "PROGRESSING"
	case KindComplete:
		return "COMPLETE"
	case KindError:
		return "ERROR"
	case KindCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the kind ends the job.
func (k Kind) IsTerminal() bool {
	return k == KindComplete || k == KindError || k == KindCanceled
}

// Source identifies where an event came from. It is recorded for logs only.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceProbe   Source = "probe"
)

// Event is one observation of an encoder job's state.
type Event struct {
	AssetID         string
	JobID           string
	Kind            Kind
	Progress        *int
	Outputs         assets.Outputs
	DurationSeconds int
	ErrorCode       string
	ErrorMessage    string
	ObservedAt      time.Time
	Source          Source
}

// WithProgress returns a copy of e carrying the given progress percentage.
func (e Event) WithProgress(percent int) Event {
	e.Progress = &percent
	return e
}

// ProgressValue returns the reported progress and whether one was present.
func (e Event) ProgressValue() (int, bool) {
	if e.Progress == nil {
		return 0, false
	}
	return *e.Progress, true
}
