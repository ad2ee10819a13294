package submit_test

import "encodesync/internal/events"

func errorEvent(assetID, jobID, message string) events.Event {
	return events.Event{AssetID: assetID, JobID: jobID, Kind: events.KindError, ErrorMessage: message, Source: events.SourceWebhook}
}
