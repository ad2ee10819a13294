// Package webhook ingests MediaConvert job state changes delivered by SNS.
//
// MediaConvert emits EventBridge "MediaConvert Job State Change" documents; an
// EventBridge rule forwards them to an SNS topic whose HTTPS subscription
// points at POST /webhooks/mediaconvert. The handler authenticates the SNS
// envelope, confirms subscriptions, normalizes notifications into
// events.Event and hands them to the reconciler. It never writes asset state
// itself.
package webhook
