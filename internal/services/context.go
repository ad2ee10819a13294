package services

import "context"

type contextKey string

const (
	assetIDKey   contextKey = "asset_id"
	jobIDKey     contextKey = "job_id"
	sourceKey    contextKey = "event_source"
	requestIDKey contextKey = "request_id"
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithAssetID annotates ctx with the asset identifier.
func WithAssetID(ctx context.Context, id string) context.Context {
	return withValue(ctx, assetIDKey, id)
}

func AssetIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, assetIDKey) }

// WithJobID annotates ctx with the MediaConvert job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	return withValue(ctx, jobIDKey, id)
}

func JobIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, jobIDKey) }

// WithEventSource records which signal path (webhook, poll, probe) is acting.
func WithEventSource(ctx context.Context, source string) context.Context {
	return withValue(ctx, sourceKey, source)
}

func EventSourceFromContext(ctx context.Context) (string, bool) { return lookup(ctx, sourceKey) }

// WithRequestID annotates ctx with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return lookup(ctx, requestIDKey) }
