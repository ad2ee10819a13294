package probe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encodesync/internal/assets"
	"encodesync/internal/config"
	"encodesync/internal/events"
	"encodesync/internal/logging"
	"encodesync/internal/probe"
	"encodesync/internal/services"
)

type fakeLister struct {
	keys  []string
	err   error
	input *s3.ListObjectsV2Input
}

func (f *fakeLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	out := &s3.ListObjectsV2Output{}
	for _, key := range f.keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.OutputsBucket = "outputs"
	return &cfg
}

func processingAsset() *assets.Asset {
	return &assets.Asset{ID: "42", JobID: "job-1", Status: assets.StatusProcessing, SourceKey: "uploads/clip.mp4"}
}

func TestCheckHitSynthesizesComplete(t *testing.T) {
	lister := &fakeLister{keys: []string{"hls/42/clip.m3u8", "hls/42/clip_720p.m3u8", "hls/42/clip_720p_00001.ts"}}
	p := probe.New(lister, testConfig(), logging.NewNop())

	evt, ok, err := p.Check(context.Background(), processingAsset())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "outputs", aws.ToString(lister.input.Bucket))
	assert.Equal(t, "hls/42/", aws.ToString(lister.input.Prefix))
	assert.Equal(t, int32(5), aws.ToInt32(lister.input.MaxKeys))

	assert.Equal(t, events.KindComplete, evt.Kind)
	assert.Equal(t, events.SourceProbe, evt.Source)
	assert.Equal(t, "job-1", evt.JobID)
	assert.Equal(t, "/hls/42/clip.m3u8", evt.Outputs.Stream)
	assert.Equal(t, "/thumbnails/42/clip_thumbnail.0000000.jpg", evt.Outputs.Thumbnail)
	assert.Equal(t, "/sprites/42/clip_sprite.0000000.jpg", evt.Outputs.Sprite)
	assert.False(t, evt.ObservedAt.IsZero())
}

func TestCheckVariantOnlyStillHits(t *testing.T) {
	asset := processingAsset()
	asset.SourceKey = ""
	p := probe.New(&fakeLister{keys: []string{"hls/42/clip_720p.m3u8"}}, testConfig(), logging.NewNop())

	evt, ok, err := p.Check(context.Background(), asset)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/hls/42/clip_720p.m3u8", evt.Outputs.Stream)
	assert.Equal(t, "/previews/42/clip_preview.mp4", evt.Outputs.Preview)
}

func TestCheckMiss(t *testing.T) {
	p := probe.New(&fakeLister{keys: []string{"hls/42/clip_720p_00001.ts"}}, testConfig(), logging.NewNop())

	_, ok, err := p.Check(context.Background(), processingAsset())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckListErrorIsUnavailable(t *testing.T) {
	p := probe.New(&fakeLister{err: errors.New("access denied")}, testConfig(), logging.NewNop())

	_, ok, err := p.Check(context.Background(), processingAsset())
	require.ErrorIs(t, err, services.ErrServiceUnavailable)
	assert.False(t, ok)
}

func TestCheckRequiresBucket(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.OutputsBucket = ""
	p := probe.New(&fakeLister{}, cfg, logging.NewNop())

	_, _, err := p.Check(context.Background(), processingAsset())
	require.ErrorIs(t, err, services.ErrConfiguration)
}
