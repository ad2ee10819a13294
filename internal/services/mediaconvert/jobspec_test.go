package mediaconvert_test

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encodesync/internal/services/mediaconvert"
)

func TestJobName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, "encodesync-asset-42-1700000000", mediaconvert.JobName("encodesync", "42", now))
}

func TestSettingsOutputGroups(t *testing.T) {
	settings := testSpec().Settings()
	require.Len(t, settings.OutputGroups, 4)

	byName := map[string]types.OutputGroup{}
	for _, group := range settings.OutputGroups {
		byName[aws.ToString(group.Name)] = group
	}

	thumbs := byName["Thumbnails"]
	assert.Equal(t, types.OutputGroupTypeFileGroupSettings, thumbs.OutputGroupSettings.Type)
	assert.Equal(t, "s3://out/thumbnails/42/", aws.ToString(thumbs.OutputGroupSettings.FileGroupSettings.Destination))
	capture := thumbs.Outputs[0].VideoDescription.CodecSettings.FrameCaptureSettings
	assert.Equal(t, int32(3), aws.ToInt32(capture.MaxCaptures))
	assert.Equal(t, int32(5), aws.ToInt32(capture.FramerateDenominator))
	assert.Equal(t, "_thumbnail", aws.ToString(thumbs.Outputs[0].NameModifier))

	preview := byName["Preview Clip"]
	assert.Equal(t, "s3://out/previews/42/", aws.ToString(preview.OutputGroupSettings.FileGroupSettings.Destination))
	assert.Equal(t, types.ContainerTypeMp4, preview.Outputs[0].ContainerSettings.Container)
	assert.Equal(t, int32(640), aws.ToInt32(preview.Outputs[0].VideoDescription.Width))
	assert.Equal(t, int32(96_000), aws.ToInt32(preview.Outputs[0].AudioDescriptions[0].CodecSettings.AacSettings.Bitrate))

	sprites := byName["Thumbnail Sprites"]
	spriteCapture := sprites.Outputs[0].VideoDescription.CodecSettings.FrameCaptureSettings
	assert.Equal(t, int32(100), aws.ToInt32(spriteCapture.MaxCaptures))
	assert.Equal(t, int32(160), aws.ToInt32(sprites.Outputs[0].VideoDescription.Width))

	hls := byName["Apple HLS"]
	assert.Equal(t, types.OutputGroupTypeHlsGroupSettings, hls.OutputGroupSettings.Type)
	assert.Equal(t, "s3://out/hls/42/", aws.ToString(hls.OutputGroupSettings.HlsGroupSettings.Destination))
	assert.Equal(t, int32(10), aws.ToInt32(hls.OutputGroupSettings.HlsGroupSettings.SegmentLength))
	assert.Equal(t, "_720p", aws.ToString(hls.Outputs[0].NameModifier))
	assert.Equal(t, int32(5_000_000), aws.ToInt32(hls.Outputs[0].VideoDescription.CodecSettings.H264Settings.MaxBitrate))
}

func TestInputSettings(t *testing.T) {
	input := testSpec().Settings().Inputs[0]
	assert.Equal(t, types.InputTimecodeSourceEmbedded, input.TimecodeSource)
	selector, ok := input.AudioSelectors["Audio Selector 1"]
	require.True(t, ok)
	assert.Equal(t, types.AudioDefaultSelectionDefault, selector.DefaultSelection)
}
