package mediaconvert

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"

	"encodesync/internal/artifacts"
)

// User metadata keys attached to every job.
const (
	MetadataAssetID    = "asset_id"
	MetadataLegacyID   = "program_id"
	MetadataSourceFile = "source_file"
	MetadataWebhookURL = "webhook_url"
	MetadataJobName    = "job_name"
)

const audioSelectorName = "Audio Selector 1"

// JobSpec describes one encoding request.
type JobSpec struct {
	AssetID       string
	SourceKey     string
	UploadsBucket string
	OutputsBucket string
	WebhookURL    string
	JobName       string
}

// JobName formats "<prefix>-asset-<id>-<unix>".
func JobName(prefix, assetID string, now time.Time) string {
	return fmt.Sprintf("%s-asset-%s-%d", prefix, assetID, now.Unix())
}

// InputURI returns the s3 location of the source object.
func (s JobSpec) InputURI() string {
	return "s3://" + s.UploadsBucket + "/" + strings.TrimPrefix(s.SourceKey, "/")
}

func (s JobSpec) destination(folder string) string {
	return "s3://" + s.OutputsBucket + "/" + artifacts.Prefix(folder, s.AssetID)
}

// UserMetadata returns the identity and routing metadata carried by the job.
func (s JobSpec) UserMetadata() map[string]string {
	meta := map[string]string{
		MetadataAssetID:    s.AssetID,
		MetadataSourceFile: s.SourceKey,
	}
	if s.WebhookURL != "" {
		meta[MetadataWebhookURL] = s.WebhookURL
	}
	if s.JobName != "" {
		meta[MetadataJobName] = s.JobName
	}
	return meta
}

// Validate reports missing fields that would make the job unusable.
func (s JobSpec) Validate() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(s.AssetID) == "" {
		missing = append(missing, "asset id")
	}
	if strings.TrimSpace(s.SourceKey) == "" {
		missing = append(missing, "source key")
	}
	if strings.TrimSpace(s.UploadsBucket) == "" {
		missing = append(missing, "uploads bucket")
	}
	if strings.TrimSpace(s.OutputsBucket) == "" {
		missing = append(missing, "outputs bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("job spec missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Settings builds the MediaConvert job settings: one input and the thumbnail,
// preview, sprite and HLS output groups.
func (s JobSpec) Settings() *types.JobSettings {
	return &types.JobSettings{
		Inputs: []types.Input{{
			FileInput: aws.String(s.InputURI()),
			AudioSelectors: map[string]types.AudioSelector{
				audioSelectorName: {
					DefaultSelection: types.AudioDefaultSelectionDefault,
					Offset:           aws.Int32(0),
					ProgramSelection: aws.Int32(1),
				},
			},
			VideoSelector:  &types.VideoSelector{ColorSpace: types.ColorSpaceFollow},
			TimecodeSource: types.InputTimecodeSourceEmbedded,
		}},
		OutputGroups: []types.OutputGroup{
			s.thumbnailGroup(),
			s.previewGroup(),
			s.spriteGroup(),
			s.hlsGroup(),
		},
	}
}

func (s JobSpec) thumbnailGroup() types.OutputGroup {
	return fileGroup("Thumbnails", s.destination(artifacts.ThumbnailsFolder), types.Output{
		ContainerSettings: &types.ContainerSettings{Container: types.ContainerTypeRaw},
		VideoDescription:  frameCapture(1280, 720, 1, 5, 3),
		NameModifier:      aws.String(artifacts.ThumbnailModifier),
	})
}

func (s JobSpec) spriteGroup() types.OutputGroup {
	return fileGroup("Thumbnail Sprites", s.destination(artifacts.SpritesFolder), types.Output{
		ContainerSettings: &types.ContainerSettings{Container: types.ContainerTypeRaw},
		VideoDescription:  frameCapture(160, 90, 1, 10, 100),
		NameModifier:      aws.String(artifacts.SpriteModifier),
	})
}

func (s JobSpec) previewGroup() types.OutputGroup {
	return fileGroup("Preview Clip", s.destination(artifacts.PreviewsFolder), types.Output{
		ContainerSettings: &types.ContainerSettings{Container: types.ContainerTypeMp4},
		VideoDescription:  h264(640, 360, 1_000_000, 7),
		AudioDescriptions: []types.AudioDescription{aac(96_000)},
		NameModifier:      aws.String(artifacts.PreviewModifier),
	})
}

func (s JobSpec) hlsGroup() types.OutputGroup {
	return types.OutputGroup{
		Name: aws.String("Apple HLS"),
		OutputGroupSettings: &types.OutputGroupSettings{
			Type: types.OutputGroupTypeHlsGroupSettings,
			HlsGroupSettings: &types.HlsGroupSettings{
				Destination:            aws.String(s.destination(artifacts.HLSFolder)),
				SegmentLength:          aws.Int32(10),
				MinSegmentLength:       aws.Int32(0),
				ManifestDurationFormat: types.HlsManifestDurationFormatInteger,
			},
		},
		Outputs: []types.Output{{
			ContainerSettings: &types.ContainerSettings{Container: types.ContainerTypeM3u8},
			VideoDescription:  h264(1280, 720, 5_000_000, 7),
			AudioDescriptions: []types.AudioDescription{aac(128_000)},
			OutputSettings:    &types.OutputSettings{HlsSettings: &types.HlsSettings{}},
			NameModifier:      aws.String(artifacts.HLSVariantSuffix),
		}},
	}
}

func fileGroup(name, destination string, output types.Output) types.OutputGroup {
	return types.OutputGroup{
		Name: aws.String(name),
		OutputGroupSettings: &types.OutputGroupSettings{
			Type:              types.OutputGroupTypeFileGroupSettings,
			FileGroupSettings: &types.FileGroupSettings{Destination: aws.String(destination)},
		},
		Outputs: []types.Output{output},
	}
}

func frameCapture(width, height, numerator, denominator, captures int32) *types.VideoDescription {
	return &types.VideoDescription{
		Width:           aws.Int32(width),
		Height:          aws.Int32(height),
		ScalingBehavior: types.ScalingBehaviorDefault,
		CodecSettings: &types.VideoCodecSettings{
			Codec: types.VideoCodecFrameCapture,
			FrameCaptureSettings: &types.FrameCaptureSettings{
				FramerateNumerator:   aws.Int32(numerator),
				FramerateDenominator: aws.Int32(denominator),
				MaxCaptures:          aws.Int32(captures),
				Quality:              aws.Int32(80),
			},
		},
	}
}

func h264(width, height, maxBitrate, qvbrLevel int32) *types.VideoDescription {
	return &types.VideoDescription{
		Width:           aws.Int32(width),
		Height:          aws.Int32(height),
		ScalingBehavior: types.ScalingBehaviorDefault,
		Sharpness:       aws.Int32(50),
		CodecSettings: &types.VideoCodecSettings{
			Codec: types.VideoCodecH264,
			H264Settings: &types.H264Settings{
				MaxBitrate:      aws.Int32(maxBitrate),
				RateControlMode: types.H264RateControlModeQvbr,
				QvbrSettings:    &types.H264QvbrSettings{QvbrQualityLevel: aws.Int32(qvbrLevel)},
			},
		},
	}
}

func aac(bitrate int32) types.AudioDescription {
	return types.AudioDescription{
		AudioSourceName: aws.String(audioSelectorName),
		CodecSettings: &types.AudioCodecSettings{
			Codec: types.AudioCodecAac,
			AacSettings: &types.AacSettings{
				Bitrate:    aws.Int32(bitrate),
				CodingMode: types.AacCodingModeCodingMode20,
				SampleRate: aws.Int32(48_000),
			},
		},
	}
}
