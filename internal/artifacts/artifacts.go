// Package artifacts encodes the output naming convention shared by the
// MediaConvert job settings, the webhook ingestor, the reconciler and the probe.
package artifacts

import (
	"path"
	"regexp"
	"strings"

	"encodesync/internal/assets"
)

// Output folder names and name modifiers used by every submitted job.
const (
	HLSFolder        = "hls"
	ThumbnailsFolder = "thumbnails"
	PreviewsFolder   = "previews"
	SpritesFolder    = "sprites"

	ThumbnailModifier = "_thumbnail"
	PreviewModifier   = "_preview"
	SpriteModifier    = "_sprite"
	HLSVariantSuffix  = "_720p"
)

var hlsAssetPattern = regexp.MustCompile(`/hls/([^/]+)/`)

// BaseName returns the source object's file name without directory or extension.
func BaseName(sourceKey string) string {
	key := strings.TrimSpace(sourceKey)
	if key == "" {
		return ""
	}
	base := path.Base(strings.ReplaceAll(key, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// Prefix returns the bucket-relative folder for an output kind, e.g. "hls/<id>/".
func Prefix(folder, assetID string) string {
	return folder + "/" + assetID + "/"
}

// Derive builds every output location for a source key. Empty when the key has no base name.
func Derive(assetID, sourceKey string) assets.Outputs {
	base := BaseName(sourceKey)
	if base == "" || strings.TrimSpace(assetID) == "" {
		return assets.Outputs{}
	}
	return assets.Outputs{
		Stream:    "/" + Prefix(HLSFolder, assetID) + base + ".m3u8",
		Thumbnail: "/" + Prefix(ThumbnailsFolder, assetID) + base + ThumbnailModifier + ".0000000.jpg",
		Preview:   "/" + Prefix(PreviewsFolder, assetID) + base + PreviewModifier + ".mp4",
		Sprite:    "/" + Prefix(SpritesFolder, assetID) + base + SpriteModifier + ".0000000.jpg",
	}
}

// DeriveFromStream fills the auxiliary outputs next to a known stream path.
func DeriveFromStream(assetID, stream string) assets.Outputs {
	base := BaseName(stream)
	base = strings.TrimSuffix(base, HLSVariantSuffix)
	if base == "" {
		return assets.Outputs{Stream: stream}
	}
	out := Derive(assetID, base)
	out.Stream = stream
	return out
}

// StripBucket turns "s3://bucket/key" into "/key"; other inputs gain a leading slash.
func StripBucket(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(location, "s3://"); ok {
		if idx := strings.Index(rest, "/"); idx >= 0 {
			return rest[idx:]
		}
		return "/"
	}
	if !strings.HasPrefix(location, "/") {
		return "/" + location
	}
	return location
}

// AssetIDFromPath extracts the asset id from a "/hls/<id>/" path component.
func AssetIDFromPath(location string) (string, bool) {
	match := hlsAssetPattern.FindStringSubmatch(StripBucket(location))
	if len(match) != 2 || match[1] == "" {
		return "", false
	}
	return match[1], true
}

// IsPlaylist reports whether a key names an HLS playlist.
func IsPlaylist(key string) bool {
	return strings.EqualFold(path.Ext(key), ".m3u8")
}

// IsVariantPlaylist reports whether a playlist is a rendition rather than the master.
func IsVariantPlaylist(key string) bool {
	return IsPlaylist(key) && strings.HasSuffix(strings.TrimSuffix(path.Base(key), path.Ext(key)), HLSVariantSuffix)
}

// PreferredPlaylist picks the master playlist over variants, or "" when no playlist is present.
func PreferredPlaylist(keys []string) string {
	var variant string
	for _, key := range keys {
		if !IsPlaylist(key) {
			continue
		}
		if !IsVariantPlaylist(key) {
			return key
		}
		if variant == "" {
			variant = key
		}
	}
	return variant
}
