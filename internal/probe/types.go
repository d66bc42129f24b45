package probe

import (
	"encoding/json"
	"sort"
)

// SchemaVersion identifies the sidecar document layout.
const SchemaVersion = "0.1.0"

// ParserVersion is recorded in the sidecar provenance block.
const ParserVersion = "heimdex.ingest/0.1.0"

// Source types.
const (
	SourceLocal  = "local"
	SourceGDrive = "gdrive"
)

// Stream types after normalization. Anything ffprobe reports outside the
// known set collapses to "other".
const (
	StreamVideo    = "video"
	StreamAudio    = "audio"
	StreamData     = "data"
	StreamSubtitle = "subtitle"
	StreamOther    = "other"
)

// Warning codes the parser emits.
const (
	WarnDurationUnavailable  = "duration_unavailable"
	WarnNoAudioStream        = "no_audio_stream"
	WarnFrameRateUnavailable = "frame_rate_unavailable"
	WarnThumbnailFailed      = "thumbnail_generation_failed"
)

// Sidecar is the normalized probe document persisted for an asset.
type Sidecar struct {
	SchemaVersion string             `json:"schema_version"`
	AssetID       string             `json:"asset_id"`
	Source        SourceBlock        `json:"source"`
	Format        FormatBlock        `json:"format"`
	Video         *VideoSummary      `json:"video"`
	Audio         *AudioSummary      `json:"audio"`
	Streams       []Stream           `json:"streams"`
	Thumbnails    ThumbnailManifest  `json:"thumbnails"`
	Provenance    ProvenanceBlock    `json:"provenance"`
	Warnings      []string           `json:"warnings"`
	Errors        []string           `json:"errors"`
}

type SourceBlock struct {
	Type         string    `json:"type"`
	URI          string    `json:"uri"`
	Filename     string    `json:"filename"`
	SizeBytes    *int64    `json:"size_bytes"`
	CreatedTime  string    `json:"created_time"`
	ModifiedTime *string   `json:"modified_time"`
	Hash         *HashInfo `json:"hash"`
}

type HashInfo struct {
	Algo  string `json:"algo"`
	Value string `json:"value"`
}

type FormatBlock struct {
	Container   string            `json:"container"`
	DurationS   float64           `json:"duration_s"`
	BitrateKbps *int              `json:"bitrate_kbps"`
	Tags        map[string]string `json:"tags"`
}

type VideoSummary struct {
	Codec            string   `json:"codec"`
	Profile          *string  `json:"profile"`
	WidthPx          int      `json:"width_px"`
	HeightPx         int      `json:"height_px"`
	PixelAspectRatio float64  `json:"pixel_aspect_ratio"`
	FrameRateFPS     *float64 `json:"frame_rate_fps"`
	ColorSpace       *string  `json:"color_space"`
	ColorTransfer    *string  `json:"color_transfer"`
	ColorPrimaries   *string  `json:"color_primaries"`
}

type AudioSummary struct {
	Codec        string `json:"codec"`
	Channels     int    `json:"channels"`
	SampleRateHz int    `json:"sample_rate_hz"`
	BitrateKbps  *int   `json:"bitrate_kbps"`
}

type Stream struct {
	Index              int               `json:"index"`
	Type               string            `json:"type"`
	Codec              string            `json:"codec"`
	AvgFrameRate       *string           `json:"avg_frame_rate"`
	RFrameRate         *string           `json:"r_frame_rate"`
	WidthPx            *int              `json:"width_px"`
	HeightPx           *int              `json:"height_px"`
	Channels           *int              `json:"channels"`
	SampleRateHz       *int              `json:"sample_rate_hz"`
	BitrateKbps        *int              `json:"bitrate_kbps"`
	DispositionDefault *bool             `json:"disposition_default"`
	Tags               map[string]string `json:"tags"`
}

// ThumbnailManifest describes planned and rendered thumbnails. The parser
// seeds timestamps; rendering fills paths and dimensions.
type ThumbnailManifest struct {
	Poster  ThumbnailEntry   `json:"poster"`
	Samples []ThumbnailEntry `json:"samples"`
}

type ThumbnailEntry struct {
	TimestampS float64 `json:"timestamp_s"`
	Path       string  `json:"path"`
	WidthPx    int     `json:"width_px"`
	HeightPx   int     `json:"height_px"`
}

type ProvenanceBlock struct {
	IngestedAt      string            `json:"ingested_at"`
	Tools           map[string]string `json:"tools"`
	SelectionPolicy map[string]string `json:"selection_policy"`
	HashQuality     *string           `json:"hash_quality"`
	SourceETag      *string           `json:"source_etag"`
	DriveMD5        *string           `json:"drive_md5"`
}

// AddWarning records a warning code, keeping the list deduplicated and
// sorted.
func (s *Sidecar) AddWarning(code string) {
	for _, existing := range s.Warnings {
		if existing == code {
			return
		}
	}
	s.Warnings = append(s.Warnings, code)
	sort.Strings(s.Warnings)
}

// MarshalIndent renders the document for storage with stable formatting.
func (s *Sidecar) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
