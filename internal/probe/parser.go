package probe

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SourceContext carries everything the parser needs to know about where
// the probed bytes came from.
type SourceContext struct {
	Type         string
	URI          string
	Filename     string
	SizeBytes    *int64
	AssetID      string
	CreatedTime  *time.Time
	ModifiedTime *time.Time
	Hash         *HashInfo
	HashQuality  *string
	SourceETag   *string
	DriveMD5     *string
}

// rawReport mirrors the ffprobe -print_format json output we consume.
type rawReport struct {
	Format  rawFormat   `json:"format"`
	Streams []rawStream `json:"streams"`
}

type rawFormat struct {
	FormatName     string          `json:"format_name"`
	FormatLongName string          `json:"format_long_name"`
	Duration       json.RawMessage `json:"duration"`
	BitRate        json.RawMessage `json:"bit_rate"`
	Tags           map[string]any  `json:"tags"`
}

type rawStream struct {
	Index             int             `json:"index"`
	CodecType         string          `json:"codec_type"`
	CodecName         string          `json:"codec_name"`
	Profile           string          `json:"profile"`
	AvgFrameRate      string          `json:"avg_frame_rate"`
	RFrameRate        string          `json:"r_frame_rate"`
	Width             json.RawMessage `json:"width"`
	Height            json.RawMessage `json:"height"`
	Channels          json.RawMessage `json:"channels"`
	SampleRate        json.RawMessage `json:"sample_rate"`
	BitRate           json.RawMessage `json:"bit_rate"`
	SampleAspectRatio string          `json:"sample_aspect_ratio"`
	ColorSpace        string          `json:"color_space"`
	ColorTransfer     string          `json:"color_transfer"`
	ColorPrimaries    string          `json:"color_primaries"`
	Disposition       map[string]int  `json:"disposition"`
	Tags              map[string]any  `json:"tags"`
}

// Parse normalizes raw ffprobe JSON into the canonical sidecar document.
func Parse(raw []byte, src SourceContext) (*Sidecar, error) {
	var report rawReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decoding ffprobe output: %w", err)
	}
	return buildSidecar(report, src, time.Now().UTC()), nil
}

func buildSidecar(report rawReport, src SourceContext, ingestedAt time.Time) *Sidecar {
	var warnings []string

	formatTags := normalizeTags(report.Format.Tags)

	durationS, durationWarn := parseDuration(report.Format.Duration)
	if durationWarn != "" {
		warnings = append(warnings, durationWarn)
	}

	bitrateKbps := parseBitrateKbps(report.Format.BitRate)

	streams, videoStreams, audioStreams := parseStreams(report.Streams)

	videoSummary, videoWarn := summarizeVideo(videoStreams)
	if videoWarn != "" {
		warnings = append(warnings, videoWarn)
	}

	audioSummary, audioWarn := summarizeAudio(audioStreams)
	if audioWarn != "" {
		warnings = append(warnings, audioWarn)
	}

	createdTime := determineCreatedTime(src, formatTags, append(videoStreams, audioStreams...), ingestedAt)

	var modifiedISO *string
	if src.ModifiedTime != nil {
		v := formatDatetime(*src.ModifiedTime)
		modifiedISO = &v
	}

	container := report.Format.FormatName
	if container == "" {
		container = report.Format.FormatLongName
	}
	if container == "" {
		container = "unknown"
	}

	doc := &Sidecar{
		SchemaVersion: SchemaVersion,
		AssetID:       src.AssetID,
		Source: SourceBlock{
			Type:         src.Type,
			URI:          src.URI,
			Filename:     src.Filename,
			SizeBytes:    src.SizeBytes,
			CreatedTime:  formatDatetime(createdTime),
			ModifiedTime: modifiedISO,
			Hash:         src.Hash,
		},
		Format: FormatBlock{
			Container:   container,
			DurationS:   durationS,
			BitrateKbps: bitrateKbps,
			Tags:        formatTags,
		},
		Video:      videoSummary,
		Audio:      audioSummary,
		Streams:    streams,
		Thumbnails: initialThumbnailManifest(durationS),
		Provenance: ProvenanceBlock{
			IngestedAt: formatDatetime(ingestedAt),
			Tools: map[string]string{
				"ffprobe": binaryVersion("ffprobe", "-version"),
				"ffmpeg":  binaryVersion("ffmpeg", "-version"),
				"parser":  ParserVersion,
			},
			SelectionPolicy: map[string]string{
				"video": "first_default_or_highest_resolution",
				"audio": "first_default_or_highest_channels",
			},
			HashQuality: src.HashQuality,
			SourceETag:  src.SourceETag,
			DriveMD5:    src.DriveMD5,
		},
		Warnings: dedupeSorted(warnings),
		Errors:   []string{},
	}
	return doc
}

// initialThumbnailManifest seeds poster and sample timestamps. The poster
// sits at the midpoint; clips of a minute or longer also get 20% and 80%
// samples.
func initialThumbnailManifest(durationS float64) ThumbnailManifest {
	posterTime := 0.0
	if durationS > 0 {
		posterTime = durationS / 2.0
	}
	manifest := ThumbnailManifest{
		Poster:  ThumbnailEntry{TimestampS: round3(posterTime)},
		Samples: []ThumbnailEntry{},
	}
	if durationS >= 60.0 {
		for _, ratio := range []float64{0.2, 0.8} {
			manifest.Samples = append(manifest.Samples, ThumbnailEntry{
				TimestampS: round3(durationS * ratio),
			})
		}
	}
	return manifest
}

func normalizeTags(tags map[string]any) map[string]string {
	normalized := map[string]string{}
	for key, value := range tags {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			normalized[key] = v
		case map[string]any, []any:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			normalized[key] = string(encoded)
		default:
			normalized[key] = fmt.Sprint(v)
		}
	}
	return normalized
}

func parseDuration(raw json.RawMessage) (float64, string) {
	value := scalarString(raw)
	if value == "" || value == "N/A" {
		return 0.0, WarnDurationUnavailable
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0.0, WarnDurationUnavailable
	}
	return parsed, ""
}

func parseBitrateKbps(raw json.RawMessage) *int {
	value := scalarString(raw)
	if value == "" || value == "N/A" {
		return nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	kbps := int(math.Round(float64(parsed) / 1000.0))
	return &kbps
}

type scoredStream struct {
	raw     rawStream
	payload *Stream
}

func parseStreams(rawStreams []rawStream) ([]Stream, []scoredStream, []scoredStream) {
	payload := make([]Stream, 0, len(rawStreams))
	var videoStreams, audioStreams []scoredStream

	for _, stream := range rawStreams {
		streamType := normalizeStreamType(stream.CodecType)
		codec := stream.CodecName
		if codec == "" {
			codec = "unknown"
		}
		entry := Stream{
			Index:              stream.Index,
			Type:               streamType,
			Codec:              codec,
			AvgFrameRate:       rationalString(stream.AvgFrameRate),
			RFrameRate:         rationalString(stream.RFrameRate),
			WidthPx:            intOrNil(stream.Width),
			HeightPx:           intOrNil(stream.Height),
			Channels:           intOrNil(stream.Channels),
			SampleRateHz:       intOrNil(stream.SampleRate),
			BitrateKbps:        parseBitrateKbps(stream.BitRate),
			DispositionDefault: dispositionDefault(stream.Disposition),
			Tags:               normalizeTags(stream.Tags),
		}
		payload = append(payload, entry)
		scored := scoredStream{raw: stream, payload: &payload[len(payload)-1]}
		switch streamType {
		case StreamVideo:
			videoStreams = append(videoStreams, scored)
		case StreamAudio:
			audioStreams = append(audioStreams, scored)
		}
	}

	sort.SliceStable(payload, func(i, j int) bool { return payload[i].Index < payload[j].Index })
	return payload, videoStreams, audioStreams
}

func normalizeStreamType(value string) string {
	switch strings.ToLower(value) {
	case StreamVideo, StreamAudio, StreamData, StreamSubtitle:
		return strings.ToLower(value)
	default:
		return StreamOther
	}
}

func intOrNil(raw json.RawMessage) *int {
	value := scalarString(raw)
	if value == "" || value == "N/A" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &parsed
}

func dispositionDefault(disposition map[string]int) *bool {
	if disposition == nil {
		return nil
	}
	value, ok := disposition["default"]
	if !ok {
		return nil
	}
	b := value != 0
	return &b
}

func rationalString(value string) *string {
	if value == "" || value == "N/A" {
		return nil
	}
	return &value
}

func summarizeVideo(streams []scoredStream) (*VideoSummary, string) {
	if len(streams) == 0 {
		return nil, ""
	}

	selected := selectVideoStream(streams)
	frameRate := frameRateFromPayload(selected.payload)
	warning := ""
	if frameRate == nil {
		warning = WarnFrameRateUnavailable
	}

	summary := &VideoSummary{
		Codec:            selected.payload.Codec,
		Profile:          optString(selected.raw.Profile),
		WidthPx:          derefInt(selected.payload.WidthPx),
		HeightPx:         derefInt(selected.payload.HeightPx),
		PixelAspectRatio: parseSampleAspectRatio(selected.raw.SampleAspectRatio),
		FrameRateFPS:     frameRate,
		ColorSpace:       optString(selected.raw.ColorSpace),
		ColorTransfer:    optString(selected.raw.ColorTransfer),
		ColorPrimaries:   optString(selected.raw.ColorPrimaries),
	}
	return summary, warning
}

// selectVideoStream prefers the first stream flagged default, then the
// highest resolution.
func selectVideoStream(streams []scoredStream) scoredStream {
	for _, stream := range streams {
		if d := stream.payload.DispositionDefault; d != nil && *d {
			return stream
		}
	}
	best := streams[0]
	bestScore := -1
	for _, stream := range streams {
		score := derefInt(stream.payload.WidthPx) * derefInt(stream.payload.HeightPx)
		if score > bestScore {
			best = stream
			bestScore = score
		}
	}
	return best
}

func summarizeAudio(streams []scoredStream) (*AudioSummary, string) {
	if len(streams) == 0 {
		return nil, WarnNoAudioStream
	}

	selected := selectAudioStream(streams)
	summary := &AudioSummary{
		Codec:        selected.payload.Codec,
		Channels:     derefInt(selected.payload.Channels),
		SampleRateHz: derefInt(selected.payload.SampleRateHz),
		BitrateKbps:  selected.payload.BitrateKbps,
	}
	return summary, ""
}

// selectAudioStream prefers the first stream flagged default, then the
// highest channel count with sample rate as tiebreak.
func selectAudioStream(streams []scoredStream) scoredStream {
	for _, stream := range streams {
		if d := stream.payload.DispositionDefault; d != nil && *d {
			return stream
		}
	}
	best := streams[0]
	bestChannels, bestRate := -1, -1
	for _, stream := range streams {
		channels := derefInt(stream.payload.Channels)
		rate := derefInt(stream.payload.SampleRateHz)
		if channels > bestChannels || (channels == bestChannels && rate > bestRate) {
			best = stream
			bestChannels, bestRate = channels, rate
		}
	}
	return best
}

func frameRateFromPayload(payload *Stream) *float64 {
	for _, candidate := range []*string{payload.AvgFrameRate, payload.RFrameRate} {
		if candidate == nil {
			continue
		}
		if rate := parseRational(*candidate); rate != nil {
			return rate
		}
	}
	return nil
}

func parseRational(value string) *float64 {
	if value == "" || value == "0/0" || value == "N/A" {
		return nil
	}
	if !strings.Contains(value, "/") {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil
		}
		rounded := round2(parsed)
		return &rounded
	}
	parts := strings.SplitN(value, "/", 2)
	numerator, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil
	}
	denominator, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil
	}
	if denominator == 0 {
		return nil
	}
	rounded := round2(numerator / denominator)
	return &rounded
}

func parseSampleAspectRatio(value string) float64 {
	if value == "" || value == "0:1" || value == "N/A" {
		return 1.0
	}
	if !strings.Contains(value, ":") {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed == 0 {
			return 1.0
		}
		return parsed
	}
	parts := strings.SplitN(value, ":", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 1.0
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 1.0
	}
	ratio := num / den
	if ratio <= 0 {
		return 1.0
	}
	return ratio
}

// determineCreatedTime picks the best available creation timestamp:
// filesystem birth time, then the earliest creation tag from the
// container or streams, then source mtime, then ingest time.
func determineCreatedTime(src SourceContext, formatTags map[string]string, streams []scoredStream, fallback time.Time) time.Time {
	if src.CreatedTime != nil {
		return src.CreatedTime.UTC()
	}

	tagKeys := []string{
		"com.apple.quicktime.creationdate",
		"creation_time",
		"date",
	}
	var candidates []time.Time
	for _, key := range tagKeys {
		if value := formatTags[key]; value != "" {
			if candidate := parseDatetime(value); candidate != nil {
				candidates = append(candidates, *candidate)
			}
		}
	}
	for _, stream := range streams {
		for _, key := range tagKeys {
			if value := stream.payload.Tags[key]; value != "" {
				if candidate := parseDatetime(value); candidate != nil {
					candidates = append(candidates, *candidate)
				}
			}
		}
	}

	if len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
		return candidates[0]
	}

	if src.ModifiedTime != nil {
		return src.ModifiedTime.UTC()
	}
	return fallback
}

func parseDatetime(value string) *time.Time {
	value = strings.TrimSpace(value)
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z0700",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999999",
	}
	for _, format := range formats {
		if parsed, err := time.Parse(format, value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

func formatDatetime(value time.Time) string {
	return value.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

func dedupeSorted(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

func optString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefInt(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func round3(value float64) float64 {
	return math.Round(value*1000) / 1000
}

func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}
	return ""
}
