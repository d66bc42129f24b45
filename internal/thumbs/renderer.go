package thumbs

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/heimdex/heimdex-backend/internal/probe"
)

// ThumbWidth is the target width in pixels. Height follows the source
// aspect ratio, rounded to an even value for the encoder.
const ThumbWidth = 320

const defaultExtractTimeout = 30 * time.Second

// Rendered describes one thumbnail written to the work directory.
type Rendered struct {
	Name       string
	LocalPath  string
	TimestampS float64
	WidthPx    int
	HeightPx   int
}

// Renderer extracts poster and sample frames for a probed asset.
type Renderer struct {
	timeout time.Duration

	// extract is swapped out in tests so they do not need ffmpeg on PATH.
	extract func(ctx context.Context, videoPath string, timestampS float64, outPath string) error
}

func NewRenderer(timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = defaultExtractTimeout
	}
	r := &Renderer{timeout: timeout}
	r.extract = r.extractFrame
	return r
}

// Render generates the thumbnails planned in the sidecar manifest and
// fills in their paths and dimensions. Frames that cannot be rendered are
// dropped from the manifest and recorded as a warning rather than failing
// the whole pass.
func (r *Renderer) Render(ctx context.Context, videoPath string, doc *probe.Sidecar, workDir string) ([]Rendered, error) {
	if doc.AssetID == "" {
		return nil, fmt.Errorf("sidecar missing asset id")
	}

	thumbsRoot := filepath.Join(workDir, "thumbs", doc.AssetID)
	if err := os.MkdirAll(thumbsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating thumbnail directory: %w", err)
	}

	var rendered []Rendered

	poster := &doc.Thumbnails.Poster
	posterPath := filepath.Join(thumbsRoot, "poster.jpg")
	if width, height, err := r.renderFrame(ctx, videoPath, poster.TimestampS, posterPath); err != nil {
		doc.AddWarning(probe.WarnThumbnailFailed)
		poster.Path = ""
		poster.WidthPx = 0
		poster.HeightPx = 0
	} else {
		poster.Path = path.Join("thumbs", doc.AssetID, "poster.jpg")
		poster.WidthPx = width
		poster.HeightPx = height
		rendered = append(rendered, Rendered{
			Name:       "poster.jpg",
			LocalPath:  posterPath,
			TimestampS: poster.TimestampS,
			WidthPx:    width,
			HeightPx:   height,
		})
	}

	kept := doc.Thumbnails.Samples[:0]
	for _, sample := range doc.Thumbnails.Samples {
		name := SampleName(sample.TimestampS)
		samplePath := filepath.Join(thumbsRoot, name)
		width, height, err := r.renderFrame(ctx, videoPath, sample.TimestampS, samplePath)
		if err != nil {
			doc.AddWarning(probe.WarnThumbnailFailed)
			continue
		}
		sample.Path = path.Join("thumbs", doc.AssetID, name)
		sample.WidthPx = width
		sample.HeightPx = height
		kept = append(kept, sample)
		rendered = append(rendered, Rendered{
			Name:       name,
			LocalPath:  samplePath,
			TimestampS: sample.TimestampS,
			WidthPx:    width,
			HeightPx:   height,
		})
	}
	doc.Thumbnails.Samples = kept

	return rendered, nil
}

func (r *Renderer) renderFrame(ctx context.Context, videoPath string, timestampS float64, outPath string) (int, int, error) {
	if err := r.extract(ctx, videoPath, timestampS, outPath); err != nil {
		os.Remove(outPath)
		return 0, 0, err
	}
	width, height, err := measure(outPath)
	if err != nil {
		os.Remove(outPath)
		return 0, 0, err
	}
	return width, height, nil
}

func (r *Renderer) extractFrame(ctx context.Context, videoPath string, timestampS float64, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin",
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", math.Max(timestampS, 0)),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", ThumbWidth),
		"-q:v", "2",
		"-y",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg frame extraction: %w: %s", err, string(output))
	}
	return nil
}

func measure(imagePath string) (int, int, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return 0, 0, fmt.Errorf("reading thumbnail: %w", err)
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// SampleName derives the sample filename from its timestamp, expressed in
// centiseconds so names sort chronologically.
func SampleName(timestampS float64) string {
	centis := int(math.Round(math.Max(timestampS, 0) * 100))
	return fmt.Sprintf("t%04d.jpg", centis)
}
