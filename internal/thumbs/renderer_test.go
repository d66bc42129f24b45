package thumbs

import (
	"context"
	"fmt"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/heimdex/heimdex-backend/internal/probe"
)

func testSidecar(samples ...float64) *probe.Sidecar {
	doc := &probe.Sidecar{
		SchemaVersion: probe.SchemaVersion,
		AssetID:       "sha256:abc",
		Thumbnails: probe.ThumbnailManifest{
			Poster:  probe.ThumbnailEntry{TimestampS: 62.74},
			Samples: []probe.ThumbnailEntry{},
		},
		Warnings: []string{},
		Errors:   []string{},
	}
	for _, ts := range samples {
		doc.Thumbnails.Samples = append(doc.Thumbnails.Samples, probe.ThumbnailEntry{TimestampS: ts})
	}
	return doc
}

func fakeExtract(width, height int) func(context.Context, string, float64, string) error {
	return func(_ context.Context, _ string, _ float64, outPath string) error {
		frame := imaging.New(width, height, color.NRGBA{R: 30, G: 30, B: 30, A: 255})
		return imaging.Save(frame, outPath)
	}
}

func TestRenderFillsManifest(t *testing.T) {
	workDir := t.TempDir()
	doc := testSidecar(25.096, 100.384)

	renderer := NewRenderer(0)
	renderer.extract = fakeExtract(320, 180)

	rendered, err := renderer.Render(context.Background(), "/media/clip.mp4", doc, workDir)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if len(rendered) != 3 {
		t.Fatalf("expected poster plus two samples, got %d", len(rendered))
	}

	poster := doc.Thumbnails.Poster
	if poster.Path != "thumbs/sha256:abc/poster.jpg" {
		t.Fatalf("unexpected poster path %s", poster.Path)
	}
	if poster.WidthPx != 320 || poster.HeightPx != 180 {
		t.Fatalf("unexpected poster dimensions %dx%d", poster.WidthPx, poster.HeightPx)
	}

	if len(doc.Thumbnails.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(doc.Thumbnails.Samples))
	}
	if doc.Thumbnails.Samples[0].Path != "thumbs/sha256:abc/t2510.jpg" {
		t.Fatalf("unexpected sample path %s", doc.Thumbnails.Samples[0].Path)
	}
	if doc.Thumbnails.Samples[1].Path != "thumbs/sha256:abc/t10038.jpg" {
		t.Fatalf("unexpected sample path %s", doc.Thumbnails.Samples[1].Path)
	}
	if len(doc.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", doc.Warnings)
	}

	for _, entry := range rendered {
		if filepath.Dir(entry.LocalPath) != filepath.Join(workDir, "thumbs", "sha256:abc") {
			t.Fatalf("thumbnail written outside work dir: %s", entry.LocalPath)
		}
	}
}

func TestRenderDropsFailedSamples(t *testing.T) {
	workDir := t.TempDir()
	doc := testSidecar(25.096, 100.384)

	renderer := NewRenderer(0)
	calls := 0
	renderer.extract = func(ctx context.Context, videoPath string, ts float64, outPath string) error {
		calls++
		if ts > 100 {
			return fmt.Errorf("seek past end")
		}
		return fakeExtract(320, 180)(ctx, videoPath, ts, outPath)
	}

	rendered, err := renderer.Render(context.Background(), "/media/clip.mp4", doc, workDir)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if calls != 3 {
		t.Fatalf("expected 3 extraction attempts, got %d", calls)
	}
	if len(rendered) != 2 {
		t.Fatalf("expected 2 rendered thumbnails, got %d", len(rendered))
	}
	if len(doc.Thumbnails.Samples) != 1 {
		t.Fatalf("failed samples must be dropped, got %d", len(doc.Thumbnails.Samples))
	}
	if len(doc.Warnings) != 1 || doc.Warnings[0] != probe.WarnThumbnailFailed {
		t.Fatalf("expected thumbnail failure warning, got %v", doc.Warnings)
	}
}

func TestRenderPosterFailureZeroesEntry(t *testing.T) {
	workDir := t.TempDir()
	doc := testSidecar()

	renderer := NewRenderer(0)
	renderer.extract = func(context.Context, string, float64, string) error {
		return fmt.Errorf("ffmpeg missing")
	}

	rendered, err := renderer.Render(context.Background(), "/media/clip.mp4", doc, workDir)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(rendered) != 0 {
		t.Fatalf("expected nothing rendered, got %d", len(rendered))
	}
	poster := doc.Thumbnails.Poster
	if poster.Path != "" || poster.WidthPx != 0 || poster.HeightPx != 0 {
		t.Fatalf("poster must be zeroed on failure, got %+v", poster)
	}
	if len(doc.Warnings) != 1 || doc.Warnings[0] != probe.WarnThumbnailFailed {
		t.Fatalf("expected thumbnail failure warning, got %v", doc.Warnings)
	}
}

func TestSampleName(t *testing.T) {
	cases := map[float64]string{
		25.096:  "t2510.jpg",
		100.384: "t10038.jpg",
		0:       "t0000.jpg",
		-1.5:    "t0000.jpg",
		0.005:   "t0001.jpg",
	}
	for ts, want := range cases {
		if got := SampleName(ts); got != want {
			t.Fatalf("SampleName(%v) = %s, want %s", ts, got, want)
		}
	}
}
