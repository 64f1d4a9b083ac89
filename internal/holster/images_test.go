package ih

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sjc5/holster/internal/util"
)

func uncompressedPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestOptimizeImages(t *testing.T) {
	env := setupTestEnv(t)
	defer teardownTestEnv(t)

	original := uncompressedPNG(t)
	env.createTestFile(t, "build/images/logo.png", string(original))
	env.createTestFile(t, "build/images/icons/arrow.svg", "<svg></svg>")
	env.createTestFile(t, "build/images/broken.png", "not a png")

	if err := env.config.Run(context.Background(), NewOptions(true), "images"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	optimized := env.readTestFile(t, "images/logo.png")
	if len(optimized) >= len(original) {
		t.Errorf("optimized png is %d bytes, want fewer than %d", len(optimized), len(original))
	}
	if _, err := png.Decode(bytes.NewReader([]byte(optimized))); err != nil {
		t.Errorf("optimized png does not decode: %v", err)
	}
	if got := env.readTestFile(t, "images/icons/arrow.svg"); got != "<svg></svg>" {
		t.Errorf("svg = %q, want it copied as is", got)
	}
	if got := env.readTestFile(t, "images/broken.png"); got != "not a png" {
		t.Errorf("undecodable image = %q, want it copied as is", got)
	}
	if !env.exists(filepath.Join(stateDir, imageCacheFile)) {
		t.Fatal("image cache not written")
	}

	if err := env.config.Run(context.Background(), NewOptions(true), "images"); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !env.hasLogLine("images: 0 optimized, 3 unchanged") {
		t.Errorf("second run did not skip cached images:\n%v", env.logger.Lines())
	}

	if err := os.Remove(filepath.Join(testRootDir, "images", "logo.png")); err != nil {
		t.Fatal(err)
	}
	if err := env.config.Run(context.Background(), NewOptions(true), "images"); err != nil {
		t.Fatalf("third Run() error = %v", err)
	}
	if !env.exists("images/logo.png") {
		t.Error("missing output was not rewritten")
	}
}

func TestWriteOptimizedImageNeverGrows(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.png")

	// already at best compression: re-encoding cannot win
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "out", "small.png")
	if _, err := writeOptimizedImage(src, out, buf.Bytes()); err != nil {
		t.Fatalf("writeOptimizedImage() error = %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > buf.Len() {
		t.Errorf("output is %d bytes, input %d", len(got), buf.Len())
	}
}

func TestSaveImageCacheReportsErrors(t *testing.T) {
	root := t.TempDir()
	c := &Config{RootDir: root, Logger: &util.RecordingLogger{}}

	if err := c.saveImageCache(imageCache{"build/images/a.png": "abc"}); err != nil {
		t.Fatalf("saveImageCache() error = %v", err)
	}
	if got := c.loadImageCache(); got["build/images/a.png"] != "abc" {
		t.Errorf("loadImageCache() = %v, want the saved entry", got)
	}

	// a file where the state directory should be
	blocked := &Config{RootDir: filepath.Join(root, "blocked"), Logger: &util.RecordingLogger{}}
	if err := os.MkdirAll(blocked.RootDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(blocked.RootDir, stateDir), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := blocked.saveImageCache(imageCache{}); err == nil {
		t.Error("saveImageCache() error = nil, want an error")
	}
}
