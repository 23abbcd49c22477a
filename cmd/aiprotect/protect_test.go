package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gcslaoli/provenance-watermark-go/internal/config"
)

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestRunProtectWritesOutputs(t *testing.T) {
	t.Setenv(config.EnvVar, "")
	inDir := t.TempDir()
	outDir := t.TempDir()
	in := filepath.Join(inDir, "photo.png")
	writeTestPNG(t, in)

	err := runProtect([]string{"--creator", "Alice", "--type", "invisible", "--in", in, "--out", outDir})
	if err != nil {
		t.Fatalf("runProtect: %v", err)
	}

	out := filepath.Join(outDir, "photo_ai_protected.png")
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got := img.Bounds().Size(); got != (image.Point{X: 64, Y: 48}) {
		t.Fatalf("size = %v, want 64x48", got)
	}
}

func TestRunProtectRejects(t *testing.T) {
	t.Setenv(config.EnvVar, "")
	in := filepath.Join(t.TempDir(), "photo.png")
	writeTestPNG(t, in)

	tests := []struct {
		name string
		args []string
	}{
		{"no inputs", []string{"--creator", "Alice"}},
		{"missing creator", []string{"--in", in}},
		{"bad consent", []string{"--creator", "Alice", "--in", in, "--consent", "maybe"}},
		{"base64 without outbase64", []string{"--creator", "Alice", "--inbase64", "aGVsbG8="}},
		{"missing file", []string{"--creator", "Alice", "--in", in + ".missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := runProtect(tt.args); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "both", "visible"); got != "both" {
		t.Fatalf("got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("got %q", got)
	}
}
