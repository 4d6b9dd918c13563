package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"

	"github.com/storeberg/crosspost/internal/publish"
)

// testWebP encodes a WebP image of the given size with a gradient so the
// encoder has something non-trivial to chew on.
func testWebP(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: 85}); err != nil {
		t.Fatalf("encode test webp: %v", err)
	}
	return buf.Bytes()
}

func validateFile(t *testing.T, path string) Asset {
	t.Helper()
	v := &Validator{MinBytes: 16}
	asset, err := v.Validate(path, filepath.Base(path))
	if err != nil {
		t.Fatalf("validate %s: %v", path, err)
	}
	return asset
}

func decodeDims(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open converted file: %v", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode converted file: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestConvert_WebPToJPEG_PreservesDimensions(t *testing.T) {
	path := writeTempFile(t, "product.webp", testWebP(t, 50, 50))
	asset := validateFile(t, path)

	c := &Converter{TempDir: t.TempDir()}
	out, err := c.Convert(context.Background(), asset, publish.PlatformInstagram)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	t.Cleanup(func() { os.Remove(out.Path) })

	if out.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", out.MIME)
	}
	if out.Width != 50 || out.Height != 50 {
		t.Errorf("expected 50x50, got %dx%d", out.Width, out.Height)
	}
	if w, h := decodeDims(t, out.Path); w != 50 || h != 50 {
		t.Errorf("file on disk is %dx%d, want 50x50", w, h)
	}
	if out.Path == asset.Path {
		t.Error("conversion must produce a new file, not mutate the input")
	}
	if _, err := os.Stat(asset.Path); err != nil {
		t.Errorf("input file must survive conversion: %v", err)
	}
}

func TestConvert_CompliantImageIsNoOp(t *testing.T) {
	// A JPEG within the cap passes through unchanged.
	img := image.NewRGBA(image.Rect(0, 0, 60, 40))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	path := writeTempFile(t, "already.jpg", buf.Bytes())
	asset := validateFile(t, path)

	c := &Converter{TempDir: t.TempDir()}
	out, err := c.Convert(context.Background(), asset, publish.PlatformFacebook)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out.Path != asset.Path {
		t.Errorf("expected no-op conversion to return the input asset, got new path %s", out.Path)
	}
}

func TestConvert_PNGForInstagramBecomesJPEG(t *testing.T) {
	// Instagram accepts only JPEG images; PNG must be re-encoded.
	path := writeTempFile(t, "render.png", testPNG(t, 30, 30))
	asset := validateFile(t, path)

	c := &Converter{TempDir: t.TempDir()}
	out, err := c.Convert(context.Background(), asset, publish.PlatformInstagram)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	t.Cleanup(func() { os.Remove(out.Path) })

	if out.MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg for Instagram, got %s", out.MIME)
	}

	// The same PNG is acceptable to Facebook as-is.
	out2, err := c.Convert(context.Background(), asset, publish.PlatformFacebook)
	if err != nil {
		t.Fatalf("convert for facebook: %v", err)
	}
	if out2.Path != asset.Path {
		t.Error("PNG should pass through unchanged for Facebook")
	}
}

func TestConvert_AlphaFlattenedOntoWhite(t *testing.T) {
	// Fully transparent PNG: every output pixel should be white.
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := writeTempFile(t, "transparent.png", buf.Bytes())
	asset := validateFile(t, path)

	c := &Converter{TempDir: t.TempDir()}
	out, err := c.Convert(context.Background(), asset, publish.PlatformInstagram)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	t.Cleanup(func() { os.Remove(out.Path) })

	f, err := os.Open(out.Path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	decoded, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}

	r, g, b, _ := decoded.At(5, 5).RGBA()
	// JPEG is lossy; allow a small delta off pure white.
	const min = 0xF000
	if r < min || g < min || b < min {
		t.Errorf("expected near-white pixel after alpha flatten, got r=%#x g=%#x b=%#x", r, g, b)
	}
}

func TestConvert_DownscalesPastMaxDimension(t *testing.T) {
	// 3000x1500 exceeds Instagram's 1440 cap -> longest edge 1440, aspect kept.
	path := writeTempFile(t, "wide.png", testPNG(t, 3000, 1500))
	asset := validateFile(t, path)

	c := &Converter{TempDir: t.TempDir()}
	out, err := c.Convert(context.Background(), asset, publish.PlatformInstagram)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	t.Cleanup(func() { os.Remove(out.Path) })

	if out.Width != 1440 || out.Height != 720 {
		t.Errorf("expected 1440x720, got %dx%d", out.Width, out.Height)
	}
}

func TestScaleDimensions(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{3000, 1500, 1440, 1440, 720},
		{1500, 3000, 1440, 720, 1440},
		{2048, 2048, 1440, 1440, 1440},
		{5000, 1, 1440, 1440, 1},
	}
	for _, tt := range tests {
		gotW, gotH := scaleDimensions(tt.w, tt.h, tt.max)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("scaleDimensions(%d,%d,%d) = %dx%d, want %dx%d",
				tt.w, tt.h, tt.max, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}
