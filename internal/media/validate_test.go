package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/storeberg/crosspost/internal/publish"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

// testPNG encodes a solid-color PNG of the given size.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}, "image/png"},
		{"gif", []byte("GIF89a\x00\x00\x00\x00\x00\x00"), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), "image/webp"},
		{"avi", []byte("RIFF\x00\x00\x00\x00AVI "), "video/x-msvideo"},
		{"mp4", []byte("\x00\x00\x00\x18ftypisom\x00\x00\x00\x00"), "video/mp4"},
		{"mov", []byte("\x00\x00\x00\x14ftypqt  \x00\x00\x00\x00"), "video/quicktime"},
		{"webm", append([]byte{0x1A, 0x45, 0xDF, 0xA3}, []byte("\x42\x82\x84webm")...), "video/webm"},
		{"mkv", append([]byte{0x1A, 0x45, 0xDF, 0xA3}, []byte("\x42\x82\x88matroska")...), "video/x-matroska"},
		{"unknown", []byte("not a media file at all"), "application/octet-stream"},
		{"empty", nil, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectMIME(tt.header); got != tt.want {
				t.Errorf("DetectMIME(%s) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestValidate_ZeroLength(t *testing.T) {
	v := &Validator{MinBytes: 1024}
	path := writeTempFile(t, "empty.jpg", nil)

	_, err := v.Validate(path, "empty.jpg")
	if !errors.Is(err, publish.ErrValidation) {
		t.Fatalf("expected ErrValidation for zero-length file, got %v", err)
	}
}

func TestValidate_BelowMinimum(t *testing.T) {
	v := &Validator{MinBytes: 1024}
	path := writeTempFile(t, "tiny.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0})

	_, err := v.Validate(path, "tiny.jpg")
	if !errors.Is(err, publish.ErrValidation) {
		t.Fatalf("expected ErrValidation for undersized file, got %v", err)
	}
}

func TestValidate_ExtensionLies(t *testing.T) {
	// A PNG named .mp4 must classify as PNG: signature wins over name.
	v := &Validator{MinBytes: 16}
	path := writeTempFile(t, "video.mp4", testPNG(t, 40, 30))

	asset, err := v.Validate(path, "video.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.MIME != "image/png" {
		t.Errorf("expected image/png, got %s", asset.MIME)
	}
	if asset.Kind != KindImage {
		t.Errorf("expected image kind, got %s", asset.Kind)
	}
	if asset.Width != 40 || asset.Height != 30 {
		t.Errorf("expected 40x30, got %dx%d", asset.Width, asset.Height)
	}
}

func TestValidate_UnsupportedType(t *testing.T) {
	v := &Validator{MinBytes: 4}
	path := writeTempFile(t, "doc.pdf", []byte("%PDF-1.7 some pdf content here"))

	_, err := v.Validate(path, "doc.pdf")
	if !errors.Is(err, publish.ErrValidation) {
		t.Fatalf("expected ErrValidation for unsupported type, got %v", err)
	}
}

func TestValidate_CorruptImage(t *testing.T) {
	// Valid PNG signature, garbage body.
	v := &Validator{MinBytes: 8}
	data := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0xAB}, 64)...)
	path := writeTempFile(t, "broken.png", data)

	_, err := v.Validate(path, "broken.png")
	if !errors.Is(err, publish.ErrValidation) {
		t.Fatalf("expected ErrValidation for corrupt image, got %v", err)
	}
}

func TestValidate_Video(t *testing.T) {
	v := &Validator{MinBytes: 8}
	body := append([]byte("\x00\x00\x00\x18ftypisom"), bytes.Repeat([]byte{0}, 64)...)
	path := writeTempFile(t, "clip.bin", body)

	asset, err := v.Validate(path, "clip.bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asset.Kind != KindVideo || asset.MIME != "video/mp4" {
		t.Errorf("expected video/mp4 video, got %s %s", asset.Kind, asset.MIME)
	}
}
