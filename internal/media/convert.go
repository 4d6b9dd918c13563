package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	xdraw "golang.org/x/image/draw"

	"github.com/storeberg/crosspost/internal/publish"
)

// jpegQuality is the fixed re-encode quality for normalized images.
const jpegQuality = 90

// ErrVideoTranscode marks a video that could not be transcoded. Kept
// distinct from image conversion failures so callers can tell which leg
// of the converter gave up.
var ErrVideoTranscode = errors.New("video transcode failed")

var _ = webp.Decode // webp import also registers the "webp" format for image.Decode*

// Converter normalizes media into a platform-acceptable form. Conversion
// is a pure transform: it writes a new temp file and returns a new Asset,
// never touching the input.
type Converter struct {
	// TempDir is where converted files are written. Empty means the
	// system temp dir.
	TempDir string
}

// Convert returns an asset acceptable by the target platform. An already
// compliant asset is returned unchanged; compliance of converted output is
// re-checked by sniffing the produced bytes, not by extension.
func (c *Converter) Convert(ctx context.Context, asset Asset, platform publish.Platform) (Asset, error) {
	profile := ProfileFor(platform)

	switch asset.Kind {
	case KindImage:
		if profile.AcceptsImage(asset.MIME) && !exceedsMax(asset, profile) {
			return asset, nil
		}
		return c.convertImage(asset, profile, platform)
	case KindVideo:
		if profile.AcceptsVideo(asset.MIME) && videoCodecAcceptable(ctx, asset.Path) {
			return asset, nil
		}
		return c.transcodeVideo(ctx, asset, platform)
	default:
		return Asset{}, fmt.Errorf("%w: unknown media kind %q", publish.ErrConversion, asset.Kind)
	}
}

func exceedsMax(asset Asset, profile Profile) bool {
	if profile.MaxDimension == 0 {
		return false
	}
	return asset.Width > profile.MaxDimension || asset.Height > profile.MaxDimension
}

// convertImage decodes the source (any registered format, including WebP),
// flattens alpha onto white, optionally downscales to the platform's max
// dimension preserving aspect ratio, and re-encodes as JPEG.
func (c *Converter) convertImage(asset Asset, profile Profile, platform publish.Platform) (Asset, error) {
	f, err := os.Open(asset.Path)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: open image: %v", publish.ErrConversion, err)
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: decode %s image: %v", publish.ErrConversion, asset.MIME, err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	// Flatten any alpha channel onto a white background. Pixels are never
	// cropped; only a proportional downscale past the platform cap.
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, src, bounds.Min, draw.Over)

	out := image.Image(flat)
	if profile.MaxDimension > 0 && (width > profile.MaxDimension || height > profile.MaxDimension) {
		newW, newH := scaleDimensions(width, height, profile.MaxDimension)
		scaled := image.NewRGBA(image.Rect(0, 0, newW, newH))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), flat, bounds, xdraw.Over, nil)
		out = scaled
		width, height = newW, newH
	}

	dst, err := os.CreateTemp(c.TempDir, "crosspost-img-*.jpg")
	if err != nil {
		return Asset{}, fmt.Errorf("%w: create temp file: %v", publish.ErrConversion, err)
	}

	if err := jpeg.Encode(dst, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return Asset{}, fmt.Errorf("%w: encode JPEG: %v", publish.ErrConversion, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return Asset{}, fmt.Errorf("%w: close temp file: %v", publish.ErrConversion, err)
	}

	converted, err := verifyMIME(dst.Name(), "image/jpeg")
	if err != nil {
		os.Remove(dst.Name())
		return Asset{}, err
	}
	converted.Kind = KindImage
	converted.Width = width
	converted.Height = height
	converted.Capture = asset.Capture

	log.Debug().
		Str("platform", string(platform)).
		Str("from", format).
		Int("width", width).
		Int("height", height).
		Int64("size", converted.Size).
		Msg("Image normalized to JPEG")

	return converted, nil
}

// scaleDimensions returns (w, h) proportionally scaled so the longest edge
// equals maxDim.
func scaleDimensions(w, h, maxDim int) (int, int) {
	if w >= h {
		newH := h * maxDim / w
		if newH < 1 {
			newH = 1
		}
		return maxDim, newH
	}
	newW := w * maxDim / h
	if newW < 1 {
		newW = 1
	}
	return newW, maxDim
}

// verifyMIME re-sniffs a produced file and confirms it matches want.
func verifyMIME(path, want string) (Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: reopen converted file: %v", publish.ErrConversion, err)
	}
	defer f.Close()

	header := make([]byte, sniffLen)
	n, _ := f.Read(header)
	got := DetectMIME(header[:n])
	if got != want {
		return Asset{}, fmt.Errorf("%w: converted file sniffs as %q, wanted %q", publish.ErrConversion, got, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: stat converted file: %v", publish.ErrConversion, err)
	}

	return Asset{Path: path, MIME: got, Size: info.Size()}, nil
}

// tempOutputPath builds a unique sibling path for transcoded output.
func (c *Converter) tempOutputPath(pattern string) (string, error) {
	dir := c.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	// ffmpeg refuses to overwrite without -y; we pass -y, so the empty
	// placeholder file is fine.
	return filepath.Clean(name), nil
}
