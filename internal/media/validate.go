package media

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/publish"
)

// sniffLen is how many leading bytes are read for signature detection.
// Matroska needs the most: the DocType element sits inside the EBML
// header, well within the first few KB.
const sniffLen = 4096

// allowedMIMEs is the ingestion allow-list. Anything else is rejected
// before the pipeline spends a single network call on it.
var allowedMIMEs = map[string]Kind{
	"image/jpeg": KindImage,
	"image/png":  KindImage,
	"image/gif":  KindImage,
	"image/webp": KindImage,

	"video/mp4":        KindVideo,
	"video/quicktime":  KindVideo,
	"video/x-msvideo":  KindVideo,
	"video/x-matroska": KindVideo,
	"video/webm":       KindVideo,
}

// Validator inspects raw media files and classifies them. Pure inspection;
// no side effects beyond reading the file.
type Validator struct {
	// MinBytes rejects files below this size as likely placeholders or
	// truncated uploads.
	MinBytes int64
}

// Validate inspects the file at path and returns a classified Asset.
// The declared filename is used only for log context, never for
// classification.
func (v *Validator) Validate(path, declaredName string) (Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: stat media: %v", publish.ErrValidation, err)
	}
	if info.Size() == 0 {
		return Asset{}, fmt.Errorf("%w: zero-length media file", publish.ErrValidation)
	}
	if info.Size() < v.MinBytes {
		return Asset{}, fmt.Errorf("%w: media file is %d bytes, below the %d byte minimum (likely placeholder or truncated)",
			publish.ErrValidation, info.Size(), v.MinBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: open media: %v", publish.ErrValidation, err)
	}
	defer f.Close()

	header := make([]byte, sniffLen)
	n, _ := f.Read(header)
	header = header[:n]

	mime := DetectMIME(header)
	kind, ok := allowedMIMEs[mime]
	if !ok {
		return Asset{}, fmt.Errorf("%w: unsupported media type %q (declared name %q)",
			publish.ErrValidation, mime, declaredName)
	}

	asset := Asset{
		Path: path,
		MIME: mime,
		Kind: kind,
		Size: info.Size(),
	}

	if kind == KindImage {
		if _, err := f.Seek(0, 0); err != nil {
			return Asset{}, fmt.Errorf("%w: seek media: %v", publish.ErrValidation, err)
		}
		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			return Asset{}, fmt.Errorf("%w: corrupt %s image: %v", publish.ErrValidation, mime, err)
		}
		asset.Width = cfg.Width
		asset.Height = cfg.Height
		asset.Capture = extractCapture(path)
	}

	log.Debug().
		Str("declaredName", declaredName).
		Str("mime", mime).
		Str("kind", string(kind)).
		Int64("size", info.Size()).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Msg("Media validated")

	return asset, nil
}

// DetectMIME classifies media by file signature. Returns
// "application/octet-stream" when no known signature matches.
func DetectMIME(header []byte) string {
	switch {
	case len(header) >= 3 && bytes.Equal(header[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(header) >= 8 && bytes.Equal(header[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case len(header) >= 4 && bytes.Equal(header[:4], []byte("GIF8")):
		return "image/gif"
	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return "image/webp"
	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("AVI ")):
		return "video/x-msvideo"
	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		if bytes.Equal(header[8:12], []byte("qt  ")) {
			return "video/quicktime"
		}
		return "video/mp4"
	case len(header) >= 4 && bytes.Equal(header[:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML container: the DocType element distinguishes WebM from
		// generic Matroska.
		if bytes.Contains(header, []byte("webm")) {
			return "video/webm"
		}
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

// extractCapture pulls EXIF capture metadata from an image for the audit
// record. Best-effort: most product renders carry no EXIF at all, so every
// failure path returns nil without complaint.
func extractCapture(path string) *Capture {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	exif, err := imagemeta.Decode(f)
	if err != nil {
		return nil
	}

	capture := &Capture{
		CameraMake:  strings.TrimSpace(exif.Make),
		CameraModel: strings.TrimSpace(exif.Model),
	}
	if !exif.DateTimeOriginal().IsZero() {
		capture.TakenAt = exif.DateTimeOriginal()
	} else if !exif.CreateDate().IsZero() {
		capture.TakenAt = exif.CreateDate()
	}

	if capture.TakenAt.IsZero() && capture.CameraMake == "" && capture.CameraModel == "" {
		return nil
	}
	return capture
}
