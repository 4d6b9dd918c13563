// Package media implements inspection, validation, and normalization of
// submitted media assets. Classification is done by file signature bytes,
// never by trusting a filename extension.
//
// Image handling is pure Go (chai2010/webp + golang.org/x/image/draw);
// video handling shells out to ffmpeg/ffprobe like the rest of the
// toolchain on the box.
package media

import (
	"time"

	"github.com/storeberg/crosspost/internal/publish"
)

// Kind classifies an asset as image or video.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Asset describes one media file at a point in the pipeline. Conversion
// produces a new Asset; an Asset is never mutated in place.
type Asset struct {
	// Path is the local temp file holding the bytes.
	Path string

	// SourceURL is set when the media was supplied by reference rather
	// than uploaded. Cleared by conversion (converted bytes no longer
	// match the source).
	SourceURL string

	MIME   string
	Kind   Kind
	Width  int
	Height int
	Size   int64

	// Capture is best-effort EXIF metadata kept for the audit record.
	Capture *Capture
}

// Capture holds EXIF metadata extracted from an image, recorded alongside
// the publish result for audit.
type Capture struct {
	TakenAt     time.Time `json:"takenAt,omitempty"`
	CameraMake  string    `json:"cameraMake,omitempty"`
	CameraModel string    `json:"cameraModel,omitempty"`
}

// Profile describes what one platform accepts and its dimension cap.
type Profile struct {
	ImageMIMEs map[string]bool
	VideoMIMEs map[string]bool
	// MaxDimension caps the longest image edge; larger images are
	// proportionally downscaled. 0 means uncapped.
	MaxDimension int
}

var profiles = map[publish.Platform]Profile{
	publish.PlatformFacebook: {
		ImageMIMEs:   map[string]bool{"image/jpeg": true, "image/png": true, "image/gif": true},
		VideoMIMEs:   map[string]bool{"video/mp4": true, "video/quicktime": true},
		MaxDimension: 2048,
	},
	publish.PlatformInstagram: {
		ImageMIMEs:   map[string]bool{"image/jpeg": true},
		VideoMIMEs:   map[string]bool{"video/mp4": true},
		MaxDimension: 1440,
	},
}

// ProfileFor returns the media profile for a platform. Unknown platforms
// get the most restrictive profile (Instagram's).
func ProfileFor(platform publish.Platform) Profile {
	if p, ok := profiles[platform]; ok {
		return p
	}
	return profiles[publish.PlatformInstagram]
}

// AcceptsImage reports whether the profile accepts mime as an image format.
func (p Profile) AcceptsImage(mime string) bool { return p.ImageMIMEs[mime] }

// AcceptsVideo reports whether the profile accepts mime as a video container.
func (p Profile) AcceptsVideo(mime string) bool { return p.VideoMIMEs[mime] }
