package locator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/storeberg/crosspost/internal/media"
)

// LocalStore serves media from a directory exposed under the configured
// public base URL (the server mounts it at /media/).
type LocalStore struct {
	// Dir is the static storage directory.
	Dir string
	// BaseURL is the public HTTPS base address, e.g.
	// "https://posts.example.com". The served path is BaseURL + /media/<name>.
	BaseURL string
}

func (s *LocalStore) name() string { return "local" }

func (s *LocalStore) locate(_ context.Context, asset media.Asset) (Ref, bool, error) {
	if asset.Path == "" {
		return Ref{}, false, nil
	}

	filename := uuid.New().String() + extForMIME(asset.MIME)
	dst := filepath.Join(s.Dir, filename)

	if err := copyFile(asset.Path, dst); err != nil {
		return Ref{}, false, fmt.Errorf("copy into local store: %w", err)
	}

	return Ref{
		PublicURL:   strings.TrimSuffix(s.BaseURL, "/") + "/media/" + filename,
		Backend:     BackendLocal,
		ContentType: asset.MIME,
		LocalPath:   dst,
	}, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// extForMIME maps the detected mime to the extension platforms expect to
// see in a fetched URL.
func extForMIME(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	case "video/x-matroska":
		return ".mkv"
	case "video/x-msvideo":
		return ".avi"
	default:
		return ""
	}
}
