package locator

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/media"
)

// s3API is the subset of the S3 client the mirror uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MirrorStore uploads media to a remote S3 bucket under a date-tree key
// layout (YYYY/MM/DD/<name>), mirroring the legacy uploads-directory
// convention, and returns the bucket's public HTTPS URL.
type MirrorStore struct {
	Client  s3API
	Bucket  string
	BaseURL string // public base of the bucket; empty uses the virtual-hosted S3 URL

	// now is stubbed in tests.
	now func() time.Time
}

// NewMirrorStore builds a MirrorStore for the given bucket.
func NewMirrorStore(client s3API, bucket, baseURL string) *MirrorStore {
	return &MirrorStore{
		Client:  client,
		Bucket:  bucket,
		BaseURL: baseURL,
		now:     time.Now,
	}
}

func (s *MirrorStore) name() string { return "mirror" }

func (s *MirrorStore) locate(ctx context.Context, asset media.Asset) (Ref, bool, error) {
	if asset.Path == "" {
		return Ref{}, false, nil
	}

	key := s.now().UTC().Format("2006/01/02") + "/" + uuid.New().String() + extForMIME(asset.MIME)

	f, err := os.Open(asset.Path)
	if err != nil {
		return Ref{}, false, fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	contentType := asset.MIME
	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.Bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return Ref{}, false, fmt.Errorf("mirror upload to s3://%s/%s: %w", s.Bucket, key, err)
	}

	log.Debug().Str("bucket", s.Bucket).Str("key", key).Msg("Media mirrored to S3")

	return Ref{
		PublicURL:   s.publicURL(key),
		Backend:     BackendMirror,
		ContentType: asset.MIME,
	}, true, nil
}

func (s *MirrorStore) publicURL(key string) string {
	if s.BaseURL != "" {
		return strings.TrimSuffix(s.BaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.Bucket, key)
}
