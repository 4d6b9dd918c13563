package locator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/storeberg/crosspost/internal/media"
	"github.com/storeberg/crosspost/internal/publish"
)

func writeAsset(t *testing.T, mime string) media.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.bin")
	if err := os.WriteFile(path, []byte("media-bytes-here"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return media.Asset{Path: path, MIME: mime, Kind: media.KindImage, Size: 16}
}

func TestLocate_Passthrough(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	asset := writeAsset(t, "image/jpeg")
	asset.SourceURL = server.URL + "/product.jpg" // https

	l := New(nil, nil)
	l.headClient = server.Client()

	ref, err := l.Locate(context.Background(), asset)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if ref.Backend != BackendPassthrough {
		t.Errorf("expected passthrough backend, got %s", ref.Backend)
	}
	if ref.PublicURL != asset.SourceURL {
		t.Errorf("expected source URL %s, got %s", asset.SourceURL, ref.PublicURL)
	}
	if ref.LocalPath != asset.Path {
		t.Errorf("passthrough should keep the local copy available")
	}
}

func TestLocate_LocalStore(t *testing.T) {
	dir := t.TempDir()
	mux := http.NewServeMux()
	mux.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(dir))))
	server := httptest.NewServer(mux)
	defer server.Close()

	asset := writeAsset(t, "image/jpeg")
	l := New(&LocalStore{Dir: dir, BaseURL: server.URL}, nil)
	l.headClient = server.Client()

	ref, err := l.Locate(context.Background(), asset)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if ref.Backend != BackendLocal {
		t.Errorf("expected local backend, got %s", ref.Backend)
	}
	if !strings.HasPrefix(ref.PublicURL, server.URL+"/media/") || !strings.HasSuffix(ref.PublicURL, ".jpg") {
		t.Errorf("unexpected URL: %s", ref.PublicURL)
	}
	if _, err := os.Stat(ref.LocalPath); err != nil {
		t.Errorf("stored copy missing: %v", err)
	}
}

type fakeS3 struct {
	putKey         string
	putContentType string
	err            error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.putKey = *params.Key
	f.putContentType = *params.ContentType
	return &s3.PutObjectOutput{}, nil
}

func TestLocate_MirrorUpload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	fake := &fakeS3{}
	mirror := NewMirrorStore(fake, "product-media", server.URL)
	mirror.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }

	asset := writeAsset(t, "video/mp4")
	l := New(nil, mirror)
	l.headClient = server.Client()

	ref, err := l.Locate(context.Background(), asset)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if ref.Backend != BackendMirror {
		t.Errorf("expected mirror backend, got %s", ref.Backend)
	}
	if matched, _ := regexp.MatchString(`^2026/08/31/[0-9a-f-]+\.mp4$`, fake.putKey); !matched {
		t.Errorf("expected date-tree key layout, got %s", fake.putKey)
	}
	if fake.putContentType != "video/mp4" {
		t.Errorf("expected content type video/mp4, got %s", fake.putContentType)
	}
	if ref.LocalPath != "" {
		t.Errorf("mirror ref should carry no local path")
	}
	// The source file outlives the locate call: sibling targets may
	// still need it.
	if _, err := os.Stat(asset.Path); err != nil {
		t.Errorf("source file must survive a mirror upload, stat err = %v", err)
	}
}

func TestLocate_MirrorSharedSourceAcrossTargets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	mirror := NewMirrorStore(&fakeS3{}, "product-media", server.URL)
	asset := writeAsset(t, "image/jpeg")
	l := New(nil, mirror)
	l.headClient = server.Client()

	// Two targets publishing the same no-op-converted asset each run
	// their own locate leg over the shared file.
	for target := 0; target < 2; target++ {
		if _, err := l.Locate(context.Background(), asset); err != nil {
			t.Fatalf("target %d locate: %v", target, err)
		}
	}
}

func TestLocate_UnreachableURLFailsFast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	asset := writeAsset(t, "image/jpeg")
	l := New(&LocalStore{Dir: t.TempDir(), BaseURL: server.URL}, nil)
	l.headClient = server.Client()

	_, err := l.Locate(context.Background(), asset)
	if !errors.Is(err, publish.ErrLocator) {
		t.Fatalf("expected ErrLocator for unreachable URL, got %v", err)
	}
}

func TestLocate_FallsThroughToMirror(t *testing.T) {
	// Local serving 404s; the mirror URL answers. First success wins, in order.
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	fake := &fakeS3{}
	mirror := NewMirrorStore(fake, "product-media", good.URL)
	mirror.now = time.Now

	asset := writeAsset(t, "image/jpeg")
	l := New(&LocalStore{Dir: t.TempDir(), BaseURL: bad.URL}, mirror)
	l.headClient = &http.Client{Timeout: headTimeout}

	ref, err := l.Locate(context.Background(), asset)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if ref.Backend != BackendMirror {
		t.Errorf("expected fallback to mirror, got %s", ref.Backend)
	}
}

func TestLocate_NothingApplicable(t *testing.T) {
	l := New(nil, nil)
	_, err := l.Locate(context.Background(), media.Asset{MIME: "image/jpeg"})
	if !errors.Is(err, publish.ErrLocator) {
		t.Fatalf("expected ErrLocator, got %v", err)
	}
}
