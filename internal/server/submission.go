package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/orchestrator"
	"github.com/storeberg/crosspost/internal/publish"
)

// webhookResponse is the reply envelope. The overall status uses the
// webhook contract's vocabulary (published, duplicate_skipped, failed);
// per-target results keep the internal result statuses.
type webhookResponse struct {
	SubmissionID string           `json:"submission_id,omitempty"`
	Status       string           `json:"status"`
	Reason       string           `json:"reason,omitempty"`
	Results      []publish.Result `json:"results,omitempty"`
}

// overallStatus translates a run status into the webhook vocabulary.
func overallStatus(st publish.Status) string {
	switch st {
	case publish.StatusSuccess:
		return "published"
	case publish.StatusSkipped:
		return "duplicate_skipped"
	default:
		return "failed"
	}
}

// jsonSubmission is the by-reference payload shape: the media stays on the
// source platform and is fetched from media_url.
type jsonSubmission struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ProductURL  string `json:"product_url"`
	StoreID     string `json:"store_id"`
	MediaURL    string `json:"media_url"`
}

// handleSubmission accepts one product-publication event. Two body shapes
// are supported: multipart/form-data with the media bytes inline, and
// application/json carrying a media_url to fetch. Either way the raw body
// is HMAC-verified before parsing.
func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		httpError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	defer r.Body.Close()
	if len(body) == 0 {
		httpError(w, http.StatusBadRequest, "empty body")
		return
	}
	if len(body) > maxBodySize {
		httpError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	if !s.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("Webhook submission rejected: invalid signature")
		httpError(w, http.StatusForbidden, "invalid signature")
		return
	}

	sub, m, err := s.parseSubmission(r, body)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(m.Path)

	if sub.Title == "" || sub.StoreID == "" {
		httpError(w, http.StatusBadRequest, "title and store_id are required")
		return
	}

	out, err := s.runner.Run(r.Context(), sub, m)
	if err != nil {
		s.respondRunError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, webhookResponse{
		SubmissionID: out.SubmissionID,
		Status:       overallStatus(out.Status),
		Results:      out.Results,
	})
}

// parseSubmission extracts the submission fields and spools the media to a
// local temp file, whichever body shape arrived.
func (s *Server) parseSubmission(r *http.Request, body []byte) (publish.Submission, orchestrator.Media, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("invalid content type: %w", err)
	}

	switch {
	case mediaType == "multipart/form-data":
		return s.parseMultipart(body, params["boundary"])
	case mediaType == "application/json":
		return s.parseJSON(r.Context(), body)
	default:
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func (s *Server) parseMultipart(body []byte, boundary string) (publish.Submission, orchestrator.Media, error) {
	if boundary == "" {
		return publish.Submission{}, orchestrator.Media{}, errors.New("multipart body without boundary")
	}

	form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(maxBodySize)
	if err != nil {
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("parse multipart form: %w", err)
	}
	defer form.RemoveAll()

	field := func(name string) string {
		if v, ok := form.Value[name]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	sub := publish.Submission{
		Title:       field("title"),
		Description: field("description"),
		ProductURL:  field("product_url"),
		StoreID:     field("store_id"),
	}

	files, ok := form.File["media"]
	if !ok || len(files) == 0 {
		return publish.Submission{}, orchestrator.Media{}, errors.New("media file part is required")
	}
	fh := files[0]

	src, err := fh.Open()
	if err != nil {
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("open media part: %w", err)
	}
	defer src.Close()

	path, _, err := s.spool(src)
	if err != nil {
		return publish.Submission{}, orchestrator.Media{}, err
	}
	return sub, orchestrator.Media{Path: path, DeclaredName: fh.Filename}, nil
}

// parseJSON handles by-reference submissions: the media is fetched from
// media_url into the spool so validation and conversion see real bytes.
// The origin URL travels along so the passthrough locator strategy can
// reuse it when the media needs no conversion.
func (s *Server) parseJSON(ctx context.Context, body []byte) (publish.Submission, orchestrator.Media, error) {
	var payload jsonSubmission
	if err := json.Unmarshal(body, &payload); err != nil {
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("parse JSON body: %w", err)
	}
	if payload.MediaURL == "" {
		return publish.Submission{}, orchestrator.Media{}, errors.New("media_url is required")
	}
	if !strings.HasPrefix(payload.MediaURL, "https://") {
		return publish.Submission{}, orchestrator.Media{}, errors.New("media_url must be https")
	}

	sub := publish.Submission{
		Title:       payload.Title,
		Description: payload.Description,
		ProductURL:  payload.ProductURL,
		StoreID:     payload.StoreID,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.MediaURL, nil)
	if err != nil {
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("build media_url request: %w", err)
	}
	resp, err := s.fetchClient.Do(req)
	if err != nil {
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("fetch media_url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("fetch media_url: status %d", resp.StatusCode)
	}

	path, n, err := s.spool(io.LimitReader(resp.Body, s.fetchLimit+1))
	if err != nil {
		return publish.Submission{}, orchestrator.Media{}, err
	}
	if n > s.fetchLimit {
		os.Remove(path)
		return publish.Submission{}, orchestrator.Media{}, fmt.Errorf("media at %s exceeds the %d byte limit", payload.MediaURL, s.fetchLimit)
	}
	return sub, orchestrator.Media{
		Path:         path,
		DeclaredName: filepath.Base(payload.MediaURL),
		SourceURL:    payload.MediaURL,
	}, nil
}

// spool writes the media bytes to a temp file in the configured spool
// dir, returning the path and the byte count written.
func (s *Server) spool(src io.Reader) (string, int64, error) {
	dir := s.spoolDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "crosspost-in-*")
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}
	n, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", 0, fmt.Errorf("spool media: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), n, nil
}

// respondRunError maps pre-fan-out pipeline errors onto HTTP statuses: bad
// input is the caller's fault (4xx), duplicates are acknowledged with 200
// so the source platform does not retry them.
func (s *Server) respondRunError(w http.ResponseWriter, err error) {
	kind := orchestrator.Classify(err)
	switch kind {
	case "duplicate":
		respondJSON(w, http.StatusOK, webhookResponse{
			Status: overallStatus(publish.StatusSkipped),
			Reason: err.Error(),
		})
	case "validation":
		httpError(w, http.StatusUnprocessableEntity, err.Error())
	case "configuration":
		httpError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Orchestration run failed")
		httpError(w, http.StatusInternalServerError, "internal error")
	}
}

// verifySignature checks X-Hub-Signature-256 ("sha256=<hex>") over body
// with the shared secret. Constant-time comparison via hmac.Equal.
func (s *Server) verifySignature(body []byte, header string) bool {
	if s.secret == "" {
		// Signature enforcement disabled, e.g. local development.
		return true
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	received, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	return hmac.Equal(received, mac.Sum(nil))
}
