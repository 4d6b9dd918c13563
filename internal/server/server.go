// Package server exposes the webhook surface of the service:
//
//	GET  /webhook  — Meta verification handshake (hub.challenge echo)
//	POST /webhook  — product-publication submissions (multipart or JSON)
//	GET  /healthz  — liveness
//	GET  /media/   — locally stored media, when the local store is enabled
//
// POST bodies are authenticated with X-Hub-Signature-256 (HMAC-SHA256 over
// the raw body with the shared webhook secret) before any parsing happens.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/config"
	"github.com/storeberg/crosspost/internal/orchestrator"
	"github.com/storeberg/crosspost/internal/publish"
)

// maxBodySize caps inbound request bodies and media_url fetches. Product
// images sit well under this; anything larger is rejected before it is
// spooled.
const maxBodySize = 64 << 20 // 64 MB

// fetchTimeout bounds the media_url download.
const fetchTimeout = 60 * time.Second

// Runner is the orchestration entry point the server drives.
type Runner interface {
	Run(ctx context.Context, sub publish.Submission, m orchestrator.Media) (*orchestrator.Outcome, error)
}

// Server holds the webhook surface and its collaborators.
type Server struct {
	runner      Runner
	verifyToken string
	secret      string
	spoolDir    string
	mediaDir    string
	fetchClient *http.Client
	fetchLimit  int64
}

// New creates the server. mediaDir may be empty when the local media
// store is disabled; /media/ is not mounted then.
func New(runner Runner, cfg *config.Config) *Server {
	return &Server{
		runner:      runner,
		verifyToken: cfg.VerifyToken,
		secret:      cfg.WebhookSecret,
		spoolDir:    cfg.MediaDir,
		mediaDir:    cfg.MediaDir,
		fetchClient: &http.Client{Timeout: fetchTimeout},
		fetchLimit:  maxBodySize,
	}
}

// Mux builds the route table.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.mediaDir != "" {
		mux.Handle("/media/", http.StripPrefix("/media/",
			http.FileServer(http.Dir(s.mediaDir))))
	}
	return withLogging(mux)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerification(w, r)
	case http.MethodPost:
		s.handleSubmission(w, r)
	default:
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleVerification answers the Meta subscription handshake: echo
// hub.challenge when hub.verify_token matches, 403 otherwise.
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || challenge == "" {
		httpError(w, http.StatusBadRequest, "missing required parameters")
		return
	}
	if mode != "subscribe" {
		httpError(w, http.StatusBadRequest, "invalid mode")
		return
	}
	if token != s.verifyToken {
		log.Warn().Msg("Webhook verification failed: invalid verify token")
		httpError(w, http.StatusForbidden, "invalid verify token")
		return
	}

	log.Info().Msg("Webhook verification successful")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withLogging logs every request with its terminal status and duration.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
