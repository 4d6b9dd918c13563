// Package facebook publishes product media to a Facebook Page via the
// Graph API. The publisher is state-free: each attempt walks an ordered
// list of strategies and stops at the first success, guaranteeing the
// media renders as a real image/video rather than a bare text link
// whenever the platform allows it.
package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/publish"
)

const (
	// defaultBaseURL is the Facebook Graph API base URL.
	defaultBaseURL = "https://graph.facebook.com/v22.0"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 60 * time.Second

	// retryBackoff is the pause before the single transient-error retry.
	retryBackoff = 2 * time.Second
)

// Publisher publishes to Facebook Pages via the Graph API.
type Publisher struct {
	httpClient *http.Client
	baseURL    string
	backoff    time.Duration
}

// NewPublisher creates a Facebook Graph API publisher.
func NewPublisher() *Publisher {
	return &Publisher{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		backoff:    retryBackoff,
	}
}

// --- API response types ---

// apiResponse is the generic Graph API response for publish calls.
// Photo uploads return both the photo id and the page post id.
type apiResponse struct {
	ID     string  `json:"id"`
	PostID string  `json:"post_id,omitempty"`
	Error  *apiErr `json:"error,omitempty"`
}

type apiErr struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

// --- HTTP helpers ---

// do sends the request and classifies failures into transient vs permanent
// platform errors.
func (p *Publisher) do(req *http.Request) (*apiResponse, error) {
	start := time.Now()
	httpResp, err := p.httpClient.Do(req)
	if err != nil {
		// Network failure or timeout: transient.
		return nil, &publish.APIError{
			Platform:  publish.PlatformFacebook,
			Message:   err.Error(),
			Transient: true,
		}
	}
	defer httpResp.Body.Close()

	log.Debug().
		Str("path", req.URL.Path).
		Int("statusCode", httpResp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Facebook API response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &publish.APIError{
			Platform:  publish.PlatformFacebook,
			Message:   fmt.Sprintf("read response: %v", err),
			Transient: true,
		}
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil && httpResp.StatusCode < 300 {
		return nil, &publish.APIError{
			Platform:   publish.PlatformFacebook,
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("unparseable response: %s", truncate(string(body), 200)),
			Transient:  false,
		}
	}

	if httpResp.StatusCode >= 300 || resp.Error != nil {
		msg := fmt.Sprintf("status %d", httpResp.StatusCode)
		if resp.Error != nil {
			msg = fmt.Sprintf("%s (type %s, code %d, trace %s)",
				resp.Error.Message, resp.Error.Type, resp.Error.Code, resp.Error.FBTraceID)
		}
		return nil, &publish.APIError{
			Platform:   publish.PlatformFacebook,
			StatusCode: httpResp.StatusCode,
			Message:    msg,
			Transient:  httpResp.StatusCode >= 500,
		}
	}

	if resp.ID == "" {
		return nil, &publish.APIError{
			Platform:   publish.PlatformFacebook,
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("no id in response: %s", truncate(string(body), 200)),
			Transient:  false,
		}
	}

	return &resp, nil
}

// postForm sends form-encoded parameters to the Graph API.
func (p *Publisher) postForm(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req)
}

// postMultipart uploads a local file plus form fields to the Graph API.
func (p *Publisher) postMultipart(ctx context.Context, endpoint, fileField, filePath string, fields map[string]string) (*apiResponse, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile(fileField, "media"+extOf(filePath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return p.do(req)
}

func extOf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
