// Package instagram publishes product media to an Instagram Business
// account via the Graph API content publishing endpoints.
//
// Instagram publishing is a two-phase protocol: a media container is
// created first (synchronously for images, asynchronously for video), and
// only a FINISHED container can be published. The per-attempt state
// machine lives in publisher.go; this file is the HTTP client.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/publish"
)

const (
	// defaultBaseURL is the Instagram Graph API base URL.
	defaultBaseURL = "https://graph.instagram.com/v22.0"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second
)

// client wraps the Graph API calls. Credentials travel per call: one
// publisher serves many accounts.
type client struct {
	httpClient *http.Client
	baseURL    string
}

// --- API response types ---

// apiResponse is the generic Instagram Graph API response.
type apiResponse struct {
	ID    string  `json:"id"`
	Error *apiErr `json:"error,omitempty"`
}

type apiErr struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

// containerStatusResponse is the response from GET /{container_id}?fields=status_code,status.
type containerStatusResponse struct {
	ID         string  `json:"id"`
	StatusCode string  `json:"status_code"` // IN_PROGRESS, FINISHED, ERROR
	Status     string  `json:"status,omitempty"`
	Error      *apiErr `json:"error,omitempty"`
}

// createImageContainer creates a synchronous image media container.
// mediaURL must be publicly reachable; the locator has already verified it.
func (c *client) createImageContainer(ctx context.Context, accountID, token, mediaURL, caption string) (string, error) {
	params := url.Values{
		"image_url":    {mediaURL},
		"caption":      {caption},
		"access_token": {token},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media", accountID), params)
	if err != nil {
		return "", fmt.Errorf("create image container: %w", err)
	}
	log.Debug().Str("containerId", resp.ID).Str("type", "image").Msg("Image container created")
	return resp.ID, nil
}

// createVideoContainer creates an asynchronous reel container. The
// container needs server-side processing before it can be published.
func (c *client) createVideoContainer(ctx context.Context, accountID, token, mediaURL, caption string) (string, error) {
	params := url.Values{
		"video_url":    {mediaURL},
		"media_type":   {"REELS"},
		"caption":      {caption},
		"access_token": {token},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media", accountID), params)
	if err != nil {
		return "", fmt.Errorf("create video container: %w", err)
	}
	log.Debug().Str("containerId", resp.ID).Str("type", "video").Msg("Video container created")
	return resp.ID, nil
}

// publishContainer issues the publish call. Returns the platform post id;
// a publish that answers without an id is an error, never a silent success.
func (c *client) publishContainer(ctx context.Context, accountID, token, containerID string) (string, error) {
	params := url.Values{
		"creation_id":  {containerID},
		"access_token": {token},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media_publish", accountID), params)
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	return resp.ID, nil
}

// containerStatus returns the processing status of a media container:
// "IN_PROGRESS", "FINISHED", or "ERROR".
func (c *client) containerStatus(ctx context.Context, token, containerID string) (string, error) {
	endpoint := fmt.Sprintf("/%s?fields=status_code,status&access_token=%s",
		containerID, url.QueryEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &publish.APIError{Platform: publish.PlatformInstagram, Message: err.Error(), Transient: true}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var status containerStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if status.Error != nil {
		return "", &publish.APIError{
			Platform:   publish.PlatformInstagram,
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("%s (code %d)", status.Error.Message, status.Error.Code),
			Transient:  httpResp.StatusCode >= 500,
		}
	}

	return status.StatusCode, nil
}

// postForm sends a POST request with form-encoded parameters.
func (c *client) postForm(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &publish.APIError{Platform: publish.PlatformInstagram, Message: err.Error(), Transient: true}
	}
	defer httpResp.Body.Close()

	log.Debug().
		Str("path", endpoint).
		Int("statusCode", httpResp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Instagram API response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil && httpResp.StatusCode < 300 {
		return nil, fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}

	if httpResp.StatusCode >= 300 || resp.Error != nil {
		msg := fmt.Sprintf("status %d", httpResp.StatusCode)
		if resp.Error != nil {
			msg = fmt.Sprintf("%s (type %s, code %d, trace %s)",
				resp.Error.Message, resp.Error.Type, resp.Error.Code, resp.Error.FBTraceID)
		}
		return nil, &publish.APIError{
			Platform:   publish.PlatformInstagram,
			StatusCode: httpResp.StatusCode,
			Message:    msg,
			Transient:  httpResp.StatusCode >= 500,
		}
	}

	if resp.ID == "" {
		return nil, fmt.Errorf("unexpected response: no ID returned (body: %s)", truncate(string(body), 200))
	}

	return &resp, nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
