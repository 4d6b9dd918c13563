package facebook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/storeberg/crosspost/internal/locator"
	"github.com/storeberg/crosspost/internal/publish"
)

// HintPreferLinkImage is the routing hint that puts the link-style post
// first in the strategy order for a target (some pages want the product
// page preview card rather than a native photo).
const HintPreferLinkImage = "prefer_link_image"

// attempt carries everything one publish attempt needs.
type attempt struct {
	sub    publish.Submission
	ref    locator.Ref
	target publish.Target
	video  bool
}

// strategyFunc is one concrete way of achieving a Facebook post. All
// strategies share this signature so the chain is a single uniform loop
// and adding or removing one is a one-line change.
type strategyFunc func(ctx context.Context, a attempt) (postID string, err error)

type strategy struct {
	name string
	fn   strategyFunc
}

// Publish posts the media to the target page, trying strategies in strict
// priority order and stopping at the first success:
//
//  1. direct binary upload (renders as a real image/video, never a link)
//  2. upload by reference URL against the same endpoint family
//  3. feed post carrying the product link with a forced picture
//
// Whichever strategy succeeds, the product URL ends up either as the
// post's link target or as an appended comment — never dropped.
func (p *Publisher) Publish(ctx context.Context, sub publish.Submission, ref locator.Ref, target publish.Target) (string, error) {
	a := attempt{
		sub:    sub,
		ref:    ref,
		target: target,
		video:  strings.HasPrefix(ref.ContentType, "video/"),
	}

	strategies := []strategy{
		{"direct_upload", p.directUpload},
		{"url_upload", p.urlUpload},
		{"link_post", p.linkPost},
	}
	if target.Hints[HintPreferLinkImage] == "true" {
		strategies = []strategy{
			{"link_post", p.linkPost},
			{"direct_upload", p.directUpload},
			{"url_upload", p.urlUpload},
		}
	}

	var lastErr error
	for _, s := range strategies {
		postID, err := p.tryWithRetry(ctx, s, a)
		if err == nil {
			if s.name != "link_post" {
				p.attachProductLink(ctx, postID, a)
			}
			log.Info().
				Str("strategy", s.name).
				Str("pageId", target.AccountID).
				Str("postId", postID).
				Msg("Facebook post published")
			return postID, nil
		}

		// Permanent platform errors (bad token, missing permission) are
		// terminal: no other strategy can fix credentials.
		var apiErr *publish.APIError
		if errors.As(err, &apiErr) && !apiErr.Transient && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return "", fmt.Errorf("strategy %s: %w", s.name, err)
		}

		log.Warn().Err(err).Str("strategy", s.name).Str("pageId", target.AccountID).
			Msg("Facebook strategy failed, falling through")
		lastErr = err
	}

	return "", fmt.Errorf("all strategies failed for page %s: %w", target.AccountID, lastErr)
}

// tryWithRetry runs one strategy, retrying once with backoff when the
// failure was transient (5xx, timeout). Every retry path is bounded.
func (p *Publisher) tryWithRetry(ctx context.Context, s strategy, a attempt) (string, error) {
	postID, err := s.fn(ctx, a)
	if err == nil || !publish.IsTransient(err) {
		return postID, err
	}

	log.Debug().Err(err).Str("strategy", s.name).Dur("backoff", p.backoff).
		Msg("Transient Facebook error, retrying once")
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(p.backoff):
	}
	return s.fn(ctx, a)
}

// --- Strategies ---

// directUpload posts the media bytes to the photo/video upload endpoint.
// Videos go to the video endpoint, never the photo endpoint.
func (p *Publisher) directUpload(ctx context.Context, a attempt) (string, error) {
	if a.ref.LocalPath == "" {
		return "", fmt.Errorf("no local copy available for direct upload")
	}
	if _, err := os.Stat(a.ref.LocalPath); err != nil {
		return "", fmt.Errorf("upload source missing: %w", err)
	}

	var endpoint, fileField string
	fields := map[string]string{"access_token": a.target.AccessToken}
	if a.video {
		endpoint = fmt.Sprintf("/%s/videos", a.target.AccountID)
		fileField = "source"
		fields["description"] = a.sub.Caption(false)
		fields["title"] = a.sub.Title
	} else {
		endpoint = fmt.Sprintf("/%s/photos", a.target.AccountID)
		fileField = "source"
		fields["caption"] = a.sub.Caption(false)
	}

	resp, err := p.postMultipart(ctx, endpoint, fileField, a.ref.LocalPath, fields)
	if err != nil {
		return "", err
	}
	return bestPostID(resp), nil
}

// urlUpload submits the media by durable URL to the same endpoint family.
func (p *Publisher) urlUpload(ctx context.Context, a attempt) (string, error) {
	params := url.Values{"access_token": {a.target.AccessToken}}
	var endpoint string
	if a.video {
		endpoint = fmt.Sprintf("/%s/videos", a.target.AccountID)
		params.Set("file_url", a.ref.PublicURL)
		params.Set("description", a.sub.Caption(false))
		params.Set("title", a.sub.Title)
	} else {
		endpoint = fmt.Sprintf("/%s/photos", a.target.AccountID)
		params.Set("url", a.ref.PublicURL)
		params.Set("caption", a.sub.Caption(false))
	}

	resp, err := p.postForm(ctx, endpoint, params)
	if err != nil {
		return "", err
	}
	return bestPostID(resp), nil
}

// linkPost falls back to a feed post carrying the product URL as the link
// target with a forced picture, so the product page preview still renders
// an image.
func (p *Publisher) linkPost(ctx context.Context, a attempt) (string, error) {
	params := url.Values{
		"access_token": {a.target.AccessToken},
		"message":      {a.sub.Caption(false)},
		"link":         {a.sub.ProductURL},
		"picture":      {a.ref.PublicURL},
	}

	resp, err := p.postForm(ctx, fmt.Sprintf("/%s/feed", a.target.AccountID), params)
	if err != nil {
		return "", err
	}
	return bestPostID(resp), nil
}

// attachProductLink comments the product URL under a successful media
// post. Additive engagement only: a comment failure never fails the post.
func (p *Publisher) attachProductLink(ctx context.Context, postID string, a attempt) {
	if a.sub.ProductURL == "" {
		return
	}

	params := url.Values{
		"access_token": {a.target.AccessToken},
		"message":      {a.sub.ProductURL},
	}
	if _, err := p.postForm(ctx, fmt.Sprintf("/%s/comments", postID), params); err != nil {
		log.Warn().Err(err).Str("postId", postID).Msg("Failed to attach product link comment")
		return
	}
	log.Debug().Str("postId", postID).Msg("Product link attached as comment")
}

// bestPostID prefers the page post id (commentable) over the media object id.
func bestPostID(resp *apiResponse) string {
	if resp.PostID != "" {
		return resp.PostID
	}
	return resp.ID
}
