// Package publish defines the domain types shared by the platform
// publishers and the orchestrator: the inbound submission, the resolved
// publish targets, and the terminal per-target results.
package publish

// Platform identifies a social platform a submission can fan out to.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
)

// Submission is one product-publication event received on the webhook.
// It is immutable and lives only for the duration of one orchestration run.
type Submission struct {
	Title       string
	Description string
	ProductURL  string
	StoreID     string
}

// Caption builds the post caption from the submission text fields.
// The product URL is NOT part of the caption for Facebook (it travels as
// link target or comment); Instagram captions include it because Instagram
// offers no per-post link slot.
func (s Submission) Caption(includeURL bool) string {
	caption := s.Title
	if s.Description != "" {
		caption += "\n\n" + s.Description
	}
	if includeURL && s.ProductURL != "" {
		caption += "\n\n" + s.ProductURL
	}
	return caption
}

// Target is one (platform, account) pair a submission publishes to,
// together with the access token authorized for that account and any
// routing hints from the store configuration.
type Target struct {
	Platform    Platform
	AccountID   string
	AccessToken string

	// Hints carries per-route strategy preferences, e.g.
	// "prefer_link_image" to skip straight to a link-style post.
	Hints map[string]string
}

// Status is the terminal outcome of one publish attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result is the terminal record of one target's publish attempt.
// It is never mutated after creation.
type Result struct {
	Platform  Platform `json:"platform"`
	AccountID string   `json:"account_id"`
	Status    Status   `json:"status"`
	PostID    string   `json:"post_id,omitempty"`
	Error     string   `json:"error,omitempty"`
}
