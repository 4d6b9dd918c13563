// Package store persists the service's two durable concerns: submission
// fingerprints for deduplication and publish results for audit. Both are
// small TTL'd records in a single DynamoDB table.
package store

import (
	"context"
	"time"

	"github.com/storeberg/crosspost/internal/media"
	"github.com/storeberg/crosspost/internal/publish"
)

// PublishRecord is the audit record written after every orchestration run.
type PublishRecord struct {
	SubmissionID string           `dynamodbav:"submissionId" json:"submissionId"`
	StoreID      string           `dynamodbav:"storeId" json:"storeId"`
	Title        string           `dynamodbav:"title" json:"title"`
	ProductURL   string           `dynamodbav:"productUrl" json:"productUrl"`
	Fingerprint  string           `dynamodbav:"fingerprint" json:"fingerprint"`
	Status       string           `dynamodbav:"status" json:"status"`
	Results      []publish.Result `dynamodbav:"results" json:"results"`
	Capture      *media.Capture   `dynamodbav:"capture,omitempty" json:"capture,omitempty"`
	CreatedAt    int64            `dynamodbav:"createdAt" json:"createdAt"`
}

// SubmissionStore is what the rest of the service needs from persistence.
type SubmissionStore interface {
	// InsertIfAbsent atomically registers key with the given TTL and
	// reports whether this call created it.
	InsertIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// PutPublishRecord writes an audit record.
	PutPublishRecord(ctx context.Context, rec *PublishRecord) error
}
