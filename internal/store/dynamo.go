package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkFingerprint = "FP#"
	pkRecord      = "REC#"
	skMeta        = "META"

	// auditTTL keeps publish records around long enough for support
	// queries without growing the table forever.
	auditTTL = 90 * 24 * time.Hour
)

// DynamoStore implements SubmissionStore on AWS DynamoDB. The table has a
// string PK/SK pair and TTL enabled on the expiresAt attribute.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ SubmissionStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// InsertIfAbsent performs a conditional PutItem on attribute_not_exists(PK).
// This is the atomic primitive the dedup guard depends on: under concurrent
// identical submissions DynamoDB guarantees exactly one put succeeds.
//
// An expired-but-not-yet-reaped row would block re-registration long past
// the window (DynamoDB TTL deletion lags), so the condition also lets the
// put through when the stored expiresAt has passed.
func (s *DynamoStore) InsertIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: pkFingerprint + key},
		"SK":        &types.AttributeValueMemberS{Value: skMeta},
		"createdAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		"expiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttl).Unix(), 10)},
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR expiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("PutItem fingerprint %s: %w", key, err)
	}

	log.Debug().Str("fingerprint", key).Dur("ttl", ttl).Msg("Fingerprint registered")
	return true, nil
}

// PutPublishRecord writes the audit record with the long audit TTL.
func (s *DynamoStore) PutPublishRecord(ctx context.Context, rec *PublishRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal publish record: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pkRecord + rec.SubmissionID}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	item["expiresAt"] = &types.AttributeValueMemberN{
		Value: strconv.FormatInt(time.Now().Add(auditTTL).Unix(), 10),
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem publish record %s: %w", rec.SubmissionID, err)
	}

	log.Debug().
		Str("submissionId", rec.SubmissionID).
		Str("storeId", rec.StoreID).
		Str("status", rec.Status).
		Int("results", len(rec.Results)).
		Msg("Publish record persisted")
	return nil
}
