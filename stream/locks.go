// Package stream provides DynamoDB Streams handlers that keep lock records
// consistent with their owning items.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// lockKeysAttribute mirrors the hidden attribute the mapper stores on main
// records, listing the partition keys of their lock records.
const lockKeysAttribute = "_lk"

// lockSortValue is the fixed sort key of lock records on composite-key tables.
const lockSortValue = "LOCK"

// Deleter is the subset of the DynamoDB client the handler needs.
type Deleter interface {
	DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Config describes the lock table layout for the handler.
type Config struct {
	// LockTable is the table holding lock records.
	LockTable string

	// PartitionKeyAttr is the lock table's partition key attribute name.
	PartitionKeyAttr string

	// SortKeyAttr is the lock table's sort key attribute name, empty when the
	// table has no sort key.
	SortKeyAttr string
}

// Handler releases lock records when their owning item is removed outside
// the mapper (TTL expiry, console deletes, foreign writers). Deployed as an
// AWS Lambda consumer of the main table's stream.
type Handler struct {
	client Deleter
	config Config
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(client Deleter, config Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: client,
		config: config,
		logger: logger,
	}
}

// HandleLockCleanup processes DynamoDB stream events, deleting the lock
// records listed on each removed item. Designed to be used as an AWS Lambda
// handler; a returned error triggers the usual retry and DLQ semantics.
func (h *Handler) HandleLockCleanup(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

// processRecord releases the locks of a single removed item.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if record.EventName != "REMOVE" {
		return nil
	}

	lockKeys := getStringListAttr(record.Change.OldImage, lockKeysAttribute)
	if len(lockKeys) == 0 {
		return nil
	}

	h.logger.Info("releasing locks for removed item",
		"eventID", record.EventID,
		"lockCount", len(lockKeys),
	)

	for _, pk := range lockKeys {
		if err := h.deleteLock(ctx, pk); err != nil {
			return fmt.Errorf("delete lock %q: %w", pk, err)
		}
	}
	return nil
}

// deleteLock removes one lock record. Deleting an already-released lock is a
// no-op, which keeps retries idempotent.
func (h *Handler) deleteLock(ctx context.Context, pk string) error {
	key := map[string]types.AttributeValue{
		h.config.PartitionKeyAttr: &types.AttributeValueMemberS{Value: pk},
	}
	if h.config.SortKeyAttr != "" {
		key[h.config.SortKeyAttr] = &types.AttributeValueMemberS{Value: lockSortValue}
	}

	_, err := h.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(h.config.LockTable),
		Key:       key,
	})
	return err
}

// getStringListAttr extracts a string list attribute from a stream image.
func getStringListAttr(image map[string]events.DynamoDBAttributeValue, key string) []string {
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeList {
		return nil
	}
	var result []string
	for _, item := range v.List() {
		if item.DataType() == events.DataTypeString {
			result = append(result, item.String())
		}
	}
	return result
}
