package mapper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Executor is the narrow request surface the composition engine needs from
// the store client: single-item reads plus all-or-nothing transactional
// batches. *dynamodb.Client satisfies it; tests substitute fakes.
type Executor interface {
	GetItem(ctx context.Context, input *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	TransactGetItems(ctx context.Context, input *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error)
	Query(ctx context.Context, input *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ Executor = (*dynamodb.Client)(nil)

// submitWrite sends the finalized operation list as one atomic write batch
// and maps store failures back to composition-level errors.
func submitWrite(ctx context.Context, executor Executor, ops []Operation) error {
	writes := make([]types.TransactWriteItem, len(ops))
	for i, op := range ops {
		writes[i] = op.writeItem()
	}
	_, err := executor.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	return mapTransactionError(err, ops)
}

// submitRead sends the finalized operation list as one atomic read batch.
func submitRead(ctx context.Context, executor Executor, ops []Operation) ([]Item, error) {
	gets := make([]types.TransactGetItem, len(ops))
	for i, op := range ops {
		gets[i] = op.getItem()
	}
	out, err := executor.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{
		TransactItems: gets,
	})
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(out.Responses))
	for i, resp := range out.Responses {
		if resp.Item != nil {
			items[i] = Item(resp.Item)
		}
	}
	return items, nil
}

// mapTransactionError translates a TransactionCanceledException into a typed
// error identifying which operation's condition failed. A failed lock-record
// condition is a uniqueness violation; a failed main-record condition is
// surfaced as a plain condition failure. Other errors pass through unchanged.
func mapTransactionError(err error, ops []Operation) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return err
	}

	for i, reason := range txErr.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
			continue
		}
		if i < len(ops) && ops[i].IsLock() {
			return fmt.Errorf("%w: %s.%s", ErrUniqueConstraint, ops[i].lockEntity, ops[i].lockAttr)
		}
		return fmt.Errorf("%w: operation %d", ErrConditionFailed, i)
	}

	return err
}
