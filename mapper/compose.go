package mapper

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

// WriteOptions tunes one write transaction item.
type WriteOptions struct {
	// Overwrite disables the default not-exists condition on Create.
	Overwrite bool

	// ConditionExpression is an additional caller-supplied condition on the
	// main operation. Merged with the operation's default condition.
	ConditionExpression       string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
}

// ReadOptions tunes one read transaction item.
type ReadOptions struct {
	ProjectionExpression     string
	ExpressionAttributeNames map[string]string
}

// CreateItem inserts a new entity instance.
type CreateItem struct {
	Entity  string
	Item    Item
	Options *WriteOptions
}

// UpdateItem modifies the attributes in Body on an existing instance.
type UpdateItem struct {
	Entity  string
	Key     PK
	Body    Item
	Options *WriteOptions
}

// DeleteItem removes an existing instance and releases its locks.
type DeleteItem struct {
	Entity  string
	Key     PK
	Options *WriteOptions
}

// GetItem reads one instance by primary key.
type GetItem struct {
	Entity  string
	Key     PK
	Options *ReadOptions
}

// WriteItem is one item of a write transaction: exactly one of Create,
// Update or Delete must be set. Anything else is a shape error rejected
// before any I/O.
type WriteItem struct {
	Create *CreateItem
	Update *UpdateItem
	Delete *DeleteItem
}

// ReadItem is one item of a read transaction: Get must be set.
type ReadItem struct {
	Get *GetItem
}

// composerState tracks the single-use lifecycle of a Composer.
type composerState int

const (
	stateCollecting composerState = iota
	stateResolving
	stateFinalized
)

// Composer converts an ordered list of high-level transaction items into the
// final flat operation list for one atomic submission. A Composer is used
// once per transaction and must not be reused.
type Composer struct {
	registry *Registry
	tr       *transformer
	executor Executor
	limit    int
	state    composerState
}

// NewComposer creates a single-use composer over a built registry. The
// executor is only used to resolve deferred expansions; the final operation
// list is submitted separately.
func NewComposer(registry *Registry, cfg Config, executor Executor) *Composer {
	cfg.validate()
	return &Composer{
		registry: registry,
		tr:       newTransformer(cfg),
		executor: executor,
		limit:    cfg.MaxTransactItems,
	}
}

// ComposeWrite transforms write items into the final ordered operation list.
// Directly resolved operations preserve caller item order; expansion output
// is appended afterwards, since ordering inside one atomic submission carries
// no semantics. Any expansion read failure fails the whole composition.
func (c *Composer) ComposeWrite(ctx context.Context, items []WriteItem) ([]Operation, error) {
	if c.state != stateCollecting {
		return nil, ErrComposerFinalized
	}

	var direct []Operation
	var pending []*Expansion

	for i, item := range items {
		result, err := c.transformWrite(item)
		if err != nil {
			c.state = stateFinalized
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		if result.Pending != nil {
			pending = append(pending, result.Pending)
			continue
		}
		direct = append(direct, result.Ops...)
	}

	c.state = stateResolving
	resolved, err := c.resolveAll(ctx, pending)
	c.state = stateFinalized
	if err != nil {
		return nil, err
	}

	ops := append(direct, resolved...)
	if len(ops) > c.limit {
		return nil, fmt.Errorf("%w: %d operations, limit %d", ErrTransactionTooLarge, len(ops), c.limit)
	}
	return ops, nil
}

// ComposeRead transforms read items into the final ordered operation list.
// Get transforms are pure, so no resolution phase is needed.
func (c *Composer) ComposeRead(items []ReadItem) ([]Operation, error) {
	if c.state != stateCollecting {
		return nil, ErrComposerFinalized
	}
	c.state = stateFinalized

	ops := make([]Operation, 0, len(items))
	for i, item := range items {
		if item.Get == nil {
			return nil, fmt.Errorf("item %d: %w", i, ErrInvalidReadItem)
		}
		meta, err := c.registry.Metadata(item.Get.Entity)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		ops = append(ops, c.tr.toGetItem(meta, item.Get.Key, item.Get.Options))
	}

	if len(ops) > c.limit {
		return nil, fmt.Errorf("%w: %d operations, limit %d", ErrTransactionTooLarge, len(ops), c.limit)
	}
	return ops, nil
}

// transformWrite classifies one write item and dispatches to the matching
// transform.
func (c *Composer) transformWrite(item WriteItem) (Result, error) {
	set := 0
	if item.Create != nil {
		set++
	}
	if item.Update != nil {
		set++
	}
	if item.Delete != nil {
		set++
	}
	if set != 1 {
		return Result{}, ErrInvalidWriteItem
	}

	switch {
	case item.Create != nil:
		meta, err := c.registry.Metadata(item.Create.Entity)
		if err != nil {
			return Result{}, err
		}
		return c.tr.toPutItem(meta, item.Create.Item, item.Create.Options)
	case item.Update != nil:
		meta, err := c.registry.Metadata(item.Update.Entity)
		if err != nil {
			return Result{}, err
		}
		return c.tr.toUpdateItem(meta, item.Update.Key, item.Update.Body, item.Update.Options)
	default:
		meta, err := c.registry.Metadata(item.Delete.Entity)
		if err != nil {
			return Result{}, err
		}
		return c.tr.toDeleteItem(meta, item.Delete.Key, item.Delete.Options)
	}
}

// resolveAll resolves pending expansions concurrently, one read each.
// Expansions are independent, so the reads fan out; output slots keep the
// emitted operations in expansion order for determinism.
func (c *Composer) resolveAll(ctx context.Context, pending []*Expansion) ([]Operation, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	slots := make([][]Operation, len(pending))
	g, ctx := errgroup.WithContext(ctx)
	for i, exp := range pending {
		i, exp := i, exp
		g.Go(func() error {
			ops, err := exp.resolve(ctx, c.executor)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", exp.Entity(), err)
			}
			slots[i] = ops
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Operation
	for _, ops := range slots {
		out = append(out, ops...)
	}
	return out, nil
}
