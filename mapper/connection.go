package mapper

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// connState is the connection lifecycle phase.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Connection binds table configuration, the schema registry and the request
// executor together. A Connection is initialized exactly once via Connect;
// afterwards the registry is read-only and safely shared across concurrent
// transaction compositions.
type Connection struct {
	mu       sync.Mutex
	state    connState
	config   Config
	defs     []EntityDefinition
	registry *Registry
	executor Executor
}

// NewConnection creates an unconnected Connection over the declared entities.
func NewConnection(config Config, entities ...EntityDefinition) *Connection {
	config.validate()
	return &Connection{
		config: config,
		defs:   entities,
	}
}

// Connect builds metadata for every declared entity and transitions the
// connection to its connected state. Calling Connect on an already-connected
// Connection fails with ErrDuplicateConnection and does not rebuild. A build
// failure tears the connection back down to its unregistered state and
// surfaces the original error.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateDisconnected {
		return ErrDuplicateConnection
	}
	c.state = stateConnecting

	registry, err := buildRegistry(c.config, c.defs)
	if err != nil {
		c.state = stateDisconnected
		return err
	}

	executor := c.config.Executor
	if executor == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			c.state = stateDisconnected
			return fmt.Errorf("tessera: load aws config: %w", err)
		}
		executor = dynamodb.NewFromConfig(awsCfg)
	}

	c.registry = registry
	c.executor = executor
	c.state = stateConnected
	return nil
}

// Registry returns the built schema registry.
func (c *Connection) Registry() (*Registry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected {
		return nil, ErrNotConnected
	}
	return c.registry, nil
}

// composer creates a fresh single-use composer for one transaction.
func (c *Connection) composer() (*Composer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateConnected {
		return nil, ErrNotConnected
	}
	return NewComposer(c.registry, c.config, c.executor), nil
}

// ExecuteWrite composes the write items into one operation list and submits
// it atomically. Either every item takes effect or none does.
func (c *Connection) ExecuteWrite(ctx context.Context, items ...WriteItem) error {
	composer, err := c.composer()
	if err != nil {
		return err
	}
	ops, err := composer.ComposeWrite(ctx, items)
	if err != nil {
		return err
	}
	return submitWrite(ctx, c.executor, ops)
}

// ExecuteRead composes the read items into one operation list and submits it
// as a single transactional read. The returned slice matches item order; a
// nil entry means the record does not exist.
func (c *Connection) ExecuteRead(ctx context.Context, items ...ReadItem) ([]Item, error) {
	composer, err := c.composer()
	if err != nil {
		return nil, err
	}
	ops, err := composer.ComposeRead(items)
	if err != nil {
		return nil, err
	}
	return submitRead(ctx, c.executor, ops)
}

// Get reads one entity instance outside a transaction, returning ErrNotFound
// when the record does not exist.
func (c *Connection) Get(ctx context.Context, entity string, key PK) (Item, error) {
	c.mu.Lock()
	if c.state != stateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	registry, executor := c.registry, c.executor
	c.mu.Unlock()

	if _, err := registry.Metadata(entity); err != nil {
		return nil, err
	}
	out, err := executor.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.config.Table.Name),
		Key:       key,
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, entity)
	}
	return Item(out.Item), nil
}

// QueryInput defines parameters for a key-condition query.
type QueryInput struct {
	IndexName                 string
	KeyConditionExpression    string
	FilterExpression          string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue

	// Limit caps the result count. Zero applies the connection's
	// QueryItemsImplicitLimit.
	Limit int32

	ScanIndexForward *bool
}

// Query runs a key-condition query against the bound table, applying the
// implicit row cap when the caller specifies no limit.
func (c *Connection) Query(ctx context.Context, input QueryInput) ([]Item, error) {
	c.mu.Lock()
	if c.state != stateConnected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	executor := c.executor
	c.mu.Unlock()

	limit := input.Limit
	if limit <= 0 {
		limit = c.config.QueryItemsImplicitLimit
	}

	query := &dynamodb.QueryInput{
		TableName:                 aws.String(c.config.Table.Name),
		KeyConditionExpression:    aws.String(input.KeyConditionExpression),
		ExpressionAttributeNames:  input.ExpressionAttributeNames,
		ExpressionAttributeValues: input.ExpressionAttributeValues,
		Limit:                     aws.Int32(limit),
		ScanIndexForward:          input.ScanIndexForward,
	}
	if input.IndexName != "" {
		query.IndexName = aws.String(input.IndexName)
	}
	if input.FilterExpression != "" {
		query.FilterExpression = aws.String(input.FilterExpression)
	}

	var items []Item
	for {
		out, err := executor.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, raw := range out.Items {
			items = append(items, Item(raw))
			if int32(len(items)) >= limit {
				return items, nil
			}
		}
		if out.LastEvaluatedKey == nil {
			return items, nil
		}
		query.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
