package mapper

// Config holds configuration for a Connection.
type Config struct {
	// Table is the physical table all declared entities are bound to.
	Table Table

	// LockTable is the table holding unique-constraint lock records.
	// Default: same as Table.Name.
	LockTable string

	// TypeAttribute is the record attribute carrying the entity type marker.
	// Default: "_et"
	TypeAttribute string

	// QueryItemsImplicitLimit caps Query results when the caller specifies
	// no limit. Default: 3000.
	QueryItemsImplicitLimit int32

	// MaxTransactItems is the store's hard limit on operations per
	// transaction. A composition whose resolved operation list exceeds it
	// fails before submission. Default: 100 (the DynamoDB limit).
	MaxTransactItems int

	// Executor overrides the request executor. When nil, Connect builds a
	// DynamoDB client from the default AWS configuration.
	Executor Executor
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table.PartitionKeyAttr == "" {
		c.Table.PartitionKeyAttr = "pk"
	}
	if c.LockTable == "" {
		c.LockTable = c.Table.Name
	}
	if c.TypeAttribute == "" {
		c.TypeAttribute = "_et"
	}
	if c.QueryItemsImplicitLimit < 1 {
		c.QueryItemsImplicitLimit = 3000
	}
	if c.MaxTransactItems < 1 || c.MaxTransactItems > 100 {
		c.MaxTransactItems = 100
	}
}
