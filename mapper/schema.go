package mapper

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// Item is a raw DynamoDB attribute map for one record.
type Item map[string]types.AttributeValue

// GenerateMode selects how an attribute value is auto-generated.
type GenerateMode string

const (
	// GenerateNone means the caller supplies the value.
	GenerateNone GenerateMode = ""

	// GenerateUUID populates the attribute with a random UUID when absent.
	GenerateUUID GenerateMode = "uuid"
)

// AttributeDefinition declares one attribute of an entity.
type AttributeDefinition struct {
	// Name is the attribute name, unique within the entity.
	Name string

	// Unique enforces a uniqueness constraint on the attribute via lock
	// records. Attributes that participate in the primary key are inherently
	// unique and are never lock-tracked.
	Unique bool

	// AutoUpdate stamps the attribute with an RFC 3339 timestamp on every
	// create and update.
	AutoUpdate bool

	// Generate auto-populates the attribute on create when absent.
	Generate GenerateMode
}

// PrimaryKeyDef declares the key templates for an entity.
// Templates mix literal text with ${attribute} placeholders,
// e.g. "USER#${id}".
type PrimaryKeyDef struct {
	// PartitionKey is the partition key template. Required.
	PartitionKey string

	// SortKey is the sort key template. Required when the bound table
	// declares a sort key attribute.
	SortKey string
}

// EntityDefinition declares one entity type. Definitions are finalized input:
// the registry validates and converts them to immutable metadata at Connect.
type EntityDefinition struct {
	// Name is the entity type name, unique per connection. It is stored on
	// every record as the type marker attribute.
	Name string

	// PrimaryKey holds the key templates.
	PrimaryKey PrimaryKeyDef

	// Attributes is the ordered attribute set.
	Attributes []AttributeDefinition
}

// Index declares a secondary index on a table.
type Index struct {
	Name             string
	PartitionKeyAttr string
	SortKeyAttr      string
}

// Table is the physical table configuration shared read-only by all entities
// bound to it.
type Table struct {
	// Name is the DynamoDB table name.
	Name string

	// PartitionKeyAttr is the partition key attribute name. Default: "pk".
	PartitionKeyAttr string

	// SortKeyAttr is the sort key attribute name. Empty means the table has
	// no sort key.
	SortKeyAttr string

	// Indexes lists secondary indexes. Informational for query callers; the
	// composition engine never writes through an index.
	Indexes []Index
}
