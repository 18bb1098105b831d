// Package mapper turns declared entity schemas into atomic transactional
// operations against DynamoDB, emulating the relational guarantees the store
// lacks natively.
//
// Tessera is designed for applications that map typed entities onto a
// single-table layout and need unique attribute constraints, derived
// composite keys, and all-or-nothing multi-item writes.
//
// # Key Features
//
//   - Primary keys derived from templates ("USER#${id}") declared per entity
//   - Unique attribute constraints emulated via conditional lock records
//   - Deferred expansion: updates and deletes touching unique attributes
//     read the current record once, then swap locks atomically
//   - UUID generation and timestamp auto-update for declared attributes
//   - One transaction composer per submission, fail-fast on shape and size
//     errors before any network interaction
//
// # Declaring entities
//
// Entities are declared with explicit schema structs and registered once:
//
//	conn := mapper.NewConnection(mapper.Config{
//	    Table: mapper.Table{Name: "app", PartitionKeyAttr: "pk", SortKeyAttr: "sk"},
//	},
//	    mapper.EntityDefinition{
//	        Name: "user",
//	        PrimaryKey: mapper.PrimaryKeyDef{
//	            PartitionKey: "USER#${id}",
//	            SortKey:      "PROFILE",
//	        },
//	        Attributes: []mapper.AttributeDefinition{
//	            {Name: "id", Generate: mapper.GenerateUUID},
//	            {Name: "email", Unique: true},
//	            {Name: "updated_at", AutoUpdate: true},
//	        },
//	    },
//	)
//	if err := conn.Connect(ctx); err != nil { ... }
//
// # Transactions
//
// A write transaction holds only Create, Update and Delete items; a read
// transaction holds only Get items. Mixing directions is rejected before any
// I/O:
//
//	err := conn.ExecuteWrite(ctx,
//	    mapper.WriteItem{Create: &mapper.CreateItem{Entity: "user", Item: item}},
//	)
//
// # Errors
//
// The package defines composition-level errors:
//
//   - [ErrDuplicateConnection] - Connect called twice
//   - [UnknownEntityError] - lookup of an undeclared entity
//   - [MissingAttributeError] - key template attribute absent
//   - [ErrInvalidWriteItem] / [ErrInvalidReadItem] - transaction shape errors
//   - [ErrUniqueConstraint] - conditional lock write failed
//   - [ErrTransactionTooLarge] - resolved list exceeds the store limit
package mapper
