package mapper

import (
	"errors"
	"fmt"

	"github.com/jacentio/tessera/internal/keytmpl"
)

// AttributeMetadata is the prepared, immutable form of an attribute
// declaration.
type AttributeMetadata struct {
	Name       string
	Unique     bool
	AutoUpdate bool
	Generate   GenerateMode

	// InPrimaryKey is true when the attribute is referenced by a key template.
	InPrimaryKey bool
}

// EntityMetadata is the prepared, immutable form of an entity declaration.
// Built once during Connect and owned by the registry; safe for concurrent
// readers.
type EntityMetadata struct {
	name         string
	table        Table
	partitionKey *keytmpl.Template
	sortKey      *keytmpl.Template // nil when the table has no sort key
	attributes   []AttributeMetadata
	index        map[string]int // attribute name -> position in attributes
}

// Name returns the entity type name.
func (m *EntityMetadata) Name() string { return m.name }

// Table returns the physical table the entity is bound to.
func (m *EntityMetadata) Table() Table { return m.table }

// Attributes returns the ordered attribute metadata. The returned slice is
// shared and must not be modified.
func (m *EntityMetadata) Attributes() []AttributeMetadata { return m.attributes }

// Attribute returns metadata for one attribute, or false if undeclared.
func (m *EntityMetadata) Attribute(name string) (AttributeMetadata, bool) {
	i, ok := m.index[name]
	if !ok {
		return AttributeMetadata{}, false
	}
	return m.attributes[i], true
}

// UniqueAttributes returns attributes flagged unique, excluding those that
// participate in the primary key. This filtered view drives lock-record
// generation.
func (m *EntityMetadata) UniqueAttributes() []AttributeMetadata {
	var out []AttributeMetadata
	for _, a := range m.attributes {
		if a.Unique && !a.InPrimaryKey {
			out = append(out, a)
		}
	}
	return out
}

// AutoGeneratedAttributes returns attributes the composition engine
// populates or refreshes rather than taking from caller input.
func (m *EntityMetadata) AutoGeneratedAttributes() []AttributeMetadata {
	var out []AttributeMetadata
	for _, a := range m.attributes {
		if a.AutoUpdate || a.Generate != GenerateNone {
			out = append(out, a)
		}
	}
	return out
}

// usedForPrimaryKey reports whether changing attr requires recomputing any
// derived key value.
func (m *EntityMetadata) usedForPrimaryKey(attr string) bool {
	if m.partitionKey.References(attr) {
		return true
	}
	return m.sortKey != nil && m.sortKey.References(attr)
}

// primaryKey resolves both key templates against the item's attribute values
// and returns the concrete key.
func (m *EntityMetadata) primaryKey(item Item) (PK, error) {
	values := stringValues(item)
	pk := PK{}
	hash, err := m.partitionKey.Resolve(values)
	if err != nil {
		return nil, err
	}
	pk[m.table.PartitionKeyAttr] = stringAttr(hash)
	if m.sortKey != nil {
		sort, err := m.sortKey.Resolve(values)
		if err != nil {
			return nil, err
		}
		pk[m.table.SortKeyAttr] = stringAttr(sort)
	}
	return pk, nil
}

// Registry holds prepared metadata for every declared entity. Built exactly
// once per connection; read-only afterwards.
type Registry struct {
	table    Table
	typeAttr string
	entities map[string]*EntityMetadata
}

// buildRegistry validates the declarations and prepares metadata. Any failure
// aborts construction; the caller rolls the connection back to its
// unregistered state.
func buildRegistry(cfg Config, defs []EntityDefinition) (*Registry, error) {
	r := &Registry{
		table:    cfg.Table,
		typeAttr: cfg.TypeAttribute,
		entities: make(map[string]*EntityMetadata, len(defs)),
	}

	for _, def := range defs {
		if def.Name == "" {
			return nil, &SchemaError{Entity: def.Name, Cause: errors.New("entity name is empty")}
		}
		if _, exists := r.entities[def.Name]; exists {
			return nil, &SchemaError{Entity: def.Name, Cause: errors.New("entity declared twice")}
		}

		meta, err := prepareEntity(cfg.Table, def)
		if err != nil {
			return nil, &SchemaError{Entity: def.Name, Cause: err}
		}
		r.entities[def.Name] = meta
	}

	return r, nil
}

// prepareEntity converts one declaration into immutable metadata.
func prepareEntity(table Table, def EntityDefinition) (*EntityMetadata, error) {
	meta := &EntityMetadata{
		name:       def.Name,
		table:      table,
		attributes: make([]AttributeMetadata, 0, len(def.Attributes)),
		index:      make(map[string]int, len(def.Attributes)),
	}

	for _, a := range def.Attributes {
		if a.Name == "" {
			return nil, errors.New("attribute name is empty")
		}
		if _, exists := meta.index[a.Name]; exists {
			return nil, fmt.Errorf("attribute %q declared twice", a.Name)
		}
		meta.index[a.Name] = len(meta.attributes)
		meta.attributes = append(meta.attributes, AttributeMetadata{
			Name:       a.Name,
			Unique:     a.Unique,
			AutoUpdate: a.AutoUpdate,
			Generate:   a.Generate,
		})
	}

	if def.PrimaryKey.PartitionKey == "" {
		return nil, errors.New("partition key template is empty")
	}
	partition, err := keytmpl.Parse(def.PrimaryKey.PartitionKey)
	if err != nil {
		return nil, err
	}
	meta.partitionKey = partition

	if table.SortKeyAttr != "" {
		if def.PrimaryKey.SortKey == "" {
			return nil, fmt.Errorf("table %q declares sort key attribute %q but entity has no sort key template",
				table.Name, table.SortKeyAttr)
		}
		sort, err := keytmpl.Parse(def.PrimaryKey.SortKey)
		if err != nil {
			return nil, err
		}
		meta.sortKey = sort
	} else if def.PrimaryKey.SortKey != "" {
		return nil, fmt.Errorf("entity declares a sort key template but table %q has no sort key attribute", table.Name)
	}

	// Every attribute referenced by a key template must be declared.
	templates := []*keytmpl.Template{meta.partitionKey}
	if meta.sortKey != nil {
		templates = append(templates, meta.sortKey)
	}
	for _, tmpl := range templates {
		for _, attr := range tmpl.Attributes() {
			i, ok := meta.index[attr]
			if !ok {
				return nil, fmt.Errorf("key template %q references undeclared attribute %q", tmpl.Pattern(), attr)
			}
			meta.attributes[i].InPrimaryKey = true
		}
	}

	return meta, nil
}

// Metadata returns the prepared metadata for an entity name, failing with
// UnknownEntityError for names that were never declared.
func (r *Registry) Metadata(entity string) (*EntityMetadata, error) {
	meta, ok := r.entities[entity]
	if !ok {
		return nil, &UnknownEntityError{Entity: entity}
	}
	return meta, nil
}

// Attributes returns the ordered attribute list for an entity.
func (r *Registry) Attributes(entity string) ([]AttributeMetadata, error) {
	meta, err := r.Metadata(entity)
	if err != nil {
		return nil, err
	}
	return meta.Attributes(), nil
}

// UniqueAttributes returns the entity's unique attributes, excluding those
// used in the primary key.
func (r *Registry) UniqueAttributes(entity string) ([]AttributeMetadata, error) {
	meta, err := r.Metadata(entity)
	if err != nil {
		return nil, err
	}
	return meta.UniqueAttributes(), nil
}

// AutoGeneratedAttributes returns the entity's generated and auto-update
// attributes.
func (r *Registry) AutoGeneratedAttributes(entity string) ([]AttributeMetadata, error) {
	meta, err := r.Metadata(entity)
	if err != nil {
		return nil, err
	}
	return meta.AutoGeneratedAttributes(), nil
}

// MetadataForItem looks up metadata by the physical type marker stored on a
// raw record.
func (r *Registry) MetadataForItem(item Item) (*EntityMetadata, error) {
	marker, ok := stringValue(item[r.typeAttr])
	if !ok {
		return nil, &UnknownEntityError{Entity: ""}
	}
	return r.Metadata(marker)
}

// Entities returns the declared entity names. Order is unspecified.
func (r *Registry) Entities() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	return names
}
