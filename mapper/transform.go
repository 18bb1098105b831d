package mapper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// lockKeysAttribute stores the lock-record partition keys on the main record
// so out-of-band deletes can be reconciled (see the stream package).
const lockKeysAttribute = "_lk"

// lockSortValue is the fixed sort key for lock records on tables with a
// composite primary key.
const lockSortValue = "LOCK"

// Result is the two-phase outcome of transforming one transaction item:
// either fully resolved operations, or a pending expansion that needs one
// read before it can be finalized.
type Result struct {
	Ops     []Operation
	Pending *Expansion
}

// transformer converts one entity instance plus an operation kind into
// low-level operation descriptors.
type transformer struct {
	cfg Config

	// seams for deterministic tests
	now   func() time.Time
	newID func() string
}

func newTransformer(cfg Config) *transformer {
	return &transformer{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// lockPK derives the lock-record partition key for one
// (entity, attribute, value) triple.
func lockPK(entity, attr, value string) string {
	return fmt.Sprintf("_lock#%s#%s#%s", entity, attr, value)
}

// lockKey builds the full lock-record primary key.
func (t *transformer) lockKey(pk string) PK {
	key := PK{t.cfg.Table.PartitionKeyAttr: stringAttr(pk)}
	if t.cfg.Table.SortKeyAttr != "" {
		key[t.cfg.Table.SortKeyAttr] = stringAttr(lockSortValue)
	}
	return key
}

// lockPut builds the conditional Put that claims a unique value. The
// condition fails when another record already holds the lock.
func (t *transformer) lockPut(meta *EntityMetadata, attr, value string) Operation {
	pk := lockPK(meta.Name(), attr, value)
	item := map[string]types.AttributeValue(t.lockKey(pk))
	item["entity"] = stringAttr(meta.Name())
	item["attr"] = stringAttr(attr)
	item["value"] = stringAttr(value)

	return Operation{
		Put: &types.Put{
			TableName:                aws.String(t.cfg.LockTable),
			Item:                     item,
			ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
			ExpressionAttributeNames: map[string]string{"#pk": t.cfg.Table.PartitionKeyAttr},
		},
		lockEntity: meta.Name(),
		lockAttr:   attr,
	}
}

// lockDelete builds the Delete releasing a previously claimed unique value.
func (t *transformer) lockDelete(meta *EntityMetadata, attr, value string) Operation {
	return Operation{
		Delete: &types.Delete{
			TableName: aws.String(t.cfg.LockTable),
			Key:       t.lockKey(lockPK(meta.Name(), attr, value)),
		},
		lockEntity: meta.Name(),
		lockAttr:   attr,
	}
}

// applyGenerated populates generated and auto-update attributes on a copy of
// the caller's item.
func (t *transformer) applyGenerated(meta *EntityMetadata, item Item, isCreate bool) Item {
	out := make(Item, len(item)+2)
	for k, v := range item {
		out[k] = v
	}
	now := t.now().UTC().Format(time.RFC3339)
	for _, a := range meta.AutoGeneratedAttributes() {
		if a.AutoUpdate {
			out[a.Name] = stringAttr(now)
			continue
		}
		if !isCreate {
			continue
		}
		if _, exists := out[a.Name]; exists {
			continue
		}
		if a.Generate == GenerateUUID {
			out[a.Name] = stringAttr(t.newID())
		}
	}
	return out
}

// toPutItem builds the operations creating one entity instance: the main Put
// plus one conditional lock Put per non-key unique attribute present on the
// item.
func (t *transformer) toPutItem(meta *EntityMetadata, item Item, opts *WriteOptions) (Result, error) {
	item = t.applyGenerated(meta, item, true)

	key, err := meta.primaryKey(item)
	if err != nil {
		return Result{}, err
	}

	var lockOps []Operation
	var lockKeys []string
	for _, a := range meta.UniqueAttributes() {
		value, ok := stringValue(item[a.Name])
		if !ok {
			continue
		}
		lockOps = append(lockOps, t.lockPut(meta, a.Name, value))
		lockKeys = append(lockKeys, lockPK(meta.Name(), a.Name, value))
	}

	rec := make(map[string]types.AttributeValue, len(item)+len(key)+2)
	for k, v := range item {
		rec[k] = v
	}
	for k, v := range key {
		rec[k] = v
	}
	rec[t.cfg.TypeAttribute] = stringAttr(meta.Name())
	if len(lockKeys) > 0 {
		keysAttr, err := attributevalue.MarshalList(lockKeys)
		if err != nil {
			return Result{}, err
		}
		rec[lockKeysAttribute] = &types.AttributeValueMemberL{Value: keysAttr}
	}

	put := &types.Put{
		TableName: aws.String(t.cfg.Table.Name),
		Item:      rec,
	}
	var cond string
	if opts == nil || !opts.Overwrite {
		cond = "attribute_not_exists(#pk)"
		put.ExpressionAttributeNames = map[string]string{"#pk": t.cfg.Table.PartitionKeyAttr}
	}
	if opts != nil && opts.ConditionExpression != "" {
		if cond != "" {
			cond = fmt.Sprintf("(%s) AND (%s)", cond, opts.ConditionExpression)
		} else {
			cond = opts.ConditionExpression
		}
		if put.ExpressionAttributeNames == nil {
			put.ExpressionAttributeNames = map[string]string{}
		}
		for k, v := range opts.ExpressionAttributeNames {
			put.ExpressionAttributeNames[k] = v
		}
		if len(opts.ExpressionAttributeValues) > 0 {
			put.ExpressionAttributeValues = opts.ExpressionAttributeValues
		}
	}
	if cond != "" {
		put.ConditionExpression = aws.String(cond)
	}

	ops := make([]Operation, 0, 1+len(lockOps))
	ops = append(ops, Operation{Put: put})
	ops = append(ops, lockOps...)
	return Result{Ops: ops}, nil
}

// toUpdateItem builds the operations updating one entity instance. When the
// body changes a non-key unique attribute the result is a pending expansion,
// because replacing the old lock requires reading the record's current value
// first. Updates that touch no unique attribute resolve synchronously.
func (t *transformer) toUpdateItem(meta *EntityMetadata, key PK, body Item, opts *WriteOptions) (Result, error) {
	for name := range body {
		if meta.usedForPrimaryKey(name) {
			return Result{}, fmt.Errorf("%w: %q", ErrKeyAttributeUpdate, name)
		}
	}

	body = t.applyGenerated(meta, body, false)

	touchesUnique := false
	for _, a := range meta.UniqueAttributes() {
		if _, ok := body[a.Name]; ok {
			touchesUnique = true
			break
		}
	}
	if touchesUnique {
		return Result{Pending: &Expansion{
			kind: expandUpdate,
			tr:   t,
			meta: meta,
			key:  key,
			body: body,
			opts: opts,
		}}, nil
	}

	op, err := t.updateOp(meta, key, body, nil, opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Ops: []Operation{op}}, nil
}

// toDeleteItem builds the operations deleting one entity instance. Entities
// with non-key unique attributes need a pending expansion to learn which lock
// records to release.
func (t *transformer) toDeleteItem(meta *EntityMetadata, key PK, opts *WriteOptions) (Result, error) {
	if len(meta.UniqueAttributes()) > 0 {
		return Result{Pending: &Expansion{
			kind: expandDelete,
			tr:   t,
			meta: meta,
			key:  key,
			opts: opts,
		}}, nil
	}
	return Result{Ops: []Operation{t.deleteOp(key, opts)}}, nil
}

// toGetItem builds the single Get operation for one key. Pure: never expands.
func (t *transformer) toGetItem(meta *EntityMetadata, key PK, opts *ReadOptions) Operation {
	get := &types.Get{
		TableName: aws.String(t.cfg.Table.Name),
		Key:       key,
	}
	if opts != nil && opts.ProjectionExpression != "" {
		get.ProjectionExpression = aws.String(opts.ProjectionExpression)
		if len(opts.ExpressionAttributeNames) > 0 {
			get.ExpressionAttributeNames = opts.ExpressionAttributeNames
		}
	}
	return Operation{Get: get}
}

// updateOp builds the Update for the main record. lockKeys, when non-nil,
// replaces the stored lock-key list.
func (t *transformer) updateOp(meta *EntityMetadata, key PK, body Item, lockKeys []string, opts *WriteOptions) (Operation, error) {
	exprNames := map[string]string{"#pk": t.cfg.Table.PartitionKeyAttr}
	exprValues := map[string]types.AttributeValue{}

	var setClauses []string
	i := 0
	for name, value := range body {
		if name == t.cfg.TypeAttribute || name == lockKeysAttribute {
			continue
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = name
		exprValues[valueKey] = value
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}
	if lockKeys != nil {
		keysAttr, err := attributevalue.MarshalList(lockKeys)
		if err != nil {
			return Operation{}, err
		}
		exprNames["#lk"] = lockKeysAttribute
		exprValues[":lk"] = &types.AttributeValueMemberL{Value: keysAttr}
		setClauses = append(setClauses, "#lk = :lk")
	}
	if len(setClauses) == 0 {
		return Operation{}, fmt.Errorf("%w: update body is empty", ErrInvalidWriteItem)
	}

	cond := "attribute_exists(#pk)"
	if opts != nil && opts.ConditionExpression != "" {
		cond = fmt.Sprintf("(%s) AND (%s)", cond, opts.ConditionExpression)
		for k, v := range opts.ExpressionAttributeNames {
			exprNames[k] = v
		}
		for k, v := range opts.ExpressionAttributeValues {
			exprValues[k] = v
		}
	}

	return Operation{
		Update: &types.Update{
			TableName:                 aws.String(t.cfg.Table.Name),
			Key:                       key,
			UpdateExpression:          aws.String("SET " + strings.Join(setClauses, ", ")),
			ConditionExpression:       aws.String(cond),
			ExpressionAttributeNames:  exprNames,
			ExpressionAttributeValues: exprValues,
		},
	}, nil
}

// deleteOp builds the Delete for the main record.
func (t *transformer) deleteOp(key PK, opts *WriteOptions) Operation {
	del := &types.Delete{
		TableName: aws.String(t.cfg.Table.Name),
		Key:       key,
	}
	if opts != nil && opts.ConditionExpression != "" {
		del.ConditionExpression = aws.String(opts.ConditionExpression)
		del.ExpressionAttributeNames = opts.ExpressionAttributeNames
		del.ExpressionAttributeValues = opts.ExpressionAttributeValues
	}
	return Operation{Delete: del}
}

// expansionKind tags what a pending expansion resolves into.
type expansionKind int

const (
	expandUpdate expansionKind = iota
	expandDelete
)

// Expansion is a transformation result that cannot be finalized without an
// additional read, because it depends on the record's current stored state.
// The composer resolves all expansions before finalizing a transaction.
type Expansion struct {
	kind expansionKind
	tr   *transformer
	meta *EntityMetadata
	key  PK
	body Item // update only
	opts *WriteOptions
}

// Entity returns the entity type the expansion belongs to.
func (e *Expansion) Entity() string { return e.meta.Name() }

// resolve performs the expansion's single read and emits the final
// operations.
func (e *Expansion) resolve(ctx context.Context, executor Executor) ([]Operation, error) {
	out, err := executor.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(e.tr.cfg.Table.Name),
		Key:            e.key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, e.meta.Name())
	}
	current := Item(out.Item)

	switch e.kind {
	case expandDelete:
		return e.resolveDelete(current)
	default:
		return e.resolveUpdate(current)
	}
}

// resolveUpdate diffs the body's unique values against the stored record and
// emits [Update(main), Delete(old lock), Put(new lock)] per changed
// attribute. Unchanged unique values emit no lock operations.
func (e *Expansion) resolveUpdate(current Item) ([]Operation, error) {
	var lockOps []Operation
	var lockKeys []string

	for _, a := range e.meta.UniqueAttributes() {
		newVal, inBody := stringValue(e.body[a.Name])
		oldVal, hadOld := stringValue(current[a.Name])

		switch {
		case !inBody:
			// untouched: keep the existing lock, if any
			if hadOld {
				lockKeys = append(lockKeys, lockPK(e.meta.Name(), a.Name, oldVal))
			}
		case hadOld && oldVal == newVal:
			lockKeys = append(lockKeys, lockPK(e.meta.Name(), a.Name, oldVal))
		default:
			if hadOld {
				lockOps = append(lockOps, e.tr.lockDelete(e.meta, a.Name, oldVal))
			}
			lockOps = append(lockOps, e.tr.lockPut(e.meta, a.Name, newVal))
			lockKeys = append(lockKeys, lockPK(e.meta.Name(), a.Name, newVal))
		}
	}

	update, err := e.tr.updateOp(e.meta, e.key, e.body, lockKeys, e.opts)
	if err != nil {
		return nil, err
	}

	ops := make([]Operation, 0, 1+len(lockOps))
	ops = append(ops, update)
	ops = append(ops, lockOps...)
	return ops, nil
}

// resolveDelete emits [Delete(main), Delete(lock) per unique attribute with a
// stored value].
func (e *Expansion) resolveDelete(current Item) ([]Operation, error) {
	ops := []Operation{e.tr.deleteOp(e.key, e.opts)}
	for _, a := range e.meta.UniqueAttributes() {
		if value, ok := stringValue(current[a.Name]); ok {
			ops = append(ops, e.tr.lockDelete(e.meta, a.Name, value))
		}
	}
	return ops, nil
}
