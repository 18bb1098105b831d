package mapper_test

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tessera/mapper"
)

// fakeExecutor implements mapper.Executor in memory. GetItem responses are
// keyed by the partition key value; transactional submissions are recorded
// for assertions.
type fakeExecutor struct {
	mu sync.Mutex

	// items served by GetItem, keyed by partition key value
	items map[string]map[string]types.AttributeValue

	// queryPages served by Query in order
	queryPages []*dynamodb.QueryOutput

	getErr      error
	transactErr error

	getCalls      int
	queryCalls    int
	writeRequests []*dynamodb.TransactWriteItemsInput
	readRequests  []*dynamodb.TransactGetItemsInput
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeExecutor) put(pk string, item map[string]types.AttributeValue) {
	f.items[pk] = item
}

func (f *fakeExecutor) GetItem(ctx context.Context, input *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	pk := ""
	if v, ok := input.Key["pk"].(*types.AttributeValueMemberS); ok {
		pk = v.Value
	}
	item, ok := f.items[pk]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeExecutor) TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeRequests = append(f.writeRequests, input)
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeExecutor) TransactGetItems(ctx context.Context, input *dynamodb.TransactGetItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactGetItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readRequests = append(f.readRequests, input)
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	out := &dynamodb.TransactGetItemsOutput{}
	for _, item := range input.TransactItems {
		pk := ""
		if v, ok := item.Get.Key["pk"].(*types.AttributeValueMemberS); ok {
			pk = v.Value
		}
		out.Responses = append(out.Responses, types.ItemResponse{Item: f.items[pk]})
	}
	return out, nil
}

func (f *fakeExecutor) Query(ctx context.Context, input *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryCalls >= len(f.queryPages) {
		return &dynamodb.QueryOutput{}, nil
	}
	page := f.queryPages[f.queryCalls]
	f.queryCalls++
	return page, nil
}

// --- Test Schemas ---

func testTable() mapper.Table {
	return mapper.Table{Name: "app", PartitionKeyAttr: "pk", SortKeyAttr: "sk"}
}

// userEntity has one non-key unique attribute (email) and generated fields.
func userEntity() mapper.EntityDefinition {
	return mapper.EntityDefinition{
		Name: "user",
		PrimaryKey: mapper.PrimaryKeyDef{
			PartitionKey: "USER#${id}",
			SortKey:      "PROFILE",
		},
		Attributes: []mapper.AttributeDefinition{
			{Name: "id", Generate: mapper.GenerateUUID},
			{Name: "email", Unique: true},
			{Name: "name"},
			{Name: "updated_at", AutoUpdate: true},
		},
	}
}

// orgEntity has no unique attributes.
func orgEntity() mapper.EntityDefinition {
	return mapper.EntityDefinition{
		Name: "org",
		PrimaryKey: mapper.PrimaryKeyDef{
			PartitionKey: "ORG#${id}",
			SortKey:      "META",
		},
		Attributes: []mapper.AttributeDefinition{
			{Name: "id"},
			{Name: "name"},
		},
	}
}

// accountEntity has two non-key unique attributes and a key-unique one.
func accountEntity() mapper.EntityDefinition {
	return mapper.EntityDefinition{
		Name: "account",
		PrimaryKey: mapper.PrimaryKeyDef{
			PartitionKey: "ACCOUNT#${id}",
			SortKey:      "META",
		},
		Attributes: []mapper.AttributeDefinition{
			{Name: "id", Unique: true}, // key-participating: never lock-tracked
			{Name: "email", Unique: true},
			{Name: "handle", Unique: true},
			{Name: "plan"},
		},
	}
}

// connect builds a connected Connection over the fake executor.
func connect(t *testing.T, ex *fakeExecutor, entities ...mapper.EntityDefinition) *mapper.Connection {
	t.Helper()
	conn := mapper.NewConnection(mapper.Config{
		Table:    testTable(),
		Executor: ex,
	}, entities...)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return conn
}

// registryFor builds a registry via a connected Connection.
func registryFor(t *testing.T, entities ...mapper.EntityDefinition) *mapper.Registry {
	t.Helper()
	conn := connect(t, newFakeExecutor(), entities...)
	reg, err := conn.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func s(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func sval(av types.AttributeValue) string {
	if v, ok := av.(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func userKey(id string) mapper.PK {
	return mapper.PK{"pk": s("USER#" + id), "sk": s("PROFILE")}
}
