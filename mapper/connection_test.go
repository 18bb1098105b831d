package mapper_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tessera/mapper"
)

func TestConnection_NotConnected(t *testing.T) {
	conn := mapper.NewConnection(mapper.Config{
		Table:    testTable(),
		Executor: newFakeExecutor(),
	}, userEntity())

	if _, err := conn.Registry(); !errors.Is(err, mapper.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected from Registry, got %v", err)
	}
	if err := conn.ExecuteWrite(context.Background()); !errors.Is(err, mapper.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected from ExecuteWrite, got %v", err)
	}
	if _, err := conn.ExecuteRead(context.Background()); !errors.Is(err, mapper.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected from ExecuteRead, got %v", err)
	}
	if _, err := conn.Get(context.Background(), "user", userKey("u1")); !errors.Is(err, mapper.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected from Get, got %v", err)
	}
}

func TestExecuteWrite_SubmitsAtomicBatch(t *testing.T) {
	ex := newFakeExecutor()
	conn := connect(t, ex, userEntity(), orgEntity())

	err := conn.ExecuteWrite(context.Background(),
		mapper.WriteItem{Create: &mapper.CreateItem{Entity: "org", Item: mapper.Item{"id": s("o1")}}},
		mapper.WriteItem{Create: &mapper.CreateItem{Entity: "user", Item: mapper.Item{
			"id":    s("u1"),
			"email": s("a@x"),
		}}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ex.writeRequests) != 1 {
		t.Fatalf("expected a single transactional submission, got %d", len(ex.writeRequests))
	}
	// org put + user put + email lock put
	if got := len(ex.writeRequests[0].TransactItems); got != 3 {
		t.Errorf("expected 3 transact items, got %d", got)
	}
}

func TestExecuteWrite_UniqueConstraintViolation(t *testing.T) {
	ex := newFakeExecutor()
	ex.transactErr = &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}
	conn := connect(t, ex, userEntity())

	err := conn.ExecuteWrite(context.Background(),
		mapper.WriteItem{Create: &mapper.CreateItem{Entity: "user", Item: mapper.Item{
			"id":    s("u1"),
			"email": s("taken@x"),
		}}},
	)
	// Index 1 is the email lock put.
	if !errors.Is(err, mapper.ErrUniqueConstraint) {
		t.Fatalf("expected ErrUniqueConstraint, got %v", err)
	}
}

func TestExecuteWrite_MainConditionFailure(t *testing.T) {
	ex := newFakeExecutor()
	ex.transactErr = &types.TransactionCanceledException{
		Message: aws.String("Transaction cancelled"),
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}
	conn := connect(t, ex, orgEntity())

	err := conn.ExecuteWrite(context.Background(),
		mapper.WriteItem{Create: &mapper.CreateItem{Entity: "org", Item: mapper.Item{"id": s("o1")}}},
	)
	if !errors.Is(err, mapper.ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
}

func TestExecuteWrite_OtherErrorsPassThrough(t *testing.T) {
	ex := newFakeExecutor()
	ex.transactErr = errors.New("throughput exceeded")
	conn := connect(t, ex, orgEntity())

	err := conn.ExecuteWrite(context.Background(),
		mapper.WriteItem{Create: &mapper.CreateItem{Entity: "org", Item: mapper.Item{"id": s("o1")}}},
	)
	if err == nil || err.Error() != "throughput exceeded" {
		t.Fatalf("expected executor error unchanged, got %v", err)
	}
}

func TestExecuteRead_ItemOrderAndMisses(t *testing.T) {
	ex := newFakeExecutor()
	ex.put("USER#u1", map[string]types.AttributeValue{
		"pk": s("USER#u1"), "sk": s("PROFILE"), "_et": s("user"), "name": s("Alice"),
	})
	conn := connect(t, ex, userEntity())

	items, err := conn.ExecuteRead(context.Background(),
		mapper.ReadItem{Get: &mapper.GetItem{Entity: "user", Key: userKey("u1")}},
		mapper.ReadItem{Get: &mapper.GetItem{Entity: "user", Key: userKey("missing")}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(items))
	}
	if sval(items[0]["name"]) != "Alice" {
		t.Errorf("expected first response to be Alice's record")
	}
	if items[1] != nil {
		t.Errorf("expected nil for missing record, got %v", items[1])
	}
}

func TestGet_NotFound(t *testing.T) {
	conn := connect(t, newFakeExecutor(), userEntity())

	_, err := conn.Get(context.Background(), "user", userKey("ghost"))
	if !errors.Is(err, mapper.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_UnknownEntity(t *testing.T) {
	conn := connect(t, newFakeExecutor(), userEntity())

	_, err := conn.Get(context.Background(), "ghost", userKey("u1"))
	var unknown *mapper.UnknownEntityError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownEntityError, got %v", err)
	}
}

func TestQuery_ImplicitLimit(t *testing.T) {
	ex := newFakeExecutor()
	page := &dynamodb.QueryOutput{}
	for i := 0; i < 5; i++ {
		page.Items = append(page.Items, map[string]types.AttributeValue{"pk": s("USER#u1")})
	}
	ex.queryPages = []*dynamodb.QueryOutput{page}

	conn := mapper.NewConnection(mapper.Config{
		Table:                   testTable(),
		Executor:                ex,
		QueryItemsImplicitLimit: 3,
	}, userEntity())
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	items, err := conn.Query(context.Background(), mapper.QueryInput{
		KeyConditionExpression:    "pk = :pk",
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s("USER#u1")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected the implicit limit of 3 items, got %d", len(items))
	}
}

func TestQuery_Pagination(t *testing.T) {
	ex := newFakeExecutor()
	ex.queryPages = []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{{"pk": s("a")}},
			LastEvaluatedKey: map[string]types.AttributeValue{"pk": s("a")},
		},
		{
			Items: []map[string]types.AttributeValue{{"pk": s("b")}},
		},
	}
	conn := connect(t, ex, userEntity())

	items, err := conn.Query(context.Background(), mapper.QueryInput{
		KeyConditionExpression:    "pk = :pk",
		ExpressionAttributeValues: map[string]types.AttributeValue{":pk": s("x")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items across pages, got %d", len(items))
	}
}
