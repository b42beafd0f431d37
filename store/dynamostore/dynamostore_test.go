package dynamostore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"winkwink_server/models"
	"winkwink_server/store"
)

type fakeDynamo struct {
	items       map[string]map[string]map[string]types.AttributeValue
	transacts   []*dynamodb.TransactWriteItemsInput
	queries     []*dynamodb.QueryInput
	queryItems  []map[string]types.AttributeValue
	batches     []*dynamodb.BatchWriteItemInput
	transactErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) put(t *testing.T, table, key string, v any) {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if f.items[table] == nil {
		f.items[table] = map[string]map[string]types.AttributeValue{}
	}
	f.items[table][key] = item
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	for _, v := range in.Key {
		s, _ := v.(*types.AttributeValueMemberS)
		return &dynamodb.GetItemOutput{Item: f.items[aws.ToString(in.TableName)][s.Value]}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	return &dynamodb.QueryOutput{Items: f.queryItems}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	var items []map[string]types.AttributeValue
	for _, item := range f.items[aws.ToString(in.TableName)] {
		items = append(items, item)
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transacts = append(f.transacts, in)
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.batches = append(f.batches, in)
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func TestCommitCreatesUserWithNotExistsGuard(t *testing.T) {
	fake := newFakeDynamo()
	s := New(fake, DefaultTables(), nil)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	u := &models.User{ID: "u1", Name: models.Name{First: "Ada"}}
	if err := tx.SaveUser(ctx, u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if len(fake.transacts) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(fake.transacts))
	}
	items := fake.transacts[0].TransactItems
	if len(items) != 1 || items[0].Put == nil {
		t.Fatalf("expected a single put, got %+v", items)
	}
	if got := aws.ToString(items[0].Put.ConditionExpression); got != "attribute_not_exists(#pk)" {
		t.Errorf("unexpected condition %q", got)
	}
	if u.Version != 1 {
		t.Errorf("expected version 1 after create, got %d", u.Version)
	}
}

func TestCommitGuardsReadOnlyPeer(t *testing.T) {
	fake := newFakeDynamo()
	fake.put(t, models.UserProfilesTable, "a", models.User{ID: "a", Version: 3})
	fake.put(t, models.UserProfilesTable, "b", models.User{ID: "b", Version: 7})
	s := New(fake, DefaultTables(), nil)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	a, err := tx.User(ctx, "a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if _, err := tx.User(ctx, "b"); err != nil {
		t.Fatalf("get b: %v", err)
	}
	a.Liked = append(a.Liked, "b")
	if err := tx.SaveUser(ctx, a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	items := fake.transacts[0].TransactItems
	if len(items) != 2 {
		t.Fatalf("expected 2 transact items, got %d", len(items))
	}
	put, check := items[0].Put, items[1].ConditionCheck
	if put == nil || check == nil {
		t.Fatalf("expected put for a then condition check for b, got %+v", items)
	}
	if v := put.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN).Value; v != "3" {
		t.Errorf("put guarded on version %s, want 3", v)
	}
	if v := put.Item["version"].(*types.AttributeValueMemberN).Value; v != "4" {
		t.Errorf("put writes version %s, want 4", v)
	}
	if v := check.ExpressionAttributeValues[":v"].(*types.AttributeValueMemberN).Value; v != "7" {
		t.Errorf("check guarded on version %s, want 7", v)
	}
	if a.Version != 4 {
		t.Errorf("expected saved user at version 4, got %d", a.Version)
	}
}

func TestCommitMapsCanceledTransactionToConflict(t *testing.T) {
	fake := newFakeDynamo()
	fake.transactErr = &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
	}
	s := New(fake, DefaultTables(), nil)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	_ = tx.SaveUser(ctx, &models.User{ID: "u1"})
	err := tx.Commit(ctx)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := tx.Commit(ctx); !errors.Is(err, store.ErrTxDone) {
		t.Errorf("expected ErrTxDone on second commit, got %v", err)
	}
}

func TestReadOnlyCommitSkipsTransaction(t *testing.T) {
	fake := newFakeDynamo()
	fake.put(t, models.UserProfilesTable, "a", models.User{ID: "a", Version: 1})
	s := New(fake, DefaultTables(), nil)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	if _, err := tx.User(ctx, "a"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := tx.User(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(fake.transacts) != 0 {
		t.Errorf("expected no transaction for a read-only unit of work, got %d", len(fake.transacts))
	}
}

func TestCommitRejectsOversizedTransaction(t *testing.T) {
	fake := newFakeDynamo()
	s := New(fake, DefaultTables(), nil)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	for i := 1; i <= maxTransactItems+1; i++ {
		_ = tx.AddMessage(ctx, &models.Message{ConversationID: "c1", Order: int64(i), ID: "m"})
	}
	if err := tx.Commit(ctx); !errors.Is(err, store.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if len(fake.transacts) != 0 {
		t.Errorf("oversized transaction should not reach dynamodb")
	}
}

func TestDeleteConversationPurgesMessagesAfterCommit(t *testing.T) {
	fake := newFakeDynamo()
	now := time.Now().UTC()
	conv := models.NewConversation("conv-1", "a", "b", now)
	conv.Version = 2
	fake.put(t, models.ConversationsTable, conv.PairKey, conversationItem{Conversation: *conv, UpdatedAtKey: now.UnixNano()})
	msg, _ := attributevalue.MarshalMap(models.Message{ConversationID: "conv-1", Order: 1, ID: "m1"})
	fake.queryItems = []map[string]types.AttributeValue{msg}
	s := New(fake, DefaultTables(), nil)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	c, err := tx.Conversation(ctx, conv.PairKey)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if err := tx.DeleteConversation(ctx, c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if del := fake.transacts[0].TransactItems[0].Delete; del == nil {
		t.Fatalf("expected a guarded delete")
	}
	if len(fake.batches) != 1 {
		t.Fatalf("expected one purge batch, got %d", len(fake.batches))
	}
	reqs := fake.batches[0].RequestItems[models.MessagesTable]
	if len(reqs) != 1 || reqs[0].DeleteRequest == nil {
		t.Errorf("expected one message delete request, got %+v", reqs)
	}
}

func TestMessagesQueryUsesCursor(t *testing.T) {
	fake := newFakeDynamo()
	s := New(fake, DefaultTables(), nil)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	if _, err := tx.Messages(ctx, "conv-1", 40, 20); err != nil {
		t.Fatalf("messages: %v", err)
	}
	q := fake.queries[0]
	if got := aws.ToString(q.KeyConditionExpression); got != "#conv = :conv AND #order < :before" {
		t.Errorf("unexpected key condition %q", got)
	}
	if aws.ToBool(q.ScanIndexForward) {
		t.Errorf("expected newest first")
	}
	if aws.ToInt32(q.Limit) != 20 {
		t.Errorf("expected limit 20, got %d", aws.ToInt32(q.Limit))
	}
}
