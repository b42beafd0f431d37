// Package dynamostore implements store.Store on DynamoDB. Reads are strongly
// consistent GetItem calls recorded in a journal; Commit turns the journal into a
// single TransactWriteItems call where every write and every read-only record
// carries a version ConditionExpression.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"winkwink_server/models"
	"winkwink_server/store"
)

const (
	userKey         = "id"
	conversationKey = "pairKey"
	messageKey      = "conversationId"
	messageSortKey  = "chatOrder"
	versionAttr     = "version"
	updatedAtKey    = "updatedAtKey"
	purgeTimeout    = 30 * time.Second
)

type Tables struct {
	Users         string
	Conversations string
	Messages      string
}

func DefaultTables() Tables {
	return Tables{
		Users:         models.UserProfilesTable,
		Conversations: models.ConversationsTable,
		Messages:      models.MessagesTable,
	}
}

type Store struct {
	dynamo *DynamoService
	tables Tables
	log    *zap.Logger
}

func New(client DynamoAPI, tables Tables, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		dynamo: &DynamoService{Client: client, Log: log},
		tables: tables,
		log:    log,
	}
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{s: s, j: store.NewJournal()}, nil
}

// conversationItem adds the numeric GSI sort key to the stored conversation
type conversationItem struct {
	models.Conversation
	UpdatedAtKey int64 `dynamodbav:"updatedAtKey"`
}

type tx struct {
	s *Store
	j *store.Journal
}

func (t *tx) User(ctx context.Context, id string) (*models.User, error) {
	if t.j.Done() {
		return nil, store.ErrTxDone
	}
	if u, known := t.j.LookupUser(id); known {
		if u == nil {
			return nil, store.ErrNotFound
		}
		return u, nil
	}

	item, err := t.s.dynamo.GetItem(ctx, t.s.tables.Users, stringKey(userKey, id))
	if errors.Is(err, store.ErrNotFound) {
		t.j.ObserveUser(id, nil)
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var u models.User
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", id, err)
	}
	t.j.ObserveUser(id, &u)
	return u.Clone(), nil
}

func (t *tx) SaveUser(_ context.Context, u *models.User) error {
	return t.j.PutUser(u)
}

func (t *tx) DeleteUser(_ context.Context, u *models.User) error {
	return t.j.DeleteUser(u)
}

func (t *tx) ScanUsers(ctx context.Context, fn func(*models.User) bool) error {
	if t.j.Done() {
		return store.ErrTxDone
	}
	return t.s.dynamo.ScanPages(ctx, t.s.tables.Users, func(items []map[string]types.AttributeValue) (bool, error) {
		var users []models.User
		if err := attributevalue.UnmarshalListOfMaps(items, &users); err != nil {
			return false, fmt.Errorf("failed to unmarshal scanned users: %w", err)
		}
		for i := range users {
			u := &users[i]
			if pending, known := t.j.LookupUser(u.ID); known {
				if pending == nil {
					continue
				}
				u = pending
			}
			if !fn(u) {
				return false, nil
			}
		}
		return true, nil
	})
}

func (t *tx) Conversation(ctx context.Context, pairKey string) (*models.Conversation, error) {
	if t.j.Done() {
		return nil, store.ErrTxDone
	}
	if c, known := t.j.LookupConversation(pairKey); known {
		if c == nil {
			return nil, store.ErrNotFound
		}
		return c, nil
	}

	item, err := t.s.dynamo.GetItem(ctx, t.s.tables.Conversations, stringKey(conversationKey, pairKey))
	if errors.Is(err, store.ErrNotFound) {
		t.j.ObserveConversation(pairKey, nil)
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var ci conversationItem
	if err := attributevalue.UnmarshalMap(item, &ci); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", pairKey, err)
	}
	c := ci.Conversation
	t.j.ObserveConversation(pairKey, &c)
	return c.Clone(), nil
}

func (t *tx) SaveConversation(_ context.Context, c *models.Conversation) error {
	return t.j.PutConversation(c)
}

func (t *tx) DeleteConversation(_ context.Context, c *models.Conversation) error {
	return t.j.DeleteConversation(c)
}

// Conversations merges the two GSIs (user as userA, user as userB). GSIs are
// eventually consistent, so a just committed update can lag here.
func (t *tx) Conversations(ctx context.Context, userID string, since time.Time) ([]*models.Conversation, error) {
	if t.j.Done() {
		return nil, store.ErrTxDone
	}

	var sinceKey int64
	if !since.IsZero() {
		sinceKey = since.UnixNano()
	}

	byKey := map[string]*models.Conversation{}
	for _, side := range []struct{ index, attr string }{
		{models.UserAUpdatedIndex, "userA"},
		{models.UserBUpdatedIndex, "userB"},
	} {
		items, err := t.s.dynamo.QueryItemsWithOptions(ctx, t.s.tables.Conversations, side.index,
			"#user = :user AND #updated >= :since",
			map[string]types.AttributeValue{
				":user":  &types.AttributeValueMemberS{Value: userID},
				":since": numberValue(sinceKey),
			},
			map[string]string{"#user": side.attr, "#updated": updatedAtKey},
			0, true,
		)
		if err != nil {
			return nil, err
		}
		var page []conversationItem
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversations: %w", err)
		}
		for i := range page {
			c := page[i].Conversation
			byKey[c.PairKey] = &c
		}
	}

	out := make([]*models.Conversation, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, c)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].UpdatedAt.Equal(out[b].UpdatedAt) {
			return out[a].PairKey < out[b].PairKey
		}
		return out[a].UpdatedAt.After(out[b].UpdatedAt)
	})
	return out, nil
}

func (t *tx) AddMessage(_ context.Context, m *models.Message) error {
	return t.j.AddMessage(m)
}

func (t *tx) Messages(ctx context.Context, conversationID string, before int64, limit int) ([]*models.Message, error) {
	if t.j.Done() {
		return nil, store.ErrTxDone
	}

	keyCondition := "#conv = :conv"
	values := map[string]types.AttributeValue{
		":conv": &types.AttributeValueMemberS{Value: conversationID},
	}
	names := map[string]string{"#conv": messageKey}
	if before > 0 {
		keyCondition += " AND #order < :before"
		values[":before"] = numberValue(before)
		names["#order"] = messageSortKey
	}

	items, err := t.s.dynamo.QueryItemsWithOptions(ctx, t.s.tables.Messages, "", keyCondition, values, names, int32(limit), true)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if err := attributevalue.UnmarshalListOfMaps(items, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	out := make([]*models.Message, len(messages))
	for i := range messages {
		out[i] = &messages[i]
	}
	return out, nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.j.Done() {
		return store.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		t.j.Finish()
		return err
	}
	defer t.j.Finish()

	if t.j.ReadOnly() {
		return nil
	}

	items, err := t.transactItems()
	if err != nil {
		return err
	}
	if err := t.s.dynamo.TransactWriteItems(ctx, items); err != nil {
		return err
	}

	var purge []string
	for _, e := range t.j.Users() {
		if e.Op == store.OpPut {
			e.Value.Version = e.NextVersion()
		}
	}
	for _, e := range t.j.Conversations() {
		switch e.Op {
		case store.OpPut:
			e.Value.Version = e.NextVersion()
		case store.OpDelete:
			purge = append(purge, e.Value.ID)
		}
	}
	if len(purge) > 0 {
		t.s.purgeMessages(context.WithoutCancel(ctx), purge)
	}
	return nil
}

func (t *tx) transactItems() ([]types.TransactWriteItem, error) {
	var items []types.TransactWriteItem

	for _, e := range t.j.Users() {
		key := stringKey(userKey, e.Key)
		cond, names, values := versionGuard(userKey, e.Found, e.ReadVersion)
		switch e.Op {
		case store.OpRead:
			items = append(items, conditionCheck(t.s.tables.Users, key, cond, names, values))
		case store.OpPut:
			next := *e.Value
			next.Version = e.NextVersion()
			item, err := attributevalue.MarshalMap(next)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal user %s: %w", e.Key, err)
			}
			items = append(items, put(t.s.tables.Users, item, cond, names, values))
		case store.OpDelete:
			items = append(items, del(t.s.tables.Users, key, cond, names, values))
		}
	}

	for _, e := range t.j.Conversations() {
		key := stringKey(conversationKey, e.Key)
		cond, names, values := versionGuard(conversationKey, e.Found, e.ReadVersion)
		switch e.Op {
		case store.OpRead:
			items = append(items, conditionCheck(t.s.tables.Conversations, key, cond, names, values))
		case store.OpPut:
			next := *e.Value
			next.Version = e.NextVersion()
			item, err := attributevalue.MarshalMap(conversationItem{Conversation: next, UpdatedAtKey: next.UpdatedAt.UnixNano()})
			if err != nil {
				return nil, fmt.Errorf("failed to marshal conversation %s: %w", e.Key, err)
			}
			items = append(items, put(t.s.tables.Conversations, item, cond, names, values))
		case store.OpDelete:
			items = append(items, del(t.s.tables.Conversations, key, cond, names, values))
		}
	}

	for _, m := range t.j.Messages() {
		item, err := attributevalue.MarshalMap(m)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message %s: %w", m.ID, err)
		}
		cond, names, values := versionGuard(messageKey, false, 0)
		items = append(items, put(t.s.tables.Messages, item, cond, names, values))
	}

	return items, nil
}

// purgeMessages removes the messages of deleted conversations. The conversation
// row is already gone, so leftovers are unreachable; failures are only logged.
func (s *Store) purgeMessages(ctx context.Context, conversationIDs []string) {
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()

	for _, id := range conversationIDs {
		items, err := s.dynamo.QueryItemsWithOptions(ctx, s.tables.Messages, "", "#conv = :conv",
			map[string]types.AttributeValue{":conv": &types.AttributeValueMemberS{Value: id}},
			map[string]string{"#conv": messageKey}, 0, false)
		if err != nil {
			s.log.Warn("purge messages: query failed", zap.String("conversation_id", id), zap.Error(err))
			continue
		}

		requests := make([]types.WriteRequest, 0, len(items))
		for _, item := range items {
			requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					messageKey:     item[messageKey],
					messageSortKey: item[messageSortKey],
				},
			}})
		}
		if err := s.dynamo.BatchWriteItems(ctx, s.tables.Messages, requests); err != nil {
			s.log.Warn("purge messages: batch delete failed", zap.String("conversation_id", id), zap.Error(err))
			continue
		}
		s.log.Debug("purged conversation messages", zap.String("conversation_id", id), zap.Int("count", len(requests)))
	}
}

func (t *tx) Rollback(context.Context) error {
	t.j.Finish()
	return nil
}

// versionGuard returns the ConditionExpression protecting one record
func versionGuard(keyAttr string, found bool, version int64) (string, map[string]string, map[string]types.AttributeValue) {
	if !found {
		return "attribute_not_exists(#pk)", map[string]string{"#pk": keyAttr}, nil
	}
	if version == 0 {
		return "attribute_exists(#pk) AND attribute_not_exists(#v)", map[string]string{"#pk": keyAttr, "#v": versionAttr}, nil
	}
	return "#v = :v", map[string]string{"#v": versionAttr}, map[string]types.AttributeValue{":v": numberValue(version)}
}

func conditionCheck(table string, key map[string]types.AttributeValue, cond string, names map[string]string, values map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
		TableName:                 aws.String(table),
		Key:                       key,
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}}
}

func put(table string, item map[string]types.AttributeValue, cond string, names map[string]string, values map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{Put: &types.Put{
		TableName:                 aws.String(table),
		Item:                      item,
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}}
}

func del(table string, key map[string]types.AttributeValue, cond string, names map[string]string, values map[string]types.AttributeValue) types.TransactWriteItem {
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 aws.String(table),
		Key:                       key,
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}}
}

func stringKey(attr, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attr: &types.AttributeValueMemberS{Value: value}}
}

func numberValue(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}
