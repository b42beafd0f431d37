// Package memstore is an in-process store.Store. Commits are validated and
// applied under one lock, which gives the same optimistic semantics as the
// DynamoDB backend without any network.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"winkwink_server/models"
	"winkwink_server/store"
)

type Store struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	conversations map[string]*models.Conversation
	messages      map[string]map[int64]*models.Message
}

func New() *Store {
	return &Store{
		users:         map[string]*models.User{},
		conversations: map[string]*models.Conversation{},
		messages:      map[string]map[int64]*models.Message{},
	}
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{s: s, j: store.NewJournal()}, nil
}

// MessageCount returns how many messages are stored for a conversation id
func (s *Store) MessageCount(conversationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[conversationID])
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

	t.s.mu.RLock()
	u := t.s.users[id].Clone()
	t.s.mu.RUnlock()

	t.j.ObserveUser(id, u)
	if u == nil {
		return nil, store.ErrNotFound
	}
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

	t.s.mu.RLock()
	ids := make([]string, 0, len(t.s.users))
	snapshot := make(map[string]*models.User, len(t.s.users))
	for id, u := range t.s.users {
		ids = append(ids, id)
		snapshot[id] = u.Clone()
	}
	t.s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		u := snapshot[id]
		if pending, known := t.j.LookupUser(id); known {
			if pending == nil {
				continue
			}
			u = pending
		}
		if !fn(u) {
			return nil
		}
	}
	return nil
}

func (t *tx) Conversation(_ context.Context, pairKey string) (*models.Conversation, error) {
	if t.j.Done() {
		return nil, store.ErrTxDone
	}
	if c, known := t.j.LookupConversation(pairKey); known {
		if c == nil {
			return nil, store.ErrNotFound
		}
		return c, nil
	}

	t.s.mu.RLock()
	c := t.s.conversations[pairKey].Clone()
	t.s.mu.RUnlock()

	t.j.ObserveConversation(pairKey, c)
	if c == nil {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (t *tx) SaveConversation(_ context.Context, c *models.Conversation) error {
	return t.j.PutConversation(c)
}

func (t *tx) DeleteConversation(_ context.Context, c *models.Conversation) error {
	return t.j.DeleteConversation(c)
}

func (t *tx) Conversations(_ context.Context, userID string, since time.Time) ([]*models.Conversation, error) {
	if t.j.Done() {
		return nil, store.ErrTxDone
	}

	t.s.mu.RLock()
	var out []*models.Conversation
	for _, c := range t.s.conversations {
		if !c.Involves(userID) || c.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, c.Clone())
	}
	t.s.mu.RUnlock()

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

func (t *tx) Messages(_ context.Context, conversationID string, before int64, limit int) ([]*models.Message, error) {
	if t.j.Done() {
		return nil, store.ErrTxDone
	}

	t.s.mu.RLock()
	var out []*models.Message
	for order, m := range t.s.messages[conversationID] {
		if before > 0 && order >= before {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	t.s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool { return out[a].Order > out[b].Order })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
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

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if err := t.validate(); err != nil {
		return err
	}
	t.apply()
	return nil
}

func (t *tx) validate() error {
	for _, e := range t.j.Users() {
		cur := t.s.users[e.Key]
		if !versionMatches(e.Found, e.ReadVersion, cur != nil, versionOf(cur)) {
			return fmt.Errorf("user %s: %w", e.Key, store.ErrConflict)
		}
	}
	for _, e := range t.j.Conversations() {
		cur := t.s.conversations[e.Key]
		var v int64
		if cur != nil {
			v = cur.Version
		}
		if !versionMatches(e.Found, e.ReadVersion, cur != nil, v) {
			return fmt.Errorf("conversation %s: %w", e.Key, store.ErrConflict)
		}
	}
	seen := map[string]map[int64]bool{}
	for _, m := range t.j.Messages() {
		if _, taken := t.s.messages[m.ConversationID][m.Order]; taken || seen[m.ConversationID][m.Order] {
			return fmt.Errorf("message %s/%d: %w", m.ConversationID, m.Order, store.ErrConflict)
		}
		if seen[m.ConversationID] == nil {
			seen[m.ConversationID] = map[int64]bool{}
		}
		seen[m.ConversationID][m.Order] = true
	}
	return nil
}

func (t *tx) apply() {
	for _, e := range t.j.Users() {
		switch e.Op {
		case store.OpPut:
			e.Value.Version = e.NextVersion()
			t.s.users[e.Key] = e.Value.Clone()
		case store.OpDelete:
			delete(t.s.users, e.Key)
		}
	}
	for _, e := range t.j.Conversations() {
		switch e.Op {
		case store.OpPut:
			e.Value.Version = e.NextVersion()
			t.s.conversations[e.Key] = e.Value.Clone()
		case store.OpDelete:
			if cur := t.s.conversations[e.Key]; cur != nil {
				delete(t.s.messages, cur.ID)
			}
			delete(t.s.conversations, e.Key)
		}
	}
	for _, m := range t.j.Messages() {
		byOrder := t.s.messages[m.ConversationID]
		if byOrder == nil {
			byOrder = map[int64]*models.Message{}
			t.s.messages[m.ConversationID] = byOrder
		}
		cp := *m
		byOrder[m.Order] = &cp
	}
}

func (t *tx) Rollback(context.Context) error {
	t.j.Finish()
	return nil
}

func versionOf(u *models.User) int64 {
	if u == nil {
		return 0
	}
	return u.Version
}

func versionMatches(expectFound bool, expectVersion int64, found bool, version int64) bool {
	if expectFound != found {
		return false
	}
	return !found || expectVersion == version
}
