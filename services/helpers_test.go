package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"winkwink_server/models"
	"winkwink_server/store"
	"winkwink_server/store/memstore"
)

type testEnv struct {
	store         *memstore.Store
	uow           *UnitOfWork
	relationships *RelationshipService
	chat          *ChatService
	discovery     *DiscoveryService
	profiles      *UserProfileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := memstore.New()
	uow := NewUnitOfWork(st, RetryPolicy{MaxAttempts: 50, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond}, nil)
	return &testEnv{
		store:         st,
		uow:           uow,
		relationships: NewRelationshipService(uow, nil, nil),
		chat:          NewChatService(uow, nil, 0, nil),
		discovery:     NewDiscoveryService(uow, 10),
		profiles:      NewUserProfileService(uow, nil),
	}
}

func (e *testEnv) seedUsers(t *testing.T, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		err := e.uow.Do(ctx, "seed", func(ctx context.Context, tx store.Tx) error {
			return tx.SaveUser(ctx, &models.User{ID: id, Name: models.Name{First: id, Last: "Test"}, Age: 30})
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

func (e *testEnv) user(t *testing.T, id string) *models.User {
	t.Helper()
	var u *models.User
	err := e.uow.Do(context.Background(), "read", func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.User(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("read user %s: %v", id, err)
	}
	return u
}

// conversation returns nil when the pair has no conversation
func (e *testEnv) conversation(t *testing.T, a, b string) *models.Conversation {
	t.Helper()
	var c *models.Conversation
	err := e.uow.Do(context.Background(), "read", func(ctx context.Context, tx store.Tx) error {
		var err error
		c, err = tx.Conversation(ctx, models.PairKey(a, b))
		if errors.Is(err, store.ErrNotFound) {
			c = nil
			return nil
		}
		return err
	})
	if err != nil {
		t.Fatalf("read conversation %s/%s: %v", a, b, err)
	}
	return c
}

func (e *testEnv) match(t *testing.T, a, b string) *models.Conversation {
	t.Helper()
	ctx := context.Background()
	if _, err := e.relationships.RecordSignal(ctx, a, b, true); err != nil {
		t.Fatalf("%s likes %s: %v", a, b, err)
	}
	res, err := e.relationships.RecordSignal(ctx, b, a, true)
	if err != nil {
		t.Fatalf("%s likes %s: %v", b, a, err)
	}
	if res.Outcome != models.SignalMatched {
		t.Fatalf("expected match, got %s", res.Outcome)
	}
	return res.Conversation
}

func expectKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if got := KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func sameIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := map[string]int{}
	for _, id := range got {
		seen[id]++
	}
	for _, id := range want {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}
