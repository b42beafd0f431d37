package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"winkwink_server/models"
	"winkwink_server/store"
	"winkwink_server/store/memstore"
)

func TestRelationshipScenario(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "b")
	ctx := context.Background()

	res, err := env.relationships.RecordSignal(ctx, "a", "b", true)
	if err != nil {
		t.Fatalf("a likes b: %v", err)
	}
	if res.Outcome != models.SignalRecorded {
		t.Fatalf("expected recorded, got %s", res.Outcome)
	}
	if a := env.user(t, "a"); !sameIDs(a.Liked, "b") || len(a.Matched) != 0 {
		t.Fatalf("unexpected ledger for a: %+v", a)
	}

	res, err = env.relationships.RecordSignal(ctx, "b", "a", true)
	if err != nil {
		t.Fatalf("b likes a: %v", err)
	}
	if res.Outcome != models.SignalMatched || res.Conversation == nil {
		t.Fatalf("expected match with conversation, got %+v", res)
	}
	a, b := env.user(t, "a"), env.user(t, "b")
	if !sameIDs(a.Matched, "b") || !sameIDs(b.Matched, "a") {
		t.Fatalf("matched sets not symmetric: a=%v b=%v", a.Matched, b.Matched)
	}
	if len(a.Liked) != 0 || len(b.Liked) != 0 {
		t.Fatalf("likes should be superseded by the match: a=%v b=%v", a.Liked, b.Liked)
	}
	conv := env.conversation(t, "a", "b")
	if conv == nil || conv.LastMessage != "" || !conv.SeenByA || !conv.SeenByB {
		t.Fatalf("unexpected zero state conversation %+v", conv)
	}

	if _, err := env.chat.SendMessage(ctx, "a", "b", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	conv = env.conversation(t, "a", "b")
	if conv.LastMessage != "hi" || conv.SeenBy("b") || !conv.SeenBy("a") {
		t.Fatalf("unexpected conversation after message %+v", conv)
	}

	if err := env.chat.MarkSeen(ctx, "b", conv.PairKey, true); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if conv = env.conversation(t, "a", "b"); !conv.SeenBy("b") {
		t.Fatalf("b should have seen the chat")
	}

	if err := env.relationships.Unmatch(ctx, "b", "a"); err != nil {
		t.Fatalf("unmatch: %v", err)
	}
	a, b = env.user(t, "a"), env.user(t, "b")
	if len(a.Matched) != 0 || len(b.Matched) != 0 {
		t.Fatalf("matched sets should be empty: a=%v b=%v", a.Matched, b.Matched)
	}
	if env.conversation(t, "a", "b") != nil {
		t.Fatalf("conversation should be deleted")
	}
	if n := env.store.MessageCount(conv.ID); n != 0 {
		t.Fatalf("expected messages to be deleted, %d left", n)
	}

	_, err = env.chat.SendMessage(ctx, "a", "b", "still there?")
	expectKind(t, err, KindPreconditionFailed)
}

func TestRecordSignalIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "b")
	ctx := context.Background()

	for _, positive := range []bool{true, false} {
		first, err := env.relationships.RecordSignal(ctx, "a", "b", positive)
		if err != nil {
			t.Fatalf("first signal: %v", err)
		}
		before := env.user(t, "a")
		second, err := env.relationships.RecordSignal(ctx, "a", "b", positive)
		if err != nil {
			t.Fatalf("second signal: %v", err)
		}
		after := env.user(t, "a")

		if first.Outcome != models.SignalRecorded || second.Outcome != models.SignalUnchanged {
			t.Fatalf("positive=%v: unexpected outcomes %s, %s", positive, first.Outcome, second.Outcome)
		}
		if after.Version != before.Version {
			t.Fatalf("positive=%v: repeated signal should not write", positive)
		}
	}
}

func TestRecordSignalOverwritesPolarity(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "b")
	ctx := context.Background()

	if _, err := env.relationships.RecordSignal(ctx, "b", "a", true); err != nil {
		t.Fatalf("b likes a: %v", err)
	}
	if _, err := env.relationships.RecordSignal(ctx, "a", "b", false); err != nil {
		t.Fatalf("a passes b: %v", err)
	}
	if a := env.user(t, "a"); !sameIDs(a.Disliked, "b") || len(a.Liked) != 0 {
		t.Fatalf("unexpected ledger after pass: %+v", a)
	}

	// changing one's mind re-evaluates reciprocity
	res, err := env.relationships.RecordSignal(ctx, "a", "b", true)
	if err != nil {
		t.Fatalf("a likes b: %v", err)
	}
	if res.Outcome != models.SignalMatched {
		t.Fatalf("expected match after re-like, got %s", res.Outcome)
	}
	if a := env.user(t, "a"); len(a.Disliked) != 0 || len(a.Liked) != 0 || !sameIDs(a.Matched, "b") {
		t.Fatalf("stale ledger entries after re-like: %+v", a)
	}
}

func TestNegativeSignalDissolvesMatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "b")
	ctx := context.Background()
	conv := env.match(t, "a", "b")

	if _, err := env.chat.SendMessage(ctx, "b", "a", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	res, err := env.relationships.RecordSignal(ctx, "b", "a", false)
	if err != nil {
		t.Fatalf("b passes a: %v", err)
	}
	if res.Outcome != models.SignalUnmatched {
		t.Fatalf("expected unmatched, got %s", res.Outcome)
	}
	a, b := env.user(t, "a"), env.user(t, "b")
	if len(a.Matched) != 0 || len(b.Matched) != 0 || !sameIDs(b.Disliked, "a") {
		t.Fatalf("unexpected ledgers a=%+v b=%+v", a, b)
	}
	if env.conversation(t, "a", "b") != nil || env.store.MessageCount(conv.ID) != 0 {
		t.Fatalf("conversation and messages should be gone")
	}
}

func TestRematchStartsFreshConversation(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "b")
	ctx := context.Background()

	first := env.match(t, "a", "b")
	if _, err := env.chat.SendMessage(ctx, "a", "b", "old news"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := env.relationships.Unmatch(ctx, "a", "b"); err != nil {
		t.Fatalf("unmatch: %v", err)
	}

	second := env.match(t, "a", "b")
	if second.ID == first.ID {
		t.Fatalf("expected a new conversation id after re-match")
	}
	page, err := env.chat.Messages(ctx, "a", "b", 0, 10)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("old messages leaked into the new match: %+v", page)
	}
}

func TestSignalErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a")
	ctx := context.Background()

	_, err := env.relationships.RecordSignal(ctx, "a", "a", true)
	expectKind(t, err, KindInvalidArgument)

	_, err = env.relationships.RecordSignal(ctx, "a", "", true)
	expectKind(t, err, KindInvalidArgument)

	_, err = env.relationships.RecordSignal(ctx, "a", "ghost", true)
	expectKind(t, err, KindNotFound)

	_, err = env.relationships.RecordSignal(ctx, "ghost", "a", true)
	expectKind(t, err, KindPreconditionFailed)

	env.seedUsers(t, "b")
	expectKind(t, env.relationships.Unmatch(ctx, "a", "b"), KindPreconditionFailed)
	expectKind(t, env.relationships.Unmatch(ctx, "a", "ghost"), KindNotFound)
}

func TestConcurrentLikesCreateOneMatch(t *testing.T) {
	for round := 0; round < 20; round++ {
		env := newTestEnv(t)
		env.seedUsers(t, "a", "b")
		ctx := context.Background()

		var wg sync.WaitGroup
		results := make([]*SignalResult, 2)
		errs := make([]error, 2)
		for i, pair := range [][2]string{{"a", "b"}, {"b", "a"}} {
			wg.Add(1)
			go func(i int, actor, target string) {
				defer wg.Done()
				results[i], errs[i] = env.relationships.RecordSignal(ctx, actor, target, true)
			}(i, pair[0], pair[1])
		}
		wg.Wait()

		matched := 0
		for i := range results {
			if errs[i] != nil {
				t.Fatalf("round %d: signal %d: %v", round, i, errs[i])
			}
			if results[i].Outcome == models.SignalMatched {
				matched++
			}
		}
		if matched != 1 {
			t.Fatalf("round %d: expected exactly one match transition, got %d", round, matched)
		}
		a, b := env.user(t, "a"), env.user(t, "b")
		if !sameIDs(a.Matched, "b") || !sameIDs(b.Matched, "a") {
			t.Fatalf("round %d: asymmetric match a=%v b=%v", round, a.Matched, b.Matched)
		}
		if c := env.conversation(t, "a", "b"); c == nil || c.Version != 1 {
			t.Fatalf("round %d: expected one freshly created conversation, got %+v", round, c)
		}
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "b", "c", "d")
	ctx := context.Background()

	conv := env.match(t, "a", "b")
	if _, err := env.chat.SendMessage(ctx, "a", "b", "bye soon"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := env.relationships.RecordSignal(ctx, "c", "a", true); err != nil {
		t.Fatalf("c likes a: %v", err)
	}
	if _, err := env.relationships.RecordSignal(ctx, "d", "a", false); err != nil {
		t.Fatalf("d passes a: %v", err)
	}

	if err := env.relationships.DeleteAccount(ctx, "a"); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	_, err := env.profiles.GetProfile(ctx, "a")
	expectKind(t, err, KindNotFound)
	for _, id := range []string{"b", "c", "d"} {
		if u := env.user(t, id); u.References("a") {
			t.Errorf("%s still references the deleted account: %+v", id, u)
		}
	}
	if env.conversation(t, "a", "b") != nil || env.store.MessageCount(conv.ID) != 0 {
		t.Errorf("conversation of the deleted account should be gone")
	}

	expectKind(t, env.relationships.DeleteAccount(ctx, "a"), KindNotFound)
}

// scanHookStore runs hook once, right after the first ScanUsers of any tx returns
type scanHookStore struct {
	*memstore.Store
	once sync.Once
	hook func()
}

func (s *scanHookStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &scanHookTx{Tx: tx, s: s}, nil
}

type scanHookTx struct {
	store.Tx
	s *scanHookStore
}

func (tx *scanHookTx) ScanUsers(ctx context.Context, fn func(*models.User) bool) error {
	err := tx.Tx.ScanUsers(ctx, fn)
	tx.s.once.Do(tx.s.hook)
	return err
}

func TestDeleteAccountSeesSignalCommittedDuringScan(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "c")
	ctx := context.Background()

	var hookErr error
	hooked := &scanHookStore{Store: env.store}
	hooked.hook = func() {
		_, hookErr = env.relationships.RecordSignal(ctx, "c", "a", true)
	}
	uow := NewUnitOfWork(hooked, RetryPolicy{MaxAttempts: 10, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond}, nil)
	deleter := NewRelationshipService(uow, nil, nil)

	if err := deleter.DeleteAccount(ctx, "a"); err != nil {
		t.Fatalf("delete a: %v", err)
	}
	if hookErr != nil {
		t.Fatalf("c likes a during the scan: %v", hookErr)
	}
	if c := env.user(t, "c"); c.References("a") {
		t.Fatalf("deleted user still referenced by c: %+v", c)
	}
}

func TestSignalBumpsTargetVersion(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "b")
	ctx := context.Background()

	before := env.user(t, "b")
	if _, err := env.relationships.RecordSignal(ctx, "a", "b", false); err != nil {
		t.Fatalf("a passes b: %v", err)
	}
	if after := env.user(t, "b"); after.Version != before.Version+1 {
		t.Fatalf("expected target version %d, got %d", before.Version+1, after.Version)
	}
}

func TestAmbiguousUserIDsRejected(t *testing.T) {
	env := newTestEnv(t)
	env.seedUsers(t, "a", "c")
	ctx := context.Background()

	_, err := env.profiles.CreateProfile(ctx, "a_b", ProfileFields{Name: models.Name{First: "Ab"}, Age: 30, Sex: models.SexOther})
	expectKind(t, err, KindInvalidArgument)

	_, err = env.relationships.RecordSignal(ctx, "a", "b_c", true)
	expectKind(t, err, KindInvalidArgument)
	_, err = env.chat.SendMessage(ctx, "a_b", "c", "hi")
	expectKind(t, err, KindInvalidArgument)
	expectKind(t, env.chat.MarkSeen(ctx, "a", "a_b_c", true), KindInvalidArgument)
}
