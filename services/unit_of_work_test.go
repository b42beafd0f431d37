package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"winkwink_server/models"
	"winkwink_server/store"
)

// scriptedStore hands out transactions whose Commit fails with the queued errors
type scriptedStore struct {
	inner      store.Store
	commitErrs []error
	begins     int
	commits    int
	rollbacks  int
}

func (s *scriptedStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	s.begins++
	return &scriptedTx{Tx: tx, s: s}, nil
}

type scriptedTx struct {
	store.Tx
	s *scriptedStore
}

func (t *scriptedTx) Commit(ctx context.Context) error {
	t.s.commits++
	if len(t.s.commitErrs) > 0 {
		err := t.s.commitErrs[0]
		t.s.commitErrs = t.s.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	return t.Tx.Commit(ctx)
}

func (t *scriptedTx) Rollback(ctx context.Context) error {
	t.s.rollbacks++
	return t.Tx.Rollback(ctx)
}

func newScripted(t *testing.T, errs ...error) (*scriptedStore, *UnitOfWork) {
	t.Helper()
	env := newTestEnv(t)
	s := &scriptedStore{inner: env.store, commitErrs: errs}
	return s, NewUnitOfWork(s, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Microsecond, MaxDelay: time.Millisecond}, nil)
}

func saveUser(id string) func(ctx context.Context, tx store.Tx) error {
	return func(ctx context.Context, tx store.Tx) error {
		return tx.SaveUser(ctx, &models.User{ID: id})
	}
}

func TestUnitOfWorkRetriesConflicts(t *testing.T) {
	conflict := fmt.Errorf("commit: %w", store.ErrConflict)
	s, uow := newScripted(t, conflict, conflict)

	calls := 0
	err := uow.Do(context.Background(), "test", func(ctx context.Context, tx store.Tx) error {
		calls++
		return saveUser("u1")(ctx, tx)
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 || s.begins != 3 || s.commits != 3 {
		t.Fatalf("unexpected attempts: calls=%d begins=%d commits=%d", calls, s.begins, s.commits)
	}
	if s.rollbacks != 2 {
		t.Fatalf("each failed attempt should roll back once, got %d", s.rollbacks)
	}
}

func TestUnitOfWorkGivesUpAsTransient(t *testing.T) {
	conflict := fmt.Errorf("commit: %w", store.ErrConflict)
	s, uow := newScripted(t, conflict, conflict, conflict, conflict)

	err := uow.Do(context.Background(), "test", saveUser("u1"))
	expectKind(t, err, KindTransient)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("transient error should wrap the conflict, got %v", err)
	}
	if s.commits != 3 {
		t.Fatalf("expected 3 commit attempts, got %d", s.commits)
	}
}

func TestUnitOfWorkAbortsOnError(t *testing.T) {
	s, uow := newScripted(t)

	err := uow.Do(context.Background(), "test", func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveUser(ctx, &models.User{ID: "u1"}); err != nil {
			return err
		}
		return NotFound("nope")
	})
	expectKind(t, err, KindNotFound)
	if s.commits != 0 || s.rollbacks != 1 {
		t.Fatalf("expected a single rollback and no commit, got commits=%d rollbacks=%d", s.commits, s.rollbacks)
	}

	err = uow.Do(context.Background(), "read", func(ctx context.Context, tx store.Tx) error {
		_, err := tx.User(ctx, "u1")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("aborted write should not be visible, got %v", err)
	}
	expectKind(t, err, KindInternal)
}

func TestUnitOfWorkNeverCommitsCancelledRequest(t *testing.T) {
	s, uow := newScripted(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := uow.Do(ctx, "test", func(ctx context.Context, tx store.Tx) error {
		if err := tx.SaveUser(ctx, &models.User{ID: "u1"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	expectKind(t, err, KindTransient)
	if s.commits != 0 || s.rollbacks != 1 {
		t.Fatalf("cancelled scope must abort: commits=%d rollbacks=%d", s.commits, s.rollbacks)
	}

	err = uow.Do(context.Background(), "read", func(ctx context.Context, tx store.Tx) error {
		_, err := tx.User(ctx, "u1")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cancelled write leaked: %v", err)
	}
}

func TestUnitOfWorkHidesInternalErrors(t *testing.T) {
	_, uow := newScripted(t, errors.New("disk on fire"))

	err := uow.Do(context.Background(), "test", saveUser("u1"))
	se := AsError(err)
	if se.Kind != KindInternal || se.Message != "internal error" {
		t.Fatalf("unexpected classification %+v", se)
	}
}

func TestBackoffStaysWithinBounds(t *testing.T) {
	uow := NewUnitOfWork(nil, RetryPolicy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, MaxDelay: 80 * time.Millisecond}, nil)
	for attempt := 1; attempt <= 10; attempt++ {
		for i := 0; i < 50; i++ {
			d := uow.backoff(attempt)
			if d <= 0 || d > 80*time.Millisecond {
				t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
			}
		}
	}
}
