package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"winkwink_server/store"
)

// RetryPolicy bounds how often a conflicting unit of work is replayed
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 8, BaseDelay: 10 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

// UnitOfWork runs request logic inside one store transaction per attempt. Each
// attempt ends in exactly one Commit or one Rollback; write conflicts replay the
// whole function against fresh state.
type UnitOfWork struct {
	Store  store.Store
	Policy RetryPolicy
	Log    *zap.Logger
}

func NewUnitOfWork(s store.Store, policy RetryPolicy, log *zap.Logger) *UnitOfWork {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UnitOfWork{Store: s, Policy: policy, Log: log}
}

// Do executes fn and commits. fn must not keep state between attempts: it is
// called again from scratch after a conflict.
func (u *UnitOfWork) Do(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Transient("request cancelled", err)
		}

		err := u.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return classify(err)
		}

		if attempt >= u.Policy.MaxAttempts {
			u.Log.Warn("unit of work gave up after conflicts",
				zap.String("op", op), zap.Int("attempts", attempt), zap.Error(err))
			return Transient("too much concurrent activity, try again", err)
		}

		delay := u.backoff(attempt)
		u.Log.Debug("unit of work conflict, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Transient("request cancelled", ctx.Err())
		case <-timer.C:
		}
	}
}

func (u *UnitOfWork) attempt(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := u.Store.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			// rollback must run even when the request context is gone
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				u.Log.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// backoff is full jitter over an exponentially growing cap
func (u *UnitOfWork) backoff(attempt int) time.Duration {
	base := u.Policy.BaseDelay
	if base <= 0 {
		return 0
	}
	ceiling := base << (attempt - 1)
	if ceiling <= 0 || (u.Policy.MaxDelay > 0 && ceiling > u.Policy.MaxDelay) {
		ceiling = u.Policy.MaxDelay
	}
	if ceiling <= 0 {
		return base
	}
	return time.Duration(rand.Int64N(int64(ceiling))) + 1
}

func classify(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Transient("request cancelled", err)
	}
	return Internal(err)
}
