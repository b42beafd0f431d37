package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"winkwink_server/models"
	"winkwink_server/store"
)

// RelationshipService owns the interest signals, matches and the account
// deletion cascade. Both users' ledgers and the pair's conversation always
// change inside one unit of work.
type RelationshipService struct {
	UoW     *UnitOfWork
	Limiter *RateLimiter
	Log     *zap.Logger
	Now     func() time.Time
	NewID   func() string
}

func NewRelationshipService(uow *UnitOfWork, limiter *RateLimiter, log *zap.Logger) *RelationshipService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RelationshipService{
		UoW:     uow,
		Limiter: limiter,
		Log:     log,
		Now:     func() time.Time { return time.Now().UTC() },
		NewID:   uuid.NewString,
	}
}

// SignalResult tells the caller what a signal did. Conversation is set when a
// match was created.
type SignalResult struct {
	Outcome      string
	Conversation *models.Conversation
}

// RecordSignal records actor's wink (positive) or pass toward target
func (rs *RelationshipService) RecordSignal(ctx context.Context, actorID, targetID string, positive bool) (*SignalResult, error) {
	if err := validatePair(actorID, targetID); err != nil {
		return nil, err
	}
	if err := rs.Limiter.Allow(ctx, ActionSignal, actorID); err != nil {
		return nil, err
	}

	var result SignalResult
	err := rs.UoW.Do(ctx, "record_signal", func(ctx context.Context, tx store.Tx) error {
		result = SignalResult{}

		actor, target, err := loadPair(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}

		decision := ApplySignal(actor, target, positive)
		result.Outcome = decision.Transition.Outcome()
		if decision.ActorChanged {
			if err := tx.SaveUser(ctx, actor); err != nil {
				return err
			}
		}
		// the target's version moves whenever a new reference to it appears;
		// DeleteAccount's guard on the deleted user depends on it.
		if decision.ActorChanged || decision.TargetChanged {
			if err := tx.SaveUser(ctx, target); err != nil {
				return err
			}
		}

		switch decision.Transition {
		case TransitionMatchCreated:
			conv, err := rs.getOrCreateConversation(ctx, tx, actorID, targetID)
			if err != nil {
				return err
			}
			result.Conversation = conv
		case TransitionMatchDissolved:
			if err := deleteConversation(ctx, tx, models.PairKey(actorID, targetID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rs.Log.Info("signal recorded",
		zap.String("actor_id", actorID), zap.String("target_id", targetID),
		zap.Bool("positive", positive), zap.String("outcome", result.Outcome))
	return &result, nil
}

// Unmatch dissolves an existing match and removes the pair's conversation
func (rs *RelationshipService) Unmatch(ctx context.Context, actorID, targetID string) error {
	if err := validatePair(actorID, targetID); err != nil {
		return err
	}

	err := rs.UoW.Do(ctx, "unmatch", func(ctx context.Context, tx store.Tx) error {
		actor, target, err := loadPair(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		if !Unpair(actor, target) {
			return PreconditionFailed("you are not matched with this user")
		}
		if err := tx.SaveUser(ctx, actor); err != nil {
			return err
		}
		if err := tx.SaveUser(ctx, target); err != nil {
			return err
		}
		return deleteConversation(ctx, tx, models.PairKey(actorID, targetID))
	})
	if err != nil {
		return err
	}

	rs.Log.Info("unmatched", zap.String("actor_id", actorID), zap.String("target_id", targetID))
	return nil
}

// DeleteAccount removes the user from every peer's ledger, deletes every
// conversation (with messages) the user takes part in, then the user itself.
func (rs *RelationshipService) DeleteAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return InvalidArgument("user id is required")
	}

	var peers int
	err := rs.UoW.Do(ctx, "delete_account", func(ctx context.Context, tx store.Tx) error {
		user, err := tx.User(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("account not found")
		}
		if err != nil {
			return err
		}

		var referencing []*models.User
		err = tx.ScanUsers(ctx, func(u *models.User) bool {
			if u.ID != userID && u.References(userID) {
				referencing = append(referencing, u)
			}
			return true
		})
		if err != nil {
			return fmt.Errorf("scan peers: %w", err)
		}
		peers = len(referencing)

		pairKeys := map[string]bool{}
		for _, peerID := range user.Matched {
			pairKeys[models.PairKey(userID, peerID)] = true
		}
		for _, peer := range referencing {
			if peer.ForgetPeer(userID) {
				if err := tx.SaveUser(ctx, peer); err != nil {
					return err
				}
			}
			pairKeys[models.PairKey(userID, peer.ID)] = true
		}
		convs, err := tx.Conversations(ctx, userID, time.Time{})
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		for _, c := range convs {
			pairKeys[c.PairKey] = true
		}

		for key := range pairKeys {
			if err := deleteConversation(ctx, tx, key); err != nil {
				return err
			}
		}
		return tx.DeleteUser(ctx, user)
	})
	if err != nil {
		return err
	}

	rs.Log.Info("account deleted", zap.String("user_id", userID), zap.Int("peers_updated", peers))
	return nil
}

// getOrCreateConversation returns the pair's conversation, creating the zero
// state record with a fresh id when there is none. Concurrent creators collide
// on the create guard and one of them is replayed.
func (rs *RelationshipService) getOrCreateConversation(ctx context.Context, tx store.Tx, a, b string) (*models.Conversation, error) {
	conv, err := tx.Conversation(ctx, models.PairKey(a, b))
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	conv = models.NewConversation(rs.NewID(), a, b, rs.Now())
	if err := tx.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func deleteConversation(ctx context.Context, tx store.Tx, pairKey string) error {
	conv, err := tx.Conversation(ctx, pairKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return tx.DeleteConversation(ctx, conv)
}

// loadPair reads both ledgers. A missing actor means the caller's account is
// gone, a missing target is an unknown user.
func loadPair(ctx context.Context, tx store.Tx, actorID, targetID string) (*models.User, *models.User, error) {
	actor, err := tx.User(ctx, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, PreconditionFailed("your account does not exist")
	}
	if err != nil {
		return nil, nil, err
	}
	target, err := tx.User(ctx, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, NotFound("user not found")
	}
	if err != nil {
		return nil, nil, err
	}
	return actor, target, nil
}

func validatePair(actorID, targetID string) error {
	if actorID == "" || targetID == "" {
		return InvalidArgument("user id is required")
	}
	if models.ValidateUserID(actorID) != nil || models.ValidateUserID(targetID) != nil {
		return InvalidArgument("invalid user id")
	}
	if actorID == targetID {
		return InvalidArgument("you cannot do this with yourself")
	}
	return nil
}
