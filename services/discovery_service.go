package services

import (
	"context"
	"errors"

	"winkwink_server/models"
	"winkwink_server/store"
)

const DefaultDiscoveryLimit = 10

type DiscoveryService struct {
	UoW   *UnitOfWork
	Limit int
}

func NewDiscoveryService(uow *UnitOfWork, limit int) *DiscoveryService {
	if limit <= 0 {
		limit = DefaultDiscoveryLimit
	}
	return &DiscoveryService{UoW: uow, Limit: limit}
}

// FindCandidates returns up to limit profiles the user has not signaled yet:
// never the user, anyone in liked, disliked or matched, or anyone in except.
// Order follows the store's scan order.
func (ds *DiscoveryService) FindCandidates(ctx context.Context, userID string, except []string, limit int) ([]models.ProfileSummary, error) {
	if userID == "" {
		return nil, InvalidArgument("user id is required")
	}
	if limit <= 0 || limit > ds.Limit {
		limit = ds.Limit
	}

	var out []models.ProfileSummary
	err := ds.UoW.Do(ctx, "find_candidates", func(ctx context.Context, tx store.Tx) error {
		out = []models.ProfileSummary{}

		user, err := tx.User(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return PreconditionFailed("your account does not exist")
		}
		if err != nil {
			return err
		}

		excluded := make(map[string]bool, len(except)+len(user.Liked)+len(user.Disliked)+len(user.Matched)+1)
		excluded[user.ID] = true
		for _, set := range [][]string{except, user.Liked, user.Disliked, user.Matched} {
			for _, id := range set {
				excluded[id] = true
			}
		}

		return tx.ScanUsers(ctx, func(u *models.User) bool {
			if excluded[u.ID] {
				return true
			}
			out = append(out, u.Summary())
			return len(out) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
