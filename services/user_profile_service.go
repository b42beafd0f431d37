package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"winkwink_server/models"
	"winkwink_server/store"
)

// ProfileFields are the user attributes a client may set. Relationship sets
// are never writable through the profile API.
type ProfileFields struct {
	Name         models.Name        `json:"name"`
	ProfileImage string             `json:"profileImage,omitempty"`
	Age          int                `json:"age"`
	Sex          string             `json:"sex"`
	Country      string             `json:"country"`
	Interests    string             `json:"interests"`
	Language     []string           `json:"language"`
	Preferences  models.Preferences `json:"preferences"`
}

func (f ProfileFields) validate() error {
	if strings.TrimSpace(f.Name.First) == "" {
		return InvalidArgument("first name is required")
	}
	if f.Age < 18 || f.Age > 120 {
		return InvalidArgument("age must be between 18 and 120")
	}
	if f.Sex != "" && !validSex(f.Sex) {
		return InvalidArgument("sex must be male, female or other")
	}
	if f.Preferences.Sex != "" && !validSex(f.Preferences.Sex) {
		return InvalidArgument("preferred sex must be male, female or other")
	}
	if f.Preferences.Age.From > f.Preferences.Age.To && f.Preferences.Age.To != 0 {
		return InvalidArgument("preferred age range is inverted")
	}
	return nil
}

func (f ProfileFields) applyTo(u *models.User) {
	u.Name = f.Name
	u.ProfileImage = f.ProfileImage
	u.Age = f.Age
	u.Sex = f.Sex
	u.Country = f.Country
	u.Interests = f.Interests
	u.Language = append([]string(nil), f.Language...)
	u.Preferences = f.Preferences
}

func validSex(s string) bool {
	switch s {
	case models.SexMale, models.SexFemale, models.SexOther:
		return true
	}
	return false
}

// UserProfileService is the account collaborator side of the user record
type UserProfileService struct {
	UoW *UnitOfWork
	Log *zap.Logger
	Now func() time.Time
}

func NewUserProfileService(uow *UnitOfWork, log *zap.Logger) *UserProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserProfileService{UoW: uow, Log: log, Now: func() time.Time { return time.Now().UTC() }}
}

// CreateProfile stores a new user with empty relationship sets
func (ups *UserProfileService) CreateProfile(ctx context.Context, userID string, fields ProfileFields) (*models.User, error) {
	if userID == "" {
		return nil, InvalidArgument("user id is required")
	}
	if models.ValidateUserID(userID) != nil {
		return nil, InvalidArgument("user id must not contain an underscore")
	}
	if err := fields.validate(); err != nil {
		return nil, err
	}

	var created *models.User
	err := ups.UoW.Do(ctx, "create_profile", func(ctx context.Context, tx store.Tx) error {
		_, err := tx.User(ctx, userID)
		if err == nil {
			return &Error{Kind: KindConflict, Message: "profile already exists"}
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		u := &models.User{ID: userID, CreatedAt: ups.Now()}
		fields.applyTo(u)
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	ups.Log.Info("profile created", zap.String("user_id", userID))
	return created, nil
}

func (ups *UserProfileService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, InvalidArgument("user id is required")
	}

	var user *models.User
	err := ups.UoW.Do(ctx, "get_profile", func(ctx context.Context, tx store.Tx) error {
		u, err := tx.User(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("profile not found")
		}
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile replaces the profile fields of the caller's own record
func (ups *UserProfileService) UpdateProfile(ctx context.Context, callerID, userID string, fields ProfileFields) (*models.User, error) {
	if userID == "" {
		return nil, InvalidArgument("user id is required")
	}
	if callerID != userID {
		return nil, InvalidArgument("you can only update your own profile")
	}
	if err := fields.validate(); err != nil {
		return nil, err
	}

	var updated *models.User
	err := ups.UoW.Do(ctx, "update_profile", func(ctx context.Context, tx store.Tx) error {
		u, err := tx.User(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return NotFound("profile not found")
		}
		if err != nil {
			return err
		}
		fields.applyTo(u)
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateRandomProfile stores one generated user, used by the test route and the seed tool
func (ups *UserProfileService) CreateRandomProfile(ctx context.Context, rng *rand.Rand) (*models.User, error) {
	u := RandomProfile(rng, ups.Now())
	err := ups.UoW.Do(ctx, "create_random_profile", func(ctx context.Context, tx store.Tx) error {
		fresh := u.Clone()
		if err := tx.SaveUser(ctx, fresh); err != nil {
			return err
		}
		u = fresh
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store random profile: %w", err)
	}
	return u, nil
}

var (
	maleFirstNames   = []string{"Bob", "Charlie", "David", "Frank", "Ivan", "John", "Kevin", "Liam", "Michael", "Tom"}
	femaleFirstNames = []string{"Alice", "Eva", "Grace", "Hannah", "Julia", "Laura", "Mary", "Nina", "Olivia", "Sophia"}
	otherFirstNames  = []string{"Jordan", "Alex", "Taylor", "Casey", "Drew", "Cameron", "Jamie", "Kendall", "Peyton", "Robin"}
	lastNames        = []string{"Smith", "Johnson", "Brown", "Taylor", "Anderson", "Thomas", "Jackson", "White", "Harris", "Martin"}
	countries        = []string{"USA", "Canada", "UK", "Australia", "Germany", "France", "Spain", "Italy", "Netherlands", "Sweden"}
	interestsList    = []string{"reading", "traveling", "sports", "music", "cooking", "hiking", "gaming", "art", "dancing", "photography"}
	languages        = []string{"English", "Spanish", "French", "German", "Chinese", "Japanese", "Korean", "Russian", "Portuguese", "Italian"}
)

// RandomProfile generates a plausible user: 45% male, 45% female, 10% other
func RandomProfile(rng *rand.Rand, now time.Time) *models.User {
	pick := func(list []string) string { return list[rng.IntN(len(list))] }
	between := func(lo, hi int) int { return lo + rng.IntN(hi-lo+1) }

	var sex, first string
	switch p := rng.IntN(100); {
	case p < 45:
		sex, first = models.SexMale, pick(maleFirstNames)
	case p < 90:
		sex, first = models.SexFemale, pick(femaleFirstNames)
	default:
		sex, first = models.SexOther, pick(otherFirstNames)
	}

	langs := []string{pick(languages)}
	if rng.IntN(2) == 1 {
		if second := pick(languages); second != langs[0] {
			langs = append(langs, second)
		}
	}

	id := uuid.NewString()
	return &models.User{
		ID:           id,
		Name:         models.Name{First: first, Last: pick(lastNames)},
		ProfileImage: "profile-pics/" + id,
		Age:          between(18, 65),
		Sex:          sex,
		Country:      pick(countries),
		Interests:    pick(interestsList) + ", " + pick(interestsList),
		Language:     langs,
		Preferences: models.Preferences{
			Age: models.AgeRange{From: between(18, 30), To: between(31, 65)},
			Sex: pick([]string{models.SexMale, models.SexFemale, models.SexOther}),
		},
		CreatedAt: now,
	}
}
