package controllers

import (
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"winkwink_server/services"
	"winkwink_server/utils"
)

// UserProfileController serves the caller's profile and account deletion
type UserProfileController struct {
	Profiles      *services.UserProfileService
	Relationships *services.RelationshipService
	Log           *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewUserProfileController(profiles *services.UserProfileService, relationships *services.RelationshipService, log *zap.Logger) *UserProfileController {
	seed := uint64(time.Now().UnixNano())
	return &UserProfileController{
		Profiles:      profiles,
		Relationships: relationships,
		Log:           orNop(log),
		rng:           rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// GetProfile - GET /api/user
func (c *UserProfileController) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	profile, err := c.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		fail(w, c.Log, "get profile", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, profile)
}

// CreateProfile - POST /api/user
func (c *UserProfileController) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var fields services.ProfileFields
	if !decodeJSON(w, r, &fields, false) {
		return
	}
	profile, err := c.Profiles.CreateProfile(r.Context(), userID, fields)
	if err != nil {
		fail(w, c.Log, "create profile", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, profile)
}

// UpdateProfile - PUT /api/user/{id}
func (c *UserProfileController) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var fields services.ProfileFields
	if !decodeJSON(w, r, &fields, false) {
		return
	}
	profile, err := c.Profiles.UpdateProfile(r.Context(), userID, mux.Vars(r)["id"], fields)
	if err != nil {
		fail(w, c.Log, "update profile", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, profile)
}

// DeleteAccount - DELETE /api/account
func (c *UserProfileController) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := c.Relationships.DeleteAccount(r.Context(), userID); err != nil {
		fail(w, c.Log, "delete account", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "account deleted"})
}

// CreateTestUser - GET /api/test, registered outside production only
func (c *UserProfileController) CreateTestUser(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	seed := c.rng.Uint64()
	c.mu.Unlock()

	profile, err := c.Profiles.CreateRandomProfile(r.Context(), rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
	if err != nil {
		fail(w, c.Log, "create test user", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, profile)
}
