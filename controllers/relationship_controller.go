package controllers

import (
	"net/http"

	"go.uber.org/zap"

	"winkwink_server/services"
	"winkwink_server/utils"
)

// RelationshipController serves discovery, winks and unmatching
type RelationshipController struct {
	Relationships *services.RelationshipService
	Discovery     *services.DiscoveryService
	Log           *zap.Logger
}

func NewRelationshipController(relationships *services.RelationshipService, discovery *services.DiscoveryService, log *zap.Logger) *RelationshipController {
	return &RelationshipController{Relationships: relationships, Discovery: discovery, Log: orNop(log)}
}

// GetCandidates - GET /api/wink?except=a&except=b
func (c *RelationshipController) GetCandidates(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	candidates, err := c.Discovery.FindCandidates(r.Context(), userID, r.URL.Query()["except"], 0)
	if err != nil {
		fail(w, c.Log, "find candidates", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, candidates)
}

// PostWink - POST /api/wink {id, isWink}
func (c *RelationshipController) PostWink(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var request struct {
		ID     string `json:"id"`
		IsWink *bool  `json:"isWink"`
	}
	if !decodeJSON(w, r, &request, false) {
		return
	}
	if request.ID == "" || request.IsWink == nil {
		utils.WriteBadRequest(w, "missing required fields: id, isWink")
		return
	}

	result, err := c.Relationships.RecordSignal(r.Context(), userID, request.ID, *request.IsWink)
	if err != nil {
		fail(w, c.Log, "record signal", err)
		return
	}

	response := map[string]string{"message": "signal recorded", "result": result.Outcome}
	if result.Conversation != nil {
		response["message"] = "it's a match"
		response["chatId"] = result.Conversation.PairKey
	}
	utils.WriteJSONResponse(w, http.StatusOK, response)
}

// PostUnmatch - POST /api/unmatch {id}
func (c *RelationshipController) PostUnmatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var request struct {
		ID string `json:"id"`
	}
	if !decodeJSON(w, r, &request, false) {
		return
	}
	if request.ID == "" {
		utils.WriteBadRequest(w, "missing required field: id")
		return
	}

	if err := c.Relationships.Unmatch(r.Context(), userID, request.ID); err != nil {
		fail(w, c.Log, "unmatch", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "unmatched"})
}
