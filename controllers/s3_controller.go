package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"winkwink_server/services"
	"winkwink_server/utils"
)

// MediaController hands out presigned avatar URLs
type MediaController struct {
	Media *services.MediaService
	Log   *zap.Logger
}

func NewMediaController(media *services.MediaService, log *zap.Logger) *MediaController {
	return &MediaController{Media: media, Log: orNop(log)}
}

// GeneratePresignedURL - POST /api/image/profile {contentType}
func (c *MediaController) GeneratePresignedURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload struct {
		ContentType string `json:"contentType"`
	}
	if !decodeJSON(w, r, &payload, false) {
		return
	}

	url, key, err := c.Media.ProfileUploadURL(r.Context(), userID, payload.ContentType)
	if err != nil {
		fail(w, c.Log, "presign profile upload", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"uploadUrl": url, "key": key})
}

// GetProfileImage - GET /api/image/profile
func (c *MediaController) GetProfileImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	url, err := c.Media.ProfileImageURL(r.Context(), userID)
	if err != nil {
		fail(w, c.Log, "presign profile image", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"url": url})
}

// GetChatImage - GET /api/image/chat/{matchedUserId}
func (c *MediaController) GetChatImage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	url, err := c.Media.ChatImageURL(r.Context(), userID, mux.Vars(r)["matchedUserId"])
	if err != nil {
		fail(w, c.Log, "presign chat image", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"url": url})
}
