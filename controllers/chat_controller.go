package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"winkwink_server/services"
	"winkwink_server/utils"
)

// ChatController serves chat metadata and the message log of matched pairs
type ChatController struct {
	ChatService *services.ChatService
	Log         *zap.Logger
}

// NewChatController initializes the chat controller
func NewChatController(service *services.ChatService, log *zap.Logger) *ChatController {
	return &ChatController{ChatService: service, Log: orNop(log)}
}

// GetChatMetadata - GET /api/chatmetadata[/{time}], newest first
func (c *ChatController) GetChatMetadata(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var since time.Time
	if raw := mux.Vars(r)["time"]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			utils.WriteBadRequest(w, "time must be RFC3339")
			return
		}
		since = t
	}

	summaries, err := c.ChatService.ListConversations(r.Context(), userID, since)
	if err != nil {
		fail(w, c.Log, "list conversations", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, summaries)
}

// MarkSeen - POST /api/chatmetadata/seen/{chatmetadataId} {isSeen}
func (c *ChatController) MarkSeen(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	request := struct {
		IsSeen *bool `json:"isSeen"`
	}{}
	if !decodeJSON(w, r, &request, true) {
		return
	}
	isSeen := true
	if request.IsSeen != nil {
		isSeen = *request.IsSeen
	}

	if err := c.ChatService.MarkSeen(r.Context(), userID, mux.Vars(r)["chatmetadataId"], isSeen); err != nil {
		fail(w, c.Log, "mark seen", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "chat updated"})
}

// GetMessages - GET /api/chats/{matchedUserId}[/{chatOrder}]?limit=n
func (c *ChatController) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	var before int64
	if raw := vars["chatOrder"]; raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			utils.WriteBadRequest(w, "chatOrder must be a positive integer")
			return
		}
		before = n
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	page, err := c.ChatService.Messages(r.Context(), userID, vars["matchedUserId"], before, limit)
	if err != nil {
		fail(w, c.Log, "list messages", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, page)
}

// SendMessage - POST /api/chat/{receiverId} {content}
func (c *ChatController) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var request struct {
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &request, false) {
		return
	}

	msg, err := c.ChatService.SendMessage(r.Context(), userID, mux.Vars(r)["receiverId"], request.Content)
	if err != nil {
		fail(w, c.Log, "send message", err)
		return
	}
	utils.WriteJSONResponse(w, http.StatusCreated, map[string]any{
		"id":        msg.ID,
		"content":   msg.Content,
		"createdAt": msg.CreatedAt,
		"chatOrder": msg.Order,
	})
}
