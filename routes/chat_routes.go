package routes

import (
	"github.com/gorilla/mux"

	"winkwink_server/controllers"
)

// RegisterChatRoutes sets up chat metadata and message routes on the /api subrouter
func RegisterChatRoutes(api *mux.Router, controller *controllers.ChatController) {
	api.HandleFunc("/chatmetadata", controller.GetChatMetadata).Methods("GET")
	api.HandleFunc("/chatmetadata/seen/{chatmetadataId}", controller.MarkSeen).Methods("POST")
	api.HandleFunc("/chatmetadata/{time}", controller.GetChatMetadata).Methods("GET")
	api.HandleFunc("/chats/{matchedUserId}", controller.GetMessages).Methods("GET")
	api.HandleFunc("/chats/{matchedUserId}/{chatOrder}", controller.GetMessages).Methods("GET")
	api.HandleFunc("/chat/{receiverId}", controller.SendMessage).Methods("POST")
}
