package routes

import (
	"github.com/gorilla/mux"

	"winkwink_server/controllers"
)

// RegisterS3Routes sets up presigned avatar routes on the /api subrouter
func RegisterS3Routes(api *mux.Router, controller *controllers.MediaController) {
	api.HandleFunc("/image/profile", controller.GeneratePresignedURL).Methods("POST")
	api.HandleFunc("/image/profile", controller.GetProfileImage).Methods("GET")
	api.HandleFunc("/image/chat/{matchedUserId}", controller.GetChatImage).Methods("GET")
}
