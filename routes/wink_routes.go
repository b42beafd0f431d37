package routes

import (
	"github.com/gorilla/mux"

	"winkwink_server/controllers"
)

// RegisterWinkRoutes sets up discovery, winks and unmatching on the /api subrouter
func RegisterWinkRoutes(api *mux.Router, controller *controllers.RelationshipController) {
	api.HandleFunc("/wink", controller.GetCandidates).Methods("GET")
	api.HandleFunc("/wink", controller.PostWink).Methods("POST")
	api.HandleFunc("/unmatch", controller.PostUnmatch).Methods("POST")
}
