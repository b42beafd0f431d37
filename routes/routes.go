package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"winkwink_server/controllers"
)

// RegisterRoutes sets up the public routes of the application
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", controllers.HealthCheckHandler).Methods("GET")
	r.HandleFunc("/", controllers.WelcomeHandler).Methods("GET")
	r.HandleFunc("/privacy-policy", PrivacyPolicyHandler).Methods("GET")
}

// NewAPIRouter returns the /api subrouter; every route on it goes through auth
func NewAPIRouter(r *mux.Router, auth func(http.Handler) http.Handler) *mux.Router {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth)
	return api
}
