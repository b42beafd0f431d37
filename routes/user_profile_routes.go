package routes

import (
	"github.com/gorilla/mux"

	"winkwink_server/controllers"
)

// RegisterUserProfileRoutes sets up profile and account routes on the /api
// subrouter. The random user route is only mounted when withTestRoute is set.
func RegisterUserProfileRoutes(api *mux.Router, controller *controllers.UserProfileController, withTestRoute bool) {
	api.HandleFunc("/user", controller.GetProfile).Methods("GET")
	api.HandleFunc("/user", controller.CreateProfile).Methods("POST")
	api.HandleFunc("/user/{id}", controller.UpdateProfile).Methods("PUT")
	api.HandleFunc("/account", controller.DeleteAccount).Methods("DELETE")
	if withTestRoute {
		api.HandleFunc("/test", controller.CreateTestUser).Methods("GET")
	}
}
