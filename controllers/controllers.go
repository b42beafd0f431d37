package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"winkwink_server/middleware"
	"winkwink_server/services"
	"winkwink_server/utils"
)

const maxBodyBytes = 1 << 20

// HealthCheckHandler provides a basic health check
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// WelcomeHandler provides a welcome message
func WelcomeHandler(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Welcome to WinkWink"})
}

// currentUser reads the authenticated user id, writing a 401 when there is none
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		utils.WriteJSONResponse(w, http.StatusUnauthorized, utils.APIError{Code: "UNAUTHORIZED", Message: "not signed in"})
		return "", false
	}
	return userID, true
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		utils.WriteBadRequest(w, "invalid request body")
		return false
	}
	return true
}

// fail logs server side failures and writes the error response
func fail(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	switch services.KindOf(err) {
	case services.KindInternal:
		log.Error(op+" failed", zap.Error(err))
	case services.KindTransient:
		log.Warn(op+" failed", zap.Error(err))
	default:
		log.Debug(op+" rejected", zap.Error(err))
	}
	utils.WriteError(w, err)
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
