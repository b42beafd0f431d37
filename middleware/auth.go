package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"winkwink_server/models"
	"winkwink_server/utils"
)

// AuthCookie is the cookie the web client stores its token in
const AuthCookie = "AuthToken"

type userIDContextKey struct{}

var errUnauthorized = errors.New("unauthorized")

// WithUserID stores the authenticated user id on ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the id put there by Auth
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	return id, ok && id != ""
}

// Auth verifies the HS256 token from the AuthToken cookie or a Bearer header
// and trusts its subject as the acting user.
func Auth(secret []byte, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := tokenFromRequest(r)
			if !ok {
				utils.WriteJSONResponse(w, http.StatusUnauthorized, utils.APIError{
					Code:    "UNAUTHORIZED",
					Message: "missing auth token",
				})
				return
			}

			userID, err := ParseToken(secret, raw)
			if err != nil {
				log.Debug("auth token rejected", zap.Error(err))
				utils.WriteJSONResponse(w, http.StatusUnauthorized, utils.APIError{
					Code:    "UNAUTHORIZED",
					Message: "invalid auth token",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// ParseToken validates raw and returns its subject
func ParseToken(secret []byte, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || token == nil || !token.Valid {
		return "", errUnauthorized
	}
	if models.ValidateUserID(claims.Subject) != nil {
		return "", errUnauthorized
	}
	return claims.Subject, nil
}

// SignToken mints a token for userID; a zero ttl never expires. Only the seed
// tool and tests issue tokens.
func SignToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("jwt secret is empty")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if c, err := r.Cookie(AuthCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return c.Value, true
	}
	parts := strings.SplitN(strings.TrimSpace(r.Header.Get("Authorization")), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}
