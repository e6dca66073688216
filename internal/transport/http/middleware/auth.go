package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"helparo/internal/httputil"
	"helparo/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// CallerKey is the context key for the authenticated caller
	CallerKey contextKey = "caller"
)

// AuthMiddleware validates an HMAC-signed JWT and stores the caller it
// describes in the request context. The token comes from the Authorization
// header (mobile) or the access_token cookie (web).
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromRequest(r)
			if tokenString == "" {
				httputil.WriteUnauthorized(w, "Not authenticated")
				return
			}

			caller, err := ParseCaller(tokenString, jwtSecret)
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					httputil.WriteUnauthorized(w, "Access token has expired")
					return
				}
				httputil.WriteUnauthorized(w, "Invalid authentication token")
				return
			}

			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role claim differs from role.
// It must run after AuthMiddleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := GetCallerFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "Not authenticated")
				return
			}
			if caller.Role != role {
				httputil.WriteForbidden(w, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseCaller validates tokenString and reads the sub and role claims.
// A missing role means an ordinary signed-in user.
func ParseCaller(tokenString, jwtSecret string) (model.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return model.Caller{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.Caller{}, jwt.ErrTokenInvalidClaims
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return model.Caller{}, jwt.ErrTokenInvalidClaims
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = model.RoleAuthenticated
	}
	return model.Caller{UserID: sub, Role: role}, nil
}

func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// GetCallerFromContext extracts the caller set by AuthMiddleware.
func GetCallerFromContext(ctx context.Context) (model.Caller, bool) {
	caller, ok := ctx.Value(CallerKey).(model.Caller)
	return caller, ok
}
