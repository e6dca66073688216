package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"helparo/internal/model"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestAuthMiddleware(t *testing.T) {
	valid := signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()}, testSecret)
	service := signToken(t, jwt.MapClaims{"sub": "matcher", "role": model.RoleServiceRole}, testSecret)
	expired := signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret)
	wrongKey := signToken(t, jwt.MapClaims{"sub": "user-1"}, "other-secret")
	noSub := signToken(t, jwt.MapClaims{"role": model.RoleAuthenticated}, testSecret)

	tests := []struct {
		name       string
		header     string
		cookie     string
		wantStatus int
		wantCaller model.Caller
	}{
		{"bearer header", "Bearer " + valid, "", http.StatusOK, model.Caller{UserID: "user-1", Role: model.RoleAuthenticated}},
		{"cookie fallback", "", valid, http.StatusOK, model.Caller{UserID: "user-1", Role: model.RoleAuthenticated}},
		{"service role claim", "Bearer " + service, "", http.StatusOK, model.Caller{UserID: "matcher", Role: model.RoleServiceRole}},
		{"missing token", "", "", http.StatusUnauthorized, model.Caller{}},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized, model.Caller{}},
		{"wrong key", "Bearer " + wrongKey, "", http.StatusUnauthorized, model.Caller{}},
		{"no subject", "Bearer " + noSub, "", http.StatusUnauthorized, model.Caller{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.Caller
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = GetCallerFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(testSecret)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got != tt.wantCaller {
				t.Errorf("caller = %+v, want %+v", got, tt.wantCaller)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	user := signToken(t, jwt.MapClaims{"sub": "user-1"}, testSecret)
	service := signToken(t, jwt.MapClaims{"sub": "matcher", "role": model.RoleServiceRole}, testSecret)

	handler := AuthMiddleware(testSecret)(RequireRole(model.RoleServiceRole)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	for token, want := range map[string]int{user: http.StatusForbidden, service: http.StatusNoContent} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("status = %d, want %d", rec.Code, want)
		}
	}
}
