package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vidtube/internal/auth"
	"vidtube/internal/db"
	"vidtube/internal/models"
	"vidtube/internal/session"
)

type contextKey string

const currentUserKey contextKey = "currentUser"

// AuthMiddleware gates protected routes: it verifies the inbound access
// token and resolves it to an account before the handler runs.
type AuthMiddleware struct {
	tokens *auth.TokenService
	users  session.UserStore
}

func NewAuthMiddleware(tokens *auth.TokenService, users session.UserStore) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractAccessToken(r)
		if token == "" {
			unauthorized(w, "Access token required")
			return
		}

		claims, err := m.tokens.Verify(token, auth.TokenKindAccess)
		if errors.Is(err, auth.ErrTokenExpired) {
			unauthorized(w, "Access token has expired")
			return
		}
		if err != nil {
			unauthorized(w, "Invalid access token")
			return
		}

		user, err := m.users.GetByID(r.Context(), claims.UserID)
		if errors.Is(err, db.ErrNotFound) {
			unauthorized(w, "Invalid access token")
			return
		}
		if err != nil {
			internalError(w)
			return
		}

		ctx := context.WithValue(r.Context(), currentUserKey, user.Sanitized())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractAccessToken looks in the accessToken cookie first, then the
// Authorization header.
func extractAccessToken(r *http.Request) string {
	if c, err := r.Cookie(accessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// CurrentUser returns the sanitized account attached by RequireAuth, or nil
// on unauthenticated requests.
func CurrentUser(r *http.Request) *models.User {
	if v := r.Context().Value(currentUserKey); v != nil {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
