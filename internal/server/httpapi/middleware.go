package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/yerakh/cloudvault/internal/common"
	"github.com/yerakh/cloudvault/internal/server/auth"
	"github.com/yerakh/cloudvault/internal/server/models"
)

type contextKey int

const userContextKey contextKey = 0

// userFrom returns the authenticated user placed by requireAuth.
func userFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// requireAuth validates the bearer access token and loads the account. The
// account must still exist and be active: a deleted or deactivated user holds
// a cryptographically valid token that no longer grants anything.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(r.Context(), w, s.logger, common.ErrorUnauthorized)
			return
		}

		claims, err := auth.DecodeToken(token, s.jwtSecret)
		if err != nil {
			writeError(r.Context(), w, s.logger, err)
			return
		}
		if claims.Type != "" {
			// Verification tokens must not open API sessions.
			writeError(r.Context(), w, s.logger, common.ErrTokenInvalid)
			return
		}

		user, err := s.identity.CurrentUser(r.Context(), claims.Subject)
		if err != nil {
			writeError(r.Context(), w, s.logger, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
