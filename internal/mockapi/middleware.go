package mockapi

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userContextKey contextKey = "user"

const detailNotAuthenticated = "Not authenticated"

// AuthMiddleware checks the bearer token and puts the caller into the
// request context.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			writeDetail(w, http.StatusUnauthorized, detailNotAuthenticated)
			return
		}

		claims, err := ValidateJWT(token, s.Key)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, detailNotAuthenticated)
			return
		}

		// the user must still exist and be active
		user, err := s.DB.GetUser(claims.Subject)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, detailNotAuthenticated)
			return
		}
		if !user.Active {
			writeDetail(w, http.StatusForbidden, "User inactive or not found")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}

func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
