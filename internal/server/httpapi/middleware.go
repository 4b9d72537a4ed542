package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/authgate/internal/common"
)

type ctxKey string

const usernameKey ctxKey = "username"

// requireToken authenticates requests with a bearer access token and stores
// the token's subject in the request context.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}

		username, err := s.signer.Decode(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// usernameFromContext returns the subject stored by requireToken.
func usernameFromContext(ctx context.Context) string {
	username, _ := ctx.Value(usernameKey).(string)
	return username
}
