package httpadapter

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/kirillkom/resume-context-engine/internal/core/domain"
)

func (rt *Router) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rt.adminAPIKey == "" || isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.adminAPIKey) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, domain.WrapError(domain.ErrUnauthorized, "admin", errors.New("missing or invalid bearer token")))
	})
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1
}
