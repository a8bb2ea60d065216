package middleware

import (
	"net/http"
	"strings"

	"crossarb/pkg/crypto"
)

// BearerAuth - middleware для проверки токена статус API
//
// Назначение:
// Защищает /api/v1 от посторонних, когда сервер слушает не только localhost.
// Токен передаётся в заголовке Authorization: Bearer <token> и сравнивается
// с bcrypt hash из API_TOKEN_HASH.
//
// Пустой hash = проверка выключена (локальное развертывание).
// WebSocket клиенты из браузера не умеют ставить заголовок, для них
// принимается ?token=<token>.
func BearerAuth(verifier *crypto.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil || !verifier.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Verify(extractToken(r)) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="crossarb"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			return strings.TrimSpace(h[len(prefix):])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
