package middleware

import (
	"net/http"
	"strings"
)

// CORS - middleware для Cross-Origin запросов UI
//
// origins: список через запятую (CORS_ALLOWED_ORIGINS).
// Пусто или "*" = любой origin без credentials.
//
// Заголовки:
// - Access-Control-Allow-Methods: GET, POST, OPTIONS
// - Access-Control-Allow-Headers: Content-Type, Authorization
// - Access-Control-Max-Age: 86400 (24 часа)
func CORS(origins string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool)
	allowAll := true
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		allowed[o] = true
		allowAll = false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case allowAll || origin == "":
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				// для разрешенных origins с credentials конкретный origin
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			// Для неразрешенных origins не устанавливаем заголовки - браузер заблокирует

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
