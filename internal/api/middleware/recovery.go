package middleware

import (
	"net/http"
	"runtime/debug"

	"crossarb/pkg/utils"
)

// Recovery - middleware для восстановления после паники в handlers
//
// Перехватывает panic, пишет сообщение и stack trace в лог и отвечает
// 500 Internal Server Error. Движок в другой горутине продолжает работу.
func Recovery(log *utils.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = utils.L()
	}
	log = log.WithComponent("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("panic in http handler",
						utils.String("path", r.URL.Path),
						utils.Any("panic", err),
						utils.String("stack", string(debug.Stack())))

					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
