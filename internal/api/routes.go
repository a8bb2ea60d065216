package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crossarb/internal/api/handlers"
	"crossarb/internal/api/middleware"
	"crossarb/pkg/crypto"
	"crossarb/pkg/utils"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine handlers.EngineReader
	Books  handlers.BookReader

	// Archive nil если журнал в PostgreSQL выключен
	Archive handlers.ArchiveReader

	// Stream обработчик /ws/stream (websocket.Hub.ServeWS), nil = без потока
	Stream http.HandlerFunc

	// TokenHash bcrypt hash токена, пусто = без авторизации
	TokenHash      string
	AllowedOrigins string

	Log *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
//	/health                     - liveness, без авторизации
//	/metrics                    - Prometheus, без авторизации
//	/api/v1/
//	├── GET  /books             - верх стаканов
//	├── GET  /books/{venue}     - стакан площадки
//	├── GET  /spread            - спред ?buy=&sell=
//	├── GET  /opportunities     - кандидаты детектора
//	├── GET  /executions        - последние исполнения ?limit=
//	├── GET  /stats             - статистика движка
//	├── GET  /halt              - остановка после PARTIAL
//	├── POST /resume            - снять остановку
//	└── /archive/               - только при включённой БД
//	    ├── GET /               - ?status=&limit=
//	    ├── GET /summary        - ?window=24h
//	    └── GET /{id}
//	/ws/stream                  - поток событий
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов, отвечает на preflight OPTIONS)
// 4. BearerAuth (только /api/v1 и /ws/stream)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Log))
	router.Use(middleware.Logging(deps.Log))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	auth := middleware.BearerAuth(crypto.NewTokenVerifier(deps.TokenHash))

	status := handlers.NewStatusHandler(deps.Engine, deps.Books)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth)

	api.HandleFunc("/books", status.GetBooks).Methods("GET", "OPTIONS")
	api.HandleFunc("/books/{venue}", status.GetBook).Methods("GET", "OPTIONS")
	api.HandleFunc("/spread", status.GetSpread).Methods("GET", "OPTIONS")
	api.HandleFunc("/opportunities", status.GetOpportunities).Methods("GET", "OPTIONS")
	api.HandleFunc("/executions", status.GetExecutions).Methods("GET", "OPTIONS")
	api.HandleFunc("/stats", status.GetStats).Methods("GET", "OPTIONS")
	api.HandleFunc("/halt", status.GetHalt).Methods("GET", "OPTIONS")
	api.HandleFunc("/resume", status.Resume).Methods("POST", "OPTIONS")

	if deps.Archive != nil {
		archive := handlers.NewArchiveHandler(deps.Archive)
		api.HandleFunc("/archive", archive.ListExecutions).Methods("GET", "OPTIONS")
		api.HandleFunc("/archive/summary", archive.Summary).Methods("GET", "OPTIONS")
		api.HandleFunc("/archive/{id}", archive.GetExecution).Methods("GET", "OPTIONS")
	}

	if deps.Stream != nil {
		ws := router.PathPrefix("/ws").Subrouter()
		ws.Use(auth)
		ws.HandleFunc("/stream", deps.Stream).Methods("GET")
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		halted, _ := deps.Engine.Halted()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if halted {
			w.Write([]byte(`{"status":"ok","halted":true}`))
			return
		}
		w.Write([]byte(`{"status":"ok","halted":false}`))
	}).Methods("GET")

	return router
}
