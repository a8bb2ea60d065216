package handlers

import (
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, errCode, message, details string) {
	respondWithJSON(w, code, ErrorResponse{Error: message, Code: errCode, Details: details})
}

// parseLimit ?limit=N, в пределах [1, max]
func parseLimit(r *http.Request, def, max int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

// parseVenue имя площадки из пути или query, без учёта регистра
func parseVenue(raw string) (models.Venue, bool) {
	v, err := exchange.ParseVenue(raw)
	return v, err == nil
}
