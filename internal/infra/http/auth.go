package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// AdminAuthMiddleware проверяет bearer-токен администратора.
// Пустой токен в конфиге закрывает доступ полностью.
func AdminAuthMiddleware(token string) func(http.Handler) http.Handler {
	expected := sha256.Sum256([]byte(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteError(w, http.StatusForbidden, "admin api disabled")
				return
			}
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			presented, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || presented == "" {
				WriteError(w, http.StatusUnauthorized, "token missing")
				return
			}
			got := sha256.Sum256([]byte(presented))
			if !hmac.Equal(got[:], expected[:]) {
				WriteError(w, http.StatusUnauthorized, "token invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON пишет ответ в JSON.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError пишет ошибку в JSON.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}
