// Package middleware provides HTTP middleware for the operational API.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/code2api/code2api/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID ensures every request carries an ID: the inbound X-Request-ID
// header when present, a fresh UUID otherwise. The ID is stored in the
// context for the request logger and echoed on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
