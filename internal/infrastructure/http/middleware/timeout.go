package middleware

import (
	"context"
	"net/http"
	"time"
)

// ExtendedTimeout wraps a handler to apply a longer timeout than the server
// default. A full folder scan can enqueue hundreds of documents and needs
// more headroom than regular endpoints.
func ExtendedTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
