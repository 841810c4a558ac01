package middleware

import (
	"net/http"
)

// RequestSizeLimit creates middleware that limits the maximum request body size.
// Handlers decoding with httputil.DecodeJSON answer 413 when it is exceeded.
// A non-positive maxBytes disables the limit.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
