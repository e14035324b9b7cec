package middleware

import (
	"net/http"
	"strings"
)

// ContentType validates Content-Type headers for requests with bodies
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			contentType := r.Header.Get("Content-Type")

			// Sign-out and similar POSTs carry no body
			if contentType == "" && r.ContentLength > 0 {
				respondErrorJSON(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "Content-Type header is required", nil)
				return
			}

			if contentType != "" && !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
				respondErrorJSON(w, r, http.StatusUnsupportedMediaType, "VALIDATION_FAILED", "Content-Type must be application/json", nil)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
