package handlers

import (
	"fmt"
	"net/http"
)

// Error codes for exporter HTTP errors
const (
	CodeNotFound = "NOT_FOUND"
	CodeInternal = "INTERNAL_ERROR"
)

// Format creates a standardized error response body
func Format(code, message string) string {
	return fmt.Sprintf(`Kaspa Exporter Error

Error Code: %s
Message: %s
`, code, message)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	fmt.Fprint(w, Format(code, message))
}
