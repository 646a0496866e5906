package server

import (
	"encoding/json"
	"net/http"

	"github.com/teranos/trellis/errors"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeErrorFor maps err onto an HTTP status
func writeErrorFor(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.Code(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeMalformed:
		status = http.StatusBadRequest
	case errors.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}
