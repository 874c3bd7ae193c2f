package utils

import (
	"encoding/json"
	"net/http"
)

// JSON writes a JSON response with status code
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// JSONError writes {"message": ...}, the error shape the notes client expects.
func JSONError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}
