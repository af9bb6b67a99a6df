// Package handler contains the HTTP handlers of the thoughts API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, query, JSON or multipart body)
//  2. Call the service layer with the caller's identity
//  3. Write the response envelope or hand the error to writeError
//
// Handlers hold no business rules. Ownership checks, validation bounds and
// counter side effects all live in internal/service, so the same rules apply
// whichever transport calls them.
package handler

import "net/http"

// HandleHealth reports that the process is up.
//
// HTTP: GET /
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "Server is running", nil)
}

// HandleNotFound answers unknown routes with the standard envelope.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, Envelope{Message: "Route not found"})
}
