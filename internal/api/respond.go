package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"showcatalog/internal/catalog"
	"showcatalog/internal/logging"
)

// MissingKeyMessage answers an upsert without a show id.
const MissingKeyMessage = "The show id is mandatory. Also... I am a teapot."

type errorBody struct {
	Message string   `json:"message"`
	Kind    string   `json:"kind,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// writeError maps catalog errors onto status codes. Anything not raised by
// payload validation is logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *catalog.ValidationError
	var parse *catalog.ParseError
	switch {
	case catalog.IsMissingKey(err):
		writeMessage(w, http.StatusTeapot, MissingKeyMessage)
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Message: validation.Message,
			Kind:    string(validation.Kind),
			Fields:  validation.Fields,
		})
	case errors.As(err, &parse):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Message: parse.Error(),
			Kind:    "PARSE_ERROR",
			Fields:  []string{parse.Field},
		})
	default:
		logging.FromContext(r.Context()).Error("catalog request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}
