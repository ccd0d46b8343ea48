package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/luminet/userauth"
)

// envelope is the uniform response body: code 200 for success, the
// business error code otherwise. data is omitted on failure.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: 200, Message: "ok", Data: data})
}

// writeError maps a service error to the wire. Business failures travel
// inside a 200 response with their own code; malformed input is an HTTP
// 400; everything else is a generic 500 so infrastructure detail never
// reaches the client.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	be, ok := userauth.AsBusiness(err)
	if !ok {
		log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Code: 500, Message: "internal error"})
		return
	}

	switch be.Kind {
	case userauth.KindValidation:
		writeJSON(w, http.StatusBadRequest, envelope{Code: 400, Message: be.Message})
	case userauth.KindInfrastructure:
		log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Code: 500, Message: "internal error"})
	default:
		writeJSON(w, http.StatusOK, envelope{Code: be.Code, Message: be.Message})
	}
}
