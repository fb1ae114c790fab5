package httpapi

import (
	"encoding/json"
	"net/http"

	automation "github.com/goliatone/go-automation"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	codeBadRequest = "BAD_REQUEST"
	codeNotFound   = "NOT_FOUND"
	codeInternal   = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeEngineError maps the engine error taxonomy to a status code.
func writeEngineError(w http.ResponseWriter, err error) {
	code := automation.ErrorCode(err)
	switch code {
	case automation.ErrCodeInvalidAutomation, automation.ErrCodeUnitNotFound, automation.ErrCodeInvalidConfiguration:
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
	case "":
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, code, err.Error())
	}
}
