package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/ironrsa/issuance"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: true, Message: msg})
}

func success(msg string) Envelope {
	return Envelope{Success: true, Message: msg}
}

// mapError converts domain errors to HTTP status codes. Unknown ids are
// reported as 400 like other bad input.
func mapError(w http.ResponseWriter, err error) {
	var cmdErr *issuance.CommandError
	switch {
	case errors.Is(err, issuance.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, issuance.ErrIssuerNotFound),
		errors.Is(err, issuance.ErrCertificateNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, issuance.ErrDuplicate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, issuance.ErrInvalidTransition),
		errors.Is(err, issuance.ErrStatusConflict),
		errors.Is(err, issuance.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &cmdErr):
		writeJSON(w, http.StatusInternalServerError, CommandErrorResponse{
			ErrorResponse: ErrorResponse{Error: true, Message: err.Error()},
			Step:          string(cmdErr.Step),
			ExitCode:      cmdErr.Result.ExitCode,
			Output:        cmdErr.Result.Output(),
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
