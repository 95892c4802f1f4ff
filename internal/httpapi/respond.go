package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/DoyleJ11/battlezone/internal/backend"
	"github.com/DoyleJ11/battlezone/internal/session"
	"github.com/DoyleJ11/battlezone/internal/types"
	"github.com/DoyleJ11/battlezone/internal/wallet"
)

type errorBody struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("bad request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

// statusFor maps an error onto the HTTP status the client sees:
// precondition 409, remote failure 502, auth 401.
func statusFor(err error) int {
	var re *backend.RemoteError
	switch {
	case errors.As(err, &re):
		return http.StatusBadGateway
	case errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, wallet.ErrAlreadyJoined),
		errors.Is(err, wallet.ErrRegistrationClosed),
		errors.Is(err, backend.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidUsername),
		errors.Is(err, wallet.ErrUnsupportedMutation),
		errors.Is(err, types.ErrUnknownType),
		errors.Is(err, backend.ErrInvalidInput),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrUnauthenticated),
		errors.Is(err, backend.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := backend.UserMessage(err)
	switch status {
	case http.StatusInternalServerError:
		msg = "internal error"
	case http.StatusNotFound:
		msg = "not found"
	}
	writeJSON(w, status, errorBody{Error: msg})
}
