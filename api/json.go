package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/b0bbywan/go-hfpd/backend/core"
	"github.com/b0bbywan/go-hfpd/backend/hfp"
	"github.com/b0bbywan/go-hfpd/logger"
)

// errorBody is the JSON form of every error response.
type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// badRequestError marks malformed requests.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

func JSONHandler(h func(http.ResponseWriter, *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h(w, r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

// actionHandler runs an action returning no data and answers 202.
func actionHandler(h func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handleActionError(w, h(w, r))
	}
}

func handleActionError(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeError(w, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("[api] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Warn("[api] %v", err)
	} else {
		logger.Debug("[api] %v", err)
	}
	writeJSON(w, status, errorBody{Name: core.NameOf(err), Message: err.Error()})
}

// errorStatus maps daemon errors to HTTP status codes.
func errorStatus(err error) int {
	var bad *badRequestError
	switch {
	case errors.As(err, &bad), errors.Is(err, hfp.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, hfp.ErrNotClaimedByCaller):
		return http.StatusForbidden
	case errors.Is(err, hfp.ErrNoSuchDevice), errors.Is(err, hfp.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, hfp.ErrAlreadyClaimed), errors.Is(err, hfp.ErrBusy),
		errors.Is(err, hfp.ErrNotConnected), errors.Is(err, hfp.ErrNotStarted),
		errors.Is(err, hfp.ErrNotKnownOrClaimed):
		return http.StatusConflict
	case errors.Is(err, hfp.ErrNotSupported):
		return http.StatusNotImplemented
	case errors.Is(err, hfp.ErrRejected):
		return http.StatusBadGateway
	case errors.Is(err, hfp.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, hfp.ErrDisconnected), errors.Is(err, hfp.ErrShutDown),
		errors.Is(err, core.ErrStopped):
		return http.StatusServiceUnavailable
	}

	switch core.NameOf(err) {
	case core.ErrNameNoKernelSupport, core.ErrNameScoConfig:
		return http.StatusServiceUnavailable
	case core.ErrNameServiceConflict:
		return http.StatusConflict
	case core.ErrNameSoundCardFailed:
		return http.StatusInternalServerError
	}

	var named *core.Error
	if errors.As(err, &named) {
		// generic daemon failures are refused requests
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// withBody parses and validates the JSON body, then calls next
func withBody[T any](
	validate func(*T) error,
	next func(w http.ResponseWriter, r *http.Request, req *T),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req T
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, badRequest("invalid JSON payload"))
			return
		}

		if validate != nil {
			if err := validate(&req); err != nil {
				writeError(w, badRequest(err.Error()))
				return
			}
		}

		next(w, r, &req)
	}
}
