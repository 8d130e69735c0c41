package api

import (
	"context"
	"net/http"

	"github.com/b0bbywan/go-hfpd/backend/hfp"
)

// sessionHeader carries the client session id of claiming requests.
const sessionHeader = "X-Hfpd-Session"

type sessionResponse struct {
	ID string `json:"id"`
}

// withContext adapts a backend call taking only a context.
func withContext(fn func(context.Context) error) http.HandlerFunc {
	return actionHandler(func(w http.ResponseWriter, r *http.Request) error {
		return fn(r.Context())
	})
}

func NewSessionHandler(h *hfp.HandsFree) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		id, err := h.NewSession(r.Context())
		if err != nil {
			return nil, err
		}
		return sessionResponse{ID: id}, nil
	})
}

func CloseSessionHandler(h *hfp.HandsFree) http.HandlerFunc {
	return actionHandler(func(w http.ResponseWriter, r *http.Request) error {
		return h.CloseSession(r.Context(), r.PathValue("id"))
	})
}

func SetOptionsHandler(h *hfp.HandsFree) http.HandlerFunc {
	return withBody(nil, func(w http.ResponseWriter, r *http.Request, req *hfp.Options) {
		handleActionError(w, h.SetOptions(r.Context(), *req))
	})
}

// requireSession returns the session id of the request.
func requireSession(r *http.Request) (string, error) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		return "", badRequest("missing " + sessionHeader + " header")
	}
	return id, nil
}
