package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/b0bbywan/go-hfpd/backend/hfp"
)

type addGatewayRequest struct {
	Address string `json:"address"`
	Known   bool   `json:"known"`
}

type addGatewayResponse struct {
	Path string `json:"path"`
}

type nameResponse struct {
	Name string `json:"name"`
}

type knownRequest struct {
	Known *bool `json:"known"`
}

type autoReconnectRequest struct {
	Enable *bool `json:"enable"`
}

type dialRequest struct {
	Number string `json:"number"`
}

type dtmfRequest struct {
	Digit string `json:"digit"`
}

func validateAddGateway(req *addGatewayRequest) error {
	if req.Address == "" {
		return errors.New("address is required")
	}
	return nil
}

func validateKnown(req *knownRequest) error {
	if req.Known == nil {
		return errors.New("known is required")
	}
	return nil
}

func validateAutoReconnect(req *autoReconnectRequest) error {
	if req.Enable == nil {
		return errors.New("enable is required")
	}
	return nil
}

func AddGatewayHandler(h *hfp.HandsFree) http.HandlerFunc {
	return withBody(validateAddGateway, func(w http.ResponseWriter, r *http.Request, req *addGatewayRequest) {
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			session, err := requireSession(r)
			if err != nil {
				return nil, err
			}
			path, err := h.AddDevice(r.Context(), session, req.Address, req.Known)
			if err != nil {
				return nil, err
			}
			return addGatewayResponse{Path: path}, nil
		})(w, r)
	})
}

func RemoveGatewayHandler(h *hfp.HandsFree) http.HandlerFunc {
	return actionHandler(func(w http.ResponseWriter, r *http.Request) error {
		session, err := requireSession(r)
		if err != nil {
			return err
		}
		return h.RemoveDevice(r.Context(), session, r.PathValue("addr"))
	})
}

func SetKnownHandler(h *hfp.HandsFree) http.HandlerFunc {
	return withBody(validateKnown, func(w http.ResponseWriter, r *http.Request, req *knownRequest) {
		session, err := requireSession(r)
		if err != nil {
			writeError(w, err)
			return
		}
		handleActionError(w, h.SetKnown(r.Context(), session, r.PathValue("addr"), *req.Known))
	})
}

func GatewayInfoHandler(h *hfp.HandsFree) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		ag, err := h.Gateway(r.Context(), r.PathValue("addr"))
		if err != nil {
			return nil, err
		}
		return ag.Info(r.Context())
	})
}

func IndicatorsHandler(h *hfp.HandsFree) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		ag, err := h.Gateway(r.Context(), r.PathValue("addr"))
		if err != nil {
			return nil, err
		}
		return ag.Indicators(r.Context())
	})
}

// GatewayNameHandler reads the remote name of any device, claimed or not.
func GatewayNameHandler(h *hfp.HandsFree) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		name, err := h.GetName(r.Context(), r.PathValue("addr"))
		if err != nil {
			return nil, err
		}
		return nameResponse{Name: name}, nil
	})
}

func AutoReconnectHandler(h *hfp.HandsFree) http.HandlerFunc {
	return withGatewayBody(h, validateAutoReconnect, func(ctx context.Context, ag *hfp.AudioGateway, req *autoReconnectRequest) error {
		return ag.SetAutoReconnect(ctx, *req.Enable)
	})
}

func DialHandler(h *hfp.HandsFree) http.HandlerFunc {
	return withGatewayBody(h, nil, func(ctx context.Context, ag *hfp.AudioGateway, req *dialRequest) error {
		return ag.Dial(ctx, req.Number)
	})
}

func DtmfHandler(h *hfp.HandsFree) http.HandlerFunc {
	return withGatewayBody(h, nil, func(ctx context.Context, ag *hfp.AudioGateway, req *dtmfRequest) error {
		return ag.SendDtmf(ctx, req.Digit)
	})
}

// withGateway resolves the {addr} path value and runs fn on its gateway.
func withGateway(h *hfp.HandsFree, fn func(*hfp.AudioGateway, context.Context) error) http.HandlerFunc {
	return actionHandler(func(w http.ResponseWriter, r *http.Request) error {
		ag, err := h.Gateway(r.Context(), r.PathValue("addr"))
		if err != nil {
			return err
		}
		return fn(ag, r.Context())
	})
}

func withGatewayBody[T any](
	h *hfp.HandsFree,
	validate func(*T) error,
	fn func(ctx context.Context, ag *hfp.AudioGateway, req *T) error,
) http.HandlerFunc {
	return withBody(validate, func(w http.ResponseWriter, r *http.Request, req *T) {
		ag, err := h.Gateway(r.Context(), r.PathValue("addr"))
		if err != nil {
			writeError(w, err)
			return
		}
		handleActionError(w, fn(r.Context(), ag, req))
	})
}
