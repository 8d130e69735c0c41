package api

import (
	"net/http"

	"github.com/b0bbywan/go-hfpd/backend"
	"github.com/b0bbywan/go-hfpd/backend/hfp"
	"github.com/b0bbywan/go-hfpd/backend/pulseaudio"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
	"github.com/b0bbywan/go-hfpd/logger"
)

func (s *Server) registerServerRoutes(b *backend.Backend) {
	s.mux.HandleFunc(
		"GET /server",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return b.GetServerDeviceInfo(r.Context())
		}),
	)

	if s.config.SSE && s.broadcaster != nil {
		s.mux.HandleFunc("GET /events", sseHandler(s.broadcaster, b.HandsFree))
		logger.Info("[api] SSE route registered at /events")
	}
}

func (s *Server) registerSessionRoutes(h *hfp.HandsFree) {
	s.mux.HandleFunc("POST /sessions", NewSessionHandler(h))
	s.mux.HandleFunc("DELETE /sessions/{id}", CloseSessionHandler(h))
}

func (s *Server) registerHandsFreeRoutes(h *hfp.HandsFree) {
	s.mux.HandleFunc(
		"GET /handsfree",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return h.Status(r.Context())
		}),
	)
	s.mux.HandleFunc("POST /handsfree/start", withContext(h.Start))
	s.mux.HandleFunc("POST /handsfree/stop", withContext(h.Stop))
	s.mux.HandleFunc("POST /handsfree/save", withContext(h.SaveSettings))
	s.mux.HandleFunc("POST /handsfree/options", SetOptionsHandler(h))
	s.mux.HandleFunc("POST /handsfree/inquiry/start", withContext(h.StartInquiry))
	s.mux.HandleFunc("POST /handsfree/inquiry/stop", withContext(h.StopInquiry))
}

func (s *Server) registerGatewayRoutes(h *hfp.HandsFree) {
	s.mux.HandleFunc(
		"GET /gateways",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return h.Gateways(r.Context())
		}),
	)
	s.mux.HandleFunc("POST /gateways", AddGatewayHandler(h))
	s.mux.HandleFunc("DELETE /gateways/{addr}", RemoveGatewayHandler(h))
	s.mux.HandleFunc("GET /gateways/{addr}", GatewayInfoHandler(h))
	s.mux.HandleFunc("GET /gateways/{addr}/indicators", IndicatorsHandler(h))
	s.mux.HandleFunc("GET /gateways/{addr}/name", GatewayNameHandler(h))
	s.mux.HandleFunc("POST /gateways/{addr}/known", SetKnownHandler(h))

	s.mux.HandleFunc("POST /gateways/{addr}/connect", withGateway(h, (*hfp.AudioGateway).Connect))
	s.mux.HandleFunc("POST /gateways/{addr}/disconnect", withGateway(h, (*hfp.AudioGateway).Disconnect))
	s.mux.HandleFunc("POST /gateways/{addr}/open_audio", withGateway(h, (*hfp.AudioGateway).OpenAudio))
	s.mux.HandleFunc("POST /gateways/{addr}/close_audio", withGateway(h, (*hfp.AudioGateway).CloseAudio))
	s.mux.HandleFunc("POST /gateways/{addr}/autoreconnect", AutoReconnectHandler(h))

	s.mux.HandleFunc("POST /gateways/{addr}/dial", DialHandler(h))
	s.mux.HandleFunc("POST /gateways/{addr}/redial", withGateway(h, (*hfp.AudioGateway).Redial))
	s.mux.HandleFunc("POST /gateways/{addr}/hangup", withGateway(h, (*hfp.AudioGateway).HangUp))
	s.mux.HandleFunc("POST /gateways/{addr}/dtmf", DtmfHandler(h))
	s.mux.HandleFunc("POST /gateways/{addr}/answer", withGateway(h, (*hfp.AudioGateway).Answer))
	s.mux.HandleFunc("POST /gateways/{addr}/drop_held_udub", withGateway(h, (*hfp.AudioGateway).CallDropHeldUdub))
	s.mux.HandleFunc("POST /gateways/{addr}/swap_drop_active", withGateway(h, (*hfp.AudioGateway).CallSwapDropActive))
	s.mux.HandleFunc("POST /gateways/{addr}/swap_hold_active", withGateway(h, (*hfp.AudioGateway).CallSwapHoldActive))
	s.mux.HandleFunc("POST /gateways/{addr}/link", withGateway(h, (*hfp.AudioGateway).CallLink))
	s.mux.HandleFunc("POST /gateways/{addr}/transfer", withGateway(h, (*hfp.AudioGateway).CallTransfer))
}

func (s *Server) registerSoundIoRoutes(sio *soundio.SoundIo, h *hfp.HandsFree) {
	s.mux.HandleFunc(
		"GET /soundio",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return sio.Status(r.Context())
		}),
	)
	s.mux.HandleFunc(
		"GET /soundio/drivers",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return sio.GetDrivers(), nil
		}),
	)
	s.mux.HandleFunc("GET /soundio/drivers/{name}/devices", ProbeDevicesHandler(sio))
	s.mux.HandleFunc("POST /soundio/stop", withContext(sio.Stop))
	s.mux.HandleFunc("POST /soundio/file", StartFileHandler(sio))
	s.mux.HandleFunc("POST /soundio/loopback", withContext(sio.StartLoopback))
	s.mux.HandleFunc("POST /soundio/membuf", StartMembufHandler(sio))
	s.mux.HandleFunc("POST /soundio/membuf/clear", withContext(sio.ClearMemoryBuffer))
	s.mux.HandleFunc("GET /soundio/membuf", ReadMembufHandler(sio))
	s.mux.HandleFunc("POST /soundio/membuf/load", LoadMembufHandler(sio))
	s.mux.HandleFunc("POST /soundio/driver", SetDriverHandler(sio))
	s.mux.HandleFunc("POST /soundio/buffering", SetBufferingHandler(sio))
	s.mux.HandleFunc("POST /soundio/snoop", SetSnoopHandler(sio))
	s.mux.HandleFunc("POST /soundio/mute", SetMuteHandler(sio))
	if h != nil {
		s.mux.HandleFunc("POST /soundio/gateway", StartGatewayAudioHandler(h))
	}
}

func (s *Server) registerPulseRoutes(pa *pulseaudio.PulseAudioBackend) {
	s.mux.HandleFunc(
		"GET /audio/server",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return pa.ServerInfo()
		}),
	)
	s.mux.HandleFunc(
		"GET /audio/devices",
		JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
			return pa.Devices()
		}),
	)
}
