package api

import (
	"errors"
	"net/http"

	"github.com/b0bbywan/go-hfpd/backend/hfp"
	"github.com/b0bbywan/go-hfpd/backend/soundio"
)

type startGatewayRequest struct {
	Address  string `json:"address"`
	Initiate bool   `json:"initiate"`
}

type startFileRequest struct {
	Path  string `json:"path"`
	Write bool   `json:"write"`
}

type startMembufRequest struct {
	Capture        bool `json:"capture"`
	Playback       bool `json:"playback"`
	Size           int  `json:"size"`
	ReportInterval int  `json:"report_interval"`
}

type loadMembufRequest struct {
	Size    int     `json:"size"`
	Samples []int16 `json:"samples"`
}

type setDriverRequest struct {
	Name string `json:"name"`
	Opts string `json:"opts"`
}

type setMuteRequest struct {
	Mute *bool `json:"mute"`
}

func validateStartGateway(req *startGatewayRequest) error {
	if req.Address == "" {
		return errors.New("address is required")
	}
	return nil
}

func validateSetDriver(req *setDriverRequest) error {
	if req.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func validateSetMute(req *setMuteRequest) error {
	if req.Mute == nil {
		return errors.New("mute is required")
	}
	return nil
}

func ProbeDevicesHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		return sio.ProbeDevices(r.PathValue("name"))
	})
}

// StartGatewayAudioHandler streams between a gateway and the sound card.
func StartGatewayAudioHandler(h *hfp.HandsFree) http.HandlerFunc {
	return withBody(validateStartGateway, func(w http.ResponseWriter, r *http.Request, req *startGatewayRequest) {
		handleActionError(w, h.StartAudio(r.Context(), req.Address, req.Initiate))
	})
}

func StartFileHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return withBody(nil, func(w http.ResponseWriter, r *http.Request, req *startFileRequest) {
		handleActionError(w, sio.StartWithFile(r.Context(), req.Path, req.Write))
	})
}

func StartMembufHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return withBody(nil, func(w http.ResponseWriter, r *http.Request, req *startMembufRequest) {
		handleActionError(w, sio.StartWithMemoryBuffer(r.Context(), req.Capture, req.Playback, req.Size, req.ReportInterval))
	})
}

func ReadMembufHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return JSONHandler(func(w http.ResponseWriter, r *http.Request) (any, error) {
		return sio.ReadMemoryBuffer(r.Context())
	})
}

// LoadMembufHandler replaces the samples the next playback stream plays.
func LoadMembufHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return withBody(nil, func(w http.ResponseWriter, r *http.Request, req *loadMembufRequest) {
		handleActionError(w, sio.LoadMemoryBuffer(r.Context(), req.Size, req.Samples))
	})
}

func SetDriverHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return withBody(validateSetDriver, func(w http.ResponseWriter, r *http.Request, req *setDriverRequest) {
		handleActionError(w, sio.SetDriver(r.Context(), req.Name, req.Opts))
	})
}

func SetBufferingHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return withBody(nil, func(w http.ResponseWriter, r *http.Request, req *soundio.Buffering) {
		handleActionError(w, sio.SetBuffering(r.Context(), *req))
	})
}

func SetSnoopHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return withBody(nil, func(w http.ResponseWriter, r *http.Request, req *soundio.Snoop) {
		handleActionError(w, sio.SetSnoopFile(r.Context(), *req))
	})
}

func SetMuteHandler(sio *soundio.SoundIo) http.HandlerFunc {
	return withBody(validateSetMute, func(w http.ResponseWriter, r *http.Request, req *setMuteRequest) {
		handleActionError(w, sio.SetMute(r.Context(), *req.Mute))
	})
}
