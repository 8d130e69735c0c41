package backend

import (
	"context"

	"github.com/b0bbywan/go-hfpd/backend/hfp"
	"github.com/b0bbywan/go-hfpd/logger"
)

// sleepHooks stops the radio before a suspend and restarts it on resume if
// it was running.
type sleepHooks struct {
	h       *hfp.HandsFree
	restart bool
}

func (s *sleepHooks) Suspend(ctx context.Context) error {
	st, err := s.h.Status(ctx)
	if err != nil {
		return err
	}
	s.restart = st.SystemState
	if !s.restart {
		return nil
	}
	logger.Info("[backend] stopping Bluetooth for suspend")
	return s.h.Stop(ctx)
}

func (s *sleepHooks) Resume(ctx context.Context) error {
	if !s.restart {
		return nil
	}
	s.restart = false
	logger.Info("[backend] restarting Bluetooth after resume")
	return s.h.Start(ctx)
}
