package soundio

// snooper mirrors the streamed audio to a mono WAV file. When both
// directions are selected they are mixed together.
type snooper struct {
	cfg Snoop
	w   *wavWriter
	mix []int16
}

func openSnoop(cfg Snoop) (*snooper, error) {
	if cfg.Path == "" || (!cfg.Capture && !cfg.Playback) {
		return nil, nil
	}
	w, err := createWav(cfg.Path)
	if err != nil {
		return nil, err
	}
	return &snooper{cfg: cfg, w: w}, nil
}

func (s *snooper) write(captured, played []int16) error {
	if s == nil {
		return nil
	}
	switch {
	case s.cfg.Capture && s.cfg.Playback:
		if cap(s.mix) < len(captured) {
			s.mix = make([]int16, len(captured))
		}
		mix := s.mix[:len(captured)]
		for i, c := range captured {
			v := float64(c)
			if i < len(played) {
				v += float64(played[i])
			}
			mix[i] = clip(v)
		}
		return s.w.write(mix)
	case s.cfg.Capture:
		return s.w.write(captured)
	default:
		return s.w.write(played)
	}
}

func (s *snooper) close() error {
	if s == nil {
		return nil
	}
	return s.w.close()
}
