package soundio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tosone/minimp3"
	"github.com/youpy/go-wav"
)

const (
	wavRiffSizeOffset = 4
	wavDataSizeOffset = 40
	wavHeaderSize     = 44
)

// wavWriter streams 8kHz mono S16_LE samples to a WAV file. Sizes in the
// header are fixed up on close.
type wavWriter struct {
	f       *os.File
	w       *wav.Writer
	samples uint32
	scratch []wav.Sample
}

func createWav(path string) (*wavWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &wavWriter{
		f: f,
		w: wav.NewWriter(f, 0, Channels, SampleRate, 16),
	}, nil
}

func (w *wavWriter) write(p []int16) error {
	if cap(w.scratch) < len(p) {
		w.scratch = make([]wav.Sample, len(p))
	}
	samples := w.scratch[:len(p)]
	for i, s := range p {
		samples[i] = wav.Sample{Values: [2]int{int(s), 0}}
	}
	if err := w.w.WriteSamples(samples); err != nil {
		return err
	}
	w.samples += uint32(len(p))
	return nil
}

func (w *wavWriter) close() error {
	dataSize := w.samples * 2
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], wavHeaderSize-8+dataSize)
	if _, err := w.f.WriteAt(hdr[:], wavRiffSizeOffset); err != nil {
		w.f.Close()
		return err
	}
	binary.LittleEndian.PutUint32(hdr[:], dataSize)
	if _, err := w.f.WriteAt(hdr[:], wavDataSizeOffset); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// decodeFile loads a WAV or MP3 file as 8kHz mono samples.
func decodeFile(path string) ([]int16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isMP3(path, data) {
		return decodeMP3(data)
	}
	return decodeWav(data)
}

func isMP3(path string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		return true
	}
	if bytes.HasPrefix(data, []byte("ID3")) {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeWav(data []byte) ([]int16, error) {
	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("read wav format: %w", err)
	}
	if format.NumChannels == 0 {
		return nil, fmt.Errorf("wav file has no channels")
	}

	shift := int(format.BitsPerSample) - 16
	var mono []int16
	for {
		samples, err := r.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read wav samples: %w", err)
		}
		for _, s := range samples {
			sum := 0
			for ch := uint(0); ch < uint(min(format.NumChannels, 2)); ch++ {
				v := r.IntValue(s, ch)
				switch {
				case shift > 0:
					v >>= shift
				case format.BitsPerSample == 8:
					v = (v - 128) << 8
				}
				sum += v
			}
			mono = append(mono, int16(sum/int(min(format.NumChannels, 2))))
		}
	}
	return resample(mono, int(format.SampleRate)), nil
}

func decodeMP3(data []byte) ([]int16, error) {
	dec, pcm, err := minimp3.DecodeFull(data)
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	defer dec.Close()

	channels := max(dec.Channels, 1)
	frames := len(pcm) / 2 / channels
	mono := make([]int16, frames)
	for i := range mono {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		mono[i] = int16(sum / channels)
	}
	return resample(mono, dec.SampleRate), nil
}

// resample converts from rate to SampleRate by linear interpolation.
func resample(in []int16, rate int) []int16 {
	if rate <= 0 || rate == SampleRate || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * SampleRate / int64(rate))
	out := make([]int16, n)
	step := float64(rate) / SampleRate
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		a := float64(in[j])
		b := a
		if j+1 < len(in) {
			b = float64(in[j+1])
		}
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
