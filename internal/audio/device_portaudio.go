//go:build portaudio

package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

var (
	paOnce sync.Once
	paErr  error
)

func initPortAudio() error {
	paOnce.Do(func() { paErr = portaudio.Initialize() })
	return paErr
}

// Shutdown releases the PortAudio library.
func Shutdown() {
	if paErr == nil {
		_ = portaudio.Terminate()
	}
}

func classify(err error) error {
	var hostErr *portaudio.UnanticipatedHostError
	if errors.As(err, &hostErr) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	var pe portaudio.Error
	if errors.As(err, &pe) && (pe == portaudio.DeviceUnavailable || pe == portaudio.InvalidDevice) {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return err
}

type paInput struct {
	rate, frame int
	buf         []float32
	stream      *portaudio.Stream
}

// OpenDefaultInput returns the system default microphone.
func OpenDefaultInput(rate, frame int) (InputDevice, error) {
	if err := initPortAudio(); err != nil {
		return nil, classify(err)
	}
	return &paInput{rate: rate, frame: frame, buf: make([]float32, frame)}, nil
}

func (p *paInput) SampleRate() int { return p.rate }
func (p *paInput) FrameSize() int  { return p.frame }

func (p *paInput) Open() error {
	s, err := portaudio.OpenDefaultStream(1, 0, float64(p.rate), p.frame, p.buf)
	if err != nil {
		return classify(err)
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		return classify(err)
	}
	p.stream = s
	return nil
}

func (p *paInput) Read(f Frame) error {
	if err := p.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return err
	}
	copy(f, p.buf)
	return nil
}

func (p *paInput) Close() error {
	if p.stream == nil {
		return nil
	}
	_ = p.stream.Stop()
	err := p.stream.Close()
	p.stream = nil
	return err
}

type paOutput struct {
	rate, frame int
	buf         []int16
	stream      *portaudio.Stream
}

// OpenDefaultOutput returns the system default speaker, already started.
func OpenDefaultOutput(rate, frame int) (OutputDevice, error) {
	if err := initPortAudio(); err != nil {
		return nil, classify(err)
	}
	p := &paOutput{rate: rate, frame: frame, buf: make([]int16, frame)}
	s, err := portaudio.OpenDefaultStream(0, 1, float64(rate), frame, p.buf)
	if err != nil {
		return nil, classify(err)
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		return nil, classify(err)
	}
	p.stream = s
	return p, nil
}

func (p *paOutput) SampleRate() int { return p.rate }

func (p *paOutput) Write(samples []int16) error {
	for off := 0; off < len(samples); off += p.frame {
		n := copy(p.buf, samples[off:])
		for i := n; i < len(p.buf); i++ {
			p.buf[i] = 0
		}
		if err := p.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return err
		}
	}
	return nil
}

func (p *paOutput) Close() error {
	_ = p.stream.Stop()
	return p.stream.Close()
}
