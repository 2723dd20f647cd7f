package audio

import "errors"

var (
	// ErrPermissionDenied is returned when the host refuses microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrDeviceUnavailable is returned when no usable device exists.
	ErrDeviceUnavailable = errors.New("audio: device unavailable")
	// ErrCaptureStarted is returned when Start is called twice.
	ErrCaptureStarted = errors.New("audio: capture already started")
	// ErrPlayerClosed is returned by Play after Close.
	ErrPlayerClosed = errors.New("audio: player closed")
)

// InputDevice is a mono microphone producing float frames.
type InputDevice interface {
	SampleRate() int
	FrameSize() int
	Open() error
	// Read blocks until the next frame is filled.
	Read(Frame) error
	Close() error
}

// OutputDevice is a mono speaker accepting PCM16 samples.
type OutputDevice interface {
	SampleRate() int
	// Write blocks until the samples have been handed to the device.
	Write([]int16) error
	Close() error
}
