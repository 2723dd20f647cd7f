//go:build !portaudio

package audio

// OpenDefaultInput is unavailable without the portaudio build tag.
func OpenDefaultInput(rate, frame int) (InputDevice, error) {
	return nil, ErrDeviceUnavailable
}

// OpenDefaultOutput is unavailable without the portaudio build tag.
func OpenDefaultOutput(rate, frame int) (OutputDevice, error) {
	return nil, ErrDeviceUnavailable
}

// Shutdown is a no-op without the portaudio build tag.
func Shutdown() {}
