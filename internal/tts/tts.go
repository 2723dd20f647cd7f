// Package tts synthesizes agent speech as PCM16 mono.
package tts

import (
	"context"
	"errors"
)

// ErrMissingKey is returned when a provider has no credentials.
var ErrMissingKey = errors.New("tts: api key missing")

// Synthesizer streams PCM16 little-endian mono audio for text. Both
// channels are closed when synthesis ends.
type Synthesizer interface {
	StreamPCM(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// Collect drains s into a single buffer. Audio gathered before an error is
// discarded.
func Collect(ctx context.Context, s Synthesizer, text string) ([]byte, error) {
	pcmCh, errCh := s.StreamPCM(ctx, text)
	var buf []byte
	var firstErr error
	for pcmCh != nil || errCh != nil {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				pcmCh = nil
				continue
			}
			buf = append(buf, b...)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return buf, nil
}
