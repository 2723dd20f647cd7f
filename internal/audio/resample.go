package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Converter changes the sample rate of a mono stream. It keeps filter state
// between calls and must only be used from one goroutine.
type Converter struct {
	from, to int
	r        resampling.Resampler
}

// NewConverter returns a converter from one rate to another. Equal rates
// yield a pass-through converter.
func NewConverter(from, to int) (*Converter, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", from, to)
	}
	c := &Converter{from: from, to: to}
	if from == to {
		return c, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler %d -> %d: %w", from, to, err)
	}
	c.r = r
	return c, nil
}

// Passthrough reports whether the converter leaves samples untouched.
func (c *Converter) Passthrough() bool { return c.r == nil }

// Float32 resamples float samples.
func (c *Converter) Float32(in []float32) ([]float32, error) {
	if c.r == nil {
		return in, nil
	}
	buf := make([]float64, len(in))
	for i, s := range in {
		buf[i] = float64(s)
	}
	out, err := c.r.Process(buf)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}
	res := make([]float32, len(out))
	for i, s := range out {
		res[i] = float32(s)
	}
	return res, nil
}

// Int16 resamples PCM16 samples.
func (c *Converter) Int16(in []int16) ([]int16, error) {
	if c.r == nil {
		return in, nil
	}
	f := make([]float32, len(in))
	for i, s := range in {
		f[i] = float32(s) / 32768
	}
	out, err := c.Float32(f)
	if err != nil {
		return nil, err
	}
	return FloatToInt16(out), nil
}
