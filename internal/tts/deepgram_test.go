package tts

import (
	"context"
	"errors"
	"testing"
	"time"
)

// This is a smoke test for StreamPCM without an API key; it should error quickly
func TestDeepgram_StreamPCM_NoKey(t *testing.T) {
	d := NewDeepgramClient("", "", 16000)
	if d.SampleRate() != 16000 {
		t.Fatalf("sample rate = %d", d.SampleRate())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	pcmCh, errCh := d.StreamPCM(ctx, "hello")
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrMissingKey) {
			t.Fatalf("expected ErrMissingKey, got %v", err)
		}
	case <-pcmCh:
		// ignore
	case <-time.After(300 * time.Millisecond):
		t.Fatalf("timeout waiting for error")
	}
}

func TestDeepgram_DefaultRate(t *testing.T) {
	if got := NewDeepgramClient("k", "", 0).SampleRate(); got != 48000 {
		t.Fatalf("default rate = %d", got)
	}
}

func TestAudioSink_ForwardsCopiesAndSettles(t *testing.T) {
	out := make(chan []byte, 4)
	sink := newAudioSink(context.Background(), out)

	frame := []byte{1, 2, 3, 4}
	if err := sink.Binary(frame); err != nil {
		t.Fatal(err)
	}
	frame[0] = 9
	if got := <-out; got[0] != 1 {
		t.Fatalf("frame not copied: %v", got)
	}
	if err := sink.Binary(nil); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	sink.settle(context.Background(), 30*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("settled after %v, before the idle window", elapsed)
	}
}

func TestAudioSink_SettleWaitsForFirstFrame(t *testing.T) {
	sink := newAudioSink(context.Background(), make(chan []byte, 1))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	start := time.Now()
	sink.settle(ctx, 5*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("settled after %v without any audio", elapsed)
	}
}
