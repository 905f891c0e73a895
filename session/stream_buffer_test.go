package session

import (
	"errors"
	"testing"

	"fakeaudio/audio"
)

func counting(start, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(start + i)
	}
	return s
}

func TestStreamBufferStates(t *testing.T) {
	b, err := NewStreamBuffer(16000, 2.5)
	if err != nil {
		t.Fatalf("NewStreamBuffer: %v", err)
	}
	if b.WindowSamples() != 40000 {
		t.Fatalf("expected 40000 window samples, got %d", b.WindowSamples())
	}
	if b.State() != StateFilling {
		t.Errorf("new buffer must be filling, got %s", b.State())
	}

	if err := b.Append(audio.Waveform{Samples: make([]float32, 39999), SampleRate: 16000}); err != nil {
		t.Fatal(err)
	}
	if _, ok := b.Drain(); ok {
		t.Fatal("drained a window from an incomplete buffer")
	}

	if err := b.Append(audio.Waveform{Samples: make([]float32, 1), SampleRate: 16000}); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateReady {
		t.Errorf("expected ready, got %s", b.State())
	}

	w, ok := b.Drain()
	if !ok {
		t.Fatal("expected a window")
	}
	if w.Index != 0 || w.StartMs != 0 || w.EndMs != 2500 || w.Waveform.Len() != 40000 {
		t.Errorf("unexpected window %d [%d, %d) with %d samples", w.Index, w.StartMs, w.EndMs, w.Waveform.Len())
	}
	if b.State() != StateFilling || b.Buffered() != 0 {
		t.Errorf("expected an empty filling buffer, got %s with %d samples", b.State(), b.Buffered())
	}
}

// 16 кГц, окно 2.5 с, чанки по 10000 семплов: ровно 2 окна на 10 чанков, без пересечений
func TestStreamBufferCompleteAndNonOverlapping(t *testing.T) {
	b, err := NewStreamBuffer(16000, 2.5)
	if err != nil {
		t.Fatal(err)
	}

	var windows []Window
	for i := 0; i < 10; i++ {
		if err := b.Append(audio.Waveform{Samples: counting(i*10000, 10000), SampleRate: 16000}); err != nil {
			t.Fatal(err)
		}
		for w := range b.Windows() {
			windows = append(windows, w)
		}
	}

	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if b.Buffered() != 20000 {
		t.Errorf("expected 20000 buffered samples, got %d", b.Buffered())
	}
	if b.Appended() != 100000 || b.Drained() != 80000 || b.WindowCount() != 2 {
		t.Errorf("unexpected counters appended=%d drained=%d windows=%d", b.Appended(), b.Drained(), b.WindowCount())
	}

	// Окна идут подряд и покрывают семплы 0..79999 ровно один раз
	next := float32(0)
	for i, w := range windows {
		if w.Index != i {
			t.Errorf("window %d has index %d", i, w.Index)
		}
		for _, s := range w.Waveform.Samples {
			if s != next {
				t.Fatalf("window %d: expected sample %v, got %v", i, next, s)
			}
			next++
		}
	}
	if windows[1].StartMs != windows[0].EndMs {
		t.Errorf("windows are not contiguous: %d vs %d", windows[0].EndMs, windows[1].StartMs)
	}
}

func TestStreamBufferLargeChunk(t *testing.T) {
	b, err := NewStreamBuffer(8000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Append(audio.Waveform{Samples: counting(0, 8000*3+5), SampleRate: 8000}); err != nil {
		t.Fatal(err)
	}

	n := 0
	for w := range b.Windows() {
		if w.Waveform.Samples[0] != float32(n*8000) {
			t.Errorf("window %d starts with %v", n, w.Waveform.Samples[0])
		}
		n++
	}
	if n != 3 || b.Buffered() != 5 {
		t.Errorf("expected 3 windows and 5 buffered samples, got %d and %d", n, b.Buffered())
	}
}

func TestStreamBufferWindowIsNotAliased(t *testing.T) {
	b, err := NewStreamBuffer(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Append(audio.Waveform{Samples: counting(0, 6), SampleRate: 4}); err != nil {
		t.Fatal(err)
	}
	w, _ := b.Drain()
	if err := b.Append(audio.Waveform{Samples: counting(100, 4), SampleRate: 4}); err != nil {
		t.Fatal(err)
	}
	if w.Waveform.Samples[0] != 0 || w.Waveform.Samples[3] != 3 {
		t.Errorf("drained window was overwritten: %v", w.Waveform.Samples)
	}
}

func TestStreamBufferEarlyBreak(t *testing.T) {
	b, err := NewStreamBuffer(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Append(audio.Waveform{Samples: counting(0, 12), SampleRate: 4}); err != nil {
		t.Fatal(err)
	}
	for range b.Windows() {
		break
	}
	if b.Buffered() != 8 {
		t.Errorf("stopping the iterator must leave remaining windows buffered, got %d", b.Buffered())
	}
}

func TestStreamBufferErrors(t *testing.T) {
	if _, err := NewStreamBuffer(0, 2.5); !errors.Is(err, audio.ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
	if _, err := NewStreamBuffer(16000, 0); err == nil {
		t.Error("expected an error for an empty window")
	}

	b, err := NewStreamBuffer(16000, 2.5)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Append(audio.Waveform{Samples: make([]float32, 10), SampleRate: 8000}); !errors.Is(err, ErrRateMismatch) {
		t.Errorf("expected ErrRateMismatch, got %v", err)
	}
	if err := b.Append(audio.Waveform{Samples: make([]float32, 10), SampleRate: -1}); !errors.Is(err, audio.ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
	if b.Appended() != 0 {
		t.Errorf("rejected chunks must not be buffered, got %d", b.Appended())
	}
}
