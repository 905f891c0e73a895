package audio

import (
	"errors"
	"math"
	"testing"
)

func ramp(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(i%100) / 100
	}
	return s
}

func TestNormalizeLength(t *testing.T) {
	tests := []struct {
		name     string
		rate     int
		samples  int
		duration float64
		want     int
	}{
		{"shorter is padded", 16000, 16000, 2.5, 40000},
		{"longer is truncated", 16000, 100000, 2.5, 40000},
		{"exact", 16000, 40000, 2.5, 40000},
		{"empty is silence", 16000, 0, 2.5, 40000},
		{"rounding", 22050, 10, 0.1, 2205},
		{"fractional rounding", 44100, 10, 1.0 / 3, 14700},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Waveform{Samples: ramp(tt.samples), SampleRate: tt.rate}
			got := Normalize(w, tt.duration)
			if got.Len() != tt.want {
				t.Fatalf("expected %d samples, got %d", tt.want, got.Len())
			}
			if got.SampleRate != tt.rate {
				t.Errorf("sample rate changed: %d", got.SampleRate)
			}
		})
	}
}

func TestNormalizeKeepsHeadAndPadsTail(t *testing.T) {
	w := Waveform{Samples: []float32{1, 2, 3, 4, 5, 6}, SampleRate: 2}
	got := Normalize(w, 2)
	want := []float32{1, 2, 3, 4}
	for i := range want {
		if got.Samples[i] != want[i] {
			t.Fatalf("truncate: expected %v, got %v", want, got.Samples)
		}
	}

	short := Normalize(Waveform{Samples: []float32{7, 8}, SampleRate: 2}, 2)
	wantShort := []float32{7, 8, 0, 0}
	for i := range wantShort {
		if short.Samples[i] != wantShort[i] {
			t.Fatalf("pad: expected %v, got %v", wantShort, short.Samples)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, n := range []int{0, 1, 39999, 40000, 40001, 123456} {
		w := Waveform{Samples: ramp(n), SampleRate: 16000}
		once := Normalize(w, 2.5)
		twice := Normalize(once, 2.5)
		if once.Len() != twice.Len() {
			t.Fatalf("n=%d: length changed %d -> %d", n, once.Len(), twice.Len())
		}
		for i := range once.Samples {
			if once.Samples[i] != twice.Samples[i] {
				t.Fatalf("n=%d: sample %d changed", n, i)
			}
		}
	}
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	in := []float32{1, 2, 3}
	out := Normalize(Waveform{Samples: in, SampleRate: 1}, 3)
	out.Samples[0] = 42
	if in[0] != 1 {
		t.Error("Normalize modified the input slice")
	}
}

func TestHead(t *testing.T) {
	w := Waveform{Samples: ramp(1000), SampleRate: 100}
	if got := Head(w, 2.5); got.Len() != 250 {
		t.Errorf("expected 250 samples, got %d", got.Len())
	}
	if got := Head(w, 0); got.Len() != 1000 {
		t.Errorf("zero limit must keep everything, got %d", got.Len())
	}
	if got := Head(w, 60); got.Len() != 1000 {
		t.Errorf("limit above length must keep everything, got %d", got.Len())
	}
}

func TestFirstChannel(t *testing.T) {
	got := FirstChannel([]float32{1, -1, 2, -2, 3, -3}, 2)
	want := []float32{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestResampleSameRateIsNoop(t *testing.T) {
	w := Waveform{Samples: ramp(1234), SampleRate: 16000}
	got, err := Resample(w, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if &got.Samples[0] != &w.Samples[0] {
		t.Error("expected the input to be returned unchanged")
	}
}

func TestResampleInvalidRate(t *testing.T) {
	cases := []struct{ src, dst int }{{0, 16000}, {-1, 16000}, {16000, 0}, {8000, -8000}}
	for _, c := range cases {
		_, err := Resample(Waveform{Samples: ramp(10), SampleRate: c.src}, c.dst)
		if !errors.Is(err, ErrInvalidRate) {
			t.Errorf("src=%d dst=%d: expected ErrInvalidRate, got %v", c.src, c.dst, err)
		}
	}
}

func TestResamplePreservesDuration(t *testing.T) {
	tests := []struct {
		src, dst, n, want int
	}{
		{8000, 16000, 8000, 16000},
		{44100, 16000, 44100, 16000},
		{48000, 16000, 12345, 4115},
		{22050, 16000, 1000, 726},
	}

	for _, tt := range tests {
		tone := make([]float32, tt.n)
		for i := range tone {
			tone[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(tt.src)))
		}
		got, err := Resample(Waveform{Samples: tone, SampleRate: tt.src}, tt.dst)
		if err != nil {
			t.Fatalf("%d->%d: unexpected error: %v", tt.src, tt.dst, err)
		}
		if got.Len() != tt.want {
			t.Errorf("%d->%d: expected %d samples, got %d", tt.src, tt.dst, tt.want, got.Len())
		}
		if got.SampleRate != tt.dst {
			t.Errorf("expected rate %d, got %d", tt.dst, got.SampleRate)
		}
		for i, s := range got.Samples {
			if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
				t.Fatalf("non-finite sample at %d", i)
			}
		}
	}
}

func TestResampleKeepsTiming(t *testing.T) {
	tests := []struct {
		src, dst, pos int
	}{
		{8000, 16000, 1000},
		{8000, 16000, 37},
		{48000, 16000, 4800},
		{44100, 16000, 4410},
		{22050, 16000, 2205},
	}

	for _, tt := range tests {
		impulse := make([]float32, tt.src/2)
		impulse[tt.pos] = 1

		got, err := Resample(Waveform{Samples: impulse, SampleRate: tt.src}, tt.dst)
		if err != nil {
			t.Fatalf("%d->%d: unexpected error: %v", tt.src, tt.dst, err)
		}

		peak, peakAbs := 0, 0.0
		for i, v := range got.Samples {
			if a := math.Abs(float64(v)); a > peakAbs {
				peak, peakAbs = i, a
			}
		}
		want := int(math.Round(float64(tt.pos) * float64(tt.dst) / float64(tt.src)))
		if peak < want-2 || peak > want+2 {
			t.Errorf("%d->%d: impulse at %d moved to %d, expected %d", tt.src, tt.dst, tt.pos, peak, want)
		}
	}
}

func TestResampleKeepsEnergyOfShortChunks(t *testing.T) {
	meanSquare := func(s []float32) float64 {
		var sum float64
		for _, v := range s {
			sum += float64(v) * float64(v)
		}
		return sum / float64(len(s))
	}

	// 10 мс, 100 мс и 1 с синуса 1 кГц
	for _, n := range []int{80, 800, 8000} {
		tone := make([]float32, n)
		for i := range tone {
			tone[i] = float32(0.5 * math.Sin(2*math.Pi*1000*float64(i)/8000))
		}

		got, err := Resample(Waveform{Samples: tone, SampleRate: 8000}, 16000)
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}

		ratio := meanSquare(got.Samples) / meanSquare(tone)
		if ratio < 0.8 || ratio > 1.2 {
			t.Errorf("n=%d: energy ratio %.3f, expected about 1", n, ratio)
		}
	}
}

func TestResampleSilenceStaysSilent(t *testing.T) {
	got, err := Resample(Waveform{Samples: make([]float32, 8000), SampleRate: 8000}, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rms := CalculateRMS(got.Samples); rms > 1e-6 {
		t.Errorf("expected silence, got rms=%g", rms)
	}
}
