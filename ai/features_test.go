package ai

import (
	"errors"
	"math"
	"os"
	"testing"

	"fakeaudio/audio"
)

func TestExtractShapeInvariant(t *testing.T) {
	ext, err := NewFeatureExtractor(DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("NewFeatureExtractor: %v", err)
	}

	for _, rate := range []int{8000, 16000, 22050, 44100, 48000} {
		for _, seconds := range []float64{0.1, 2.5, 7} {
			n := audio.TargetSamples(rate, seconds)
			tensor, err := ext.Extract(audio.Waveform{Samples: sine(300, rate, n), SampleRate: rate})
			if err != nil {
				t.Fatalf("%d Hz, %vs: %v", rate, seconds, err)
			}
			if tensor.Shape != [4]int{1, 128, 400, 1} {
				t.Errorf("%d Hz, %vs: unexpected shape %v", rate, seconds, tensor.Shape)
			}
			if len(tensor.Data) != 128*400 {
				t.Errorf("%d Hz, %vs: unexpected data length %d", rate, seconds, len(tensor.Data))
			}
		}
	}
}

func TestExtractSilentNarrowband(t *testing.T) {
	ext, err := NewFeatureExtractor(DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("NewFeatureExtractor: %v", err)
	}

	// 1 секунда тишины 8 кГц
	tensor, err := ext.Extract(audio.Waveform{Samples: make([]float32, 8000), SampleRate: 8000})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if tensor.Shape != [4]int{1, 128, 400, 1} {
		t.Fatalf("unexpected shape %v", tensor.Shape)
	}
	for i, v := range tensor.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("non-finite value at %d", i)
		}
	}

	p, err := FixedScorer(0.45).Score(tensor)
	if err != nil {
		t.Fatal(err)
	}
	v := Classify(p, FileTiers())
	if v.Category != Uncertain || v.IsFake || math.Abs(v.Probability-0.55) > 1e-9 {
		t.Errorf("unexpected verdict %+v", v)
	}
}

func TestExtractInvalidRate(t *testing.T) {
	ext, err := NewFeatureExtractor(DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("NewFeatureExtractor: %v", err)
	}
	_, err = ext.Extract(audio.Waveform{Samples: make([]float32, 100), SampleRate: 0})
	if !errors.Is(err, audio.ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
}

func TestFeatureConfigValidate(t *testing.T) {
	if err := DefaultFeatureConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}

	short := DefaultFeatureConfig()
	short.Duration = 0.1 // 1600 семплов < n_fft
	if err := short.Validate(); !errors.Is(err, ErrSpectrogram) {
		t.Errorf("expected ErrSpectrogram, got %v", err)
	}

	rate := DefaultFeatureConfig()
	rate.SampleRate = -1
	if err := rate.Validate(); !errors.Is(err, audio.ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}

	if got := DefaultFeatureConfig().WindowSamples(); got != 40000 {
		t.Errorf("expected 40000 window samples, got %d", got)
	}
}

func TestONNXScorer(t *testing.T) {
	modelPath := os.Getenv("FAKEAUDIO_MODEL_PATH")
	if modelPath == "" {
		t.Skip("FAKEAUDIO_MODEL_PATH not set, skipping ONNX test")
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		t.Skip("model not found, skipping ONNX test")
	}

	scorer, err := NewONNXScorer(ONNXConfig{ModelPath: modelPath, NMels: 128, Width: 400})
	if err != nil {
		t.Fatalf("NewONNXScorer: %v", err)
	}
	defer scorer.Close()

	ext, err := NewFeatureExtractor(DefaultFeatureConfig())
	if err != nil {
		t.Fatal(err)
	}
	tensor, err := ext.Extract(audio.Waveform{Samples: sine(220, 16000, 40000), SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}

	p, err := scorer.Score(tensor)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	t.Logf("probability: %.4f", p)
	if p < 0 || p > 1 {
		t.Errorf("probability %v outside [0, 1]", p)
	}

	if _, err := scorer.Score(&ModelTensor{Shape: [4]int{1, 64, 400, 1}}); !errors.Is(err, ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}

func TestONNXScorerMissingModel(t *testing.T) {
	_, err := NewONNXScorer(ONNXConfig{ModelPath: "/nonexistent/model.onnx", NMels: 128, Width: 400})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}
