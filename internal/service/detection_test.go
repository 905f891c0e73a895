package service

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"fakeaudio/ai"
	"fakeaudio/audio"
	"fakeaudio/session"
)

type failingScorer struct{}

func (failingScorer) Score(*ai.ModelTensor) (float64, error) {
	return 0, errors.New("onnx: session exploded")
}

func newTestDetector(t *testing.T, scorer ai.Scorer) *Detector {
	t.Helper()
	cfg := DefaultDetectorConfig()
	cfg.MockSeed = 1
	d, err := NewDetectorWithScorer(cfg, scorer)
	if err != nil {
		t.Fatalf("NewDetectorWithScorer: %v", err)
	}
	return d
}

func TestInferFileSilentNarrowband(t *testing.T) {
	d := newTestDetector(t, ai.FixedScorer(0.45))

	v, err := d.InferFile(audio.Waveform{Samples: make([]float32, 8000), SampleRate: 8000})
	if err != nil {
		t.Fatalf("InferFile: %v", err)
	}
	if v.Category != ai.Uncertain || v.IsFake || math.Abs(v.Probability-0.55) > 1e-9 || v.RawProbability != 0.45 {
		t.Errorf("unexpected verdict %+v", v)
	}
}

func TestInferFileUsesFileTiers(t *testing.T) {
	d := newTestDetector(t, ai.FixedScorer(0.85))

	v, err := d.InferFile(audio.Waveform{Samples: make([]float32, 16000), SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	if v.Category != "Likely Fake" || !v.IsFake {
		t.Errorf("unexpected verdict %+v", v)
	}
}

func TestInferFileInvalidRate(t *testing.T) {
	d := newTestDetector(t, ai.FixedScorer(0.5))
	_, err := d.InferFile(audio.Waveform{Samples: make([]float32, 100), SampleRate: 0})
	if !errors.Is(err, audio.ErrInvalidRate) {
		t.Errorf("expected ErrInvalidRate, got %v", err)
	}
}

func TestInferStream(t *testing.T) {
	d := newTestDetector(t, ai.FixedScorer(0.9))

	s, err := d.NewStreamState(16000, 0)
	if err != nil {
		t.Fatalf("NewStreamState: %v", err)
	}

	var all []StreamVerdict
	for i := 0; i < 10; i++ {
		results, err := d.InferStream(s, audio.Waveform{Samples: make([]float32, 10000), SampleRate: 16000}, i)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		all = append(all, results...)
	}

	if len(all) != 2 {
		t.Fatalf("expected 2 verdicts, got %d", len(all))
	}
	for i, v := range all {
		if v.Window != i {
			t.Errorf("verdict %d has window %d", i, v.Window)
		}
		if v.Category != "Fake" || !v.IsFake {
			t.Errorf("unexpected verdict %+v", v.Verdict)
		}
	}
	// Окна закрываются на 4-м и 8-м чанке
	if all[0].Timestamp != 3 || all[1].Timestamp != 7 {
		t.Errorf("timestamps not passed through: %v, %v", all[0].Timestamp, all[1].Timestamp)
	}
	if all[1].StartMs != 2500 || all[1].EndMs != 5000 {
		t.Errorf("unexpected window bounds [%d, %d)", all[1].StartMs, all[1].EndMs)
	}
	if s.Buffer().Buffered() != 20000 {
		t.Errorf("expected 20000 buffered samples, got %d", s.Buffer().Buffered())
	}
}

func TestInferStreamNarrowbandSession(t *testing.T) {
	d := newTestDetector(t, ai.FixedScorer(0.2))

	s, err := d.NewStreamState(8000, 0)
	if err != nil {
		t.Fatal(err)
	}
	results, err := d.InferStream(s, audio.Waveform{Samples: make([]float32, 20000), SampleRate: 8000}, "t0")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].IsFake || results[0].Category != ai.Uncertain {
		t.Errorf("unexpected results %+v", results)
	}

	_, err = d.InferStream(s, audio.Waveform{Samples: make([]float32, 100), SampleRate: 16000}, nil)
	if !errors.Is(err, session.ErrRateMismatch) {
		t.Errorf("expected ErrRateMismatch, got %v", err)
	}
}

func TestInferChunk(t *testing.T) {
	d := newTestDetector(t, ai.FixedScorer(0.75))

	v, err := d.InferChunk(audio.Waveform{Samples: make([]float32, 4410), SampleRate: 44100}, 1234.5)
	if err != nil {
		t.Fatalf("InferChunk: %v", err)
	}
	if v.Category != "Fake" || v.Timestamp != 1234.5 || v.EndMs != 100 {
		t.Errorf("unexpected verdict %+v", v)
	}
}

func TestFallbackOnScorerError(t *testing.T) {
	d := newTestDetector(t, failingScorer{})

	v, err := d.InferFile(audio.Waveform{Samples: make([]float32, 16000), SampleRate: 16000})
	if err != nil {
		t.Fatalf("scorer failure must not be an error: %v", err)
	}
	if v.RawProbability < 0.3 || v.RawProbability >= 0.7 {
		t.Errorf("expected a mock probability, got %v", v.RawProbability)
	}
}

func TestNewDetectorWithoutModel(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.ONNX.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")

	d, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	defer d.Close()

	if d.ModelLoaded() {
		t.Error("model must not be reported as loaded")
	}
	info := d.ModelInfo()
	if info.Backend != "mock" || info.InputShape != [4]int{1, 128, 400, 1} {
		t.Errorf("unexpected model info %+v", info)
	}

	v, err := d.InferFile(audio.Waveform{Samples: make([]float32, 1000), SampleRate: 16000})
	if err != nil {
		t.Fatal(err)
	}
	if v.RawProbability < 0.3 || v.RawProbability >= 0.7 {
		t.Errorf("expected a mock probability, got %v", v.RawProbability)
	}
}

func TestNewDetectorRejectsBadTiers(t *testing.T) {
	cfg := DefaultDetectorConfig()
	cfg.StreamTiers = ai.TierTable{Name: "stream", Tiers: []ai.Tier{{Threshold: 0.3, Fake: "Fake", Real: "Real"}}}
	if _, err := NewDetector(cfg); err == nil {
		t.Error("expected a validation error")
	}
}

func TestInferPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(file, 22050, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 22050},
		Data:           make([]int, 22050*4),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	file.Close()

	d := newTestDetector(t, ai.FixedScorer(0.65))
	v, err := d.InferPath(path)
	if err != nil {
		t.Fatalf("InferPath: %v", err)
	}
	if v.Category != "Possibly Fake" {
		t.Errorf("unexpected verdict %+v", v)
	}
}

// closableScorer классификатор с Close, которым владеет тест
type closableScorer struct {
	ai.FixedScorer
	closed int
}

func (c *closableScorer) Close() error {
	c.closed++
	return nil
}

func TestDetectorDoesNotCloseCallerScorer(t *testing.T) {
	scorer := &closableScorer{FixedScorer: 0.9}
	d, err := NewDetectorWithScorer(DefaultDetectorConfig(), scorer)
	if err != nil {
		t.Fatal(err)
	}

	info := d.ModelInfo()
	if !info.Loaded || info.Backend != "custom" {
		t.Errorf("unexpected model info %+v", info)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if scorer.closed != 0 {
		t.Error("detector closed a scorer it does not own")
	}

	mock, err := NewDetectorWithScorer(DefaultDetectorConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if mock.ModelLoaded() || mock.ModelInfo().Backend != "mock" {
		t.Errorf("nil scorer must select the mock, got %+v", mock.ModelInfo())
	}
	if err := mock.Close(); err != nil {
		t.Errorf("closing a mock detector: %v", err)
	}
}
