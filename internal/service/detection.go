package service

import (
	"fmt"
	"io"
	"log"
	"time"

	"fakeaudio/ai"
	"fakeaudio/audio"
	"fakeaudio/session"
)

// DetectorConfig параметры детектора
type DetectorConfig struct {
	Features    ai.FeatureConfig
	FileTiers   ai.TierTable
	StreamTiers ai.TierTable
	ONNX        ai.ONNXConfig // ModelPath пустой = сразу заглушка
	MockSeed    uint64
}

// DefaultDetectorConfig возвращает конфигурацию по умолчанию
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Features:    ai.DefaultFeatureConfig(),
		FileTiers:   ai.FileTiers(),
		StreamTiers: ai.StreamTiers(),
		MockSeed:    uint64(time.Now().UnixNano()),
	}
}

// StreamVerdict вердикт для одного окна потока
type StreamVerdict struct {
	ai.Verdict
	Window    int   `json:"window"`
	StartMs   int64 `json:"start_ms"`
	EndMs     int64 `json:"end_ms"`
	Timestamp any   `json:"timestamp"` // значение клиента, без изменений
}

// Detector фасад: файл, поток и одиночный чанк → вердикт.
// Если модель недоступна или падает, используется заглушка; такие случаи не считаются ошибкой.
type Detector struct {
	extractor   *ai.FeatureExtractor
	scorer      ai.Scorer
	fallback    ai.Scorer
	closer      io.Closer // модель, которой владеет детектор; nil для заглушки и внешних классификаторов
	info        ai.ModelInfo
	fileTiers   ai.TierTable
	streamTiers ai.TierTable
}

// NewDetector загружает ONNX модель; при неудаче переходит на заглушку
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	if cfg.ONNX.ModelPath == "" {
		log.Println("[Detector] No model configured, using mock predictions")
		return newDetector(cfg, nil, mockInfo(cfg), nil)
	}

	onnxCfg := cfg.ONNX
	onnxCfg.NMels = cfg.Features.NMels
	onnxCfg.Width = cfg.Features.TargetWidth

	onnx, err := ai.NewONNXScorer(onnxCfg)
	if err != nil {
		log.Printf("[Detector] Failed to load model, using mock predictions: %v", err)
		info := mockInfo(cfg)
		info.ModelPath = cfg.ONNX.ModelPath
		return newDetector(cfg, nil, info, nil)
	}

	d, err := newDetector(cfg, onnx, onnx.Info(), onnx)
	if err != nil {
		onnx.Close()
		return nil, err
	}
	return d, nil
}

// NewDetectorWithScorer создаёт детектор с заданным классификатором (nil = заглушка).
// Классификатором владеет вызывающий: Close детектора его не закрывает.
func NewDetectorWithScorer(cfg DetectorConfig, scorer ai.Scorer) (*Detector, error) {
	info := mockInfo(cfg)
	if scorer != nil {
		info.Loaded = true
		info.Backend = "custom"
	}
	return newDetector(cfg, scorer, info, nil)
}

func mockInfo(cfg DetectorConfig) ai.ModelInfo {
	return ai.ModelInfo{
		Backend:    "mock",
		InputShape: [4]int{1, cfg.Features.NMels, cfg.Features.TargetWidth, 1},
	}
}

func newDetector(cfg DetectorConfig, scorer ai.Scorer, info ai.ModelInfo, closer io.Closer) (*Detector, error) {
	if err := cfg.FileTiers.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.StreamTiers.Validate(); err != nil {
		return nil, err
	}

	extractor, err := ai.NewFeatureExtractor(cfg.Features)
	if err != nil {
		return nil, fmt.Errorf("invalid feature config: %w", err)
	}

	fallback := ai.NewMockScorer(cfg.MockSeed)
	if scorer == nil {
		scorer = fallback
	}

	return &Detector{
		extractor:   extractor,
		scorer:      scorer,
		fallback:    fallback,
		closer:      closer,
		info:        info,
		fileTiers:   cfg.FileTiers,
		streamTiers: cfg.StreamTiers,
	}, nil
}

// Close освобождает модель
func (d *Detector) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// ModelInfo описание используемой модели
func (d *Detector) ModelInfo() ai.ModelInfo {
	return d.info
}

// ModelLoaded true, если используется настоящая модель
func (d *Detector) ModelLoaded() bool {
	return d.info.Loaded
}

// Features параметры извлечения признаков
func (d *Detector) Features() ai.FeatureConfig {
	return d.extractor.Config()
}

// InferFile классифицирует клип целиком (файловые уровни уверенности)
func (d *Detector) InferFile(w audio.Waveform) (ai.Verdict, error) {
	p, err := d.predict(w)
	if err != nil {
		return ai.Verdict{}, err
	}
	return ai.Classify(p, d.fileTiers), nil
}

// InferPath загружает файл (первые Duration секунд, частота модели) и классифицирует его
func (d *Detector) InferPath(path string) (ai.Verdict, error) {
	cfg := d.extractor.Config()
	w, err := audio.Load(path, cfg.SampleRate, cfg.Duration)
	if err != nil {
		return ai.Verdict{}, err
	}
	return d.InferFile(w)
}

// NewStreamState создаёт состояние потока; windowDuration <= 0 = длительность клипа модели
func (d *Detector) NewStreamState(rate int, windowDuration float64) (*session.Stream, error) {
	if windowDuration <= 0 {
		windowDuration = d.extractor.Config().Duration
	}
	return session.NewStream(rate, windowDuration)
}

// InferStream дописывает чанк в поток и классифицирует все накопившиеся окна.
// Возвращает пустой срез, пока окно не накоплено.
func (d *Detector) InferStream(s *session.Stream, chunk audio.Waveform, timestamp any) ([]StreamVerdict, error) {
	if err := s.Append(chunk); err != nil {
		return nil, err
	}

	results := make([]StreamVerdict, 0, 1)
	for w := range s.Buffer().Windows() {
		p, err := d.predict(w.Waveform)
		if err != nil {
			return results, fmt.Errorf("window %d: %w", w.Index, err)
		}
		results = append(results, StreamVerdict{
			Verdict:   ai.Classify(p, d.streamTiers),
			Window:    w.Index,
			StartMs:   w.StartMs,
			EndMs:     w.EndMs,
			Timestamp: timestamp,
		})
	}
	return results, nil
}

// InferChunk классифицирует один чанк без состояния (потоковые уровни уверенности)
func (d *Detector) InferChunk(w audio.Waveform, timestamp any) (StreamVerdict, error) {
	p, err := d.predict(w)
	if err != nil {
		return StreamVerdict{}, err
	}
	return StreamVerdict{
		Verdict:   ai.Classify(p, d.streamTiers),
		EndMs:     w.Duration().Milliseconds(),
		Timestamp: timestamp,
	}, nil
}

// predict: признаки → вероятность; ошибка модели заменяется ответом заглушки
func (d *Detector) predict(w audio.Waveform) (float64, error) {
	tensor, err := d.extractor.Extract(w)
	if err != nil {
		return 0, err
	}

	p, err := d.scorer.Score(tensor)
	if err != nil {
		log.Printf("[Detector] Model inference failed, using mock prediction: %v", err)
		p, _ = d.fallback.Score(tensor)
	}
	return p, nil
}
