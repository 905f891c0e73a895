package ai

import (
	"fmt"

	"fakeaudio/audio"
)

// FeatureConfig параметры извлечения признаков; должны совпадать с параметрами обучения модели
type FeatureConfig struct {
	SampleRate  int     `yaml:"sample_rate" json:"sample_rate"`
	Duration    float64 `yaml:"duration" json:"duration"` // секунды
	NMels       int     `yaml:"n_mels" json:"n_mels"`
	NFFT        int     `yaml:"n_fft" json:"n_fft"`
	HopLength   int     `yaml:"hop_length" json:"hop_length"`
	TargetWidth int     `yaml:"target_width" json:"target_width"`
}

// DefaultFeatureConfig возвращает параметры обученной модели
func DefaultFeatureConfig() FeatureConfig {
	return FeatureConfig{
		SampleRate:  16000,
		Duration:    2.5,
		NMels:       128,
		NFFT:        2048,
		HopLength:   512,
		TargetWidth: 400,
	}
}

// Validate проверяет параметры
func (c FeatureConfig) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample_rate=%d", audio.ErrInvalidRate, c.SampleRate)
	case c.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	case c.NMels <= 0 || c.NFFT <= 0 || c.HopLength <= 0 || c.TargetWidth <= 0:
		return fmt.Errorf("%w: n_mels=%d n_fft=%d hop_length=%d target_width=%d",
			ErrSpectrogram, c.NMels, c.NFFT, c.HopLength, c.TargetWidth)
	case audio.TargetSamples(c.SampleRate, c.Duration) < c.NFFT:
		return fmt.Errorf("%w: %v s at %d Hz is shorter than n_fft=%d", ErrSpectrogram, c.Duration, c.SampleRate, c.NFFT)
	}
	return nil
}

// WindowSamples количество семплов канонического клипа
func (c FeatureConfig) WindowSamples() int {
	return audio.TargetSamples(c.SampleRate, c.Duration)
}

// FeatureExtractor приводит waveform к тензору модели:
// ресемплинг → нормализация длительности → mel-спектрограмма → ширина → тензор
type FeatureExtractor struct {
	config FeatureConfig
	mel    *MelProcessor
}

// NewFeatureExtractor создаёт экстрактор
func NewFeatureExtractor(config FeatureConfig) (*FeatureExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	mel, err := NewMelProcessor(MelConfig{
		SampleRate: config.SampleRate,
		NMels:      config.NMels,
		NFFT:       config.NFFT,
		HopLength:  config.HopLength,
	})
	if err != nil {
		return nil, err
	}

	return &FeatureExtractor{config: config, mel: mel}, nil
}

// Config возвращает параметры экстрактора
func (e *FeatureExtractor) Config() FeatureConfig {
	return e.config
}

// Extract вычисляет тензор формы (1, NMels, TargetWidth, 1) для waveform любой частоты и длины
func (e *FeatureExtractor) Extract(w audio.Waveform) (*ModelTensor, error) {
	resampled, err := audio.Resample(w, e.config.SampleRate)
	if err != nil {
		return nil, err
	}

	canonical := audio.Normalize(resampled, e.config.Duration)

	spec, err := e.mel.Compute(canonical)
	if err != nil {
		return nil, err
	}

	return Package(CoerceWidth(spec, e.config.TargetWidth), e.config.NMels, e.config.TargetWidth)
}
