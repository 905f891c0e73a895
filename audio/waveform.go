// Package audio содержит представление аудиосигнала и операции над ним:
// загрузку файлов, ресемплинг, нормализацию длительности и захват с микрофона.
package audio

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidRate возвращается при нулевой или отрицательной частоте дискретизации
var ErrInvalidRate = errors.New("invalid sample rate")

// Waveform моно аудиосигнал с частотой дискретизации
type Waveform struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sampleRate"` // Hz
}

// Len возвращает количество семплов
func (w Waveform) Len() int {
	return len(w.Samples)
}

// Duration возвращает длительность сигнала
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// TargetSamples возвращает round(rate * seconds)
func TargetSamples(rate int, seconds float64) int {
	n := int(math.Round(float64(rate) * seconds))
	if n < 0 {
		return 0
	}
	return n
}

// Normalize приводит сигнал к точной длительности.
// Длинный сигнал обрезается с конца (начало сохраняется), короткий дополняется нулями в хвосте.
// Пустой вход трактуется как тишина. Входной срез не модифицируется.
func Normalize(w Waveform, seconds float64) Waveform {
	target := TargetSamples(w.SampleRate, seconds)
	out := make([]float32, target)
	copy(out, w.Samples)
	return Waveform{Samples: out, SampleRate: w.SampleRate}
}

// FirstChannel извлекает первый канал из interleaved данных
func FirstChannel(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		mono[i] = interleaved[i*channels]
	}
	return mono
}

// Head возвращает первые maxSeconds секунд сигнала (0 = без ограничения)
func Head(w Waveform, maxSeconds float64) Waveform {
	if maxSeconds <= 0 || w.SampleRate <= 0 {
		return w
	}
	limit := TargetSamples(w.SampleRate, maxSeconds)
	if len(w.Samples) <= limit {
		return w
	}
	return Waveform{Samples: w.Samples[:limit], SampleRate: w.SampleRate}
}

// CalculateRMS вычисляет RMS для семплов
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
