package audio

import (
	"fmt"
	"math"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// resampleTailMs хвост тишины, которым проталкивается задержка фильтра
const resampleTailMs = 50

// leadCache сдвиг ресемплера для пары частот: [src, dst] → выходные семплы
var leadCache sync.Map

// Resample выполняет band-limited ресемплинг сигнала до targetRate.
// Если частоты совпадают, сигнал возвращается без изменений.
// Длина результата всегда round(len * targetRate / srcRate), семпл i исходника
// оказывается на позиции round(i * targetRate / srcRate).
func Resample(w Waveform, targetRate int) (Waveform, error) {
	if w.SampleRate <= 0 || targetRate <= 0 {
		return Waveform{}, fmt.Errorf("%w: source=%d target=%d", ErrInvalidRate, w.SampleRate, targetRate)
	}
	if w.SampleRate == targetRate {
		return w, nil
	}

	want := TargetSamples(targetRate, float64(len(w.Samples))/float64(w.SampleRate))
	if len(w.Samples) == 0 {
		return Waveform{Samples: []float32{}, SampleRate: targetRate}, nil
	}

	lead, err := resamplerLead(w.SampleRate, targetRate)
	if err != nil {
		return Waveform{}, err
	}

	// Ресемплер выдаёт сигнал раньше, чем должен; нули в начале принимают на себя
	// срезанную часть, чтобы не терять начало записи
	ratio := float64(targetRate) / float64(w.SampleRate)
	padIn := 0
	if lead > 0 {
		padIn = int(math.Ceil(float64(lead)/ratio)) + 1
	}
	tail := w.SampleRate*resampleTailMs/1000 + padIn

	input := make([]float64, padIn+len(w.Samples)+tail)
	for i, s := range w.Samples {
		input[padIn+i] = float64(s)
	}

	output, err := resampleOnce(input, w.SampleRate, targetRate)
	if err != nil {
		return Waveform{}, err
	}

	offset := int(math.Round(float64(padIn)*ratio)) - lead
	if offset < 0 {
		offset = 0
	}

	out := make([]float32, want)
	for i := 0; i < want && offset+i < len(output); i++ {
		out[i] = float32(output[offset+i])
	}

	return Waveform{Samples: out, SampleRate: targetRate}, nil
}

// resampleOnce прогоняет весь сигнал через новый экземпляр ресемплера (у него есть состояние фильтра)
func resampleOnce(input []float64, srcRate, dstRate int) ([]float64, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	rest, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush error: %w", err)
	}
	return append(output, rest...), nil
}

// resamplerLead измеряет импульсом, на сколько выходных семплов ресемплер смещает сигнал к началу.
// Отрицательное значение означает задержку. Результат кэшируется для пары частот.
func resamplerLead(srcRate, dstRate int) (int, error) {
	key := [2]int{srcRate, dstRate}
	if v, ok := leadCache.Load(key); ok {
		return v.(int), nil
	}

	// Импульс через 250 мс от начала, секунда сигнала
	pos := srcRate / 4
	input := make([]float64, srcRate)
	input[pos] = 1

	output, err := resampleOnce(input, srcRate, dstRate)
	if err != nil {
		return 0, err
	}

	peak, peakAbs := 0, 0.0
	for i, v := range output {
		if a := math.Abs(v); a > peakAbs {
			peak, peakAbs = i, a
		}
	}
	if peakAbs == 0 {
		return 0, fmt.Errorf("resampler produced no output for %d → %d Hz", srcRate, dstRate)
	}

	expected := int(math.Round(float64(pos) * float64(dstRate) / float64(srcRate)))
	lead := expected - peak

	leadCache.Store(key, lead)
	return lead, nil
}
