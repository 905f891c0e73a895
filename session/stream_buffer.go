package session

import (
	"fmt"
	"iter"

	"fakeaudio/audio"
)

// StreamBuffer накапливает чанки живого сигнала и отдаёт их непересекающимися окнами фиксированной длины.
// Логика: чанки дописываются в хвост, окно снимается с головы; остаток сдвигается в начало массива,
// поэтому память ограничена одним окном плюс самым большим чанком.
// Не потокобезопасен: у буфера один владелец.
type StreamBuffer struct {
	sampleRate    int
	windowSamples int

	pending []float32

	// Счётчики
	appended int64 // семплов получено
	drained  int64 // семплов отдано в окнах
	windows  int   // окон отдано
}

// NewStreamBuffer создаёт буфер для потока с частотой sampleRate и окном windowSeconds
func NewStreamBuffer(sampleRate int, windowSeconds float64) (*StreamBuffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", audio.ErrInvalidRate, sampleRate)
	}
	windowSamples := audio.TargetSamples(sampleRate, windowSeconds)
	if windowSamples <= 0 {
		return nil, fmt.Errorf("window of %v s at %d Hz is empty", windowSeconds, sampleRate)
	}

	return &StreamBuffer{
		sampleRate:    sampleRate,
		windowSamples: windowSamples,
		pending:       make([]float32, 0, windowSamples),
	}, nil
}

// Append дописывает чанк в конец буфера
func (b *StreamBuffer) Append(chunk audio.Waveform) error {
	if chunk.SampleRate <= 0 {
		return fmt.Errorf("%w: %d", audio.ErrInvalidRate, chunk.SampleRate)
	}
	if chunk.SampleRate != b.sampleRate {
		return fmt.Errorf("%w: stream is %d Hz, chunk is %d Hz", ErrRateMismatch, b.sampleRate, chunk.SampleRate)
	}

	b.pending = append(b.pending, chunk.Samples...)
	b.appended += int64(len(chunk.Samples))
	return nil
}

// State возвращает Ready, если накоплено хотя бы одно окно
func (b *StreamBuffer) State() BufferState {
	if len(b.pending) >= b.windowSamples {
		return StateReady
	}
	return StateFilling
}

// Drain снимает с головы ровно одно окно; false, если окно ещё не накоплено
func (b *StreamBuffer) Drain() (Window, bool) {
	if len(b.pending) < b.windowSamples {
		return Window{}, false
	}

	samples := make([]float32, b.windowSamples)
	copy(samples, b.pending[:b.windowSamples])

	// Сдвигаем остаток в начало, чтобы не держать уже отданные семплы
	n := copy(b.pending, b.pending[b.windowSamples:])
	b.pending = b.pending[:n]

	w := Window{
		Index:    b.windows,
		StartMs:  b.drained * 1000 / int64(b.sampleRate),
		EndMs:    (b.drained + int64(b.windowSamples)) * 1000 / int64(b.sampleRate),
		Waveform: audio.Waveform{Samples: samples, SampleRate: b.sampleRate},
	}

	b.drained += int64(b.windowSamples)
	b.windows++
	return w, true
}

// Windows возвращает итератор, снимающий все готовые окна
func (b *StreamBuffer) Windows() iter.Seq[Window] {
	return func(yield func(Window) bool) {
		for {
			w, ok := b.Drain()
			if !ok || !yield(w) {
				return
			}
		}
	}
}

// SampleRate частота потока
func (b *StreamBuffer) SampleRate() int {
	return b.sampleRate
}

// WindowSamples длина окна в семплах
func (b *StreamBuffer) WindowSamples() int {
	return b.windowSamples
}

// Buffered количество семплов, ожидающих следующего окна
func (b *StreamBuffer) Buffered() int {
	return len(b.pending)
}

// Appended общее количество полученных семплов
func (b *StreamBuffer) Appended() int64 {
	return b.appended
}

// Drained общее количество семплов, отданных в окнах
func (b *StreamBuffer) Drained() int64 {
	return b.drained
}

// WindowCount количество отданных окон
func (b *StreamBuffer) WindowCount() int {
	return b.windows
}
