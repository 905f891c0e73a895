package session

import (
	"time"

	"github.com/google/uuid"

	"fakeaudio/audio"
)

// Stream состояние одного потокового анализа: буфер и идентификатор.
// Принадлежит одному владельцу (WebSocket/gRPC соединение или запись в Manager).
type Stream struct {
	ID        string
	CreatedAt time.Time

	buffer *StreamBuffer
}

// NewStream создаёт поток для клиента, присылающего аудио с частотой sampleRate
func NewStream(sampleRate int, windowSeconds float64) (*Stream, error) {
	buffer, err := NewStreamBuffer(sampleRate, windowSeconds)
	if err != nil {
		return nil, err
	}

	return &Stream{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		buffer:    buffer,
	}, nil
}

// Buffer возвращает буфер потока
func (s *Stream) Buffer() *StreamBuffer {
	return s.buffer
}

// SampleRate частота, заявленная клиентом при создании потока
func (s *Stream) SampleRate() int {
	return s.buffer.SampleRate()
}

// Append дописывает чанк в буфер
func (s *Stream) Append(chunk audio.Waveform) error {
	return s.buffer.Append(chunk)
}
