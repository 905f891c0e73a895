package session

import (
	"errors"

	"fakeaudio/audio"
)

var (
	// ErrRateMismatch чанк пришёл с частотой, отличной от частоты потока
	ErrRateMismatch = errors.New("sample rate mismatch")
	// ErrStreamNotFound поток с таким ID не зарегистрирован
	ErrStreamNotFound = errors.New("stream not found")
)

// BufferState состояние потокового буфера
type BufferState int

const (
	// StateFilling накоплено меньше одного окна
	StateFilling BufferState = iota
	// StateReady можно забрать хотя бы одно окно
	StateReady
)

func (s BufferState) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Window одно непересекающееся окно потока
type Window struct {
	Index    int   // порядковый номер окна в потоке, с 0
	StartMs  int64 // смещение начала окна от начала потока
	EndMs    int64
	Waveform audio.Waveform
}
