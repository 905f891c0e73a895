package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Reader декодирует MP3 чистым Go (без FFmpeg)
type MP3Reader struct {
	decoder    *mp3.Decoder
	sampleRate int
	length     int64 // длина в байтах (signed 16-bit stereo PCM)
}

// NewMP3Reader создаёт декодер поверх потока
func NewMP3Reader(r io.Reader) (*MP3Reader, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	return &MP3Reader{
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		length:     decoder.Length(),
	}, nil
}

// SampleRate возвращает частоту дискретизации
func (r *MP3Reader) SampleRate() int {
	return r.sampleRate
}

// Channels возвращает количество каналов (go-mp3 всегда декодирует в стерео)
func (r *MP3Reader) Channels() int {
	return 2
}

// Duration возвращает длительность в секундах
func (r *MP3Reader) Duration() float64 {
	if r.sampleRate == 0 || r.length <= 0 {
		return 0
	}
	// 4 байта на фрейм (16-bit stereo)
	return float64(r.length/4) / float64(r.sampleRate)
}

// ReadFirstChannel читает не более maxFrames фреймов (0 = все) и возвращает левый канал
func (r *MP3Reader) ReadFirstChannel(maxFrames int) ([]float32, error) {
	var reader io.Reader = r.decoder
	if maxFrames > 0 {
		reader = io.LimitReader(r.decoder, int64(maxFrames)*4)
	}

	pcmData, err := io.ReadAll(reader)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read PCM data: %w", err)
	}

	numFrames := len(pcmData) / 4
	left := make([]float32, numFrames)
	for i := 0; i < numFrames; i++ {
		// signed 16-bit little-endian, левый канал
		sample := int16(binary.LittleEndian.Uint16(pcmData[i*4:]))
		left[i] = float32(sample) / 32768.0
	}

	return left, nil
}
