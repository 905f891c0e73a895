package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat возвращается, если контейнер не распознан
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format контейнер аудиофайла
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Info описание аудиофайла без декодирования в Waveform
type Info struct {
	Format     Format  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Duration   float64 `json:"duration"` // секунды
}

// Load читает файл, берёт первый канал, ограничивает длительность maxSeconds (0 = весь файл)
// и приводит частоту к targetRate (0 = исходная частота).
func Load(path string, targetRate int, maxSeconds float64) (Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("failed to read audio file: %w", err)
	}
	return LoadBytes(data, targetRate, maxSeconds)
}

// LoadBytes то же, что Load, но для содержимого файла в памяти
func LoadBytes(data []byte, targetRate int, maxSeconds float64) (Waveform, error) {
	var (
		w   Waveform
		err error
	)

	switch DetectFormat(data) {
	case FormatWAV:
		w, _, err = decodeWAV(data, maxSeconds)
	case FormatMP3:
		w, err = decodeMP3(data, maxSeconds)
	default:
		return Waveform{}, ErrUnsupportedFormat
	}
	if err != nil {
		return Waveform{}, err
	}

	// librosa обрезает по длительности до ресемплинга
	w = Head(w, maxSeconds)

	if targetRate > 0 {
		return Resample(w, targetRate)
	}
	return w, nil
}

// Probe проверяет, что файл читается, и возвращает его параметры
func Probe(data []byte) (Info, error) {
	switch DetectFormat(data) {
	case FormatWAV:
		w, channels, err := decodeWAV(data, 0)
		if err != nil {
			return Info{}, err
		}
		return Info{
			Format:     FormatWAV,
			SampleRate: w.SampleRate,
			Channels:   channels,
			Duration:   w.Duration().Seconds(),
		}, nil
	case FormatMP3:
		reader, err := NewMP3Reader(bytes.NewReader(data))
		if err != nil {
			return Info{}, err
		}
		return Info{
			Format:     FormatMP3,
			SampleRate: reader.SampleRate(),
			Channels:   reader.Channels(),
			Duration:   reader.Duration(),
		}, nil
	default:
		return Info{}, ErrUnsupportedFormat
	}
}

// DetectFormat определяет контейнер по сигнатуре
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG frame sync
		return FormatMP3
	default:
		return ""
	}
}

// decodeWAV декодирует PCM/float WAV и возвращает первый канал
func decodeWAV(data []byte, maxSeconds float64) (Waveform, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return Waveform{}, 0, fmt.Errorf("%w: invalid WAV file", ErrUnsupportedFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Waveform{}, 0, fmt.Errorf("failed to decode WAV: %w", err)
	}

	channels := int(decoder.NumChans)
	sampleRate := int(decoder.SampleRate)
	if sampleRate <= 0 {
		return Waveform{}, 0, fmt.Errorf("%w: WAV header declares %d Hz", ErrInvalidRate, sampleRate)
	}
	if channels <= 0 {
		return Waveform{}, 0, fmt.Errorf("%w: WAV header declares %d channels", ErrUnsupportedFormat, channels)
	}

	frames := len(buf.Data) / channels
	if maxSeconds > 0 {
		if limit := TargetSamples(sampleRate, maxSeconds); frames > limit {
			frames = limit
		}
	}

	isFloat := decoder.WavAudioFormat == 3
	bitDepth := int(decoder.BitDepth)
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		samples[i] = pcmToFloat(buf.Data[i*channels], bitDepth, isFloat)
	}

	return Waveform{Samples: samples, SampleRate: sampleRate}, channels, nil
}

// pcmToFloat конвертирует целочисленный семпл go-audio в [-1.0, 1.0]
func pcmToFloat(v, bitDepth int, isFloat bool) float32 {
	switch {
	case isFloat && bitDepth == 32:
		return math.Float32frombits(uint32(int32(v)))
	case bitDepth == 8:
		// 8-bit WAV беззнаковый
		return float32(v-128) / 128.0
	default:
		return float32(float64(v) / float64(int64(1)<<(bitDepth-1)))
	}
}

func decodeMP3(data []byte, maxSeconds float64) (Waveform, error) {
	reader, err := NewMP3Reader(bytes.NewReader(data))
	if err != nil {
		return Waveform{}, err
	}

	maxFrames := 0
	if maxSeconds > 0 {
		maxFrames = TargetSamples(reader.SampleRate(), maxSeconds)
	}

	samples, err := reader.ReadFirstChannel(maxFrames)
	if err != nil {
		return Waveform{}, err
	}
	return Waveform{Samples: samples, SampleRate: reader.SampleRate()}, nil
}
