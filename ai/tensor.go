package ai

import (
	"errors"
	"fmt"
)

// ErrShape возвращается, если спектрограмма не совпадает с ожидаемой формой входа модели
var ErrShape = errors.New("shape error")

// ModelTensor вход модели в раскладке NHWC: (batch=1, mel, frames, channel=1).
// Data хранится построчно: индекс элемента (m, t) = m*Shape[2] + t.
type ModelTensor struct {
	Shape [4]int
	Data  []float32
}

// At возвращает значение для mel-полосы m и фрейма t
func (t *ModelTensor) At(m, frame int) float32 {
	return t.Data[m*t.Shape[2]+frame]
}

// Package упаковывает спектрограмму (nMels × width) в тензор (1, nMels, width, 1)
func Package(s Spectrogram, nMels, width int) (*ModelTensor, error) {
	if s.Bins() != nMels || s.Frames() != width {
		return nil, fmt.Errorf("%w: expected %dx%d spectrogram, got %dx%d", ErrShape, nMels, width, s.Bins(), s.Frames())
	}

	data := make([]float32, 0, nMels*width)
	for m, row := range s.Values {
		if len(row) != width {
			return nil, fmt.Errorf("%w: ragged row %d has %d frames", ErrShape, m, len(row))
		}
		data = append(data, row...)
	}

	return &ModelTensor{
		Shape: [4]int{1, nMels, width, 1},
		Data:  data,
	}, nil
}
