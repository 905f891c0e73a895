package ai

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"fakeaudio/audio"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrSpectrogram возвращается для вырожденного входа спектрального анализа
var ErrSpectrogram = errors.New("spectrogram error")

const (
	// amin нижняя граница мощности перед логарифмом (как в librosa.power_to_db)
	amin = 1e-10
	// defaultTopDB динамический диапазон ниже пика
	defaultTopDB = 80.0
)

// MelConfig конфигурация для вычисления Mel-спектрограммы
type MelConfig struct {
	SampleRate int
	NMels      int
	NFFT       int     // размер окна и FFT
	HopLength  int     // шаг между фреймами
	TopDB      float64 // 0 = 80 dB
}

// Spectrogram decibel-спектрограмма: Values[mel][frame]
type Spectrogram struct {
	Values [][]float32
}

// Bins возвращает количество mel-полос (строк)
func (s Spectrogram) Bins() int {
	return len(s.Values)
}

// Frames возвращает количество временных фреймов (столбцов)
func (s Spectrogram) Frames() int {
	if len(s.Values) == 0 {
		return 0
	}
	return len(s.Values[0])
}

// melFilter треугольный фильтр; веса хранятся только для ненулевого диапазона бинов
type melFilter struct {
	start   int
	weights []float64
}

// MelProcessor вычисляет mel-спектрограмму, совместимую с librosa.feature.melspectrogram
// (center=True, pad_mode=constant, periodic Hann, power=2, Slaney mel) + power_to_db(ref=max).
// Безопасен для конкурентного использования: FFT берётся из пула.
type MelProcessor struct {
	config     MelConfig
	melFilters []melFilter
	window     []float64
	fftPool    sync.Pool
}

// NewMelProcessor создаёт новый процессор
func NewMelProcessor(config MelConfig) (*MelProcessor, error) {
	if config.SampleRate <= 0 || config.NMels <= 0 || config.NFFT <= 0 || config.HopLength <= 0 {
		return nil, fmt.Errorf("%w: invalid parameters sr=%d n_mels=%d n_fft=%d hop=%d",
			ErrSpectrogram, config.SampleRate, config.NMels, config.NFFT, config.HopLength)
	}
	if config.TopDB <= 0 {
		config.TopDB = defaultTopDB
	}

	p := &MelProcessor{
		config:     config,
		melFilters: createMelFilterbank(config.NFFT, config.NMels, config.SampleRate),
		window:     createHannWindow(config.NFFT),
	}
	nfft := config.NFFT
	p.fftPool.New = func() any { return fourier.NewFFT(nfft) }

	return p, nil
}

// Config возвращает конфигурацию процессора
func (p *MelProcessor) Config() MelConfig {
	return p.config
}

// Compute вычисляет decibel mel-спектрограмму; 0 dB соответствует самому громкому бину клипа
func (p *MelProcessor) Compute(w audio.Waveform) (Spectrogram, error) {
	cfg := p.config
	samples := w.Samples

	if w.SampleRate != cfg.SampleRate {
		return Spectrogram{}, fmt.Errorf("%w: waveform is %d Hz, filterbank is %d Hz", ErrSpectrogram, w.SampleRate, cfg.SampleRate)
	}
	if len(samples) == 0 {
		return Spectrogram{}, fmt.Errorf("%w: empty waveform", ErrSpectrogram)
	}
	if len(samples) < cfg.NFFT {
		return Spectrogram{}, fmt.Errorf("%w: n_fft=%d is larger than waveform length %d", ErrSpectrogram, cfg.NFFT, len(samples))
	}
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return Spectrogram{}, fmt.Errorf("%w: non-finite sample at %d", ErrSpectrogram, i)
		}
	}

	// center=true: сигнал дополняется нулями на n_fft/2 с обеих сторон
	pad := cfg.NFFT / 2
	numFrames := 1 + (len(samples)+2*pad-cfg.NFFT)/cfg.HopLength

	fft := p.fftPool.Get().(*fourier.FFT)
	defer p.fftPool.Put(fft)

	frameData := make([]float64, cfg.NFFT)
	coeffs := make([]complex128, cfg.NFFT/2+1)
	powerSpec := make([]float64, cfg.NFFT/2+1)

	melPower := make([][]float64, cfg.NMels)
	for m := range melPower {
		melPower[m] = make([]float64, numFrames)
	}

	maxPower := 0.0
	for frame := 0; frame < numFrames; frame++ {
		frameStart := frame*cfg.HopLength - pad
		for i := 0; i < cfg.NFFT; i++ {
			idx := frameStart + i
			if idx >= 0 && idx < len(samples) {
				frameData[i] = float64(samples[idx]) * p.window[i]
			} else {
				frameData[i] = 0
			}
		}

		coeffs = fft.Coefficients(coeffs, frameData)
		for k := range powerSpec {
			re := real(coeffs[k])
			im := imag(coeffs[k])
			powerSpec[k] = re*re + im*im
		}

		for m, f := range p.melFilters {
			sum := 0.0
			for j, wgt := range f.weights {
				sum += powerSpec[f.start+j] * wgt
			}
			melPower[m][frame] = sum
			if sum > maxPower {
				maxPower = sum
			}
		}
	}

	return p.powerToDB(melPower, maxPower)
}

// powerToDB 10*log10(S/ref) с ref = max(S) и отсечением на top_db ниже пика
func (p *MelProcessor) powerToDB(melPower [][]float64, ref float64) (Spectrogram, error) {
	refDB := 10 * math.Log10(math.Max(amin, ref))

	values := make([][]float32, len(melPower))
	peak := math.Inf(-1)
	for m, row := range melPower {
		values[m] = make([]float32, len(row))
		for t, v := range row {
			db := 10*math.Log10(math.Max(amin, v)) - refDB
			if db > peak {
				peak = db
			}
			values[m][t] = float32(db)
		}
	}

	floor := float32(peak - p.config.TopDB)
	for m := range values {
		for t, v := range values[m] {
			if v < floor {
				values[m][t] = floor
			}
			if math.IsNaN(float64(values[m][t])) || math.IsInf(float64(values[m][t]), 0) {
				return Spectrogram{}, fmt.Errorf("%w: non-finite value at mel=%d frame=%d", ErrSpectrogram, m, t)
			}
		}
	}

	return Spectrogram{Values: values}, nil
}

// CoerceWidth приводит спектрограмму к ровно width фреймам:
// узкая дополняется нулями справа, широкая обрезается справа
func CoerceWidth(s Spectrogram, width int) Spectrogram {
	out := make([][]float32, len(s.Values))
	for m, row := range s.Values {
		out[m] = make([]float32, width)
		copy(out[m], row)
	}
	return Spectrogram{Values: out}
}

// createMelFilterbank создаёт mel-фильтры в шкале Slaney с нормализацией площади
// (librosa.filters.mel с htk=False, norm="slaney", fmin=0, fmax=sr/2)
func createMelFilterbank(nFFT, nMels, sampleRate int) []melFilter {
	numBins := nFFT/2 + 1
	fMax := float64(sampleRate) / 2.0

	// Частоты для каждого FFT bin
	allFreqs := make([]float64, numBins)
	for i := 0; i < numBins; i++ {
		allFreqs[i] = float64(i) * fMax / float64(numBins-1)
	}

	// nMels + 2 точек: левый край, центры, правый край
	mMin := hzToMelSlaney(0)
	mMax := hzToMelSlaney(fMax)
	fPts := make([]float64, nMels+2)
	for i := 0; i < nMels+2; i++ {
		mel := mMin + float64(i)*(mMax-mMin)/float64(nMels+1)
		fPts[i] = melToHzSlaney(mel)
	}

	filters := make([]melFilter, nMels)
	for m := 0; m < nMels; m++ {
		lowerWidth := fPts[m+1] - fPts[m]
		upperWidth := fPts[m+2] - fPts[m+1]
		enorm := 2.0 / (fPts[m+2] - fPts[m])

		weights := make([]float64, numBins)
		first, last := -1, -1
		for k := 0; k < numBins; k++ {
			lower := (allFreqs[k] - fPts[m]) / lowerWidth
			upper := (fPts[m+2] - allFreqs[k]) / upperWidth
			val := math.Min(lower, upper)
			if val <= 0 || math.IsNaN(val) {
				continue
			}
			weights[k] = val * enorm
			if first < 0 {
				first = k
			}
			last = k
		}

		if first < 0 {
			// Пустой фильтр (слишком много mel-полос для данного n_fft)
			filters[m] = melFilter{}
			continue
		}
		filters[m] = melFilter{start: first, weights: weights[first : last+1]}
	}

	return filters
}

// Шкала Slaney: линейная до 1 кГц, логарифмическая выше
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

func hzToMelSlaney(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

func melToHzSlaney(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return melFSp * mel
}

// createHannWindow создаёт периодическое окно Ханна (scipy get_window("hann", fftbins=True))
func createHannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := 0; i < size; i++ {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size)))
	}
	return window
}
