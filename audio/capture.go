package audio

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// AudioDevice представляет устройство захвата
type AudioDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Capture захватывает моно сигнал с микрофона и отдаёт его блоками в канал.
// Callback malgo вызывается из потока аудиодрайвера, поэтому блоки только копируются и отправляются.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	deviceID   *malgo.DeviceID
	sampleRate int

	dataChan chan Waveform
	dropped  atomic.Int64 // блоков выброшено из-за полного канала
	mu       sync.Mutex
	running  bool
}

// NewCapture инициализирует контекст miniaudio
func NewCapture(sampleRate int) (*Capture, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRate, sampleRate)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	return &Capture{
		ctx:        ctx,
		sampleRate: sampleRate,
		dataChan:   make(chan Waveform, 256),
	}, nil
}

// ListDevices возвращает список устройств захвата
func (c *Capture) ListDevices() ([]AudioDevice, error) {
	captureDevices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	devices := make([]AudioDevice, 0, len(captureDevices))
	for _, dev := range captureDevices {
		devices = append(devices, AudioDevice{
			ID:   deviceIDToString(dev.ID),
			Name: dev.Name(),
		})
	}
	return devices, nil
}

// SetDeviceByName выбирает устройство по имени (частичное совпадение, без учёта регистра)
func (c *Capture) SetDeviceByName(name string) error {
	if name == "" || name == "default" {
		c.deviceID = nil
		return nil
	}

	devices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return err
	}

	nameLower := strings.ToLower(name)
	for _, dev := range devices {
		if strings.Contains(strings.ToLower(dev.Name()), nameLower) {
			id := dev.ID
			c.deviceID = &id
			log.Printf("Capture device set: %s", dev.Name())
			return nil
		}
	}
	return fmt.Errorf("device not found: %s", name)
}

// Start начинает захват
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("already running")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if c.deviceID != nil {
		deviceConfig.Capture.DeviceID = c.deviceID.Pointer()
	}

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		c.handleFrames(pInputSamples, framecount)
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return fmt.Errorf("failed to init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	c.device = device
	c.running = true
	log.Printf("Microphone capture started (%d Hz, mono)", c.sampleRate)
	return nil
}

// handleFrames конвертирует F32 кадры драйвера в Waveform и отправляет в канал.
// Вызывается из потока драйвера и не должен блокироваться: иначе Uninit в Stop может зависнуть.
func (c *Capture) handleFrames(pInputSamples []byte, framecount uint32) {
	sampleCount := int(framecount)
	if len(pInputSamples) != sampleCount*4 {
		return
	}

	samples := make([]float32, sampleCount)
	for i := 0; i < sampleCount; i++ {
		bits := uint32(pInputSamples[i*4]) | uint32(pInputSamples[i*4+1])<<8 | uint32(pInputSamples[i*4+2])<<16 | uint32(pInputSamples[i*4+3])<<24
		samples[i] = math.Float32frombits(bits)
	}

	select {
	case c.dataChan <- Waveform{Samples: samples, SampleRate: c.sampleRate}:
	default:
		// Читатель не успевает: выбрасываем блок
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Printf("Capture buffer full, dropped %d blocks so far", n)
		}
	}
}

// Stop останавливает захват
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.running = false
	log.Println("Audio capture stopped")
}

// Dropped количество блоков, выброшенных из-за того, что читатель не успевал
func (c *Capture) Dropped() int64 {
	return c.dropped.Load()
}

// Data возвращает канал с блоками семплов
func (c *Capture) Data() <-chan Waveform {
	return c.dataChan
}

// Close освобождает ресурсы
func (c *Capture) Close() {
	c.Stop()
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

func deviceIDToString(id malgo.DeviceID) string {
	// Используем первые 32 байта ID как строку
	var result strings.Builder
	for _, b := range id[:32] {
		if b == 0 {
			break
		}
		result.WriteByte(b)
	}
	return result.String()
}
