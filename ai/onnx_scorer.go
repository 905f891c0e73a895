package ai

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrModelUnavailable возвращается, если модель или ONNX Runtime не найдены
var ErrModelUnavailable = errors.New("model unavailable")

// ONNXConfig конфигурация ONNX классификатора
type ONNXConfig struct {
	ModelPath   string // Путь к ONNX модели (Keras → ONNX, вход NHWC)
	LibraryPath string // Путь к libonnxruntime; пусто = ONNXRUNTIME_SHARED_LIBRARY_PATH / стандартные места
	NMels       int
	Width       int
}

// ModelInfo описание загруженной модели
type ModelInfo struct {
	Loaded     bool   `json:"model_loaded"`
	Backend    string `json:"backend"` // "onnx" или "mock"
	ModelPath  string `json:"model_path,omitempty"`
	InputName  string `json:"input_name,omitempty"`
	OutputName string `json:"output_name,omitempty"`
	InputShape [4]int `json:"input_shape"`
}

// ONNXScorer классификатор на базе ONNX Runtime.
// Одна сессия на процесс; вызовы Score сериализуются мьютексом.
type ONNXScorer struct {
	session    *ort.DynamicAdvancedSession
	config     ONNXConfig
	inputName  string
	outputName string

	mu sync.Mutex
}

// NewONNXScorer загружает модель
func NewONNXScorer(config ONNXConfig) (*ONNXScorer, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path is empty", ErrModelUnavailable)
	}
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: model file not found: %s", ErrModelUnavailable, config.ModelPath)
	}
	if config.NMels <= 0 || config.Width <= 0 {
		return nil, fmt.Errorf("%w: invalid input shape %dx%d", ErrShape, config.NMels, config.Width)
	}

	if err := initONNXRuntime(config.LibraryPath); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize ONNX Runtime: %v", ErrModelUnavailable, err)
	}

	// Имена входа/выхода зависят от конвертера (tf2onnx даёт "input_1", "dense_1" и т.п.)
	inputs, outputs, err := ort.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("%w: model has %d inputs and %d outputs", ErrShape, len(inputs), len(outputs))
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	inputName := inputs[0].Name
	outputName := outputs[0].Name
	session, err := ort.NewDynamicAdvancedSession(
		config.ModelPath,
		[]string{inputName},
		[]string{outputName},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.Printf("[ONNX] Model loaded: %s (input=%s, output=%s, shape=1x%dx%dx1)",
		config.ModelPath, inputName, outputName, config.NMels, config.Width)

	return &ONNXScorer{
		session:    session,
		config:     config,
		inputName:  inputName,
		outputName: outputName,
	}, nil
}

// Score запускает модель и возвращает первое значение выхода (sigmoid)
func (s *ONNXScorer) Score(t *ModelTensor) (float64, error) {
	want := [4]int{1, s.config.NMels, s.config.Width, 1}
	if t == nil || t.Shape != want || len(t.Data) != want[1]*want[2] {
		return 0, fmt.Errorf("%w: model expects %v", ErrShape, want)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return 0, fmt.Errorf("%w: session closed", ErrModelUnavailable)
	}

	inputShape := ort.NewShape(1, int64(t.Shape[1]), int64(t.Shape[2]), 1)
	inputTensor, err := ort.NewTensor(inputShape, t.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return 0, fmt.Errorf("failed to run inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	data := outputTensor.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("empty model output")
	}

	return float64(data[0]), nil
}

// Info возвращает описание модели
func (s *ONNXScorer) Info() ModelInfo {
	return ModelInfo{
		Loaded:     true,
		Backend:    "onnx",
		ModelPath:  s.config.ModelPath,
		InputName:  s.inputName,
		OutputName: s.outputName,
		InputShape: [4]int{1, s.config.NMels, s.config.Width, 1},
	}
}

// Close освобождает сессию
func (s *ONNXScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

var (
	onnxInitMu      sync.Mutex
	onnxInitialized bool
)

// initONNXRuntime инициализирует ONNX Runtime один раз на процесс
func initONNXRuntime(libPath string) error {
	onnxInitMu.Lock()
	defer onnxInitMu.Unlock()

	if onnxInitialized {
		return nil
	}

	if libPath == "" {
		libPath = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}

	// Если путь не задан, ищем в стандартных местах
	if libPath == "" {
		searchPaths := []string{
			"./libonnxruntime.so",
			"./libonnxruntime.dylib",
			"./onnxruntime.dll",
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
			"/opt/homebrew/lib/libonnxruntime.dylib",
		}
		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				libPath = path
				break
			}
		}
	}

	if libPath == "" {
		return fmt.Errorf("ONNX Runtime library not found")
	}

	log.Printf("[ONNX] Using ONNX Runtime library: %s", libPath)
	ort.SetSharedLibraryPath(libPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}

	onnxInitialized = true
	log.Println("[ONNX] Runtime initialized successfully")
	return nil
}
