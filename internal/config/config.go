package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fakeaudio/ai"
	"fakeaudio/internal/service"
)

// Config конфигурация сервиса.
// Приоритет: значения по умолчанию < YAML файл < переменные FAKEAUDIO_* < явно заданные флаги.
type Config struct {
	Port     string `yaml:"port"`
	GRPCAddr string `yaml:"grpc_addr"` // unix:/path, npipe:\\.\pipe\name или host:port; пусто = выключен

	ModelPath   string `yaml:"model_path"`
	ModelURL    string `yaml:"model_url"`    // скачать модель, если её нет по ModelPath
	ModelSHA256 string `yaml:"model_sha256"` // hex; пусто = не проверять
	ONNXLibrary string `yaml:"onnx_library"`
	MockSeed    uint64 `yaml:"mock_seed"` // 0 = от времени запуска

	Features    ai.FeatureConfig `yaml:"features"`
	FileTiers   ai.TierTable     `yaml:"file_tiers"`
	StreamTiers ai.TierTable     `yaml:"stream_tiers"`

	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`
	MaxUploadMB       int           `yaml:"max_upload_mb"`

	// Позиционные аргументы после флагов
	Args []string `yaml:"-"`
}

// Default возвращает конфигурацию по умолчанию
func Default() Config {
	return Config{
		Port:              "8000",
		ModelPath:         "models/fake_audio_detector.onnx",
		Features:          ai.DefaultFeatureConfig(),
		FileTiers:         ai.FileTiers(),
		StreamTiers:       ai.StreamTiers(),
		StreamIdleTimeout: 5 * time.Minute,
		MaxUploadMB:       50,
	}
}

// Detector параметры детектора из конфигурации
func (c *Config) Detector() service.DetectorConfig {
	det := service.DefaultDetectorConfig()
	det.Features = c.Features
	det.FileTiers = c.FileTiers
	det.StreamTiers = c.StreamTiers
	det.ONNX = ai.ONNXConfig{
		ModelPath:   c.ModelPath,
		LibraryPath: c.ONNXLibrary,
	}
	if c.MockSeed != 0 {
		det.MockSeed = c.MockSeed
	}
	return det
}

// Load разбирает аргументы командной строки процесса
func Load() (*Config, error) {
	return Parse(os.Args[0], os.Args[1:])
}

// Parse разбирает args, читает YAML (-config или FAKEAUDIO_CONFIG) и применяет переменные окружения
func Parse(name string, args []string) (*Config, error) {
	def := Default()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("FAKEAUDIO_CONFIG"), "Path to YAML config file")
	port := fs.String("port", def.Port, "HTTP server port")
	grpcAddr := fs.String("grpc", def.GRPCAddr, "gRPC address (unix:/path, npipe:name or host:port)")
	modelPath := fs.String("model", def.ModelPath, "Path to ONNX model")
	modelURL := fs.String("model-url", def.ModelURL, "URL to download the model from when it is missing")
	onnxLib := fs.String("onnx-lib", def.ONNXLibrary, "Path to ONNX Runtime shared library")
	duration := fs.Float64("duration", def.Features.Duration, "Analysis window in seconds")
	idle := fs.Duration("stream-idle", def.StreamIdleTimeout, "Idle timeout for HTTP streams")
	seed := fs.Uint64("seed", def.MockSeed, "Seed for mock predictions (0 = random)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := loadFile(*configPath)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)

	// Явно заданные флаги перекрывают файл и окружение
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "grpc":
			cfg.GRPCAddr = *grpcAddr
		case "model":
			cfg.ModelPath = *modelPath
		case "model-url":
			cfg.ModelURL = *modelURL
		case "onnx-lib":
			cfg.ONNXLibrary = *onnxLib
		case "duration":
			cfg.Features.Duration = *duration
		case "stream-idle":
			cfg.StreamIdleTimeout = *idle
		case "seed":
			cfg.MockSeed = *seed
		}
	})
	cfg.Args = fs.Args()

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("config file not found: %w", err)
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Port, "FAKEAUDIO_PORT")
	overrideString(&cfg.GRPCAddr, "FAKEAUDIO_GRPC_ADDR")
	overrideString(&cfg.ModelPath, "FAKEAUDIO_MODEL_PATH")
	overrideString(&cfg.ModelURL, "FAKEAUDIO_MODEL_URL")
	overrideString(&cfg.ModelSHA256, "FAKEAUDIO_MODEL_SHA256")
	overrideString(&cfg.ONNXLibrary, "FAKEAUDIO_ONNX_LIBRARY")
	overrideUint(&cfg.MockSeed, "FAKEAUDIO_MOCK_SEED")
	overrideInt(&cfg.Features.SampleRate, "FAKEAUDIO_SAMPLE_RATE")
	overrideFloat(&cfg.Features.Duration, "FAKEAUDIO_DURATION")
	overrideInt(&cfg.Features.NMels, "FAKEAUDIO_N_MELS")
	overrideInt(&cfg.Features.NFFT, "FAKEAUDIO_N_FFT")
	overrideInt(&cfg.Features.HopLength, "FAKEAUDIO_HOP_LENGTH")
	overrideInt(&cfg.Features.TargetWidth, "FAKEAUDIO_TARGET_WIDTH")
	overrideDuration(&cfg.StreamIdleTimeout, "FAKEAUDIO_STREAM_IDLE_TIMEOUT")
	overrideInt(&cfg.MaxUploadMB, "FAKEAUDIO_MAX_UPLOAD_MB")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideUint(target *uint64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideDuration(target *time.Duration, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port must not be empty")
	}
	if err := cfg.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if err := cfg.FileTiers.Validate(); err != nil {
		return err
	}
	if err := cfg.StreamTiers.Validate(); err != nil {
		return err
	}
	if cfg.MaxUploadMB <= 0 {
		return errors.New("max_upload_mb must be positive")
	}
	if cfg.StreamIdleTimeout < 0 {
		return errors.New("stream_idle_timeout must not be negative")
	}
	return nil
}
