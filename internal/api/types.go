package api

import (
	"errors"
	"net/http"

	"fakeaudio/ai"
	"fakeaudio/audio"
	"fakeaudio/internal/service"
	"fakeaudio/session"
)

// Message сообщение realtime протокола (WebSocket и gRPC)
type Message struct {
	Type string `json:"type"`

	// start / audio
	SessionID  string    `json:"sessionId,omitempty"`
	SampleRate int       `json:"sampleRate,omitempty"`
	AudioData  []float32 `json:"audioData,omitempty"`
	Timestamp  any       `json:"timestamp,omitempty"`

	// Ответы
	Verdict  *service.StreamVerdict `json:"verdict,omitempty"`
	Buffered int                    `json:"buffered,omitempty"`
	Windows  int                    `json:"windows,omitempty"`
	Model    *ai.ModelInfo          `json:"model,omitempty"`

	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// HealthResponse ответ /health
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Version     string `json:"version"`
}

// ModelResponse ответ /model
type ModelResponse struct {
	ai.ModelInfo
	Status   string           `json:"status,omitempty"`
	Features ai.FeatureConfig `json:"features"`
}

// PredictResponse ответ /predict
type PredictResponse struct {
	ai.Verdict
	Filename string `json:"filename"`
}

// ValidateResponse ответ /validate
type ValidateResponse struct {
	Valid      bool         `json:"valid"`
	Format     audio.Format `json:"format,omitempty"`
	SampleRate int          `json:"sample_rate,omitempty"`
	Duration   float64      `json:"duration,omitempty"`
	Channels   int          `json:"channels,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// AnalyzeStreamRequest запрос /analyze-stream
type AnalyzeStreamRequest struct {
	AudioData  *[]float32 `json:"audio_data"`
	SampleRate int        `json:"sample_rate"`
	Timestamp  any        `json:"timestamp"`
	SessionID  string     `json:"session_id,omitempty"`
}

// AnalyzeStreamResponse ответ /analyze-stream без session_id
type AnalyzeStreamResponse struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	IsFake     bool    `json:"is_fake"`
	Timestamp  any     `json:"timestamp"`
}

// StreamResultsResponse ответ /analyze-stream с session_id
type StreamResultsResponse struct {
	SessionID string                  `json:"session_id"`
	Results   []service.StreamVerdict `json:"results"`
	Buffered  int                     `json:"buffered"`
}

// CreateStreamRequest запрос POST /streams
type CreateStreamRequest struct {
	SampleRate int `json:"sample_rate"`
}

// CreateStreamResponse ответ POST /streams
type CreateStreamResponse struct {
	SessionID     string `json:"session_id"`
	SampleRate    int    `json:"sample_rate"`
	WindowSamples int    `json:"window_samples"`
}

// ErrorResponse тело ошибки
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// errorKind имя вида ошибки для клиента
func errorKind(err error) string {
	switch {
	case errors.Is(err, audio.ErrInvalidRate):
		return "InvalidRateError"
	case errors.Is(err, ai.ErrSpectrogram):
		return "SpectrogramError"
	case errors.Is(err, ai.ErrShape):
		return "ShapeError"
	case errors.Is(err, session.ErrRateMismatch):
		return "RateMismatchError"
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return "UnsupportedFormatError"
	case errors.Is(err, session.ErrStreamNotFound):
		return "StreamNotFoundError"
	default:
		return "InternalError"
	}
}

// statusFor HTTP статус для ошибки ядра
func statusFor(err error) int {
	switch {
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrStreamNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
