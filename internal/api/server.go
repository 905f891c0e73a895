package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"

	"fakeaudio/audio"
	"fakeaudio/internal/config"
	"fakeaudio/internal/service"
	"fakeaudio/session"
)

// Version версия API
const Version = "1.0.0"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server HTTP, WebSocket и gRPC поверхность детектора
type Server struct {
	Config   *config.Config
	Detector *service.Detector
	Streams  *session.Manager

	mux        *http.ServeMux
	httpServer *http.Server
	grpcServer *grpc.Server
}

func NewServer(cfg *config.Config, detector *service.Detector, streams *session.Manager) *Server {
	s := &Server{
		Config:   cfg,
		Detector: detector,
		Streams:  streams,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /model", s.handleModel)
	s.mux.HandleFunc("POST /predict", s.handlePredict)
	s.mux.HandleFunc("POST /validate", s.handleValidate)
	s.mux.HandleFunc("POST /analyze-stream", s.handleAnalyzeStream)
	s.mux.HandleFunc("POST /streams", s.handleCreateStream)
	s.mux.HandleFunc("DELETE /streams/{id}", s.handleDeleteStream)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Endpoint not found"})
	})

	return s
}

// Handler возвращает HTTP обработчик с CORS заголовками (веб-клиент работает на другом порту)
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// Start запускает gRPC (если задан адрес) и HTTP сервер; блокируется до остановки
func (s *Server) Start() error {
	if s.Config.GRPCAddr != "" {
		if err := s.startGRPCServer(); err != nil {
			log.Printf("%v", err)
		}
	}

	s.httpServer = &http.Server{
		Addr:              ":" + s.Config.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Backend listening on :%s", s.Config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает HTTP и gRPC серверы
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		ModelLoaded: s.Detector.ModelLoaded(),
		Version:     Version,
	})
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	resp := ModelResponse{
		ModelInfo: s.Detector.ModelInfo(),
		Features:  s.Detector.Features(),
	}
	if !resp.Loaded {
		resp.Status = "Model not found or failed to load"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	data, filename, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	features := s.Detector.Features()
	wave, err := audio.LoadBytes(data, features.SampleRate, features.Duration)
	if err != nil {
		writeError(w, statusFor(err), fmt.Errorf("Error processing audio: %w", err))
		return
	}

	verdict, err := s.Detector.InferFile(wave)
	if err != nil {
		log.Printf("Error processing audio %s: %v", filename, err)
		writeError(w, statusFor(err), fmt.Errorf("Error processing audio: %w", err))
		return
	}

	log.Printf("Prediction for %s: %s (confidence: %.3f)", filename, verdict.Category, verdict.RawProbability)
	writeJSON(w, http.StatusOK, PredictResponse{Verdict: verdict, Filename: filename})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	data, _, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	info, err := audio.Probe(data)
	if err != nil {
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{
		Valid:      true,
		Format:     info.Format,
		SampleRate: info.SampleRate,
		Duration:   info.Duration,
		Channels:   info.Channels,
	})
}

// uploadLimit предел тела запроса в байтах
func (s *Server) uploadLimit() int64 {
	return int64(s.Config.MaxUploadMB) << 20
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// readUpload читает multipart поле "audio"; при ошибке сам пишет ответ 400
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit())

	file, header, err := r.FormFile("audio")
	if err != nil {
		if tooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
			return nil, "", false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "No audio file provided"})
		return nil, "", false
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "No audio file selected"})
		return nil, "", false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("failed to read upload: %v", err)})
		return nil, "", false
	}
	return data, header.Filename, true
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit())

	var req AnalyzeStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if tooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	if req.AudioData == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "No audio data provided"})
		return
	}
	if req.SampleRate == 0 {
		req.SampleRate = s.Detector.Features().SampleRate
	}
	chunk := audio.Waveform{Samples: *req.AudioData, SampleRate: req.SampleRate}

	// Без session_id: один чанк, без состояния
	if req.SessionID == "" {
		v, err := s.Detector.InferChunk(chunk, req.Timestamp)
		if err != nil {
			log.Printf("Error analyzing stream: %v", err)
			writeError(w, statusFor(err), fmt.Errorf("Error analyzing stream: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, AnalyzeStreamResponse{
			Prediction: v.Category,
			Confidence: v.RawProbability,
			IsFake:     v.IsFake,
			Timestamp:  v.Timestamp,
		})
		return
	}

	resp := StreamResultsResponse{SessionID: req.SessionID}
	err := s.Streams.With(req.SessionID, func(st *session.Stream) error {
		results, err := s.Detector.InferStream(st, chunk, req.Timestamp)
		resp.Results = results
		resp.Buffered = st.Buffer().Buffered()
		return err
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if resp.Results == nil {
		resp.Results = []service.StreamVerdict{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit())

	var req CreateStreamRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid JSON: %v", err)})
			return
		}
	}
	if req.SampleRate == 0 {
		req.SampleRate = s.Detector.Features().SampleRate
	}

	st, err := s.Detector.NewStreamState(req.SampleRate, 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.Streams.Add(st)

	writeJSON(w, http.StatusCreated, CreateStreamResponse{
		SessionID:     st.ID,
		SampleRate:    st.SampleRate(),
		WindowSamples: st.Buffer().WindowSamples(),
	})
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	if err := s.Streams.Remove(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade:", err)
		return
	}
	defer conn.Close()

	if err := s.serveRealtime(&wsConn{conn: conn}); err != nil {
		log.Println("Read:", err)
	}
}

// wsConn адаптер WebSocket соединения к realtimeConn; чтение и запись идут из одной горутины
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Send(m *Message) error {
	return c.conn.WriteJSON(m)
}

func (c *wsConn) Recv() (*Message, error) {
	var m Message
	if err := c.conn.ReadJSON(&m); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return &m, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Write error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: errorKind(err)})
}
