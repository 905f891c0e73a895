package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

const (
	detectorServiceName  = "fakeaudio.Detector"
	detectorStreamMethod = "/" + detectorServiceName + "/Stream"
)

// messageCodec кодирует Message в JSON: gRPC канал несёт те же сообщения, что и /ws,
// поэтому protobuf-схема не нужна
type messageCodec struct{}

func (messageCodec) Name() string { return "json" }

func (messageCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (messageCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(messageCodec{})
}

// DetectorStream серверная сторона потока Detector/Stream
type DetectorStream interface {
	Send(*Message) error
	Recv() (*Message, error)
}

// DetectorServer реализация сервиса fakeaudio.Detector
type DetectorServer interface {
	Stream(DetectorStream) error
}

// grpcMessageStream приводит grpc.ServerStream к realtimeConn
type grpcMessageStream struct {
	grpc.ServerStream
}

func (s grpcMessageStream) Send(m *Message) error {
	return s.SendMsg(m)
}

func (s grpcMessageStream) Recv() (*Message, error) {
	var m Message
	if err := s.RecvMsg(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// detectorServiceDesc описан вручную: единственный метод Stream, двунаправленный
var detectorServiceDesc = grpc.ServiceDesc{
	ServiceName: detectorServiceName,
	HandlerType: (*DetectorServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Stream",
		ServerStreams: true,
		ClientStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			return srv.(DetectorServer).Stream(grpcMessageStream{stream})
		},
	}},
	Metadata: "internal/api/detector.proto",
}

// Stream обслуживает realtime протокол поверх gRPC: поток анализа живёт, пока открыт вызов
func (s *Server) Stream(stream DetectorStream) error {
	return s.serveRealtime(stream)
}

// newGRPCServer создаёт gRPC сервер с JSON кодеком и сервисом детектора
func (s *Server) newGRPCServer() *grpc.Server {
	server := grpc.NewServer(
		grpc.Creds(insecure.NewCredentials()),
		grpc.ForceServerCodec(messageCodec{}),
	)
	server.RegisterService(&detectorServiceDesc, s)
	return server
}

// startGRPCServer открывает listener и обслуживает gRPC в отдельной горутине
func (s *Server) startGRPCServer() error {
	addr := s.Config.GRPCAddr

	lis, err := listenGRPC(addr)
	if err != nil {
		return fmt.Errorf("failed to start gRPC listener (%s): %w", addr, err)
	}

	s.grpcServer = s.newGRPCServer()

	log.Printf("gRPC detector stream on %s", addr)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()
	return nil
}

// listenGRPC: unix:/path (или unix:///path), npipe:\\.\pipe\name, иначе TCP host:port
func listenGRPC(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		path = strings.TrimPrefix(path, "//")
		if err := removeIfExists(path); err != nil {
			return nil, err
		}
		return net.Listen("unix", path)
	}
	if pipe, ok := strings.CutPrefix(addr, "npipe:"); ok {
		return listenPipe(pipe)
	}
	return net.Listen("tcp", addr)
}

// removeIfExists удаляет сокет, оставшийся от прошлого запуска
func removeIfExists(path string) error {
	if path == "" {
		return errors.New("empty socket path")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
