package api

import (
	"errors"
	"fmt"
	"io"
	"log"

	"fakeaudio/audio"
	"fakeaudio/session"
)

// realtimeConn двунаправленный канал сообщений одного клиента (WebSocket или gRPC stream)
type realtimeConn interface {
	Send(*Message) error
	Recv() (*Message, error)
}

// serveRealtime обслуживает realtime протокол до закрытия соединения:
//
//	start{sampleRate}                    → stream_started{sessionId, sampleRate}
//	audio{audioData, sampleRate, timestamp} → ноль или больше verdict
//	stop                                 → stream_stopped{sessionId, buffered, windows}
//
// Поток принадлежит соединению, поэтому блокировки не нужны.
func (s *Server) serveRealtime(conn realtimeConn) error {
	var stream *session.Stream

	startStream := func(rate int) error {
		if rate == 0 {
			rate = s.Detector.Features().SampleRate
		}
		st, err := s.Detector.NewStreamState(rate, 0)
		if err != nil {
			return err
		}
		stream = st
		log.Printf("[Stream] Realtime stream %s started (%d Hz)", st.ID, rate)
		return nil
	}

	for {
		msg, err := conn.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		var reply []*Message
		switch msg.Type {
		case "start":
			if err := startStream(msg.SampleRate); err != nil {
				reply = append(reply, errorMessage(err))
				break
			}
			reply = append(reply, &Message{Type: "stream_started", SessionID: stream.ID, SampleRate: stream.SampleRate()})

		case "audio":
			// Клиенты без start получают поток с частотой первого чанка
			if stream == nil {
				if err := startStream(msg.SampleRate); err != nil {
					reply = append(reply, errorMessage(err))
					break
				}
				reply = append(reply, &Message{Type: "stream_started", SessionID: stream.ID, SampleRate: stream.SampleRate()})
			}
			rate := msg.SampleRate
			if rate == 0 {
				rate = stream.SampleRate()
			}

			results, err := s.Detector.InferStream(stream, audio.Waveform{Samples: msg.AudioData, SampleRate: rate}, msg.Timestamp)
			for i := range results {
				reply = append(reply, &Message{Type: "verdict", SessionID: stream.ID, Verdict: &results[i]})
			}
			if err != nil {
				reply = append(reply, errorMessage(err))
			}

		case "stop":
			if stream == nil {
				reply = append(reply, errorMessage(fmt.Errorf("%w: no active stream", session.ErrStreamNotFound)))
				break
			}
			reply = append(reply, &Message{
				Type:      "stream_stopped",
				SessionID: stream.ID,
				Buffered:  stream.Buffer().Buffered(),
				Windows:   stream.Buffer().WindowCount(),
			})
			log.Printf("[Stream] Realtime stream %s stopped after %d windows", stream.ID, stream.Buffer().WindowCount())
			stream = nil

		case "get_model":
			info := s.Detector.ModelInfo()
			reply = append(reply, &Message{Type: "model_info", Model: &info})

		case "ping":
			reply = append(reply, &Message{Type: "pong"})

		default:
			reply = append(reply, &Message{Type: "error", Error: fmt.Sprintf("unknown message type: %q", msg.Type)})
		}

		for _, m := range reply {
			if err := conn.Send(m); err != nil {
				return err
			}
		}
	}
}

func errorMessage(err error) *Message {
	return &Message{Type: "error", Error: err.Error(), Kind: errorKind(err)}
}
