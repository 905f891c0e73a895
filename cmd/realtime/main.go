// Анализ речи с микрофона в реальном времени: один вердикт на каждое окно
// Запуск: go run ./cmd/realtime [-model path] [device name]
// Остановка: Ctrl+C

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fakeaudio/audio"
	"fakeaudio/internal/config"
	"fakeaudio/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	detector, err := service.NewDetector(cfg.Detector())
	if err != nil {
		log.Fatalf("Ошибка инициализации детектора: %v", err)
	}
	defer detector.Close()

	rate := cfg.Features.SampleRate
	capture, err := audio.NewCapture(rate)
	if err != nil {
		log.Fatalf("Ошибка инициализации аудио: %v", err)
	}
	defer capture.Close()

	if len(cfg.Args) > 0 {
		name := strings.Join(cfg.Args, " ")
		if err := capture.SetDeviceByName(name); err != nil {
			log.Fatalf("Устройство %q: %v", name, err)
		}
	}

	stream, err := detector.NewStreamState(rate, 0)
	if err != nil {
		log.Fatalf("Ошибка создания потока: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := capture.Start(); err != nil {
		log.Fatalf("Ошибка запуска захвата: %v", err)
	}

	log.Printf("=== Анализ с микрофона: окно %.1f с, %d Hz ===", cfg.Features.Duration, rate)
	log.Println("Нажмите Ctrl+C для остановки...")

	for {
		select {
		case <-ctx.Done():
			capture.Stop()
			log.Printf("Остановлено, проанализировано окон: %d, потеряно блоков: %d",
				stream.Buffer().WindowCount(), capture.Dropped())
			return
		case chunk := <-capture.Data():
			results, err := detector.InferStream(stream, chunk, time.Now().Format(time.RFC3339))
			if err != nil {
				log.Printf("Ошибка анализа: %v", err)
				continue
			}
			for _, r := range results {
				fmt.Printf("[%s] window %d (%d-%d ms): %s, confidence=%.3f\n",
					r.Timestamp, r.Window, r.StartMs, r.EndMs, r.Category, r.RawProbability)
			}
		}
	}
}
