package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fakeaudio/internal/api"
	"fakeaudio/internal/config"
	"fakeaudio/internal/service"
	"fakeaudio/models"
	"fakeaudio/session"
)

func main() {
	log.Println("Fake audio detector backend starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Model path: %s", cfg.ModelPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := models.Ensure(ctx, cfg.ModelPath, models.Source{URL: cfg.ModelURL, SHA256: cfg.ModelSHA256}, func(p float64) {
		log.Printf("[Models] Download progress: %.0f%%", p)
	}); err != nil {
		log.Printf("Warning: failed to fetch model: %v", err)
	}

	// Initialize detector
	log.Println("Loading detector...")
	detector, err := service.NewDetector(cfg.Detector())
	if err != nil {
		log.Fatalf("Failed to init detector: %v", err)
	}
	defer detector.Close()
	if detector.ModelLoaded() {
		log.Println("Model loaded successfully")
	} else {
		log.Println("Warning: running with mock predictions")
	}

	// HTTP потоки без активности удаляются фоновой горутиной
	streams := session.NewManager(cfg.StreamIdleTimeout)
	go streams.Run(ctx)

	server := api.NewServer(cfg, detector, streams)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}
