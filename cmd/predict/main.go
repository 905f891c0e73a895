// Классификация аудиофайлов из командной строки
// Запуск: go run ./cmd/predict [-model path] file.wav [file.mp3 ...]

package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"fakeaudio/internal/config"
	"fakeaudio/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	if len(cfg.Args) == 0 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <audio file>...\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	detector, err := service.NewDetector(cfg.Detector())
	if err != nil {
		log.Fatalf("Ошибка инициализации детектора: %v", err)
	}
	defer detector.Close()

	if !detector.ModelLoaded() {
		log.Println("Модель не загружена, результаты случайные")
	}

	failed := 0
	for _, path := range cfg.Args {
		v, err := detector.InferPath(path)
		if err != nil {
			log.Printf("%s: %v", path, err)
			failed++
			continue
		}
		fmt.Printf("%s\t%s\tconfidence=%.3f\tprobability=%.3f\tfake=%t\n",
			path, v.Category, v.RawProbability, v.Probability, v.IsFake)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
