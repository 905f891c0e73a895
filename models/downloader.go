package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrChecksum контрольная сумма скачанного файла не совпала
var ErrChecksum = errors.New("checksum mismatch")

// ProgressFunc функция для отчёта о прогрессе (0-100)
type ProgressFunc func(progress float64)

// Source откуда брать модель, если её нет на диске
type Source struct {
	URL    string
	SHA256 string // hex; пусто = не проверять
}

// Ensure проверяет наличие модели по path и скачивает её из src.URL, если файла нет.
// Пустой URL означает, что модель должна лежать на диске заранее; отсутствие файла тогда не ошибка:
// детектор сам перейдёт на заглушку.
func Ensure(ctx context.Context, path string, src Source, onProgress ProgressFunc) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat model: %w", err)
	}
	if src.URL == "" {
		return nil
	}

	log.Printf("[Models] Downloading %s to %s", src.URL, path)
	start := time.Now()
	if err := DownloadFile(ctx, src.URL, path, src.SHA256, onProgress); err != nil {
		return err
	}
	log.Printf("[Models] Model downloaded in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// DownloadFile скачивает файл по URL во временный файл и переименовывает его после проверки суммы
func DownloadFile(ctx context.Context, url, destPath, sha256Hex string, onProgress ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	fail := func(err error) error {
		out.Close()
		os.Remove(tmpPath)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}

	// Без таймаута: модель может быть большой, отмена через ctx
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("failed to download: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("bad status: %s", resp.Status))
	}

	hash := sha256.New()
	reader := &progressReader{
		reader:     resp.Body,
		totalSize:  resp.ContentLength,
		onProgress: onProgress,
	}
	if _, err := io.Copy(io.MultiWriter(out, hash), reader); err != nil {
		return fail(fmt.Errorf("failed to write file: %w", err))
	}

	if sha256Hex != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if !strings.EqualFold(got, sha256Hex) {
			return fail(fmt.Errorf("%w: got %s, want %s", ErrChecksum, got, sha256Hex))
		}
	}

	if err := out.Close(); err != nil {
		return fail(fmt.Errorf("failed to close file: %w", err))
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// progressReader обёртка для io.Reader с отслеживанием прогресса
type progressReader struct {
	reader       io.Reader
	totalSize    int64
	downloaded   int64
	onProgress   ProgressFunc
	lastReport   time.Time
	reportPeriod time.Duration
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)

		// Ограничиваем частоту отчётов
		now := time.Now()
		if pr.reportPeriod == 0 {
			pr.reportPeriod = 500 * time.Millisecond
		}

		if pr.onProgress != nil && pr.totalSize > 0 && (now.Sub(pr.lastReport) >= pr.reportPeriod || err == io.EOF) {
			pr.lastReport = now
			pr.onProgress(float64(pr.downloaded) / float64(pr.totalSize) * 100)
		}
	}
	return n, err
}
