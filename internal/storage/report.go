package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ReportWriter handles async writing of per-page traversal reports as JSON
// lines to date-organized files.
type ReportWriter struct {
	baseDir     string
	subDir      string
	maxSizeMB   int
	runID       string
	writeCh     chan any
	done        chan struct{}
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
}

// NewReportWriter creates an async report writer. Records land under
// baseDir/<date>/<subDir>/<runID>.jsonl and rotate by size.
func NewReportWriter(baseDir, subDir, runID string, bufferSize, maxSizeMB int) *ReportWriter {
	w := &ReportWriter{
		baseDir:   baseDir,
		subDir:    subDir,
		maxSizeMB: maxSizeMB,
		runID:     runID,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w
}

// Write queues a record for async writing. It never blocks the crawl; when
// the buffer is full the record is dropped with a warning.
func (w *ReportWriter) Write(record any) error {
	select {
	case <-w.done:
		return fmt.Errorf("writer is closed")
	default:
	}
	select {
	case w.writeCh <- record:
		return nil
	default:
		slog.Warn("report write buffer full, dropping record",
			"subdir", w.subDir)
		return fmt.Errorf("buffer full")
	}
}

// Close shuts down the writer and flushes pending data
func (w *ReportWriter) Close() error {
	close(w.done)

	// Drain remaining items with timeout
	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-timeout:
			slog.Warn("report writer close timeout, some records may be lost",
				"subdir", w.subDir)
			goto done
		default:
			goto done
		}
	}

done:
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.logger != nil {
		return w.logger.Close()
	}
	return nil
}

func (w *ReportWriter) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case record := <-w.writeCh:
			w.writeRecord(record)
		case <-w.done:
			return
		}
	}
}

func (w *ReportWriter) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("Failed to marshal record",
			"error", err,
			"subdir", w.subDir)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	currentDate := time.Now().UTC().Format("2006-01-02")
	if currentDate != w.currentDate || w.logger == nil {
		w.rotateForDate(currentDate)
	}

	_, err = w.logger.Write(append(data, '\n'))
	if err != nil {
		slog.Error("Failed to write record",
			"error", err,
			"subdir", w.subDir)
	}
}

func (w *ReportWriter) rotateForDate(date string) {
	if w.logger != nil {
		w.logger.Close()
	}

	dir := filepath.Join(w.baseDir, date, w.subDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Failed to create output directory",
			"error", err,
			"dir", dir)
		return
	}

	name := w.runID
	if name == "" {
		name = fmt.Sprintf("%d", time.Now().Unix())
	}
	filename := filepath.Join(dir, name+".jsonl")

	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	w.currentDate = date
	slog.Info("Opened new report file",
		"file", filename,
		"subdir", w.subDir)
}
