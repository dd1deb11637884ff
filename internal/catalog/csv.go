package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const DefaultCSVName = "output.csv"

// CSVWriter appends records to a CSV dataset, skipping handles that are
// already present in the file.
type CSVWriter struct {
	mu      sync.Mutex
	path    string
	handles map[string]struct{}
	logger  *slog.Logger
}

// NewCSVWriter writes to path, or to output.csv inside path when path is a
// directory.
func NewCSVWriter(path string) *CSVWriter {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultCSVName)
	}
	return &CSVWriter{
		path:   path,
		logger: slog.Default().With("component", "csv_writer"),
	}
}

func (w *CSVWriter) Path() string {
	return w.path
}

// Append writes rec unless its handle already exists. It reports whether a
// row was written.
func (w *CSVWriter) Append(ctx context.Context, rec Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.handles == nil {
		handles, err := readHandles(w.path)
		if err != nil {
			return false, err
		}
		w.handles = handles
	}

	handle := rec.Handle()
	if _, exists := w.handles[handle]; exists {
		w.logger.Info("handle already exists, skipping", "handle", handle)
		return false, nil
	}

	writeHeader := false
	if info, err := os.Stat(w.path); errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0) {
		writeHeader = true
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write(Schema); err != nil {
			return false, fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	if err := cw.Write(rec.Values()); err != nil {
		return false, fmt.Errorf("failed to write csv row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return false, fmt.Errorf("failed to flush csv: %w", err)
	}

	w.handles[handle] = struct{}{}
	return true, nil
}

// readHandles collects the Handle column of an existing dataset. A missing or
// empty file yields an empty set.
func readHandles(path string) (map[string]struct{}, error) {
	handles := make(map[string]struct{})

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return handles, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return handles, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	col := -1
	for i, name := range header {
		if name == KeyHandle {
			col = i
			break
		}
	}
	if col == -1 {
		return handles, nil
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		if col < len(row) {
			handles[row[col]] = struct{}{}
		}
	}
	return handles, nil
}
