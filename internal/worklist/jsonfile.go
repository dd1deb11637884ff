package worklist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// JSONTracker stores the worklist as a JSON array of items. Every save writes
// a temp file and renames it over the original.
type JSONTracker struct {
	mu       sync.RWMutex
	items    []Item
	filename string
	now      func() time.Time
	logger   *slog.Logger
}

func OpenJSON(filename string) (*JSONTracker, error) {
	t := &JSONTracker{
		filename: filename,
		now:      time.Now,
		logger:   slog.Default().With("component", "worklist", "path", filename),
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *JSONTracker) load() error {
	data, err := os.ReadFile(t.filename)
	if err != nil {
		return fmt.Errorf("failed to open worklist: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to decode worklist: %w", err)
	}

	t.items = items[:0]
	for _, item := range items {
		if item.URL != "" {
			t.items = append(t.items, item)
		}
	}
	sort.SliceStable(t.items, func(i, j int) bool {
		return t.items[i].ID < t.items[j].ID
	})
	return nil
}

func (t *JSONTracker) List(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	items := make([]Item, len(t.items))
	copy(items, t.items)
	return items, nil
}

func (t *JSONTracker) Update(ctx context.Context, id int, done bool, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i := range t.items {
		if t.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}

	prev := t.items[idx]
	t.items[idx].Done = done
	t.items[idx].CrawledAt = stamp(t.now)
	t.items[idx].Note = note

	if err := writeItems(t.filename, t.items); err != nil {
		t.items[idx] = prev
		return err
	}

	t.logger.Info("worklist item updated", "id", id, "done", done)
	return nil
}

func (t *JSONTracker) Close() error {
	return nil
}

func writeItems(filename string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode worklist: %w", err)
	}

	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write worklist: %w", err)
	}
	if err := os.Rename(tmpFile, filename); err != nil {
		return fmt.Errorf("failed to replace worklist: %w", err)
	}
	return nil
}

func createJSONTemplate(filename string, urls []string) error {
	items := make([]Item, len(urls))
	for i, url := range urls {
		items[i] = Item{ID: i + 1, URL: url}
	}
	return writeItems(filename, items)
}
