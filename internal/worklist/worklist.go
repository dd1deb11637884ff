// Package worklist tracks which product URLs have been crawled.
package worklist

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// TimeLayout formats the Crawled Time column.
const TimeLayout = "2006-01-02 15:04:05"

var (
	ErrItemNotFound      = errors.New("worklist item not found")
	ErrMissingColumns    = errors.New("worklist is missing columns")
	ErrUnsupportedFormat = errors.New("unsupported worklist format")
)

// Column names of the worklist sheet.
const (
	ColumnID        = "STT"
	ColumnURL       = "Product URL"
	ColumnDone      = "Is Crawled"
	ColumnCrawledAt = "Crawled Time"
	ColumnNote      = "Note"
)

var Columns = []string{ColumnID, ColumnURL, ColumnDone, ColumnCrawledAt, ColumnNote}

type Item struct {
	ID        int    `json:"id"`
	URL       string `json:"url"`
	Done      bool   `json:"done"`
	CrawledAt string `json:"crawled_time,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Tracker lists worklist items and records crawl outcomes. Every Update is
// persisted before it returns.
type Tracker interface {
	List(ctx context.Context) ([]Item, error)
	Update(ctx context.Context, id int, done bool, note string) error
	Close() error
}

// Open picks the tracker implementation from the file extension.
func Open(path string) (Tracker, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return OpenXLSX(path)
	case ".json":
		return OpenJSON(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// CreateTemplate writes an empty worklist with one pending row per URL.
func CreateTemplate(path string, urls []string) error {
	if len(urls) == 0 {
		urls = SampleURLs()
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return createXLSXTemplate(path, urls)
	case ".json":
		return createJSONTemplate(path, urls)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func SampleURLs() []string {
	return []string{
		"https://example.com/product1",
		"https://example.com/product2",
		"https://example.com/product3",
		"https://shop.example.com/item1",
		"https://shop.example.com/item2",
	}
}

func parseDone(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "x":
		return true
	}
	return false
}

func parseID(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if id, err := strconv.Atoi(v); err == nil {
		return id, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

func stamp(now func() time.Time) string {
	return now().Format(TimeLayout)
}
