package worklist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
)

type xlsxRow struct {
	item Item
	row  int // 1-based sheet row
}

// XLSXTracker keeps a spreadsheet worklist open and saves it after each
// update.
type XLSXTracker struct {
	mu      sync.Mutex
	path    string
	file    *excelize.File
	sheet   string
	columns map[string]int // 1-based column per name
	rows    []xlsxRow
	now     func() time.Time
	logger  *slog.Logger
}

func OpenXLSX(path string) (*XLSXTracker, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open worklist: %w", err)
	}

	t := &XLSXTracker{
		path:   path,
		file:   f,
		now:    time.Now,
		logger: slog.Default().With("component", "worklist", "path", path),
	}
	if err := t.load(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *XLSXTracker) load() error {
	sheets := t.file.GetSheetList()
	if len(sheets) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(Columns, ", "))
	}
	t.sheet = t.findSheet(sheets)

	rows, err := t.file.GetRows(t.sheet)
	if err != nil {
		return fmt.Errorf("failed to read worklist rows: %w", err)
	}

	t.columns = make(map[string]int)
	if len(rows) > 0 {
		for i, name := range rows[0] {
			name = strings.TrimSpace(name)
			if _, seen := t.columns[name]; !seen {
				t.columns[name] = i + 1
			}
		}
	}

	var missing []string
	for _, name := range Columns {
		if _, ok := t.columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	for i := 1; i < len(rows); i++ {
		url := strings.TrimSpace(t.cell(rows[i], ColumnURL))
		if url == "" {
			continue
		}
		id, ok := parseID(t.cell(rows[i], ColumnID))
		if !ok {
			id = i
		}
		t.rows = append(t.rows, xlsxRow{
			row: i + 1,
			item: Item{
				ID:        id,
				URL:       url,
				Done:      parseDone(t.cell(rows[i], ColumnDone)),
				CrawledAt: t.cell(rows[i], ColumnCrawledAt),
				Note:      t.cell(rows[i], ColumnNote),
			},
		})
	}

	sort.SliceStable(t.rows, func(i, j int) bool {
		return t.rows[i].item.ID < t.rows[j].item.ID
	})
	return nil
}

// findSheet prefers the first sheet whose header row carries the URL column.
func (t *XLSXTracker) findSheet(sheets []string) string {
	for _, name := range sheets {
		rows, err := t.file.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		for _, header := range rows[0] {
			if strings.TrimSpace(header) == ColumnURL {
				return name
			}
		}
	}
	return sheets[0]
}

func (t *XLSXTracker) cell(row []string, column string) string {
	idx := t.columns[column] - 1
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (t *XLSXTracker) List(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	items := make([]Item, len(t.rows))
	for i, r := range t.rows {
		items[i] = r.item
	}
	return items, nil
}

func (t *XLSXTracker) Update(ctx context.Context, id int, done bool, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var target *xlsxRow
	for i := range t.rows {
		if t.rows[i].item.ID == id {
			target = &t.rows[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}

	crawledAt := stamp(t.now)
	if err := t.setCell(ColumnDone, target.row, done); err != nil {
		return err
	}
	if err := t.setCell(ColumnCrawledAt, target.row, crawledAt); err != nil {
		return err
	}
	if err := t.setCell(ColumnNote, target.row, note); err != nil {
		return err
	}
	if err := t.file.Save(); err != nil {
		return fmt.Errorf("failed to save worklist: %w", err)
	}

	target.item.Done = done
	target.item.CrawledAt = crawledAt
	target.item.Note = note

	t.logger.Info("worklist item updated", "id", id, "done", done, "crawled_time", crawledAt)
	return nil
}

func (t *XLSXTracker) setCell(column string, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(t.columns[column], row)
	if err != nil {
		return fmt.Errorf("failed to address %s cell: %w", column, err)
	}
	if b, ok := value.(bool); ok {
		err = t.file.SetCellBool(t.sheet, cell, b)
	} else {
		err = t.file.SetCellValue(t.sheet, cell, value)
	}
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", cell, err)
	}
	return nil
}

func (t *XLSXTracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.file.Close()
}

const (
	productSheet = "Products"
	guideSheet   = "Guide"
)

func createXLSXTemplate(path string, urls []string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", productSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, name := range Columns {
		header[i] = name
	}
	if err := f.SetSheetRow(productSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, url := range urls {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{i + 1, url, false, "", ""}
		if err := f.SetSheetRow(productSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(productSheet, "B", "B", 60); err != nil {
		return err
	}

	if _, err := f.NewSheet(guideSheet); err != nil {
		return fmt.Errorf("failed to add guide sheet: %w", err)
	}
	guide := []string{
		"WORKLIST TEMPLATE",
		"",
		ColumnID + ": row number, items are crawled in this order",
		ColumnURL + ": product page URL (required)",
		ColumnDone + ": set by the crawler",
		ColumnCrawledAt + ": set by the crawler (" + TimeLayout + ")",
		ColumnNote + ": crawl error, if any",
	}
	for i, line := range guide {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(guideSheet, cell, line); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}
