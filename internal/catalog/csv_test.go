package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRecord(t *testing.T, handle string) Record {
	t.Helper()
	rec, err := Normalize(map[string]any{"Handle": handle, "Title": "Title " + handle})
	require.NoError(t, err)
	return rec
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVWriter_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("creates file with header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.csv")
		w := NewCSVWriter(path)

		written, err := w.Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)
		assert.True(t, written)

		rows := readRows(t, path)
		require.Len(t, rows, 2)
		assert.Equal(t, Schema, rows[0])
		assert.Equal(t, "a", rows[1][0])
		assert.Equal(t, "Title a", rows[1][1])
	})

	t.Run("directory path uses output.csv", func(t *testing.T) {
		dir := t.TempDir()
		w := NewCSVWriter(dir)
		assert.Equal(t, filepath.Join(dir, DefaultCSVName), w.Path())

		_, err := w.Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(dir, DefaultCSVName))
	})

	t.Run("skips duplicate handles", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.csv")
		w := NewCSVWriter(path)

		written, err := w.Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)
		assert.True(t, written)

		written, err = w.Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)
		assert.False(t, written)

		written, err = w.Append(ctx, mustRecord(t, "b"))
		require.NoError(t, err)
		assert.True(t, written)

		assert.Len(t, readRows(t, path), 3)
	})

	t.Run("dedupes across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.csv")
		_, err := NewCSVWriter(path).Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)

		written, err := NewCSVWriter(path).Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)
		assert.False(t, written)
		assert.Len(t, readRows(t, path), 2)
	})

	t.Run("empty existing file gets header", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.csv")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		_, err := NewCSVWriter(path).Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)

		rows := readRows(t, path)
		require.Len(t, rows, 2)
		assert.Equal(t, Schema, rows[0])
	})

	t.Run("values with commas and quotes round trip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "products.csv")
		rec, err := Normalize(map[string]any{
			"Handle":      "a",
			"Body (HTML)": `<p class="x">one, two</p>`,
		})
		require.NoError(t, err)

		_, err = NewCSVWriter(path).Append(ctx, rec)
		require.NoError(t, err)

		rows := readRows(t, path)
		assert.Equal(t, `<p class="x">one, two</p>`, rows[1][2])
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewCSVWriter(filepath.Join(t.TempDir(), "x.csv")).Append(cctx, mustRecord(t, "a"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

type recordingSink struct {
	written bool
	err     error
	got     []string
}

func (s *recordingSink) Append(_ context.Context, rec Record) (bool, error) {
	s.got = append(s.got, rec.Handle())
	return s.written, s.err
}

func TestMultiSink_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("mirrors new records", func(t *testing.T) {
		primary := &recordingSink{written: true}
		mirror := &recordingSink{written: true}
		sink := MultiSink{Primary: primary, Mirrors: []Sink{mirror}}

		written, err := sink.Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, []string{"a"}, mirror.got)
	})

	t.Run("duplicates are not mirrored", func(t *testing.T) {
		primary := &recordingSink{written: false}
		mirror := &recordingSink{written: true}
		sink := MultiSink{Primary: primary, Mirrors: []Sink{mirror}}

		written, err := sink.Append(ctx, mustRecord(t, "a"))
		require.NoError(t, err)
		assert.False(t, written)
		assert.Empty(t, mirror.got)
	})

	t.Run("mirror error is returned", func(t *testing.T) {
		mirrorErr := errors.New("db down")
		sink := MultiSink{
			Primary: &recordingSink{written: true},
			Mirrors: []Sink{&recordingSink{err: mirrorErr}},
		}

		written, err := sink.Append(ctx, mustRecord(t, "a"))
		assert.True(t, written)
		assert.ErrorIs(t, err, mirrorErr)
	})
}
