package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, maxAttempts int) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	e, err := New(Config{
		MaxAttempts:   maxAttempts,
		DiagnosticDir: dir,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return e, dir
}

func diagnosticFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestRepairFencedModelOutput(t *testing.T) {
	e, dir := newTestEngine(t, 3)

	raw := "Here you go:\n```json\n{name: 'Widget', price: 9.99,}\n```"
	res, err := e.RepairDetailed(raw)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"name":  "Widget",
		"price": json.Number("9.99"),
	}, res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Fixes)
	assert.Empty(t, diagnosticFiles(t, dir))
}

func TestRepairSanitation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected map[string]any
	}{
		{
			name:     "Valid object in prose",
			input:    `Sure! {"a": "x, y", "b": [1, 2]} hope it helps`,
			expected: map[string]any{"a": "x, y", "b": []any{json.Number("1"), json.Number("2")}},
		},
		{
			name:     "Pretty printed",
			input:    "{\n  \"Title\": \"Widget\",\n  \"Tags\": \"a, b\"\n}",
			expected: map[string]any{"Title": "Widget", "Tags": "a, b"},
		},
		{
			name:     "Trailing commas",
			input:    `{"a": [1, 2,], "b": {"c": 1,},}`,
			expected: map[string]any{"a": []any{json.Number("1"), json.Number("2")}, "b": map[string]any{"c": json.Number("1")}},
		},
		{
			name:     "Bare keys",
			input:    `{title: "x", _id: 2, nested: {inner_key: true}}`,
			expected: map[string]any{"title": "x", "_id": json.Number("2"), "nested": map[string]any{"inner_key": true}},
		},
		{
			name:     "Apostrophes and colons in values",
			input:    `{"Title": "It's John's", "Option1 Value": "Size M: large"}`,
			expected: map[string]any{"Title": "It's John's", "Option1 Value": "Size M: large"},
		},
		{
			name:     "Raw control characters",
			input:    "{\"a\": \"line1\nline2\ttab\"}",
			expected: map[string]any{"a": "line1\nline2\ttab"},
		},
		{
			name:     "Escaped newline kept",
			input:    `{"a": "x\ny"}`,
			expected: map[string]any{"a": "x\ny"},
		},
		{
			name:     "Interior HTML quotes",
			input:    `{"Body (HTML)": "<p class="intro">Hi</p>"}`,
			expected: map[string]any{"Body (HTML)": `<p class="intro">Hi</p>`},
		},
		{
			name:     "Fence line inside string",
			input:    "```json\n{\"Body (HTML)\": \"<p>a</p>\n```\n<p>b</p>\"}\n```",
			expected: map[string]any{"Body (HTML)": "<p>a</p>\n```\n<p>b</p>"},
		},
		{
			name:     "Brace inside string",
			input:    `{"a": "}", "b": 1}`,
			expected: map[string]any{"a": "}", "b": json.Number("1")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, dir := newTestEngine(t, 3)

			res, err := e.RepairDetailed(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.Value)
			assert.Equal(t, 1, res.Attempts)
			assert.Empty(t, diagnosticFiles(t, dir))
		})
	}
}

func TestRepairTargetedFixes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fix      ErrorKind
		expected map[string]any
	}{
		{
			name:     "Property name",
			input:    `{$id: 1}`,
			fix:      KindPropertyName,
			expected: map[string]any{"$id": json.Number("1")},
		},
		{
			name:  "Adjacent objects",
			input: `{"items": [{"x": 1} {"y": 2}]}`,
			fix:   KindDelimiter,
			expected: map[string]any{"items": []any{
				map[string]any{"x": json.Number("1")},
				map[string]any{"y": json.Number("2")},
			}},
		},
		{
			name:     "Missing comma between lines",
			input:    "{\n\"a\": \"x\"\n\"b\": \"y\"\n}",
			fix:      KindDelimiter,
			expected: map[string]any{"a": "x", "b": "y"},
		},
		{
			name:     "Missing value before comma",
			input:    `{"a": , "b": 2}`,
			fix:      KindValue,
			expected: map[string]any{"a": nil, "b": json.Number("2")},
		},
		{
			name:     "Missing value before brace",
			input:    `{"a": }`,
			fix:      KindValue,
			expected: map[string]any{"a": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, dir := newTestEngine(t, 3)

			res, err := e.RepairDetailed(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res.Value)
			assert.Equal(t, 2, res.Attempts)
			assert.Equal(t, []ErrorKind{tt.fix}, res.Fixes)
			assert.Empty(t, diagnosticFiles(t, dir))
		})
	}
}

func TestRepairUnterminatedString(t *testing.T) {
	e, dir := newTestEngine(t, 3)

	_, err := e.RepairDetailed(`{"a": "unterminated}`)
	require.Error(t, err)

	var uerr *UnparseableError
	require.True(t, errors.As(err, &uerr))
	assert.True(t, errors.Is(err, ErrUnparseable))
	assert.Equal(t, 3, uerr.Attempts)
	assert.Equal(t, `{"a": "unterminated}"`, uerr.Candidate)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindUnexpectedEnd, perr.Kind)

	assert.Equal(t, filepath.Join(dir, "debug_json_error_attempt_3.txt"), uerr.DiagnosticPath)
	assert.Equal(t, []string{"debug_json_error_attempt_3.txt"}, diagnosticFiles(t, dir))
}

func TestRepairBoundedAttempts(t *testing.T) {
	for _, maxAttempts := range []int{1, 3, 5} {
		e, dir := newTestEngine(t, maxAttempts)

		_, err := e.Repair("{")

		var uerr *UnparseableError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, maxAttempts, uerr.Attempts)

		name := fmt.Sprintf("debug_json_error_attempt_%d.txt", maxAttempts)
		assert.Equal(t, []string{name}, diagnosticFiles(t, dir))
		assert.Equal(t, filepath.Join(dir, name), uerr.DiagnosticPath)

		body, readErr := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, readErr)
		assert.True(t, strings.HasPrefix(string(body), fmt.Sprintf("ATTEMPT %d JSON:\n{\n\nJSON DECODE ERROR:\n", maxAttempts)))
	}
}

func TestRepairDiagnosticContent(t *testing.T) {
	e, dir := newTestEngine(t, 3)

	_, err := e.Repair("{")
	require.Error(t, err)

	body, readErr := os.ReadFile(filepath.Join(dir, "debug_json_error_attempt_3.txt"))
	require.NoError(t, readErr)
	assert.True(t, strings.HasPrefix(string(body), "ATTEMPT 3 JSON:\n{\n\nJSON DECODE ERROR:\n"))
}

func TestRepairInputErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"Empty", "", ErrEmptyInput},
		{"Whitespace only", "  \n\t ", ErrEmptyInput},
		{"No object", "I could not find any product data.", ErrNoJSONObject},
		{"Only fences", "```json\n```", ErrNoJSONObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, dir := newTestEngine(t, 3)

			_, err := e.Repair(tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, diagnosticFiles(t, dir))
		})
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	inputs := []string{
		"Here you go:\n```json\n{name: 'Widget', price: 9.99,}\n```",
		`{"items": [{"x": 1} {"y": 2.50}]}`,
		`{"Body (HTML)": "<p class="intro">Hi</p>", "n": -1e3}`,
	}

	for _, in := range inputs {
		e, _ := newTestEngine(t, 3)

		first, err := e.Repair(in)
		require.NoError(t, err)

		encoded, err := json.Marshal(first)
		require.NoError(t, err)

		second, err := e.Repair(string(encoded))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestLegacyBraceCounting(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Config{
		MaxAttempts:         3,
		DiagnosticDir:       dir,
		LegacyBraceCounting: true,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	_, err = e.Repair(`{"a": "}", "b": 1}`)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{MaxAttempts: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "max attempts", cerr.Field)

	_, err = Repair(`{"a": 1}`, -1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRepairPackageFunction(t *testing.T) {
	value, err := Repair(`{"a": 1}`, 3)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": json.Number("1")}, value)
}

type failingSink struct{}

func (failingSink) WriteDiagnostic(Diagnostic) (string, error) {
	return "", errors.New("disk full")
}

func TestDiagnosticFailureKeepsRepairError(t *testing.T) {
	e, err := New(Config{
		MaxAttempts: 2,
		Diagnostics: failingSink{},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	_, err = e.Repair("{")

	var uerr *UnparseableError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, 2, uerr.Attempts)
	assert.Empty(t, uerr.DiagnosticPath)
}

func TestUniqueDiagnostics(t *testing.T) {
	dir := t.TempDir()
	e, err := New(Config{
		MaxAttempts:       3,
		DiagnosticDir:     dir,
		UniqueDiagnostics: true,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	_, err = e.Repair("{")
	require.Error(t, err)
	_, err = e.Repair("{")
	require.Error(t, err)

	files := diagnosticFiles(t, dir)
	require.Len(t, files, 2)
	for _, name := range files {
		assert.True(t, strings.HasPrefix(name, "debug_json_error_attempt_3_"))
	}
}

func TestRepairConcurrentUse(t *testing.T) {
	e, _ := newTestEngine(t, 3)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := e.Repair(`{name: 'Widget', price: 9.99,}`)
			if err == nil && value["name"] != "Widget" {
				err = errors.New("unexpected value")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
