package repair

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Diagnostic describes the final failed attempt of a repair.
type Diagnostic struct {
	Attempt   int
	Candidate string
	Err       error
}

// DiagnosticSink stores a diagnostic and returns a reference to it.
type DiagnosticSink interface {
	WriteDiagnostic(d Diagnostic) (string, error)
}

// FileSink writes debug_json_error_attempt_<N>.txt files into Dir. With
// Unique set a random suffix is added so concurrent repairs never share a file.
type FileSink struct {
	Dir    string
	Unique bool
}

func (s FileSink) WriteDiagnostic(d Diagnostic) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create diagnostic dir: %w", err)
	}

	name := fmt.Sprintf("debug_json_error_attempt_%d.txt", d.Attempt)
	if s.Unique {
		name = fmt.Sprintf("debug_json_error_attempt_%d_%s.txt", d.Attempt, uuid.NewString())
	}
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(FormatDiagnostic(d)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write diagnostic: %w", err)
	}
	return path, nil
}

// FormatDiagnostic renders the artifact body.
func FormatDiagnostic(d Diagnostic) string {
	return fmt.Sprintf("ATTEMPT %d JSON:\n%s\n\nJSON DECODE ERROR:\n%v\n", d.Attempt, d.Candidate, d.Err)
}

// DiscardSink drops diagnostics.
type DiscardSink struct{}

func (DiscardSink) WriteDiagnostic(Diagnostic) (string, error) { return "", nil }
