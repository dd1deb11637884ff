// Package repair turns free-form model output into a decoded JSON object.
//
// A repair strips markdown fences, cuts out the first top-level object,
// sanitizes it and parses it. When parsing fails the decoder error selects a
// targeted fix, the candidate is sanitized again and parsed again, up to
// Config.MaxAttempts parses. The last failure is written to a diagnostic
// artifact and returned as an *UnparseableError.
//
// An Engine holds only its configuration and is safe for concurrent use.
package repair

import (
	"log/slog"
	"strings"
)

// DefaultMaxAttempts is the parse attempt limit of DefaultConfig.
const DefaultMaxAttempts = 3

// Config controls an Engine.
type Config struct {
	// MaxAttempts bounds the number of parse attempts. Must be at least 1.
	MaxAttempts int
	// DiagnosticDir receives the artifact written on exhaustion.
	DiagnosticDir string
	// UniqueDiagnostics adds a random suffix to artifact names.
	UniqueDiagnostics bool
	// LegacyBraceCounting counts braces inside string literals when finding
	// the object boundary.
	LegacyBraceCounting bool
	// Diagnostics overrides the file sink built from DiagnosticDir.
	Diagnostics DiagnosticSink
	Logger      *slog.Logger
}

// DefaultConfig allows three attempts and writes diagnostics to the working
// directory.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   DefaultMaxAttempts,
		DiagnosticDir: ".",
	}
}

// Engine repairs model output according to its Config.
type Engine struct {
	maxAttempts int
	legacy      bool
	sink        DiagnosticSink
	logger      *slog.Logger
}

// Result is a successful repair.
type Result struct {
	Value     map[string]any
	Attempts  int
	Candidate string
	Fixes     []ErrorKind
}

type state int

const (
	stateSanitizing state = iota
	stateParsing
	stateTargetedFix
	stateExhausted
)

// New validates cfg and builds an Engine. A MaxAttempts below 1 is rejected
// with a *ConfigError.
func New(cfg Config) (*Engine, error) {
	if cfg.MaxAttempts < 1 {
		return nil, &ConfigError{Field: "max attempts", Value: cfg.MaxAttempts, Reason: "must be at least 1"}
	}

	sink := cfg.Diagnostics
	if sink == nil {
		sink = FileSink{Dir: cfg.DiagnosticDir, Unique: cfg.UniqueDiagnostics}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		maxAttempts: cfg.MaxAttempts,
		legacy:      cfg.LegacyBraceCounting,
		sink:        sink,
		logger:      logger.With("component", "json_repair"),
	}, nil
}

// Repair runs a one-off repair with the default configuration and the given
// attempt limit.
func Repair(raw string, maxAttempts int) (map[string]any, error) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return e.Repair(raw)
}

// MaxAttempts returns the configured parse attempt limit.
func (e *Engine) MaxAttempts() int {
	return e.maxAttempts
}

// Repair returns the decoded object of raw. Numbers are kept as json.Number.
func (e *Engine) Repair(raw string) (map[string]any, error) {
	res, err := e.RepairDetailed(raw)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// RepairDetailed is Repair that also reports the attempts used, the fixes
// applied and the candidate that parsed.
func (e *Engine) RepairDetailed(raw string) (*Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyInput
	}

	candidate, found := extractCandidate(stripFences(raw), e.legacy)
	if !found {
		return nil, ErrNoJSONObject
	}

	res := &Result{}
	var lastErr *ParseError

	st := stateSanitizing
	for {
		switch st {
		case stateSanitizing:
			candidate = Sanitize(candidate)
			st = stateParsing

		case stateParsing:
			res.Attempts++
			value, perr := parseObject(candidate)
			if perr == nil {
				res.Value = value
				res.Candidate = candidate
				return res, nil
			}
			lastErr = perr
			e.logger.Debug("json decode failed",
				"attempt", res.Attempts,
				"kind", perr.Kind,
				"error", perr.Err)
			if res.Attempts >= e.maxAttempts {
				st = stateExhausted
			} else {
				st = stateTargetedFix
			}

		case stateTargetedFix:
			candidate = applyTargetedFix(candidate, lastErr.Kind)
			res.Fixes = append(res.Fixes, lastErr.Kind)
			st = stateSanitizing

		case stateExhausted:
			return nil, &UnparseableError{
				Attempts:       res.Attempts,
				LastErr:        lastErr,
				Candidate:      candidate,
				DiagnosticPath: e.writeDiagnostic(res.Attempts, candidate, lastErr),
			}
		}
	}
}

// writeDiagnostic never fails the repair; a sink error is only logged.
func (e *Engine) writeDiagnostic(attempt int, candidate string, err error) string {
	path, werr := e.sink.WriteDiagnostic(Diagnostic{Attempt: attempt, Candidate: candidate, Err: err})
	if werr != nil {
		e.logger.Warn("failed to write json diagnostic", "attempt", attempt, "error", werr)
		return ""
	}
	if path != "" {
		e.logger.Info("wrote json diagnostic", "attempt", attempt, "path", path)
	}
	return path
}
