package repair

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

var (
	aggressiveBareKey = regexp.MustCompile(`([{\s,])\s*([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)

	adjacentObjects     = regexp.MustCompile(`\}\s*\{`)
	arrayThenContainer  = regexp.MustCompile(`\]\s*([{\[])`)
	valueThenNextLine   = regexp.MustCompile(`("|[0-9]|true|false|null|\}|\])([ \t]*\r?\n\s*)"`)
	missingValueComma   = regexp.MustCompile(`:\s*,`)
	missingValueBrace   = regexp.MustCompile(`:\s*\}`)
	missingValueBracket = regexp.MustCompile(`:\s*\]`)

	errTrailingData = errors.New("invalid character after top-level value")
)

// parseObject decodes candidate as a single JSON object. Numbers are kept as
// json.Number so that re-encoding does not change their text.
func parseObject(candidate string) (map[string]any, *ParseError) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, classify(err, candidate)
	}
	if rest := strings.TrimSpace(candidate[dec.InputOffset():]); rest != "" {
		return nil, &ParseError{Kind: KindDelimiter, Offset: dec.InputOffset(), Err: errTrailingData}
	}
	if obj == nil {
		return nil, &ParseError{Kind: KindOther, Err: errors.New("top-level value is not an object")}
	}
	return obj, nil
}

// classify maps a decoder error onto the categories the targeted fixes know.
func classify(err error, candidate string) *ParseError {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		kind := KindUnexpectedEnd
		if endsInsideString(candidate) {
			kind = KindUnterminatedString
		}
		return &ParseError{Kind: kind, Offset: int64(len(candidate)), Err: err}
	}

	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return &ParseError{Kind: KindOther, Err: err}
	}

	msg := syntaxErr.Error()
	kind := KindOther
	switch {
	case strings.Contains(msg, "looking for beginning of object key string"):
		kind = KindPropertyName
	case strings.Contains(msg, "after object key:value pair"),
		strings.Contains(msg, "after array element"),
		strings.Contains(msg, "after top-level value"):
		kind = KindDelimiter
	case strings.Contains(msg, "looking for beginning of value"):
		kind = KindValue
	case strings.Contains(msg, "unexpected end of JSON input"):
		kind = KindUnexpectedEnd
		if endsInsideString(candidate) {
			kind = KindUnterminatedString
		}
	}
	return &ParseError{Kind: kind, Offset: syntaxErr.Offset, Err: err}
}

func endsInsideString(s string) bool {
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case inString && s[i] == '\\':
			escaped = true
		case s[i] == '"':
			inString = !inString
		}
	}
	return inString
}

// applyTargetedFix edits candidate for the given failure category. Kinds
// without a fix return the candidate unchanged.
func applyTargetedFix(candidate string, kind ErrorKind) string {
	switch kind {
	case KindPropertyName:
		return aggressiveBareKey.ReplaceAllString(candidate, `$1"$2":`)
	case KindDelimiter:
		candidate = adjacentObjects.ReplaceAllString(candidate, "},{")
		candidate = arrayThenContainer.ReplaceAllString(candidate, "],$1")
		return valueThenNextLine.ReplaceAllString(candidate, `$1,$2"`)
	case KindUnterminatedString:
		return closeUnterminatedLines(candidate)
	case KindValue:
		candidate = missingValueComma.ReplaceAllString(candidate, ": null,")
		candidate = missingValueBrace.ReplaceAllString(candidate, ": null}")
		return missingValueBracket.ReplaceAllString(candidate, ": null]")
	}
	return candidate
}

// closeUnterminatedLines appends a closing quote to every line holding an odd
// number of unescaped double quotes.
//
// Sanitation escapes raw line breaks inside string literals, so by the time
// this runs an unclosed literal extends to the end of the candidate. The quote
// therefore lands after the last character, which only closes the literal; a
// candidate whose object is also unclosed still fails on the next parse with
// KindUnexpectedEnd and is reported with that error.
func closeUnterminatedLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if unescapedQuotes(line)%2 != 0 {
			lines[i] = line + `"`
		}
	}
	return strings.Join(lines, "\n")
}

// unescapedQuotes counts double quotes not preceded by an odd run of
// backslashes.
func unescapedQuotes(line string) int {
	n := 0
	escaped := false
	for i := 0; i < len(line); i++ {
		switch {
		case escaped:
			escaped = false
		case line[i] == '\\':
			escaped = true
		case line[i] == '"':
			n++
		}
	}
	return n
}
