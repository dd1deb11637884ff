package repair

import (
	"fmt"
	"strings"
)

// Pass is one named text transformation applied to a candidate.
type Pass struct {
	Name  string
	Apply func(string) string
}

// SanitationPasses run in this order on every candidate before each parse.
// Later passes assume the earlier ones ran: control characters are escaped
// before interior quotes are examined, so a raw line break after a quote can
// only be structural.
var SanitationPasses = []Pass{
	{Name: "trailing_commas", Apply: removeTrailingCommas},
	{Name: "bare_keys", Apply: quoteBareKeys},
	{Name: "single_quotes", Apply: convertSingleQuotes},
	{Name: "control_chars", Apply: escapeControlChars},
	{Name: "interior_quotes", Apply: escapeInteriorQuotes},
}

// Sanitize applies every sanitation pass to s.
func Sanitize(s string) string {
	for _, p := range SanitationPasses {
		s = p.Apply(s)
	}
	return s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// closingQuote returns the index of the quote that closes the literal opened
// at s[open], honoring backslash escapes, or -1.
func closingQuote(s string, open int) int {
	quote := s[open]
	escaped := false
	for i := open + 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == quote:
			return i
		}
	}
	return -1
}

// removeTrailingCommas drops a comma that is followed only by whitespace and
// a closing brace or bracket.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			end := closingQuote(s, i)
			if end == -1 {
				b.WriteString(s[i:])
				break
			}
			b.WriteString(s[i : end+1])
			i = end
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// quoteBareKeys rewrites name: as "name": when name follows '{', ',' or
// whitespace. Quoted literals of either kind are copied through untouched.
func quoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c == '"' || c == '\'' {
			end := closingQuote(s, i)
			if end != -1 {
				b.WriteString(s[i : end+1])
				i = end
				continue
			}
			if c == '"' {
				b.WriteString(s[i:])
				break
			}
		}

		if isIdentStart(c) && i > 0 && (s[i-1] == '{' || s[i-1] == ',' || isSpace(s[i-1])) {
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteString(`":`)
				i = k
				continue
			}
			b.WriteString(s[i:j])
			i = j - 1
			continue
		}

		b.WriteByte(c)
	}
	return b.String()
}

// convertSingleQuotes turns '...' literals outside double-quoted strings into
// double-quoted ones. \' becomes a plain apostrophe and bare double quotes in
// the content are escaped. An unclosed single quote is left alone.
func convertSingleQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			end := closingQuote(s, i)
			if end == -1 {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(s[i : end+1])
			i = end
		case '\'':
			end := closingQuote(s, i)
			if end == -1 {
				b.WriteByte(c)
				continue
			}
			b.WriteByte('"')
			content := s[i+1 : end]
			for k := 0; k < len(content); k++ {
				switch {
				case content[k] == '\\' && k+1 < len(content):
					if content[k+1] == '\'' {
						b.WriteByte('\'')
					} else {
						b.WriteByte('\\')
						b.WriteByte(content[k+1])
					}
					k++
				case content[k] == '"':
					b.WriteString(`\"`)
				default:
					b.WriteByte(content[k])
				}
			}
			b.WriteByte('"')
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// escapeControlChars replaces raw control characters inside string literals
// with their JSON escapes. Characters that are already escaped keep their
// single backslash.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		if escaped {
			escaped = false
			switch c {
			case '\n':
				b.WriteByte('n')
			case '\r':
				b.WriteByte('r')
			case '\t':
				b.WriteByte('t')
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// escapeInteriorQuotes escapes a double quote inside a string literal unless
// it is followed, after spaces, by a structural character, a line break or the
// end of the text. Those quotes are taken to close the literal.
func escapeInteriorQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case escaped:
			escaped = false
			b.WriteByte(c)
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			if closesString(s, i) {
				inString = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func closesString(s string, quote int) bool {
	k := quote + 1
	for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
		k++
	}
	if k == len(s) {
		return true
	}
	switch s[k] {
	case ',', ':', '}', ']', '\n', '\r':
		return true
	}
	return false
}
