package repair

import (
	"regexp"
	"strings"
)

// A fence line is ``` optionally followed by a language tag and nothing else.
var fenceLine = regexp.MustCompile("(?i)^\\s*```[a-z0-9_+.-]*\\s*$")

// stripFences removes markdown code-fence lines. A fence-like line inside a
// string literal of the object is content and is kept, as are all other lines.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	inObject, inString, escaped := false, false, false
	for _, line := range lines {
		if !inString && fenceLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)

		for i := 0; i < len(line); i++ {
			c := line[i]
			switch {
			case !inObject:
				inObject = c == '{'
			case inString:
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
			case c == '"':
				inString = true
			}
		}
	}
	return strings.Join(kept, "\n")
}

// extractCandidate returns the text from the first '{' to the brace that
// balances it. When the braces never balance the candidate runs to the end of
// the text. found is false when the text has no '{' at all, in which case the
// trimmed text is returned.
//
// With legacy set, every brace counts, including braces inside string
// literals, so an object is cut short when a value contains '}'.
func extractCandidate(text string, legacy bool) (candidate string, found bool) {
	text = strings.TrimSpace(text)

	start := strings.IndexByte(text, '{')
	if start == -1 {
		return text, false
	}

	end := len(text)
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if !legacy {
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			if c == '"' {
				inString = true
				continue
			}
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
				return strings.TrimSpace(text[start:end]), true
			}
		}
	}

	return strings.TrimSpace(text[start:end]), true
}
