package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// handleSpace namespaces the derived handles of records without a usable title.
var handleSpace = uuid.MustParse("6f1d8a52-3c0e-4b7a-9a43-2d5e8c1f7b90")

// Record is one catalog row. It always carries every schema column.
type Record struct {
	values []string
}

// Normalize reconciles a repaired model object with the schema. Unknown keys
// are dropped, missing or empty columns take their default and every value is
// rendered as a string. An empty Handle is derived from the Title, or from the
// record content when the Title has no letters or digits.
func Normalize(v map[string]any) (Record, error) {
	values := make([]string, len(Schema))
	for i, key := range Schema {
		raw, ok := v[key]
		if !ok || raw == nil {
			values[i] = DefaultValue(key)
			continue
		}
		s, err := stringify(raw)
		if err != nil {
			return Record{}, fmt.Errorf("failed to convert %q: %w", key, err)
		}
		if strings.TrimSpace(s) == "" {
			s = DefaultValue(key)
		}
		values[i] = s
	}

	handle := &values[schemaIndex[KeyHandle]]
	*handle = strings.TrimSpace(*handle)
	if *handle == "" {
		*handle = Slugify(values[schemaIndex[KeyTitle]])
	}
	if *handle == "" {
		*handle = contentHandle(values)
	}

	return Record{values: values}, nil
}

func stringify(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			s, err := stringify(item)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", "), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func (r Record) Get(key string) string {
	i, ok := schemaIndex[key]
	if !ok || r.values == nil {
		return ""
	}
	return r.values[i]
}

func (r Record) Handle() string {
	return r.Get(KeyHandle)
}

// Values returns the column values in schema order.
func (r Record) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

func (r Record) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for i, key := range Schema {
		if i < len(r.values) {
			out[key] = r.values[i]
		}
	}
	return out
}

// MarshalJSON writes the record as an object with keys in schema order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range Schema {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.Get(key))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// contentHandle is stable for identical content so duplicates still collapse.
func contentHandle(values []string) string {
	id := uuid.NewSHA1(handleSpace, []byte(strings.Join(values, "\x1f")))
	return "product-" + strings.ReplaceAll(id.String(), "-", "")[:12]
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify builds a URL handle: lower case letters and digits separated by
// single dashes. Latin accents are folded to ASCII; other scripts are kept.
func Slugify(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if r == 'đ' {
			r = 'd'
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
