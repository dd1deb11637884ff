// Package prompt renders the model instructions that turn raw product text
// into a catalog object.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/catalog-crawler/internal/catalog"
)

var (
	ErrEmptyProductData = errors.New("product data is empty")
	ErrUnknownVariant   = errors.New("unknown prompt variant")
)

type Variant string

const (
	Standard        Variant = "standard"
	Structured      Variant = "structured"
	SchemaValidated Variant = "schema"
)

// Categories are the product categories the model chooses from.
var Categories = []string{
	"MCU & Processor",
	"FPGA & CPLD",
	"IoT & Connectivity",
	"Motion & Actuators",
	"Sensors, Power & Energy",
	"Prototyping & Accessories",
	"Test & Measurement",
}

// fieldHints describe columns in the schema-validated variant. Columns
// without a hint are "string or empty".
var fieldHints = map[string]string{
	"Handle":      "string (URL-friendly slug)",
	"Title":       "string (product name)",
	"Body (HTML)": "string (HTML description in %s)",
	"Vendor":      "string (brand/manufacturer)",
	"Tags":        "string (comma-separated)",
	"Image Src":   "string (URLs separated by comma-space)",
}

func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case Standard, Structured, SchemaValidated:
		return v, nil
	case "":
		return Standard, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

// Builder renders prompts for one description language.
type Builder struct {
	Language string
}

func New(language string) *Builder {
	if language == "" {
		language = "Vietnamese"
	}
	return &Builder{Language: language}
}

// Build renders variant with the default language.
func Build(variant Variant, productData string) (string, error) {
	return New("").Build(variant, productData)
}

func (b *Builder) Build(variant Variant, productData string) (string, error) {
	data := strings.TrimSpace(productData)
	if data == "" {
		return "", ErrEmptyProductData
	}

	switch variant {
	case Standard, "":
		return b.standard(data), nil
	case Structured:
		return b.structured(data), nil
	case SchemaValidated:
		return b.schemaValidated(data), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
}

func (b *Builder) standard(data string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Process the raw product data below into a Shopify product JSON object and translate the description into %s.\n\n", b.Language)
	sb.WriteString(strictRules)
	sb.WriteString("\nPROCESSING RULES:\n")
	sb.WriteString("1. Clean the data and drop irrelevant information\n")
	sb.WriteString("2. Use an empty string \"\" for missing information\n")
	sb.WriteString("3. Image Src: use exactly one of the image URLs\n")
	sb.WriteString("4. Body (HTML): keep HTML tags and escape quotes as \\\"\n")
	sb.WriteString("5. Variant Inventory Qty: default \"20\"\n")
	sb.WriteString("6. Vendor: the brand\n")
	fmt.Fprintf(&sb, "7. Description: rewrite in %s using <p>, <ul>, <li> tags\n", b.Language)
	sb.WriteString("8. Product Category: choose the best match from:\n")
	for _, c := range Categories {
		fmt.Fprintf(&sb, "    - %s\n", c)
	}

	sb.WriteString("\nREQUIRED JSON STRUCTURE (EXACT ORDER):\n")
	writeObject(&sb, func(key string) string { return catalog.DefaultValue(key) })

	sb.WriteString("\nVALIDATION CHECKLIST:\n")
	sb.WriteString("- The JSON starts with { and ends with }\n")
	fmt.Fprintf(&sb, "- All %d keys are present in the given order\n", len(catalog.Schema))
	sb.WriteString("- All keys and string values use double quotes\n")
	sb.WriteString("- No trailing comma before }\n")
	sb.WriteString("- No text outside the JSON object\n")

	sb.WriteString("\nPRODUCT DATA:\n")
	sb.WriteString(data)
	sb.WriteString("\n\nIMPORTANT: Return ONLY the JSON object above. No explanations, no markdown, no additional text.")
	return sb.String()
}

func (b *Builder) structured(data string) string {
	var sb strings.Builder
	sb.WriteString("You are a product data processor. Convert raw product data to valid Shopify JSON format.\n\n")
	sb.WriteString(strictRules)
	sb.WriteString("\nEXAMPLE OUTPUT FORMAT:\n")
	sb.WriteString(`{"Handle": "example-product", "Title": "Example Product", "Body (HTML)": "<p>Description here</p>"}`)
	sb.WriteString("\n\nFIELD MAPPING RULES:\n")
	sb.WriteString("- Handle: URL-friendly slug from the title\n")
	sb.WriteString("- Title: clean product name\n")
	fmt.Fprintf(&sb, "- Body (HTML): rich HTML description in %s with <p>, <ul>, <li> tags\n", b.Language)
	sb.WriteString("- Vendor: brand or manufacturer name\n")
	sb.WriteString("- Product Category: one of " + strings.Join(Categories, "; ") + "\n")
	sb.WriteString("- Tags: comma-separated keywords\n")
	sb.WriteString("- Image Src: all image URLs separated by \", \"\n")
	for _, key := range catalog.Schema {
		if def := catalog.DefaultValue(key); def != "" {
			fmt.Fprintf(&sb, "- %s: default %q\n", key, def)
		}
	}

	fmt.Fprintf(&sb, "\nJSON MUST CONTAIN EXACTLY THESE %d KEYS IN ORDER:\n", len(catalog.Schema))
	sb.WriteString(strings.Join(catalog.Schema, ", "))
	sb.WriteString("\n\nPROCESS THIS PRODUCT DATA:\n")
	sb.WriteString(data)
	sb.WriteString("\n\nOUTPUT ONLY THE JSON OBJECT:")
	return sb.String()
}

func (b *Builder) schemaValidated(data string) string {
	var sb strings.Builder
	sb.WriteString("Convert the following product data to valid Shopify JSON format.\n\n")
	sb.WriteString("STRICT JSON REQUIREMENTS:\n")
	sb.WriteString("- Must be parseable by JSON.parse()\n")
	sb.WriteString("- All property names in double quotes\n")
	sb.WriteString("- All string values in double quotes\n")
	sb.WriteString("- No trailing commas\n")
	sb.WriteString("- Proper escaping of special characters\n")

	fmt.Fprintf(&sb, "\nREQUIRED SCHEMA - ALL %d PROPERTIES MUST BE PRESENT:\n", len(catalog.Schema))
	writeObject(&sb, func(key string) string {
		if def := catalog.DefaultValue(key); def != "" {
			return def
		}
		if hint, ok := fieldHints[key]; ok {
			if strings.Contains(hint, "%s") {
				return fmt.Sprintf(hint, b.Language)
			}
			return hint
		}
		return "string or empty"
	})

	sb.WriteString("\nINPUT DATA:\n")
	sb.WriteString(data)
	sb.WriteString("\n\nRETURN ONLY VALID JSON - NO EXPLANATIONS OR MARKDOWN:\n")
	return sb.String()
}

const strictRules = `CRITICAL REQUIREMENTS:
- Output exactly one valid JSON object
- No explanations, no markdown, no code blocks
- All keys and string values MUST use double quotes "..."
- No trailing commas
- Escape special characters: \n, \t, \", \\
`

// writeObject renders every schema key in order with the value from valueFor.
func writeObject(sb *strings.Builder, valueFor func(string) string) {
	sb.WriteString("{\n")
	for i, key := range catalog.Schema {
		k, _ := json.Marshal(key)
		v, _ := json.Marshal(valueFor(key))
		fmt.Fprintf(sb, "    %s: %s", k, v)
		if i < len(catalog.Schema)-1 {
			sb.WriteByte(',')
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n")
}
