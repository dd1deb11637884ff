// Package llm wraps the generative model that turns product text into a
// catalog object.
package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("model returned an empty response")
	ErrMissingAPIKey = errors.New("model API key is required")
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var (
	openFence  = regexp.MustCompile("(?i)```json\\s*")
	closeFence = regexp.MustCompile("(?m)```\\s*$")
)

// StripFences removes ```json openers and trailing ``` markers from a
// response.
func StripFences(text string) string {
	text = openFence.ReplaceAllString(strings.TrimSpace(text), "")
	return strings.TrimSpace(closeFence.ReplaceAllString(text, ""))
}
