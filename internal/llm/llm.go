// Package llm wraps the text-completion services the agent prompts. Every
// provider takes a single prompt and returns plain text.
package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ErrEmptyCompletion is returned when a provider answers with no usable text.
var ErrEmptyCompletion = errors.New("completion returned no text")

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var (
	fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	sqlPrefix    = regexp.MustCompile(`(?i)^(sql\s*query|sql)\s*:\s*`)
)

// CleanQuery strips the formatting models wrap around SQL despite being told
// not to: code fences, a leading "SQL:" label and enclosing backticks.
// Backticks inside the statement are quoted identifiers and are kept.
func CleanQuery(text string) string {
	s := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(sqlPrefix.ReplaceAllString(s, ""))
	if n := len(s); n > 1 && s[0] == '`' && s[n-1] == '`' && !strings.Contains(s[1:n-1], "`") {
		s = s[1 : n-1]
	}
	return strings.TrimSpace(s)
}

// CleanName trims quotes, labels and trailing punctuation around an
// extracted entity name.
func CleanName(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(strings.ToLower(s), "name:"); i >= 0 {
		s = s[i+len("name:"):]
	}
	return strings.Trim(s, " \t\"'`.,!?*")
}

// Label is the router's classification of a turn.
type Label string

const (
	LabelAPI      Label = "API"
	LabelFollowUp Label = "Follow Up"
)

// ParseLabel normalises the router's answer. Only the leading words count,
// so a label followed by punctuation or an explanation still parses. The
// second return is false when the text is neither label.
func ParseLabel(text string) (Label, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(":,;.!?\"'`*-_", r)
	})
	if len(words) == 0 {
		return "", false
	}
	switch words[0] {
	case "api":
		return LabelAPI, true
	case "followup":
		return LabelFollowUp, true
	case "follow":
		if len(words) > 1 && words[1] == "up" {
			return LabelFollowUp, true
		}
	}
	return "", false
}
