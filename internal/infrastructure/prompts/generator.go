// Package prompts renders the instruction sent to LLM-backed context backends.
package prompts

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// EnhanceTemplate formats the enhancement instruction for one user message.
type EnhanceTemplate struct {
	tmpl prompts.PromptTemplate
}

func NewEnhanceTemplate(text string) *EnhanceTemplate {
	if strings.TrimSpace(text) == "" {
		text = EnhancePrompt
	}
	return &EnhanceTemplate{tmpl: prompts.NewPromptTemplate(text, []string{"query", "source"})}
}

func (t *EnhanceTemplate) Format(query, source string) (string, error) {
	out, err := t.tmpl.Format(map[string]any{
		"query":  query,
		"source": source,
	})
	if err != nil {
		return "", fmt.Errorf("format enhance prompt: %w", err)
	}
	return strings.TrimSpace(out), nil
}
