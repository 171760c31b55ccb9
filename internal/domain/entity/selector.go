package entity

import "strings"

type SelectorStrategy struct {
	Name         string `json:"name"`
	Form         string `json:"form"`
	Textarea     string `json:"textarea"`
	SubmitButton string `json:"submitButton"`
}

func (s SelectorStrategy) Selectors() []string {
	return []string{s.Form, s.Textarea, s.SubmitButton}
}

func (s SelectorStrategy) Valid() bool {
	return strings.TrimSpace(s.Form) != "" &&
		strings.TrimSpace(s.Textarea) != "" &&
		strings.TrimSpace(s.SubmitButton) != ""
}

// IsXPath reports whether a selector is written as XPath rather than CSS.
func IsXPath(selector string) bool {
	return strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "xpath=")
}

func TrimXPath(selector string) string {
	return strings.TrimPrefix(selector, "xpath=")
}

func DefaultStrategies() []SelectorStrategy {
	return []SelectorStrategy{
		{
			Name:         "chatgpt",
			Form:         "form:has(#prompt-textarea)",
			Textarea:     "#prompt-textarea",
			SubmitButton: "button[data-testid='send-button']",
		},
		{
			Name:         "claude",
			Form:         "fieldset",
			Textarea:     "div[contenteditable='true'].ProseMirror",
			SubmitButton: "button[aria-label='Send message']",
		},
		{
			Name:         "generic-form",
			Form:         "form",
			Textarea:     "form textarea",
			SubmitButton: "form button[type='submit']",
		},
		{
			Name:         "generic-contenteditable",
			Form:         "form",
			Textarea:     "form [contenteditable='true']",
			SubmitButton: "form button[type='submit']",
		},
	}
}
