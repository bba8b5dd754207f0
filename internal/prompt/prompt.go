// Package prompt renders the instructions sent to a generation backend.
package prompt

import (
	_ "embed"
	"strings"
)

//go:embed templates/summary.tmpl
var summaryTemplate string

//go:embed templates/body.tmpl
var bodyTemplate string

// Placeholders substituted by Build.
const (
	DiffPlaceholder    = "{{DIFF}}"
	ScopesPlaceholder  = "{{SCOPES}}"
	ContextPlaceholder = "{{CONTEXT}}"
)

// Build renders the summary-and-body template when context is non-nil and
// the summary-only template otherwise. Scopes are listed one per line.
//
// Substitution is a single pass, so placeholder text inside diff or context
// is left as is.
func Build(diff string, scopes []string, context *string) string {
	scopeList := strings.Join(scopes, "\n")
	if context == nil {
		return strings.NewReplacer(
			DiffPlaceholder, diff,
			ScopesPlaceholder, scopeList,
		).Replace(summaryTemplate)
	}
	return strings.NewReplacer(
		DiffPlaceholder, diff,
		ScopesPlaceholder, scopeList,
		ContextPlaceholder, *context,
	).Replace(bodyTemplate)
}
