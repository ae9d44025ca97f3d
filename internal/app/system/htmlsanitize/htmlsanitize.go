// internal/app/system/htmlsanitize/htmlsanitize.go
// Package htmlsanitize cleans user-supplied comment text before it is
// stored or relayed to other viewers.
package htmlsanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	once   sync.Once
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	once.Do(func() {
		ugc = bluemonday.UGCPolicy()
		ugc.AllowElements("u", "s", "mark")
		strict = bluemonday.StrictPolicy()
	})
	return ugc, strict
}

// Sanitize keeps basic formatting (emphasis, lists, code, links) and strips
// scripts, event handlers, iframes and unsafe URLs. Surrounding whitespace
// is trimmed. Text without markup is returned as typed, unescaped.
func Sanitize(s string) string {
	if IsPlainText(s) {
		return strings.TrimSpace(s)
	}
	p, _ := policies()
	return strings.TrimSpace(p.Sanitize(s))
}

// StripTags removes all markup, leaving text only. Used for short fields
// such as typing-indicator usernames and notification titles.
func StripTags(s string) string {
	if IsPlainText(s) {
		return strings.TrimSpace(s)
	}
	_, p := policies()
	return strings.TrimSpace(p.Sanitize(s))
}

// IsPlainText reports whether s contains no markup.
func IsPlainText(s string) bool {
	return !strings.ContainsAny(s, "<>")
}
