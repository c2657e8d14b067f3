// Package locator validates XPath-like locator expressions and mines
// them for matching anchors. Locators are treated as untrusted input:
// they come from recordings made on other devices and app versions.
package locator

import (
	"regexp"
	"strings"

	"github.com/devicelab-dev/tapresolver/pkg/core"
)

var (
	resourceIDRe  = regexp.MustCompile(`@resource-id\s*=\s*["']([^"']+)["']`)
	contentDescRe = regexp.MustCompile(`@content-desc\s*=\s*["']([^"']+)["']`)
	textRe        = regexp.MustCompile(`@text\s*=\s*["']([^"']+)["']`)
	containsRe    = regexp.MustCompile(`contains\s*\(\s*@(text|content-desc)\s*,\s*["']([^"']+)["']\s*\)`)
	childTextRe   = regexp.MustCompile(`\[\s*\.?//\*?\w*\[?@text\s*=\s*["']([^"']+)["']`)
)

// Validate checks that an expression is structurally sound: a valid
// prefix, balanced brackets and parentheses outside string literals,
// and no embedded newlines. It does not evaluate the expression.
func Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return core.ErrInvalidLocator.WithMessage("empty locator expression")
	}
	if strings.ContainsAny(expr, "\n\r") {
		return core.ErrInvalidLocator.WithMessage("locator contains a newline")
	}
	if !strings.HasPrefix(expr, "//") && !strings.HasPrefix(expr, "/") && !strings.HasPrefix(expr, "(") {
		return core.ErrInvalidLocator.WithMessage("locator must start with //, / or (")
	}

	var quote rune // active string delimiter, 0 when outside a literal
	brackets := 0
	parens := 0
	for _, r := range expr {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			quote = r
		case '[':
			brackets++
		case ']':
			brackets--
			if brackets < 0 {
				return core.ErrInvalidLocator.WithMessage("unbalanced ] in locator")
			}
		case '(':
			parens++
		case ')':
			parens--
			if parens < 0 {
				return core.ErrInvalidLocator.WithMessage("unbalanced ) in locator")
			}
		}
	}
	if quote != 0 {
		return core.ErrInvalidLocator.WithMessage("unterminated string literal in locator")
	}
	if brackets != 0 || parens != 0 {
		return core.ErrInvalidLocator.WithMessage("unbalanced brackets in locator")
	}
	return nil
}

// ResourceID extracts the resource-id equality anchor, or "".
func ResourceID(expr string) string {
	if m := resourceIDRe.FindStringSubmatch(expr); m != nil {
		return m[1]
	}
	return ""
}

// ContentDesc extracts the content-desc equality anchor, or "".
func ContentDesc(expr string) string {
	if m := contentDescRe.FindStringSubmatch(expr); m != nil {
		return m[1]
	}
	return ""
}

// Text extracts the text equality anchor, or "".
func Text(expr string) string {
	if m := textRe.FindStringSubmatch(expr); m != nil {
		return m[1]
	}
	return ""
}

// Contains extracts a contains() anchor and reports which attribute it
// targets ("text" or "content-desc"). Both values are "" when absent.
func Contains(expr string) (attr, value string) {
	if m := containsRe.FindStringSubmatch(expr); m != nil {
		return m[1], m[2]
	}
	return "", ""
}

// ChildText extracts a descendant text predicate, the pattern produced
// by anchoring a container on one of its labels, e.g.
// //*[@resource-id="id/card"][.//*[@text="Alice"]]. Returns "" when the
// locator has no such predicate.
func ChildText(expr string) string {
	// An equality on the element itself is not a child predicate.
	if m := childTextRe.FindStringSubmatch(expr); m != nil {
		return m[1]
	}
	return ""
}
