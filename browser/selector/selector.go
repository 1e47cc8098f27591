// Package selector normalizes element locators into the canonical string form
// sent through the driver boundary.
package selector

import (
	"fmt"
	"strings"
)

// Root is the canonical locator of the document root scope.
const Root = "/html"

// Locator renders itself into a driver-addressable selector string.
// allowMultiple reports whether the consumer accepts a result set; single
// element consumers get a locator narrowed to the first match.
type Locator interface {
	Render(allowMultiple bool) string
}

// Normalize converts loc into its canonical string form. A nil locator, or
// one rendering to an empty string, resolves to the root scope.
func Normalize(loc Locator, allowMultiple bool) string {
	if loc == nil {
		return Root
	}
	s := loc.Render(allowMultiple)
	if strings.TrimSpace(s) == "" {
		return Root
	}
	return s
}

// IsRoot reports whether loc addresses the root scope.
func IsRoot(loc Locator) bool {
	return Normalize(loc, false) == Root
}

// Describe returns a human-readable name for loc, used in step messages.
func Describe(loc Locator) string {
	if loc == nil {
		return "<root>"
	}
	if d, ok := loc.(fmt.Stringer); ok {
		return d.String()
	}
	return Normalize(loc, true)
}

// CSS is a CSS selector passed through verbatim.
type CSS string

// Render implements Locator.
func (c CSS) Render(bool) string { return string(c) }

// String implements fmt.Stringer.
func (c CSS) String() string { return "css " + string(c) }

// Raw is a pre-built XPath expression passed through verbatim.
type Raw string

// Render implements Locator.
func (r Raw) Render(bool) string { return string(r) }
