package selector

import (
	"fmt"
	"strings"
)

// XPath is a structured locator compiled to an XPath expression.
//
//	selector.Tag("button").WithAttr("type", "submit").WithText("Sign in")
//
// renders to //button[@type="submit"][contains(normalize-space(.), "Sign in")]
// and, for single-element consumers, to (...)[1].
type XPath struct {
	steps []step
	name  string
}

type step struct {
	axis       string
	tag        string
	predicates []string
	index      int
}

// Tag starts a locator matching tag anywhere in the document.
func Tag(tag string) *XPath {
	return &XPath{steps: []step{{axis: "//", tag: tagOrAny(tag)}}}
}

// Any starts a locator matching any element.
func Any() *XPath {
	return Tag("*")
}

// Named attaches a display name used in step messages.
func (x *XPath) Named(name string) *XPath {
	c := x.clone()
	c.name = name
	return c
}

// WithAttr adds an exact attribute predicate to the last step.
func (x *XPath) WithAttr(name, value string) *XPath {
	return x.where(fmt.Sprintf("@%s=%s", name, literal(value)))
}

// WithID is shorthand for WithAttr("id", id).
func (x *XPath) WithID(id string) *XPath {
	return x.WithAttr("id", id)
}

// WithClass matches elements whose class list contains class.
func (x *XPath) WithClass(class string) *XPath {
	return x.where(fmt.Sprintf(`contains(concat(" ", normalize-space(@class), " "), %s)`, literal(" "+class+" ")))
}

// WithText matches elements whose normalized text contains text.
func (x *XPath) WithText(text string) *XPath {
	return x.where(fmt.Sprintf("contains(normalize-space(.), %s)", literal(text)))
}

// At narrows the last step to its n-th match (1-based).
func (x *XPath) At(n int) *XPath {
	c := x.clone()
	c.steps[len(c.steps)-1].index = n
	return c
}

// Child appends a direct child step.
func (x *XPath) Child(tag string) *XPath {
	c := x.clone()
	c.steps = append(c.steps, step{axis: "/", tag: tagOrAny(tag)})
	return c
}

// Descendant appends a descendant step.
func (x *XPath) Descendant(tag string) *XPath {
	c := x.clone()
	c.steps = append(c.steps, step{axis: "//", tag: tagOrAny(tag)})
	return c
}

// Render implements Locator. Without allowMultiple the expression is wrapped
// so that it addresses only the first match in document order.
func (x *XPath) Render(allowMultiple bool) string {
	if x == nil || len(x.steps) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range x.steps {
		b.WriteString(s.axis)
		b.WriteString(s.tag)
		for _, p := range s.predicates {
			b.WriteByte('[')
			b.WriteString(p)
			b.WriteByte(']')
		}
		if s.index > 0 {
			fmt.Fprintf(&b, "[%d]", s.index)
		}
	}
	expr := b.String()
	if allowMultiple {
		return expr
	}
	return "(" + expr + ")[1]"
}

// String implements fmt.Stringer.
func (x *XPath) String() string {
	if x == nil {
		return "<root>"
	}
	if x.name != "" {
		return x.name
	}
	return x.Render(true)
}

func (x *XPath) where(predicate string) *XPath {
	c := x.clone()
	last := &c.steps[len(c.steps)-1]
	last.predicates = append(last.predicates, predicate)
	return c
}

func (x *XPath) clone() *XPath {
	c := &XPath{name: x.name, steps: make([]step, len(x.steps))}
	for i, s := range x.steps {
		s.predicates = append([]string(nil), s.predicates...)
		c.steps[i] = s
	}
	return c
}

func tagOrAny(tag string) string {
	if tag == "" {
		return "*"
	}
	return tag
}

// literal quotes s as an XPath string literal, falling back to concat() when
// s contains both quote kinds.
func literal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
