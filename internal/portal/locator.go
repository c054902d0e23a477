package portal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Step is one hop of a Locator: every match of Selector under the previous
// hop, narrowed to the Index-th one.
type Step struct {
	Selector string
	Index    int
}

// Locator addresses an element as a chain of CSS selector hops. Locators are
// values; every method returns a copy.
type Locator struct {
	steps []Step
}

// Query locates the first document-level match of selector
func Query(selector string) Locator {
	return Locator{steps: []Step{{Selector: selector}}}
}

// Nth narrows the last hop to its i-th match
func (l Locator) Nth(i int) Locator {
	steps := l.Steps()
	if len(steps) > 0 {
		steps[len(steps)-1].Index = i
	}
	return Locator{steps: steps}
}

// Find descends into selector below the current element
func (l Locator) Find(selector string) Locator {
	steps := append(l.Steps(), Step{Selector: selector})
	return Locator{steps: steps}
}

// Steps returns a copy of the hops
func (l Locator) Steps() []Step {
	out := make([]Step, len(l.steps))
	copy(out, l.steps)
	return out
}

func (l Locator) String() string {
	parts := make([]string, len(l.steps))
	for i, s := range l.steps {
		parts[i] = fmt.Sprintf("%s[%d]", s.Selector, s.Index)
	}
	return strings.Join(parts, " >> ")
}

// JSElement renders a JavaScript expression evaluating to the element or
// undefined.
func (l Locator) JSElement() string {
	if len(l.steps) == 0 {
		return "undefined"
	}
	var b strings.Builder
	b.WriteString("document")
	for i, s := range l.steps {
		if i > 0 {
			b.WriteString("?.")
		} else {
			b.WriteString(".")
		}
		fmt.Fprintf(&b, "querySelectorAll(%s)[%d]", jsString(s.Selector), s.Index)
	}
	return b.String()
}

// JSCount renders a JavaScript expression counting the matches of the last
// hop under the resolved parent.
func (l Locator) JSCount() string {
	if len(l.steps) == 0 {
		return "0"
	}
	last := l.steps[len(l.steps)-1]
	if len(l.steps) == 1 {
		return fmt.Sprintf("document.querySelectorAll(%s).length", jsString(last.Selector))
	}
	parent := Locator{steps: l.steps[:len(l.steps)-1]}
	return fmt.Sprintf("(%s?.querySelectorAll(%s).length ?? 0)", parent.JSElement(), jsString(last.Selector))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// AttrValue quotes a value for use inside a CSS attribute selector
func AttrValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
