// Package document provides an in-memory document root that the theme
// engine can write to. It stands in for a browser's documentElement and is
// what the API server mirrors to connected tabs.
package document

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Root is a goroutine-safe model of a document root element.
type Root struct {
	mu      sync.Mutex
	classes map[string]struct{}
	attrs   map[string]string
	style   map[string]string
	head    map[string]string
	nextID  int
	reflows int
}

// New creates an empty root.
func New() *Root {
	return &Root{
		classes: make(map[string]struct{}),
		attrs:   make(map[string]string),
		style:   make(map[string]string),
		head:    make(map[string]string),
	}
}

// RemoveClass removes names from the class list.
func (r *Root) RemoveClass(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		delete(r.classes, n)
	}
}

// AddClass adds name to the class list.
func (r *Root) AddClass(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[name] = struct{}{}
}

// SetAttribute sets an attribute on the root.
func (r *Root) SetAttribute(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attrs[name] = value
}

// RemoveAttribute removes an attribute from the root.
func (r *Root) RemoveAttribute(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attrs, name)
}

// SetStyleProperty sets an inline style property.
func (r *Root) SetStyleProperty(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.style[name] = value
}

// RemoveStyleProperty removes an inline style property.
func (r *Root) RemoveStyleProperty(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.style, name)
}

// InsertStyle appends a style element to the head.
func (r *Root) InsertStyle(css string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := fmt.Sprintf("style-%d", r.nextID)
	r.head[id] = css
	return id
}

// RemoveStyle removes a style element previously added with InsertStyle.
func (r *Root) RemoveStyle(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.head, id)
}

// Reflow records a forced style computation.
func (r *Root) Reflow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reflows++
}

// HasClass reports whether name is in the class list.
func (r *Root) HasClass(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.classes[name]
	return ok
}

// Attribute returns an attribute value and whether it is set.
func (r *Root) Attribute(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.attrs[name]
	return v, ok
}

// StyleProperty returns an inline style property, or "" if unset.
func (r *Root) StyleProperty(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.style[name]
}

// Styles returns the number of style elements currently in the head.
func (r *Root) Styles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.head)
}

// Reflows returns how many times Reflow was called.
func (r *Root) Reflows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reflows
}

// State is a serializable copy of the root.
type State struct {
	Classes    []string          `json:"classes" yaml:"classes"`
	Attributes map[string]string `json:"attributes" yaml:"attributes"`
	Style      map[string]string `json:"style" yaml:"style"`
	HeadStyles []string          `json:"headStyles,omitempty" yaml:"headStyles,omitempty"`
}

// State returns a copy of the root with classes and head styles sorted.
func (r *Root) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := State{
		Classes:    make([]string, 0, len(r.classes)),
		Attributes: make(map[string]string, len(r.attrs)),
		Style:      make(map[string]string, len(r.style)),
	}
	for c := range r.classes {
		st.Classes = append(st.Classes, c)
	}
	sort.Strings(st.Classes)
	for k, v := range r.attrs {
		st.Attributes[k] = v
	}
	for k, v := range r.style {
		st.Style[k] = v
	}
	ids := make([]string, 0, len(r.head))
	for id := range r.head {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		st.HeadStyles = append(st.HeadStyles, r.head[id])
	}
	return st
}

// String renders the root as an HTML start tag.
func (r *Root) String() string {
	st := r.State()

	var b strings.Builder
	b.WriteString("<html")
	if len(st.Classes) > 0 {
		b.WriteString(` class="`)
		b.WriteString(strings.Join(st.Classes, " "))
		b.WriteString(`"`)
	}
	names := make([]string, 0, len(st.Attributes))
	for k := range st.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(st.Attributes[k])
		b.WriteString(`"`)
	}
	if len(st.Style) > 0 {
		props := make([]string, 0, len(st.Style))
		for k := range st.Style {
			props = append(props, k)
		}
		sort.Strings(props)
		b.WriteString(` style="`)
		for i, k := range props {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(st.Style[k])
			b.WriteString(";")
		}
		b.WriteString(`"`)
	}
	b.WriteString(">")
	return b.String()
}
