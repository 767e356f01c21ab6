// Package tree is the in-memory model of a hierarchical data file: groups
// holding attributes and named children, typed n-dimensional datasets, and
// hard links. Output files are assembled as a tree and serialized once.
package tree

import (
	"fmt"
	"path"
	"strings"
)

// Node is a named member of a group.
type Node interface {
	NodeName() string
}

// Attribute is a named value attached to a group or dataset. Values are
// string, int32, int64, uint32, uint64, float32, float64 or slices of the
// numeric types.
type Attribute struct {
	Name  string
	Value any
}

// Link is a hard link to another object addressed by absolute path.
type Link struct {
	Name   string
	Target string
}

// NodeName implements Node.
func (l *Link) NodeName() string { return l.Name }

// Group is a container of named children.
type Group struct {
	Name  string
	Attrs []Attribute

	children []Node
	index    map[string]Node
}

// NodeName implements Node.
func (g *Group) NodeName() string { return g.Name }

// NewGroup returns an empty group. A non-empty nxClass is stored as the
// NX_class attribute.
func NewGroup(name, nxClass string) *Group {
	g := &Group{Name: name, index: map[string]Node{}}
	if nxClass != "" {
		g.SetAttr("NX_class", nxClass)
	}
	return g
}

// SetAttr adds or replaces an attribute.
func SetAttr(attrs *[]Attribute, name string, value any) {
	for i := range *attrs {
		if (*attrs)[i].Name == name {
			(*attrs)[i].Value = value
			return
		}
	}
	*attrs = append(*attrs, Attribute{Name: name, Value: value})
}

// GetAttr finds an attribute by name.
func GetAttr(attrs []Attribute, name string) (any, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// SetAttr adds or replaces an attribute on g.
func (g *Group) SetAttr(name string, value any) { SetAttr(&g.Attrs, name, value) }

// Attr returns an attribute of g.
func (g *Group) Attr(name string) (any, bool) { return GetAttr(g.Attrs, name) }

// Class returns the NX_class attribute, or "".
func (g *Group) Class() string {
	v, _ := g.Attr("NX_class")
	s, _ := v.(string)
	return s
}

// Add appends a child. Names must be unique within the group.
func (g *Group) Add(n Node) error {
	if g.index == nil {
		g.index = map[string]Node{}
	}
	name := n.NodeName()
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid member name %q in group %q", name, g.Name)
	}
	if _, dup := g.index[name]; dup {
		return fmt.Errorf("group %q already has a member %q", g.Name, name)
	}
	g.index[name] = n
	g.children = append(g.children, n)
	return nil
}

// Children returns members in insertion order.
func (g *Group) Children() []Node {
	return append([]Node(nil), g.children...)
}

// Child returns the named direct member.
func (g *Group) Child(name string) (Node, bool) {
	n, ok := g.index[name]
	return n, ok
}

// Lookup resolves a slash-separated path relative to g. A leading slash is
// ignored, so g acts as the root. Links are not followed.
func (g *Group) Lookup(p string) (Node, bool) {
	p = strings.Trim(p, "/")
	if p == "" {
		return g, true
	}
	cur := g
	parts := strings.Split(p, "/")
	for i, part := range parts {
		n, ok := cur.Child(part)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return n, true
		}
		next, ok := n.(*Group)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Ensure returns the group at p, creating missing groups without a class.
func (g *Group) Ensure(p string) (*Group, error) {
	p = strings.Trim(p, "/")
	if p == "" {
		return g, nil
	}
	cur := g
	for _, part := range strings.Split(p, "/") {
		n, ok := cur.Child(part)
		if !ok {
			child := NewGroup(part, "")
			if err := cur.Add(child); err != nil {
				return nil, err
			}
			cur = child
			continue
		}
		next, ok := n.(*Group)
		if !ok {
			return nil, fmt.Errorf("%q is not a group", part)
		}
		cur = next
	}
	return cur, nil
}

// AddAt places n under the group at parent, creating intermediate groups.
func (g *Group) AddAt(parent string, n Node) error {
	dst, err := g.Ensure(parent)
	if err != nil {
		return err
	}
	return dst.Add(n)
}

// WalkFunc is called for every node below the starting group with its
// absolute path.
type WalkFunc func(p string, n Node) error

// Walk visits members depth first in insertion order. Parents are visited
// before their members.
func (g *Group) Walk(fn WalkFunc) error {
	return g.walk("/", fn)
}

func (g *Group) walk(prefix string, fn WalkFunc) error {
	for _, n := range g.children {
		p := path.Join(prefix, n.NodeName())
		if err := fn(p, n); err != nil {
			return err
		}
		if sub, ok := n.(*Group); ok {
			if err := sub.walk(p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
