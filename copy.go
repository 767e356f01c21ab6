package nexus

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/scigolib/nexus/internal/source"
	"github.com/scigolib/nexus/internal/tree"
)

// CopyRule carries the dataset or group at From in the source file to To
// in the output. An empty To keeps the path. A non-zero Truncate keeps only
// that many entries along the first dimension.
type CopyRule struct {
	From     string
	To       string
	Truncate uint64
}

// Carried records one dataset copied from the source file.
type Carried struct {
	Source string
	Target string
	Dims   []uint64
	Digest [32]byte
}

// CopyItems copies datasets from src into the output tree. Groups on the
// way are created with the source group's attributes, or have missing
// attributes added when they already exist. Datasets keep their attributes
// except "target".
//
// With no rules every dataset is carried to its own path, and datasets that
// would overwrite mapped geometry or that cannot be read back exactly are
// skipped with a warning. With rules both are errors.
func (b *Builder) CopyItems(src *source.Tree, rules []CopyRule) ([]Carried, error) {
	explicit := len(rules) > 0
	if !explicit {
		rules = []CopyRule{{From: "/"}}
	}

	var carried []Carried
	for _, r := range rules {
		from := path.Clean("/" + r.From)
		to := from
		if r.To != "" {
			to = path.Clean("/" + r.To)
		}
		node, ok := src.Get(from)
		if !ok {
			return nil, &source.FormatError{Path: from, Msg: "missing, cannot copy"}
		}

		paths := []string{from}
		counterpart := func(tdir string) (string, bool) { return tdir, from == to }
		if node.Kind == source.KindGroup {
			paths = datasetsUnder(src, from)
			counterpart = func(tdir string) (string, bool) {
				rel, ok := within(tdir, to)
				return path.Join(from, rel), ok
			}
		}
		for _, sp := range paths {
			tp := to
			if sp != from {
				tp = path.Join(to, strings.TrimPrefix(sp, strings.TrimSuffix(from, "/")))
			}
			if _, exists := b.root.Lookup(tp); exists {
				if explicit {
					return nil, fmt.Errorf("copy %s: %s already exists in the output", sp, tp)
				}
				b.logger.Warn("skipping dataset already in the output", "path", tp)
				continue
			}
			c, err := b.carry(src, sp, tp, r.Truncate, counterpart)
			if !explicit && errors.Is(err, source.ErrUnsupported) {
				b.logger.Warn("skipping dataset that cannot be carried exactly", "path", sp, "error", err)
				continue
			}
			if err != nil {
				return nil, err
			}
			carried = append(carried, c)
		}
	}
	b.logger.Info("copied datasets from source", "file", src.Path(), "datasets", len(carried))
	return carried, nil
}

func datasetsUnder(src *source.Tree, group string) []string {
	prefix := strings.TrimSuffix(group, "/") + "/"
	var out []string
	for _, p := range src.Datasets() {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// within returns p relative to dir when p is dir or below it.
func within(p, dir string) (string, bool) {
	if p == dir {
		return "", true
	}
	if dir == "/" {
		return strings.TrimPrefix(p, "/"), true
	}
	rel, ok := strings.CutPrefix(p, dir+"/")
	return rel, ok
}

func (b *Builder) carry(src *source.Tree, sp, tp string, truncate uint64, counterpart func(string) (string, bool)) (Carried, error) {
	ds, err := src.Load(sp)
	if err != nil {
		return Carried{}, err
	}
	if truncate > 0 {
		ds = ds.Truncate(truncate)
	}
	ds.Name = path.Base(tp)
	ds.Attrs = withoutAttr(ds.Attrs, "target")

	parent, err := b.ensureGroups(src, path.Dir(tp), counterpart)
	if err != nil {
		return Carried{}, err
	}
	if err := parent.Add(ds); err != nil {
		return Carried{}, fmt.Errorf("copy %s: %w", sp, err)
	}
	digest, err := ds.Digest()
	if err != nil {
		return Carried{}, err
	}
	b.logger.Debug("carried dataset", "from", sp, "to", tp, "dims", ds.Dims)
	return Carried{Source: sp, Target: tp, Dims: ds.Dims, Digest: digest}, nil
}

// ensureGroups returns the output group at tdir, creating it and its
// parents as needed. A group with a counterpart in the source file gains
// the attributes of that group it does not already have.
func (b *Builder) ensureGroups(src *source.Tree, tdir string, counterpart func(string) (string, bool)) (*tree.Group, error) {
	if tdir == "/" {
		return b.root, nil
	}
	parent, err := b.ensureGroups(src, path.Dir(tdir), counterpart)
	if err != nil {
		return nil, err
	}

	name := path.Base(tdir)
	var g *tree.Group
	if n, ok := parent.Child(name); ok {
		if g, ok = n.(*tree.Group); !ok {
			return nil, fmt.Errorf("%s exists in the output and is not a group", tdir)
		}
	} else {
		g = tree.NewGroup(name, "")
		if err := parent.Add(g); err != nil {
			return nil, err
		}
	}

	sdir, ok := counterpart(tdir)
	if !ok {
		return g, nil
	}
	if node, found := src.Get(sdir); found && node.Kind == source.KindGroup {
		for _, a := range node.Attrs {
			if _, set := g.Attr(a.Name); !set {
				g.SetAttr(a.Name, a.Value)
			}
		}
		b.features.addForClass(classOf(node.Attrs))
	}
	return g, nil
}

func classOf(attrs []tree.Attribute) string {
	v, _ := tree.GetAttr(attrs, "NX_class")
	s, _ := v.(string)
	return s
}

func withoutAttr(attrs []tree.Attribute, name string) []tree.Attribute {
	out := attrs[:0:0]
	for _, a := range attrs {
		if a.Name != name {
			out = append(out, a)
		}
	}
	return out
}
