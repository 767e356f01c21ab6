// Package source opens an existing HDF5/NeXus file as a read-only tree of
// groups and datasets whose values can be carried into a new file.
package source

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/scigolib/hdf5"

	"github.com/scigolib/nexus/internal/tree"
	"github.com/scigolib/nexus/internal/utils"
)

// Kind distinguishes groups from datasets.
type Kind int

// Node kinds.
const (
	KindGroup Kind = iota + 1
	KindDataset
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	}
	return "unknown"
}

// Node describes one object of the source file.
type Node struct {
	Path     string
	Name     string
	Kind     Kind
	Attrs    []tree.Attribute
	Children []string
	Info     Info

	dataset *hdf5.Dataset
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for skipped objects and attributes.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Tree is an opened source file.
type Tree struct {
	path   string
	file   *hdf5.File
	nodes  map[string]*Node
	order  []string
	logger *slog.Logger
}

// Open reads the structure of the file at p. Values are read on demand by
// Load.
func Open(p string, opts ...Option) (*Tree, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := hdf5.Open(p)
	if err != nil {
		return nil, &IOError{Path: p, Op: "open", Err: err}
	}

	t := &Tree{path: p, file: f, nodes: map[string]*Node{}, logger: o.logger}
	var walkErr error
	f.Walk(func(raw string, obj hdf5.Object) {
		if walkErr != nil {
			return
		}
		walkErr = t.add(cleanPath(raw), obj)
	})
	if walkErr != nil {
		_ = f.Close()
		return nil, &IOError{Path: p, Op: "read", Err: walkErr}
	}
	o.logger.Debug("opened source file", "path", p, "objects", len(t.order))
	return t, nil
}

func cleanPath(raw string) string {
	p := strings.TrimSuffix(raw, "/")
	if p == "" {
		return "/"
	}
	return p
}

func (t *Tree) add(p string, obj hdf5.Object) error {
	n := &Node{Path: p, Name: path.Base(p)}
	switch o := obj.(type) {
	case *hdf5.Group:
		n.Kind = KindGroup
		attrs, err := o.Attributes()
		if err != nil {
			return utils.WrapError("attributes of "+p, err)
		}
		for _, a := range attrs {
			n.Attrs = t.appendAttr(n.Attrs, p, a.Name, a.ReadValue)
		}
	case *hdf5.Dataset:
		n.Kind = KindDataset
		n.dataset = o
		desc, err := o.Info()
		if err == nil {
			n.Info, err = parseInfo(desc)
		}
		if err != nil {
			n.Info = Info{Unsupported: err.Error()}
		}
		if n.Info.Unsupported != "" {
			t.logger.Warn("dataset cannot be loaded", "path", p, "reason", n.Info.Unsupported)
		}
		attrs, err := o.Attributes()
		if err != nil {
			return utils.WrapError("attributes of "+p, err)
		}
		for _, a := range attrs {
			n.Attrs = t.appendAttr(n.Attrs, p, a.Name, a.ReadValue)
		}
	default:
		t.logger.Warn("skipping unsupported object", "path", p, "type", fmt.Sprintf("%T", obj))
		return nil
	}

	if p != "/" {
		if parent, ok := t.nodes[path.Dir(p)]; ok {
			parent.Children = append(parent.Children, p)
		}
	}
	t.nodes[p] = n
	t.order = append(t.order, p)
	return nil
}

func (t *Tree) appendAttr(attrs []tree.Attribute, p, name string, read func() (interface{}, error)) []tree.Attribute {
	v, err := read()
	if err != nil {
		t.logger.Warn("skipping unreadable attribute", "path", p, "attribute", name, "error", err)
		return attrs
	}
	if empty, ok := v.([]interface{}); ok && len(empty) == 0 {
		return attrs
	}
	return append(attrs, tree.Attribute{Name: name, Value: v})
}

// Path is the file the tree was opened from.
func (t *Tree) Path() string { return t.path }

// Get returns the node at p.
func (t *Tree) Get(p string) (*Node, bool) {
	n, ok := t.nodes[cleanPath(p)]
	return n, ok
}

// Require checks that every path exists.
func (t *Tree) Require(paths ...string) error {
	for _, p := range paths {
		if _, ok := t.Get(p); !ok {
			return &FormatError{Path: p, Msg: "missing"}
		}
	}
	return nil
}

// Walk visits nodes in file order, parents before children.
func (t *Tree) Walk(fn func(*Node) error) error {
	for _, p := range t.order {
		if err := fn(t.nodes[p]); err != nil {
			return err
		}
	}
	return nil
}

// Datasets lists dataset paths sorted lexically.
func (t *Tree) Datasets() []string {
	var out []string
	for _, p := range t.order {
		if t.nodes[p].Kind == KindDataset {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Load reads a dataset into a detached tree.Dataset carrying the same
// shape, values and attributes.
func (t *Tree) Load(p string) (*tree.Dataset, error) {
	n, ok := t.Get(p)
	if !ok {
		return nil, &FormatError{Path: p, Msg: "missing"}
	}
	if n.Kind != KindDataset {
		return nil, &FormatError{Path: p, Msg: "is a " + n.Kind.String() + ", want dataset"}
	}
	if n.Info.Unsupported != "" {
		return nil, &FormatError{Path: p, Msg: "unsupported " + n.Info.Unsupported, Err: ErrUnsupported}
	}

	ds := &tree.Dataset{
		Name:  n.Name,
		Type:  n.Info.Type,
		Dims:  append([]uint64(nil), n.Info.Dims...),
		Attrs: append([]tree.Attribute(nil), n.Attrs...),
	}
	if n.Info.Type == tree.String {
		values, err := n.dataset.ReadStrings()
		if err != nil {
			return nil, &IOError{Path: t.path, Op: "read " + p, Err: err}
		}
		ds.Data = values
		ds.StringSize = uint32(n.Info.Size) //nolint:gosec // element size from the file header
	} else {
		values, err := n.dataset.Read()
		if err != nil {
			return nil, &IOError{Path: t.path, Op: "read " + p, Err: err}
		}
		if n.Info.Type == tree.Int64 && !exact(values) {
			return nil, &FormatError{Path: p, Msg: "64-bit integers beyond 2^53 cannot be read exactly", Err: ErrUnsupported}
		}
		ds.Data = narrow(values, n.Info.Type)
	}
	if err := ds.Validate(); err != nil {
		return nil, &FormatError{Path: p, Msg: err.Error()}
	}
	return ds, nil
}

// maxExact is the largest magnitude below which every integer has an exact
// float64 representation.
const maxExact = 1 << 53

// exact reports whether integer values survived the reader's float64
// conversion unchanged.
func exact(v []float64) bool {
	for _, x := range v {
		if math.Abs(x) >= maxExact {
			return false
		}
	}
	return true
}

// narrow converts the reader's float64 values back to the stored type.
func narrow(v []float64, t tree.Datatype) any {
	switch t {
	case tree.Int32:
		out := make([]int32, len(v))
		for i, x := range v {
			out[i] = int32(x)
		}
		return out
	case tree.Int64:
		out := make([]int64, len(v))
		for i, x := range v {
			out[i] = int64(x)
		}
		return out
	case tree.Float32:
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(x)
		}
		return out
	}
	return v
}

// Close releases the file. Calling it more than once is safe.
func (t *Tree) Close() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	if err != nil {
		return &IOError{Path: t.path, Op: "close", Err: err}
	}
	return nil
}
