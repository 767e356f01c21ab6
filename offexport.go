package nexus

import (
	"fmt"
	"io"
	"math"
	"path"

	"github.com/scigolib/nexus/internal/geometry"
	"github.com/scigolib/nexus/internal/off"
	"github.com/scigolib/nexus/internal/source"
	"github.com/scigolib/nexus/internal/tree"
)

// cylinderSegments is the vertex budget of an exported cylinder.
const cylinderSegments = 10

// ExportOFF writes every solid geometry and grid shape group of the NeXus
// file at p as one OFF mesh in the lab frame. Pixel shapes are replicated
// at each pixel offset. It returns the number of shapes placed.
func ExportOFF(p string, w io.Writer) (int, error) {
	src, err := source.Open(p)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	x := &offExporter{src: src}
	var vertices []geometry.Vector
	var faces, winding []int
	placed := 0
	err = src.Walk(func(n *source.Node) error {
		if n.Kind != source.KindGroup {
			return nil
		}
		class := classOf(n.Attrs)
		if class != ClassSolidGeometry && class != ClassGridShape {
			return nil
		}
		mesh, err := x.mesh(n.Path)
		if err != nil {
			return err
		}
		copies, err := x.replicate(n.Path, mesh)
		if err != nil {
			return err
		}
		for _, m := range copies {
			if err := x.transform(n.Path, m); err != nil {
				return err
			}
			order, starts := off.FaceVertexMap(m.Faces)
			vertices, faces, winding = off.Accumulate(vertices, faces, winding, m.Vertices, starts, order)
			placed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(vertices) == 0 {
		return 0, &source.FormatError{Path: p, Msg: "no geometry groups found"}
	}
	return placed, off.Write(w, vertices, faces, winding)
}

type offExporter struct {
	src *source.Tree
}

func (x *offExporter) floats(p string) ([]float64, error) {
	ds, err := x.src.Load(p)
	if err != nil {
		return nil, err
	}
	return ds.Floats()
}

func (x *offExporter) ints(p string) ([]int, error) {
	ds, err := x.src.Load(p)
	if err != nil {
		return nil, err
	}
	v, err := ds.Ints()
	if err != nil {
		return nil, err
	}
	out := make([]int, len(v))
	for i, n := range v {
		out[i] = int(n)
	}
	return out, nil
}

func (x *offExporter) has(p string) bool {
	_, ok := x.src.Get(p)
	return ok
}

func vectors(flat []float64) []geometry.Vector {
	out := make([]geometry.Vector, 0, len(flat)/3)
	for i := 0; i+2 < len(flat); i += 3 {
		out = append(out, geometry.Vector{flat[i], flat[i+1], flat[i+2]})
	}
	return out
}

// mesh reads the shape of one geometry group in its own frame.
func (x *offExporter) mesh(group string) (*off.Mesh, error) {
	flat, err := x.floats(path.Join(group, "vertices"))
	if err != nil {
		return nil, err
	}
	vertices := vectors(flat)

	if x.has(path.Join(group, "cylinders")) {
		if len(vertices) < 3 {
			return nil, &source.FormatError{Path: group, Msg: "cylinder needs three vertices"}
		}
		a, b, c := vertices[0], vertices[1], vertices[2]
		axis, height := a.Sub(c).Normalise()
		return off.CylinderMesh(height, b.Sub(a).Norm(), axis, a.Add(c).Scale(0.5), cylinderSegments), nil
	}

	starts, err := x.ints(path.Join(group, "faces"))
	if err != nil {
		return nil, err
	}
	winding, err := x.ints(path.Join(group, "winding_order"))
	if err != nil {
		return nil, err
	}
	m := &off.Mesh{Vertices: vertices}
	for i, start := range starts {
		end := len(winding)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if start < 0 || start > end || end > len(winding) {
			return nil, &source.FormatError{Path: group, Msg: fmt.Sprintf("face %d out of range", i)}
		}
		m.Faces = append(m.Faces, append([]int(nil), winding[start:end]...))
	}
	return m, nil
}

// replicate places a pixel_shape at every pixel offset of the group holding
// it. Other shapes are returned as they are.
func (x *offExporter) replicate(group string, m *off.Mesh) ([]*off.Mesh, error) {
	if path.Base(group) != "pixel_shape" {
		return []*off.Mesh{m}, nil
	}
	parent := path.Dir(group)
	offsets, err := x.pixelOffsets(parent)
	if err != nil {
		return nil, err
	}
	out := make([]*off.Mesh, 0, len(offsets))
	for _, o := range offsets {
		c := &off.Mesh{Faces: m.Faces, Vertices: make([]geometry.Vector, len(m.Vertices))}
		for i, v := range m.Vertices {
			c.Vertices[i] = v.Add(o)
		}
		out = append(out, c)
	}
	return out, nil
}

// pixelOffsets reads x, y and optional z pixel offsets. A grid pattern
// holds one offset per column and per row.
func (x *offExporter) pixelOffsets(group string) ([]geometry.Vector, error) {
	xs, err := x.floats(path.Join(group, "x_pixel_offset"))
	if err != nil {
		return nil, err
	}
	ys, err := x.floats(path.Join(group, "y_pixel_offset"))
	if err != nil {
		return nil, err
	}

	if n, ok := x.src.Get(group); ok && classOf(n.Attrs) == ClassGridPattern {
		out := make([]geometry.Vector, 0, len(xs)*len(ys))
		for _, y := range ys {
			for _, xv := range xs {
				out = append(out, geometry.Vector{xv, y, 0})
			}
		}
		return out, nil
	}

	if len(xs) != len(ys) {
		return nil, &source.FormatError{Path: group, Msg: "x and y pixel offsets differ in length"}
	}
	zs := make([]float64, len(xs))
	if x.has(path.Join(group, "z_pixel_offset")) {
		if zs, err = x.floats(path.Join(group, "z_pixel_offset")); err != nil {
			return nil, err
		}
		if len(zs) != len(xs) {
			return nil, &source.FormatError{Path: group, Msg: "z pixel offsets differ in length"}
		}
	}
	out := make([]geometry.Vector, len(xs))
	for i := range xs {
		out[i] = geometry.Vector{xs[i], ys[i], zs[i]}
	}
	return out, nil
}

// transform moves m into the lab frame with the depends_on chain of the
// nearest enclosing group that has one.
func (x *offExporter) transform(group string, m *off.Mesh) error {
	owner := group
	for !x.has(path.Join(owner, "depends_on")) {
		if owner == "/" {
			return nil
		}
		owner = path.Dir(owner)
	}
	next, err := x.scalarString(path.Join(owner, "depends_on"))
	if err != nil {
		return err
	}

	for steps := 0; next != "." && next != ""; steps++ {
		if steps > 64 {
			return &source.FormatError{Path: owner, Msg: "depends_on chain does not end"}
		}
		if !path.IsAbs(next) {
			next = path.Join(owner, next)
		}
		t, err := x.transformation(next)
		if err != nil {
			return err
		}
		for i, v := range m.Vertices {
			m.Vertices[i] = t.apply(v)
		}
		next = t.dependsOn
	}
	return nil
}

func (x *offExporter) scalarString(p string) (string, error) {
	ds, err := x.src.Load(p)
	if err != nil {
		return "", err
	}
	s, err := ds.Strings()
	if err != nil || len(s) == 0 {
		return "", &source.FormatError{Path: p, Msg: "want a string"}
	}
	return s[0], nil
}

type placedTransform struct {
	rotation  bool
	value     float64
	vector    geometry.Vector
	offset    geometry.Vector
	dependsOn string
}

func (t placedTransform) apply(v geometry.Vector) geometry.Vector {
	if t.rotation {
		v = geometry.RotationFromAxisAngle(t.vector, t.value).Apply(v)
	} else {
		unit, _ := t.vector.Normalise()
		v = v.Add(unit.Scale(t.value))
	}
	return v.Add(t.offset)
}

func (x *offExporter) transformation(p string) (placedTransform, error) {
	n, ok := x.src.Get(p)
	if !ok {
		return placedTransform{}, &source.FormatError{Path: p, Msg: "missing transformation"}
	}
	values, err := x.floats(p)
	if err != nil {
		return placedTransform{}, err
	}
	if len(values) == 0 {
		return placedTransform{}, &source.FormatError{Path: p, Msg: "empty transformation"}
	}

	t := placedTransform{value: values[0], dependsOn: "."}
	kind, _ := tree.GetAttr(n.Attrs, "transformation_type")
	switch kind {
	case "rotation":
		t.rotation = true
		if units, _ := tree.GetAttr(n.Attrs, "units"); units != "rad" && units != "radians" {
			t.value = t.value * math.Pi / 180
		}
	case "translation":
	default:
		return placedTransform{}, &source.FormatError{Path: p, Msg: fmt.Sprintf("unknown transformation_type %v", kind)}
	}
	raw, _ := tree.GetAttr(n.Attrs, "vector")
	if t.vector, ok = attrVector(raw); !ok {
		return placedTransform{}, &source.FormatError{Path: p, Msg: "vector attribute must hold three numbers"}
	}
	if raw, set := tree.GetAttr(n.Attrs, "offset"); set {
		if t.offset, ok = attrVector(raw); !ok {
			return placedTransform{}, &source.FormatError{Path: p, Msg: "offset attribute must hold three numbers"}
		}
	}
	if d, set := tree.GetAttr(n.Attrs, "depends_on"); set {
		if s, isString := d.(string); isString {
			t.dependsOn = s
		}
	}
	return t, nil
}

// attrVector converts an attribute value read back from a file to a
// vector.
func attrVector(v any) (geometry.Vector, bool) {
	var flat []float64
	switch a := v.(type) {
	case []float64:
		flat = a
	case []float32:
		for _, x := range a {
			flat = append(flat, float64(x))
		}
	case []int64:
		for _, x := range a {
			flat = append(flat, float64(x))
		}
	case []int32:
		for _, x := range a {
			flat = append(flat, float64(x))
		}
	case []interface{}:
		for _, x := range a {
			f, ok := x.(float64)
			if !ok {
				return geometry.Vector{}, false
			}
			flat = append(flat, f)
		}
	}
	if len(flat) != 3 {
		return geometry.Vector{}, false
	}
	return geometry.Vector{flat[0], flat[1], flat[2]}, true
}
