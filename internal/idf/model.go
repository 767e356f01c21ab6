package idf

import (
	"github.com/scigolib/nexus/internal/geometry"
)

// Category classifies a component by the "is" attribute of its type.
type Category int

// Component categories.
const (
	Other Category = iota
	Source
	SamplePos
	Monitor
	Detector
	RectangularDetector
	StructuredDetector
)

var categoryNames = [...]string{"other", "source", "sample", "monitor", "detector",
	"rectangular_detector", "structured_detector"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// ShapeKind identifies a shape primitive.
type ShapeKind string

// Supported shape kinds.
const (
	Cylinder ShapeKind = "cylinder"
	Cuboid   ShapeKind = "cuboid"
	Mesh     ShapeKind = "mesh"
)

// Shape holds the fields read for a shape primitive. Fields absent from the
// definition are absent from the maps.
type Shape struct {
	Kind    ShapeKind
	Scalars map[string]float64
	Vectors map[string]geometry.Vector
}

// Scalar returns a named scalar field.
func (s *Shape) Scalar(name string) (float64, bool) {
	v, ok := s.Scalars[name]
	return v, ok
}

// Vector returns a named vector field.
func (s *Shape) Vector(name string) (geometry.Vector, bool) {
	v, ok := s.Vectors[name]
	return v, ok
}

// Rotation is an angle in degrees about an axis in NeXus coordinates.
type Rotation struct {
	Angle float64
	Axis  geometry.Vector
}

// PixelGrid describes a RectangularDetector bank. Params holds the numeric
// attributes present on the type (xpixels, xstart, xstep and the y
// equivalents).
type PixelGrid struct {
	Params     map[string]float64
	PixelType  string
	PixelShape *Shape
}

// StructuredGrid describes a StructuredDetector. Vertices are ordered with
// x varying fastest, one more than the pixel count in each direction.
type StructuredGrid struct {
	Params   map[string]float64
	Vertices []geometry.Vector
}

// Component is one placed instance of an instrument component.
type Component struct {
	Name     string
	TypeName string
	Category Category
	Position geometry.Vector
	Rotation *Rotation
	// Shape is the component's own shape, or the pixel shape for detector
	// assemblies.
	Shape *Shape
	IDs   []int
	// Offsets are pixel positions relative to Position for detector
	// assemblies.
	Offsets    []geometry.Vector
	Grid       *PixelGrid
	Structured *StructuredGrid
	// GridIDs are the pixel ids of a grid detector, indexed [y][x].
	GridIDs [][]int
}

// Definition is a parsed instrument definition.
type Definition struct {
	Name        string
	LengthUnits string
	AngleUnits  string
	Transformer *geometry.Transformer

	components []*Component
	byName     map[string]*Component
}

// Components returns every placed component keyed by its unique name.
func (d *Definition) Components() map[string]*Component {
	out := make(map[string]*Component, len(d.byName))
	for k, v := range d.byName {
		out[k] = v
	}
	return out
}

// Names returns component names in document order.
func (d *Definition) Names() []string {
	names := make([]string, len(d.components))
	for i, c := range d.components {
		names[i] = c.Name
	}
	return names
}

// Ordered returns components in document order.
func (d *Definition) Ordered() []*Component {
	return append([]*Component(nil), d.components...)
}

// Component looks a component up by name.
func (d *Definition) Component(name string) (*Component, error) {
	c, ok := d.byName[name]
	if !ok {
		return nil, &NotFoundError{What: "component", Name: name}
	}
	return c, nil
}

// ByCategory returns the components of one category in document order.
func (d *Definition) ByCategory(cat Category) []*Component {
	var out []*Component
	for _, c := range d.components {
		if c.Category == cat {
			out = append(out, c)
		}
	}
	return out
}

// Source returns the first source component.
func (d *Definition) Source() (*Component, error) {
	if s := d.ByCategory(Source); len(s) > 0 {
		return s[0], nil
	}
	return nil, &NotFoundError{What: "source"}
}

// SamplePosition returns the sample position.
func (d *Definition) SamplePosition() (geometry.Vector, error) {
	if s := d.ByCategory(SamplePos); len(s) > 0 {
		return s[0].Position, nil
	}
	return geometry.Vector{}, &NotFoundError{What: "sample position"}
}

// Monitors returns monitor components in id-assignment order.
func (d *Definition) Monitors() []*Component {
	return d.ByCategory(Monitor)
}
