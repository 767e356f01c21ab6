package nexus

import (
	"github.com/scigolib/nexus/internal/idf"
)

// Group kinds of the proposed schema.
const (
	kindSolidGeometry = "solid_geometry"
	kindGridPattern   = "grid_pattern"
	kindGridShape     = "grid_shape"
)

// Values of the shape dataset in a solid geometry group.
type shapeName string

const (
	cylinderShape shapeName = "cylinder"
	cuboidShape   shapeName = "cuboid"
	meshShape     shapeName = "mesh"
)

// rule is one row of the mapping table: the group a component turns into
// and the definition fields it cannot do without.
type rule struct {
	kind     string
	class    string
	required []string
}

var (
	solidRules = map[idf.ShapeKind]rule{
		idf.Cylinder: {
			kind:     kindSolidGeometry,
			class:    ClassSolidGeometry,
			required: []string{"radius", "height", "axis"},
		},
		idf.Cuboid: {
			kind:  kindSolidGeometry,
			class: ClassSolidGeometry,
			required: []string{
				"left-front-bottom-point", "left-front-top-point",
				"left-back-bottom-point", "right-front-bottom-point",
			},
		},
	}

	gridPatternRule = rule{
		kind:     kindGridPattern,
		class:    ClassGridPattern,
		required: []string{"xpixels", "ypixels", "xstart", "xstep", "ystart", "ystep"},
	}

	gridShapeRule = rule{
		kind:     kindGridShape,
		class:    ClassGridShape,
		required: []string{"xpixels", "ypixels"},
	}
)

// check returns a MappingError naming the first required field for which
// has returns false.
func (r rule) check(component string, has func(field string) bool) error {
	for _, f := range r.required {
		if !has(f) {
			return &MappingError{Component: component, Kind: r.kind, Field: f}
		}
	}
	return nil
}

// shapeHas reports whether a shape carries a scalar or vector field.
func shapeHas(s *idf.Shape) func(string) bool {
	return func(field string) bool {
		if _, ok := s.Scalar(field); ok {
			return true
		}
		_, ok := s.Vector(field)
		return ok
	}
}

func paramsHas(params map[string]float64) func(string) bool {
	return func(field string) bool {
		_, ok := params[field]
		return ok
	}
}

// solidRule looks up the rule for a shape kind.
func solidRule(component string, s *idf.Shape) (rule, error) {
	r, ok := solidRules[s.Kind]
	if !ok {
		return rule{}, &MappingError{Component: component, Kind: kindSolidGeometry, Field: "a supported shape, got " + string(s.Kind)}
	}
	return r, r.check(component, shapeHas(s))
}
