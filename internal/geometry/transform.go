package geometry

import (
	"fmt"
	"math"
	"strings"
)

// Transformer converts positions from the instrument-definition frame to
// the NeXus frame, where z is along the beam and y points up.
type Transformer struct {
	// AnglesInDegrees is false when the definition declares radians.
	AnglesInDegrees bool
	// Origin is subtracted from top-level positions after axis mapping.
	Origin Vector

	signs Vector
	order [3]int
	plain bool
}

// NewTransformer builds a transformer from axis labels. axes[i] names the
// NeXus axis that definition axis i maps to, optionally prefixed with "-".
// Nil axes means the frames already agree.
func NewTransformer(anglesInDegrees bool, axes []string) (*Transformer, error) {
	if axes == nil {
		axes = []string{"x", "y", "z"}
	}
	if len(axes) != 3 {
		return nil, fmt.Errorf("need 3 axis labels, got %d", len(axes))
	}

	t := &Transformer{AnglesInDegrees: anglesInDegrees}
	unsigned := make([]string, 3)
	for i, a := range axes {
		t.signs[i] = 1
		if strings.HasPrefix(a, "-") {
			t.signs[i] = -1
			a = a[1:]
		}
		unsigned[i] = a
	}
	for n, name := range []string{"x", "y", "z"} {
		idx := -1
		for i, a := range unsigned {
			if a == name {
				idx = i
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("axis labels %v do not include %q", axes, name)
		}
		t.order[n] = idx
	}
	t.plain = t.signs == Vector{1, 1, 1} && t.order == [3]int{0, 1, 2}
	return t, nil
}

// FrameTransformer maps the definition's reference frame, given as the axis
// along the beam and the axis pointing up, onto NeXus axes.
func FrameTransformer(anglesInDegrees bool, alongBeam, pointingUp string) (*Transformer, error) {
	if alongBeam == "" {
		alongBeam = "z"
	}
	if pointingUp == "" {
		pointingUp = "y"
	}
	index := map[string]int{"x": 0, "y": 1, "z": 2}
	beam, ok := index[alongBeam]
	if !ok {
		return nil, fmt.Errorf("unknown along-beam axis %q", alongBeam)
	}
	up, ok := index[pointingUp]
	if !ok {
		return nil, fmt.Errorf("unknown pointing-up axis %q", pointingUp)
	}
	if beam == up {
		return nil, fmt.Errorf("along-beam and pointing-up are both %q", alongBeam)
	}

	axes := []string{"x", "x", "x"}
	axes[beam] = "z"
	axes[up] = "y"
	return NewTransformer(anglesInDegrees, axes)
}

// ToNeXus maps v into the NeXus frame. Top-level positions are also made
// relative to the origin.
func (t *Transformer) ToNeXus(v Vector, topLevel bool) Vector {
	out := v
	if !t.plain {
		signed := Vector{v[0] * t.signs[0], v[1] * t.signs[1], v[2] * t.signs[2]}
		out = Vector{signed[t.order[0]], signed[t.order[1]], signed[t.order[2]]}
	}
	if topLevel {
		out = out.Sub(t.Origin)
	}
	return out
}

// AngleDegrees returns angle in degrees whatever unit the definition uses.
func (t *Transformer) AngleDegrees(angle float64) float64 {
	if t.AnglesInDegrees {
		return angle
	}
	return angle * 180 / math.Pi
}

// SphericalToCartesian converts (r, theta, phi) with theta measured from
// the z axis.
func (t *Transformer) SphericalToCartesian(r, theta, phi float64) Vector {
	if t.AnglesInDegrees {
		theta = theta * math.Pi / 180
		phi = phi * math.Pi / 180
	}
	return Vector{
		r * math.Sin(theta) * math.Cos(phi),
		r * math.Sin(theta) * math.Sin(phi),
		r * math.Cos(theta),
	}
}

// CartesianToSpherical returns (r, theta, phi) with angles in degrees.
func CartesianToSpherical(v Vector) (r, theta, phi float64) {
	r = v.Norm()
	if r == 0 {
		return 0, 0, 0
	}
	theta = math.Acos(v[2]/r) * 180 / math.Pi
	phi = math.Atan2(v[1], v[0]) * 180 / math.Pi
	return r, theta, phi
}
