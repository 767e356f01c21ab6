// Package geometry holds the small amount of 3D vector math the converter
// needs: vectors, rotation matrices and the instrument-to-NeXus coordinate
// transform.
package geometry

import (
	"errors"
	"math"
)

// Vector is a point or direction in 3D space.
type Vector [3]float64

// Add returns v + o.
func (v Vector) Add(o Vector) Vector {
	return Vector{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector {
	return Vector{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns s * v.
func (v Vector) Scale(s float64) Vector {
	return Vector{v[0] * s, v[1] * s, v[2] * s}
}

// Dot returns the scalar product.
func (v Vector) Dot(o Vector) float64 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Cross returns the vector product v x o.
func (v Vector) Cross(o Vector) Vector {
	return Vector{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Norm returns the Euclidean length.
func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// IsZero reports whether every component is exactly zero.
func (v Vector) IsZero() bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

// Normalise returns the unit vector along v and the magnitude of v.
// The zero vector normalises to itself with magnitude 0.
func (v Vector) Normalise() (Vector, float64) {
	mag := v.Norm()
	if mag == 0 {
		return Vector{}, 0
	}
	return v.Scale(1 / mag), mag
}

// Slice returns the components as a new slice, the layout datasets and
// attributes expect.
func (v Vector) Slice() []float64 {
	return []float64{v[0], v[1], v[2]}
}

// Mean returns the centroid of points. It panics on an empty input.
func Mean(points ...Vector) Vector {
	var sum Vector
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(points)))
}

// OrthogonalUnit returns a unit vector perpendicular to v. The result is
// deterministic for a given v. A zero v yields the x axis.
func OrthogonalUnit(v Vector) Vector {
	if v.IsZero() {
		return Vector{1, 0, 0}
	}
	// Cross with the basis axis least aligned with v.
	axis := Vector{1, 0, 0}
	ax, ay, az := math.Abs(v[0]), math.Abs(v[1]), math.Abs(v[2])
	switch {
	case ay <= ax && ay <= az:
		axis = Vector{0, 1, 0}
	case az <= ax && az <= ay:
		axis = Vector{0, 0, 1}
	}
	unit, _ := v.Cross(axis).Normalise()
	return unit
}

// Matrix is a row-major 3x3 matrix.
type Matrix [3][3]float64

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Apply returns m * v.
func (m Matrix) Apply(v Vector) Vector {
	var out Vector
	for i := 0; i < 3; i++ {
		out[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return out
}

// Mul returns m * o.
func (m Matrix) Mul(o Matrix) Matrix {
	var out Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return out
}

// RotationFromAxisAngle returns the matrix rotating by theta radians about
// axis. The axis is normalised first.
func RotationFromAxisAngle(axis Vector, theta float64) Matrix {
	u, _ := axis.Normalise()
	x, y, z := u[0], u[1], u[2]
	c, s := math.Cos(theta), math.Sin(theta)
	t := 1 - c
	return Matrix{
		{c + x*x*t, x*y*t - z*s, x*z*t + y*s},
		{y*x*t + z*s, c + y*y*t, y*z*t - x*s},
		{z*x*t - y*s, z*y*t + x*s, c + z*z*t},
	}
}

// ErrAntiparallel is returned when no unique rotation maps one vector onto
// its exact opposite.
var ErrAntiparallel = errors.New("vectors point in opposite directions")

// RotationBetween returns the matrix rotating the direction of a onto the
// direction of b.
func RotationBetween(a, b Vector) (Matrix, error) {
	ua, _ := a.Normalise()
	ub, _ := b.Normalise()
	cos := ua.Dot(ub)
	if ua == ub || cos >= 1 {
		return Identity(), nil
	}
	if cos <= -1+1e-12 {
		return Matrix{}, ErrAntiparallel
	}
	v := ua.Cross(ub)
	k := Matrix{
		{0, -v[2], v[1]},
		{v[2], 0, -v[0]},
		{-v[1], v[0], 0},
	}
	k2 := k.Mul(k)
	f := 1 / (1 + cos)
	out := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] += k[i][j] + k2[i][j]*f
		}
	}
	return out, nil
}
