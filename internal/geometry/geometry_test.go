package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func assertVector(t *testing.T, want, got Vector) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], eps, "component %d of %v", i, got)
	}
}

func TestNormalise(t *testing.T) {
	tests := []struct {
		name    string
		in      Vector
		want    Vector
		wantMag float64
	}{
		{name: "zero", in: Vector{}, want: Vector{}, wantMag: 0},
		{name: "axis", in: Vector{0, 3.7, 0}, want: Vector{0, 1, 0}, wantMag: 3.7},
		{name: "diagonal", in: Vector{1, 1, 1}, want: Vector{math.Sqrt(3) / 3, math.Sqrt(3) / 3, math.Sqrt(3) / 3}, wantMag: math.Sqrt(3)},
		{name: "mixed", in: Vector{1, 1, 2}, want: Vector{1 / math.Sqrt(6), 1 / math.Sqrt(6), 2 / math.Sqrt(6)}, wantMag: math.Sqrt(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, mag := tt.in.Normalise()
			assertVector(t, tt.want, got)
			assert.InDelta(t, tt.wantMag, mag, eps)
		})
	}
}

func TestOrthogonalUnit(t *testing.T) {
	for _, v := range []Vector{{0.5, 0.7, 0.1}, {0.1, 0.7, 0.5}, {0, 0, 1}, {-2, 0, 0}, {}} {
		got := OrthogonalUnit(v)
		assert.InDelta(t, 0, got.Dot(v), eps, "not orthogonal to %v", v)
		assert.InDelta(t, 1, got.Norm(), eps, "not unit for %v", v)
	}
}

func TestRotationFromAxisAngle(t *testing.T) {
	m := RotationFromAxisAngle(Vector{0, 0, 2}, math.Pi/2)
	assertVector(t, Vector{0, 1, 0}, m.Apply(Vector{1, 0, 0}))

	m = RotationFromAxisAngle(Vector{1, 0, 0}, math.Pi)
	assertVector(t, Vector{0, -1, 0}, m.Apply(Vector{0, 1, 0}))
}

func TestRotationBetween(t *testing.T) {
	t.Run("coincident vectors give identity", func(t *testing.T) {
		m, err := RotationBetween(Vector{1, 0, 0.5}, Vector{1, 0, 0.5})
		require.NoError(t, err)
		assert.Equal(t, Identity(), m)
	})

	t.Run("x onto y", func(t *testing.T) {
		m, err := RotationBetween(Vector{1, 0, 0}, Vector{0, 1, 0})
		require.NoError(t, err)
		assertVector(t, Vector{0, 1, 0}, m.Apply(Vector{1, 0, 0}))
		assertVector(t, Vector{0, 0, 1}, m.Apply(Vector{0, 0, 1}))
	})

	t.Run("oblique keeps length", func(t *testing.T) {
		a := Vector{1, 2, 3}
		b := Vector{-1, 0.5, 2}
		m, err := RotationBetween(a, b)
		require.NoError(t, err)
		got := m.Apply(a)
		ub, _ := b.Normalise()
		assertVector(t, ub.Scale(a.Norm()), got)
	})

	t.Run("antiparallel", func(t *testing.T) {
		_, err := RotationBetween(Vector{0, 0, 1}, Vector{0, 0, -3})
		require.ErrorIs(t, err, ErrAntiparallel)
	})
}

func TestTransformerAngles(t *testing.T) {
	deg, err := NewTransformer(true, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.2, deg.AngleDegrees(4.2))

	rad, err := NewTransformer(false, nil)
	require.NoError(t, err)
	assert.InDelta(t, 180.0, rad.AngleDegrees(math.Pi), 1e-4)
}

func TestTransformerAxisMapping(t *testing.T) {
	tr, err := NewTransformer(true, []string{"-y", "z", "x"})
	require.NoError(t, err)
	// Definition x becomes NeXus -y, definition y becomes z, z becomes x.
	assertVector(t, Vector{3, -1, 2}, tr.ToNeXus(Vector{1, 2, 3}, false))

	tr.Origin = Vector{1, 1, 1}
	assertVector(t, Vector{2, -2, 1}, tr.ToNeXus(Vector{1, 2, 3}, true))
	assertVector(t, Vector{3, -1, 2}, tr.ToNeXus(Vector{1, 2, 3}, false))

	_, err = NewTransformer(true, []string{"x", "x", "z"})
	require.Error(t, err)
	_, err = NewTransformer(true, []string{"x", "y"})
	require.Error(t, err)
}

func TestFrameTransformer(t *testing.T) {
	tests := []struct {
		name      string
		beam, up  string
		in, want  Vector
		expectErr bool
	}{
		{name: "default frame", in: Vector{1, 2, 3}, want: Vector{1, 2, 3}},
		{name: "beam along x, up z", beam: "x", up: "z", in: Vector{1, 2, 3}, want: Vector{2, 3, 1}},
		{name: "beam along y", beam: "y", up: "z", in: Vector{1, 2, 3}, want: Vector{1, 3, 2}},
		{name: "same axis", beam: "y", up: "y", expectErr: true},
		{name: "unknown axis", beam: "w", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := FrameTransformer(true, tt.beam, tt.up)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assertVector(t, tt.want, tr.ToNeXus(tt.in, true))
		})
	}
}

func TestSphericalRoundTrip(t *testing.T) {
	tr, err := NewTransformer(true, nil)
	require.NoError(t, err)

	v := tr.SphericalToCartesian(2, 90, 0)
	assertVector(t, Vector{2, 0, 0}, v)

	v = tr.SphericalToCartesian(5, 30, 60)
	r, theta, phi := CartesianToSpherical(v)
	assert.InDelta(t, 5, r, eps)
	assert.InDelta(t, 30, theta, eps)
	assert.InDelta(t, 60, phi, eps)

	r, theta, phi = CartesianToSpherical(Vector{})
	assert.Zero(t, r+theta+phi)
}

func TestMean(t *testing.T) {
	assertVector(t, Vector{0.5, 0.5, 0}, Mean(Vector{0, 0, 0}, Vector{1, 0, 0}, Vector{1, 1, 0}, Vector{0, 1, 0}))
}
