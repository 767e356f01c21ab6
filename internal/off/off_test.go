package off

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/nexus/internal/geometry"
)

func parseCube(t *testing.T) *Mesh {
	t.Helper()
	f, err := os.Open("testdata/cube.off")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	mesh, err := Parse(f)
	require.NoError(t, err)
	return mesh
}

func TestParse_Cube(t *testing.T) {
	mesh := parseCube(t)

	require.Len(t, mesh.Vertices, 8)
	require.Len(t, mesh.Faces, 6)
	assert.Equal(t, geometry.Vector{-1, 0, 1}, mesh.Vertices[2])
	assert.Equal(t, geometry.Vector{0, -1, 0}, mesh.Vertices[7])

	for _, face := range mesh.Faces {
		assert.Len(t, face, 4)
	}
	// Colour values after the indices are dropped.
	assert.Equal(t, []int{5, 6, 2, 1}, mesh.Faces[3])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "wrong header", input: "PLY\n3 1 0\n"},
		{name: "no counts", input: "OFF\n# only comments\n"},
		{name: "short counts", input: "OFF\n3\n"},
		{name: "truncated", input: "OFF\n3 1 0\n0 0 0\n1 0 0\n"},
		{name: "bad coordinate", input: "OFF\n1 0 0\n0 zero 0\n"},
		{name: "index out of range", input: "OFF\n3 1 0\n0 0 0\n1 0 0\n0 1 0\n3 0 1 3\n"},
		{name: "face too short", input: "OFF\n3 1 0\n0 0 0\n1 0 0\n0 1 0\n3 0 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
		})
	}
}

func TestFaceVertexMap(t *testing.T) {
	winding, starts := FaceVertexMap([][]int{{0, 1, 2}, {2, 3, 4, 5}, {6, 7, 8}})
	assert.Equal(t, []int{0, 1, 2, 2, 3, 4, 5, 6, 7, 8}, winding)
	assert.Equal(t, []int{0, 3, 7}, starts)
}

func TestWrite_RoundTrip(t *testing.T) {
	mesh := parseCube(t)
	winding, starts := FaceVertexMap(mesh.Faces)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, mesh.Vertices, starts, winding))
	assert.True(t, strings.HasPrefix(buf.String(), "OFF\n"))

	again, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, mesh.Vertices, again.Vertices)
	assert.Equal(t, mesh.Faces, again.Faces)
}

func TestWrite_BadFaceStart(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []geometry.Vector{{}, {}, {}}, []int{0, 5}, []int{0, 1, 2})
	require.Error(t, err)
}

func TestAccumulate(t *testing.T) {
	v := []geometry.Vector{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	v, faces, winding := Accumulate(nil, nil, nil, v, []int{0}, []int{0, 1, 2})
	v, faces, winding = Accumulate(v, faces, winding,
		[]geometry.Vector{{0, 0, 1}, {1, 0, 1}, {0, 1, 1}}, []int{0}, []int{0, 1, 2})

	assert.Len(t, v, 6)
	assert.Equal(t, []int{0, 3}, faces)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, winding)
}

func TestCylinderMesh(t *testing.T) {
	const (
		height = 2.0
		radius = 0.5
	)
	axis := geometry.Vector{0, 0, 1}
	centre := geometry.Vector{1, 1, 1}
	mesh := CylinderMesh(height, radius, axis, centre, 10)

	require.Len(t, mesh.Vertices, 10)
	require.Len(t, mesh.Faces, 5)

	for _, v := range mesh.Vertices {
		rel := v.Sub(centre)
		along := rel.Dot(axis)
		assert.InDelta(t, height/2, abs(along), 1e-9)
		radial := rel.Sub(axis.Scale(along))
		assert.InDelta(t, radius, radial.Norm(), 1e-9)
	}

	// The last side face wraps around to the first vertices.
	assert.Equal(t, []int{4, 9, 5, 0}, mesh.Faces[4])
}

func TestCylinderMesh_AntiparallelAxis(t *testing.T) {
	mesh := CylinderMesh(1, 1, geometry.Vector{-1, 0, 0}, geometry.Vector{}, 8)
	require.Len(t, mesh.Vertices, 8)
	for _, v := range mesh.Vertices {
		assert.InDelta(t, 0.5, abs(v[0]), 1e-9)
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
