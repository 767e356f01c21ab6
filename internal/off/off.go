// Package off reads and writes Object File Format meshes and converts
// between OFF face lists and the flattened winding-order layout used in
// NeXus geometry groups.
package off

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/scigolib/nexus/internal/geometry"
)

// Mesh is a polygon mesh. Each face lists vertex indices.
type Mesh struct {
	Vertices []geometry.Vector
	Faces    [][]int
}

// Parse reads an OFF file. Comment lines starting with '#' and blank lines
// may appear anywhere after the header. Trailing values on a face line,
// such as colours, are dropped.
func Parse(r io.Reader) (*Mesh, error) {
	lines, err := contentLines(r)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 || lines[0].text != "OFF" {
		return nil, fmt.Errorf("off: file must start with \"OFF\"")
	}
	if len(lines) < 2 {
		return nil, fmt.Errorf("off: missing counts line")
	}

	counts := strings.Fields(lines[1].text)
	if len(counts) < 2 {
		return nil, fmt.Errorf("off: line %d: counts line needs vertex and face counts", lines[1].number)
	}
	nVertices, err := strconv.Atoi(counts[0])
	if err != nil || nVertices < 0 {
		return nil, fmt.Errorf("off: line %d: bad vertex count %q", lines[1].number, counts[0])
	}
	nFaces, err := strconv.Atoi(counts[1])
	if err != nil || nFaces < 0 {
		return nil, fmt.Errorf("off: line %d: bad face count %q", lines[1].number, counts[1])
	}

	body := lines[2:]
	if len(body) < nVertices+nFaces {
		return nil, fmt.Errorf("off: expected %d vertices and %d faces, file has %d data lines",
			nVertices, nFaces, len(body))
	}

	mesh := &Mesh{
		Vertices: make([]geometry.Vector, nVertices),
		Faces:    make([][]int, nFaces),
	}
	for i := 0; i < nVertices; i++ {
		fields := strings.Fields(body[i].text)
		if len(fields) < 3 {
			return nil, fmt.Errorf("off: line %d: vertex needs 3 coordinates", body[i].number)
		}
		for c := 0; c < 3; c++ {
			v, err := strconv.ParseFloat(fields[c], 64)
			if err != nil {
				return nil, fmt.Errorf("off: line %d: %w", body[i].number, err)
			}
			mesh.Vertices[i][c] = v
		}
	}
	for i := 0; i < nFaces; i++ {
		line := body[nVertices+i]
		face, err := parseFace(line.text, nVertices)
		if err != nil {
			return nil, fmt.Errorf("off: line %d: %w", line.number, err)
		}
		mesh.Faces[i] = face
	}
	return mesh, nil
}

func parseFace(text string, nVertices int) ([]int, error) {
	fields := strings.Fields(text)
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return nil, fmt.Errorf("bad face vertex count %q", fields[0])
	}
	if len(fields) < n+1 {
		return nil, fmt.Errorf("face declares %d vertices but lists %d", n, len(fields)-1)
	}
	face := make([]int, n)
	for j := 0; j < n; j++ {
		idx, err := strconv.Atoi(fields[j+1])
		if err != nil {
			return nil, fmt.Errorf("bad vertex index %q", fields[j+1])
		}
		if idx < 0 || idx >= nVertices {
			return nil, fmt.Errorf("vertex index %d out of range [0,%d)", idx, nVertices)
		}
		face[j] = idx
	}
	return face, nil
}

type line struct {
	number int
	text   string
}

func contentLines(r io.Reader) ([]line, error) {
	var out []line
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		out = append(out, line{number: n, text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("off: %w", err)
	}
	return out, nil
}

// Write emits an OFF file from the flattened layout: faces holds the start
// of each face in windingOrder.
func Write(w io.Writer, vertices []geometry.Vector, faces, windingOrder []int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "OFF")
	fmt.Fprintln(bw, "# NVertices NFaces NEdges")
	// The edge count must be present but need not be correct.
	fmt.Fprintf(bw, "%d %d 0\n", len(vertices), len(faces))
	fmt.Fprintln(bw, "# Vertices")
	for _, v := range vertices {
		fmt.Fprintf(bw, "%f %f %f\n", v[0], v[1], v[2])
	}
	fmt.Fprintln(bw, "# Faces")
	for i, start := range faces {
		end := len(windingOrder)
		if i+1 < len(faces) {
			end = faces[i+1]
		}
		if start < 0 || start > end || end > len(windingOrder) {
			return fmt.Errorf("off: face %d spans [%d,%d) outside winding order of length %d",
				i, start, end, len(windingOrder))
		}
		idx := windingOrder[start:end]
		parts := make([]string, 0, len(idx)+1)
		parts = append(parts, strconv.Itoa(len(idx)))
		for _, v := range idx {
			parts = append(parts, strconv.Itoa(v))
		}
		fmt.Fprintln(bw, strings.Join(parts, " "))
	}
	return bw.Flush()
}

// FaceVertexMap flattens faces into a winding order and the start index of
// each face within it, avoiding a ragged faces dataset.
func FaceVertexMap(faces [][]int) (windingOrder, faceStarts []int) {
	faceStarts = make([]int, 0, len(faces))
	for _, f := range faces {
		faceStarts = append(faceStarts, len(windingOrder))
		windingOrder = append(windingOrder, f...)
	}
	return windingOrder, faceStarts
}

// Accumulate appends mesh b to mesh a in flattened form, offsetting the
// indices of b.
func Accumulate(vertices []geometry.Vector, faces, winding []int,
	newVertices []geometry.Vector, newFaces, newWinding []int,
) ([]geometry.Vector, []int, []int) {
	for _, f := range newFaces {
		faces = append(faces, f+len(winding))
	}
	for _, w := range newWinding {
		winding = append(winding, w+len(vertices))
	}
	vertices = append(vertices, newVertices...)
	return vertices, faces, winding
}

// CylinderMesh approximates a tube of the given height and radius with
// quadrilateral side faces. The end caps are not included. n is the
// maximum number of vertices used.
func CylinderMesh(height, radius float64, axis, centre geometry.Vector, n int) *Mesh {
	perEnd := n / 2
	if perEnd < 3 {
		perEnd = 3
	}

	// Build along x, then rotate onto axis.
	faceCentre := geometry.Vector{centre[0] - height/2, centre[1], centre[2]}
	vertices := make([]geometry.Vector, 0, 2*perEnd)
	for _, dx := range []float64{0, height} {
		for i := 0; i < perEnd; i++ {
			angle := 2 * math.Pi * float64(i) / float64(perEnd)
			vertices = append(vertices, geometry.Vector{
				faceCentre[0] + dx,
				faceCentre[1] + radius*math.Cos(angle),
				faceCentre[2] + radius*math.Sin(angle),
			})
		}
	}

	rot, err := geometry.RotationBetween(geometry.Vector{1, 0, 0}, axis)
	if err != nil {
		// Antiparallel to x: a half turn about z flips the tube.
		rot = geometry.RotationFromAxisAngle(geometry.Vector{0, 0, 1}, math.Pi)
	}
	if !axis.IsZero() {
		for i, v := range vertices {
			vertices[i] = rot.Apply(v.Sub(centre)).Add(centre)
		}
	}

	faces := make([][]int, 0, perEnd)
	for i := 0; i < perEnd; i++ {
		next := (i + 1) % perEnd
		faces = append(faces, []int{i, i + perEnd, next + perEnd, next})
	}
	return &Mesh{Vertices: vertices, Faces: faces}
}
