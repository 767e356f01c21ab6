package nexus

import (
	"github.com/scigolib/nexus/internal/geometry"
	"github.com/scigolib/nexus/internal/idf"
	"github.com/scigolib/nexus/internal/tree"
)

// addSolidGeometry maps an instrument shape to a solid geometry group named
// name under parent. component is used in errors.
func (b *Builder) addSolidGeometry(parent, name, component string, s *idf.Shape) (string, error) {
	r, err := solidRule(component, s)
	if err != nil {
		return "", err
	}

	switch s.Kind {
	case idf.Cylinder:
		radius, _ := s.Scalar("radius")
		height, _ := s.Scalar("height")
		rawAxis, _ := s.Vector("axis")
		base, _ := s.Vector("centre-of-bottom-base")
		axis, mag := rawAxis.Normalise()
		if mag == 0 {
			return "", &MappingError{Component: component, Kind: r.kind, Field: "axis"}
		}
		p, err := b.AddNXGroup(parent, name, r.class)
		if err != nil {
			return "", err
		}
		return p, b.writeCylinder(p, base, axis, height, radius)

	case idf.Cuboid:
		c := newCuboid(s)
		p, err := b.AddNXGroup(parent, name, r.class)
		if err != nil {
			return "", err
		}
		if err := b.writeMesh(p, string(cuboidShape), c.vertices, cuboidFaces, nil); err != nil {
			return "", err
		}
		for _, d := range []struct {
			name  string
			value float64
		}{{"x_size", c.xSize}, {"y_size", c.ySize}, {"thickness", c.thickness}} {
			if _, err := b.AddDataset(p, tree.Scalar(d.name, d.value).SetAttr("units", b.lengthUnits)); err != nil {
				return "", err
			}
		}
		return p, nil
	}
	return "", &MappingError{Component: component, Kind: r.kind, Field: "a supported shape"}
}

// cuboid is a box spanned from its left-front-bottom corner.
type cuboid struct {
	vertices                []geometry.Vector
	xSize, ySize, thickness float64
}

// Bottom face first, then the top face in the same order.
var cuboidFaces = [][]int{
	{0, 3, 2, 1},
	{4, 5, 6, 7},
	{0, 1, 5, 4},
	{1, 2, 6, 5},
	{2, 3, 7, 6},
	{3, 0, 4, 7},
}

func newCuboid(s *idf.Shape) cuboid {
	lfb, _ := s.Vector("left-front-bottom-point")
	lft, _ := s.Vector("left-front-top-point")
	lbb, _ := s.Vector("left-back-bottom-point")
	rfb, _ := s.Vector("right-front-bottom-point")

	across := rfb.Sub(lfb)
	back := lbb.Sub(lfb)
	up := lft.Sub(lfb)
	bottom := []geometry.Vector{lfb, rfb, rfb.Add(back), lbb}
	vertices := append([]geometry.Vector(nil), bottom...)
	for _, v := range bottom {
		vertices = append(vertices, v.Add(up))
	}
	return cuboid{vertices: vertices, xSize: across.Norm(), ySize: back.Norm(), thickness: up.Norm()}
}

// addGridPattern writes the grid_pattern group of a rectangular detector:
// pixel counts, one-dimensional offsets along each axis and the shape of
// one pixel.
func (b *Builder) addGridPattern(detector string, c *idf.Component) (string, error) {
	g := c.Grid
	if g == nil {
		return "", &MappingError{Component: c.Name, Kind: kindGridPattern, Field: "pixel grid"}
	}
	if err := gridPatternRule.check(c.Name, paramsHas(g.Params)); err != nil {
		return "", err
	}
	if g.PixelShape == nil {
		return "", &MappingError{Component: c.Name, Kind: kindGridPattern, Field: "pixel shape"}
	}
	if _, err := solidRule(c.Name, g.PixelShape); err != nil {
		return "", err
	}
	nx, ny := int(g.Params["xpixels"]), int(g.Params["ypixels"])
	if nx <= 0 || ny <= 0 {
		return "", &MappingError{Component: c.Name, Kind: kindGridPattern, Field: "positive xpixels and ypixels"}
	}

	p, err := b.AddNXGroup(detector, "grid_pattern", gridPatternRule.class)
	if err != nil {
		return "", err
	}
	if _, err := b.AddDataset(p, tree.Scalar("x_pixel_count", int32(nx))); err != nil { //nolint:gosec // pixel counts are small
		return "", err
	}
	if _, err := b.AddDataset(p, tree.Scalar("y_pixel_count", int32(ny))); err != nil { //nolint:gosec // pixel counts are small
		return "", err
	}
	if err := b.addLength(p, "x_pixel_offset", gridOffsets(g.Params["xstart"], g.Params["xstep"], nx)); err != nil {
		return "", err
	}
	if err := b.addLength(p, "y_pixel_offset", gridOffsets(g.Params["ystart"], g.Params["ystep"], ny)); err != nil {
		return "", err
	}
	if _, err := b.addSolidGeometry(p, "pixel_shape", c.Name, g.PixelShape); err != nil {
		return "", err
	}
	return p, nil
}

// gridOffsets places n pixels at start, start+step, ...
func gridOffsets(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// gridShape is the quadrilateral mesh of a structured detector.
type gridShape struct {
	nx, ny        int
	faces         [][]int
	detectorFaces [][2]int
	// centres of each pixel, indexed [y][x] flattened.
	centres []geometry.Vector
}

// newGridShape builds one quadrilateral per pixel from a vertex grid with x
// varying fastest.
func newGridShape(nx, ny int, vertices []geometry.Vector, ids [][]int) gridShape {
	gs := gridShape{nx: nx, ny: ny}
	face := 0
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			first := x + y*(nx+1)
			corners := []int{first, first + nx + 1, first + nx + 2, first + 1}
			gs.faces = append(gs.faces, corners)
			gs.detectorFaces = append(gs.detectorFaces, [2]int{face, ids[y][x]})
			pts := make([]geometry.Vector, len(corners))
			for i, k := range corners {
				pts[i] = vertices[k]
			}
			gs.centres = append(gs.centres, geometry.Mean(pts...))
			face++
		}
	}
	return gs
}

// addGridShape writes the grid_shape group of a structured detector and
// the per-pixel offsets of the detector itself.
func (b *Builder) addGridShape(detector string, c *idf.Component) (string, error) {
	sg := c.Structured
	if sg == nil {
		return "", &MappingError{Component: c.Name, Kind: kindGridShape, Field: "vertices"}
	}
	if err := gridShapeRule.check(c.Name, paramsHas(sg.Params)); err != nil {
		return "", err
	}
	nx, ny := int(sg.Params["xpixels"]), int(sg.Params["ypixels"])
	if nx <= 0 || ny <= 0 {
		return "", &MappingError{Component: c.Name, Kind: kindGridShape, Field: "positive xpixels and ypixels"}
	}
	if len(sg.Vertices) != (nx+1)*(ny+1) {
		return "", &MappingError{Component: c.Name, Kind: kindGridShape, Field: "(xpixels+1)*(ypixels+1) vertices"}
	}
	if len(c.GridIDs) != ny || len(c.GridIDs[0]) != nx {
		return "", &MappingError{Component: c.Name, Kind: kindGridShape, Field: "detector ids"}
	}

	gs := newGridShape(nx, ny, sg.Vertices, c.GridIDs)
	p, err := b.AddNXGroup(detector, "grid_shape", gridShapeRule.class)
	if err != nil {
		return "", err
	}
	if _, err := b.AddDataset(p, tree.Scalar("x_pixel_count", int32(nx))); err != nil { //nolint:gosec // pixel counts are small
		return "", err
	}
	if _, err := b.AddDataset(p, tree.Scalar("y_pixel_count", int32(ny))); err != nil { //nolint:gosec // pixel counts are small
		return "", err
	}
	if err := b.writeMesh(p, string(meshShape), sg.Vertices, gs.faces, gs.detectorFaces); err != nil {
		return "", err
	}
	if err := b.addOffsets(detector, gs.centres, uint64(ny), uint64(nx)); err != nil {
		return "", err
	}
	return p, nil
}

// addOffsets writes x, y and z pixel offsets with the given shape. The z
// offsets are left out when they are all zero.
func (b *Builder) addOffsets(detector string, offsets []geometry.Vector, dims ...uint64) error {
	xs := make([]float64, len(offsets))
	ys := make([]float64, len(offsets))
	zs := make([]float64, len(offsets))
	anyZ := false
	for i, o := range offsets {
		xs[i], ys[i], zs[i] = o[0], o[1], o[2]
		anyZ = anyZ || o[2] != 0
	}
	if err := b.addLength(detector, "x_pixel_offset", xs, dims...); err != nil {
		return err
	}
	if err := b.addLength(detector, "y_pixel_offset", ys, dims...); err != nil {
		return err
	}
	if anyZ {
		return b.addLength(detector, "z_pixel_offset", zs, dims...)
	}
	return nil
}
