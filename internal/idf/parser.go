// Package idf reads Mantid instrument definition files and flattens them
// into named, placed components with positions and shapes in NeXus
// coordinates.
package idf

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/scigolib/nexus/internal/geometry"
)

// ParseFile reads the instrument definition at path.
func ParseFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{File: path, Msg: "cannot read file", Err: err}
	}
	defer func() { _ = f.Close() }()

	def, err := Parse(f)
	var pe *ParseError
	if errors.As(err, &pe) && pe.File == "" {
		pe.File = path
	}
	return def, err
}

// Parse reads an instrument definition from r.
func Parse(r io.Reader) (*Definition, error) {
	var doc xmlInstrument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &ParseError{Msg: "malformed XML", Err: err}
	}
	if doc.XMLName.Local != "instrument" || doc.XMLName.Space != Namespace {
		return nil, &ParseError{Msg: fmt.Sprintf("root element is {%s}%s, want {%s}instrument",
			doc.XMLName.Space, doc.XMLName.Local, Namespace)}
	}

	p := &parser{
		doc:     &doc,
		types:   make(map[string]*xmlType, len(doc.Types)),
		idlists: make(map[string]*xmlIDList, len(doc.IDLists)),
	}
	for i := range doc.Types {
		t := &doc.Types[i]
		if _, dup := p.types[t.Name]; !dup {
			p.types[t.Name] = t
		}
	}
	for i := range doc.IDLists {
		l := &doc.IDLists[i]
		name := l.IDName
		if name == "" {
			name = l.Name
		}
		p.idlists[name] = l
	}
	return p.build()
}

type parser struct {
	doc     *xmlInstrument
	types   map[string]*xmlType
	idlists map[string]*xmlIDList
	tr      *geometry.Transformer
	out     []*Component
}

type placement struct {
	name string
	pos  geometry.Vector
	rot  *Rotation
}

func (p *parser) build() (*Definition, error) {
	def := &Definition{
		Name:        p.doc.Name,
		LengthUnits: "m",
		AngleUnits:  "degree",
	}

	alongBeam, pointingUp := "", ""
	if d := p.doc.Defaults; d != nil {
		if d.Length != nil {
			def.LengthUnits = lengthUnits(d.Length.Unit)
		}
		if d.Angle != nil && strings.HasPrefix(strings.ToLower(d.Angle.Unit), "rad") {
			def.AngleUnits = "radian"
		}
		if rf := d.ReferenceFrame; rf != nil {
			if rf.AlongBeam != nil {
				alongBeam = rf.AlongBeam.Axis
			}
			if rf.PointingUp != nil {
				pointingUp = rf.PointingUp.Axis
			}
		}
	}
	tr, err := geometry.FrameTransformer(def.AngleUnits == "degree", alongBeam, pointingUp)
	if err != nil {
		return nil, &ParseError{Msg: "reference frame", Err: err}
	}
	p.tr = tr
	def.Transformer = tr

	for i := range p.doc.Components {
		if err := p.addComponent(&p.doc.Components[i]); err != nil {
			return nil, err
		}
	}

	uniquify(p.out)
	def.components = p.out
	def.byName = make(map[string]*Component, len(p.out))
	for _, c := range p.out {
		def.byName[c.Name] = c
	}
	return def, nil
}

func lengthUnits(unit string) string {
	switch strings.ToLower(unit) {
	case "", "metre", "meter", "m":
		return "m"
	case "millimetre", "millimeter", "mm":
		return "mm"
	default:
		return unit
	}
}

func category(is string) Category {
	switch strings.ReplaceAll(strings.ToLower(is), "_", "") {
	case "source":
		return Source
	case "samplepos":
		return SamplePos
	case "monitor":
		return Monitor
	case "detector":
		return Detector
	case "rectangulardetector":
		return RectangularDetector
	case "structureddetector":
		return StructuredDetector
	default:
		return Other
	}
}

func (p *parser) lookupType(name string) (*xmlType, error) {
	t, ok := p.types[name]
	if !ok {
		return nil, &NotFoundError{What: "type", Name: name}
	}
	return t, nil
}

func (p *parser) addComponent(c *xmlComponent) error {
	t, err := p.lookupType(c.Type)
	if err != nil {
		return err
	}
	places, err := p.placements(c)
	if err != nil {
		return err
	}
	shape, err := p.shape(t)
	if err != nil {
		return err
	}

	cat := category(t.Is)
	switch cat {
	case Other:
		if len(t.Components) > 0 {
			return p.addAssembly(c, t, places)
		}
	case Detector:
		return p.addDetector(c, t, shape, places)
	case Monitor:
		ids, err := p.ids(c.IDList)
		if err != nil {
			return err
		}
		for i, pl := range places {
			comp := p.place(c, t, cat, pl)
			comp.Shape = shape
			if i < len(ids) {
				comp.IDs = []int{ids[i]}
			}
			p.out = append(p.out, comp)
		}
		return nil
	case RectangularDetector:
		grid, err := p.pixelGrid(t)
		if err != nil {
			return err
		}
		for _, pl := range places {
			comp := p.place(c, t, cat, pl)
			comp.Grid = grid
			comp.Shape = grid.PixelShape
			comp.GridIDs, err = gridIDs(c, grid.Params)
			if err != nil {
				return err
			}
			p.out = append(p.out, comp)
		}
		return nil
	case StructuredDetector:
		grid, err := p.structuredGrid(t)
		if err != nil {
			return err
		}
		for _, pl := range places {
			comp := p.place(c, t, cat, pl)
			comp.Structured = grid
			comp.GridIDs, err = gridIDs(c, grid.Params)
			if err != nil {
				return err
			}
			p.out = append(p.out, comp)
		}
		return nil
	}

	for _, pl := range places {
		comp := p.place(c, t, cat, pl)
		comp.Shape = shape
		p.out = append(p.out, comp)
	}
	return nil
}

func (p *parser) place(c *xmlComponent, t *xmlType, cat Category, pl placement) *Component {
	name := pl.name
	if name == "" {
		name = c.Name
	}
	if name == "" {
		name = t.Name
	}
	return &Component{
		Name:     name,
		TypeName: t.Name,
		Category: cat,
		Position: p.tr.ToNeXus(pl.pos, true),
		Rotation: pl.rot,
	}
}

// addDetector places a detector-typed component. With a single location it
// is one pixel at that location; with several, one detector whose pixels
// sit at each location.
func (p *parser) addDetector(c *xmlComponent, t *xmlType, shape *Shape, places []placement) error {
	ids, err := p.ids(c.IDList)
	if err != nil {
		return err
	}
	if len(places) == 0 {
		return nil
	}

	comp := p.place(c, t, Detector, places[0])
	if len(places) == 1 {
		comp.Offsets = []geometry.Vector{{}}
	} else {
		if c.Name != "" {
			comp.Name = c.Name
		} else {
			comp.Name = t.Name
		}
		comp.Position = geometry.Vector{}
		comp.Rotation = nil
		for _, pl := range places {
			comp.Offsets = append(comp.Offsets, p.tr.ToNeXus(pl.pos, false))
		}
	}
	comp.Shape = shape
	comp.IDs = ids
	p.out = append(p.out, comp)
	return nil
}

// addAssembly expands a grouping type at every placement. Monitors inside
// it become individual monitors. Pixels, at any depth of nested grouping
// types such as bank, tube and pixel, become one detector per placement
// whose offsets are relative to the placement. An assembly holding neither
// is kept as a single Other component.
func (p *parser) addAssembly(c *xmlComponent, t *xmlType, places []placement) error {
	ids, err := p.ids(c.IDList)
	if err != nil {
		return err
	}
	a := &assembly{parser: p, ids: ids}
	for _, pl := range places {
		a.top, a.bank, a.placed = p.place(c, t, Other, pl), nil, false
		if err := a.expand(t, geometry.Vector{}, geometry.Identity(), []string{t.Name}); err != nil {
			return err
		}
		if !a.placed {
			p.out = append(p.out, a.top)
		}
	}
	return nil
}

// assembly carries the state of one addAssembly expansion. Ids are handed
// out in document order across all placements.
type assembly struct {
	parser *parser
	ids    []int
	next   int

	top    *Component
	bank   *Component
	placed bool
}

func (a *assembly) nextID() (int, bool) {
	if a.next >= len(a.ids) {
		return 0, false
	}
	a.next++
	return a.ids[a.next-1], true
}

// expand walks the components of t. offset and rot place t relative to the
// top-level placement, in NeXus coordinates.
func (a *assembly) expand(t *xmlType, offset geometry.Vector, rot geometry.Matrix, trail []string) error {
	p := a.parser
	for i := range t.Components {
		nc := &t.Components[i]
		nt, err := p.lookupType(nc.Type)
		if err != nil {
			return err
		}
		nested, err := p.placements(nc)
		if err != nil {
			return err
		}
		shape, err := p.shape(nt)
		if err != nil {
			return err
		}

		for _, npl := range nested {
			at := offset.Add(rot.Apply(p.tr.ToNeXus(npl.pos, false)))
			switch cat := category(nt.Is); {
			case cat == Monitor:
				comp := p.place(nc, nt, Monitor, npl)
				comp.Position = a.top.Position.Add(at)
				comp.Shape = shape
				if id, ok := a.nextID(); ok {
					comp.IDs = []int{id}
				}
				p.out = append(p.out, comp)
				a.placed = true
			case cat == Detector:
				if a.bank == nil {
					a.bank = a.top
					a.bank.Category = Detector
					a.bank.Shape = shape
					p.out = append(p.out, a.bank)
					a.placed = true
				}
				a.bank.Offsets = append(a.bank.Offsets, at)
				if id, ok := a.nextID(); ok {
					a.bank.IDs = append(a.bank.IDs, id)
				}
			case cat == Other && len(nt.Components) > 0:
				next := rot
				if npl.rot != nil {
					next = rot.Mul(geometry.RotationFromAxisAngle(npl.rot.Axis, npl.rot.Angle*math.Pi/180))
				}
				if err := a.expand(nt, at, next, append(trail, nt.Name)); err != nil {
					return err
				}
			case cat == Other:
				// Shape-only parts such as frames carry no pixels.
			default:
				return &ParseError{Msg: fmt.Sprintf("%s of type %q nested in %s is not supported",
					cat, nt.Name, strings.Join(trail, " > "))}
			}
		}
	}
	return nil
}

func (p *parser) placements(c *xmlComponent) ([]placement, error) {
	var out []placement
	for i := range c.Locations {
		loc := &c.Locations[i]
		pos, err := p.point(&loc.xmlPoint)
		if err != nil {
			return nil, p.componentErr(c, err)
		}
		rot, err := p.rotation(loc)
		if err != nil {
			return nil, p.componentErr(c, err)
		}
		out = append(out, placement{name: loc.Name, pos: pos, rot: rot})
	}
	for i := range c.LocationSets {
		set, err := p.expandLocations(&c.LocationSets[i])
		if err != nil {
			return nil, p.componentErr(c, err)
		}
		out = append(out, set...)
	}
	return out, nil
}

func (p *parser) componentErr(c *xmlComponent, err error) error {
	return &ParseError{Msg: fmt.Sprintf("component of type %q", c.Type), Err: err}
}

func (p *parser) rotation(loc *xmlLocation) (*Rotation, error) {
	angle, ok, err := number(loc.Rot, "rot")
	if err != nil || !ok {
		return nil, err
	}
	axis := geometry.Vector{0, 0, 1}
	for i, s := range []string{loc.AxisX, loc.AxisY, loc.AxisZ} {
		v, ok, err := number(s, "axis")
		if err != nil {
			return nil, err
		}
		if ok {
			axis[i] = v
		}
	}
	return &Rotation{
		Angle: p.tr.AngleDegrees(angle),
		Axis:  p.tr.ToNeXus(axis, false),
	}, nil
}

// expandLocations spreads n-elements locations evenly from start to end,
// both inclusive, on every axis that has a start value.
func (p *parser) expandLocations(l *xmlLocations) ([]placement, error) {
	n, err := strconv.Atoi(l.NElements)
	if err != nil || n < 1 {
		return nil, fmt.Errorf("locations: bad n-elements %q", l.NElements)
	}
	type axisRange struct {
		start, end float64
		set        bool
	}
	var ranges [3]axisRange
	for i, pair := range [][2]string{{l.X, l.XEnd}, {l.Y, l.YEnd}, {l.Z, l.ZEnd}} {
		start, ok, err := number(pair[0], "locations start")
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		end, ok, err := number(pair[1], "locations end")
		if err != nil {
			return nil, err
		}
		if !ok {
			end = start
		}
		ranges[i] = axisRange{start: start, end: end, set: true}
	}

	out := make([]placement, 0, n)
	for k := 0; k < n; k++ {
		var pos geometry.Vector
		for i, r := range ranges {
			if !r.set {
				continue
			}
			pos[i] = r.start
			if n > 1 {
				pos[i] += (r.end - r.start) * float64(k) / float64(n-1)
			}
		}
		name := ""
		if l.Name != "" {
			name = l.Name + strconv.Itoa(k)
		}
		out = append(out, placement{name: name, pos: pos})
	}
	return out, nil
}

// point reads a position in definition coordinates, spherical if any of
// r, t or p is given.
func (p *parser) point(pt *xmlPoint) (geometry.Vector, error) {
	if pt.R != "" || pt.T != "" || pt.P != "" {
		var rtp [3]float64
		for i, s := range []string{pt.R, pt.T, pt.P} {
			v, _, err := number(s, "spherical coordinate")
			if err != nil {
				return geometry.Vector{}, err
			}
			rtp[i] = v
		}
		return p.tr.SphericalToCartesian(rtp[0], rtp[1], rtp[2]), nil
	}
	var v geometry.Vector
	for i, s := range []string{pt.X, pt.Y, pt.Z} {
		f, _, err := number(s, "coordinate")
		if err != nil {
			return geometry.Vector{}, err
		}
		v[i] = f
	}
	return v, nil
}

func (p *parser) shape(t *xmlType) (*Shape, error) {
	switch {
	case t.Cylinder != nil:
		cyl := t.Cylinder
		s := &Shape{Kind: Cylinder, Scalars: map[string]float64{}, Vectors: map[string]geometry.Vector{}}
		for name, v := range map[string]*xmlValue{"radius": cyl.Radius, "height": cyl.Height} {
			if v == nil {
				continue
			}
			f, ok, err := number(v.Val, name)
			if err != nil {
				return nil, p.typeErr(t, err)
			}
			if ok {
				s.Scalars[name] = f
			}
		}
		if err := p.shapePoints(t, s, map[string]*xmlPoint{
			"axis":                  cyl.Axis,
			"centre-of-bottom-base": cyl.CentreOfBottomBase,
		}); err != nil {
			return nil, err
		}
		return s, nil
	case t.Cuboid != nil:
		cub := t.Cuboid
		s := &Shape{Kind: Cuboid, Scalars: map[string]float64{}, Vectors: map[string]geometry.Vector{}}
		if err := p.shapePoints(t, s, map[string]*xmlPoint{
			"left-front-bottom-point":  cub.LeftFrontBottom,
			"left-front-top-point":     cub.LeftFrontTop,
			"left-back-bottom-point":   cub.LeftBackBottom,
			"right-front-bottom-point": cub.RightFrontBottom,
		}); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

func (p *parser) shapePoints(t *xmlType, s *Shape, points map[string]*xmlPoint) error {
	for name, pt := range points {
		if pt == nil {
			continue
		}
		v, err := p.point(pt)
		if err != nil {
			return p.typeErr(t, err)
		}
		s.Vectors[name] = p.tr.ToNeXus(v, false)
	}
	return nil
}

func (p *parser) typeErr(t *xmlType, err error) error {
	return &ParseError{Msg: fmt.Sprintf("type %q", t.Name), Err: err}
}

func (p *parser) pixelGrid(t *xmlType) (*PixelGrid, error) {
	params, err := numericParams(t, map[string]string{
		"xpixels": t.XPixels, "xstart": t.XStart, "xstep": t.XStep,
		"ypixels": t.YPixels, "ystart": t.YStart, "ystep": t.YStep,
	})
	if err != nil {
		return nil, err
	}
	g := &PixelGrid{Params: params, PixelType: t.PixelType}
	if pt, ok := p.types[t.PixelType]; ok {
		g.PixelShape, err = p.shape(pt)
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (p *parser) structuredGrid(t *xmlType) (*StructuredGrid, error) {
	params, err := numericParams(t, map[string]string{"xpixels": t.XPixels, "ypixels": t.YPixels})
	if err != nil {
		return nil, err
	}
	g := &StructuredGrid{Params: params}
	for i := range t.Vertices {
		v, err := p.point(&t.Vertices[i])
		if err != nil {
			return nil, p.typeErr(t, err)
		}
		g.Vertices = append(g.Vertices, p.tr.ToNeXus(v, false))
	}
	return g, nil
}

func numericParams(t *xmlType, raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for name, s := range raw {
		v, ok, err := number(s, name)
		if err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("type %q", t.Name), Err: err}
		}
		if ok {
			out[name] = v
		}
	}
	return out, nil
}

// ids resolves a named idlist. Ranges include their end value.
func (p *parser) ids(name string) ([]int, error) {
	if name == "" {
		return nil, nil
	}
	l, ok := p.idlists[name]
	if !ok {
		return nil, &NotFoundError{What: "idlist", Name: name}
	}
	var out []int
	for _, id := range l.IDs {
		if id.Val != "" {
			v, err := strconv.Atoi(id.Val)
			if err != nil {
				return nil, &ParseError{Msg: fmt.Sprintf("idlist %q: bad id %q", name, id.Val)}
			}
			out = append(out, v)
			continue
		}
		start, err1 := strconv.Atoi(id.Start)
		end, err2 := strconv.Atoi(id.End)
		if err1 != nil || err2 != nil || end < start {
			return nil, &ParseError{Msg: fmt.Sprintf("idlist %q: bad range %q-%q", name, id.Start, id.End)}
		}
		for v := start; v <= end; v++ {
			out = append(out, v)
		}
	}
	return out, nil
}

// gridIDs numbers the pixels of a grid detector, indexed [y][x]. Filling by
// y first (the default) gives id = start + x*stepByRow + y*step.
func gridIDs(c *xmlComponent, params map[string]float64) ([][]int, error) {
	nxf, okx := params["xpixels"]
	nyf, oky := params["ypixels"]
	if !okx || !oky || nxf < 1 || nyf < 1 {
		return nil, nil
	}
	nx, ny := int(nxf), int(nyf)

	fillY := !strings.EqualFold(c.IDFillByFirst, "x")
	start, err := intAttr(c.IDStart, 0)
	if err != nil {
		return nil, err
	}
	step, err := intAttr(c.IDStep, 1)
	if err != nil {
		return nil, err
	}
	defaultRow := ny
	if !fillY {
		defaultRow = nx
	}
	byRow, err := intAttr(c.IDStepByRow, defaultRow)
	if err != nil {
		return nil, err
	}

	ids := make([][]int, ny)
	for y := 0; y < ny; y++ {
		ids[y] = make([]int, nx)
		for x := 0; x < nx; x++ {
			if fillY {
				ids[y][x] = start + x*byRow + y*step
			} else {
				ids[y][x] = start + y*byRow + x*step
			}
		}
	}
	return ids, nil
}

func intAttr(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &ParseError{Msg: fmt.Sprintf("bad integer %q", s)}
	}
	return v, nil
}

func number(s, field string) (float64, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad %s %q", field, s)
	}
	return v, true, nil
}

// uniquify makes names unique in document order. Repeated monitors take
// their id as suffix, anything else its occurrence number.
func uniquify(comps []*Component) {
	count := make(map[string]int, len(comps))
	for _, c := range comps {
		count[c.Name]++
	}
	seen := make(map[string]int, len(comps))
	taken := make(map[string]bool, len(comps))
	for _, c := range comps {
		if count[c.Name] == 1 {
			taken[c.Name] = true
		}
	}
	for _, c := range comps {
		if count[c.Name] == 1 {
			continue
		}
		seen[c.Name]++
		base := c.Name
		suffix := strconv.Itoa(seen[base])
		if c.Category == Monitor && len(c.IDs) == 1 {
			suffix = strconv.Itoa(c.IDs[0])
		}
		name := base + "_" + suffix
		for taken[name] {
			name += "_"
		}
		taken[name] = true
		c.Name = name
	}
}
