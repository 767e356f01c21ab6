package idf

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/nexus/internal/geometry"
)

func loadSmallFake(t *testing.T) *Definition {
	t.Helper()
	def, err := ParseFile("testdata/smallfake.xml")
	require.NoError(t, err)
	return def
}

func TestParseFile_ComponentNames(t *testing.T) {
	def := loadSmallFake(t)

	want := []string{
		"moderator", "sample-position", "monitor_1", "monitor_2", "single-tube",
		"rear-panel_1", "rear-panel_2", "curved-grid", "slit0", "slit1", "slit2",
	}
	assert.Equal(t, want, def.Names())

	keys := make([]string, 0)
	for name := range def.Components() {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	sorted := append([]string(nil), want...)
	sort.Strings(sorted)
	assert.Equal(t, sorted, keys)
}

func TestParseFile_StableAcrossRuns(t *testing.T) {
	first := loadSmallFake(t)
	second := loadSmallFake(t)
	assert.Equal(t, first.Names(), second.Names())
}

func TestParseFile_Defaults(t *testing.T) {
	def := loadSmallFake(t)
	assert.Equal(t, "SMALLFAKE", def.Name)
	assert.Equal(t, "m", def.LengthUnits)
	assert.Equal(t, "degree", def.AngleUnits)
	require.NotNil(t, def.Transformer)
	assert.True(t, def.Transformer.AnglesInDegrees)
}

func TestDefinition_SourceAndSample(t *testing.T) {
	def := loadSmallFake(t)

	src, err := def.Source()
	require.NoError(t, err)
	assert.Equal(t, "moderator", src.Name)
	assert.Equal(t, geometry.Vector{0, 0, -10}, src.Position)

	pos, err := def.SamplePosition()
	require.NoError(t, err)
	assert.Equal(t, geometry.Vector{}, pos)
}

func TestDefinition_Monitors(t *testing.T) {
	def := loadSmallFake(t)

	mons := def.Monitors()
	require.Len(t, mons, 2)
	assert.Equal(t, []int{1}, mons[0].IDs)
	assert.Equal(t, []int{2}, mons[1].IDs)
	assert.Equal(t, geometry.Vector{0, 0, -1.5}, mons[1].Position)
	require.NotNil(t, mons[0].Shape)
	assert.Equal(t, Cylinder, mons[0].Shape.Kind)
}

func TestDefinition_CylinderDetector(t *testing.T) {
	def := loadSmallFake(t)

	tube, err := def.Component("single-tube")
	require.NoError(t, err)
	assert.Equal(t, Detector, tube.Category)
	assert.Equal(t, []int{100}, tube.IDs)
	assert.Equal(t, []geometry.Vector{{}}, tube.Offsets)
	require.NotNil(t, tube.Rotation)
	assert.Equal(t, 90.0, tube.Rotation.Angle)
	assert.Equal(t, geometry.Vector{0, 1, 0}, tube.Rotation.Axis)

	require.NotNil(t, tube.Shape)
	radius, ok := tube.Shape.Scalar("radius")
	require.True(t, ok)
	assert.Equal(t, 0.0127, radius)
	height, ok := tube.Shape.Scalar("height")
	require.True(t, ok)
	assert.Equal(t, 1.0, height)
	base, ok := tube.Shape.Vector("centre-of-bottom-base")
	require.True(t, ok)
	assert.Equal(t, geometry.Vector{0, -0.5, 0}, base)
}

func TestDefinition_RectangularDetector(t *testing.T) {
	def := loadSmallFake(t)

	panels := def.ByCategory(RectangularDetector)
	require.Len(t, panels, 2)
	p := panels[1]
	assert.Equal(t, "rear-panel_2", p.Name)
	assert.Equal(t, geometry.Vector{1, 0, 4}, p.Position)
	require.NotNil(t, p.Grid)
	assert.Equal(t, 2.0, p.Grid.Params["xpixels"])
	assert.Equal(t, 0.02, p.Grid.Params["ystep"])
	require.NotNil(t, p.Grid.PixelShape)
	assert.Equal(t, Cuboid, p.Grid.PixelShape.Kind)
	assert.Len(t, p.Grid.PixelShape.Vectors, 4)

	// id = 1000 + 3*x + y, indexed [y][x]
	assert.Equal(t, [][]int{{1000, 1003}, {1001, 1004}, {1002, 1005}}, p.GridIDs)
}

func TestDefinition_StructuredDetector(t *testing.T) {
	def := loadSmallFake(t)

	grid, err := def.Component("curved-grid")
	require.NoError(t, err)
	require.NotNil(t, grid.Structured)
	assert.Len(t, grid.Structured.Vertices, 9)
	assert.Equal(t, geometry.Vector{0, 2, 0.5}, grid.Structured.Vertices[6])
	assert.Equal(t, [][]int{{5000, 5002}, {5001, 5003}}, grid.GridIDs)
}

func TestDefinition_LocationsExpansion(t *testing.T) {
	def := loadSmallFake(t)

	for i, z := range []float64{-5, -4.5, -4} {
		c, err := def.Component("slit" + string(rune('0'+i)))
		require.NoError(t, err)
		assert.InDelta(t, z, c.Position[2], 1e-12)
		assert.Equal(t, Other, c.Category)
	}
}

func TestDefinition_NotFound(t *testing.T) {
	def := loadSmallFake(t)

	_, err := def.Component("no-such-thing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "no-such-thing", nf.Name)

	empty, err := Parse(strings.NewReader(`<instrument xmlns="` + Namespace + `" name="EMPTY"/>`))
	require.NoError(t, err)
	_, err = empty.Source()
	require.ErrorAs(t, err, &nf)
	_, err = empty.SamplePosition()
	require.ErrorAs(t, err, &nf)
}

func TestParse_MissingFieldsStayAbsent(t *testing.T) {
	def, err := ParseFile("testdata/no-radius.xml")
	require.NoError(t, err)

	tube, err := def.Component("tube")
	require.NoError(t, err)
	_, ok := tube.Shape.Scalar("radius")
	assert.False(t, ok)
	_, ok = tube.Shape.Scalar("height")
	assert.True(t, ok)
	assert.Equal(t, []int{1}, tube.IDs)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantParse bool
	}{
		{name: "malformed", input: `<instrument xmlns="` + Namespace + `"><type>`, wantParse: true},
		{name: "wrong namespace", input: `<instrument xmlns="urn:other"/>`, wantParse: true},
		{name: "wrong root", input: `<detector xmlns="` + Namespace + `"/>`, wantParse: true},
		{
			name: "bad coordinate",
			input: `<instrument xmlns="` + Namespace + `"><type name="s" is="Source"/>` +
				`<component type="s"><location z="far"/></component></instrument>`,
			wantParse: true,
		},
		{
			name:  "undefined type",
			input: `<instrument xmlns="` + Namespace + `"><component type="ghost"><location/></component></instrument>`,
		},
		{
			name: "undefined idlist",
			input: `<instrument xmlns="` + Namespace + `"><type name="d" is="detector"/>` +
				`<component type="d" idlist="nope"><location/></component></instrument>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			var pe *ParseError
			var nf *NotFoundError
			if tt.wantParse {
				assert.True(t, errors.As(err, &pe), "want ParseError, got %T: %v", err, err)
			} else {
				assert.True(t, errors.As(err, &nf), "want NotFoundError, got %T: %v", err, err)
			}
		})
	}
}

func TestParseFile_MissingFile(t *testing.T) {
	_, err := ParseFile("testdata/does-not-exist.xml")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "testdata/does-not-exist.xml", pe.File)
}

func TestParse_ReferenceFrameAndRadians(t *testing.T) {
	input := `<instrument xmlns="` + Namespace + `" name="ROT">
  <defaults>
    <angle unit="radian"/>
    <reference-frame><along-beam axis="x"/><pointing-up axis="z"/></reference-frame>
  </defaults>
  <type name="s" is="Source"/>
  <component type="s"><location x="-10" rot="3.141592653589793" axis-x="1" axis-y="0" axis-z="0"/></component>
</instrument>`
	def, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "radian", def.AngleUnits)

	src, err := def.Source()
	require.NoError(t, err)
	assert.Equal(t, geometry.Vector{0, 0, -10}, src.Position)
	require.NotNil(t, src.Rotation)
	assert.InDelta(t, 180.0, src.Rotation.Angle, 1e-9)
	assert.Equal(t, geometry.Vector{0, 0, 1}, src.Rotation.Axis)
}

func TestParse_NestedAssemblies(t *testing.T) {
	input := `<instrument xmlns="` + Namespace + `" name="BANKS">
  <type name="s" is="Source"/>
  <component type="s"><location z="-10"/></component>
  <component type="bank" idlist="bank-ids">
    <location z="3" name="bank-a"/>
  </component>
  <type name="bank">
    <component type="tube">
      <location x="-0.1"/>
      <location x="0.1" rot="90" axis-x="0" axis-y="0" axis-z="1"/>
    </component>
  </type>
  <type name="tube">
    <component type="pixel">
      <location y="-0.5"/>
      <location y="0.5"/>
    </component>
  </type>
  <type name="pixel" is="detector">
    <cylinder id="p">
      <centre-of-bottom-base x="0" y="0" z="0"/>
      <axis x="0" y="1" z="0"/>
      <radius val="0.01"/>
      <height val="0.1"/>
    </cylinder>
  </type>
  <idlist idname="bank-ids"><id start="1" end="4"/></idlist>
  <component type="frame"><location z="1"/></component>
  <type name="frame">
    <component type="strut"><location/></component>
  </type>
  <type name="strut"/>
</instrument>`
	def, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "bank-a", "frame"}, def.Names())

	bank, err := def.Component("bank-a")
	require.NoError(t, err)
	assert.Equal(t, Detector, bank.Category)
	assert.Equal(t, geometry.Vector{0, 0, 3}, bank.Position)
	assert.Equal(t, []int{1, 2, 3, 4}, bank.IDs)
	require.NotNil(t, bank.Shape)
	assert.Equal(t, Cylinder, bank.Shape.Kind)

	want := []geometry.Vector{{-0.1, -0.5, 0}, {-0.1, 0.5, 0}, {0.6, 0, 0}, {-0.4, 0, 0}}
	require.Len(t, bank.Offsets, len(want))
	for i, w := range want {
		assert.InDeltaSlice(t, w[:], bank.Offsets[i][:], 1e-9, "pixel %d", i)
	}

	frame, err := def.Component("frame")
	require.NoError(t, err)
	assert.Equal(t, Other, frame.Category)
}

func TestParse_UnsupportedNesting(t *testing.T) {
	input := `<instrument xmlns="` + Namespace + `" name="NESTED">
  <component type="holder"><location/></component>
  <type name="holder">
    <component type="panel"><location/></component>
  </type>
  <type name="panel" is="RectangularDetector" xpixels="1" xstart="0" xstep="1" ypixels="1" ystart="0" ystep="1"/>
</instrument>`
	_, err := Parse(strings.NewReader(input))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), `"panel" nested in holder`)
}
