package nexus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/scigolib/nexus/internal/geometry"
	"github.com/scigolib/nexus/internal/off"
	"github.com/scigolib/nexus/internal/tree"
	"github.com/scigolib/nexus/internal/writer"
)

// NeXus class names used by the builder.
const (
	ClassEntry           = "NXentry"
	ClassInstrument      = "NXinstrument"
	ClassSource          = "NXsource"
	ClassSample          = "NXsample"
	ClassMonitor         = "NXmonitor"
	ClassDetector        = "NXdetector"
	ClassTransformations = "NXtransformations"
	ClassSolidGeometry   = "NXsolid_geometry"
	ClassGridPattern     = "NXgrid_pattern"
	ClassGridShape       = "NXgrid_shape"
	ClassEventData       = "NXevent_data"
	ClassLog             = "NXlog"
	ClassCite            = "NXcite"
	ClassUser            = "NXuser"
)

// DefaultEntryName is the name of the top-level NXentry.
const DefaultEntryName = "raw_data_1"

// Builder assembles the output tree. Paths passed to its methods are
// absolute paths in the output file.
type Builder struct {
	root        *tree.Group
	entry       string
	instrument  string
	lengthUnits string
	features    features
	logger      *slog.Logger
}

// NewBuilder creates a tree holding a single NXentry.
func NewBuilder(entryName string, logger *slog.Logger) (*Builder, error) {
	if entryName == "" {
		entryName = DefaultEntryName
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Builder{root: tree.NewGroup("", ""), lengthUnits: "m", logger: logger}
	entry, err := b.AddNXGroup("/", entryName, ClassEntry)
	if err != nil {
		return nil, err
	}
	b.entry = entry
	return b, nil
}

// Entry is the path of the NXentry.
func (b *Builder) Entry() string { return b.entry }

// Instrument is the path of the NXinstrument, or "" before AddInstrument.
func (b *Builder) Instrument() string { return b.instrument }

// SetLengthUnits sets the units attribute written on lengths.
func (b *Builder) SetLengthUnits(u string) {
	if u != "" {
		b.lengthUnits = u
	}
}

// Tree finalises the features dataset and returns the root group.
func (b *Builder) Tree() (*tree.Group, error) {
	if ids := b.features.sorted(); len(ids) > 0 {
		entry, err := b.group(b.entry)
		if err != nil {
			return nil, err
		}
		if _, exists := entry.Child("features"); !exists {
			if err := entry.Add(tree.New("features", ids)); err != nil {
				return nil, err
			}
		}
	}
	return b.root, nil
}

// Write finalises the tree and writes it to dst.
func (b *Builder) Write(ctx context.Context, dst string, policy OverwritePolicy) error {
	root, err := b.Tree()
	if err != nil {
		return err
	}
	return writer.WriteFile(ctx, dst, root, writer.WithPolicy(policy), writer.WithLogger(b.logger))
}

// Lookup returns the node at p.
func (b *Builder) Lookup(p string) (tree.Node, bool) { return b.root.Lookup(p) }

func (b *Builder) group(p string) (*tree.Group, error) {
	n, ok := b.root.Lookup(p)
	if !ok {
		return nil, fmt.Errorf("group %s does not exist", p)
	}
	g, ok := n.(*tree.Group)
	if !ok {
		return nil, fmt.Errorf("%s is not a group", p)
	}
	return g, nil
}

// AddNXGroup creates a group with an NX_class attribute. Spaces in the
// name are replaced with underscores.
func (b *Builder) AddNXGroup(parent, name, class string) (string, error) {
	p, err := b.group(parent)
	if err != nil {
		return "", err
	}
	name = strings.ReplaceAll(name, " ", "_")
	if err := p.Add(tree.NewGroup(name, class)); err != nil {
		return "", err
	}
	b.features.addForClass(class)
	return path.Join(parent, name), nil
}

// AddDataset adds d to the group at parent and returns its path.
func (b *Builder) AddDataset(parent string, d *tree.Dataset) (string, error) {
	p, err := b.group(parent)
	if err != nil {
		return "", err
	}
	if err := p.Add(d); err != nil {
		return "", err
	}
	return path.Join(parent, d.Name), nil
}

// AddLink adds a hard link named name under parent pointing at target.
func (b *Builder) AddLink(parent, name, target string) error {
	p, err := b.group(parent)
	if err != nil {
		return err
	}
	return p.Add(&tree.Link{Name: name, Target: target})
}

func (b *Builder) addLength(parent, name string, values []float64, dims ...uint64) error {
	_, err := b.AddDataset(parent, tree.New(name, values, dims...).SetAttr("units", b.lengthUnits))
	return err
}

// AddInstrument creates the NXinstrument with its name. The short name is
// the first three characters.
func (b *Builder) AddInstrument(name string) (string, error) {
	p, err := b.AddNXGroup(b.entry, "instrument", ClassInstrument)
	if err != nil {
		return "", err
	}
	short := name
	if len(short) > 3 {
		short = short[:3]
	}
	if _, err := b.AddDataset(p, tree.Scalar("name", name).SetAttr("short_name", short)); err != nil {
		return "", err
	}
	b.instrument = p
	return p, nil
}

// AddSample creates an empty NXsample in the entry.
func (b *Builder) AddSample(name string) (string, error) {
	if name == "" {
		name = "sample"
	}
	return b.AddNXGroup(b.entry, name, ClassSample)
}

// AddSource creates the NXsource with a location transformation when a
// position is given.
func (b *Builder) AddSource(name string, position *geometry.Vector) (string, error) {
	if b.instrument == "" {
		return "", fmt.Errorf("an NXinstrument is needed before adding a source")
	}
	p, err := b.AddNXGroup(b.instrument, "source", ClassSource)
	if err != nil {
		return "", err
	}
	if _, err := b.AddDataset(p, tree.Scalar("name", name)); err != nil {
		return "", err
	}
	if position != nil {
		if err := b.addPlacement(p, *position, nil); err != nil {
			return "", err
		}
	}
	return p, nil
}

// AddMonitor creates an NXmonitor holding its detector id and location.
func (b *Builder) AddMonitor(name string, detectorID int, location geometry.Vector) (string, error) {
	if b.instrument == "" {
		return "", fmt.Errorf("an NXinstrument is needed before adding monitors")
	}
	p, err := b.AddNXGroup(b.instrument, name, ClassMonitor)
	if err != nil {
		return "", err
	}
	if _, err := b.AddDataset(p, tree.Scalar("detector_id", int32(detectorID))); err != nil { //nolint:gosec // detector ids are small
		return "", err
	}
	if err := b.addPlacement(p, location, nil); err != nil {
		return "", err
	}
	return p, nil
}

// AddDetectorMinimal creates detector_<number> with its local name.
func (b *Builder) AddDetectorMinimal(name string, number int) (string, error) {
	if b.instrument == "" {
		return "", fmt.Errorf("an NXinstrument is needed before adding detectors")
	}
	p, err := b.AddNXGroup(b.instrument, fmt.Sprintf("detector_%d", number), ClassDetector)
	if err != nil {
		return "", err
	}
	if _, err := b.AddDataset(p, tree.Scalar("local_name", name)); err != nil {
		return "", err
	}
	return p, nil
}

// Transformation describes one step of a depends_on chain.
type Transformation struct {
	Name string
	// Type is "translation" or "rotation".
	Type   string
	Value  float64
	Units  string
	Vector geometry.Vector
	Offset *geometry.Vector
	// DependsOn is the path of the next transformation, "" or "." to end
	// the chain.
	DependsOn string
}

// AddTransformation writes t as a scalar dataset in the group at parent.
func (b *Builder) AddTransformation(parent string, t Transformation) (string, error) {
	if t.Type != "translation" && t.Type != "rotation" {
		return "", fmt.Errorf("transformation %s: type must be translation or rotation, got %q", t.Name, t.Type)
	}
	dependsOn := t.DependsOn
	if dependsOn == "" {
		dependsOn = "."
	}
	d := tree.Scalar(t.Name, t.Value).
		SetAttr("units", t.Units).
		SetAttr("vector", t.Vector.Slice()).
		SetAttr("transformation_type", t.Type).
		SetAttr("depends_on", dependsOn)
	if t.Offset != nil {
		d.SetAttr("offset", t.Offset.Slice())
	}
	return b.AddDataset(parent, d)
}

// AddDependsOn writes the depends_on dataset of a group.
func (b *Builder) AddDependsOn(group, target string) error {
	_, err := b.AddDataset(group, tree.Scalar("depends_on", target))
	return err
}

// addPlacement writes a transformations group with a location translation
// and an optional orientation rotation applied before it.
func (b *Builder) addPlacement(group string, location geometry.Vector, rot *rotation) error {
	tg, err := b.AddNXGroup(group, "transformations", ClassTransformations)
	if err != nil {
		return err
	}
	unit, magnitude := location.Normalise()
	if magnitude == 0 {
		unit = geometry.Vector{0, 0, 1}
	}
	loc, err := b.AddTransformation(tg, Transformation{
		Name: "location", Type: "translation", Value: magnitude, Units: b.lengthUnits, Vector: unit,
	})
	if err != nil {
		return err
	}
	if rot == nil {
		return b.AddDependsOn(group, loc)
	}
	axis, _ := rot.axis.Normalise()
	orient, err := b.AddTransformation(tg, Transformation{
		Name: "orientation", Type: "rotation", Value: rot.angle, Units: "degrees", Vector: axis, DependsOn: loc,
	})
	if err != nil {
		return err
	}
	return b.AddDependsOn(group, orient)
}

type rotation struct {
	angle float64
	axis  geometry.Vector
}

// User is written as an NXuser group.
type User struct {
	Name           string
	Email          string
	Facility       string
	FacilityUserID string
	Affiliation    string
}

// AddUser adds user_<number> to the entry.
func (b *Builder) AddUser(u User, number int) (string, error) {
	p, err := b.AddNXGroup(b.entry, fmt.Sprintf("user_%d", number), ClassUser)
	if err != nil {
		return "", err
	}
	for _, f := range []struct{ name, value string }{
		{"name", u.Name}, {"email", u.Email}, {"facility", u.Facility},
		{"facility_user_id", u.FacilityUserID}, {"affiliation", u.Affiliation},
	} {
		if f.value == "" {
			continue
		}
		if _, err := b.AddDataset(p, tree.Scalar(f.name, f.value)); err != nil {
			return "", err
		}
	}
	return p, nil
}

// AddShape adds a mesh solid geometry group. detectorFaces pairs a face
// index with a detector id and may be nil.
func (b *Builder) AddShape(parent, name string, vertices []geometry.Vector, faces [][]int, detectorFaces [][2]int) (string, error) {
	if len(vertices) == 0 {
		return "", &MappingError{Component: name, Kind: kindSolidGeometry, Field: "vertices"}
	}
	if len(faces) == 0 {
		return "", &MappingError{Component: name, Kind: kindSolidGeometry, Field: "faces"}
	}
	p, err := b.AddNXGroup(parent, name, ClassSolidGeometry)
	if err != nil {
		return "", err
	}
	if err := b.writeMesh(p, string(meshShape), vertices, faces, detectorFaces); err != nil {
		return "", err
	}
	return p, nil
}

// AddShapeFromFile reads an OFF file and adds it with AddShape.
func (b *Builder) AddShapeFromFile(file, parent, name string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	mesh, err := off.Parse(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", file, err)
	}
	if name == "" {
		name = "shape"
	}
	return b.AddShape(parent, name, mesh.Vertices, mesh.Faces, nil)
}

// AddTubePixel adds a cylinder pixel_shape centred on centre.
func (b *Builder) AddTubePixel(parent string, height, radius float64, axis, centre geometry.Vector) (string, error) {
	unit, mag := axis.Normalise()
	if mag == 0 {
		return "", &MappingError{Component: parent, Kind: kindSolidGeometry, Field: "axis"}
	}
	if mag != 1 {
		b.logger.Warn("tube axis was not a unit vector, normalised", "group", parent)
	}
	base := centre.Sub(unit.Scale(height / 2))
	p, err := b.AddNXGroup(parent, "pixel_shape", ClassSolidGeometry)
	if err != nil {
		return "", err
	}
	return p, b.writeCylinder(p, base, unit, height, radius)
}

func (b *Builder) writeMesh(p, shape string, vertices []geometry.Vector, faces [][]int, detectorFaces [][2]int) error {
	winding, starts := off.FaceVertexMap(faces)
	if _, err := b.AddDataset(p, tree.Scalar("shape", shape)); err != nil {
		return err
	}
	if err := b.addLength(p, "vertices", flatten(vertices), uint64(len(vertices)), 3); err != nil {
		return err
	}
	if _, err := b.AddDataset(p, tree.New("winding_order", toInt32(winding))); err != nil {
		return err
	}
	if _, err := b.AddDataset(p, tree.New("faces", toInt32(starts))); err != nil {
		return err
	}
	if len(detectorFaces) > 0 {
		flat := make([]int32, 0, 2*len(detectorFaces))
		for _, df := range detectorFaces {
			flat = append(flat, int32(df[0]), int32(df[1])) //nolint:gosec // face indices and ids are small
		}
		if _, err := b.AddDataset(p, tree.New("detector_faces", flat, uint64(len(detectorFaces)), 2)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) writeCylinder(p string, base, axis geometry.Vector, height, radius float64) error {
	top := base.Add(axis.Scale(height))
	edge := base.Add(geometry.OrthogonalUnit(base.Sub(top)).Scale(radius))
	if _, err := b.AddDataset(p, tree.Scalar("shape", string(cylinderShape))); err != nil {
		return err
	}
	if _, err := b.AddDataset(p, tree.Scalar("radius", radius).SetAttr("units", b.lengthUnits)); err != nil {
		return err
	}
	if _, err := b.AddDataset(p, tree.Scalar("height", height).SetAttr("units", b.lengthUnits)); err != nil {
		return err
	}
	if _, err := b.AddDataset(p, tree.New("axis", axis.Slice())); err != nil {
		return err
	}
	if err := b.addLength(p, "vertices", flatten([]geometry.Vector{base, edge, top}), 3, 3); err != nil {
		return err
	}
	_, err := b.AddDataset(p, tree.New("cylinders", []int32{0, 1, 2}, 1, 3))
	return err
}

func flatten(vs []geometry.Vector) []float64 {
	out := make([]float64, 0, 3*len(vs))
	for _, v := range vs {
		out = append(out, v[0], v[1], v[2])
	}
	return out
}

func toInt32(v []int) []int32 {
	out := make([]int32, len(v))
	for i, x := range v {
		out[i] = int32(x) //nolint:gosec // mesh indices are small
	}
	return out
}
