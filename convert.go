package nexus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/scigolib/nexus/internal/idf"
	"github.com/scigolib/nexus/internal/source"
	"github.com/scigolib/nexus/internal/tree"
	"github.com/scigolib/nexus/internal/writer"
)

// OverwritePolicy decides what Convert does when the output exists.
type OverwritePolicy = writer.OverwritePolicy

// Overwrite policies.
const (
	Overwrite   = writer.Overwrite
	NoOverwrite = writer.NoOverwrite
)

// Request names the three files of a conversion.
type Request struct {
	// Instrument is the instrument definition XML.
	Instrument string
	// Source is the legacy HDF5/NeXus file.
	Source string
	// Output is the file to create.
	Output string
}

// Report describes a finished conversion.
type Report struct {
	Output     string
	Instrument string
	// Components are the mapped component names in definition order.
	Components    []string
	SolidGeometry int
	GridPatterns  int
	GridShapes    int
	Monitors      int
	Detectors     int
	EventData     int
	Carried       []Carried
}

type shapeFile struct {
	file, group, name string
}

type convertConfig struct {
	logger     *slog.Logger
	entryName  string
	policy     OverwritePolicy
	gzipLevel  int
	gzipMin    uint64
	copyRules  []CopyRule
	shapes     []shapeFile
	users      []User
	fakeEvents *FakeEvents
}

// Option configures Convert.
type Option func(*convertConfig)

// WithLogger sets the logger. Without one Convert logs nothing.
func WithLogger(l *slog.Logger) Option {
	return func(c *convertConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEntryName names the NXentry, DefaultEntryName by default.
func WithEntryName(name string) Option {
	return func(c *convertConfig) { c.entryName = name }
}

// WithOverwritePolicy sets what happens when the output exists.
func WithOverwritePolicy(p OverwritePolicy) Option {
	return func(c *convertConfig) { c.policy = p }
}

// WithGZIP compresses datasets with at least minElements values.
func WithGZIP(level int, minElements uint64) Option {
	return func(c *convertConfig) {
		c.gzipLevel = level
		c.gzipMin = minElements
	}
}

// WithCopy replaces the default of carrying every source dataset.
func WithCopy(rules ...CopyRule) Option {
	return func(c *convertConfig) { c.copyRules = append(c.copyRules, rules...) }
}

// WithShapeFile adds the OFF mesh in file as a solid geometry group named
// name under group. A relative group is taken inside the entry.
func WithShapeFile(file, group, name string) Option {
	return func(c *convertConfig) { c.shapes = append(c.shapes, shapeFile{file, group, name}) }
}

// WithUser adds an NXuser group.
func WithUser(u User) Option {
	return func(c *convertConfig) { c.users = append(c.users, u) }
}

// WithFakeEvents generates synthetic event data for every detector.
func WithFakeEvents(fe FakeEvents) Option {
	return func(c *convertConfig) { c.fakeEvents = &fe }
}

// Convert maps the instrument definition, carries the source datasets and
// writes the result. The whole output is assembled and checked in memory
// first; on any error no output file is left behind.
func Convert(ctx context.Context, req Request, opts ...Option) (*Report, error) {
	c := convertConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&c)
	}
	if req.Instrument == "" || req.Source == "" || req.Output == "" {
		return nil, fmt.Errorf("instrument, source and output paths are required")
	}

	def, err := idf.ParseFile(req.Instrument)
	if err != nil {
		return nil, err
	}
	c.logger.Info("parsed instrument definition", "instrument", def.Name, "components", len(def.Names()))

	src, err := source.Open(req.Source, source.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	defer src.Close()

	b, err := NewBuilder(c.entryName, c.logger)
	if err != nil {
		return nil, err
	}
	report, err := c.build(ctx, b, def, src)
	if err != nil {
		return nil, err
	}
	root, err := b.Tree()
	if err != nil {
		return nil, err
	}
	countClasses(root, report)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = writer.WriteFile(ctx, req.Output, root,
		writer.WithPolicy(c.policy),
		writer.WithGZIP(c.gzipLevel, c.gzipMin),
		writer.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	report.Output = req.Output
	return report, nil
}

func (c *convertConfig) build(ctx context.Context, b *Builder, def *idf.Definition, src *source.Tree) (*Report, error) {
	sum, err := b.AddInstrumentGeometry(def)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Instrument: sum.Instrument, Components: sum.Components}
	for _, s := range c.shapes {
		group := s.group
		if !strings.HasPrefix(group, "/") {
			group = path.Join(b.Entry(), group)
		}
		if _, err := b.AddShapeFromFile(s.file, group, s.name); err != nil {
			return nil, err
		}
	}
	for i, u := range c.users {
		if _, err := b.AddUser(u, i+1); err != nil {
			return nil, err
		}
	}
	if c.fakeEvents != nil {
		if _, err := b.AddFakeEventData(*c.fakeEvents); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Carried, err = b.CopyItems(src, c.copyRules)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// countClasses fills the group counts of r. Linked groups count once.
func countClasses(root *tree.Group, r *Report) {
	_ = root.Walk(func(_ string, n tree.Node) error {
		g, ok := n.(*tree.Group)
		if !ok {
			return nil
		}
		switch g.Class() {
		case ClassSolidGeometry:
			r.SolidGeometry++
		case ClassGridPattern:
			r.GridPatterns++
		case ClassGridShape:
			r.GridShapes++
		case ClassMonitor:
			r.Monitors++
		case ClassDetector:
			r.Detectors++
		case ClassEventData:
			r.EventData++
		}
		return nil
	})
}
