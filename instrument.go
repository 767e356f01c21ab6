package nexus

import (
	"github.com/scigolib/nexus/internal/idf"
	"github.com/scigolib/nexus/internal/tree"
)

// GeometrySummary counts what AddInstrumentGeometry wrote.
type GeometrySummary struct {
	Instrument string
	Source     string
	Monitors   int
	Detectors  int
	// Components lists the mapped component names in definition order.
	Components []string
}

// AddInstrumentGeometry maps a parsed instrument definition into the
// entry: instrument, source, sample, monitors and one detector group per
// detector component with its geometry group.
func (b *Builder) AddInstrumentGeometry(def *idf.Definition) (*GeometrySummary, error) {
	b.SetLengthUnits(def.LengthUnits)
	if _, err := b.AddInstrument(def.Name); err != nil {
		return nil, err
	}
	sum := &GeometrySummary{Instrument: def.Name}

	src, err := def.Source()
	if err != nil {
		return nil, err
	}
	sp, err := b.AddSource(src.Name, &src.Position)
	if err != nil {
		return nil, err
	}
	if src.Shape != nil {
		if _, err := b.addSolidGeometry(sp, "shape", src.Name, src.Shape); err != nil {
			return nil, err
		}
	}
	sum.Source = src.Name
	sum.Components = append(sum.Components, src.Name)

	samplePos, err := def.SamplePosition()
	if err != nil {
		return nil, err
	}
	sample, err := b.AddSample("sample")
	if err != nil {
		return nil, err
	}
	if !samplePos.IsZero() {
		if err := b.addPlacement(sample, samplePos, nil); err != nil {
			return nil, err
		}
	}

	for _, m := range def.Monitors() {
		if len(m.IDs) == 0 {
			return nil, &MappingError{Component: m.Name, Kind: "monitor", Field: "idlist"}
		}
		mp, err := b.AddMonitor(m.Name, m.IDs[0], m.Position)
		if err != nil {
			return nil, err
		}
		if m.Shape != nil {
			if _, err := b.addSolidGeometry(mp, "shape", m.Name, m.Shape); err != nil {
				return nil, err
			}
		}
		sum.Monitors++
		sum.Components = append(sum.Components, m.Name)
	}

	// Detectors of one type share their pixel geometry through hard links.
	shared := map[string]string{}
	for _, c := range def.Ordered() {
		var err error
		switch c.Category {
		case idf.Detector:
			err = b.addPixelDetector(sum.Detectors+1, c, shared)
		case idf.RectangularDetector:
			err = b.addRectangularDetector(sum.Detectors+1, c, shared)
		case idf.StructuredDetector:
			err = b.addStructuredDetector(sum.Detectors+1, c)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		sum.Detectors++
		sum.Components = append(sum.Components, c.Name)
	}

	b.logger.Info("mapped instrument geometry",
		"instrument", def.Name, "source", sum.Source,
		"monitors", sum.Monitors, "detectors", sum.Detectors)
	return sum, nil
}

func placementRotation(c *idf.Component) *rotation {
	if c.Rotation == nil || c.Rotation.Angle == 0 {
		return nil
	}
	return &rotation{angle: c.Rotation.Angle, axis: c.Rotation.Axis}
}

// addPixelDetector maps a detector made of individually placed pixels.
func (b *Builder) addPixelDetector(number int, c *idf.Component, shared map[string]string) error {
	if c.Shape == nil {
		return &MappingError{Component: c.Name, Kind: kindSolidGeometry, Field: "pixel shape"}
	}
	if len(c.IDs) != len(c.Offsets) {
		return &MappingError{Component: c.Name, Kind: "detector", Field: "one detector id per pixel"}
	}
	if _, err := solidRule(c.Name, c.Shape); err != nil {
		return err
	}

	p, err := b.AddDetectorMinimal(c.Name, number)
	if err != nil {
		return err
	}
	if err := b.addOffsets(p, c.Offsets, uint64(len(c.Offsets))); err != nil {
		return err
	}
	if _, err := b.AddDataset(p, tree.New("detector_number", toInt32(c.IDs))); err != nil {
		return err
	}
	if err := b.addPlacement(p, c.Position, placementRotation(c)); err != nil {
		return err
	}

	key := "pixel:" + c.TypeName
	if target, ok := shared[key]; ok {
		return b.AddLink(p, "pixel_shape", target)
	}
	shape, err := b.addSolidGeometry(p, "pixel_shape", c.Name, c.Shape)
	if err != nil {
		return err
	}
	shared[key] = shape
	return nil
}

// addRectangularDetector maps a RectangularDetector bank to a grid_pattern.
func (b *Builder) addRectangularDetector(number int, c *idf.Component, shared map[string]string) error {
	p, err := b.AddDetectorMinimal(c.Name, number)
	if err != nil {
		return err
	}
	if err := b.addGridIDs(p, c); err != nil {
		return err
	}
	if err := b.addPlacement(p, c.Position, placementRotation(c)); err != nil {
		return err
	}

	key := "grid:" + c.TypeName
	if target, ok := shared[key]; ok {
		return b.AddLink(p, "grid_pattern", target)
	}
	grid, err := b.addGridPattern(p, c)
	if err != nil {
		return err
	}
	shared[key] = grid
	return nil
}

// addStructuredDetector maps a StructuredDetector to a grid_shape.
func (b *Builder) addStructuredDetector(number int, c *idf.Component) error {
	p, err := b.AddDetectorMinimal(c.Name, number)
	if err != nil {
		return err
	}
	if _, err := b.addGridShape(p, c); err != nil {
		return err
	}
	if err := b.addGridIDs(p, c); err != nil {
		return err
	}
	return b.addPlacement(p, c.Position, placementRotation(c))
}

// addGridIDs writes detector_number with shape (ypixels, xpixels).
func (b *Builder) addGridIDs(detector string, c *idf.Component) error {
	if len(c.GridIDs) == 0 || len(c.GridIDs[0]) == 0 {
		return &MappingError{Component: c.Name, Kind: "detector", Field: "detector ids"}
	}
	ny, nx := len(c.GridIDs), len(c.GridIDs[0])
	flat := make([]int32, 0, nx*ny)
	for _, row := range c.GridIDs {
		if len(row) != nx {
			return &MappingError{Component: c.Name, Kind: "detector", Field: "detector ids"}
		}
		flat = append(flat, toInt32(row)...)
	}
	_, err := b.AddDataset(detector, tree.New("detector_number", flat, uint64(ny), uint64(nx)))
	return err
}
