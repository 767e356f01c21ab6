package writer

import (
	"context"
	"fmt"

	"github.com/scigolib/hdf5"

	"github.com/scigolib/nexus/internal/tree"
	"github.com/scigolib/nexus/internal/utils"
)

type serializer struct {
	fw  *hdf5.FileWriter
	cfg *config

	groups, datasets, links int
}

type pendingLink struct {
	path, target string
}

// writeTree creates groups and datasets in walk order. Hard links are
// created last so their targets always exist.
func (s *serializer) writeTree(ctx context.Context, root *tree.Group) error {
	for _, a := range root.Attrs {
		s.cfg.logger.Warn("root attributes are not written", "attribute", a.Name)
	}

	var links []pendingLink
	err := root.Walk(func(p string, n tree.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch v := n.(type) {
		case *tree.Group:
			return s.writeGroup(p, v)
		case *tree.Dataset:
			return s.writeDataset(p, v)
		case *tree.Link:
			links = append(links, pendingLink{path: p, target: v.Target})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, l := range links {
		if err := s.fw.CreateHardLink(l.path, l.target); err != nil {
			return utils.WrapErrorf(err, "linking %s to %s", l.path, l.target)
		}
		s.links++
	}
	return nil
}

func (s *serializer) writeGroup(p string, g *tree.Group) error {
	gw, err := s.fw.CreateGroup(p)
	if err != nil {
		return utils.WrapError("creating group "+p, err)
	}
	for _, a := range g.Attrs {
		v, ok := attrValue(a.Value)
		if !ok {
			s.cfg.logger.Warn("skipping attribute of unsupported type", "path", p, "attribute", a.Name, "type", fmt.Sprintf("%T", a.Value))
			continue
		}
		if err := gw.WriteAttribute(a.Name, v); err != nil {
			return utils.WrapErrorf(err, "attribute %s of %s", a.Name, p)
		}
	}
	s.groups++
	return nil
}

var datatypes = map[tree.Datatype]hdf5.Datatype{
	tree.Int32:   hdf5.Int32,
	tree.Int64:   hdf5.Int64,
	tree.Uint32:  hdf5.Uint32,
	tree.Uint64:  hdf5.Uint64,
	tree.Float32: hdf5.Float32,
	tree.Float64: hdf5.Float64,
	tree.String:  hdf5.String,
}

func (s *serializer) writeDataset(p string, d *tree.Dataset) error {
	dtype, ok := datatypes[d.Type]
	if !ok {
		return fmt.Errorf("dataset %s: unsupported type %s", p, d.Type)
	}

	// The library has no scalar dataspace for writing; scalars are one
	// element long.
	dims := d.Dims
	if len(dims) == 0 {
		dims = []uint64{1}
	}

	var opts []hdf5.DatasetOption
	if d.Type == tree.String {
		opts = append(opts, hdf5.WithStringSize(d.StringSize))
	}
	if s.compress(d) {
		opts = append(opts, hdf5.WithChunkDims(dims), hdf5.WithGZIPCompression(s.cfg.gzipLevel))
	}

	dw, err := s.fw.CreateDataset(p, dtype, dims, opts...)
	if err != nil {
		return utils.WrapError("creating dataset "+p, err)
	}
	if err := dw.Write(d.Data); err != nil {
		_ = dw.Close()
		return utils.WrapError("writing dataset "+p, err)
	}
	for _, a := range d.Attrs {
		v, ok := attrValue(a.Value)
		if !ok {
			s.cfg.logger.Warn("skipping attribute of unsupported type", "path", p, "attribute", a.Name, "type", fmt.Sprintf("%T", a.Value))
			continue
		}
		if err := dw.WriteAttribute(a.Name, v); err != nil {
			_ = dw.Close()
			return utils.WrapErrorf(err, "attribute %s of %s", a.Name, p)
		}
	}
	if err := dw.Close(); err != nil {
		return utils.WrapError("closing dataset "+p, err)
	}
	s.datasets++
	s.cfg.logger.Debug("wrote dataset", "path", p, "type", d.Type.String(), "dims", dims)
	return nil
}

func (s *serializer) compress(d *tree.Dataset) bool {
	if s.cfg.gzipLevel == 0 || len(d.Dims) == 0 || d.Type == tree.String {
		return false
	}
	n, err := utils.ElementCount(d.Dims)
	return err == nil && n >= s.cfg.minCompress
}

// attrValue maps an attribute to a value the HDF5 attribute encoder
// accepts. Unsigned slices are widened to int64.
func attrValue(v any) (any, bool) {
	switch x := v.(type) {
	case string, int32, int64, uint32, uint64, float32, float64:
		return x, true
	case []int32:
		return x, len(x) > 0
	case []int64:
		return x, len(x) > 0
	case []float32:
		return x, len(x) > 0
	case []float64:
		return x, len(x) > 0
	case int:
		return int64(x), true
	case []int:
		out := make([]int64, len(x))
		for i, e := range x {
			out[i] = int64(e)
		}
		return out, len(out) > 0
	case []uint32:
		out := make([]int64, len(x))
		for i, e := range x {
			out[i] = int64(e)
		}
		return out, len(out) > 0
	case []uint64:
		out := make([]int64, len(x))
		for i, e := range x {
			out[i] = int64(e) //nolint:gosec // attribute ids fit in int64
		}
		return out, len(out) > 0
	case []string:
		if len(x) == 1 {
			return x[0], true
		}
	}
	return nil, false
}
