package nexus

import (
	"sort"

	"github.com/scigolib/nexus/internal/source"
)

// DatasetSize is the share of one dataset in a file's payload.
type DatasetSize struct {
	Path     string
	Class    string
	Dims     []uint64
	Elements uint64
	Bytes    uint64
	Percent  float64
}

// Profile lists the datasets of the HDF5 file at p by payload size,
// largest first. Sizes are uncompressed. Linked datasets appear once per
// path.
func Profile(p string) ([]DatasetSize, uint64, error) {
	src, err := source.Open(p)
	if err != nil {
		return nil, 0, err
	}
	defer src.Close()

	var out []DatasetSize
	var total uint64
	for _, dp := range src.Datasets() {
		n, _ := src.Get(dp)
		s := DatasetSize{
			Path:     dp,
			Class:    n.Info.Class,
			Dims:     n.Info.Dims,
			Elements: n.Info.Elements(),
			Bytes:    n.Info.Bytes(),
		}
		total += s.Bytes
		out = append(out, s)
	}
	for i := range out {
		if total > 0 {
			out[i].Percent = 100 * float64(out[i].Bytes) / float64(total)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bytes > out[j].Bytes })
	return out, total, nil
}
