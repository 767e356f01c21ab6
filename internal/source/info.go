package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/scigolib/nexus/internal/tree"
)

// Info is the element type and shape of a dataset, recovered without
// reading its values.
type Info struct {
	Type   tree.Datatype
	Class  string
	Size   int
	Dims   []uint64
	Layout string
	// Null marks a dataspace with no elements at all.
	Null bool
	// Unsupported says why the values cannot be loaded, empty when they can.
	Unsupported string
}

// Scalar reports a dataset with a scalar dataspace.
func (i Info) Scalar() bool { return len(i.Dims) == 0 }

// Elements is the number of values stored.
func (i Info) Elements() uint64 {
	if i.Null {
		return 0
	}
	n := uint64(1)
	for _, d := range i.Dims {
		n *= d
	}
	return n
}

// Bytes is the in-memory payload size.
func (i Info) Bytes() uint64 { return i.Elements() * uint64(i.Size) } //nolint:gosec // size is a small positive byte count

var (
	infoRe = regexp.MustCompile(`^Dataset: (\w+) \(size=(\d+) bytes\), (.+), (compact|contiguous|chunked|virtual|unknown)\b.*$`)
	dimsRe = regexp.MustCompile(`\[([^\]]*)\]`)
)

// parseInfo decodes the dataset description produced by the HDF5 reader,
// e.g. "Dataset: float (size=8 bytes), 2D array [10 x 10], contiguous (...)".
// Integer signedness is not part of the description; integers are read as
// signed. Types and dataspaces the loader cannot carry are described with
// Unsupported set rather than rejected.
func parseInfo(s string) (Info, error) {
	m := infoRe.FindStringSubmatch(s)
	if m == nil {
		return Info{}, fmt.Errorf("unrecognised dataset description %q", s)
	}
	size, err := strconv.Atoi(m[2])
	if err != nil {
		return Info{}, fmt.Errorf("element size in %q: %w", s, err)
	}
	info := Info{Class: m[1], Size: size, Layout: m[4]}

	space := m[3]
	switch {
	case space == "scalar":
	case strings.Contains(space, "array"):
		dm := dimsRe.FindStringSubmatch(space)
		if dm == nil {
			return Info{}, fmt.Errorf("dataspace %q has no dimensions", space)
		}
		for _, f := range strings.FieldsFunc(dm[1], func(r rune) bool { return r == ' ' || r == 'x' }) {
			d, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return Info{}, fmt.Errorf("dimension %q in %q: %w", f, space, err)
			}
			info.Dims = append(info.Dims, d)
		}
	case strings.HasPrefix(space, "null"):
		info.Null = true
		info.Unsupported = "null dataspace"
	default:
		info.Unsupported = fmt.Sprintf("dataspace %q", space)
	}

	switch {
	case info.Class == "integer" && size == 4:
		info.Type = tree.Int32
	case info.Class == "integer" && size == 8:
		info.Type = tree.Int64
	case info.Class == "float" && size == 4:
		info.Type = tree.Float32
	case info.Class == "float" && size == 8:
		info.Type = tree.Float64
	case info.Class == "string":
		info.Type = tree.String
	}
	if info.Type == 0 && info.Unsupported == "" {
		info.Unsupported = fmt.Sprintf("element type %s of %d bytes", info.Class, size)
	}
	return info, nil
}
