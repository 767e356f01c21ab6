package nexus

import (
	"slices"

	"github.com/scigolib/nexus/internal/source"
)

// Verify reopens output and checks that every carried dataset is present
// with the shape and payload it was carried with.
func Verify(output string, carried []Carried) error {
	out, err := source.Open(output)
	if err != nil {
		return err
	}
	defer out.Close()

	var mismatches []string
	for _, c := range carried {
		ds, err := out.Load(c.Target)
		if err != nil {
			mismatches = append(mismatches, c.Target+" (unreadable: "+err.Error()+")")
			continue
		}
		if !slices.Equal(written(ds.Dims), written(c.Dims)) {
			mismatches = append(mismatches, c.Target+" (shape)")
			continue
		}
		digest, err := ds.Digest()
		if err != nil {
			return err
		}
		if digest != c.Digest {
			mismatches = append(mismatches, c.Target)
		}
	}
	if len(mismatches) > 0 {
		return &VerifyError{Output: output, Mismatches: mismatches}
	}
	return out.Close()
}

// written is the shape a dataset has on disk, where scalars are stored with
// one element.
func written(dims []uint64) []uint64 {
	if len(dims) == 0 {
		return []uint64{1}
	}
	return dims
}
