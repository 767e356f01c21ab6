package nexus

import (
	"slices"
	"strconv"
)

// Feature ids from the NeXus features registry, keyed by the class whose
// presence implies the feature.
var classFeatures = map[string]string{
	ClassLog:           "B051F43BC680C13B",
	ClassEventData:     "ECB064453EDB096D",
	ClassSolidGeometry: "8CB1EBAE3B2DA51D",
	ClassCite:          "D1A0000000000002",
}

// features is the set of feature ids present in the file. Ids exceed the
// int64 range, so they are kept unsigned.
type features map[uint64]struct{}

func (f *features) add(id uint64) {
	if *f == nil {
		*f = features{}
	}
	(*f)[id] = struct{}{}
}

func (f *features) addForClass(class string) {
	hex, ok := classFeatures[class]
	if !ok {
		return
	}
	id, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return
	}
	f.add(id)
}

func (f features) sorted() []uint64 {
	out := make([]uint64, 0, len(f))
	for id := range f {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// AddFeature records a feature id given as hexadecimal.
func (b *Builder) AddFeature(hex string) error {
	id, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return err
	}
	b.features.add(id)
	return nil
}
