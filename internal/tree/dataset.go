package tree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zeebo/blake3"

	"github.com/scigolib/nexus/internal/utils"
)

// Datatype is the element type of a dataset.
type Datatype int

// Supported element types.
const (
	Int32 Datatype = iota + 1
	Int64
	Uint32
	Uint64
	Float32
	Float64
	String
)

var datatypeNames = map[Datatype]string{
	Int32: "int32", Int64: "int64", Uint32: "uint32", Uint64: "uint64",
	Float32: "float32", Float64: "float64", String: "string",
}

func (t Datatype) String() string {
	if s, ok := datatypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("datatype(%d)", int(t))
}

// Size is the element size in bytes. Strings report 0; their size lives on
// the dataset.
func (t Datatype) Size() int {
	switch t {
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// Element lists the Go element types a dataset can hold.
type Element interface {
	int32 | int64 | uint32 | uint64 | float32 | float64 | string
}

// Dataset is an n-dimensional array stored flat in row-major order. Nil
// Dims is a scalar.
type Dataset struct {
	Name       string
	Type       Datatype
	StringSize uint32
	Dims       []uint64
	Data       any
	Attrs      []Attribute
}

// NodeName implements Node.
func (d *Dataset) NodeName() string { return d.Name }

// SetAttr adds or replaces an attribute on d.
func (d *Dataset) SetAttr(name string, value any) *Dataset {
	SetAttr(&d.Attrs, name, value)
	return d
}

// Attr returns an attribute of d.
func (d *Dataset) Attr(name string) (any, bool) { return GetAttr(d.Attrs, name) }

// New builds a dataset from flat data. Without dims the data is one
// dimensional; a single value with dims omitted is still 1D, use Scalar for
// a scalar.
func New[T Element](name string, data []T, dims ...uint64) *Dataset {
	if len(dims) == 0 {
		dims = []uint64{uint64(len(data))}
	}
	d := &Dataset{Name: name, Dims: dims, Data: data}
	d.Type = typeOf(data)
	if d.Type == String {
		d.StringSize = stringSize(any(data).([]string))
	}
	return d
}

// Scalar builds a scalar dataset.
func Scalar[T Element](name string, v T) *Dataset {
	d := New(name, []T{v})
	d.Dims = nil
	return d
}

func typeOf(data any) Datatype {
	switch data.(type) {
	case []int32:
		return Int32
	case []int64:
		return Int64
	case []uint32:
		return Uint32
	case []uint64:
		return Uint64
	case []float32:
		return Float32
	case []float64:
		return Float64
	case []string:
		return String
	}
	return 0
}

// stringSize leaves room for a terminating NUL after the longest string.
func stringSize(s []string) uint32 {
	longest := 0
	for _, v := range s {
		if len(v) > longest {
			longest = len(v)
		}
	}
	return uint32(longest + 1) //nolint:gosec // lengths come from in-memory strings
}

// Len returns the number of elements held.
func (d *Dataset) Len() int {
	switch v := d.Data.(type) {
	case []int32:
		return len(v)
	case []int64:
		return len(v)
	case []uint32:
		return len(v)
	case []uint64:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	case []string:
		return len(v)
	}
	return 0
}

// Validate checks that Data matches Type and Dims.
func (d *Dataset) Validate() error {
	if got := typeOf(d.Data); got != d.Type {
		return fmt.Errorf("dataset %q: data is %T, declared %s", d.Name, d.Data, d.Type)
	}
	n, err := utils.ElementCount(d.Dims)
	if err != nil {
		return utils.WrapErrorf(err, "dataset %q", d.Name)
	}
	if n == 0 {
		return fmt.Errorf("dataset %q: zero-sized dimension in %v", d.Name, d.Dims)
	}
	if uint64(d.Len()) != n {
		return fmt.Errorf("dataset %q: %d elements for shape %v", d.Name, d.Len(), d.Dims)
	}
	if d.Type == String && d.StringSize == 0 {
		return fmt.Errorf("dataset %q: string size is zero", d.Name)
	}
	return nil
}

// Payload encodes the elements little-endian, strings as fixed-size
// NUL-padded fields. Two datasets with equal payloads hold identical values.
func (d *Dataset) Payload() ([]byte, error) {
	switch v := d.Data.(type) {
	case []int32:
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], uint32(x)) //nolint:gosec // bit pattern copy
		}
		return buf, nil
	case []uint32:
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], x)
		}
		return buf, nil
	case []int64:
		buf := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(buf[8*i:], uint64(x)) //nolint:gosec // bit pattern copy
		}
		return buf, nil
	case []uint64:
		buf := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(buf[8*i:], x)
		}
		return buf, nil
	case []float32:
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
		}
		return buf, nil
	case []float64:
		buf := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(x))
		}
		return buf, nil
	case []string:
		size := int(d.StringSize)
		buf := make([]byte, size*len(v))
		for i, s := range v {
			b := []byte(s)
			if len(b) > size {
				b = b[:size]
			}
			copy(buf[size*i:], b)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("dataset %q: unsupported data %T", d.Name, d.Data)
}

// Digest is the BLAKE3 hash of the payload.
func (d *Dataset) Digest() ([32]byte, error) {
	p, err := d.Payload()
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(p), nil
}

// Floats returns numeric data widened to float64.
func (d *Dataset) Floats() ([]float64, error) {
	switch v := d.Data.(type) {
	case []float64:
		return append([]float64(nil), v...), nil
	case []float32:
		return widen(v), nil
	case []int32:
		return widen(v), nil
	case []int64:
		return widen(v), nil
	case []uint32:
		return widen(v), nil
	case []uint64:
		return widen(v), nil
	}
	return nil, fmt.Errorf("dataset %q: %s is not numeric", d.Name, d.Type)
}

// Ints returns integer data widened to int64. Floats are truncated.
func (d *Dataset) Ints() ([]int64, error) {
	f, err := d.Floats()
	if err != nil {
		return nil, err
	}
	if v, ok := d.Data.([]int64); ok {
		return append([]int64(nil), v...), nil
	}
	out := make([]int64, len(f))
	for i, x := range f {
		out[i] = int64(x)
	}
	return out, nil
}

// Strings returns string data.
func (d *Dataset) Strings() ([]string, error) {
	v, ok := d.Data.([]string)
	if !ok {
		return nil, fmt.Errorf("dataset %q: %s is not a string dataset", d.Name, d.Type)
	}
	return append([]string(nil), v...), nil
}

func widen[T int32 | int64 | uint32 | uint64 | float32](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Truncate returns a copy limited to the first n entries along the first
// dimension. Scalars and datasets already short enough are copied whole.
func (d *Dataset) Truncate(n uint64) *Dataset {
	out := *d
	out.Attrs = append([]Attribute(nil), d.Attrs...)
	out.Dims = append([]uint64(nil), d.Dims...)
	if len(d.Dims) == 0 || d.Dims[0] <= n {
		out.Data = cloneData(d.Data, d.Len())
		return &out
	}
	rowElems := 1
	for _, x := range d.Dims[1:] {
		rowElems *= int(x)
	}
	out.Dims[0] = n
	out.Data = cloneData(d.Data, int(n)*rowElems)
	return &out
}

func cloneData(data any, n int) any {
	switch v := data.(type) {
	case []int32:
		return append([]int32(nil), v[:n]...)
	case []int64:
		return append([]int64(nil), v[:n]...)
	case []uint32:
		return append([]uint32(nil), v[:n]...)
	case []uint64:
		return append([]uint64(nil), v[:n]...)
	case []float32:
		return append([]float32(nil), v[:n]...)
	case []float64:
		return append([]float64(nil), v[:n]...)
	case []string:
		return append([]string(nil), v[:n]...)
	}
	return data
}
