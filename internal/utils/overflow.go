package utils

import (
	"fmt"
	"math"
)

// MaxElements caps the element count of a single in-memory dataset.
const MaxElements = 1 << 31

// CheckMultiplyOverflow checks if multiplying two uint64 values would overflow.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}
	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}
	return nil
}

// ElementCount returns the product of dims. An empty shape is a scalar and
// counts as one element.
func ElementCount(dims []uint64) (uint64, error) {
	total := uint64(1)
	for i, d := range dims {
		if err := CheckMultiplyOverflow(total, d); err != nil {
			return 0, fmt.Errorf("element count overflow at dimension %d: %w", i, err)
		}
		total *= d
	}
	if total > MaxElements {
		return 0, fmt.Errorf("element count %d exceeds maximum %d", total, uint64(MaxElements))
	}
	return total, nil
}
