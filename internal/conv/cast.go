package conv

import (
	"fmt"
	"math"
	"math/bits"
)

// IntToUint32 converts int to uint32 safely.
func IntToUint32(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32 (negative)", v)
	}
	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("integer overflow: %d cannot be converted to uint32 (too large)", v)
	}
	return uint32(v), nil
}

// SlotBytes returns count*size as an int64 byte amount.
// It fails if the product does not fit.
func SlotBytes(count int, size uintptr) (int64, error) {
	if count < 0 {
		return 0, fmt.Errorf("integer overflow: negative slot count %d", count)
	}
	hi, lo := bits.Mul64(uint64(count), uint64(size))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, fmt.Errorf("integer overflow: %d slots of %d bytes", count, size)
	}
	return int64(lo), nil
}
