// Package regmap abstracts 32-bit register access so the same driver code can
// run against a local SPI device, a remote IIO debug attribute or an
// in-memory register file.
package regmap

import (
	"context"
	"fmt"
)

// Bus reads and writes registers identified by a flat address. Every call
// blocks until the transaction completed or failed.
type Bus interface {
	Read(ctx context.Context, reg uint32) (uint32, error)
	Write(ctx context.Context, reg, val uint32) error
}

// Update performs a read-modify-write of the bits selected by mask.
func Update(ctx context.Context, b Bus, reg, mask, val uint32) error {
	cur, err := b.Read(ctx, reg)
	if err != nil {
		return fmt.Errorf("read 0x%04X: %w", reg, err)
	}
	next := (cur &^ mask) | (val & mask)
	if next == cur {
		return nil
	}
	if err := b.Write(ctx, reg, next); err != nil {
		return fmt.Errorf("write 0x%04X: %w", reg, err)
	}
	return nil
}

// Field extracts the bits selected by mask, shifted down to bit 0.
func Field(val, mask uint32) uint32 {
	if mask == 0 {
		return 0
	}
	shift := 0
	for mask&(1<<shift) == 0 {
		shift++
	}
	return (val & mask) >> shift
}

// Prep shifts v into the position selected by mask.
func Prep(mask, v uint32) uint32 {
	if mask == 0 {
		return 0
	}
	shift := 0
	for mask&(1<<shift) == 0 {
		shift++
	}
	return (v << shift) & mask
}
