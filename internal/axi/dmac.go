package axi

import (
	"context"
	"fmt"

	"github.com/rjboer/adrv9002/internal/regmap"
)

// DMAC is an AXI DMA controller. The tuning code never looks inside; it
// only needs to quiesce it.
type DMAC struct {
	name string
	bus  regmap.Bus
	base uint32
}

// NewDMAC returns a named DMA controller.
func NewDMAC(name string, bus regmap.Bus, base uint32) *DMAC {
	return &DMAC{name: name, bus: bus, base: base}
}

func (d *DMAC) Name() string { return d.name }

// Reset disables and re-enables the controller, dropping queued transfers.
func (d *DMAC) Reset(ctx context.Context) error {
	if err := d.bus.Write(ctx, d.base+RegDMACCtrl, 0); err != nil {
		return fmt.Errorf("%s: disable: %w", d.name, err)
	}
	if err := d.bus.Write(ctx, d.base+RegDMACCtrl, DMACCtrlEnable); err != nil {
		return fmt.Errorf("%s: enable: %w", d.name, err)
	}
	return nil
}
