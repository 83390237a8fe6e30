package axi

import (
	"context"
	"fmt"

	"github.com/rjboer/adrv9002/internal/regmap"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// DAC is the transmit side core.
type DAC struct {
	core
}

// NewDAC returns the DAC whose registers start at base on bus.
func NewDAC(bus regmap.Bus, base uint32) *DAC {
	return &DAC{core{bus: bus, base: base}}
}

// DataSelect returns the data source select value for a test sequence.
func DataSelect(d ssi.TestData) (uint32, error) {
	switch d {
	case ssi.TestNormal:
		return dacDMA, nil
	case ssi.TestRampNibble:
		return dacRampNibble, nil
	case ssi.TestRamp16:
		return dacRamp16, nil
	case ssi.TestPRBS7:
		return dacPN7, nil
	case ssi.TestPRBS15:
		return dacPN15, nil
	default:
		return 0, fmt.Errorf("dac cannot generate %s", d)
	}
}

func (d *DAC) setSel(ctx context.Context, sel uint32) error {
	for c := 0; c < numIQ; c++ {
		if err := d.update(ctx, RegChanCntrl7(c), DACDDSel, sel); err != nil {
			return fmt.Errorf("set data select on channel %d: %w", c, err)
		}
	}
	return nil
}

// DataSourceSet makes both lanes emit the given test sequence. TestNormal
// returns them to DMA data.
func (d *DAC) DataSourceSet(ctx context.Context, data ssi.TestData) error {
	sel, err := DataSelect(data)
	if err != nil {
		return err
	}
	return d.setSel(ctx, sel)
}

// Loopback feeds the ADC data straight back out when enabled, DMA otherwise.
func (d *DAC) Loopback(ctx context.Context, enable bool) error {
	if enable {
		return d.setSel(ctx, dacLoopback)
	}
	return d.setSel(ctx, dacDMA)
}

// Mute drives zeros on both lanes.
func (d *DAC) Mute(ctx context.Context) error {
	return d.setSel(ctx, dacZero)
}
