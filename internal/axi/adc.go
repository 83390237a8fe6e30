package axi

import (
	"context"
	"fmt"

	"github.com/rjboer/adrv9002/internal/regmap"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// ADC is the receive side core. Its PN monitor checks the incoming samples
// against a known sequence.
type ADC struct {
	core
}

// NewADC returns the ADC whose registers start at base on bus.
func NewADC(bus regmap.Bus, base uint32) *ADC {
	return &ADC{core{bus: bus, base: base}}
}

// PNSelect returns the monitor select value for a test sequence.
func PNSelect(d ssi.TestData) (uint32, error) {
	switch d {
	case ssi.TestNormal:
		return adcPN9, nil
	case ssi.TestRampNibble:
		return adcRampNibble, nil
	case ssi.TestRamp16:
		return adcRamp16, nil
	case ssi.TestPRBS7:
		return adcPN7, nil
	case ssi.TestPRBS15:
		return adcPN15, nil
	default:
		return 0, fmt.Errorf("adc cannot monitor %s", d)
	}
}

// PNMonitorSet selects the sequence the monitor expects on both I and Q.
// TestNormal puts the monitor back on its PN9 default.
func (a *ADC) PNMonitorSet(ctx context.Context, d ssi.TestData) error {
	sel, err := PNSelect(d)
	if err != nil {
		return err
	}
	for c := 0; c < numIQ; c++ {
		if err := a.update(ctx, RegChanCntrl3(c), ADCPNSel, regmap.Prep(ADCPNSel, sel)); err != nil {
			return fmt.Errorf("set pn monitor on channel %d: %w", c, err)
		}
	}
	return nil
}

// PNStatusClear clears the sticky monitor flags (write one to clear).
func (a *ADC) PNStatusClear(ctx context.Context) error {
	for c := 0; c < numIQ; c++ {
		if err := a.write(ctx, RegChanStatus(c), StatusPNErr|StatusPNOOS|StatusOverRange); err != nil {
			return fmt.Errorf("clear status on channel %d: %w", c, err)
		}
	}
	return nil
}

// PNStatus reports whether the monitor flagged an error or loss of sync on
// either lane since the last clear.
func (a *ADC) PNStatus(ctx context.Context) (bool, error) {
	for c := 0; c < numIQ; c++ {
		v, err := a.read(ctx, RegChanStatus(c))
		if err != nil {
			return false, fmt.Errorf("read status on channel %d: %w", c, err)
		}
		if v&(StatusPNErr|StatusPNOOS) != 0 {
			return true, nil
		}
	}
	return false, nil
}
