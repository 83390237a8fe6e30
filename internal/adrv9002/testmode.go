package adrv9002

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rjboer/adrv9002/internal/logging"
	"github.com/rjboer/adrv9002/internal/ssi"
)

func (p *Phy) adc(idx int) (ADC, error) {
	if idx < len(p.conv.RxADC) && p.conv.RxADC[idx] != nil {
		return p.conv.RxADC[idx], nil
	}
	return nil, fmt.Errorf("rx%d: no adc core: %w", idx+1, ErrInvalidChannel)
}

func (p *Phy) dac(idx int) (DAC, error) {
	if idx < len(p.conv.TxDAC) && p.conv.TxDAC[idx] != nil {
		return p.conv.TxDAC[idx], nil
	}
	return nil, fmt.Errorf("tx%d: no dac core: %w", idx+1, ErrInvalidChannel)
}

func testModeAllowed(c *Channel) error {
	if !c.Enabled {
		return fmt.Errorf("%s: channel not enabled: %w", c.Address(), ErrInvalidState)
	}
	if !c.cachedState.testable() {
		return fmt.Errorf("%s: test mode needs primed or rf_enabled, channel is %s: %w",
			c.Address(), c.cachedState, ErrInvalidState)
	}
	return nil
}

// IntfTestCfg enters (stop false) or leaves (stop true) test pattern mode on
// one channel. On RX the chip sends the pattern and the ADC monitors it; on
// TX the DAC sends it and the chip checks it. Leaving always attempts every
// step and restores normal data.
func (p *Phy) IntfTestCfg(ctx context.Context, idx int, tx, stop bool, t ssi.Type) error {
	if tx {
		return p.txTestCfg(ctx, idx, stop, t)
	}
	return p.rxTestCfg(ctx, idx, stop, t)
}

func (p *Phy) rxTestCfg(ctx context.Context, idx int, stop bool, t ssi.Type) error {
	c, err := p.RX(idx)
	if err != nil {
		return err
	}
	adc, err := p.adc(idx)
	if err != nil {
		return err
	}

	cfg := ssi.RxTestModeCfg{TestData: ssi.TestNormal}
	if stop {
		errs := []error{}
		if err := p.dev.SSIRxTestModeConfigure(ctx, idx, t, cfg); err != nil {
			errs = append(errs, busErr(fmt.Sprintf("%s: leave test mode", c.Address()), err))
		}
		if err := adc.PNMonitorSet(ctx, ssi.TestNormal); err != nil {
			errs = append(errs, busErr(fmt.Sprintf("%s: reset pn monitor", c.Address()), err))
		}
		c.SSITest = cfg
		return p.DevErr(errors.Join(errs...))
	}

	if err := testModeAllowed(&c.Channel); err != nil {
		return err
	}
	cfg.TestData = ssi.RxPattern(t)
	if err := p.dev.SSIRxTestModeConfigure(ctx, idx, t, cfg); err != nil {
		return p.DevErr(busErr(fmt.Sprintf("%s: enter test mode", c.Address()), err))
	}
	c.SSITest = cfg
	if err := adc.PNMonitorSet(ctx, cfg.TestData); err != nil {
		return p.DevErr(busErr(fmt.Sprintf("%s: set pn monitor", c.Address()), err))
	}
	return nil
}

func (p *Phy) txTestCfg(ctx context.Context, idx int, stop bool, t ssi.Type) error {
	c, err := p.TX(idx)
	if err != nil {
		return err
	}
	dac, err := p.dac(idx)
	if err != nil {
		return err
	}

	cfg := ssi.TxTestModeCfg{TestData: ssi.TestNormal}
	if stop {
		errs := []error{}
		if err := p.dev.SSITxTestModeConfigure(ctx, idx, t, cfg); err != nil {
			errs = append(errs, busErr(fmt.Sprintf("%s: leave test mode", c.Address()), err))
		}
		if err := dac.DataSourceSet(ctx, ssi.TestNormal); err != nil {
			errs = append(errs, busErr(fmt.Sprintf("%s: restore dac source", c.Address()), err))
		}
		c.SSITest = cfg
		return p.DevErr(errors.Join(errs...))
	}

	if err := testModeAllowed(&c.Channel); err != nil {
		return err
	}
	cfg.TestData = ssi.TxPattern(t)
	if err := dac.DataSourceSet(ctx, cfg.TestData); err != nil {
		return p.DevErr(busErr(fmt.Sprintf("%s: set dac pattern", c.Address()), err))
	}
	if err := p.dev.SSITxTestModeConfigure(ctx, idx, t, cfg); err != nil {
		return p.DevErr(busErr(fmt.Sprintf("%s: enter test mode", c.Address()), err))
	}
	c.SSITest = cfg
	return nil
}

// IntfChangeDelay writes one clock/data delay pair. The data delay applies
// to strobe, I and Q; the TX reference clock delay and the other channels
// keep their values.
func (p *Phy) IntfChangeDelay(ctx context.Context, idx int, clk, data uint8, tx bool, t ssi.Type) error {
	if _, err := p.channel(portOf(tx), idx); err != nil {
		return err
	}
	if clk >= ssi.MaxClkDelay || data >= ssi.MaxDataDelay {
		return fmt.Errorf("delay %d/%d out of range", clk, data)
	}
	next := p.delays
	next.Set(tx, idx, clk, data)
	return p.writeDelays(ctx, t, next)
}

func (p *Phy) writeDelays(ctx context.Context, t ssi.Type, cfg ssi.CalibrationConfig) error {
	if err := p.dev.SSIDelayConfigure(ctx, t, cfg); err != nil {
		return p.DevErr(busErr("configure ssi delays", err))
	}
	p.delays = cfg
	return nil
}

// CheckTxTestPattern reports whether the chip received the TX test pattern
// without error.
func (p *Phy) CheckTxTestPattern(ctx context.Context, idx int, t ssi.Type) (bool, error) {
	if _, err := p.TX(idx); err != nil {
		return false, err
	}
	st, err := p.dev.SSITxTestModeStatus(ctx, idx, t)
	if err != nil {
		return false, p.DevErr(busErr(fmt.Sprintf("tx%d: test mode status", idx+1), err))
	}
	ok := st.Passed(t)
	if !ok {
		p.log.Debug("tx test pattern mismatch",
			logging.F("channel", idx+1),
			logging.F("data_error", st.DataError),
			logging.F("fifo_full", st.FifoFull),
			logging.F("fifo_empty", st.FifoEmpty),
			logging.F("strobe_align_error", st.StrobeAlignError))
	}
	return ok, nil
}

// checkRxTestPattern clears the ADC monitor, lets it run and checks both
// lanes for errors or loss of sync.
func (p *Phy) checkRxTestPattern(ctx context.Context, idx int) (bool, error) {
	adc, err := p.adc(idx)
	if err != nil {
		return false, err
	}
	if err := adc.PNStatusClear(ctx); err != nil {
		return false, p.DevErr(busErr(fmt.Sprintf("rx%d: clear pn status", idx+1), err))
	}
	if err := sleepCtx(ctx, p.settle); err != nil {
		return false, err
	}
	bad, err := adc.PNStatus(ctx)
	if err != nil {
		return false, p.DevErr(busErr(fmt.Sprintf("rx%d: pn status", idx+1), err))
	}
	return !bad, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
