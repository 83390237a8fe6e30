package adrv9002

import (
	"context"
	"errors"
	"fmt"

	"github.com/rjboer/adrv9002/internal/logging"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// SSITypeGet reads the wire type the FPGA was built for from the RX1 core.
func (p *Phy) SSITypeGet(ctx context.Context) (ssi.Type, error) {
	adc, err := p.adc(0)
	if err != nil {
		return ssi.Disabled, err
	}
	t, err := adc.SSIType(ctx)
	if err != nil {
		return ssi.Disabled, busErr("read ssi type", err)
	}
	return t, nil
}

// SSIInterface returns the SSI setup of a channel. Lanes default to four
// on CMOS and two on LVDS.
func (p *Phy) SSIInterface(idx int) (ssi.Interface, error) {
	if idx < 0 || idx >= p.Channels() {
		return ssi.Interface{}, fmt.Errorf("channel %d: %w", idx, ErrInvalidChannel)
	}
	intf := p.ssi
	if intf.Lanes == 0 {
		switch intf.Type {
		case ssi.CMOS:
			intf.Lanes = 4
		case ssi.LVDS:
			intf.Lanes = 2
		}
	}
	return intf, nil
}

type ssiCore interface {
	InterfaceSet(ctx context.Context, intf ssi.Interface) error
	InterfaceEnable(ctx context.Context, enable bool) error
}

func (p *Phy) coreOf(idx int, tx bool) (ssiCore, error) {
	if tx {
		return p.dac(idx)
	}
	return p.adc(idx)
}

// AxiInterfaceSet programs lanes, wire type and DDR mode on the FPGA core of
// one channel.
func (p *Phy) AxiInterfaceSet(ctx context.Context, idx int, tx bool, intf ssi.Interface) error {
	c, err := p.coreOf(idx, tx)
	if err != nil {
		return err
	}
	if err := c.InterfaceSet(ctx, intf); err != nil {
		return busErr(fmt.Sprintf("%s: set interface", MakeAddress(portOf(tx), uint8(idx))), err)
	}
	return nil
}

// AxiInterfaceEnable takes the FPGA core of one channel in or out of reset.
func (p *Phy) AxiInterfaceEnable(ctx context.Context, idx int, tx, enable bool) error {
	c, err := p.coreOf(idx, tx)
	if err != nil {
		return err
	}
	if err := c.InterfaceEnable(ctx, enable); err != nil {
		return busErr(fmt.Sprintf("%s: enable interface", MakeAddress(portOf(tx), uint8(idx))), err)
	}
	return nil
}

// SSIConfigure brings the FPGA cores of every enabled channel in line with
// the SSI setup, then pulses the sync line. In rx2tx2 mode only channel 1
// cores are programmed and the channel 2 clocks follow channel 1.
func (p *Phy) SSIConfigure(ctx context.Context) error {
	var errs []error
	for i := 0; i < p.Channels(); i++ {
		if p.rx2tx2 && i > 0 {
			break
		}
		intf, err := p.SSIInterface(i)
		if err != nil {
			return err
		}
		for _, port := range []Port{PortRX, PortTX} {
			c, _ := p.channel(port, i)
			if !c.Enabled {
				continue
			}
			tx := port == PortTX
			err := p.AxiInterfaceEnable(ctx, i, tx, false)
			if err == nil {
				err = p.AxiInterfaceSet(ctx, i, tx, intf)
			}
			if err == nil {
				err = p.AxiInterfaceEnable(ctx, i, tx, true)
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			p.log.Debug("ssi interface configured",
				logging.F("port", port), logging.F("channel", c.Number),
				logging.F("ssi", intf.Type), logging.F("lanes", intf.Lanes), logging.F("cmos_ddr", intf.CMOSDDR))
		}
	}
	if p.rx2tx2 {
		p.clocks[ClockRx2].Rate = p.clocks[ClockRx1].Rate
		p.clocks[ClockTx2].Rate = p.clocks[ClockTx1].Rate
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return p.SyncGPIOToggle(ctx)
}

// RegisterConverters checks that every enabled channel has its FPGA core and
// resets the DMA engines.
func (p *Phy) RegisterConverters(ctx context.Context) error {
	var errs []error
	for i := 0; i < p.Channels(); i++ {
		if p.rx2tx2 && i > 0 {
			break
		}
		if p.rx[i].Enabled {
			if _, err := p.adc(i); err != nil {
				errs = append(errs, err)
			}
		}
		if p.tx[i].Enabled {
			if _, err := p.dac(i); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, d := range p.conv.DMA {
		if d == nil {
			continue
		}
		if err := d.Reset(ctx); err != nil {
			errs = append(errs, busErr(fmt.Sprintf("reset %s", d.Name()), err))
			continue
		}
		p.log.Debug("dma registered", logging.F("dma", d.Name()))
	}
	return errors.Join(errs...)
}

// HDLLoopback routes the ADC data back out of every TX DAC, or returns the
// DACs to DMA data.
func (p *Phy) HDLLoopback(ctx context.Context, enable bool) error {
	var errs []error
	for i, d := range p.conv.TxDAC {
		if d == nil {
			continue
		}
		if err := d.Loopback(ctx, enable); err != nil {
			errs = append(errs, busErr(fmt.Sprintf("tx%d: loopback", i+1), err))
		}
	}
	return errors.Join(errs...)
}
