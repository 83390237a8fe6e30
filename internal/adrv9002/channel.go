package adrv9002

import (
	"context"
	"errors"
	"fmt"

	"github.com/rjboer/adrv9002/internal/logging"
)

func (p *Phy) refresh(ctx context.Context, c *Channel) error {
	st, err := p.dev.ChannelState(ctx, c.Port, c.Index)
	if err != nil {
		return busErr(fmt.Sprintf("%s: read state", c.Address()), err)
	}
	c.cachedState = st
	return nil
}

// RefreshState reads the state of every channel back from the chip. A
// failing channel keeps its previous cached state.
func (p *Phy) RefreshState(ctx context.Context) error {
	var errs []error
	for i := range p.rx {
		for _, c := range []*Channel{&p.rx[i].Channel, &p.tx[i].Channel} {
			if err := p.refresh(ctx, c); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ChannelToState moves a channel to state. The cached state is taken from
// the chip after the request, so it always holds what the chip reports.
func (p *Phy) ChannelToState(ctx context.Context, port Port, idx int, state ChannelState) error {
	c, err := p.channel(port, idx)
	if err != nil {
		return err
	}
	if c.cachedState == state {
		return nil
	}
	from := c.cachedState
	if err := p.dev.ChannelToState(ctx, port, idx, state); err != nil {
		return p.DevErr(busErr(fmt.Sprintf("%s: %s -> %s", c.Address(), from, state), err))
	}
	if err := p.refresh(ctx, c); err != nil {
		return p.DevErr(err)
	}
	if c.cachedState != state {
		return fmt.Errorf("%s: requested %s, chip reports %s: %w", c.Address(), state, c.cachedState, ErrInvalidState)
	}
	p.log.Debug("channel state changed",
		logging.F("port", port), logging.F("channel", c.Number),
		logging.F("from", from), logging.F("to", state))
	return nil
}

// SetPowerDown powers a channel down or back up.
func (p *Phy) SetPowerDown(ctx context.Context, port Port, idx int, down bool) error {
	c, err := p.channel(port, idx)
	if err != nil {
		return err
	}
	if err := p.dev.ChannelPowerSet(ctx, port, idx, !down); err != nil {
		return p.DevErr(busErr(fmt.Sprintf("%s: power", c.Address()), err))
	}
	c.Power = !down
	// Powering a channel moves it through the state machine.
	if err := p.refresh(ctx, c); err != nil {
		return p.DevErr(err)
	}
	return nil
}

// SetNCO programs the channel NCO offset in Hz.
func (p *Phy) SetNCO(ctx context.Context, port Port, idx int, hz int64) error {
	c, err := p.channel(port, idx)
	if err != nil {
		return err
	}
	if err := p.dev.NCOFrequencySet(ctx, port, idx, hz); err != nil {
		return p.DevErr(busErr(fmt.Sprintf("%s: nco", c.Address()), err))
	}
	c.NCOFreq = hz
	return nil
}

// RFEnable moves an enabled channel between primed and rf_enabled.
func (p *Phy) RFEnable(ctx context.Context, port Port, idx int, on bool) error {
	c, err := p.channel(port, idx)
	if err != nil {
		return err
	}
	if !c.Enabled {
		return fmt.Errorf("%s: channel not enabled: %w", c.Address(), ErrInvalidState)
	}
	if on {
		return p.ChannelToState(ctx, port, idx, StateRfEnabled)
	}
	return p.ChannelToState(ctx, port, idx, StatePrimed)
}
