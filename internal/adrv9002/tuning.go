package adrv9002

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rjboer/adrv9002/internal/logging"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// TuningReport collects the outcome of IntfTuning.
type TuningReport struct {
	Started  time.Time       `json:"started"`
	Duration time.Duration   `json:"duration"`
	SSIType  string          `json:"ssiType"`
	RX2TX2   bool            `json:"rx2tx2"`
	Results  []ChannelResult `json:"results"`

	// Delays is the hardware delay record after the run. Channels that
	// failed hold the pairs restored from before their sweep.
	Delays ssi.CalibrationConfig `json:"delays"`
}

// Tuned returns the results that produced a delay pair.
func (r *TuningReport) Tuned() []ChannelResult {
	var out []ChannelResult
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns the results that ended with an error.
func (r *TuningReport) Failed() []ChannelResult {
	var out []ChannelResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

func (p *Phy) ssiType(ctx context.Context) (ssi.Type, error) {
	if p.ssi.Type != ssi.Disabled {
		return p.ssi.Type, nil
	}
	return p.SSITypeGet(ctx)
}

// IntfTuning tunes every enabled channel, RX before TX, channel 1 first. A
// failing channel does not stop the others; the returned error joins every
// channel error and the report tells which channels made it. In rx2tx2 mode
// channel 2 is not swept and takes the delays found for channel 1; a
// disabled channel 2 is left alone.
func (p *Phy) IntfTuning(ctx context.Context) (*TuningReport, error) {
	t, err := p.ssiType(ctx)
	if err != nil {
		return nil, err
	}
	report := &TuningReport{Started: time.Now(), SSIType: t.String(), RX2TX2: p.rx2tx2}

	var errs []error
	for i := 0; i < p.Channels(); i++ {
		for _, port := range []Port{PortRX, PortTX} {
			c, _ := p.channel(port, i)
			res := ChannelResult{Address: c.Address(), Port: port.String(), Channel: c.Number}

			var err error
			switch {
			case !c.Enabled:
				res.Skipped = true
			case p.rx2tx2 && i > 0:
				res, err = p.mirror(ctx, c, report.Results, t)
			default:
				res, err = p.tunePrimed(ctx, c, t)
			}
			if err != nil {
				res.Err = err
				res.Error = err.Error()
				errs = append(errs, err)
				p.log.Error("channel tuning failed", logging.F("port", port), logging.F("channel", c.Number), logging.Err(err))
			} else if res.OK() && p.diag != nil {
				p.diag.record(res, p.delays)
			}
			if res.Restore != nil {
				res.RestoreError = res.Restore.Error()
				errs = append(errs, res.Restore)
				p.log.Warn("channel state not restored", logging.F("port", port), logging.F("channel", c.Number), logging.Err(res.Restore))
			}
			report.Results = append(report.Results, res)
		}
	}

	report.Delays = p.delays
	report.Duration = time.Since(report.Started)
	return report, errors.Join(errs...)
}

// tunePrimed tunes one channel, moving it to primed for the sweep when it
// sits in standby or calibrated and putting it back afterwards. Standby is
// left by powering the channel up and entered again by powering it down. A
// failed return to the previous state is reported in res.Restore and leaves
// the tuning outcome alone.
func (p *Phy) tunePrimed(ctx context.Context, c *Channel, t ssi.Type) (ChannelResult, error) {
	res := ChannelResult{Address: c.Address(), Port: c.Port.String(), Channel: c.Number}
	if err := p.refresh(ctx, c); err != nil {
		return res, err
	}
	prev := c.cachedState
	if prev != StateStandby && prev != StateCalibrated {
		return p.TuneChannel(ctx, c.Port, c.Index, t)
	}

	err := p.prime(ctx, c)
	if err == nil {
		res, err = p.TuneChannel(ctx, c.Port, c.Index, t)
	}
	res.Restore = p.restoreState(ctx, c, prev)
	return res, err
}

func (p *Phy) prime(ctx context.Context, c *Channel) error {
	if c.cachedState == StateStandby {
		if err := p.SetPowerDown(ctx, c.Port, c.Index, false); err != nil {
			return err
		}
	}
	return p.ChannelToState(ctx, c.Port, c.Index, StatePrimed)
}

func (p *Phy) restoreState(ctx context.Context, c *Channel, prev ChannelState) error {
	if prev != StateStandby {
		return p.ChannelToState(ctx, c.Port, c.Index, prev)
	}
	if c.cachedState == StateStandby {
		return nil
	}
	if err := p.SetPowerDown(ctx, c.Port, c.Index, true); err != nil {
		return err
	}
	if c.cachedState != StateStandby {
		return fmt.Errorf("%s: powered down but chip reports %s: %w", c.Address(), c.cachedState, ErrInvalidState)
	}
	return nil
}

// mirror copies the pair of channel 1 onto c.
func (p *Phy) mirror(ctx context.Context, c *Channel, done []ChannelResult, t ssi.Type) (ChannelResult, error) {
	res := ChannelResult{Address: c.Address(), Port: c.Port.String(), Channel: c.Number, Mirrored: true}
	src := MakeAddress(c.Port, 0)
	for _, r := range done {
		if r.Address != src {
			continue
		}
		if !r.OK() {
			res.Skipped = true
			return res, nil
		}
		res.Clk, res.Data, res.Eye, res.Region = r.Clk, r.Data, r.Eye, r.Region
		if err := p.IntfChangeDelay(ctx, c.Index, r.Clk, r.Data, c.Port == PortTX, t); err != nil {
			return res, fmt.Errorf("%s: mirror %s: %w", c.Address(), src, err)
		}
		return res, nil
	}
	res.Skipped = true
	return res, nil
}
