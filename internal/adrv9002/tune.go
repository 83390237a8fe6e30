package adrv9002

import (
	"context"
	"errors"
	"fmt"

	"github.com/rjboer/adrv9002/internal/logging"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// ChannelResult is the outcome of tuning one channel and direction.
type ChannelResult struct {
	Address      Address         `json:"address"`
	Port         string          `json:"port"`
	Channel      int             `json:"channel"`
	Clk          uint8           `json:"clkDelay"`
	Data         uint8           `json:"dataDelay"`
	Eye          EyeDiagram      `json:"eye"`
	Region       Region          `json:"region"`
	AGC          *GainControlCfg `json:"agc,omitempty"`
	Skipped      bool            `json:"skipped,omitempty"`
	Mirrored     bool            `json:"mirrored,omitempty"`
	Error        string          `json:"error,omitempty"`
	Err          error           `json:"-"`
	RestoreError string          `json:"restoreError,omitempty"`

	// Restore is set when the channel could not be put back into the state
	// it had before tuning. It does not make the delay pair unusable.
	Restore error `json:"-"`
}

// OK reports whether the channel ended with a usable delay pair.
func (r ChannelResult) OK() bool { return !r.Skipped && r.Err == nil }

// AxiIntfTune sweeps every delay pair of one channel against the test
// pattern and programs the center of the largest passing region. Test mode
// is left on every path. When nothing passes ErrNoValidRegion is returned
// and the delays in place before the sweep are written back.
func (p *Phy) AxiIntfTune(ctx context.Context, tx bool, idx int, t ssi.Type) (clk, data uint8, err error) {
	res, err := p.TuneChannel(ctx, portOf(tx), idx, t)
	return res.Clk, res.Data, err
}

// TuneChannel is AxiIntfTune returning the whole result, eye included.
func (p *Phy) TuneChannel(ctx context.Context, port Port, idx int, t ssi.Type) (ChannelResult, error) {
	c, err := p.channel(port, idx)
	if err != nil {
		return ChannelResult{}, err
	}
	res := ChannelResult{Address: c.Address(), Port: port.String(), Channel: c.Number}
	tx := port == PortTX
	log := p.log.With(logging.F("port", port), logging.F("channel", c.Number), logging.F("ssi", t))

	if err := testModeAllowed(c); err != nil {
		return res, err
	}
	before, err := p.dev.SSIDelayInspect(ctx, t)
	if err != nil {
		return res, p.DevErr(busErr(fmt.Sprintf("%s: read delays", c.Address()), err))
	}
	p.delays = before

	if !tx {
		// the sweep works on a snapshot; the live AGC is never written here
		if rx := p.rx[idx]; rx.DebugAGC != nil {
			*rx.DebugAGC = rx.AGC
			agc := *rx.DebugAGC
			res.AGC = &agc
		}
	}

	if err := p.IntfTestCfg(ctx, idx, tx, false, t); err != nil {
		exitErr := p.IntfTestCfg(ctx, idx, tx, true, t)
		return res, p.DevErr(errors.Join(fmt.Errorf("%s: enter test mode: %w", c.Address(), err), exitErr))
	}

	eye, sweepErr := p.sweep(ctx, idx, tx, t)
	res.Eye = eye
	exitErr := p.IntfTestCfg(ctx, idx, tx, true, t)
	if exitErr != nil {
		exitErr = fmt.Errorf("%s: leave test mode: %w", c.Address(), exitErr)
	}

	region, found := eye.LargestRegion()
	if sweepErr != nil || !found {
		if sweepErr == nil {
			sweepErr = fmt.Errorf("%s: %w", c.Address(), ErrNoValidRegion)
		}
		restoreErr := p.writeDelays(ctx, t, before)
		log.Warn("tuning failed, previous delays restored", logging.Err(sweepErr))
		return res, p.DevErr(errors.Join(sweepErr, exitErr, restoreErr))
	}
	if exitErr != nil {
		return res, p.DevErr(exitErr)
	}

	res.Region = region
	res.Clk, res.Data = region.Center()
	if err := p.IntfChangeDelay(ctx, idx, res.Clk, res.Data, tx, t); err != nil {
		return res, err
	}
	log.Info("interface tuned",
		logging.F("clk_delay", res.Clk), logging.F("data_delay", res.Data),
		logging.F("passed", eye.Passed()), logging.F("region_area", region.Area()))
	log.Debug("eye diagram\n" + eye.String())
	return res, nil
}

func (p *Phy) sweep(ctx context.Context, idx int, tx bool, t ssi.Type) (EyeDiagram, error) {
	var eye EyeDiagram
	for i := 0; i < ssi.MaxClkDelay*ssi.MaxDataDelay; i++ {
		if err := ctx.Err(); err != nil {
			return eye, err
		}
		clk, data := p.order.point(i)
		if err := p.IntfChangeDelay(ctx, idx, clk, data, tx, t); err != nil {
			return eye, err
		}
		var ok bool
		var err error
		if tx {
			ok, err = p.CheckTxTestPattern(ctx, idx, t)
		} else {
			ok, err = p.checkRxTestPattern(ctx, idx)
		}
		if err != nil {
			return eye, fmt.Errorf("trial clk %d data %d: %w", clk, data, err)
		}
		eye[clk][data] = ok
	}
	return eye, nil
}
