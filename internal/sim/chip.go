// Package sim simulates an ADRV9002 together with the FPGA cores on the
// other end of its SSI links. Each link samples correctly only inside a
// programmable eye mask, so delay tuning can be exercised without hardware.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/rjboer/adrv9002/internal/adrv9002"
	"github.com/rjboer/adrv9002/internal/axi"
	"github.com/rjboer/adrv9002/internal/regmap"
	"github.com/rjboer/adrv9002/internal/ssi"
)

const numChannels = ssi.NumChannels

// FPGA register layout of the simulated design.
const (
	txBase  = 0x10000
	dmaBase = 0x20000
)

// RxBase is the register base of the RX core of channel idx.
func RxBase(idx int) uint32 { return uint32(idx) * axi.Chan2Offset }

// TxBase is the register base of the TX core of channel idx.
func TxBase(idx int) uint32 { return txBase + uint32(idx)*axi.Chan2Offset }

// DMABase is the register base of DMA engine i (RX engines first).
func DMABase(i int) uint32 { return dmaBase + uint32(i)*0x1000 }

// Op names a chip operation for fault injection.
type Op string

const (
	OpState        Op = "state"
	OpToState      Op = "to_state"
	OpPower        Op = "power"
	OpNCO          Op = "nco"
	OpTestMode     Op = "test_mode"
	OpTxStatus     Op = "tx_status"
	OpDelay        Op = "delay_configure"
	OpDelayInspect Op = "delay_inspect"
)

type faultKey struct {
	op   Op
	addr adrv9002.Address
	all  bool
}

// DefaultEye is the mask used when none is set: a 5x5 window centered on
// clock delay 3, data delay 4.
func DefaultEye() adrv9002.EyeDiagram {
	var e adrv9002.EyeDiagram
	for clk := 1; clk <= 5; clk++ {
		for data := 2; data <= 6; data++ {
			e[clk][data] = true
		}
	}
	return e
}

// Chip is a simulated transceiver. It is safe for concurrent use.
type Chip struct {
	mu      sync.Mutex
	ssiType ssi.Type
	state   [2][numChannels]adrv9002.ChannelState
	power   [2][numChannels]bool
	nco     [2][numChannels]int64
	stuck   map[adrv9002.Address]bool
	delays  ssi.CalibrationConfig
	rxData  [numChannels]ssi.TestData
	txCheck [numChannels]ssi.TestData
	eyes    [2][numChannels]adrv9002.EyeDiagram
	faults  map[faultKey]error
	enters  map[adrv9002.Address]int
	exits   map[adrv9002.Address]int
	writes  int

	regs *regmap.Map
}

// New returns a chip with every channel calibrated and powered, wired to
// FPGA cores built for t.
func New(t ssi.Type) *Chip {
	c := &Chip{
		ssiType: t,
		stuck:   make(map[adrv9002.Address]bool),
		faults:  make(map[faultKey]error),
		enters:  make(map[adrv9002.Address]int),
		exits:   make(map[adrv9002.Address]int),
		regs:    regmap.NewMap(),
	}
	for p := 0; p < 2; p++ {
		for i := 0; i < numChannels; i++ {
			c.state[p][i] = adrv9002.StateCalibrated
			c.power[p][i] = true
			c.eyes[p][i] = DefaultEye()
		}
	}
	if t == ssi.CMOS {
		for i := 0; i < numChannels; i++ {
			c.regs.Set(RxBase(i)+axi.RegConfig, axi.ConfigCMOSOrLVDSN)
			c.regs.Set(TxBase(i)+axi.RegConfig, axi.ConfigCMOSOrLVDSN)
		}
	}
	return c
}

// Converters returns the FPGA cores of the simulated design.
func (c *Chip) Converters() adrv9002.Converters {
	bus := &fpga{chip: c}
	conv := adrv9002.Converters{}
	for i := 0; i < numChannels; i++ {
		conv.RxADC = append(conv.RxADC, axi.NewADC(bus, RxBase(i)))
		conv.TxDAC = append(conv.TxDAC, axi.NewDAC(bus, TxBase(i)))
	}
	for i := 0; i < 2*numChannels; i++ {
		name := fmt.Sprintf("rx%d-dmac", i+1)
		if i >= numChannels {
			name = fmt.Sprintf("tx%d-dmac", i-numChannels+1)
		}
		conv.DMA = append(conv.DMA, axi.NewDMAC(name, bus, DMABase(i)))
	}
	return conv
}

// Regs exposes the FPGA register file, e.g. to inject register faults.
func (c *Chip) Regs() *regmap.Map { return c.regs }

// SetEye replaces the pass mask of one link.
func (c *Chip) SetEye(port adrv9002.Port, idx int, e adrv9002.EyeDiagram) {
	c.mu.Lock()
	c.eyes[port][idx] = e
	c.mu.Unlock()
}

// SetState forces the state of a channel.
func (c *Chip) SetState(port adrv9002.Port, idx int, s adrv9002.ChannelState) {
	c.mu.Lock()
	c.state[port][idx] = s
	c.mu.Unlock()
}

// Stick makes state change requests on a channel succeed without effect.
func (c *Chip) Stick(port adrv9002.Port, idx int) {
	c.mu.Lock()
	c.stuck[adrv9002.MakeAddress(port, uint8(idx))] = true
	c.mu.Unlock()
}

// Fail makes op on one channel return err. A nil err clears the fault.
// Delay operations are global and only honour FailAll.
func (c *Chip) Fail(op Op, port adrv9002.Port, idx int, err error) {
	c.setFault(faultKey{op: op, addr: adrv9002.MakeAddress(port, uint8(idx))}, err)
}

// FailAll makes op return err on every channel.
func (c *Chip) FailAll(op Op, err error) {
	c.setFault(faultKey{op: op, all: true}, err)
}

func (c *Chip) setFault(k faultKey, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.faults, k)
		return
	}
	c.faults[k] = err
}

// fault must be called with c.mu held.
func (c *Chip) fault(op Op, addr adrv9002.Address) error {
	if err := c.faults[faultKey{op: op, addr: addr}]; err != nil {
		return err
	}
	return c.faults[faultKey{op: op, all: true}]
}

// Enters counts requests to start a test pattern on a link.
func (c *Chip) Enters(port adrv9002.Port, idx int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enters[adrv9002.MakeAddress(port, uint8(idx))]
}

// Exits counts requests to return a link to normal data.
func (c *Chip) Exits(port adrv9002.Port, idx int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exits[adrv9002.MakeAddress(port, uint8(idx))]
}

// State returns the state of a channel.
func (c *Chip) State(port adrv9002.Port, idx int) adrv9002.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state[port][idx]
}

// Delays returns the delay record currently applied.
func (c *Chip) Delays() ssi.CalibrationConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delays
}

// SetDelays applies a delay record without counting a write.
func (c *Chip) SetDelays(cfg ssi.CalibrationConfig) {
	c.mu.Lock()
	c.delays = cfg
	c.mu.Unlock()
}

// DelayWrites counts successful delay writes.
func (c *Chip) DelayWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// NCO returns the NCO offset of a channel.
func (c *Chip) NCO(port adrv9002.Port, idx int) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nco[port][idx]
}

func checkIndex(port adrv9002.Port, idx int) error {
	if port > adrv9002.PortTX || idx < 0 || idx >= numChannels {
		return fmt.Errorf("%s channel %d: %w", port, idx, adrv9002.ErrInvalidChannel)
	}
	return nil
}

func (c *Chip) ChannelState(ctx context.Context, port adrv9002.Port, idx int) (adrv9002.ChannelState, error) {
	if err := checkIndex(port, idx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fault(OpState, adrv9002.MakeAddress(port, uint8(idx))); err != nil {
		return 0, err
	}
	return c.state[port][idx], ctx.Err()
}

func (c *Chip) ChannelToState(ctx context.Context, port adrv9002.Port, idx int, s adrv9002.ChannelState) error {
	if err := checkIndex(port, idx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := adrv9002.MakeAddress(port, uint8(idx))
	if err := c.fault(OpToState, addr); err != nil {
		return err
	}
	if !c.stuck[addr] {
		c.state[port][idx] = s
	}
	return ctx.Err()
}

func (c *Chip) ChannelPowerSet(ctx context.Context, port adrv9002.Port, idx int, on bool) error {
	if err := checkIndex(port, idx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fault(OpPower, adrv9002.MakeAddress(port, uint8(idx))); err != nil {
		return err
	}
	c.power[port][idx] = on
	switch {
	case !on:
		c.state[port][idx] = adrv9002.StateStandby
	case c.state[port][idx] == adrv9002.StateStandby:
		c.state[port][idx] = adrv9002.StateCalibrated
	}
	return ctx.Err()
}

func (c *Chip) NCOFrequencySet(ctx context.Context, port adrv9002.Port, idx int, hz int64) error {
	if err := checkIndex(port, idx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fault(OpNCO, adrv9002.MakeAddress(port, uint8(idx))); err != nil {
		return err
	}
	c.nco[port][idx] = hz
	return ctx.Err()
}

// countTestMode must be called with c.mu held.
func (c *Chip) countTestMode(addr adrv9002.Address, active, next ssi.TestData) {
	switch {
	case next == ssi.TestNormal:
		c.exits[addr]++
	case active == ssi.TestNormal:
		c.enters[addr]++
	}
}

func (c *Chip) SSIRxTestModeConfigure(ctx context.Context, idx int, _ ssi.Type, cfg ssi.RxTestModeCfg) error {
	if err := checkIndex(adrv9002.PortRX, idx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := adrv9002.MakeAddress(adrv9002.PortRX, uint8(idx))
	c.countTestMode(addr, c.rxData[idx], cfg.TestData)
	if err := c.fault(OpTestMode, addr); err != nil {
		return err
	}
	c.rxData[idx] = cfg.TestData
	return ctx.Err()
}

func (c *Chip) SSITxTestModeConfigure(ctx context.Context, idx int, _ ssi.Type, cfg ssi.TxTestModeCfg) error {
	if err := checkIndex(adrv9002.PortTX, idx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := adrv9002.MakeAddress(adrv9002.PortTX, uint8(idx))
	c.countTestMode(addr, c.txCheck[idx], cfg.TestData)
	if err := c.fault(OpTestMode, addr); err != nil {
		return err
	}
	c.txCheck[idx] = cfg.TestData
	return ctx.Err()
}

func (c *Chip) SSITxTestModeStatus(ctx context.Context, idx int, t ssi.Type) (ssi.TxTestModeStatus, error) {
	if err := checkIndex(adrv9002.PortTX, idx); err != nil {
		return ssi.TxTestModeStatus{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fault(OpTxStatus, adrv9002.MakeAddress(adrv9002.PortTX, uint8(idx))); err != nil {
		return ssi.TxTestModeStatus{}, err
	}
	if c.txPass(idx) {
		return ssi.TxTestModeStatus{}, ctx.Err()
	}
	return ssi.TxTestModeStatus{DataError: true, StrobeAlignError: t == ssi.LVDS}, ctx.Err()
}

func (c *Chip) SSIDelayConfigure(ctx context.Context, _ ssi.Type, cfg ssi.CalibrationConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faults[faultKey{op: OpDelay, all: true}]; err != nil {
		return err
	}
	c.delays = cfg
	c.writes++
	return ctx.Err()
}

func (c *Chip) SSIDelayInspect(ctx context.Context, _ ssi.Type) (ssi.CalibrationConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faults[faultKey{op: OpDelayInspect, all: true}]; err != nil {
		return ssi.CalibrationConfig{}, err
	}
	return c.delays, ctx.Err()
}

// rxPass and txPass must be called with c.mu held.
func (c *Chip) rxPass(idx int) bool {
	d := c.rxData[idx]
	if d == ssi.TestNormal {
		return false
	}
	want, err := axi.PNSelect(d)
	if err != nil {
		return false
	}
	for lane := 0; lane < 2; lane++ {
		sel := regmap.Field(c.regs.Get(RxBase(idx)+axi.RegChanCntrl3(lane)), axi.ADCPNSel)
		if sel != want {
			return false
		}
	}
	return sampled(c.eyes[adrv9002.PortRX][idx], c.delays.RxClkDelay[idx], c.delays.RxIDataDelay[idx])
}

func (c *Chip) txPass(idx int) bool {
	d := c.txCheck[idx]
	if d == ssi.TestNormal {
		return false
	}
	want, err := axi.DataSelect(d)
	if err != nil {
		return false
	}
	for lane := 0; lane < 2; lane++ {
		if c.regs.Get(TxBase(idx)+axi.RegChanCntrl7(lane))&axi.DACDDSel != want {
			return false
		}
	}
	return sampled(c.eyes[adrv9002.PortTX][idx], c.delays.TxClkDelay[idx], c.delays.TxIDataDelay[idx])
}

func sampled(e adrv9002.EyeDiagram, clk, data uint8) bool {
	if int(clk) >= ssi.MaxClkDelay || int(data) >= ssi.MaxDataDelay {
		return false
	}
	return e[clk][data]
}

// fpga is the register bus of the FPGA cores. PN status reads of an RX core
// reflect whether the chip's pattern currently arrives intact.
type fpga struct {
	chip *Chip
}

func (f *fpga) Read(ctx context.Context, reg uint32) (uint32, error) {
	v, err := f.chip.regs.Read(ctx, reg)
	if err != nil {
		return 0, err
	}
	for idx := 0; idx < numChannels; idx++ {
		for lane := 0; lane < 2; lane++ {
			if reg != RxBase(idx)+axi.RegChanStatus(lane) {
				continue
			}
			f.chip.mu.Lock()
			ok := f.chip.rxPass(idx)
			f.chip.mu.Unlock()
			if ok {
				return 0, nil
			}
			return axi.StatusPNErr | axi.StatusPNOOS, nil
		}
	}
	return v, nil
}

func (f *fpga) Write(ctx context.Context, reg, val uint32) error {
	return f.chip.regs.Write(ctx, reg, val)
}
