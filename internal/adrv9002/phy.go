// Package adrv9002 drives the digital side of an ADRV9002 transceiver: the
// per-channel enable state, the SSI links towards the FPGA and the delay
// tuning that makes those links sample reliably.
//
// A Phy is not safe for concurrent use; callers serialize access. Only the
// Diagnostics it exposes may be read from other goroutines.
package adrv9002

import (
	"fmt"
	"time"

	"github.com/rjboer/adrv9002/internal/gpio"
	"github.com/rjboer/adrv9002/internal/logging"
	"github.com/rjboer/adrv9002/internal/regmap"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// ChannelMax is the number of channels per direction on the chip.
const ChannelMax = ssi.NumChannels

const defaultSettleTime = time.Millisecond

// GainControlCfg is the automatic gain control setup of one RX channel.
type GainControlCfg struct {
	PeakWaitTime      uint8  `json:"peakWaitTime"`
	MaxGainIndex      uint8  `json:"maxGainIndex"`
	MinGainIndex      uint8  `json:"minGainIndex"`
	GainUpdateCounter uint32 `json:"gainUpdateCounter"`
	AttackDelayUs     uint8  `json:"attackDelayUs"`
}

// RxGainControlPinCfg routes gain increment/decrement to GPIO pins.
type RxGainControlPinCfg struct {
	MinGainIndex  uint8 `json:"minGainIndex"`
	MaxGainIndex  uint8 `json:"maxGainIndex"`
	IncrementStep uint8 `json:"incrementStep"`
	DecrementStep uint8 `json:"decrementStep"`
	IncrementPin  uint8 `json:"incrementPin"`
	DecrementPin  uint8 `json:"decrementPin"`
}

// TxAttenuationPinCfg routes attenuation steps to GPIO pins.
type TxAttenuationPinCfg struct {
	StepSizeMdB  uint16 `json:"stepSizeMdB"`
	IncrementPin uint8  `json:"incrementPin"`
	DecrementPin uint8  `json:"decrementPin"`
}

// Channel is the state shared by RX and TX channels.
type Channel struct {
	cachedState ChannelState

	Port    Port
	Index   int
	Number  int
	Power   bool
	NCOFreq int64
	Enabled bool
}

// State returns the last state the chip acknowledged.
func (c *Channel) State() ChannelState { return c.cachedState }

// Address returns the packed port/channel address.
func (c *Channel) Address() Address { return MakeAddress(c.Port, uint8(c.Index)) }

// RxChannel is a receive channel. A nil PinCfg means pin gain control is off.
type RxChannel struct {
	Channel
	AGC     GainControlCfg
	PinCfg  *RxGainControlPinCfg
	SSITest ssi.RxTestModeCfg

	// DebugAGC is only set in debug mode. Every RX tuning run snapshots the
	// live AGC into it and stores the snapshot with the channel result.
	DebugAGC *GainControlCfg
}

// TxChannel is a transmit channel. A nil PinCfg means pin attenuation is off.
type TxChannel struct {
	Channel
	PinCfg   *TxAttenuationPinCfg
	DACBoost bool
	SSITest  ssi.TxTestModeCfg
}

// ClockRole names one of the sample clocks.
type ClockRole int

const (
	ClockRx1 ClockRole = iota
	ClockRx2
	ClockTx1
	ClockTx2
	numClocks
)

func (r ClockRole) String() string {
	switch r {
	case ClockRx1:
		return "rx1_sampl_clk"
	case ClockRx2:
		return "rx2_sampl_clk"
	case ClockTx1:
		return "tx1_sampl_clk"
	case ClockTx2:
		return "tx2_sampl_clk"
	default:
		return "unknown"
	}
}

// Clock is a sample clock of one channel.
type Clock struct {
	Role ClockRole
	Rate uint64
	phy  *Phy
}

// Phy returns the owner of the clock.
func (c *Clock) Phy() *Phy { return c.phy }

// GPIOConfig is the pin level configuration of a chip GPIO.
type GPIOConfig struct {
	Pin       uint8 `json:"pin"`
	ActiveLow bool  `json:"activeLow"`
	BBIC      bool  `json:"bbic"`
}

// GPIO binds a chip GPIO to a logical signal.
type GPIO struct {
	Config GPIOConfig `json:"config"`
	Signal uint32     `json:"signal"`
}

// ChannelConfig is the profile of one channel. RX-only and TX-only fields
// are ignored on the other port.
type ChannelConfig struct {
	Enabled   bool                 `json:"enabled"`
	AGC       GainControlCfg       `json:"agc"`
	GainPins  *RxGainControlPinCfg `json:"gainPins,omitempty"`
	AttenPins *TxAttenuationPinCfg `json:"attenPins,omitempty"`
	DACBoost  bool                 `json:"dacBoost"`
}

// ScanOrder selects how the delay grid is walked.
type ScanOrder int

const (
	// ClockMajor steps the data delay fastest.
	ClockMajor ScanOrder = iota
	// DataMajor steps the clock delay fastest.
	DataMajor
)

func (o ScanOrder) point(i int) (clk, data uint8) {
	if o == DataMajor {
		return uint8(i % ssi.MaxClkDelay), uint8(i / ssi.MaxClkDelay)
	}
	return uint8(i / ssi.MaxDataDelay), uint8(i % ssi.MaxDataDelay)
}

// Config describes a Phy at bring-up.
type Config struct {
	Device     Device
	Bus        regmap.Bus
	SyncLine   gpio.Line
	Converters Converters

	// Channels defaults to ChannelMax.
	Channels int
	RX       []ChannelConfig
	TX       []ChannelConfig
	RX2TX2   bool
	SSI      ssi.Interface

	GPIOs      []GPIO
	ClockRates [numClocks]uint64

	// Debug keeps the last tuning results in Diagnostics.
	Debug      bool
	ScanOrder  ScanOrder
	SettleTime time.Duration
	Logger     logging.Logger
}

// Phy is one transceiver instance.
type Phy struct {
	dev    Device
	bus    regmap.Bus
	sync   gpio.Line
	conv   Converters
	rx     []*RxChannel
	tx     []*TxChannel
	clocks [numClocks]*Clock
	gpios  []GPIO
	rx2tx2 bool
	ssi    ssi.Interface
	delays ssi.CalibrationConfig
	diag   *Diagnostics
	order  ScanOrder
	settle time.Duration
	log    logging.Logger
}

// New validates cfg and builds the Phy. No device I/O happens here.
func New(cfg Config) (*Phy, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("adrv9002: no device")
	}
	n := cfg.Channels
	if n == 0 {
		n = ChannelMax
	}
	if n < 1 || n > ChannelMax {
		return nil, fmt.Errorf("%d channels: %w", n, ErrInvalidChannel)
	}
	if len(cfg.RX) > n || len(cfg.TX) > n {
		return nil, fmt.Errorf("channel profile for %d/%d channels exceeds %d: %w", len(cfg.RX), len(cfg.TX), n, ErrInvalidChannel)
	}
	if cfg.RX2TX2 && n < 2 {
		return nil, fmt.Errorf("rx2tx2 needs two channels: %w", ErrInvalidChannel)
	}
	if len(cfg.Converters.RxADC) > n || len(cfg.Converters.TxDAC) > n || len(cfg.Converters.DMA) > 2*n {
		return nil, fmt.Errorf("more converters than channels: %w", ErrInvalidChannel)
	}
	if cfg.ScanOrder != ClockMajor && cfg.ScanOrder != DataMajor {
		return nil, fmt.Errorf("unknown scan order %d", cfg.ScanOrder)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	p := &Phy{
		dev:    cfg.Device,
		bus:    cfg.Bus,
		sync:   cfg.SyncLine,
		conv:   cfg.Converters,
		gpios:  append([]GPIO(nil), cfg.GPIOs...),
		rx2tx2: cfg.RX2TX2,
		ssi:    cfg.SSI,
		order:  cfg.ScanOrder,
		settle: cfg.SettleTime,
		log:    log.With(logging.F("subsystem", "adrv9002")),
	}
	if p.settle <= 0 {
		p.settle = defaultSettleTime
	}
	if cfg.Debug {
		p.diag = newDiagnostics()
	}

	for i := 0; i < n; i++ {
		rx := &RxChannel{Channel: Channel{Port: PortRX, Index: i, Number: i + 1, Power: true}}
		if i < len(cfg.RX) {
			c := cfg.RX[i]
			rx.Enabled = c.Enabled
			rx.AGC = c.AGC
			if c.GainPins != nil {
				pins := *c.GainPins
				rx.PinCfg = &pins
			}
			if cfg.Debug {
				agc := c.AGC
				rx.DebugAGC = &agc
			}
		}
		p.rx = append(p.rx, rx)

		tx := &TxChannel{Channel: Channel{Port: PortTX, Index: i, Number: i + 1, Power: true}}
		if i < len(cfg.TX) {
			c := cfg.TX[i]
			tx.Enabled = c.Enabled
			tx.DACBoost = c.DACBoost
			if c.AttenPins != nil {
				pins := *c.AttenPins
				tx.PinCfg = &pins
			}
		}
		p.tx = append(p.tx, tx)
	}

	for r := ClockRole(0); r < numClocks; r++ {
		p.clocks[r] = &Clock{Role: r, Rate: cfg.ClockRates[r], phy: p}
	}
	return p, nil
}

// Channels returns the number of channels per direction.
func (p *Phy) Channels() int { return len(p.rx) }

// RX2TX2 reports whether channel 2 shares the interface of channel 1.
func (p *Phy) RX2TX2() bool { return p.rx2tx2 }

// RX returns receive channel idx.
func (p *Phy) RX(idx int) (*RxChannel, error) {
	if idx < 0 || idx >= len(p.rx) {
		return nil, fmt.Errorf("rx channel %d: %w", idx, ErrInvalidChannel)
	}
	return p.rx[idx], nil
}

// TX returns transmit channel idx.
func (p *Phy) TX(idx int) (*TxChannel, error) {
	if idx < 0 || idx >= len(p.tx) {
		return nil, fmt.Errorf("tx channel %d: %w", idx, ErrInvalidChannel)
	}
	return p.tx[idx], nil
}

func (p *Phy) channel(port Port, idx int) (*Channel, error) {
	switch port {
	case PortRX:
		c, err := p.RX(idx)
		if err != nil {
			return nil, err
		}
		return &c.Channel, nil
	case PortTX:
		c, err := p.TX(idx)
		if err != nil {
			return nil, err
		}
		return &c.Channel, nil
	default:
		return nil, fmt.Errorf("port %d: %w", port, ErrInvalidChannel)
	}
}

// ChannelAt resolves a packed address.
func (p *Phy) ChannelAt(a Address) (*Channel, error) {
	return p.channel(a.Port(), int(a.Chan()))
}

// Clock returns the clock with the given role.
func (p *Phy) Clock(r ClockRole) (*Clock, error) {
	if r < 0 || r >= numClocks {
		return nil, fmt.Errorf("unknown clock role %d", r)
	}
	return p.clocks[r], nil
}

// GPIOs returns a copy of the GPIO table.
func (p *Phy) GPIOs() []GPIO { return append([]GPIO(nil), p.gpios...) }

// Delays returns the last delay record written to the chip.
func (p *Phy) Delays() ssi.CalibrationConfig { return p.delays }

// Diagnostics is nil unless the Phy was built with Debug set.
func (p *Phy) Diagnostics() *Diagnostics { return p.diag }

func portOf(tx bool) Port {
	if tx {
		return PortTX
	}
	return PortRX
}
