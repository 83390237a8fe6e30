// Package iiodev implements the transceiver capability surface on top of
// the attributes the Linux adrv9002 driver exposes, reached either through
// iiod or through sysfs over SSH.
package iiodev

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rjboer/adrv9002/internal/adrv9002"
	"github.com/rjboer/adrv9002/internal/axi"
	"github.com/rjboer/adrv9002/internal/logging"
	"github.com/rjboer/adrv9002/internal/regmap"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// PhyName is the IIO name of the transceiver device.
const PhyName = "adrv9002-phy"

// IIO names of the FPGA cores, indexed by channel.
var (
	RxCoreNames = [ssi.NumChannels]string{"axi-adrv9002-rx-lpc", "axi-adrv9002-rx2-lpc"}
	TxCoreNames = [ssi.NumChannels]string{"axi-adrv9002-tx-lpc", "axi-adrv9002-tx2-lpc"}
)

// Attrs is the IIO attribute surface. Both iiod.Client and sysfs.Client
// satisfy it.
type Attrs interface {
	ReadChannelAttr(ctx context.Context, dev string, output bool, ch, attr string) (string, error)
	WriteChannelAttr(ctx context.Context, dev string, output bool, ch, attr, value string) error
	ReadDebugAttr(ctx context.Context, dev, attr string) (string, error)
	WriteDebugAttr(ctx context.Context, dev, attr, value string) error
}

// Device drives one adrv9002-phy instance.
type Device struct {
	attrs Attrs
	dev   string
	log   logging.Logger
}

// New binds to the IIO device named dev; empty selects PhyName.
func New(attrs Attrs, dev string) *Device {
	if dev == "" {
		dev = PhyName
	}
	return &Device{
		attrs: attrs,
		dev:   dev,
		log:   logging.Default().With(logging.F("subsystem", "iiodev"), logging.F("device", dev)),
	}
}

// Converters builds the FPGA cores reached through direct_reg_access.
func Converters(attrs regmap.DebugAttrs, channels int) adrv9002.Converters {
	var conv adrv9002.Converters
	for i := 0; i < channels && i < ssi.NumChannels; i++ {
		conv.RxADC = append(conv.RxADC, axi.NewADC(regmap.NewAttr(attrs, RxCoreNames[i]), 0))
		conv.TxDAC = append(conv.TxDAC, axi.NewDAC(regmap.NewAttr(attrs, TxCoreNames[i]), 0))
	}
	return conv
}

func chanName(idx int) string { return fmt.Sprintf("voltage%d", idx) }

func (d *Device) readChan(ctx context.Context, port adrv9002.Port, idx int, attr string) (string, error) {
	v, err := d.attrs.ReadChannelAttr(ctx, d.dev, port == adrv9002.PortTX, chanName(idx), attr)
	if err != nil {
		return "", fmt.Errorf("read %s%d %s: %w", port, idx+1, attr, err)
	}
	return strings.TrimSpace(v), nil
}

func (d *Device) writeChan(ctx context.Context, port adrv9002.Port, idx int, attr, value string) error {
	if err := d.attrs.WriteChannelAttr(ctx, d.dev, port == adrv9002.PortTX, chanName(idx), attr, value); err != nil {
		return fmt.Errorf("write %s%d %s=%s: %w", port, idx+1, attr, value, err)
	}
	return nil
}

func (d *Device) writeDebug(ctx context.Context, attr, value string) error {
	if err := d.attrs.WriteDebugAttr(ctx, d.dev, attr, value); err != nil {
		return fmt.Errorf("write %s=%s: %w", attr, value, err)
	}
	return nil
}

func (d *Device) ChannelState(ctx context.Context, port adrv9002.Port, idx int) (adrv9002.ChannelState, error) {
	v, err := d.readChan(ctx, port, idx, "ensm_mode")
	if err != nil {
		return adrv9002.StateStandby, err
	}
	return adrv9002.ParseChannelState(v)
}

func (d *Device) ChannelToState(ctx context.Context, port adrv9002.Port, idx int, s adrv9002.ChannelState) error {
	if s == adrv9002.StateStandby {
		return fmt.Errorf("standby is entered through powerdown: %w", adrv9002.ErrInvalidState)
	}
	return d.writeChan(ctx, port, idx, "ensm_mode", s.String())
}

func (d *Device) ChannelPowerSet(ctx context.Context, port adrv9002.Port, idx int, on bool) error {
	v := "1"
	if on {
		v = "0"
	}
	return d.writeChan(ctx, port, idx, "powerdown", v)
}

func (d *Device) NCOFrequencySet(ctx context.Context, port adrv9002.Port, idx int, hz int64) error {
	return d.writeChan(ctx, port, idx, "nco_frequency", strconv.FormatInt(hz, 10))
}

func debugPrefix(port adrv9002.Port, idx int) string {
	return fmt.Sprintf("%s%d_ssi_", port, idx)
}

func (d *Device) SSIRxTestModeConfigure(ctx context.Context, idx int, _ ssi.Type, cfg ssi.RxTestModeCfg) error {
	pre := debugPrefix(adrv9002.PortRX, idx)
	if err := d.writeDebug(ctx, pre+"test_mode_data", cfg.TestData.String()); err != nil {
		return err
	}
	if cfg.TestData == ssi.TestFixedPattern {
		if err := d.writeDebug(ctx, pre+"test_mode_fixed_pattern", fmt.Sprintf("0x%X", cfg.FixedPattern)); err != nil {
			return err
		}
	}
	return d.writeDebug(ctx, pre+"test_mode_configure", "1")
}

func (d *Device) SSITxTestModeConfigure(ctx context.Context, idx int, _ ssi.Type, cfg ssi.TxTestModeCfg) error {
	pre := debugPrefix(adrv9002.PortTX, idx)
	if err := d.writeDebug(ctx, pre+"test_mode_data", cfg.TestData.String()); err != nil {
		return err
	}
	return d.writeDebug(ctx, pre+"test_mode_configure", "1")
}

func (d *Device) SSITxTestModeStatus(ctx context.Context, idx int, _ ssi.Type) (ssi.TxTestModeStatus, error) {
	attr := debugPrefix(adrv9002.PortTX, idx) + "test_mode_status"
	raw, err := d.attrs.ReadDebugAttr(ctx, d.dev, attr)
	if err != nil {
		return ssi.TxTestModeStatus{}, fmt.Errorf("read %s: %w", attr, err)
	}
	return parseTxStatus(raw)
}

// parseTxStatus reads "Name: value" lines, e.g. "Data Error: 0".
func parseTxStatus(raw string) (ssi.TxTestModeStatus, error) {
	var st ssi.TxTestModeStatus
	seen := 0
	for _, line := range strings.Split(raw, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.Join(strings.Fields(key), ""))
		n, err := strconv.ParseUint(strings.TrimSpace(val), 0, 32)
		if err != nil {
			return st, fmt.Errorf("parse tx status %q: %w", line, err)
		}
		set := n != 0
		switch key {
		case "dataerror":
			st.DataError = set
		case "fifofull":
			st.FifoFull = set
		case "fifoempty":
			st.FifoEmpty = set
		case "strobealignerror":
			st.StrobeAlignError = set
		default:
			continue
		}
		seen++
	}
	if seen == 0 {
		return st, fmt.Errorf("tx status %q has no known fields", raw)
	}
	return st, nil
}

type delayField struct {
	name string
	get  func(*ssi.CalibrationConfig) *[ssi.NumChannels]uint8
}

var delayFields = []struct {
	port   adrv9002.Port
	fields []delayField
}{
	{adrv9002.PortRX, []delayField{
		{"clk_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.RxClkDelay }},
		{"strobe_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.RxStrobeDelay }},
		{"i_data_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.RxIDataDelay }},
		{"q_data_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.RxQDataDelay }},
	}},
	{adrv9002.PortTX, []delayField{
		{"clk_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.TxClkDelay }},
		{"refclk_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.TxRefClkDelay }},
		{"strobe_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.TxStrobeDelay }},
		{"i_data_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.TxIDataDelay }},
		{"q_data_delay", func(c *ssi.CalibrationConfig) *[ssi.NumChannels]uint8 { return &c.TxQDataDelay }},
	}},
}

// SSIDelayConfigure stores every delay in the driver and then applies the
// whole record at once through ssi_delays.
func (d *Device) SSIDelayConfigure(ctx context.Context, _ ssi.Type, cfg ssi.CalibrationConfig) error {
	for _, group := range delayFields {
		for idx := 0; idx < ssi.NumChannels; idx++ {
			for _, f := range group.fields {
				v := f.get(&cfg)[idx]
				if err := d.writeDebug(ctx, debugPrefix(group.port, idx)+f.name, strconv.Itoa(int(v))); err != nil {
					return err
				}
			}
		}
	}
	if err := d.writeDebug(ctx, "ssi_delays", "1"); err != nil {
		return err
	}
	d.log.Debug("ssi delays applied")
	return nil
}

// SSIDelayInspect reads the delay record back from the driver.
func (d *Device) SSIDelayInspect(ctx context.Context, _ ssi.Type) (ssi.CalibrationConfig, error) {
	var cfg ssi.CalibrationConfig
	for _, group := range delayFields {
		for idx := 0; idx < ssi.NumChannels; idx++ {
			for _, f := range group.fields {
				attr := debugPrefix(group.port, idx) + f.name
				raw, err := d.attrs.ReadDebugAttr(ctx, d.dev, attr)
				if err != nil {
					return cfg, fmt.Errorf("read %s: %w", attr, err)
				}
				v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 8)
				if err != nil {
					return cfg, fmt.Errorf("parse %s=%q: %w", attr, raw, err)
				}
				f.get(&cfg)[idx] = uint8(v)
			}
		}
	}
	return cfg, nil
}
