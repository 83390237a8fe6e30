package adrv9002

import (
	"context"

	"github.com/rjboer/adrv9002/internal/ssi"
)

// Device is the capability surface of the transceiver used by the driver.
// Channel indexes are zero based.
type Device interface {
	ChannelState(ctx context.Context, port Port, ch int) (ChannelState, error)
	ChannelToState(ctx context.Context, port Port, ch int, state ChannelState) error
	ChannelPowerSet(ctx context.Context, port Port, ch int, on bool) error
	NCOFrequencySet(ctx context.Context, port Port, ch int, hz int64) error

	SSIRxTestModeConfigure(ctx context.Context, ch int, t ssi.Type, cfg ssi.RxTestModeCfg) error
	SSITxTestModeConfigure(ctx context.Context, ch int, t ssi.Type, cfg ssi.TxTestModeCfg) error
	SSITxTestModeStatus(ctx context.Context, ch int, t ssi.Type) (ssi.TxTestModeStatus, error)

	SSIDelayConfigure(ctx context.Context, t ssi.Type, cfg ssi.CalibrationConfig) error
	SSIDelayInspect(ctx context.Context, t ssi.Type) (ssi.CalibrationConfig, error)
}

// ADC is the FPGA receive core behind one RX channel.
type ADC interface {
	InterfaceSet(ctx context.Context, intf ssi.Interface) error
	InterfaceEnable(ctx context.Context, enable bool) error
	SSIType(ctx context.Context) (ssi.Type, error)
	PNMonitorSet(ctx context.Context, d ssi.TestData) error
	PNStatusClear(ctx context.Context) error
	PNStatus(ctx context.Context) (bool, error)
}

// DAC is the FPGA transmit core behind one TX channel.
type DAC interface {
	InterfaceSet(ctx context.Context, intf ssi.Interface) error
	InterfaceEnable(ctx context.Context, enable bool) error
	DataSourceSet(ctx context.Context, d ssi.TestData) error
	Loopback(ctx context.Context, enable bool) error
}

// DMA is a DMA engine attached to one converter.
type DMA interface {
	Name() string
	Reset(ctx context.Context) error
}

// Converters groups the FPGA companions. Slices are indexed by channel;
// DMA holds the RX engines followed by the TX engines. Entries may be nil
// when a core is not present.
type Converters struct {
	RxADC []ADC
	TxDAC []DAC
	DMA   []DMA
}
