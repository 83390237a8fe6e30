// Package axi models the FPGA companions of the transceiver: the AXI ADC and
// DAC cores terminating the SSI links and the AXI DMA controllers feeding them.
package axi

// Common core registers.
const (
	RegConfig = 0x000C
	RegRstn   = 0x0040
	RegCntrl  = 0x0044
	RegCntrl3 = 0x004C

	ConfigCMOSOrLVDSN = 1 << 7

	RstnRstn     = 1 << 0
	RstnMMCMRstn = 1 << 1

	Cntrl3NumLanes = 0x1F << 8
	Cntrl3Symb816B = 1 << 14
	Cntrl3SymbOp   = 1 << 15
	Cntrl3SDRDDRN  = 1 << 16
)

// Per-channel registers. Each RX or TX core carries an I and a Q channel.
const (
	chanStride = 0x40

	chanCntrlBase  = 0x0400
	chanStatusBase = 0x0404
	chanCntrl3Base = 0x0418 // ADC PN monitor select
	chanCntrl7Base = 0x0418 // DAC data select

	ChanEnable = 1 << 0

	StatusOverRange = 1 << 0
	StatusPNOOS     = 1 << 1
	StatusPNErr     = 1 << 2

	ADCPNSel = 0xF << 16
	DACDDSel = 0xF
)

// RegChanCntrl returns the control register of channel c.
func RegChanCntrl(c int) uint32 { return chanCntrlBase + uint32(c)*chanStride }

// RegChanStatus returns the status register of channel c.
func RegChanStatus(c int) uint32 { return chanStatusBase + uint32(c)*chanStride }

// RegChanCntrl3 returns the ADC PN select register of channel c.
func RegChanCntrl3(c int) uint32 { return chanCntrl3Base + uint32(c)*chanStride }

// RegChanCntrl7 returns the DAC data select register of channel c.
func RegChanCntrl7(c int) uint32 { return chanCntrl7Base + uint32(c)*chanStride }

// Channel 2 of each direction lives in a second register page.
const Chan2Offset = 0x1000

// ADC PN monitor sequences.
const (
	adcPN9        = 0
	adcPN7        = 4
	adcPN15       = 5
	adcRampNibble = 10
	adcRamp16     = 11
)

// DAC data sources.
const (
	dacDDS        = 0
	dacDMA        = 2
	dacZero       = 3
	dacPN7        = 6
	dacPN15       = 7
	dacLoopback   = 8
	dacRampNibble = 10
	dacRamp16     = 11
)

// DMAC registers.
const (
	RegDMACCtrl    = 0x0400
	DMACCtrlEnable = 1 << 0
)
