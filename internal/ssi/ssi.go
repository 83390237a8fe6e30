// Package ssi describes the serial sample interface between the transceiver
// and the FPGA: wire types, test patterns and the delay calibration record.
package ssi

import (
	"fmt"
	"strings"
)

// Type is the SSI wire protocol.
type Type int

const (
	Disabled Type = iota
	CMOS
	LVDS
)

func (t Type) String() string {
	switch t {
	case Disabled:
		return "disabled"
	case CMOS:
		return "cmos"
	case LVDS:
		return "lvds"
	default:
		return "unknown"
	}
}

// ParseType converts a string to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cmos":
		return CMOS, nil
	case "lvds":
		return LVDS, nil
	case "disabled", "":
		return Disabled, nil
	default:
		return Disabled, fmt.Errorf("unsupported ssi type %q", s)
	}
}

// Delay search bounds. Each delay is expressed in interface clock steps.
const (
	MaxClkDelay  = 8
	MaxDataDelay = 8
)

// TestData selects what a test-mode transmitter puts on the wire.
type TestData int

const (
	TestNormal TestData = iota
	TestFixedPattern
	TestRampNibble
	TestRamp16
	TestPRBS15
	TestPRBS7
)

func (d TestData) String() string {
	switch d {
	case TestNormal:
		return "normal"
	case TestFixedPattern:
		return "fixed"
	case TestRampNibble:
		return "ramp_nibble"
	case TestRamp16:
		return "ramp_16"
	case TestPRBS15:
		return "prbs15"
	case TestPRBS7:
		return "prbs7"
	default:
		return "unknown"
	}
}

// RxPattern is the pattern the chip emits towards the FPGA while an RX
// channel is being tuned.
func RxPattern(t Type) TestData {
	if t == CMOS {
		return TestRampNibble
	}
	return TestRamp16
}

// TxPattern is the pattern the FPGA emits towards the chip while a TX
// channel is being tuned.
func TxPattern(t Type) TestData {
	if t == CMOS {
		return TestRampNibble
	}
	return TestPRBS7
}

// RxTestModeCfg configures the chip side of an RX test.
type RxTestModeCfg struct {
	TestData     TestData
	FixedPattern uint32
}

// TxTestModeCfg configures the chip side of a TX test.
type TxTestModeCfg struct {
	TestData TestData
}

// TxTestModeStatus is what the chip reports after checking a TX test pattern.
type TxTestModeStatus struct {
	DataError        bool
	FifoFull         bool
	FifoEmpty        bool
	StrobeAlignError bool
}

// Passed reports whether the inspected pattern was received cleanly. Strobe
// alignment is only meaningful on LVDS.
func (s TxTestModeStatus) Passed(t Type) bool {
	if s.DataError || s.FifoFull || s.FifoEmpty {
		return false
	}
	if t == LVDS && s.StrobeAlignError {
		return false
	}
	return true
}

// Interface is the per-channel SSI configuration taken from the profile.
type Interface struct {
	Type    Type
	Lanes   uint8
	CMOSDDR bool
}
