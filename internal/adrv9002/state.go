package adrv9002

import (
	"fmt"
	"strings"
)

// ChannelState is the enable state machine state reported by the chip.
type ChannelState int

const (
	StateStandby ChannelState = iota
	StateCalibrated
	StatePrimed
	StateRfEnabled
)

func (s ChannelState) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateCalibrated:
		return "calibrated"
	case StatePrimed:
		return "primed"
	case StateRfEnabled:
		return "rf_enabled"
	default:
		return "unknown"
	}
}

// ParseChannelState accepts the names used by the IIO ensm_mode attribute.
func ParseChannelState(s string) (ChannelState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standby":
		return StateStandby, nil
	case "calibrated":
		return StateCalibrated, nil
	case "primed":
		return StatePrimed, nil
	case "rf_enabled":
		return StateRfEnabled, nil
	default:
		return StateStandby, fmt.Errorf("unknown channel state %q", s)
	}
}

// testable reports whether a channel in this state can run a test pattern.
func (s ChannelState) testable() bool {
	return s == StatePrimed || s == StateRfEnabled
}
