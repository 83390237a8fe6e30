// Package gpio drives single output lines such as the SSI sync strobe.
package gpio

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Line is an output line.
type Line interface {
	Set(high bool) error
}

// PeriphLine drives a periph pin.
type PeriphLine struct {
	pin gpio.PinOut
}

// NewPeriphLine wraps a pin.
func NewPeriphLine(pin gpio.PinOut) *PeriphLine {
	return &PeriphLine{pin: pin}
}

// Open initializes the host drivers, looks the pin up by name and drives it
// low.
func Open(name string) (*PeriphLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure gpio %q: %w", name, err)
	}
	return &PeriphLine{pin: pin}, nil
}

// Set drives the line.
func (l *PeriphLine) Set(high bool) error {
	if err := l.pin.Out(gpio.Level(high)); err != nil {
		return fmt.Errorf("set %s: %w", l.pin, err)
	}
	return nil
}

func (l *PeriphLine) String() string { return l.pin.String() }
