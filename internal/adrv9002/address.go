package adrv9002

import "fmt"

// Port is the direction of a channel.
type Port uint8

const (
	PortRX Port = iota
	PortTX
)

func (p Port) String() string {
	switch p {
	case PortRX:
		return "rx"
	case PortTX:
		return "tx"
	default:
		return fmt.Sprintf("port%d", uint8(p))
	}
}

// Address packs a port and a channel index into one scalar.
type Address uint32

// MakeAddress returns port<<8 | ch.
func MakeAddress(port Port, ch uint8) Address {
	return Address(uint32(port)<<8 | uint32(ch))
}

// Port recovers the port of a.
func (a Address) Port() Port { return Port(a >> 8) }

// Chan recovers the channel index of a.
func (a Address) Chan() uint8 { return uint8(a & 0xFF) }

func (a Address) String() string {
	return fmt.Sprintf("%s%d", a.Port(), a.Chan()+1)
}
