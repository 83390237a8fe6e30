package regmap

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	spiReadFlag = 0x80
	spiMaxReg   = 0x7FFF
)

// SPI talks to the transceiver's control port: a 16-bit header carrying a
// read flag in the MSB and a 15-bit address, followed by one data byte.
type SPI struct {
	conn   spi.Conn
	closer spi.PortCloser
}

// NewSPI wraps an already connected SPI device.
func NewSPI(conn spi.Conn) *SPI {
	return &SPI{conn: conn}
}

// OpenSPI initializes the host drivers and connects to the named SPI port
// (empty name selects the first one) in mode 0, 8 bits per word.
func OpenSPI(name string, speed physic.Frequency) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", name, err)
	}
	conn, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect spi port %q: %w", name, err)
	}
	return &SPI{conn: conn, closer: port}, nil
}

func (s *SPI) Read(ctx context.Context, reg uint32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if reg > spiMaxReg {
		return 0, fmt.Errorf("spi register 0x%X out of range", reg)
	}
	w := []byte{spiReadFlag | byte(reg>>8), byte(reg), 0}
	r := make([]byte, len(w))
	if err := s.conn.Tx(w, r); err != nil {
		return 0, fmt.Errorf("spi read 0x%04X: %w", reg, err)
	}
	return uint32(r[2]), nil
}

func (s *SPI) Write(ctx context.Context, reg, val uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reg > spiMaxReg {
		return fmt.Errorf("spi register 0x%X out of range", reg)
	}
	if val > 0xFF {
		return fmt.Errorf("spi value 0x%X does not fit a byte", val)
	}
	w := []byte{byte(reg >> 8), byte(reg), byte(val)}
	if err := s.conn.Tx(w, nil); err != nil {
		return fmt.Errorf("spi write 0x%04X: %w", reg, err)
	}
	return nil
}

// Close releases the port when it was opened by OpenSPI.
func (s *SPI) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
