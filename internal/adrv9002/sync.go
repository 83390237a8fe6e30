package adrv9002

import (
	"context"
	"fmt"
	"time"
)

// SyncPulse is how long the SSI sync line is held high.
const SyncPulse = 5 * time.Millisecond

// SyncGPIOToggle pulses the sync line so both channels of an rx2tx2 link
// start aligned. It blocks for the pulse and is a no-op without rx2tx2 or
// without a line.
func (p *Phy) SyncGPIOToggle(ctx context.Context) error {
	if !p.rx2tx2 || p.sync == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.sync.Set(true); err != nil {
		return busErr("raise sync gpio", err)
	}
	time.Sleep(SyncPulse)
	if err := p.sync.Set(false); err != nil {
		return busErr("lower sync gpio", err)
	}
	return nil
}

// SPIRead reads one chip register through the SPI handle.
func (p *Phy) SPIRead(ctx context.Context, reg uint32) (uint32, error) {
	if p.bus == nil {
		return 0, fmt.Errorf("no spi bus: %w", ErrBus)
	}
	v, err := p.bus.Read(ctx, reg)
	if err != nil {
		return 0, p.DevErr(busErr(fmt.Sprintf("spi read 0x%04X", reg), err))
	}
	return v, nil
}

// SPIWrite writes one chip register through the SPI handle.
func (p *Phy) SPIWrite(ctx context.Context, reg, val uint32) error {
	if p.bus == nil {
		return fmt.Errorf("no spi bus: %w", ErrBus)
	}
	if err := p.bus.Write(ctx, reg, val); err != nil {
		return p.DevErr(busErr(fmt.Sprintf("spi write 0x%04X", reg), err))
	}
	return nil
}
