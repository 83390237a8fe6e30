package axi

import (
	"context"
	"fmt"

	"github.com/rjboer/adrv9002/internal/regmap"
	"github.com/rjboer/adrv9002/internal/ssi"
)

// numIQ is the number of converter channels behind one SSI port.
const numIQ = 2

type core struct {
	bus  regmap.Bus
	base uint32
}

func (c core) read(ctx context.Context, reg uint32) (uint32, error) {
	return c.bus.Read(ctx, c.base+reg)
}

func (c core) write(ctx context.Context, reg, val uint32) error {
	return c.bus.Write(ctx, c.base+reg, val)
}

func (c core) update(ctx context.Context, reg, mask, val uint32) error {
	return regmap.Update(ctx, c.bus, c.base+reg, mask, val)
}

// InterfaceSet programs lane count, wire type and CMOS DDR mode. CMOS runs on
// one or four lanes, LVDS on one or two and always double data rate.
func (c core) InterfaceSet(ctx context.Context, intf ssi.Interface) error {
	switch intf.Type {
	case ssi.CMOS:
		if intf.Lanes != 1 && intf.Lanes != 4 {
			return fmt.Errorf("cmos supports 1 or 4 lanes, got %d", intf.Lanes)
		}
	case ssi.LVDS:
		if intf.Lanes != 1 && intf.Lanes != 2 {
			return fmt.Errorf("lvds supports 1 or 2 lanes, got %d", intf.Lanes)
		}
	default:
		return fmt.Errorf("unsupported ssi type %s", intf.Type)
	}

	val := regmap.Prep(Cntrl3NumLanes, uint32(intf.Lanes))
	if intf.Type == ssi.CMOS && !intf.CMOSDDR {
		val |= Cntrl3SDRDDRN
	}
	if intf.Lanes == 1 {
		val |= Cntrl3SymbOp
		if intf.Type == ssi.CMOS {
			val |= Cntrl3Symb816B
		}
	}
	mask := uint32(Cntrl3NumLanes | Cntrl3SDRDDRN | Cntrl3SymbOp | Cntrl3Symb816B)
	if err := c.update(ctx, RegCntrl3, mask, val); err != nil {
		return fmt.Errorf("set interface: %w", err)
	}
	return nil
}

// InterfaceEnable takes the core in or out of reset.
func (c core) InterfaceEnable(ctx context.Context, enable bool) error {
	var val uint32
	if enable {
		val = RstnRstn | RstnMMCMRstn
	}
	if err := c.write(ctx, RegRstn, val); err != nil {
		return fmt.Errorf("set reset: %w", err)
	}
	return nil
}

// SSIType reports which wire type the HDL was synthesized for.
func (c core) SSIType(ctx context.Context) (ssi.Type, error) {
	v, err := c.read(ctx, RegConfig)
	if err != nil {
		return ssi.Disabled, fmt.Errorf("read config: %w", err)
	}
	if v&ConfigCMOSOrLVDSN != 0 {
		return ssi.CMOS, nil
	}
	return ssi.LVDS, nil
}
