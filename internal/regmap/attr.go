package regmap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DirectRegAccess is the debug attribute ADI IIO drivers expose for raw
// register access.
const DirectRegAccess = "direct_reg_access"

// DebugAttrs is the part of an IIO attribute surface needed for raw
// register access. Both the IIOD client and the SSH sysfs client provide it.
type DebugAttrs interface {
	ReadDebugAttr(ctx context.Context, dev, attr string) (string, error)
	WriteDebugAttr(ctx context.Context, dev, attr, value string) error
}

// Attr reaches the registers of one IIO device through its
// direct_reg_access debug attribute: writing an address selects it, reading
// returns its value, writing "addr value" stores.
type Attr struct {
	attrs DebugAttrs
	dev   string
}

// NewAttr binds a register bus to an IIO device.
func NewAttr(attrs DebugAttrs, dev string) *Attr {
	return &Attr{attrs: attrs, dev: dev}
}

func (a *Attr) Read(ctx context.Context, reg uint32) (uint32, error) {
	if err := a.attrs.WriteDebugAttr(ctx, a.dev, DirectRegAccess, fmt.Sprintf("0x%X", reg)); err != nil {
		return 0, fmt.Errorf("select %s register 0x%X: %w", a.dev, reg, err)
	}
	raw, err := a.attrs.ReadDebugAttr(ctx, a.dev, DirectRegAccess)
	if err != nil {
		return 0, fmt.Errorf("read %s register 0x%X: %w", a.dev, reg, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s register 0x%X value %q: %w", a.dev, reg, raw, err)
	}
	return uint32(v), nil
}

func (a *Attr) Write(ctx context.Context, reg, val uint32) error {
	if err := a.attrs.WriteDebugAttr(ctx, a.dev, DirectRegAccess, fmt.Sprintf("0x%X 0x%X", reg, val)); err != nil {
		return fmt.Errorf("write %s register 0x%X: %w", a.dev, reg, err)
	}
	return nil
}
