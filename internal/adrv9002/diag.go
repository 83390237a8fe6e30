package adrv9002

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rjboer/adrv9002/internal/ssi"
)

// Diagnostics keeps the last successful tuning results for inspection. It
// is safe for concurrent use.
type Diagnostics struct {
	mu      sync.RWMutex
	cal     ssi.CalibrationConfig
	results map[Address]ChannelResult
	updated time.Time
}

func newDiagnostics() *Diagnostics {
	return &Diagnostics{results: make(map[Address]ChannelResult)}
}

// record stores a tuned result and takes its delays from the hardware
// record hw. Other channels keep what they were last tuned to.
func (d *Diagnostics) record(res ChannelResult, hw ssi.CalibrationConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results[res.Address] = res
	tx, idx := res.Address.Port() == PortTX, int(res.Address.Chan())
	clk, data := hw.Get(tx, idx)
	d.cal.Set(tx, idx, clk, data)
	if tx {
		d.cal.TxRefClkDelay[idx] = hw.TxRefClkDelay[idx]
	}
	d.updated = time.Now()
}

// Calibration returns the delays of every channel as last successfully
// tuned. Channels that never tuned read zero.
func (d *Diagnostics) Calibration() ssi.CalibrationConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cal
}

// Result returns the last successful result for a channel.
func (d *Diagnostics) Result(a Address) (ChannelResult, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.results[a]
	return r, ok
}

// Results returns every stored result ordered by address.
func (d *Diagnostics) Results() []ChannelResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ChannelResult, 0, len(d.results))
	for _, r := range d.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Updated returns when a result was last stored.
func (d *Diagnostics) Updated() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updated
}

// Dump renders every stored eye with its chosen pair.
func (d *Diagnostics) Dump() string {
	var b strings.Builder
	for _, r := range d.Results() {
		fmt.Fprintf(&b, "%s clk=%d data=%d", r.Address, r.Clk, r.Data)
		if r.Mirrored {
			b.WriteString(" (mirrored)")
		}
		b.WriteByte('\n')
		b.WriteString(r.Eye.Format())
		b.WriteString("\n\n")
	}
	return b.String()
}
