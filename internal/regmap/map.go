package regmap

import (
	"context"
	"sync"
)

// Map is an in-memory register file. Unwritten registers read as zero.
type Map struct {
	mu     sync.Mutex
	regs   map[uint32]uint32
	fail   map[uint32]error
	writes []Access
}

// Access records one write seen by a Map.
type Access struct {
	Reg uint32
	Val uint32
}

// NewMap returns an empty register file.
func NewMap() *Map {
	return &Map{regs: make(map[uint32]uint32), fail: make(map[uint32]error)}
}

func (m *Map) Read(ctx context.Context, reg uint32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[reg]; err != nil {
		return 0, err
	}
	return m.regs[reg], nil
}

func (m *Map) Write(ctx context.Context, reg, val uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[reg]; err != nil {
		return err
	}
	m.regs[reg] = val
	m.writes = append(m.writes, Access{Reg: reg, Val: val})
	return nil
}

// Set stores a value without recording a write.
func (m *Map) Set(reg, val uint32) {
	m.mu.Lock()
	m.regs[reg] = val
	m.mu.Unlock()
}

// Get returns the stored value.
func (m *Map) Get(reg uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// FailOn makes every access to reg return err. A nil err clears the fault.
func (m *Map) FailOn(reg uint32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, reg)
		return
	}
	m.fail[reg] = err
}

// Writes returns a copy of the write log.
func (m *Map) Writes() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Access, len(m.writes))
	copy(out, m.writes)
	return out
}
