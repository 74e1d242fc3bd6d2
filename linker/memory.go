package linker

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-boundary/errors"
)

// GuestMemory adapts a wazero linear memory to the boundary Memory
// interface. It also exposes Size and zero-copy views.
type GuestMemory struct {
	mem api.Memory
}

// WrapMemory wraps mem. A nil mem yields a memory on which every access
// is out of bounds.
func WrapMemory(mem api.Memory) *GuestMemory {
	return &GuestMemory{mem: mem}
}

func oob(offset, length uint32) error {
	return errors.OutOfBounds(errors.PhaseHost, nil, offset, length)
}

// Size returns the current memory size in bytes.
func (m *GuestMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// View returns the region without copying. The slice aliases guest
// memory and is invalidated when the memory grows.
func (m *GuestMemory) View(offset, length uint32) ([]byte, bool) {
	if m.mem == nil {
		return nil, false
	}
	return m.mem.Read(offset, length)
}

// Read returns a copy of the region.
func (m *GuestMemory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.View(offset, length)
	if !ok {
		return nil, oob(offset, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *GuestMemory) Write(offset uint32, data []byte) error {
	if m.mem == nil || !m.mem.Write(offset, data) {
		return oob(offset, uint32(len(data)))
	}
	return nil
}

func (m *GuestMemory) ReadU8(offset uint32) (uint8, error) {
	if m.mem != nil {
		if v, ok := m.mem.ReadByte(offset); ok {
			return v, nil
		}
	}
	return 0, oob(offset, 1)
}

func (m *GuestMemory) ReadU16(offset uint32) (uint16, error) {
	if m.mem != nil {
		if v, ok := m.mem.ReadUint16Le(offset); ok {
			return v, nil
		}
	}
	return 0, oob(offset, 2)
}

func (m *GuestMemory) ReadU32(offset uint32) (uint32, error) {
	if m.mem != nil {
		if v, ok := m.mem.ReadUint32Le(offset); ok {
			return v, nil
		}
	}
	return 0, oob(offset, 4)
}

func (m *GuestMemory) ReadU64(offset uint32) (uint64, error) {
	if m.mem != nil {
		if v, ok := m.mem.ReadUint64Le(offset); ok {
			return v, nil
		}
	}
	return 0, oob(offset, 8)
}

func (m *GuestMemory) WriteU8(offset uint32, value uint8) error {
	if m.mem == nil || !m.mem.WriteByte(offset, value) {
		return oob(offset, 1)
	}
	return nil
}

func (m *GuestMemory) WriteU16(offset uint32, value uint16) error {
	if m.mem == nil || !m.mem.WriteUint16Le(offset, value) {
		return oob(offset, 2)
	}
	return nil
}

func (m *GuestMemory) WriteU32(offset uint32, value uint32) error {
	if m.mem == nil || !m.mem.WriteUint32Le(offset, value) {
		return oob(offset, 4)
	}
	return nil
}

func (m *GuestMemory) WriteU64(offset uint32, value uint64) error {
	if m.mem == nil || !m.mem.WriteUint64Le(offset, value) {
		return oob(offset, 8)
	}
	return nil
}
