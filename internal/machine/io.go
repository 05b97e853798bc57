package machine

import "github.com/xtcore/xtcore/internal/bus"

// busDMAMemory adapts *bus.Bus to dma.Memory: DMA cycles aren't charged the
// CPU's prefetch/wait-state cost and never log a patch-site write, so the
// cost pointer and the write-log callback are simply left out.
type busDMAMemory struct {
	bus *bus.Bus
}

func (b busDMAMemory) ReadU8(addr uint32) byte {
	var cost int
	return b.bus.ReadU8(addr, &cost)
}

func (b busDMAMemory) WriteU8(addr uint32, v byte) {
	b.bus.WriteU8(addr, v, nil)
}

// newIOBus registers every chip's port range on a fresh bus.IOBus. Ranges
// include a chip's full decoded window even where some addresses inside it
// are unused (e.g. the FDC's 0x3F2-0x3F5), matching how the real ISA bus's
// address decode is usually coarser than the register count.
func newIOBus(m *Machine) *bus.IOBus {
	io := bus.NewIOBus()
	io.Register(0x00, 0x10, m.DMA)
	io.Register(0x20, 2, m.PIC)
	io.Register(0x40, 4, m.PIT)
	io.Register(0x60, 4, m.PPI)
	io.Register(0x80, 0x10, m.DMA) // page registers 0x81-0x83, 0x87
	io.Register(0x320, 4, m.HDC)
	io.Register(0x3F2, 4, m.FDC)
	return io
}
