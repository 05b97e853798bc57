package dma

import "testing"

type fakeMem struct {
	data map[uint32]byte
}

func newFakeMem() *fakeMem { return &fakeMem{data: make(map[uint32]byte)} }

func (m *fakeMem) ReadU8(addr uint32) byte  { return m.data[addr] }
func (m *fakeMem) WriteU8(addr uint32, v byte) { m.data[addr] = v }

func programChannel(d *Controller, addrPort, countPort uint16, addr, count uint16) {
	d.OutU8(ClearFlipFlopPort, 0)
	d.OutU8(addrPort, byte(addr))
	d.OutU8(addrPort, byte(addr>>8))
	d.OutU8(ClearFlipFlopPort, 0)
	d.OutU8(countPort, byte(count))
	d.OutU8(countPort, byte(count>>8))
}

func TestFlipFlopOrdersLowThenHighByte(t *testing.T) {
	d := New()
	programChannel(d, ch2AddrPort, ch2CountPort, 0x1234, 0x0005)

	if d.channels[2].currentAddr != 0x1234 {
		t.Fatalf("current address = %#04x, want 0x1234", d.channels[2].currentAddr)
	}
	if d.channels[2].currentCnt != 0x0005 {
		t.Fatalf("current count = %#04x, want 0x0005", d.channels[2].currentCnt)
	}
}

func TestWriteToPort0x0CResetsFlipFlop(t *testing.T) {
	d := New()
	d.OutU8(ch2AddrPort, 0x34) // low byte, flip-flop now expects high byte
	d.OutU8(ClearFlipFlopPort, 0xFF)
	d.OutU8(ch2AddrPort, 0x56) // flip-flop reset, so this lands as low byte again

	if d.channels[2].currentAddr != 0x0056 {
		t.Fatalf("address after flip-flop reset = %#04x, want 0x0056", d.channels[2].currentAddr)
	}
}

func TestWriteMemoryAdvancesAddressAndCount(t *testing.T) {
	d := New()
	programChannel(d, ch2AddrPort, ch2CountPort, 0x0000, 2)
	d.channels[2].page = 0

	mem := newFakeMem()
	tc := d.WriteMemory(2, mem, 0xAA)
	if tc {
		t.Fatal("should not be terminal count yet")
	}
	if mem.data[0x0000] != 0xAA {
		t.Fatalf("expected byte written at address 0, got %#02x", mem.data[0x0000])
	}
	if d.channels[2].currentAddr != 1 {
		t.Fatalf("address should advance to 1, got %d", d.channels[2].currentAddr)
	}
}

func TestTerminalCountWithoutAutoInitMasksChannel(t *testing.T) {
	d := New()
	programChannel(d, ch2AddrPort, ch2CountPort, 0x0000, 0)
	d.channels[2].masked = false

	mem := newFakeMem()
	tc := d.WriteMemory(2, mem, 0x01)
	if !tc {
		t.Fatal("count of 0 should signal terminal count on the first cycle")
	}
	if !d.Masked(2) {
		t.Fatal("non-auto-init channel should mask itself at terminal count")
	}
}

func TestAutoInitReloadsFromBaseRegisters(t *testing.T) {
	d := New()
	programChannel(d, ch2AddrPort, ch2CountPort, 0x0010, 0)
	d.OutU8(ModePort, byte(2)|modeAutoInit)
	d.channels[2].masked = false

	mem := newFakeMem()
	d.WriteMemory(2, mem, 0x01)

	if d.channels[2].currentAddr != 0x0010 || d.channels[2].currentCnt != 0 {
		t.Fatalf("auto-init channel should reload base regs, got addr=%#04x count=%#04x",
			d.channels[2].currentAddr, d.channels[2].currentCnt)
	}
	if d.Masked(2) {
		t.Fatal("auto-init channel must not mask itself at terminal count")
	}
}

func TestRefreshTickAdvancesChannel0WithoutTouchingMemory(t *testing.T) {
	d := New()
	programChannel(d, ch0AddrPort, ch0CountPort, 0, 5)

	d.RefreshTick()
	if d.channels[0].currentCnt != 4 {
		t.Fatalf("refresh tick should decrement channel 0's count, got %d", d.channels[0].currentCnt)
	}
}
