package bus

import "testing"

func TestReadWriteWrap(t *testing.T) {
	b := New()
	var cost int
	b.WriteU16(Size-1, 0xABCD, nil)
	got := b.ReadU16(Size-1, &cost)
	if got != 0xABCD {
		t.Fatalf("wraparound u16 = %04X, want ABCD", got)
	}
	if cost == 0 {
		t.Fatalf("expected nonzero cost accumulation")
	}
}

func TestROMWriteProtected(t *testing.T) {
	b := New()
	b.CopyFrom([]byte{0xAA}, 0xF0000, true)
	var dropped bool
	b.WriteU8(0xF0000, 0x55, func(string, ...any) { dropped = true })
	var cost int
	if got := b.ReadU8(0xF0000, &cost); got != 0xAA {
		t.Fatalf("ROM byte mutated by protected write, got %02X", got)
	}
	if !dropped {
		t.Fatalf("expected ROM write to log a drop")
	}
	if cost != costROM {
		t.Fatalf("ROM read cost = %d, want %d", cost, costROM)
	}
}

func TestPatchBypassesROM(t *testing.T) {
	b := New()
	b.CopyFrom([]byte{0xAA}, 0xF0000, true)
	b.PatchFrom([]byte{0x90}, 0xF0000)
	var cost int
	if got := b.ReadU8(0xF0000, &cost); got != 0x90 {
		t.Fatalf("patch did not apply, got %02X", got)
	}
}

func TestCheckpointFlag(t *testing.T) {
	b := New()
	b.SetFlags(0xF1000, FlagCheckpoint)
	if b.Flags(0xF1000)&FlagCheckpoint == 0 {
		t.Fatalf("checkpoint flag not set")
	}
	b.ClearFlags(0xF1000, FlagCheckpoint)
	if b.Flags(0xF1000)&FlagCheckpoint != 0 {
		t.Fatalf("checkpoint flag not cleared")
	}
}

func TestIOBusUnmappedReturnsFF(t *testing.T) {
	io := NewIOBus()
	if got := io.InU8(0x999); got != 0xFF {
		t.Fatalf("unmapped port read = %02X, want FF", got)
	}
}

type stubDevice struct{ last byte }

func (s *stubDevice) InU8(port uint16) byte  { return s.last }
func (s *stubDevice) OutU8(port uint16, v byte) { s.last = v }

func TestIOBusRegisterAndU16Split(t *testing.T) {
	io := NewIOBus()
	d := &stubDevice{}
	io.Register(0x40, 1, d)
	io.OutU8(0x40, 0x42)
	if io.InU8(0x40) != 0x42 {
		t.Fatalf("registered device not dispatched")
	}
	// 0x41 unmapped: InU16 should compose 0x40 (mapped) and 0x41 (0xFF).
	got := io.InU16(0x40)
	if got != 0xFF42 {
		t.Fatalf("InU16 split = %04X, want FF42", got)
	}
}
