package pic

import "testing"

func TestInitSequenceLoadsVectorOffset(t *testing.T) {
	p := New(nil)
	p.OutU8(CommandPort, 0x13) // ICW1: edge, single, ICW4 needed
	p.OutU8(DataPort, 0x50)    // ICW2: vector base 0x50
	p.OutU8(DataPort, 0x09)    // ICW4: 8086 mode, buffered

	p.RequestInterrupt(1)
	vec, ok := p.Acknowledge()
	if !ok {
		t.Fatal("Acknowledge() returned no pending vector")
	}
	if vec != 0x51 {
		t.Fatalf("vector = %#02x, want %#02x (offset 0x50 + irq 1)", vec, 0x51)
	}
}

func TestMaskedInterruptIsDropped(t *testing.T) {
	p := New(nil)
	p.OutU8(DataPort, 0xFF) // mask everything (default, but explicit here)
	p.RequestInterrupt(0)
	if p.Pending() {
		t.Fatal("masked IRQ0 should not be pending")
	}
}

func TestAlreadyInServiceIsDropped(t *testing.T) {
	p := New(nil)
	p.OutU8(DataPort, 0x00) // unmask everything
	p.RequestInterrupt(2)
	if _, ok := p.Acknowledge(); !ok {
		t.Fatal("expected IRQ2 to be acknowledged")
	}
	// IRQ2 is now in-service; a second request before EOI must be dropped.
	p.RequestInterrupt(2)
	if p.Pending() {
		t.Fatal("IRQ2 should not re-assert while still in service")
	}
}

func TestEndOfInterruptClearsLowestISRBit(t *testing.T) {
	p := New(nil)
	p.OutU8(DataPort, 0x00)
	p.RequestInterrupt(3)
	p.RequestInterrupt(5)

	if _, ok := p.Acknowledge(); !ok {
		t.Fatal("expected IRQ3 acknowledged first (lower priority number wins)")
	}
	p.EndOfInterrupt()

	vec, ok := p.Acknowledge()
	if !ok || vec != 8+5 {
		t.Fatalf("after EOI, expected IRQ5 next, got vec=%#02x ok=%v", vec, ok)
	}
}

func TestPriorityOrderIsLowestIRQFirst(t *testing.T) {
	p := New(nil)
	p.OutU8(DataPort, 0x00)
	p.RequestInterrupt(6)
	p.RequestInterrupt(2)
	p.RequestInterrupt(4)

	vec, ok := p.Acknowledge()
	if !ok || vec != 8+2 {
		t.Fatalf("expected IRQ2 serviced first, got vec=%#02x ok=%v", vec, ok)
	}
}

func TestISRReadSelectToggle(t *testing.T) {
	p := New(nil)
	p.OutU8(DataPort, 0x00)
	p.RequestInterrupt(0)
	p.Acknowledge()

	p.OutU8(CommandPort, 0x0B) // OCW3: select ISR on next command-port read
	if got := p.InU8(CommandPort); got != 0x01 {
		t.Fatalf("ISR read = %#02x, want 0x01", got)
	}
	p.OutU8(CommandPort, 0x0A) // OCW3: select IRR again
	if got := p.InU8(CommandPort); got != 0x00 {
		t.Fatalf("IRR read = %#02x, want 0x00", got)
	}
}
