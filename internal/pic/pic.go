// Package pic implements the 8259 Programmable Interrupt Controller in the
// single-PC, non-cascaded configuration the IBM PC/XT wires it in: one
// command port and one data port, ICW1/ICW2/ICW4 initialization (ICW3 is
// skipped, since there is no slave to address), non-specific EOI only.
package pic

import "github.com/xtcore/xtcore/internal/logging"

// CommandPort and DataPort are the fixed XT port assignments.
const (
	CommandPort uint16 = 0x20
	DataPort    uint16 = 0x21
)

const (
	icw1ICW4Needed byte = 1 << 0
	icw1Single     byte = 1 << 1
	icw1ADI        byte = 1 << 2
	icw1IsICW1     byte = 1 << 4

	icw4_8088Mode byte = 1 << 0
	icw4AutoEOI   byte = 1 << 1
	icw4Buffered  byte = 1 << 3
	icw4Nested    byte = 1 << 4
)

type initState int

const (
	stateNormal initState = iota
	stateExpectICW2
	stateExpectICW4
)

type readSelect int

const (
	selectIRR readSelect = iota
	selectISR
)

// PIC models the 8259's register file: IMR/IRR/ISR plus the small
// initialization state machine that decides what a data-port write means.
type PIC struct {
	log *logging.Logger

	state      initState
	intOffset  byte
	imr        byte
	isr        byte
	irr        byte
	readSelect readSelect
	autoEOI    bool
	buffered   bool
	expectICW4 bool
}

// New returns a PIC reset to power-on state: all IRQs masked, vector offset
// 8 (the fixed IBM PC BIOS convention), IRR read selected.
func New(log *logging.Logger) *PIC {
	p := &PIC{log: log}
	p.Reset()
	return p
}

func (p *PIC) Reset() {
	p.state = stateNormal
	p.intOffset = 8
	p.imr = 0xFF
	p.isr = 0
	p.irr = 0
	p.readSelect = selectIRR
	p.autoEOI = false
	p.buffered = false
	p.expectICW4 = false
}

// InU8 implements bus.Device.
func (p *PIC) InU8(port uint16) byte {
	switch port {
	case CommandPort:
		if p.readSelect == selectISR {
			return p.isr
		}
		return p.irr
	case DataPort:
		return p.imr
	}
	return 0xFF
}

// OutU8 implements bus.Device.
func (p *PIC) OutU8(port uint16, v byte) {
	switch port {
	case CommandPort:
		p.writeCommand(v)
	case DataPort:
		p.writeData(v)
	}
}

func (p *PIC) writeCommand(v byte) {
	if v&icw1IsICW1 != 0 {
		if v&icw1Single == 0 {
			p.log.Warnf("pic: chained (cascade) mode requested, unsupported on this bus")
		}
		if v&icw1ADI != 0 {
			p.log.Warnf("pic: 4-byte call address interval requested, unsupported")
		}
		p.expectICW4 = v&icw1ICW4Needed != 0
		p.state = stateExpectICW2
		p.imr = 0 // ICW1 clears the mask register, as on a real 8259
		return
	}
	// Any write with bit 5 set (OCW2's EOI bit) is treated as a non-specific
	// EOI, the form every XT BIOS/DOS uses; OCW3 is decoded below.
	const ocw2EOI = 1 << 5
	if v&ocw2EOI != 0 {
		p.EndOfInterrupt()
	}
	// OCW3: bit 3 set identifies it; bit 1 (RR) must be set for the read-select
	// bit (bit 0, RIS) to take effect, per the 8259 command word format.
	const ocw3Marker = 1 << 3
	const ocw3RR = 1 << 1
	const ocw3RIS = 1 << 0
	if v&ocw3Marker != 0 && v&ocw3RR != 0 {
		if v&ocw3RIS != 0 {
			p.readSelect = selectISR
		} else {
			p.readSelect = selectIRR
		}
	}
}

func (p *PIC) writeData(v byte) {
	switch p.state {
	case stateNormal:
		p.imr = v
	case stateExpectICW2:
		p.intOffset = v
		if p.expectICW4 {
			p.state = stateExpectICW4
		} else {
			p.state = stateNormal
		}
	case stateExpectICW4:
		p.state = stateNormal
		if v&icw4_8088Mode == 0 {
			p.log.Warnf("pic: ICW4 missing 8086/8088 mode bit, treating as set anyway")
		}
		p.autoEOI = v&icw4AutoEOI != 0
		p.buffered = v&icw4Buffered != 0
		if v&icw4Nested != 0 {
			p.log.Warnf("pic: fully-nested mode requested, unsupported in single-PIC config")
		}
	}
}

// RequestInterrupt raises IRQ irq (0-7). Masked or already-in-service
// requests are dropped silently, matching real 8259 behavior.
func (p *PIC) RequestInterrupt(irq int) {
	bit := byte(1) << uint(irq&7)
	if p.imr&bit != 0 || p.isr&bit != 0 {
		return
	}
	p.irr |= bit
}

// ClearInterrupt withdraws a level-triggered request that is no longer
// asserted (used by PIT mode 3's falling edge and the PPI's keyboard-byte
// ack) — it only affects IRR, never an IRQ already moved to ISR.
func (p *PIC) ClearInterrupt(irq int) {
	p.irr &^= byte(1) << uint(irq&7)
}

// Pending reports whether any unmasked IRQ is currently requested, for the
// Machine run loop's INTR line sample.
func (p *PIC) Pending() bool {
	return p.irr&^p.imr != 0
}

// Acknowledge finds the lowest-numbered unmasked, not-yet-serviced IRQ,
// moves it from IRR to ISR, and returns its vector (offset+irq). Returns
// (0, false) if nothing is pending.
func (p *PIC) Acknowledge() (byte, bool) {
	for irq := 0; irq < 8; irq++ {
		bit := byte(1) << uint(irq)
		if p.irr&bit == 0 || p.imr&bit != 0 {
			continue
		}
		p.irr &^= bit
		p.isr |= bit
		return p.intOffset + byte(irq), true
	}
	return 0, false
}

// EndOfInterrupt clears the highest-priority (lowest-numbered) ISR bit —
// the non-specific EOI form, the only one the IBM PC BIOS ever issues.
func (p *PIC) EndOfInterrupt() {
	for irq := 0; irq < 8; irq++ {
		bit := byte(1) << uint(irq)
		if p.isr&bit != 0 {
			p.isr &^= bit
			return
		}
	}
}
