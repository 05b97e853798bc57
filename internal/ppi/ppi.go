// Package ppi implements the 8255 Programmable Peripheral Interface as wired
// on the IBM PC (5150) and PC/XT (5160) motherboards: DIP switch readout,
// the PIT channel 2 gate/speaker-data bits on Port B, and the keyboard
// interface (scan byte latch, clock-low self-test timing) on Port A.
package ppi

import "github.com/xtcore/xtcore/internal/logging"

const (
	PortA      uint16 = 0x60
	PortB      uint16 = 0x61
	PortC      uint16 = 0x62
	CommandPort uint16 = 0x63
)

// kbResetUs and kbResetDelayUs are the clock-low hold time and post-hold
// delay before the PPI delivers the keyboard self-test byte.
const (
	kbResetUs      = 10_000.0 // 10ms
	kbResetDelayUs = 1_000.0  // 1ms
)

const (
	portBTimer2Gate  byte = 1 << 0
	portBSpeakerData byte = 1 << 1
	portBSW2Select   byte = 1 << 2
	portBSW1Select   byte = 1 << 3
	portBPullKBLow   byte = 1 << 6
	portBKBClear     byte = 1 << 7
)

// Model selects the PC/XT DIP-switch and Port-A/C wiring variant; the two
// boards disagree on what each port means.
type Model int

const (
	ModelXT5160 Model = iota
	ModelPC5150
)

// VideoType narrows the video-adapter DIP bits; only the initial BIOS
// adapter probe cares about this, not the adapter's actual rendering.
type VideoType int

const (
	VideoMDA VideoType = iota
	VideoCGALores
	VideoCGAHires
	VideoExpansion
)

const (
	sw1HasFloppies byte = 1 << 0
	sw1Have8087    byte = 1 << 1
	sw1RAMBanks    byte = 0b0000_1100
	sw1HaveMDA     byte = 0b0011_0000
	sw1HaveCGALo   byte = 0b0001_0000
	sw1HaveCGAHi   byte = 0b0010_0000

	sw1OneFloppy     byte = 0b0000_0000
	sw1TwoFloppies   byte = 0b0100_0000
	sw1ThreeFloppies byte = 0b1000_0000
	sw1FourFloppies  byte = 0b1100_0000

	sw2RAMTest byte = 0b1110_1111
)

// portAMode and portCMode mirror the 8255's input-port reinterpretation
// driven by Port B writes: which physical signal a read of A or C reflects
// changes at runtime.
type portAMode int

const (
	portAKeyboardByte portAMode = iota
	portASwitchBlock1
)

type portCMode int

const (
	portCSwitch2OneToFour portCMode = iota
	portCSwitch2Five
	portCSwitch1OneToFour
	portCSwitch1FiveToEight
)

// Interrupter is the PIC surface the keyboard path drives (IRQ1).
type Interrupter interface {
	RequestInterrupt(irq int)
	ClearInterrupt(irq int)
}

// Config parameterizes the fixed DIP-switch readout.
type Config struct {
	Model    Model
	Video    VideoType
	Floppies int
}

// PPI models the 8255's three data ports plus the keyboard and DIP-switch
// state machines layered on top of them.
type PPI struct {
	log *logging.Logger
	pic Interrupter

	model Model

	portAMode portAMode
	portCMode portCMode

	dipSW1 byte
	dipSW2 byte

	portB byte
	kbByte byte

	kbClockLow        bool
	kbCountingLow     bool
	kbLowCount        float64
	kbDoReset         bool
	kbCountUntilReset float64
	kbResets          int
	clearKeyboard     bool

	timerIn   bool
	speakerIn bool
}

// New constructs a PPI with DIP switches fixed for the life of the machine
// (no runtime switch panel in this emulator).
func New(log *logging.Logger, pic Interrupter, cfg Config) *PPI {
	p := &PPI{log: log, pic: pic, model: cfg.Model}
	p.dipSW1 = computeSW1(cfg)
	p.dipSW2 = sw2RAMTest
	p.Reset()
	return p
}

func computeSW1(cfg Config) byte {
	var floppyBits byte
	switch cfg.Floppies {
	case 1:
		floppyBits = sw1OneFloppy
	case 2:
		floppyBits = sw1TwoFloppies
	case 3:
		floppyBits = sw1ThreeFloppies
	case 4:
		floppyBits = sw1FourFloppies
	}
	var videoBits byte
	switch cfg.Video {
	case VideoMDA:
		videoBits = sw1HaveMDA
	case VideoCGAHires:
		videoBits = sw1HaveCGAHi
	case VideoCGALores:
		videoBits = sw1HaveCGALo
	default:
		videoBits = 0
	}
	return sw1HasFloppies | sw1RAMBanks | floppyBits | videoBits
}

func (p *PPI) Reset() {
	p.portAMode = portAKeyboardByte
	p.portCMode = portCSwitch1FiveToEight
	if p.model == ModelPC5150 {
		p.portAMode = portASwitchBlock1
		p.portCMode = portCSwitch2OneToFour
	}
	p.portB = 0
	p.kbByte = 0
	p.kbClockLow = false
	p.kbCountingLow = false
	p.kbLowCount = 0
	p.kbDoReset = false
	p.kbCountUntilReset = 0
	p.clearKeyboard = false
	p.timerIn = false
	p.speakerIn = false
}

// InU8 implements bus.Device.
func (p *PPI) InU8(port uint16) byte {
	switch port {
	case PortA:
		if p.portAMode == portASwitchBlock1 {
			return p.dipSW1
		}
		return p.kbByte
	case PortB:
		return p.portB
	case PortC:
		return p.portCValue()
	}
	return 0xFF
}

// OutU8 implements bus.Device. Ports A and C are read-only inputs on this
// bus wiring; only Port B and the command (mode-control) port accept
// writes.
func (p *PPI) OutU8(port uint16, v byte) {
	switch port {
	case PortB:
		p.writePortB(v)
	case CommandPort:
		p.log.Tracef("ppi: command port write %#02x", v)
	}
}

func (p *PPI) writePortB(v byte) {
	p.portB = v

	switch p.model {
	case ModelPC5150:
		if v&portBSW2Select != 0 {
			p.portCMode = portCSwitch2OneToFour
		} else {
			p.portCMode = portCSwitch2Five
		}
		if v&portBKBClear != 0 {
			p.clearKeyboard = true
			p.portAMode = portASwitchBlock1
		} else {
			p.portAMode = portAKeyboardByte
		}
	case ModelXT5160:
		if v&portBSW1Select == 0 {
			p.portCMode = portCSwitch1OneToFour
		} else {
			p.portCMode = portCSwitch1FiveToEight
		}
		if v&portBKBClear != 0 {
			p.clearKeyboard = true
		}
		p.portAMode = portAKeyboardByte
	}

	if v&portBPullKBLow == 0 {
		if !p.kbClockLow {
			p.kbLowCount = 0
		}
		p.kbClockLow = true
		p.kbCountingLow = true
	} else if p.kbClockLow {
		p.kbClockLow = false
		p.kbCountingLow = false
		if p.kbLowCount >= kbResetUs {
			p.kbLowCount = 0
			p.kbDoReset = true
			p.kbCountUntilReset = 0
		}
	}
}

func (p *PPI) portCValue() byte {
	var speakerBit byte
	if p.model == ModelXT5160 && p.speakerIn {
		speakerBit = 1 << 4
	}
	var timerBit byte
	if p.timerIn {
		timerBit = 1 << 5
	}
	switch {
	case p.model == ModelPC5150 && p.portCMode == portCSwitch2OneToFour:
		return (p.dipSW2 & 0x0F) | timerBit
	case p.model == ModelPC5150 && p.portCMode == portCSwitch2Five:
		return (p.dipSW2 >> 4 & 0x01) | timerBit
	case p.model == ModelXT5160 && p.portCMode == portCSwitch1OneToFour:
		return (p.dipSW1 & 0x0F) | speakerBit | timerBit
	case p.model == ModelXT5160 && p.portCMode == portCSwitch1FiveToEight:
		return (p.dipSW1>>4)&0x0F | speakerBit | timerBit
	}
	return 0
}

// SpeakerGate implements pit.GateSource: Port B bit 0 gates PIT channel 2.
func (p *PPI) SpeakerGate() bool {
	return p.portB&portBTimer2Gate != 0
}

// SpeakerEnable implements pit.GateSource: Port B bit 1 AND-gates the
// speaker output.
func (p *PPI) SpeakerEnable() bool {
	return p.portB&portBSpeakerData != 0
}

// SetTimerOutput latches PIT channel 2's output level onto Port C bit 5.
func (p *PPI) SetTimerOutput(state bool) {
	p.timerIn = state
}

// SetSpeakerMonitor latches the gated speaker signal onto Port C bit 4
// (XT-only; the 5150 wires that line to the cassette interface instead).
func (p *PPI) SetSpeakerMonitor(state bool) {
	p.speakerIn = state
}

// InjectScancode delivers an XT scan code to the keyboard interface: a
// 7-bit make code with the high bit clear, or make|0x80 for a key release.
// The byte latches into Port A and IRQ1 asserts until the BIOS ISR acks it
// via a Port B bit-7 pulse.
func (p *PPI) InjectScancode(code byte) {
	p.kbByte = code
	p.pic.RequestInterrupt(1)
}

// Run advances the keyboard self-test timers by us microseconds of elapsed
// time. Holding the clock line low for kbResetUs, then releasing it,
// schedules the 0xAA reset byte to be delivered kbResetDelayUs later.
func (p *PPI) Run(us float64) {
	if p.clearKeyboard {
		p.clearKeyboard = false
		p.kbByte = 0
		p.pic.ClearInterrupt(1)
	}

	if p.kbCountingLow && p.kbLowCount < kbResetUs {
		p.kbLowCount += us
	}

	if p.kbDoReset {
		p.kbCountUntilReset += us
		if p.kbCountUntilReset > kbResetDelayUs {
			p.kbDoReset = false
			p.kbCountUntilReset = 0
			p.kbResets++
			p.kbByte = 0xAA
			p.pic.RequestInterrupt(1)
		}
	}
}

// KeyboardResets reports how many self-test reset bytes have been sent,
// for diagnostics.
func (p *PPI) KeyboardResets() int {
	return p.kbResets
}

// KeyboardIdle reports whether Port A currently holds no unacknowledged scan
// code, matching the real keyboard's single-byte shift register: a host-side
// scancode queue must wait for this before injecting the next byte.
func (p *PPI) KeyboardIdle() bool {
	return p.kbByte == 0
}
