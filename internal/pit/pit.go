// Package pit implements the Intel 8253 Programmable Interval Timer as wired
// into the IBM PC/XT: channel 0 feeds PIC IRQ0 (the system clock tick),
// channel 1 drives DRAM refresh through the DMA controller, and channel 2
// is gated by and drives the PPI's speaker bits.
package pit

import "github.com/xtcore/xtcore/internal/logging"

const (
	Channel0DataPort uint16 = 0x40
	Channel1DataPort uint16 = 0x41
	Channel2DataPort uint16 = 0x42
	CommandPort      uint16 = 0x43
)

// cyclesPerTick is the CPU-cycle-to-PIT-tick ratio: the 8253 runs at
// ~1.193182 MHz against a ~4.77 MHz 8088, a ratio of almost exactly 1/4.
const cyclesPerTick = 0.25

// Interrupter is the PIC surface channel 0's terminal count drives.
type Interrupter interface {
	RequestInterrupt(irq int)
	ClearInterrupt(irq int)
}

// Refresher is the DMA channel-1 rate-generator hook (channel 1 historically
// drove DRAM refresh on the 5150/5160).
type Refresher interface {
	RefreshTick()
}

// GateSource is the PPI surface that drives and samples channel 2: Port B
// bit 0 gates the channel, bit 1 enables the speaker AND gate.
type GateSource interface {
	SpeakerGate() bool
	SpeakerEnable() bool
}

// SpeakerSink receives one sample per PIT tick of channel 2's gated output.
type SpeakerSink interface {
	PushSample(bit bool)
}

type channelMode int

const (
	modeInterruptOnTerminalCount channelMode = iota
	modeHardwareRetriggerableOneShot
	modeRateGenerator
	modeSquareWaveGenerator
	modeSoftwareTriggeredStrobe
	modeHardwareTriggeredStrobe
)

type accessMode int

const (
	accessLatch accessMode = iota
	accessLoByteOnly
	accessHiByteOnly
	accessLoByteHiByte
)

const (
	accessModeMask    byte = 0b0011_0000
	operatingModeMask byte = 0b0000_1110
	bcdModeMask       byte = 0b0000_0001
)

type channel struct {
	mode       channelMode
	access     accessMode
	bcd        bool
	reload     uint16
	count      uint16
	output     bool
	inputGate  bool
	waitReload bool
	waitHibyte bool

	readInProgress   bool
	countLatched     bool
	latchedLobyte    bool
	latchCount       uint16
	oneShotTriggered bool
	gateTriggered    bool
}

func (ch *channel) reset() {
	*ch = channel{
		mode:       modeInterruptOnTerminalCount,
		access:     accessHiByteOnly,
		waitReload: true,
		inputGate:  true,
	}
}

// PIT models all three 8253 counter channels and the command register's
// tiny per-channel state machine.
type PIT struct {
	log      *logging.Logger
	channels [3]channel

	accumulator float64

	pic Interrupter
	dma Refresher
	ppi GateSource
	snk SpeakerSink
}

// New returns a PIT with all channels in their undefined power-on state
// (mode 0, waiting for a reload value, gate held high). The XT BIOS does not
// rely on a running timer before it programs one, so this matches real
// hardware behavior closely enough.
func New(log *logging.Logger, pic Interrupter, dma Refresher, ppi GateSource, snk SpeakerSink) *PIT {
	p := &PIT{log: log, pic: pic, dma: dma, ppi: ppi, snk: snk}
	p.Reset()
	return p
}

func (p *PIT) Reset() {
	p.accumulator = 0
	for i := range p.channels {
		p.channels[i].reset()
	}
}

// InU8 implements bus.Device.
func (p *PIT) InU8(port uint16) byte {
	switch port {
	case Channel0DataPort:
		return p.dataRead(0)
	case Channel1DataPort:
		return p.dataRead(1)
	case Channel2DataPort:
		return p.dataRead(2)
	}
	return 0
}

// OutU8 implements bus.Device.
func (p *PIT) OutU8(port uint16, v byte) {
	switch port {
	case CommandPort:
		p.commandWrite(v)
	case Channel0DataPort:
		p.dataWrite(0, v)
	case Channel1DataPort:
		p.dataWrite(1, v)
	case Channel2DataPort:
		p.dataWrite(2, v)
	}
}

func (p *PIT) commandWrite(b byte) {
	sel := int(b >> 6)
	if sel > 2 {
		p.log.Warnf("pit: read-back command unsupported, ignoring")
		return
	}
	access := accessMode((b & accessModeMask) >> 4)
	if access == accessLatch {
		ch := &p.channels[sel]
		ch.latchCount = ch.count
		ch.countLatched = true
		ch.latchedLobyte = false
		return
	}

	opBits := (b & operatingModeMask) >> 1
	mode := decodeMode(opBits)
	bcd := b&bcdModeMask != 0
	if bcd {
		p.log.Warnf("pit: BCD counting mode unimplemented, treating as binary")
	}

	ch := &p.channels[sel]
	ch.mode = mode
	ch.access = access
	ch.bcd = bcd
	ch.reload = 0
	ch.waitReload = true
	ch.readInProgress = false
	ch.countLatched = false
	switch mode {
	case modeHardwareRetriggerableOneShot, modeHardwareTriggeredStrobe, modeSoftwareTriggeredStrobe:
		ch.oneShotTriggered = false
		ch.gateTriggered = false
	}
	ch.output = mode == modeHardwareRetriggerableOneShot || mode == modeSoftwareTriggeredStrobe
}

func decodeMode(bits byte) channelMode {
	switch bits {
	case 0b110:
		return modeRateGenerator
	case 0b111:
		return modeSquareWaveGenerator
	default:
		return channelMode(bits)
	}
}

// dataWrite stores a reload value per the channel's access mode. Only modes
// 0 and 4 (interrupt-on-terminal-count, software strobe) reload the running
// counter immediately; the rest pick up the new value on the next terminal
// count or gate-triggered reload. In every mode, the first full count
// written after a control word loads the counter at once.
func (p *PIT) dataWrite(idx int, data byte) {
	ch := &p.channels[idx]

	reloadImmediately := ch.mode == modeInterruptOnTerminalCount || ch.mode == modeSoftwareTriggeredStrobe
	outputLowOnReload := ch.mode == modeHardwareRetriggerableOneShot && ch.output

	if ch.mode == modeInterruptOnTerminalCount || ch.mode == modeHardwareRetriggerableOneShot {
		ch.output = false
	}

	apply := func(newReload uint16, gotFullValue bool) {
		ch.reload = newReload
		if gotFullValue && (ch.waitReload || reloadImmediately) {
			ch.count = ch.reload
		}
		if gotFullValue {
			ch.waitReload = false
			if outputLowOnReload {
				ch.output = false
				ch.gateTriggered = false
			}
			if ch.mode == modeSoftwareTriggeredStrobe {
				// Writing a new count re-arms the single-shot pulse: the
				// prior terminal-count pulse (if any) already fired.
				ch.oneShotTriggered = false
			}
		}
	}

	switch ch.access {
	case accessLoByteOnly:
		apply(uint16(data), true)
	case accessHiByteOnly:
		apply(uint16(data)<<8, true)
	case accessLoByteHiByte:
		if ch.waitHibyte {
			apply(ch.reload|uint16(data)<<8, true)
			ch.waitHibyte = false
		} else {
			ch.reload = uint16(data)
			ch.waitHibyte = true
		}
	case accessLatch:
		// unreachable: commandWrite never sets access to accessLatch
	}
}

func (p *PIT) dataRead(idx int) byte {
	ch := &p.channels[idx]
	if ch.countLatched {
		switch ch.access {
		case accessLoByteOnly:
			ch.countLatched = false
			return byte(ch.latchCount)
		case accessHiByteOnly:
			ch.countLatched = false
			return byte(ch.latchCount >> 8)
		case accessLoByteHiByte:
			if ch.latchedLobyte {
				ch.countLatched = false
				ch.latchedLobyte = false
				return byte(ch.latchCount >> 8)
			}
			ch.latchedLobyte = true
			return byte(ch.latchCount)
		}
		return 0
	}
	switch ch.access {
	case accessLoByteOnly:
		return byte(ch.count)
	case accessHiByteOnly:
		return byte(ch.count >> 8)
	case accessLoByteHiByte:
		if ch.readInProgress {
			ch.readInProgress = false
			return byte(ch.count >> 8)
		}
		ch.readInProgress = true
		return byte(ch.count)
	}
	return 0
}

// Run advances the timer by cpuCycles CPU clocks, ticking each whole PIT
// cycle accumulated at the fixed 1:4 ratio.
func (p *PIT) Run(cpuCycles int) {
	p.accumulator += float64(cpuCycles) * cyclesPerTick
	for p.accumulator >= 1.0 {
		p.accumulator -= 1.0
		p.tick()
	}
}

func (p *PIT) tick() {
	p.tickChannel2Gate()

	for i := range p.channels {
		p.tickChannel(i)
	}

	speakerBit := p.channels[2].output && p.ppi.SpeakerEnable()
	p.snk.PushSample(speakerBit)
}

// tickChannel2Gate is the only real input gate on this bus: PPI Port B bit 0.
// The other two channels' gates stay permanently high.
func (p *PIT) tickChannel2Gate() {
	gate := p.ppi.SpeakerGate()
	ch := &p.channels[2]
	if gate && !ch.inputGate {
		switch ch.mode {
		case modeRateGenerator, modeHardwareRetriggerableOneShot, modeSquareWaveGenerator, modeHardwareTriggeredStrobe:
			if ch.reload == 0 {
				ch.count = 0xFFFF
			} else {
				ch.count = ch.reload
			}
		}
		if ch.mode == modeHardwareRetriggerableOneShot {
			ch.output = false
			ch.oneShotTriggered = false
		}
		ch.gateTriggered = true
	}
	ch.inputGate = gate
}

func (p *PIT) tickChannel(i int) {
	ch := &p.channels[i]
	switch ch.mode {
	case modeInterruptOnTerminalCount:
		if ch.waitReload || !ch.inputGate {
			return
		}
		ch.count--
		if ch.count == 0 {
			if !ch.output && i == 0 {
				p.pic.RequestInterrupt(0)
			}
			ch.output = true
			ch.count = 0xFFFF
		}
	case modeHardwareRetriggerableOneShot:
		if ch.waitReload || !ch.gateTriggered {
			return
		}
		ch.count--
		if ch.count == 0 {
			ch.count = 0xFFFF
			if !ch.oneShotTriggered {
				ch.oneShotTriggered = true
				ch.output = true
			}
		} else if !ch.oneShotTriggered {
			ch.output = false
		}
	case modeRateGenerator:
		if ch.waitReload || !ch.inputGate {
			if !ch.inputGate {
				ch.output = true
			}
			return
		}
		ch.count--
		if ch.count == 1 {
			ch.output = false
		}
		if ch.count == 0 {
			ch.output = true
			ch.count = ch.reload
			switch i {
			case 0:
				p.pic.RequestInterrupt(0)
			case 1:
				p.dma.RefreshTick()
			}
		}
	case modeSquareWaveGenerator:
		if ch.waitReload || !ch.inputGate {
			return
		}
		if ch.count == 0 {
			ch.count = 0xFFFF
		}
		if ch.count&1 != 0 {
			if ch.output {
				ch.count--
			} else {
				ch.count -= 3
			}
		} else {
			if ch.count >= 2 {
				ch.count -= 2
			} else {
				ch.count = 0
			}
		}
		if ch.count == 0 {
			ch.output = !ch.output
			if i == 0 {
				if ch.output {
					p.pic.RequestInterrupt(0)
				} else {
					p.pic.ClearInterrupt(0)
				}
			}
			if ch.reload == 0 {
				ch.count = 0xFFFF
			} else {
				ch.count = ch.reload
			}
		}
	case modeSoftwareTriggeredStrobe:
		// Like the rate generator but single-shot: count down, drop output
		// low for the one tick at count==1, go high at terminal count and
		// stay there. Writing a new count (apply, above) is what re-arms
		// the pulse; there is no gate-triggered or automatic reload here.
		if ch.waitReload || ch.oneShotTriggered {
			return
		}
		ch.count--
		if ch.count == 1 {
			ch.output = false
		}
		if ch.count == 0 {
			ch.output = true
			ch.oneShotTriggered = true
		}
	case modeHardwareTriggeredStrobe:
		if ch.waitReload {
			return
		}
		ch.count--
		if ch.count == 0 {
			if !ch.oneShotTriggered {
				ch.oneShotTriggered = true
				ch.output = false
			}
		} else {
			ch.output = true
		}
	}
}

// OutputState reports whether channel idx's output line is currently high,
// for Machine's debug/state readout.
func (p *PIT) OutputState(idx int) bool {
	return p.channels[idx].output
}
