// Package dma implements the Intel 8237A DMA controller as wired on the
// IBM PC/XT: four channels sharing one address/count flip-flop, channel 0
// dedicated to DRAM refresh (dummy reads with no real transfer), channel 2
// wired to the floppy controller.
package dma

// Memory is the minimal bus surface a DMA transfer touches.
type Memory interface {
	ReadU8(addr uint32) byte
	WriteU8(addr uint32, v byte)
}

const (
	ch0AddrPort uint16 = 0x00
	ch0CountPort uint16 = 0x01
	ch1AddrPort  uint16 = 0x02
	ch1CountPort uint16 = 0x03
	ch2AddrPort  uint16 = 0x04
	ch2CountPort uint16 = 0x05
	ch3AddrPort  uint16 = 0x06
	ch3CountPort uint16 = 0x07

	CommandPort       uint16 = 0x08
	RequestPort       uint16 = 0x09
	SingleMaskPort    uint16 = 0x0A
	ModePort          uint16 = 0x0B
	ClearFlipFlopPort uint16 = 0x0C
	MasterClearPort   uint16 = 0x0D
	ClearMaskPort     uint16 = 0x0E
	WriteAllMaskPort  uint16 = 0x0F

	page0Port uint16 = 0x87
	page1Port uint16 = 0x83
	page2Port uint16 = 0x81
	page3Port uint16 = 0x82
)

const (
	modeAutoInit byte = 1 << 4
	modeDecrement byte = 1 << 5
	modeTransferMask byte = 0b0000_1100
)

// transferType is bits 2-3 of the mode register; this core only needs to
// distinguish them for bookkeeping, since reads/writes are driven
// explicitly by the device on the other end of the channel.
type transferType int

const (
	transferVerify transferType = iota
	transferWrite
	transferRead
	transferIllegal
)

type channel struct {
	baseAddr    uint16
	baseCount   uint16
	currentAddr uint16
	currentCnt  uint16
	page        byte
	mode        byte
	masked      bool
	terminalCnt bool
}

func (c *channel) autoInit() bool   { return c.mode&modeAutoInit != 0 }
func (c *channel) decrement() bool  { return c.mode&modeDecrement != 0 }
func (c *channel) kind() transferType {
	return transferType((c.mode & modeTransferMask) >> 2)
}

// Controller models all four 8237 channels and the shared address/count
// flip-flop. Channel 0 is the refresh channel; RefreshTick advances its
// address and count like a transfer but reads no memory and ignores its
// page register (real XT refresh reads an address the REFRESH chip
// generates, not the DMA channel's own count).
type Controller struct {
	channels  [4]channel
	flipFlop  bool
	enabled   bool
}

// New returns a Controller with all channels masked, matching the 8237's
// power-on state before BIOS programs the floppy channel.
func New() *Controller {
	d := &Controller{}
	d.Reset()
	return d
}

func (d *Controller) Reset() {
	for i := range d.channels {
		d.channels[i] = channel{masked: true}
	}
	d.flipFlop = false
	d.enabled = true
}

// InU8 implements bus.Device.
func (d *Controller) InU8(port uint16) byte {
	if ch, reg, ok := d.decodeAddrCountPort(port); ok {
		return d.readAddrCount(ch, reg)
	}
	switch port {
	case CommandPort:
		return 0
	case page0Port:
		return d.channels[0].page
	case page1Port:
		return d.channels[1].page
	case page2Port:
		return d.channels[2].page
	case page3Port:
		return d.channels[3].page
	}
	return 0
}

// OutU8 implements bus.Device.
func (d *Controller) OutU8(port uint16, v byte) {
	if ch, reg, ok := d.decodeAddrCountPort(port); ok {
		d.writeAddrCount(ch, reg, v)
		return
	}
	switch port {
	case CommandPort:
		// bit 2 is the controller-disable bit; the rest of the command
		// register (priority mode, compressed timing) has no effect here.
		d.enabled = v&0x04 == 0
	case SingleMaskPort:
		ch := int(v & 0x03)
		d.channels[ch].masked = v&0x04 != 0
	case ModePort:
		ch := int(v & 0x03)
		d.channels[ch].mode = v
	case ClearFlipFlopPort:
		d.flipFlop = false
	case MasterClearPort:
		d.Reset()
	case ClearMaskPort:
		for i := range d.channels {
			d.channels[i].masked = false
		}
	case WriteAllMaskPort:
		for i := range d.channels {
			d.channels[i].masked = v&(1<<uint(i)) != 0
		}
	case page0Port:
		d.channels[0].page = v
	case page1Port:
		d.channels[1].page = v
	case page2Port:
		d.channels[2].page = v
	case page3Port:
		d.channels[3].page = v
	}
}

type addrCountReg int

const (
	regAddr addrCountReg = iota
	regCount
)

func (d *Controller) decodeAddrCountPort(port uint16) (ch int, reg addrCountReg, ok bool) {
	switch port {
	case ch0AddrPort:
		return 0, regAddr, true
	case ch0CountPort:
		return 0, regCount, true
	case ch1AddrPort:
		return 1, regAddr, true
	case ch1CountPort:
		return 1, regCount, true
	case ch2AddrPort:
		return 2, regAddr, true
	case ch2CountPort:
		return 2, regCount, true
	case ch3AddrPort:
		return 3, regAddr, true
	case ch3CountPort:
		return 3, regCount, true
	}
	return 0, 0, false
}

// writeAddrCount implements the flip-flop-managed low/high byte protocol:
// the first write to a channel's address or count port lands in the low
// byte, the second in the high byte, and the flip-flop then resets itself
// for the next register — independent of which port is touched next, which
// is why ClearFlipFlopPort exists for software that needs to force it back
// to the low-byte phase.
func (d *Controller) writeAddrCount(ch int, reg addrCountReg, v byte) {
	c := &d.channels[ch]
	var target *uint16
	switch reg {
	case regAddr:
		target = &c.baseAddr
	case regCount:
		target = &c.baseCount
	}
	if !d.flipFlop {
		*target = (*target &^ 0xFF) | uint16(v)
	} else {
		*target = (*target & 0xFF) | uint16(v)<<8
	}
	d.flipFlop = !d.flipFlop
	if reg == regAddr {
		c.currentAddr = c.baseAddr
	} else {
		c.currentCnt = c.baseCount
	}
}

func (d *Controller) readAddrCount(ch int, reg addrCountReg) byte {
	c := &d.channels[ch]
	var v uint16
	switch reg {
	case regAddr:
		v = c.currentAddr
	case regCount:
		v = c.currentCnt
	}
	var b byte
	if !d.flipFlop {
		b = byte(v)
	} else {
		b = byte(v >> 8)
	}
	d.flipFlop = !d.flipFlop
	return b
}

// RefreshTick performs one channel-0 DRAM refresh cycle: a dummy memory
// read whose address and data are both discarded, advancing the channel's
// counter exactly as a real transfer would so BIOS refresh-rate timing
// checks see a moving count.
func (d *Controller) RefreshTick() {
	d.stepCounter(0)
}

// ReadMemory performs a memory-to-device DMA cycle (e.g. a floppy sector
// write: memory is the source). It returns the byte read from the current
// transfer address and whether this cycle reached terminal count.
func (d *Controller) ReadMemory(ch int, mem Memory) (data byte, tc bool) {
	addr := d.linear(ch)
	data = mem.ReadU8(addr)
	tc = d.stepCounter(ch)
	return data, tc
}

// WriteMemory performs a device-to-memory DMA cycle (e.g. a floppy sector
// read: memory is the destination) and reports terminal count.
func (d *Controller) WriteMemory(ch int, mem Memory, data byte) (tc bool) {
	addr := d.linear(ch)
	mem.WriteU8(addr, data)
	return d.stepCounter(ch)
}

func (d *Controller) linear(ch int) uint32 {
	c := &d.channels[ch]
	return uint32(c.page)<<16 | uint32(c.currentAddr)
}

// stepCounter advances the channel's address and count after a transfer
// (or refresh dummy-read) cycle, latching and reporting terminal count; an
// auto-init channel reloads from its base registers immediately, a
// non-auto-init channel masks itself so the requesting device sees no
// further cycles until software reprograms it.
func (d *Controller) stepCounter(ch int) (tc bool) {
	c := &d.channels[ch]
	if c.currentCnt == 0 {
		tc = true
		c.terminalCnt = true
		if c.autoInit() {
			c.currentAddr = c.baseAddr
			c.currentCnt = c.baseCount
		} else {
			c.masked = true
		}
		return tc
	}
	c.currentCnt--
	if c.decrement() {
		c.currentAddr--
	} else {
		c.currentAddr++
	}
	return false
}

// Masked reports whether channel ch is currently masked off.
func (d *Controller) Masked(ch int) bool {
	return d.channels[ch].masked
}

// TerminalCount reports and clears channel ch's latched terminal-count flag.
func (d *Controller) TerminalCount(ch int) bool {
	tc := d.channels[ch].terminalCnt
	d.channels[ch].terminalCnt = false
	return tc
}
