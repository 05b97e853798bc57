// Package fdc implements a thin NEC uPD765/uPD764-compatible floppy disk
// controller: enough of the digital-output/status/data register protocol
// and command set for BIOS drive probing and sector transfers through DMA
// channel 2, not a cycle-exact model of seek timing or head settle.
package fdc

import (
	"github.com/xtcore/xtcore/internal/dma"
	"github.com/xtcore/xtcore/internal/logging"
)

const (
	DigitalOutputRegister uint16 = 0x3F2
	StatusRegister        uint16 = 0x3F4
	DataRegister          uint16 = 0x3F5
)

// IRQ is the PIC line the controller asserts on command completion.
const IRQ = 6

// DMAChannel is the 8237 channel the controller drives for sector transfers.
const DMAChannel = 2

const SectorSize = 512

const MaxDrives = 4

// Main Status Register bits.
const (
	msrDriveABusy byte = 1 << 0
	msrDriveBBusy byte = 1 << 1
	msrDriveCBusy byte = 1 << 2
	msrDriveDBusy byte = 1 << 3
	msrBusy       byte = 1 << 4
	msrNonDMA     byte = 1 << 5
	msrDIO        byte = 1 << 6
	msrRQM        byte = 1 << 7
)

// Digital Output Register bits.
const (
	dorDriveSelectMask byte = 0b0000_0011
	dorReset           byte = 1 << 2
	dorDMAEnable       byte = 1 << 3
	dorMotorA          byte = 1 << 4
	dorMotorB          byte = 1 << 5
	dorMotorC          byte = 1 << 6
	dorMotorD          byte = 1 << 7
)

// Command byte low 5 bits (MT/MFM/SK occupy the high 3).
const (
	cmdReadTrack        byte = 0x02
	cmdSpecify          byte = 0x03
	cmdSenseDriveStatus byte = 0x04
	cmdWriteSector      byte = 0x05
	cmdReadSector       byte = 0x06
	cmdRecalibrate      byte = 0x07
	cmdSenseInterrupt   byte = 0x08
	cmdWriteDeleted     byte = 0x09
	cmdReadSectorID     byte = 0x0A
	cmdReadDeleted      byte = 0x0C
	cmdFormatTrack      byte = 0x0D
	cmdSeek             byte = 0x0F
)

// commandBytes is how many additional bytes (beyond the command byte
// itself) the controller collects in the command phase before executing.
var commandBytes = map[byte]int{
	cmdSpecify:          2,
	cmdSenseDriveStatus: 1,
	cmdWriteSector:      8,
	cmdReadSector:       8,
	cmdRecalibrate:      1,
	cmdSenseInterrupt:   0,
	cmdSeek:             2,
}

// ST0 status bits this core actually produces.
const (
	st0IC0         byte = 1 << 6 // interrupt-code bit 0
	st0SeekEnd     byte = 1 << 5
	st0NotReady    byte = 1 << 3
	st0HeadAddress byte = 1 << 2
)

// Interrupter is the PIC surface a completed command drives.
type Interrupter interface {
	RequestInterrupt(irq int)
}

// DMA is the subset of internal/dma's Controller the controller drives for
// sector reads/writes on DMAChannel.
type DMA interface {
	ReadMemory(ch int, mem dma.Memory) (data byte, tc bool)
	WriteMemory(ch int, mem dma.Memory, data byte) (tc bool)
}

// Drive holds one floppy drive's geometry and loaded image. Image loading
// and format detection from file size is a host/VHD-manager concern (spec
// Non-goal); Attach takes an already-decoded image plus its geometry.
type Drive struct {
	cylinder int
	head     int

	maxCylinders int
	maxHeads     int
	maxSectors   int

	haveDisk bool
	image    []byte

	motorOn     bool
	positioning bool
}

// Attach mounts image (assumed already validated/whole-sector) into the
// drive with the given CHS geometry.
func (d *Drive) Attach(image []byte, cylinders, heads, sectors int) {
	d.image = image
	d.maxCylinders = cylinders
	d.maxHeads = heads
	d.maxSectors = sectors
	d.haveDisk = true
	d.cylinder = 0
	d.head = 0
}

// Eject unmounts the drive's image.
func (d *Drive) Eject() {
	d.image = nil
	d.haveDisk = false
	d.cylinder = 0
	d.head = 0
}

func (d *Drive) offset(head, cylinder, sector int) int {
	chsIndex := (cylinder*d.maxHeads+head)*d.maxSectors + (sector - 1)
	return chsIndex * SectorSize
}

// phase tracks where the controller is in the command/execution/result
// protocol the data register's FIFO exposes.
type phase int

const (
	phaseCommand phase = iota
	phaseExecution
	phaseResult
)

// Controller models the register-level protocol of the chip: a command
// FIFO, a result FIFO, and the DOR/MSR bits the BIOS polls while driving
// them.
type Controller struct {
	log *logging.Logger
	pic Interrupter
	dma DMA
	mem dma.Memory

	dor byte

	phase   phase
	command byte
	inBuf   []byte
	inWant  int
	outBuf  []byte
	outPos  int

	drives      [MaxDrives]Drive
	driveSelect int

	st0 byte

	seekInterruptPending [MaxDrives]bool
}

// New returns a Controller with all drives unmounted and the DOR in its
// power-on (reset-asserted, motors off) state. mem is the system bus DMA
// channel 2 transfers against — the same bus the CPU reads and writes.
func New(log *logging.Logger, pic Interrupter, dmaCtrl DMA, mem dma.Memory) *Controller {
	c := &Controller{log: log, pic: pic, dma: dmaCtrl, mem: mem}
	c.Reset()
	return c
}

// Reset clears in-flight command/result state but keeps drives mounted —
// a reboot doesn't eject a floppy.
func (c *Controller) Reset() {
	c.dor = 0
	c.phase = phaseCommand
	c.command = 0
	c.inBuf = nil
	c.inWant = 0
	c.outBuf = nil
	c.outPos = 0
	c.driveSelect = 0
	c.st0 = 0
	for i := range c.drives {
		c.drives[i].head = 0
		c.drives[i].cylinder = 0
		c.drives[i].motorOn = false
		c.drives[i].positioning = false
		c.seekInterruptPending[i] = false
	}
}

// Drive returns drive i (0-3) for attaching/ejecting images.
func (c *Controller) Drive(i int) *Drive {
	return &c.drives[i]
}

// InU8 implements bus.Device.
func (c *Controller) InU8(port uint16) byte {
	switch port {
	case DigitalOutputRegister:
		c.log.Warnf("fdc: read from write-only DOR")
		return 0
	case StatusRegister:
		return c.msr()
	case DataRegister:
		return c.readData()
	}
	return 0xFF
}

// OutU8 implements bus.Device.
func (c *Controller) OutU8(port uint16, v byte) {
	switch port {
	case DigitalOutputRegister:
		c.writeDOR(v)
	case StatusRegister:
		c.log.Warnf("fdc: write to read-only status register")
	case DataRegister:
		c.writeData(v)
	}
}

func (c *Controller) writeDOR(v byte) {
	wasReset := c.dor&dorReset == 0
	c.dor = v
	c.driveSelect = int(v & dorDriveSelectMask)
	c.drives[0].motorOn = v&dorMotorA != 0
	c.drives[1].motorOn = v&dorMotorB != 0
	c.drives[2].motorOn = v&dorMotorC != 0
	c.drives[3].motorOn = v&dorMotorD != 0

	nowReset := v&dorReset == 0
	if wasReset && !nowReset {
		// Reset line de-asserted: the chip comes out of reset and raises
		// IRQ6 once, same as real hardware signalling readiness.
		c.Reset()
		c.dor = v
		c.pic.RequestInterrupt(IRQ)
	}
}

func (c *Controller) msr() byte {
	var v byte
	for i, d := range c.drives {
		if d.positioning {
			v |= 1 << uint(i)
		}
	}
	if c.phase != phaseCommand {
		v |= msrBusy
	}
	if c.phase == phaseResult {
		v |= msrDIO
	}
	v |= msrRQM
	return v
}

func (c *Controller) readData() byte {
	if c.phase != phaseResult || c.outPos >= len(c.outBuf) {
		return 0
	}
	b := c.outBuf[c.outPos]
	c.outPos++
	if c.outPos >= len(c.outBuf) {
		c.phase = phaseCommand
		c.outBuf = nil
		c.outPos = 0
	}
	return b
}

func (c *Controller) writeData(v byte) {
	if c.phase != phaseCommand {
		c.log.Warnf("fdc: data write %#02x ignored outside command phase", v)
		return
	}
	if len(c.inBuf) == 0 {
		cmd := v & 0x1F
		want, known := commandBytes[cmd]
		if !known {
			c.log.Warnf("fdc: unsupported command byte %#02x", v)
			return
		}
		c.command = cmd
		c.inWant = want
		c.inBuf = append(c.inBuf, v)
		if want == 0 {
			c.execute()
		}
		return
	}
	c.inBuf = append(c.inBuf, v)
	if len(c.inBuf)-1 >= c.inWant {
		c.execute()
	}
}

func (c *Controller) execute() {
	args := c.inBuf[1:]
	switch c.command {
	case cmdSpecify:
		// SRT/HUT and HLT/ND timing bytes: this core doesn't model seek
		// timing, so they're accepted and discarded.
		c.finishNoResult()
	case cmdSenseDriveStatus:
		c.finishWithResult([]byte{c.st3(int(args[0] & 0x03))})
	case cmdRecalibrate:
		drive := int(args[0] & 0x03)
		c.drives[drive].cylinder = 0
		c.st0 = st0SeekEnd
		c.seekInterruptPending[drive] = true
		c.pic.RequestInterrupt(IRQ)
		c.finishNoResult()
	case cmdSeek:
		drive := int(args[0] & 0x03)
		c.drives[drive].head = int(args[0]>>2) & 0x01
		c.drives[drive].cylinder = int(args[1])
		c.st0 = st0SeekEnd
		c.seekInterruptPending[drive] = true
		c.pic.RequestInterrupt(IRQ)
		c.finishNoResult()
	case cmdSenseInterrupt:
		drive := c.driveSelect
		st0 := c.st0
		if !c.seekInterruptPending[drive] {
			st0 |= 1 << 6 // invalid command: no seek/recalibrate interrupt pending
		}
		c.seekInterruptPending[drive] = false
		pcn := byte(c.drives[drive].cylinder)
		c.finishWithResult([]byte{st0, pcn})
	case cmdReadSector:
		c.doSectorTransfer(args, false)
	case cmdWriteSector:
		c.doSectorTransfer(args, true)
	default:
		c.log.Warnf("fdc: command %#02x not implemented", c.command)
		c.finishNoResult()
	}
}

// doSectorTransfer drives DMA channel 2 one byte at a time until the
// sector is exhausted or DMA reaches terminal count, then queues the
// 7-byte ST0/ST1/ST2/C/H/R/N result the BIOS's read/write ISR expects.
func (c *Controller) doSectorTransfer(args []byte, write bool) {
	drive := int(args[0] & 0x03)
	cylinder := int(args[1])
	head := int(args[2])
	sector := int(args[3])
	d := &c.drives[drive]

	if !d.haveDisk {
		c.finishWithResult([]byte{st0NotReady, 0, 0, byte(cylinder), byte(head), byte(sector), 2})
		return
	}

	d.cylinder = cylinder
	d.head = head
	off := d.offset(head, cylinder, sector)

	c.phase = phaseExecution
	for i := 0; i < SectorSize; i++ {
		if off+i >= len(d.image) {
			break
		}
		if write {
			// Write command: memory is the source (sector data moves
			// from RAM, through the DMA channel, into the disk image).
			data, tc := c.dma.ReadMemory(DMAChannel, c.mem)
			d.image[off+i] = data
			if tc {
				break
			}
		} else {
			if c.dma.WriteMemory(DMAChannel, c.mem, d.image[off+i]) {
				break
			}
		}
	}

	c.pic.RequestInterrupt(IRQ)
	c.finishWithResult([]byte{0, 0, 0, byte(cylinder), byte(head), byte(sector), 2})
}

func (c *Controller) st3(drive int) byte {
	d := &c.drives[drive]
	var v byte
	if d.head == 1 {
		v |= st0HeadAddress
	}
	if d.haveDisk {
		v |= 1 << 5 // track0 / write-protect placeholder bits not modeled individually
	}
	return v
}

func (c *Controller) finishNoResult() {
	c.phase = phaseCommand
	c.inBuf = nil
	c.inWant = 0
}

func (c *Controller) finishWithResult(result []byte) {
	c.phase = phaseResult
	c.outBuf = result
	c.outPos = 0
	c.inBuf = nil
	c.inWant = 0
}
