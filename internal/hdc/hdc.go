// Package hdc implements a thin IBM/Xebec-compatible fixed-disk
// controller (the ST506 MFM adapter the XT 5160's Xebec option ROM
// probes): a 6-byte command-control-block protocol over ports 0x320-0x323,
// deep enough for BIOS probing and sector transfers through DMA channel 3.
//
// No original_source file models this controller directly (hdc.rs is
// referenced by main.rs/gui.rs but wasn't part of the retrieval pack); this
// package adapts internal/fdc's command/result-phase state machine to the
// Xebec's actual register layout and CCB command set instead.
package hdc

import (
	"github.com/xtcore/xtcore/internal/dma"
	"github.com/xtcore/xtcore/internal/logging"
)

const (
	DataPort    uint16 = 0x320
	StatusPort  uint16 = 0x321 // read: status; write: controller-select pulse
	ResetPort   uint16 = 0x322 // write only
	DMAMaskPort uint16 = 0x323 // write only: DMA/IRQ mask
)

const IRQ = 5
const DMAChannel = 3
const SectorSize = 512
const MaxDrives = 2

const ccbLen = 6

// Status register bits.
const (
	stReq  byte = 1 << 0
	stIO   byte = 1 << 1 // 1 = controller→host (read), 0 = host→controller (write)
	stCD   byte = 1 << 2 // 1 = command/status byte, 0 = data byte
	stBusy byte = 1 << 3
	stIRQ  byte = 1 << 5
)

// CCB opcodes.
const (
	cmdTestReady   byte = 0x00
	cmdRecalibrate byte = 0x01
	cmdSenseStatus byte = 0x03
	cmdRead        byte = 0x08
	cmdWrite       byte = 0x0A
	cmdSeek        byte = 0x0B
)

// Interrupter is the PIC surface a completed command drives.
type Interrupter interface {
	RequestInterrupt(irq int)
}

// DMA is the subset of internal/dma's Controller a sector command drives.
type DMA interface {
	ReadMemory(ch int, mem dma.Memory) (data byte, tc bool)
	WriteMemory(ch int, mem dma.Memory, data byte) (tc bool)
}

// Drive holds one fixed-disk drive's geometry and backing image. Image
// decoding from a VHD container is a host/file-manager concern (spec
// Non-goal); Attach takes an already-decoded image plus CHS geometry.
type Drive struct {
	image        []byte
	cylinders    int
	heads        int
	sectorsTrack int
	present      bool
}

// Attach mounts image with the given CHS geometry.
func (d *Drive) Attach(image []byte, cylinders, heads, sectorsPerTrack int) {
	d.image = image
	d.cylinders = cylinders
	d.heads = heads
	d.sectorsTrack = sectorsPerTrack
	d.present = true
}

func (d *Drive) offset(cylinder, head, sector int) int {
	chsIndex := (cylinder*d.heads+head)*d.sectorsTrack + (sector - 1)
	return chsIndex * SectorSize
}

type phase int

const (
	phaseIdle phase = iota // waiting for the select pulse
	phaseCommand
	phaseExecution
	phaseStatus
)

// Controller models the Xebec's register-level protocol: a command FIFO
// collecting a 6-byte CCB, execution against a Drive via DMA, and a
// 1-byte completion-status phase the BIOS polls for.
type Controller struct {
	log *logging.Logger
	pic Interrupter
	dma DMA
	mem dma.Memory

	phase   phase
	ccb     []byte
	result  byte
	haveRes bool

	drives [MaxDrives]Drive
}

// New returns a Controller with no drives attached.
func New(log *logging.Logger, pic Interrupter, dmaCtrl DMA, mem dma.Memory) *Controller {
	c := &Controller{log: log, pic: pic, dma: dmaCtrl, mem: mem}
	c.Reset()
	return c
}

func (c *Controller) Reset() {
	c.phase = phaseIdle
	c.ccb = nil
	c.haveRes = false
}

// Drive returns drive i (0 or 1) for attaching an image.
func (c *Controller) Drive(i int) *Drive {
	return &c.drives[i]
}

// InU8 implements bus.Device.
func (c *Controller) InU8(port uint16) byte {
	switch port {
	case DataPort:
		return c.readData()
	case StatusPort:
		return c.status()
	}
	return 0xFF
}

// OutU8 implements bus.Device.
func (c *Controller) OutU8(port uint16, v byte) {
	switch port {
	case DataPort:
		c.writeData(v)
	case StatusPort:
		c.phase = phaseCommand
		c.ccb = nil
	case ResetPort:
		c.Reset()
	case DMAMaskPort:
		// DMA/IRQ gating bits: this controller always drives DMA channel
		// 3 and IRQ5 on completion regardless of this register's value.
	}
}

func (c *Controller) status() byte {
	var v byte
	switch c.phase {
	case phaseCommand:
		v = stCD | stReq
	case phaseStatus:
		v = stCD | stIO | stReq
	case phaseExecution:
		v = stBusy
	}
	return v
}

func (c *Controller) readData() byte {
	if c.phase != phaseStatus || !c.haveRes {
		return 0
	}
	c.haveRes = false
	c.phase = phaseIdle
	return c.result
}

func (c *Controller) writeData(v byte) {
	if c.phase != phaseCommand {
		c.log.Warnf("hdc: data write %#02x ignored outside command phase", v)
		return
	}
	c.ccb = append(c.ccb, v)
	if len(c.ccb) >= ccbLen {
		c.execute()
	}
}

func (c *Controller) execute() {
	ccb := c.ccb
	opcode := ccb[0]
	drive := int(ccb[1]>>5) & 0x01
	head := int(ccb[1] & 0x1F)
	cylinder := int(ccb[2])<<2 | int(ccb[3]>>6)
	sector := int(ccb[3] & 0x3F)

	switch opcode {
	case cmdTestReady:
		c.finish(c.presentBit(drive))
	case cmdRecalibrate, cmdSeek:
		c.finish(c.presentBit(drive))
	case cmdSenseStatus:
		c.finish(0)
	case cmdRead:
		c.transfer(drive, cylinder, head, sector, false)
	case cmdWrite:
		c.transfer(drive, cylinder, head, sector, true)
	default:
		c.log.Warnf("hdc: command %#02x not implemented", opcode)
		c.finish(0x01) // generic error completion byte
	}
}

func (c *Controller) presentBit(drive int) byte {
	if !c.drives[drive].present {
		return 0x01
	}
	return 0
}

func (c *Controller) transfer(drive, cylinder, head, sector int, write bool) {
	d := &c.drives[drive]
	if !d.present {
		c.finish(0x01)
		return
	}

	off := d.offset(cylinder, head, sector)
	c.phase = phaseExecution
	for i := 0; i < SectorSize; i++ {
		if off+i >= len(d.image) {
			break
		}
		if write {
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
	c.finish(0)
}

func (c *Controller) finish(result byte) {
	c.result = result
	c.haveRes = true
	c.phase = phaseStatus
	c.ccb = nil
	c.pic.RequestInterrupt(IRQ)
}
