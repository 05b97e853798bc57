// Package machine wires the bus, CPU, and peripheral chips into the
// complete IBM PC/XT core: the run loop that steps the CPU, ticks the PIT,
// samples the PIC, and dispatches IO port accesses to the right chip.
package machine

import (
	"github.com/xtcore/xtcore/internal/bus"
	"github.com/xtcore/xtcore/internal/cpu"
	"github.com/xtcore/xtcore/internal/dma"
	"github.com/xtcore/xtcore/internal/fdc"
	"github.com/xtcore/xtcore/internal/hdc"
	"github.com/xtcore/xtcore/internal/keyboard"
	"github.com/xtcore/xtcore/internal/logging"
	"github.com/xtcore/xtcore/internal/mouse"
	"github.com/xtcore/xtcore/internal/pic"
	"github.com/xtcore/xtcore/internal/pit"
	"github.com/xtcore/xtcore/internal/ppi"
	"github.com/xtcore/xtcore/internal/rom"
	"github.com/xtcore/xtcore/internal/sound"
)

// cyclesToUs converts 8088 CPU cycles (nominal 4.772727 MHz) to elapsed
// microseconds, for peripherals (the PPI's keyboard timer) that are driven
// by wall-clock time rather than a cycle count.
const cyclesToUs = 1.0 / 4.772727

// Config parameterizes machine construction: RAM size is fixed at the full
// 20-bit address space, so only the machine identity, video adapter DIP
// setting, floppy drive count, optional ROM feature set, and ROM
// directory vary.
type Config struct {
	Machine  rom.MachineType
	Video    ppi.VideoType
	Floppies int
	Features []rom.Feature
	ROMDir   string
}

// Machine owns every emulated chip and the bus they share.
type Machine struct {
	log *logging.Logger

	Bus *bus.Bus
	CPU *cpu.CPU

	PIC *pic.PIC
	PIT *pit.PIT
	PPI *ppi.PPI
	DMA *dma.Controller
	ROM *rom.Manager
	FDC *fdc.Controller
	HDC *hdc.Controller

	Keys  *keyboard.Queue
	Mouse *mouse.Mouse
	Sound *sound.Ring

	io *bus.IOBus

	mouseBytes []byte
}

// New constructs a Machine, loads and installs its ROM set from cfg.ROMDir,
// and resets the CPU to the ROM's entry point.
func New(log *logging.Logger, cfg Config) (*Machine, error) {
	m := &Machine{log: log}

	m.Bus = bus.New()
	m.PIC = pic.New(log)
	m.DMA = dma.New()
	m.PPI = ppi.New(log, m.PIC, ppi.Config{Model: mapModel(cfg.Machine), Video: cfg.Video, Floppies: cfg.Floppies})
	m.Sound = sound.NewRing()
	m.PIT = pit.New(log, m.PIC, m.DMA, m.PPI, m.Sound)
	mem := busDMAMemory{bus: m.Bus}
	m.FDC = fdc.New(log, m.PIC, m.DMA, mem)
	m.HDC = hdc.New(log, m.PIC, m.DMA, mem)

	m.ROM = rom.New(log, cfg.Machine, cfg.Features)
	if err := m.ROM.Load(cfg.ROMDir); err != nil {
		return nil, err
	}
	m.ROM.Install(m.Bus)

	m.io = newIOBus(m)
	m.CPU = cpu.NewCPU(m.Bus, m.io)
	m.Keys = keyboard.New(m.PPI)
	m.Mouse = mouse.New(m)

	m.loadResetVector()
	return m, nil
}

// QueueByte implements mouse.SerialSink: bytes framed by Mouse accumulate
// here for the host to drain via DrainMouseBytes, standing in for the
// COM1 UART this core doesn't own.
func (m *Machine) QueueByte(b byte) {
	m.mouseBytes = append(m.mouseBytes, b)
}

// DrainMouseBytes returns and clears any serial-mouse bytes queued since
// the last call.
func (m *Machine) DrainMouseBytes() []byte {
	out := m.mouseBytes
	m.mouseBytes = nil
	return out
}

func mapModel(mt rom.MachineType) ppi.Model {
	if mt == rom.MachinePC5150 {
		return ppi.ModelPC5150
	}
	return ppi.ModelXT5160
}

func (m *Machine) loadResetVector() {
	cs, ip := m.ROM.EntryPoint()
	m.CPU.CS = cs
	m.CPU.IP = ip
}

// Reset reinitializes every chip and reloads the ROM entry vector — a
// reboot, not a power cycle: mounted floppy/hard-disk images are left
// alone.
func (m *Machine) Reset() {
	m.CPU.Reset()
	m.PIC.Reset()
	m.PIT.Reset()
	m.PPI.Reset()
	m.DMA.Reset()
	m.FDC.Reset()
	m.HDC.Reset()
	m.ROM.ResetPatches()
	m.ROM.Install(m.Bus)
	m.loadResetVector()
}

// KeyPress/KeyRelease feed the host's key events into the XT scan code
// queue; see internal/keyboard for the single-byte-shift-register model.
func (m *Machine) KeyPress(xtCode byte)   { m.Keys.Press(xtCode) }
func (m *Machine) KeyRelease(xtCode byte) { m.Keys.Release(xtCode) }

// MouseUpdate frames one Microsoft-serial-mouse packet from host-reported
// button state and motion deltas.
func (m *Machine) MouseUpdate(left, right bool, dx, dy float64) {
	m.Mouse.Update(left, right, dx, dy)
}

// MouseRTS advances the mouse's RTS line-reset timer by us microseconds
// with the host's current RTS line level.
func (m *Machine) MouseRTS(us float64, rts bool) {
	m.Mouse.Run(us, rts)
}

// tickPeripherals advances the PIT (and, transitively, DMA refresh and the
// PPI speaker sample) by cpuCycles CPU cycles' worth of PIT ticks, and the
// PPI's own wall-clock keyboard timer by the equivalent microseconds.
func (m *Machine) tickPeripherals(cpuCycles int) {
	m.PIT.Run(cpuCycles)
	m.PPI.Run(float64(cpuCycles) * cyclesToUs)
	m.Keys.Service()
}

// sampleInterrupt performs one INTR sample-and-acknowledge: if the PIC has
// an unmasked request and the CPU isn't inhibited, it vectors through the
// IVT in low memory and wakes a halted CPU.
func (m *Machine) sampleInterrupt() {
	if !m.CPU.InterruptPending(m.PIC.Pending()) {
		return
	}
	vector, ok := m.PIC.Acknowledge()
	if !ok {
		return
	}
	m.CPU.EnterInterrupt(vector)
	m.CPU.Halted = false
}
