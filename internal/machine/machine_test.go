package machine

import (
	"testing"

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

// newTestMachine wires every chip the same way New does, but skips ROM
// discovery: tests load a tiny hand-assembled program directly into RAM
// instead of booting a real BIOS image.
func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	log := logging.New(logging.LevelInfo)

	m := &Machine{log: log}
	m.Bus = bus.New()
	m.PIC = pic.New(log)
	m.DMA = dma.New()
	m.PPI = ppi.New(log, m.PIC, ppi.Config{Model: ppi.ModelXT5160, Video: ppi.VideoCGAHires, Floppies: 1})
	m.Sound = sound.NewRing()
	m.PIT = pit.New(log, m.PIC, m.DMA, m.PPI, m.Sound)
	mem := busDMAMemory{bus: m.Bus}
	m.FDC = fdc.New(log, m.PIC, m.DMA, mem)
	m.HDC = hdc.New(log, m.PIC, m.DMA, mem)
	m.ROM = rom.New(log, rom.MachineXT5160, nil)
	m.io = newIOBus(m)
	m.CPU = cpu.NewCPU(m.Bus, m.io)
	m.Keys = keyboard.New(m.PPI)
	m.Mouse = mouse.New(m)
	return m
}

// load writes a program at CS:IP=0:0x0100 and points the CPU there.
func (m *Machine) load(t *testing.T, program []byte) {
	t.Helper()
	m.CPU.CS = 0
	m.CPU.IP = 0x0100
	m.Bus.CopyFrom(program, 0x0100, false)
}

func TestRunExecutesUntilHalt(t *testing.T) {
	m := newTestMachine(t)
	// MOV AX, 0x1234; HLT
	m.load(t, []byte{0xB8, 0x34, 0x12, 0xF4})

	ctl := &ExecutionControl{}
	outcome := m.Run(10_000, ctl, 1<<24)

	if outcome.Result != cpu.Halt {
		t.Fatalf("result = %v, want Halt", outcome.Result)
	}
	if m.CPU.AX != 0x1234 {
		t.Fatalf("AX = %#04x, want 0x1234", m.CPU.AX)
	}
	if ctl.State != Halted {
		t.Fatalf("ctl.State = %v, want Halted", ctl.State)
	}
}

func TestRunStopsAtBreakpointBeforeExecutingIt(t *testing.T) {
	m := newTestMachine(t)
	// MOV AX, 0x0001; MOV BX, 0x0002; HLT
	m.load(t, []byte{0xB8, 0x01, 0x00, 0xBB, 0x02, 0x00, 0xF4})

	bp := cpu.Linear(0, 0x0103) // address of the second MOV
	ctl := &ExecutionControl{}
	outcome := m.Run(10_000, ctl, bp)

	if outcome.Result != cpu.BreakpointHit {
		t.Fatalf("result = %v, want BreakpointHit", outcome.Result)
	}
	if m.CPU.AX != 0x0001 || m.CPU.BX != 0 {
		t.Fatalf("AX=%#04x BX=%#04x, want AX=1 BX=0 (stopped before the second MOV)", m.CPU.AX, m.CPU.BX)
	}
	if ctl.State != BreakpointHit {
		t.Fatalf("ctl.State = %v, want BreakpointHit", ctl.State)
	}
}

func TestRunStepExecutesExactlyOneInstruction(t *testing.T) {
	m := newTestMachine(t)
	m.load(t, []byte{0xB8, 0x01, 0x00, 0xBB, 0x02, 0x00, 0xF4})

	ctl := &ExecutionControl{Pending: PendingStep}
	m.Run(10_000, ctl, 1<<24)

	if m.CPU.AX != 1 || m.CPU.BX != 0 {
		t.Fatalf("after one Step: AX=%#04x BX=%#04x, want AX=1 BX=0", m.CPU.AX, m.CPU.BX)
	}
	if ctl.State != Paused {
		t.Fatalf("ctl.State = %v, want Paused after Step", ctl.State)
	}
}

func TestResetReloadsHardwareResetVector(t *testing.T) {
	m := newTestMachine(t)
	m.load(t, []byte{0xF4})
	m.CPU.AX = 0xBEEF

	m.Reset()

	if m.CPU.CS != 0xFFFF || m.CPU.IP != 0 {
		t.Fatalf("CS:IP = %04X:%04X, want FFFF:0000 (no ROM set loaded)", m.CPU.CS, m.CPU.IP)
	}
	if m.CPU.AX != 0 {
		t.Fatalf("AX = %#04x, want 0 after reset", m.CPU.AX)
	}
}

func TestKeyPressDeliversScancodeThroughPPI(t *testing.T) {
	m := newTestMachine(t)

	m.KeyPress(0x1E) // 'A' make code
	if m.PPI.KeyboardIdle() {
		t.Fatal("expected PPI to report busy immediately after a scancode is injected")
	}
}
