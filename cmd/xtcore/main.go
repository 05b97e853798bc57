// Command xtcore is a headless debug console for the emulator core: it
// loads a ROM set, then drives single-stepping, breakpoints, and free-run
// from the keyboard while dumping CPU state to stdout. It owns no video or
// audio output device — those are host/GUI concerns outside this core.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/xtcore/xtcore/internal/cpu"
	"github.com/xtcore/xtcore/internal/logging"
	"github.com/xtcore/xtcore/internal/machine"
	"github.com/xtcore/xtcore/internal/ppi"
	"github.com/xtcore/xtcore/internal/rom"
)

func main() {
	romDir := flag.String("rom", "roms", "directory containing the ROM image set")
	machineFlag := flag.String("machine", "xt", "machine type: xt or pc")
	videoFlag := flag.String("video", "cga", "video DIP setting: mda or cga")
	floppies := flag.Int("floppies", 1, "number of floppy drives reported to BIOS")
	budget := flag.Int("budget", 20000, "cycles per Run call in free-run mode")
	flag.Parse()

	fmt.Println("xtcore debug console — 8088 core, cycle-accurate enough to boot a BIOS")
	fmt.Println("commands: s=step o=step-over r=run b=set breakpoint c=clear breakpoint i=registers q=quit")

	log := logging.New(logging.LevelInfo)

	cfg := machine.Config{
		Machine:  parseMachineType(*machineFlag),
		Video:    parseVideoType(*videoFlag),
		Floppies: *floppies,
		ROMDir:   *romDir,
	}

	m, err := machine.New(log, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "xtcore: failed to build machine: %v\n", err)
		os.Exit(1)
	}

	console := &debugConsole{m: m, budget: *budget, ctl: &machine.ExecutionControl{State: machine.Paused}}
	console.run()
}

func parseMachineType(s string) rom.MachineType {
	if strings.EqualFold(s, "pc") {
		return rom.MachinePC5150
	}
	return rom.MachineXT5160
}

func parseVideoType(s string) ppi.VideoType {
	if strings.EqualFold(s, "mda") {
		return ppi.VideoMDA
	}
	return ppi.VideoCGAHires
}

// debugConsole reads single-character commands from a raw-mode stdin and
// drives the machine's Run loop, printing register state after each step.
type debugConsole struct {
	m      *machine.Machine
	ctl    *machine.ExecutionControl
	budget int

	breakpointAddr uint32
	haveBreakpoint bool
}

func (d *debugConsole) run() {
	fd := int(os.Stdin.Fd())
	oldState, rawErr := term.MakeRaw(fd)
	if rawErr == nil {
		defer term.Restore(fd, oldState)
	}

	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if n == 0 || err != nil {
			return
		}
		switch buf[0] {
		case 's':
			d.ctl.Pending = machine.PendingStep
			d.step()
		case 'o':
			d.ctl.Pending = machine.PendingStepOver
			d.step()
		case 'r':
			d.ctl.Pending = machine.PendingRun
			d.step()
		case 'b':
			d.promptBreakpoint(fd, oldState)
		case 'c':
			d.haveBreakpoint = false
			fmt.Print("\r\nbreakpoint cleared\r\n")
		case 'i':
			d.dumpRegisters()
		case 'q':
			return
		}
	}
}

func (d *debugConsole) bp() uint32 {
	if d.haveBreakpoint {
		return d.breakpointAddr
	}
	return 1 << 24 // outside the 20-bit address space: unreachable
}

func (d *debugConsole) step() {
	outcome := d.m.Run(d.budget, d.ctl, d.bp())
	fmt.Printf("\r\nresult=%v cycles=%d\r\n", outcome.Result, outcome.CyclesCharged)
	if trace := d.m.CPU.Trace(); len(trace) > 0 {
		fmt.Printf("\r%s\r\n", cpu.Disassemble(trace[len(trace)-1]))
	}
	d.dumpRegisters()
}

func (d *debugConsole) dumpRegisters() {
	c := d.m.CPU
	fmt.Printf("\rAX=%04X BX=%04X CX=%04X DX=%04X SP=%04X BP=%04X SI=%04X DI=%04X\r\n", c.AX, c.BX, c.CX, c.DX, c.SP, c.BP, c.SI, c.DI)
	fmt.Printf("\rCS=%04X IP=%04X SS=%04X DS=%04X ES=%04X FLAGS=%04X\r\n", c.CS, c.IP, c.SS, c.DS, c.ES, c.Flags)
}

// promptBreakpoint temporarily restores cooked mode to read a hex address
// line, then returns stdin to raw mode for single-character commands.
func (d *debugConsole) promptBreakpoint(fd int, oldState *term.State) {
	if oldState != nil {
		term.Restore(fd, oldState)
	}
	fmt.Print("\r\nbreakpoint address (hex): ")
	var line string
	fmt.Scanln(&line)
	if v, err := strconv.ParseUint(strings.TrimSpace(line), 16, 32); err == nil {
		d.breakpointAddr = uint32(v)
		d.haveBreakpoint = true
		fmt.Printf("breakpoint set at %05X\r\n", d.breakpointAddr)
	}
	if oldState != nil {
		term.MakeRaw(fd)
	}
}
