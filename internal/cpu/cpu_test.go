package cpu

import "testing"

// flatMemory is a 1 MiB byte array standing in for bus.Bus: enough of the
// Memory interface to decode and execute instructions without pulling in
// the IO/DMA/ROM machinery a real Bus wires together.
type flatMemory struct {
	data  [1 << 20]byte
	flags [1 << 20]byte
}

func (m *flatMemory) ReadU8(addr uint32, cost *int) byte { return m.data[addr&0xFFFFF] }
func (m *flatMemory) ReadU16(addr uint32, cost *int) uint16 {
	lo := uint16(m.data[addr&0xFFFFF])
	hi := uint16(m.data[(addr+1)&0xFFFFF])
	return lo | hi<<8
}
func (m *flatMemory) WriteU8(addr uint32, v byte, log func(string, ...any)) {
	m.data[addr&0xFFFFF] = v
}
func (m *flatMemory) WriteU16(addr uint32, v uint16, log func(string, ...any)) {
	m.data[addr&0xFFFFF] = byte(v)
	m.data[(addr+1)&0xFFFFF] = byte(v >> 8)
}
func (m *flatMemory) Flags(addr uint32) byte          { return m.flags[addr&0xFFFFF] }
func (m *flatMemory) SetFlags(addr uint32, bits byte) { m.flags[addr&0xFFFFF] |= bits }

func (m *flatMemory) load(addr uint32, program []byte) {
	copy(m.data[addr:], program)
}

type noopIO struct{}

func (noopIO) InU8(port uint16) byte          { return 0xFF }
func (noopIO) OutU8(port uint16, v byte)      {}
func (noopIO) InU16(port uint16) uint16       { return 0xFFFF }
func (noopIO) OutU16(port uint16, v uint16)   {}

func newTestCPU() (*CPU, *flatMemory) {
	mem := &flatMemory{}
	c := NewCPU(mem, noopIO{})
	c.CS, c.IP = 0, 0x0100
	return c, mem
}

func TestAddAXImmSetsZeroAndParityFlags(t *testing.T) {
	c, mem := newTestCPU()
	mem.load(Linear(c.CS, c.IP), []byte{0x05, 0x00, 0x00}) // ADD AX, 0

	outcome := c.Step()

	if outcome.Result != Okay {
		t.Fatalf("result = %v, want Okay", outcome.Result)
	}
	if !c.ZF() || !c.PF() {
		t.Fatalf("flags = %#04x, want ZF and PF set for AX+0=0", c.Flags)
	}
	if c.CF() || c.OF() {
		t.Fatalf("flags = %#04x, want CF/OF clear", c.Flags)
	}
}

func TestIncPreservesCarryFlag(t *testing.T) {
	c, mem := newTestCPU()
	mem.load(Linear(c.CS, c.IP), []byte{0x40}) // INC AX
	c.setFlagBit(FlagCF, true)

	c.Step()

	if !c.CF() {
		t.Fatal("INC must not touch CF")
	}
}

func TestDivideByZeroRaisesExceptionWithoutAdvancingIP(t *testing.T) {
	c, mem := newTestCPU()
	start := c.IP
	mem.load(Linear(c.CS, c.IP), []byte{0xF6, 0xF3}) // DIV BL
	c.AX = 0x0100
	c.BX = 0 // BL = 0

	outcome := c.Step()

	if outcome.Result != Exception || outcome.Vector != 0 {
		t.Fatalf("outcome = %+v, want Exception vector 0", outcome)
	}
	// IVT[0] is zeroed in this fake memory, so the faulting DIV vectors to
	// CS:IP = 0000:0000.
	if c.CS != 0 || c.IP != 0 {
		t.Fatalf("CS:IP = %04X:%04X, want 0000:0000 (vector 0 unset in test memory)", c.CS, c.IP)
	}
	pushedIP := mem.ReadU16(Linear(c.SS, c.SP), nil)
	if pushedIP != start {
		t.Fatalf("pushed return IP = %#04x, want %#04x (the DIV's own address, so resuming retries it rather than skipping it)", pushedIP, start)
	}
}

func TestCallPushesReturnAddressAndRetRestoresIt(t *testing.T) {
	c, mem := newTestCPU()
	c.SP = 0xFFFE
	c.SS = 0
	// at 0100: CALL rel16 to 0200 (3-byte CALL, target = 0103+0xFD = 0200)
	// encode CALL 0x0200 directly: E8 rel16 where rel16 = target - (IP after call)
	callAt := uint32(0x0100)
	target := uint16(0x0200)
	after := uint16(callAt) + 3
	rel := target - after
	mem.load(Linear(c.CS, c.IP), []byte{0xE8, byte(rel), byte(rel >> 8)})
	mem.load(Linear(c.CS, target), []byte{0xC3}) // RET

	outcome := c.Step()
	if outcome.Result != OkayJump {
		t.Fatalf("CALL result = %v, want OkayJump", outcome.Result)
	}
	if c.IP != target {
		t.Fatalf("IP = %#04x after CALL, want %#04x", c.IP, target)
	}
	if len(c.CallStack) != 1 || c.CallStack[0] != Linear(0, after) {
		t.Fatalf("CallStack = %v, want [%#x]", c.CallStack, Linear(0, after))
	}

	outcome = c.Step() // RET
	if outcome.Result != OkayJump {
		t.Fatalf("RET result = %v, want OkayJump", outcome.Result)
	}
	if c.IP != after {
		t.Fatalf("IP = %#04x after RET, want %#04x (back past the CALL)", c.IP, after)
	}
}

func TestJzTakenWhenZeroFlagSet(t *testing.T) {
	c, mem := newTestCPU()
	mem.load(Linear(c.CS, c.IP), []byte{0x74, 0x10}) // JZ +16
	c.setFlagBit(FlagZF, true)
	start := c.IP

	outcome := c.Step()

	if outcome.Result != OkayJump {
		t.Fatalf("result = %v, want OkayJump", outcome.Result)
	}
	if want := start + 2 + 0x10; c.IP != want {
		t.Fatalf("IP = %#04x, want %#04x", c.IP, want)
	}
}

func TestInt3VectorsThroughIVTAndPushesFlags(t *testing.T) {
	c, mem := newTestCPU()
	c.SP = 0xFFFE
	c.SS = 0
	mem.load(Linear(c.CS, c.IP), []byte{0xCC}) // INT3
	mem.WriteU16(3*4, 0x4000, nil)             // IVT[3] offset
	mem.WriteU16(3*4+2, 0x1000, nil)           // IVT[3] segment
	c.Flags |= FlagIF

	outcome := c.Step()

	if outcome.Result != OkayJump {
		t.Fatalf("result = %v, want OkayJump", outcome.Result)
	}
	if c.CS != 0x1000 || c.IP != 0x4000 {
		t.Fatalf("CS:IP = %04X:%04X, want 1000:4000", c.CS, c.IP)
	}
	if c.IF() {
		t.Fatal("INT entry must clear IF")
	}
	// Stack from SP: IP, CS, FLAGS; the pushed FLAGS are the pre-interrupt ones.
	if pushed := mem.ReadU16(Linear(c.SS, c.SP+4), nil); pushed&FlagIF == 0 {
		t.Fatalf("pushed FLAGS = %#04x, want IF set (the flags before the interrupt)", pushed)
	}
}

func TestRepMovswRetiresOnePrimitivePerStep(t *testing.T) {
	c, mem := newTestCPU()
	mem.load(Linear(c.CS, c.IP), []byte{0xF3, 0xA5}) // REP MOVSW
	start := c.IP
	c.DS, c.SI = 0, 0x2000
	c.ES, c.DI = 0, 0x3000
	c.CX = 4
	for i := uint16(0); i < 4; i++ {
		mem.WriteU16(Linear(c.DS, 0x2000+i*2), 0xAA00+i, nil)
	}

	for i := 0; i < 3; i++ {
		outcome := c.Step()
		if outcome.Result != OkayRep {
			t.Fatalf("step %d result = %v, want OkayRep (3 iterations still outstanding)", i, outcome.Result)
		}
		if c.IP != start {
			t.Fatalf("step %d IP = %#04x, want %#04x (parked on the REP instruction)", i, c.IP, start)
		}
		if !c.InRep {
			t.Fatalf("step %d InRep = false, want true", i)
		}
		if want := uint16(3 - i); c.CX != want {
			t.Fatalf("step %d CX = %d, want %d", i, c.CX, want)
		}
	}

	final := c.Step()
	if final.Result != Okay {
		t.Fatalf("final step result = %v, want Okay", final.Result)
	}
	if c.CX != 0 {
		t.Fatalf("CX = %d after REP MOVSW, want 0", c.CX)
	}
	if c.InRep {
		t.Fatal("InRep must clear once the REP retires its last primitive")
	}
	if want := start + 2; c.IP != want {
		t.Fatalf("IP = %#04x after REP MOVSW completes, want %#04x", c.IP, want)
	}
	for i := uint16(0); i < 4; i++ {
		got := mem.ReadU16(Linear(c.ES, 0x3000+i*2), nil)
		if want := 0xAA00 + i; got != want {
			t.Fatalf("word %d = %#04x, want %#04x", i, got, want)
		}
	}
}

// TestRepResumptionInvariance is the REP resumption invariance property:
// running a string op under REP with CX=N straight through must produce the
// same final CPU state as running it with an interrupt injected after
// primitive k<N that IRETs back immediately, even when the handler it ran
// clobbers the very registers the REP depends on.
func TestRepResumptionInvariance(t *testing.T) {
	setup := func(c *CPU, mem *flatMemory) {
		mem.load(Linear(c.CS, c.IP), []byte{0xF3, 0xA5}) // REP MOVSW
		c.DS, c.SI = 0, 0x2000
		c.ES, c.DI = 0, 0x3000
		c.CX = 4
		for i := uint16(0); i < 4; i++ {
			mem.WriteU16(Linear(c.DS, 0x2000+i*2), 0xAA00+i, nil)
		}
	}

	straight, memA := newTestCPU()
	setup(straight, memA)
	for {
		if out := straight.Step(); out.Result != OkayRep {
			break
		}
	}

	interrupted, memB := newTestCPU()
	setup(interrupted, memB)
	memB.WriteU16(2*4, 0x5000, nil) // IVT[2]: offset
	memB.WriteU16(2*4+2, 0x9000, nil)
	memB.load(Linear(0x9000, 0x5000), []byte{
		0xBE, 0xFF, 0xFF, // MOV SI, 0xFFFF  (handler clobbers SI)
		0xCF,             // IRET
	})
	interrupted.SS, interrupted.SP = 0, 0xFFFE
	interrupted.Flags |= FlagIF

	primitives := 0
	for {
		out := interrupted.Step()
		primitives++
		if primitives == 2 {
			interrupted.EnterInterrupt(2) // injected after primitive k=2
			for interrupted.Step().Result != OkayJump {
				// run the handler (MOV SI then IRET) to completion
			}
		}
		if out.Result != OkayRep {
			break
		}
	}

	if interrupted.SI != straight.SI || interrupted.DI != straight.DI || interrupted.CX != straight.CX {
		t.Fatalf("interrupted final SI/DI/CX = %04X/%04X/%04X, want %04X/%04X/%04X (matching uninterrupted run)",
			interrupted.SI, interrupted.DI, interrupted.CX, straight.SI, straight.DI, straight.CX)
	}
	for i := uint16(0); i < 4; i++ {
		a := memA.ReadU16(Linear(0, 0x3000+i*2), nil)
		b := memB.ReadU16(Linear(0, 0x3000+i*2), nil)
		if a != b {
			t.Fatalf("word %d = %#04x interrupted vs %#04x uninterrupted, want equal", i, b, a)
		}
	}
}

func TestOpcodeZeroRunawayHalts(t *testing.T) {
	c, mem := newTestCPU()
	mem.load(Linear(c.CS, c.IP), make([]byte, opcodeZeroThreshold))

	var last StepOutcome
	for i := 0; i < opcodeZeroThreshold; i++ {
		last = c.Step()
	}

	if last.Result != Halt {
		t.Fatalf("result after %d zero opcodes = %v, want Halt", opcodeZeroThreshold, last.Result)
	}
	if c.IF() {
		t.Fatal("runaway halt must clear IF")
	}
}

func TestDisassembleFormatsImmediateAndMemoryOperands(t *testing.T) {
	mov := Instruction{Mnemonic: MOV, Op1: Operand{Type: OpRegister16, Reg: 0}, Op2: Operand{Type: OpImmediate16, Imm: 0x1234}}
	if got, want := Disassemble(mov), "MOV AX, 0x1234"; got != want {
		t.Fatalf("Disassemble(MOV AX,0x1234) = %q, want %q", got, want)
	}

	jz := Instruction{Mnemonic: JZ, Op1: Operand{Type: OpRelative8, Imm: 0x0010}}
	if got, want := Disassemble(jz), "JZ +16"; got != want {
		t.Fatalf("Disassemble(JZ +16) = %q, want %q", got, want)
	}

	repMovsw := Instruction{Mnemonic: MOVSW, Rep: 1}
	if got, want := Disassemble(repMovsw), "REP MOVSW"; got != want {
		t.Fatalf("Disassemble(REP MOVSW) = %q, want %q", got, want)
	}

	memOp := Instruction{Mnemonic: INC, Op1: Operand{Type: OpMemory, Mode: AddrBXSIDisp, Disp: 4}}
	if got, want := Disassemble(memOp), "INC [BX+SI+0x4]"; got != want {
		t.Fatalf("Disassemble(INC [BX+SI+4]) = %q, want %q", got, want)
	}
}

func TestInterruptPendingRespectsInhibitAfterSTI(t *testing.T) {
	c, _ := newTestCPU()
	c.Flags |= FlagIF
	c.InhibitInterrupt = true

	if c.InterruptPending(true) {
		t.Fatal("interrupt must not be taken the instruction right after STI")
	}
	c.InhibitInterrupt = false
	if !c.InterruptPending(true) {
		t.Fatal("interrupt should be taken once the inhibit window passes")
	}
}
