package cpu

import "errors"

// ErrDivideOverflow is raised by DIV/IDIV on quotient overflow or divide by
// zero; it is handled in-band as CPU exception vector 0, never surfaced to
// the host except in diagnostic mode.
var ErrDivideOverflow = errors.New("divide overflow")

// stringMnemonics are the only opcodes REP may legally prefix; REP on
// anything else is a no-op: CX is not decremented, the prefix is ignored.
var stringMnemonics = map[Mnemonic]bool{
	MOVSB: true, MOVSW: true, CMPSB: true, CMPSW: true,
	SCASB: true, SCASW: true, LODSB: true, LODSW: true, STOSB: true, STOSW: true,
}

// opcodeZeroThreshold is the consecutive-0x00 runaway safeguard: once the
// count reaches it the CPU halts and clears IF so the host visibly stops
// rather than looping through uninitialized memory.
const opcodeZeroThreshold = 6

// Step executes one primitive of work and returns how many cycles it
// charged: for every instruction except a REP-prefixed string op this is
// the whole instruction, but a REP in progress retires exactly one
// primitive per call (Result OkayRep) and leaves IP parked on the
// instruction so the caller's loop gets a chance to sample interrupts
// before the next primitive runs.
func (c *CPU) Step() StepOutcome {
	linear := Linear(c.CS, c.IP)

	// (1) RET-flag call-stack shadow unwind, used by the debugger's
	// backtrace view; it never changes execution semantics.
	if c.Bus.Flags(linear)&returnSiteFlag != 0 {
		c.unwindCallStack(linear)
	}

	c.cyclesThisInstr = 0

	cur := NewCursor(c.fetchWindow(linear))
	ins, err := Decode(cur)
	if err != nil {
		return StepOutcome{Result: UnsupportedOpcode, Opcode: ins.Opcode, Err: err}
	}

	if ins.Opcode == 0x00 {
		c.zeroRun++
		if c.zeroRun >= opcodeZeroThreshold {
			c.Halted = true
			c.setFlagBit(FlagIF, false)
			c.IP += uint16(ins.Len)
			return StepOutcome{Result: Halt}
		}
	} else {
		c.zeroRun = 0
	}

	if ins.Rep != 0 && !stringMnemonics[ins.Mnemonic] {
		ins.Rep = 0 // REP on a non-string opcode: ignored, CX untouched.
	}

	c.instrIP = c.IP
	c.IP += uint16(ins.Len)
	c.recordTrace(ins)

	// The STI/MOV-SS inhibit covers only the boundary right after that
	// instruction; it lapses as soon as the next instruction starts.
	c.InhibitInterrupt = false
	res := c.dispatch(ins)
	res.CyclesCharged = c.cyclesThisInstr
	return res
}

const returnSiteFlag = 1 << 2 // mirrors bus.FlagReturnSite; cpu avoids importing bus

// fetchWindow hands the decoder maxLen (8) bytes starting at linear: the
// longest 8088 instruction form this decoder produces (opcode + ModR/M +
// disp16 + imm16, six bytes) plus two bytes of prefixes, wrapping at the
// 1 MiB boundary like any other bus access.
func (c *CPU) fetchWindow(linear uint32) []byte {
	const maxLen = 8
	buf := make([]byte, maxLen)
	var discard int
	for i := range buf {
		buf[i] = c.Bus.ReadU8((linear+uint32(i))&0xFFFFF, &discard)
	}
	return buf
}

// unwindCallStack pops the shadow call stack down to (and including) the
// frame matching addr, so stray RETs into the middle of the shadow (a
// mismatched stack from self-modifying code, or a ROM checkpoint skipping a
// call) don't leave it arbitrarily deep.
func (c *CPU) unwindCallStack(addr uint32) {
	for i := len(c.CallStack) - 1; i >= 0; i-- {
		if c.CallStack[i] == addr {
			c.CallStack = c.CallStack[:i]
			return
		}
	}
}

func (c *CPU) pushCallFrame(returnAddr uint32) {
	c.CallStack = append(c.CallStack, returnAddr)
}

// dispatch executes one decoded instruction's semantics.
func (c *CPU) dispatch(ins Instruction) StepOutcome {
	seg := ins.SegOverride

	switch {
	case isArith(ins.Mnemonic):
		return c.execArith(ins, seg)
	case isLogic(ins.Mnemonic):
		return c.execLogic(ins, seg)
	case isShift(ins.Mnemonic):
		return c.execShift(ins, seg)
	case stringMnemonics[ins.Mnemonic]:
		return c.execString(ins, seg)
	case isControl(ins.Mnemonic):
		return c.execControl(ins, seg)
	default:
		return c.execMisc(ins, seg)
	}
}

func isArith(m Mnemonic) bool {
	switch m {
	case ADD, ADC, SUB, SBB, CMP, INC, DEC, NEG, MUL, IMUL, DIV, IDIV, AAA, AAS, AAM, AAD, DAA, DAS, CBW, CWD:
		return true
	}
	return false
}

func isLogic(m Mnemonic) bool {
	switch m {
	case AND, OR, XOR, NOT, TEST:
		return true
	}
	return false
}

func isShift(m Mnemonic) bool {
	switch m {
	case ROL, ROR, RCL, RCR, SHL, SHR, SAR:
		return true
	}
	return false
}

func isControl(m Mnemonic) bool {
	switch m {
	case CALL, CALLF, JMP, JMPF, RET, RETF, INT, INT3, INTO, IRET,
		LOOP, LOOPE, LOOPNE, JCXZ,
		JO, JNO, JB, JNB, JZ, JNZ, JBE, JA, JS, JNS, JP, JNP, JL, JGE, JLE, JG:
		return true
	}
	return false
}

// InterruptPending reports whether the CPU should vector through an
// interrupt on the next instruction boundary, honoring IF and the
// one-instruction inhibit after STI/MOV-to-SS.
func (c *CPU) InterruptPending(lineAsserted bool) bool {
	if c.InhibitInterrupt {
		return false
	}
	return lineAsserted && c.IF()
}

// EnterInterrupt performs the INT n entry sequence: push FLAGS, clear IF
// and TF, push CS, push IP, load CS:IP from the vector table at physical
// address n*4. If a REP-prefixed string op is mid-iteration (IP still
// parked on it), its SI/DI/CX/DS/ES are snapshotted first so Iret can
// restore them exactly on return even if the handler this vectors into
// disturbs those registers.
func (c *CPU) EnterInterrupt(vector byte) {
	if c.InRep {
		c.pushRepSave()
	}
	c.pushWord(c.Flags)
	c.setFlagBit(FlagIF, false)
	c.setFlagBit(FlagTF, false)
	c.pushWord(c.CS)
	c.pushWord(c.IP)
	addr := uint32(vector) * 4
	var cost int
	off := c.Bus.ReadU16(addr, &cost)
	seg := c.Bus.ReadU16(addr+2, &cost)
	c.IP = off
	c.CS = seg
}

// Iret performs the IRET sequence: pop IP, CS, FLAGS (reserved bits
// renormalized after the restore, since IRET can load an arbitrary value),
// then checks the rep-save stack for an entry matching the resumed CS:IP
// so a REP preempted mid-iteration picks its registers back up exactly.
func (c *CPU) Iret() {
	c.IP = c.popWord()
	c.CS = c.popWord()
	c.Flags = c.popWord()
	c.normalizeFlags()
	c.popRepSave()
}

// pushRepSave snapshots the in-progress REP primitive's registers, keyed
// by the instruction's own (CS,IP), onto the fixed-capacity save array.
// Nesting depth during string ops is effectively 1 in practice; a deeper
// nest than the array holds just isn't saved, since no known DOS-era
// software re-enters a second REP from inside the first's ISR.
func (c *CPU) pushRepSave() {
	if c.repSaveCount >= len(c.repSaves) {
		return
	}
	c.repSaves[c.repSaveCount] = repSave{
		addr: Linear(c.CS, c.IP),
		ds:   c.DS, es: c.ES,
		si: c.SI, di: c.DI, cx: c.CX,
	}
	c.repSaveCount++
}

// popRepSave restores the rep-save entry whose address exactly matches the
// CS:IP IRET just resumed at, if any, and marks the REP active again.
func (c *CPU) popRepSave() {
	addr := Linear(c.CS, c.IP)
	for i := c.repSaveCount - 1; i >= 0; i-- {
		if c.repSaves[i].addr != addr {
			continue
		}
		s := c.repSaves[i]
		c.DS, c.ES, c.SI, c.DI, c.CX = s.ds, s.es, s.si, s.di, s.cx
		c.InRep = true
		c.repSaveCount--
		c.repSaves[i] = c.repSaves[c.repSaveCount]
		return
	}
}
