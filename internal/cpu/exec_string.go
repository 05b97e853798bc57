package cpu

// execString implements MOVSB/W, CMPSB/W, SCASB/W, LODSB/W, STOSB/W and the
// REP/REPE/REPNE prefixes. Source operands honor a segment override (DS:SI
// by default); the destination of MOVS/STOS/CMPS second operand is always
// ES:DI, which cannot be overridden on real hardware.
//
// A REP-prefixed op retires exactly one primitive per call, matching the
// real 8088 (which never advances IP past a REP until its count hits
// zero): if iterations remain after this primitive, IP is rewound back to
// the instruction's own start and Result is OkayRep, so the caller's loop
// gets a chance to sample interrupts — and charge PIT/DMA ticks — between
// every primitive instead of only between whole instructions.
func (c *CPU) execString(ins Instruction, seg int) StepOutcome {
	is16 := ins.Mnemonic == MOVSW || ins.Mnemonic == CMPSW || ins.Mnemonic == SCASW ||
		ins.Mnemonic == LODSW || ins.Mnemonic == STOSW

	if ins.Rep == 0 {
		c.runStringPrimitive(ins.Mnemonic, is16, seg)
		return StepOutcome{Result: Okay}
	}

	if c.CX == 0 {
		c.InRep = false
		return StepOutcome{Result: Okay}
	}

	c.runStringPrimitive(ins.Mnemonic, is16, seg)
	c.CX--

	done := c.CX == 0
	if !done && isCmpsOrScas(ins.Mnemonic) {
		switch ins.Rep {
		case 1: // REP/REPE: stop as soon as the comparison fails
			done = !c.ZF()
		case 2: // REPNE: stop as soon as the comparison matches
			done = c.ZF()
		}
	}

	if done {
		c.InRep = false
		return StepOutcome{Result: Okay}
	}

	c.InRep = true
	c.IP -= uint16(ins.Len)
	return StepOutcome{Result: OkayRep}
}

func isCmpsOrScas(m Mnemonic) bool {
	return m == CMPSB || m == CMPSW || m == SCASB || m == SCASW
}

func (c *CPU) runStringPrimitive(m Mnemonic, is16 bool, seg int) {
	switch m {
	case MOVSB, MOVSW:
		c.movs(is16, seg)
	case CMPSB, CMPSW:
		c.cmps(is16, seg)
	case SCASB, SCASW:
		c.scas(is16)
	case LODSB, LODSW:
		c.lods(is16, seg)
	case STOSB, STOSW:
		c.stos(is16)
	}
}

func (c *CPU) stringStep(is16 bool) uint16 {
	if is16 {
		if c.DF() {
			return 0xFFFE
		}
		return 2
	}
	if c.DF() {
		return 0xFFFF
	}
	return 1
}

func (c *CPU) movs(is16 bool, seg int) {
	step := c.stringStep(is16)
	srcSeg := c.segOf(seg)
	if is16 {
		v := c.Bus.ReadU16(Linear(srcSeg, c.SI), &c.cyclesThisInstr)
		c.Bus.WriteU16(Linear(c.ES, c.DI), v, nil)
	} else {
		v := c.Bus.ReadU8(Linear(srcSeg, c.SI), &c.cyclesThisInstr)
		c.Bus.WriteU8(Linear(c.ES, c.DI), v, nil)
	}
	c.SI += step
	c.DI += step
}

func (c *CPU) cmps(is16 bool, seg int) {
	step := c.stringStep(is16)
	srcSeg := c.segOf(seg)
	if is16 {
		a := c.Bus.ReadU16(Linear(srcSeg, c.SI), &c.cyclesThisInstr)
		b := c.Bus.ReadU16(Linear(c.ES, c.DI), &c.cyclesThisInstr)
		c.setFlagsArith16(uint32(a)-uint32(b), a, b, true)
	} else {
		a := c.Bus.ReadU8(Linear(srcSeg, c.SI), &c.cyclesThisInstr)
		b := c.Bus.ReadU8(Linear(c.ES, c.DI), &c.cyclesThisInstr)
		c.setFlagsArith8(uint16(a)-uint16(b), a, b, true)
	}
	c.SI += step
	c.DI += step
}

func (c *CPU) scas(is16 bool) {
	step := c.stringStep(is16)
	if is16 {
		b := c.Bus.ReadU16(Linear(c.ES, c.DI), &c.cyclesThisInstr)
		c.setFlagsArith16(uint32(c.AX)-uint32(b), c.AX, b, true)
	} else {
		al := byte(c.AX)
		b := c.Bus.ReadU8(Linear(c.ES, c.DI), &c.cyclesThisInstr)
		c.setFlagsArith8(uint16(al)-uint16(b), al, b, true)
	}
	c.DI += step
}

func (c *CPU) lods(is16 bool, seg int) {
	step := c.stringStep(is16)
	srcSeg := c.segOf(seg)
	if is16 {
		c.AX = c.Bus.ReadU16(Linear(srcSeg, c.SI), &c.cyclesThisInstr)
	} else {
		c.setReg8(0, c.Bus.ReadU8(Linear(srcSeg, c.SI), &c.cyclesThisInstr))
	}
	c.SI += step
}

func (c *CPU) stos(is16 bool) {
	step := c.stringStep(is16)
	if is16 {
		c.Bus.WriteU16(Linear(c.ES, c.DI), c.AX, nil)
	} else {
		c.Bus.WriteU8(Linear(c.ES, c.DI), byte(c.AX), nil)
	}
	c.DI += step
}
