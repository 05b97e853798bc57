package cpu

// execMisc implements everything dispatch() doesn't route elsewhere: data
// movement (MOV/PUSH/POP/XCHG/LEA/LDS/LES/XLAT/IN/OUT/LAHF/SAHF), the flag
// bit instructions, HLT/WAIT/NOP, and the pushf/popf pseudo-mnemonics the
// decoder produces for 0x9C/0x9D in place of plain PUSH/POP.
func (c *CPU) execMisc(ins Instruction, seg int) StepOutcome {
	switch ins.Mnemonic {
	case MOV:
		c.execMov(ins, seg)
	case PUSH:
		c.pushWord(c.readOperand16(ins.Op1, seg))
	case POP:
		v := c.popWord()
		c.writeOperand16(ins.Op1, seg, v)
	case pushf:
		c.pushWord(c.Flags)
	case popf:
		c.Flags = c.popWord()
		c.normalizeFlags()
	case XCHG:
		c.execXchg(ins, seg)
	case LEA:
		addr := c.effectiveAddress(ins.Op2, -1)
		c.writeOperand16(ins.Op1, seg, uint16(addr&0xFFFF))
	case LDS:
		c.loadFarPointer(ins, seg, SegDS)
	case LES:
		c.loadFarPointer(ins, seg, SegES)
	case XLAT:
		addr := Linear(c.segOf(seg), c.BX+uint16(byte(c.AX)))
		c.setReg8(0, c.Bus.ReadU8(addr, &c.cyclesThisInstr))
	case IN:
		c.execIn(ins)
	case OUT:
		c.execOut(ins)
	case LAHF:
		c.setReg8(4, byte(c.Flags))
	case SAHF:
		c.Flags = c.Flags&0xFF00 | uint16(c.reg8(4))
		c.normalizeFlags()
	case CLC:
		c.setFlagBit(FlagCF, false)
	case STC:
		c.setFlagBit(FlagCF, true)
	case CMC:
		c.setFlagBit(FlagCF, !c.CF())
	case CLD:
		c.setFlagBit(FlagDF, false)
	case STD:
		c.setFlagBit(FlagDF, true)
	case CLI:
		c.setFlagBit(FlagIF, false)
	case STI:
		c.setFlagBit(FlagIF, true)
		c.InhibitInterrupt = true
	case HLT:
		c.Halted = true
	case WAIT, NOP, LOCKPfx:
		// no-ops on this core: there is no coprocessor to wait on and no
		// bus lock to assert against concurrent access.
	}
	return StepOutcome{Result: Okay}
}

func (c *CPU) execMov(ins Instruction, seg int) {
	if ins.Op1.Size == 2 || ins.Op1.Type == OpSegReg {
		c.writeOperand16(ins.Op1, seg, c.readOperand16(ins.Op2, seg))
		if ins.Op1.Type == OpSegReg && ins.Op1.Reg == SegSS {
			c.InhibitInterrupt = true
		}
	} else {
		c.writeOperand8(ins.Op1, seg, c.readOperand8(ins.Op2, seg))
	}
}

func (c *CPU) execXchg(ins Instruction, seg int) {
	if ins.Op1.Size == 2 {
		a := c.readOperand16(ins.Op1, seg)
		b := c.readOperand16(ins.Op2, seg)
		c.writeOperand16(ins.Op1, seg, b)
		c.writeOperand16(ins.Op2, seg, a)
	} else {
		a := c.readOperand8(ins.Op1, seg)
		b := c.readOperand8(ins.Op2, seg)
		c.writeOperand8(ins.Op1, seg, b)
		c.writeOperand8(ins.Op2, seg, a)
	}
}

func (c *CPU) loadFarPointer(ins Instruction, seg int, destSeg int) {
	addr := c.effectiveAddress(ins.Op2, seg)
	off := c.Bus.ReadU16(addr, &c.cyclesThisInstr)
	segVal := c.Bus.ReadU16(addr+2, &c.cyclesThisInstr)
	c.writeOperand16(ins.Op1, seg, off)
	c.setSegReg(destSeg, segVal)
}

func (c *CPU) execIn(ins Instruction) {
	port := c.inOutPort(ins.Op2)
	if ins.Op1.Size == 2 {
		c.AX = c.IO.InU16(port)
	} else {
		c.setReg8(0, c.IO.InU8(port))
	}
}

func (c *CPU) execOut(ins Instruction) {
	port := c.inOutPort(ins.Op1)
	if ins.Op2.Size == 2 {
		c.IO.OutU16(port, c.readOperand16(ins.Op2, -1))
	} else {
		c.IO.OutU8(port, c.readOperand8(ins.Op2, -1))
	}
}

func (c *CPU) inOutPort(op Operand) uint16 {
	if op.Type == OpImmediate8 {
		return uint16(op.Imm)
	}
	return c.DX
}
