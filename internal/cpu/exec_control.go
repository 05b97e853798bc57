package cpu

// execControl implements all control-transfer mnemonics: CALL/CALLF/JMP/
// JMPF/RET/RETF/INT/INT3/INTO/IRET, the LOOP family, JCXZ, and every Jcc
// predicate. By the time this runs, c.IP already points past the
// instruction's encoded bytes (Step advances it before dispatch), so that
// value is both "the return address" for CALL and the base for Jcc/LOOP
// relative targets.
func (c *CPU) execControl(ins Instruction, seg int) StepOutcome {
	switch ins.Mnemonic {
	case CALL:
		return c.call(ins, seg, false)
	case CALLF:
		return c.call(ins, seg, true)
	case JMP:
		return c.jump(ins, seg, false)
	case JMPF:
		return c.jump(ins, seg, true)
	case RET:
		return c.ret(ins, false)
	case RETF:
		return c.ret(ins, true)
	case INT:
		c.EnterInterrupt(byte(ins.Op1.Imm))
		return StepOutcome{Result: OkayJump}
	case INT3:
		c.EnterInterrupt(3)
		return StepOutcome{Result: OkayJump}
	case INTO:
		if c.OF() {
			c.EnterInterrupt(4)
			return StepOutcome{Result: OkayJump}
		}
	case IRET:
		c.Iret()
		return StepOutcome{Result: OkayJump}
	case LOOP:
		c.CX--
		if c.CX != 0 {
			c.takeRelative(ins.Op1)
			return StepOutcome{Result: OkayJump}
		}
	case LOOPE:
		c.CX--
		if c.CX != 0 && c.ZF() {
			c.takeRelative(ins.Op1)
			return StepOutcome{Result: OkayJump}
		}
	case LOOPNE:
		c.CX--
		if c.CX != 0 && !c.ZF() {
			c.takeRelative(ins.Op1)
			return StepOutcome{Result: OkayJump}
		}
	case JCXZ:
		if c.CX == 0 {
			c.takeRelative(ins.Op1)
			return StepOutcome{Result: OkayJump}
		}
	default:
		if isJcc(ins.Mnemonic) && c.evalJcc(ins.Mnemonic) {
			c.takeRelative(ins.Op1)
			return StepOutcome{Result: OkayJump}
		}
	}
	return StepOutcome{Result: Okay}
}

func (c *CPU) takeRelative(op Operand) {
	c.IP += uint16(int16(op.Imm))
}

func (c *CPU) call(ins Instruction, seg int, far bool) StepOutcome {
	retAddr := Linear(c.CS, c.IP)
	if far {
		c.pushWord(c.CS)
		c.pushWord(c.IP)
		if ins.Op1.Type == OpFarAddress {
			c.CS = ins.Op1.Seg
			c.IP = ins.Op1.Off
		} else {
			addr := c.effectiveAddress(ins.Op1, seg)
			var cost int
			off := c.Bus.ReadU16(addr, &cost)
			newSeg := c.Bus.ReadU16(addr+2, &cost)
			c.IP = off
			c.CS = newSeg
		}
	} else {
		c.pushWord(c.IP)
		if ins.Op1.Type == OpRelative16 {
			c.IP += uint16(int16(ins.Op1.Imm))
		} else {
			c.IP = c.readOperand16(ins.Op1, seg)
		}
	}
	c.Bus.SetFlags(retAddr, returnSiteFlag)
	c.pushCallFrame(retAddr)
	return StepOutcome{Result: OkayJump}
}

func (c *CPU) jump(ins Instruction, seg int, far bool) StepOutcome {
	if far {
		if ins.Op1.Type == OpFarAddress {
			c.CS = ins.Op1.Seg
			c.IP = ins.Op1.Off
		} else {
			addr := c.effectiveAddress(ins.Op1, seg)
			var cost int
			off := c.Bus.ReadU16(addr, &cost)
			newSeg := c.Bus.ReadU16(addr+2, &cost)
			c.IP = off
			c.CS = newSeg
		}
		return StepOutcome{Result: OkayJump}
	}
	switch ins.Op1.Type {
	case OpRelative8, OpRelative16:
		c.IP += uint16(int16(ins.Op1.Imm))
	default:
		c.IP = c.readOperand16(ins.Op1, seg)
	}
	return StepOutcome{Result: OkayJump}
}

func (c *CPU) ret(ins Instruction, far bool) StepOutcome {
	ip := c.popWord()
	var newCS uint16
	if far {
		newCS = c.popWord()
	}
	var adjust uint16
	if ins.Op1.Type == OpImmediate16 {
		adjust = ins.Op1.Imm
	}
	c.IP = ip
	if far {
		c.CS = newCS
	}
	c.SP += adjust
	return StepOutcome{Result: OkayJump}
}

func isJcc(m Mnemonic) bool {
	switch m {
	case JO, JNO, JB, JNB, JZ, JNZ, JBE, JA, JS, JNS, JP, JNP, JL, JGE, JLE, JG:
		return true
	}
	return false
}

func (c *CPU) evalJcc(m Mnemonic) bool {
	switch m {
	case JO:
		return c.OF()
	case JNO:
		return !c.OF()
	case JB:
		return c.CF()
	case JNB:
		return !c.CF()
	case JZ:
		return c.ZF()
	case JNZ:
		return !c.ZF()
	case JBE:
		return c.CF() || c.ZF()
	case JA:
		return !c.CF() && !c.ZF()
	case JS:
		return c.SF()
	case JNS:
		return !c.SF()
	case JP:
		return c.PF()
	case JNP:
		return !c.PF()
	case JL:
		return c.SF() != c.OF()
	case JGE:
		return c.SF() == c.OF()
	case JLE:
		return c.ZF() || c.SF() != c.OF()
	case JG:
		return !c.ZF() && c.SF() == c.OF()
	}
	return false
}
