package cpu

// execArith implements ADD/ADC/SUB/SBB/CMP/INC/DEC/NEG/MUL/IMUL/DIV/IDIV and
// the small BCD-adjust/sign-extend family (AAA/AAS/AAM/AAD/DAA/DAS/CBW/CWD).
func (c *CPU) execArith(ins Instruction, seg int) StepOutcome {
	is16 := ins.Op1.Size == 2 || (ins.Op1.Type == OpNone && ins.Op2.Size == 2)
	switch ins.Mnemonic {
	case ADD, ADC, SUB, SBB, CMP:
		return c.execArithBinary(ins, seg, is16)
	case INC, DEC:
		return c.execIncDec(ins, seg, ins.Op1.Size == 2)
	case NEG:
		return c.execNeg(ins, seg, ins.Op1.Size == 2)
	case MUL, IMUL:
		return c.execMul(ins, seg)
	case DIV, IDIV:
		return c.execDiv(ins, seg)
	case AAA:
		c.aaa()
	case AAS:
		c.aas()
	case AAM:
		return c.aam(byte(ins.Op1.Imm))
	case AAD:
		c.aad(byte(ins.Op1.Imm))
	case DAA:
		c.daa()
	case DAS:
		c.das()
	case CBW:
		if byte(c.AX)&0x80 != 0 {
			c.AX = 0xFF00 | c.AX&0xFF
		} else {
			c.AX &= 0x00FF
		}
	case CWD:
		if c.AX&0x8000 != 0 {
			c.DX = 0xFFFF
		} else {
			c.DX = 0
		}
	}
	return StepOutcome{Result: Okay}
}

func (c *CPU) execArithBinary(ins Instruction, seg int, is16 bool) StepOutcome {
	var carry uint16
	if (ins.Mnemonic == ADC || ins.Mnemonic == SBB) && c.CF() {
		carry = 1
	}
	sub := ins.Mnemonic == SUB || ins.Mnemonic == SBB || ins.Mnemonic == CMP

	if is16 {
		a := c.readOperand16(ins.Op1, seg)
		b := c.readOperand16(ins.Op2, seg)
		var result uint32
		var bEff uint16
		if sub {
			bEff = b + carry
			result = uint32(a) - uint32(bEff)
		} else {
			bEff = b + carry
			result = uint32(a) + uint32(bEff)
		}
		c.setFlagsArith16(result, a, bEff, sub)
		if ins.Mnemonic != CMP {
			c.writeOperand16(ins.Op1, seg, uint16(result))
		}
	} else {
		a := c.readOperand8(ins.Op1, seg)
		b := c.readOperand8(ins.Op2, seg)
		var result uint16
		var bEff byte
		if sub {
			bEff = b + byte(carry)
			result = uint16(a) - uint16(bEff)
		} else {
			bEff = b + byte(carry)
			result = uint16(a) + uint16(bEff)
		}
		c.setFlagsArith8(result, a, bEff, sub)
		if ins.Mnemonic != CMP {
			c.writeOperand8(ins.Op1, seg, byte(result))
		}
	}
	c.cyclesThisInstr += 2
	return StepOutcome{Result: Okay}
}

func (c *CPU) execIncDec(ins Instruction, seg int, is16 bool) StepOutcome {
	isInc := ins.Mnemonic == INC
	if is16 {
		a := c.readOperand16(ins.Op1, seg)
		var result uint32
		if isInc {
			result = uint32(a) + 1
		} else {
			result = uint32(a) - 1
		}
		c.setFlagsIncDec16(result, a, isInc)
		c.writeOperand16(ins.Op1, seg, uint16(result))
	} else {
		a := c.readOperand8(ins.Op1, seg)
		var result uint16
		if isInc {
			result = uint16(a) + 1
		} else {
			result = uint16(a) - 1
		}
		c.setFlagsIncDec8(result, a, isInc)
		c.writeOperand8(ins.Op1, seg, byte(result))
	}
	return StepOutcome{Result: Okay}
}

func (c *CPU) execNeg(ins Instruction, seg int, is16 bool) StepOutcome {
	if is16 {
		a := c.readOperand16(ins.Op1, seg)
		result := uint32(0) - uint32(a)
		c.setFlagsArith16(result, 0, a, true)
		c.setFlagBit(FlagCF, a != 0)
		c.writeOperand16(ins.Op1, seg, uint16(result))
	} else {
		a := c.readOperand8(ins.Op1, seg)
		result := uint16(0) - uint16(a)
		c.setFlagsArith8(result, 0, a, true)
		c.setFlagBit(FlagCF, a != 0)
		c.writeOperand8(ins.Op1, seg, byte(result))
	}
	return StepOutcome{Result: Okay}
}

func (c *CPU) execMul(ins Instruction, seg int) StepOutcome {
	signed := ins.Mnemonic == IMUL
	if ins.Op1.Size == 2 {
		b := c.readOperand16(ins.Op1, seg)
		var full uint32
		var overflow bool
		if signed {
			p := int32(int16(c.AX)) * int32(int16(b))
			full = uint32(p)
			overflow = p != int32(int16(uint16(p)))
		} else {
			full = uint32(c.AX) * uint32(b)
			overflow = full > 0xFFFF
		}
		c.AX = uint16(full)
		c.DX = uint16(full >> 16)
		c.setFlagBit(FlagCF, overflow)
		c.setFlagBit(FlagOF, overflow)
	} else {
		b := c.readOperand8(ins.Op1, seg)
		var full uint16
		var overflow bool
		if signed {
			p := int16(int8(byte(c.AX))) * int16(int8(b))
			full = uint16(p)
			overflow = p != int16(int8(byte(p)))
		} else {
			full = uint16(byte(c.AX)) * uint16(b)
			overflow = full > 0xFF
		}
		c.AX = full
		c.setFlagBit(FlagCF, overflow)
		c.setFlagBit(FlagOF, overflow)
	}
	c.cyclesThisInstr += 70
	return StepOutcome{Result: Okay}
}

func (c *CPU) execDiv(ins Instruction, seg int) StepOutcome {
	signed := ins.Mnemonic == IDIV
	if ins.Op1.Size == 2 {
		divisor := c.readOperand16(ins.Op1, seg)
		dividend := uint32(c.DX)<<16 | uint32(c.AX)
		if divisor == 0 {
			return c.raiseDivideException()
		}
		if signed {
			sd := int32(dividend)
			q := sd / int32(int16(divisor))
			r := sd % int32(int16(divisor))
			if q > 32767 || q < -32768 {
				return c.raiseDivideException()
			}
			c.AX = uint16(int16(q))
			c.DX = uint16(int16(r))
		} else {
			q := dividend / uint32(divisor)
			r := dividend % uint32(divisor)
			if q > 0xFFFF {
				return c.raiseDivideException()
			}
			c.AX = uint16(q)
			c.DX = uint16(r)
		}
	} else {
		divisor := c.readOperand8(ins.Op1, seg)
		dividend := c.AX
		if divisor == 0 {
			return c.raiseDivideException()
		}
		if signed {
			sd := int16(dividend)
			q := sd / int16(int8(divisor))
			r := sd % int16(int8(divisor))
			if q > 127 || q < -128 {
				return c.raiseDivideException()
			}
			c.setReg8(0, byte(int8(q)))
			c.setReg8(4, byte(int8(r)))
		} else {
			q := dividend / uint16(divisor)
			r := dividend % uint16(divisor)
			if q > 0xFF {
				return c.raiseDivideException()
			}
			c.setReg8(0, byte(q))
			c.setReg8(4, byte(r))
		}
	}
	c.cyclesThisInstr += 80
	return StepOutcome{Result: Okay}
}

// raiseDivideException vectors through IVT[0] without committing the
// destination write. The return address pushed must be the DIV/IDIV
// instruction's own address, not the next instruction's: a faulting DIV
// never completes, so resuming at the instruction after it would skip the
// divide entirely rather than retry it after a handler fixes up the
// operands. Step has already advanced IP past the instruction by the time
// this runs, so IP is rewound to instrIP before vectoring.
func (c *CPU) raiseDivideException() StepOutcome {
	c.IP = c.instrIP
	c.EnterInterrupt(0)
	return StepOutcome{Result: Exception, Vector: 0, Err: ErrDivideOverflow}
}

func (c *CPU) aaa() {
	if byte(c.AX)&0x0F > 9 || c.AF() {
		c.AX += 0x106
		c.setFlagBit(FlagAF, true)
		c.setFlagBit(FlagCF, true)
	} else {
		c.setFlagBit(FlagAF, false)
		c.setFlagBit(FlagCF, false)
	}
	c.AX &= 0xFF0F
}

func (c *CPU) aas() {
	if byte(c.AX)&0x0F > 9 || c.AF() {
		c.AX -= 6
		c.setReg8(4, c.reg8(4)-1)
		c.setFlagBit(FlagAF, true)
		c.setFlagBit(FlagCF, true)
	} else {
		c.setFlagBit(FlagAF, false)
		c.setFlagBit(FlagCF, false)
	}
	c.AX &= 0xFF0F
}

func (c *CPU) aam(base byte) StepOutcome {
	if base == 0 {
		return c.raiseDivideException()
	}
	al := byte(c.AX)
	c.setReg8(4, al/base)
	c.setReg8(0, al%base)
	c.setFlagsLogic8(byte(c.AX))
	return StepOutcome{Result: Okay}
}

func (c *CPU) aad(base byte) {
	al := byte(c.AX)
	ah := byte(c.AX >> 8)
	result := ah*base + al
	c.setReg8(0, result)
	c.setReg8(4, 0)
	c.setFlagsLogic8(result)
}

func (c *CPU) daa() {
	al := byte(c.AX)
	oldAL, oldCF := al, c.CF()
	var cf bool
	if al&0x0F > 9 || c.AF() {
		cf = oldCF || al > 0xF9
		al += 6
		c.setFlagBit(FlagAF, true)
	} else {
		c.setFlagBit(FlagAF, false)
	}
	if oldAL > 0x99 || oldCF {
		al += 0x60
		cf = true
	}
	c.setFlagBit(FlagCF, cf)
	c.setReg8(0, al)
	c.setFlagsLogic8(al)
}

func (c *CPU) das() {
	al := byte(c.AX)
	oldAL, oldCF := al, c.CF()
	var cf bool
	if al&0x0F > 9 || c.AF() {
		cf = oldCF || al < 6
		al -= 6
		c.setFlagBit(FlagAF, true)
	} else {
		c.setFlagBit(FlagAF, false)
	}
	if oldAL > 0x99 || oldCF {
		al -= 0x60
		cf = true
	}
	c.setFlagBit(FlagCF, cf)
	c.setReg8(0, al)
	c.setFlagsLogic8(al)
}
