package cpu

import "fmt"

var mnemonicNames = map[Mnemonic]string{
	Invalid: "???",

	MOV: "MOV", PUSH: "PUSH", POP: "POP", XCHG: "XCHG", IN: "IN", OUT: "OUT",
	XLAT: "XLAT", LEA: "LEA", LDS: "LDS", LES: "LES", LAHF: "LAHF", SAHF: "SAHF",

	ADD: "ADD", ADC: "ADC", SUB: "SUB", SBB: "SBB", CMP: "CMP", INC: "INC",
	DEC: "DEC", NEG: "NEG", MUL: "MUL", IMUL: "IMUL", DIV: "DIV", IDIV: "IDIV",
	AAA: "AAA", AAS: "AAS", AAM: "AAM", AAD: "AAD", DAA: "DAA", DAS: "DAS",
	CBW: "CBW", CWD: "CWD",

	AND: "AND", OR: "OR", XOR: "XOR", NOT: "NOT", TEST: "TEST",

	ROL: "ROL", ROR: "ROR", RCL: "RCL", RCR: "RCR", SHL: "SHL", SHR: "SHR", SAR: "SAR",

	MOVSB: "MOVSB", MOVSW: "MOVSW", CMPSB: "CMPSB", CMPSW: "CMPSW",
	SCASB: "SCASB", SCASW: "SCASW", LODSB: "LODSB", LODSW: "LODSW",
	STOSB: "STOSB", STOSW: "STOSW",

	CALL: "CALL", CALLF: "CALLF", JMP: "JMP", JMPF: "JMPF", RET: "RET",
	RETF: "RETF", INT: "INT", INT3: "INT3", INTO: "INTO", IRET: "IRET",
	LOOP: "LOOP", LOOPE: "LOOPE", LOOPNE: "LOOPNE", JCXZ: "JCXZ",
	JO: "JO", JNO: "JNO", JB: "JB", JNB: "JNB", JZ: "JZ", JNZ: "JNZ",
	JBE: "JBE", JA: "JA", JS: "JS", JNS: "JNS", JP: "JP", JNP: "JNP",
	JL: "JL", JGE: "JGE", JLE: "JLE", JG: "JG",

	CLC: "CLC", STC: "STC", CMC: "CMC", CLD: "CLD", STD: "STD",
	CLI: "CLI", STI: "STI", HLT: "HLT", WAIT: "WAIT", NOP: "NOP", LOCKPfx: "LOCK",
}

// String names a Mnemonic the way disassembly listings do; unrecognized
// values (there shouldn't be any) fall back to "???" rather than panicking.
func (m Mnemonic) String() string {
	if s, ok := mnemonicNames[m]; ok {
		return s
	}
	return "???"
}

var reg8Names = [8]string{"AL", "CL", "DL", "BL", "AH", "CH", "DH", "BH"}
var reg16Names = [8]string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI"}
var segRegNames = [4]string{"ES", "CS", "SS", "DS"}

var addrModeBase = map[AddressingMode]string{
	AddrBXSI: "BX+SI", AddrBXDI: "BX+DI", AddrBPSI: "BP+SI", AddrBPDI: "BP+DI",
	AddrSI: "SI", AddrDI: "DI", AddrBX: "BX", AddrBPDisp: "BP",
	AddrBXSIDisp: "BX+SI", AddrBXDIDisp: "BX+DI", AddrBPSIDisp: "BP+SI",
	AddrBPDIDisp: "BP+DI", AddrSIDisp: "SI", AddrDIDisp: "DI", AddrBXDisp: "BX",
}

// formatOperand renders one decoded Operand the way a disassembly listing
// would; it never touches memory, so it reports the addressing form rather
// than the value that form resolves to.
func formatOperand(op Operand) string {
	switch op.Type {
	case OpNone:
		return ""
	case OpImmediate8, OpImmediate16:
		return fmt.Sprintf("0x%X", op.Imm)
	case OpOffset8, OpOffset16:
		return fmt.Sprintf("[0x%X]", op.Off)
	case OpRelative8, OpRelative16:
		return fmt.Sprintf("%+d", int16(op.Imm))
	case OpRegister8:
		return reg8Names[op.Reg&7]
	case OpRegister16:
		return reg16Names[op.Reg&7]
	case OpSegReg:
		return segRegNames[op.Reg&3]
	case OpNearAddress:
		return fmt.Sprintf("0x%X", op.Off)
	case OpFarAddress:
		return fmt.Sprintf("%04X:%04X", op.Seg, op.Off)
	case OpMemory:
		if op.Mode == AddrDirect {
			return fmt.Sprintf("[0x%X]", uint16(op.Disp))
		}
		base := addrModeBase[op.Mode]
		if op.Disp == 0 {
			return fmt.Sprintf("[%s]", base)
		}
		if op.Disp > 0 {
			return fmt.Sprintf("[%s+0x%X]", base, op.Disp)
		}
		return fmt.Sprintf("[%s-0x%X]", base, -op.Disp)
	default:
		return "?"
	}
}

// Disassemble renders a decoded Instruction as a single-line listing, e.g.
// "MOV AX, 0x1234" or "JZ +16". It never reads memory: relative targets are
// shown as the encoded displacement, not the resolved address, since the
// caller usually already knows IP.
func Disassemble(ins Instruction) string {
	prefix := ""
	if ins.Rep == 1 {
		prefix = "REP "
	} else if ins.Rep == 2 {
		prefix = "REPNE "
	}
	if ins.Lock {
		prefix = "LOCK " + prefix
	}

	name := ins.Mnemonic.String()
	op1 := formatOperand(ins.Op1)
	op2 := formatOperand(ins.Op2)

	switch {
	case op1 == "" && op2 == "":
		return prefix + name
	case op2 == "":
		return fmt.Sprintf("%s%s %s", prefix, name, op1)
	default:
		return fmt.Sprintf("%s%s %s, %s", prefix, name, op1, op2)
	}
}
