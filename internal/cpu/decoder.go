package cpu

import "fmt"

// ErrUnsupportedOpcode is wrapped with the offending byte when decode fails
// to resolve a mnemonic, including after ModR/M group resolution.
var ErrUnsupportedOpcode = fmt.Errorf("unsupported opcode")

// opTemplate names an operand encoding shape; the decoder's third pass turns
// a template into a concrete Operand, reading whatever displacement/
// immediate bytes the shape requires.
type opTemplate int

const (
	tNone opTemplate = iota
	tEb        // ModR/M r/m, byte
	tGb        // ModR/M reg, byte
	tEv        // ModR/M r/m, word
	tGv        // ModR/M reg, word
	tIb        // immediate byte
	tIv        // immediate word
	tIbSignExt // immediate byte, sign-extended to word (0x83 group)
	tJb        // rel8 branch target
	tJv        // rel16 branch target
	tAL
	tAX
	tDX
	tOb // direct offset byte: [imm16]
	tOv // direct offset word: [imm16]
	tAp // far pointer imm16:imm16
	tSw // segment register, from ModR/M reg field
	tM  // memory-only operand (address form, no value fetch) for LEA/LDS/LES
	t1  // literal shift count 1
	tCL // CL register, shift count source
	tReg8Lo
	tReg16Lo
	tSegES // fixed segment register operand, for the 0x06/0x07-style PUSH/POP seg forms
	tSegCS
	tSegSS
	tSegDS
)

type decodeRecord struct {
	mnemonic Mnemonic
	t1, t2   opTemplate
	isGroup  bool
}

var primaryTable = map[byte]decodeRecord{}
var groupTable = map[byte]map[int]decodeRecord{}

func init() {
	buildPrimaryTable()
	buildGroupTables()
}

func add(op byte, m Mnemonic, t1, t2 opTemplate) { primaryTable[op] = decodeRecord{mnemonic: m, t1: t1, t2: t2} }
func addGroup(op byte) { primaryTable[op] = decodeRecord{isGroup: true} }

func buildPrimaryTable() {
	// Arithmetic families sharing the Eb/Gb,Ev/Gv,Gb/Eb,Gv/Ev,AL/Ib,AX/Iv
	// encoding pattern, base opcode per family laid out exactly as the
	// 8086 opcode map does (0x00 ADD .. 0x38 CMP, stride 8).
	families := []struct {
		base byte
		m    Mnemonic
	}{
		{0x00, ADD}, {0x08, OR}, {0x10, ADC}, {0x18, SBB},
		{0x20, AND}, {0x28, SUB}, {0x30, XOR}, {0x38, CMP},
	}
	for _, f := range families {
		add(f.base+0, f.m, tEb, tGb)
		add(f.base+1, f.m, tEv, tGv)
		add(f.base+2, f.m, tGb, tEb)
		add(f.base+3, f.m, tGv, tEv)
		add(f.base+4, f.m, tAL, tIb)
		add(f.base+5, f.m, tAX, tIv)
	}

	add(0x06, PUSH, tSegES, tNone)
	add(0x07, POP, tSegES, tNone)
	add(0x0E, PUSH, tSegCS, tNone)
	add(0x16, PUSH, tSegSS, tNone)
	add(0x17, POP, tSegSS, tNone)
	add(0x1E, PUSH, tSegDS, tNone)
	add(0x1F, POP, tSegDS, tNone)

	// INC/DEC r16 (0x40-0x4F), PUSH/POP r16 (0x50-0x5F)
	for i := byte(0); i < 8; i++ {
		add(0x40+i, INC, tReg16Lo, tNone)
		add(0x48+i, DEC, tReg16Lo, tNone)
		add(0x50+i, PUSH, tReg16Lo, tNone)
		add(0x58+i, POP, tReg16Lo, tNone)
	}

	// 0x60-0x6F alias to 0x70-0x7F conditional short jumps on the 8088.
	jccBase := []Mnemonic{JO, JNO, JB, JNB, JZ, JNZ, JBE, JA, JS, JNS, JP, JNP, JL, JGE, JLE, JG}
	for i, m := range jccBase {
		add(0x70+byte(i), m, tJb, tNone)
		add(0x60+byte(i), m, tJb, tNone)
	}

	add(0x80, Invalid, tNone, tNone)
	addGroup(0x80) // grp1 Eb,Ib
	add(0x81, Invalid, tNone, tNone)
	addGroup(0x81) // grp1 Ev,Iv
	add(0x82, Invalid, tNone, tNone)
	addGroup(0x82) // alias of 0x80
	add(0x83, Invalid, tNone, tNone)
	addGroup(0x83) // grp1 Ev,Ib(signext)

	add(0x84, TEST, tEb, tGb)
	add(0x85, TEST, tEv, tGv)
	add(0x86, XCHG, tEb, tGb)
	add(0x87, XCHG, tEv, tGv)
	add(0x88, MOV, tEb, tGb)
	add(0x89, MOV, tEv, tGv)
	add(0x8A, MOV, tGb, tEb)
	add(0x8B, MOV, tGv, tEv)
	add(0x8C, MOV, tEv, tSw) // reg field restricted to ES/CS/SS/DS
	add(0x8D, LEA, tGv, tM)
	add(0x8E, MOV, tSw, tEv) // reg field restricted to ES/CS/SS/DS
	add(0x8F, POP, tEv, tNone)

	add(0x90, NOP, tNone, tNone)
	for i := byte(1); i < 8; i++ {
		add(0x90+i, XCHG, tAX, opTemplate(int(tReg16Lo))) // XCHG AX, r16
	}
	add(0x98, CBW, tNone, tNone)
	add(0x99, CWD, tNone, tNone)
	add(0x9A, CALLF, tAp, tNone)
	add(0x9B, WAIT, tNone, tNone)
	add(0x9C, PUSH, tNone, tNone) // PUSHF handled specially by mnemonic override below
	add(0x9D, POP, tNone, tNone)  // POPF
	add(0x9E, SAHF, tNone, tNone)
	add(0x9F, LAHF, tNone, tNone)

	add(0xA0, MOV, tAL, tOb)
	add(0xA1, MOV, tAX, tOv)
	add(0xA2, MOV, tOb, tAL)
	add(0xA3, MOV, tOv, tAX)
	add(0xA4, MOVSB, tNone, tNone)
	add(0xA5, MOVSW, tNone, tNone)
	add(0xA6, CMPSB, tNone, tNone)
	add(0xA7, CMPSW, tNone, tNone)
	add(0xA8, TEST, tAL, tIb)
	add(0xA9, TEST, tAX, tIv)
	add(0xAA, STOSB, tNone, tNone)
	add(0xAB, STOSW, tNone, tNone)
	add(0xAC, LODSB, tNone, tNone)
	add(0xAD, LODSW, tNone, tNone)
	add(0xAE, SCASB, tNone, tNone)
	add(0xAF, SCASW, tNone, tNone)

	for i := byte(0); i < 8; i++ {
		add(0xB0+i, MOV, tReg8Lo, tIb)
		add(0xB8+i, MOV, tReg16Lo, tIv)
	}

	add(0xC0, Invalid, tNone, tNone)
	addGroup(0xC0) // shift grp2 Eb,Ib
	add(0xC1, Invalid, tNone, tNone)
	addGroup(0xC1) // shift grp2 Ev,Ib
	add(0xC2, RET, tIv, tNone)
	add(0xC3, RET, tNone, tNone)
	add(0xC4, LES, tGv, tM)
	add(0xC5, LDS, tGv, tM)
	add(0xC6, MOV, tEb, tIb)
	add(0xC7, MOV, tEv, tIv)
	add(0xCA, RETF, tIv, tNone)
	add(0xCB, RETF, tNone, tNone)
	add(0xCC, INT3, tNone, tNone)
	add(0xCD, INT, tIb, tNone)
	add(0xCE, INTO, tNone, tNone)
	add(0xCF, IRET, tNone, tNone)

	add(0xD0, Invalid, tNone, tNone)
	addGroup(0xD0) // shift grp2 Eb,1
	add(0xD1, Invalid, tNone, tNone)
	addGroup(0xD1) // shift grp2 Ev,1
	add(0xD2, Invalid, tNone, tNone)
	addGroup(0xD2) // shift grp2 Eb,CL
	add(0xD3, Invalid, tNone, tNone)
	addGroup(0xD3) // shift grp2 Ev,CL
	add(0xD4, AAM, tIb, tNone)
	add(0xD5, AAD, tIb, tNone)
	add(0xD7, XLAT, tNone, tNone)

	add(0xE0, LOOPNE, tJb, tNone)
	add(0xE1, LOOPE, tJb, tNone)
	add(0xE2, LOOP, tJb, tNone)
	add(0xE3, JCXZ, tJb, tNone)
	add(0xE4, IN, tAL, tIb)
	add(0xE5, IN, tAX, tIb)
	add(0xE6, OUT, tIb, tAL)
	add(0xE7, OUT, tIb, tAX)
	add(0xE8, CALL, tJv, tNone)
	add(0xE9, JMP, tJv, tNone)
	add(0xEA, JMPF, tAp, tNone)
	add(0xEB, JMP, tJb, tNone)
	add(0xEC, IN, tAL, tDX)
	add(0xED, IN, tAX, tDX)
	add(0xEE, OUT, tDX, tAL)
	add(0xEF, OUT, tDX, tAX)

	add(0xF4, HLT, tNone, tNone)
	add(0xF5, CMC, tNone, tNone)
	add(0xF6, Invalid, tNone, tNone)
	addGroup(0xF6) // grp3 Eb
	add(0xF7, Invalid, tNone, tNone)
	addGroup(0xF7) // grp3 Ev
	add(0xF8, CLC, tNone, tNone)
	add(0xF9, STC, tNone, tNone)
	add(0xFA, CLI, tNone, tNone)
	add(0xFB, STI, tNone, tNone)
	add(0xFC, CLD, tNone, tNone)
	add(0xFD, STD, tNone, tNone)
	add(0xFE, Invalid, tNone, tNone)
	addGroup(0xFE) // grp4 Eb: INC/DEC
	add(0xFF, Invalid, tNone, tNone)
	addGroup(0xFF) // grp5 Ev: INC/DEC/CALL/CALLF/JMP/JMPF/PUSH/(reserved)

	add(0x37, AAA, tNone, tNone)
	add(0x3F, AAS, tNone, tNone)
	add(0x27, DAA, tNone, tNone)
	add(0x2F, DAS, tNone, tNone)
	add(0xF0, LOCKPfx, tNone, tNone)
}

func buildGroupTables() {
	// Group 1: ADD/OR/ADC/SBB/AND/SUB/XOR/CMP, reg field selects operation.
	grp1 := []Mnemonic{ADD, OR, ADC, SBB, AND, SUB, XOR, CMP}
	g80 := map[int]decodeRecord{}
	g81 := map[int]decodeRecord{}
	g83 := map[int]decodeRecord{}
	for i, m := range grp1 {
		g80[i] = decodeRecord{mnemonic: m, t1: tEb, t2: tIb}
		g81[i] = decodeRecord{mnemonic: m, t1: tEv, t2: tIv}
		g83[i] = decodeRecord{mnemonic: m, t1: tEv, t2: tIbSignExt}
	}
	groupTable[0x80] = g80
	groupTable[0x82] = g80 // 0x82 is an alias of 0x80
	groupTable[0x81] = g81
	groupTable[0x83] = g83

	// Group 2: shift/rotate, reg field selects operation.
	grp2 := []Mnemonic{ROL, ROR, RCL, RCR, SHL, SHR, Invalid, SAR}
	grp2[6] = SHL // reg==6 is an undocumented alias of SHL on real hardware
	mk := func(t1, t2 opTemplate) map[int]decodeRecord {
		g := map[int]decodeRecord{}
		for i, m := range grp2 {
			g[i] = decodeRecord{mnemonic: m, t1: t1, t2: t2}
		}
		return g
	}
	groupTable[0xC0] = mk(tEb, tIb)
	groupTable[0xC1] = mk(tEv, tIb)
	groupTable[0xD0] = mk(tEb, t1)
	groupTable[0xD1] = mk(tEv, t1)
	groupTable[0xD2] = mk(tEb, tCL)
	groupTable[0xD3] = mk(tEv, tCL)

	// Group 3: TEST/TEST/NOT/NEG/MUL/IMUL/DIV/IDIV.
	g6 := map[int]decodeRecord{
		0: {mnemonic: TEST, t1: tEb, t2: tIb},
		1: {mnemonic: TEST, t1: tEb, t2: tIb},
		2: {mnemonic: NOT, t1: tEb},
		3: {mnemonic: NEG, t1: tEb},
		4: {mnemonic: MUL, t1: tEb},
		5: {mnemonic: IMUL, t1: tEb},
		6: {mnemonic: DIV, t1: tEb},
		7: {mnemonic: IDIV, t1: tEb},
	}
	g7 := map[int]decodeRecord{
		0: {mnemonic: TEST, t1: tEv, t2: tIv},
		1: {mnemonic: TEST, t1: tEv, t2: tIv},
		2: {mnemonic: NOT, t1: tEv},
		3: {mnemonic: NEG, t1: tEv},
		4: {mnemonic: MUL, t1: tEv},
		5: {mnemonic: IMUL, t1: tEv},
		6: {mnemonic: DIV, t1: tEv},
		7: {mnemonic: IDIV, t1: tEv},
	}
	groupTable[0xF6] = g6
	groupTable[0xF7] = g7

	// Group 4: INC/DEC, byte operand only.
	groupTable[0xFE] = map[int]decodeRecord{
		0: {mnemonic: INC, t1: tEb},
		1: {mnemonic: DEC, t1: tEb},
	}

	// Group 5: INC/DEC/CALL near/CALL far/JMP near/JMP far/PUSH/(reserved).
	groupTable[0xFF] = map[int]decodeRecord{
		0: {mnemonic: INC, t1: tEv},
		1: {mnemonic: DEC, t1: tEv},
		2: {mnemonic: CALL, t1: tEv},
		3: {mnemonic: CALLF, t1: tM},
		4: {mnemonic: JMP, t1: tEv},
		5: {mnemonic: JMPF, t1: tM},
		6: {mnemonic: PUSH, t1: tEv},
		7: {mnemonic: Invalid},
	}

	// 0x8C/0x8E restrict the reg field to segment registers (ES/CS/SS/DS);
	// decode still reads a normal ModR/M, the executor clamps reg&3.
}

// Decode reads one instruction from c, honoring the prefix loop, opcode
// dispatch, ModR/M group resolution, and operand fetch in that order.
func Decode(c *Cursor) (Instruction, error) {
	var ins Instruction
	ins.SegOverride = -1

	for {
		b, ok := c.Peek()
		if !ok {
			return ins, fmt.Errorf("%w: truncated prefix", ErrUnsupportedOpcode)
		}
		switch b {
		case 0x26:
			ins.SegOverride = SegES
		case 0x2E:
			ins.SegOverride = SegCS
		case 0x36:
			ins.SegOverride = SegSS
		case 0x3E:
			ins.SegOverride = SegDS
		case 0xF0:
			ins.Lock = true
		case 0xF2:
			ins.Rep = 2
		case 0xF3:
			ins.Rep = 1
		case 0x9B:
			ins.Wait = true
		default:
			goto opcode
		}
		c.ReadU8()
	}
opcode:
	op, ok := c.ReadU8()
	if !ok {
		return ins, fmt.Errorf("%w: truncated opcode", ErrUnsupportedOpcode)
	}
	ins.Opcode = op

	rec, ok := primaryTable[op]
	if !ok {
		return ins, fmt.Errorf("%w: 0x%02X", ErrUnsupportedOpcode, op)
	}

	if rec.isGroup {
		modrm, ok := c.Peek()
		if !ok {
			return ins, fmt.Errorf("%w: truncated ModR/M for group 0x%02X", ErrUnsupportedOpcode, op)
		}
		regField := int(modrm>>3) & 7
		grp := groupTable[op]
		gr, ok := grp[regField]
		if !ok || gr.mnemonic == Invalid {
			return ins, fmt.Errorf("%w: 0x%02X /%d", ErrUnsupportedOpcode, op, regField)
		}
		rec = gr
	}

	// Retroactively fix up special-cased opcodes that share an entry but
	// need a distinct mnemonic depending on context (PUSHF/POPF share the
	// byte-form-only PUSH/POP slot at 0x9C/0x9D and take no operand).
	switch op {
	case 0x9C:
		rec.mnemonic = pushf
	case 0x9D:
		rec.mnemonic = popf
	}

	if rec.mnemonic == Invalid {
		return ins, fmt.Errorf("%w: 0x%02X", ErrUnsupportedOpcode, op)
	}
	ins.Mnemonic = rec.mnemonic

	var modrmByte byte
	var haveModRM bool
	needsModRM := rec.t1 == tEb || rec.t1 == tEv || rec.t1 == tGb || rec.t1 == tGv || rec.t1 == tM || rec.t1 == tSw ||
		rec.t2 == tEb || rec.t2 == tEv || rec.t2 == tGb || rec.t2 == tGv || rec.t2 == tM || rec.t2 == tSw
	var mod, regField, rm int
	var disp int16
	if needsModRM {
		modrmByte, ok = c.ReadU8()
		if !ok {
			return ins, fmt.Errorf("%w: truncated ModR/M", ErrUnsupportedOpcode)
		}
		haveModRM = true
		mod = int(modrmByte>>6) & 3
		regField = int(modrmByte>>3) & 7
		rm = int(modrmByte) & 7
		if op == 0x8C || op == 0x8E {
			regField &= 3
		}
		var err error
		disp, err = readDisp(c, mod, rm)
		if err != nil {
			return ins, err
		}
	} else {
		// Opcodes with a register embedded in their low 3 bits (INC/DEC/
		// PUSH/POP r16, XCHG AX,r16, MOV r,imm) carry no ModR/M; resolve
		// that register straight from the opcode byte.
		rm = int(op & 7)
	}

	o1, err := resolveOperand(c, rec.t1, true, haveModRM, mod, regField, rm, disp)
	if err != nil {
		return ins, err
	}
	o2, err := resolveOperand(c, rec.t2, false, haveModRM, mod, regField, rm, disp)
	if err != nil {
		return ins, err
	}
	ins.Op1, ins.Op2 = o1, o2
	ins.Len = c.Tell()
	return ins, nil
}

// pushf/popf are pseudo-mnemonics distinct from PUSH/POP register forms;
// declared here (not in the Mnemonic const block) to keep that block a
// clean enumeration of real 8088 operations.
const (
	pushf Mnemonic = 1000 + iota
	popf
)

func readDisp(c *Cursor, mod, rm int) (int16, error) {
	if mod == 3 {
		return 0, nil
	}
	if mod == 0 && rm == 6 {
		v, ok := c.ReadI16()
		if !ok {
			return 0, fmt.Errorf("%w: truncated disp16", ErrUnsupportedOpcode)
		}
		return v, nil
	}
	switch mod {
	case 1:
		v, ok := c.ReadI8()
		if !ok {
			return 0, fmt.Errorf("%w: truncated disp8", ErrUnsupportedOpcode)
		}
		return int16(v), nil
	case 2:
		v, ok := c.ReadI16()
		if !ok {
			return 0, fmt.Errorf("%w: truncated disp16", ErrUnsupportedOpcode)
		}
		return v, nil
	}
	return 0, nil
}

func modrmAddrMode(mod, rm int) AddressingMode {
	if mod == 3 {
		return AddrRegister
	}
	if mod == 0 && rm == 6 {
		return AddrDirect
	}
	if mod == 0 {
		// rm==6 (AddrDirect) is handled above; this slot is never reached.
		base := [8]AddressingMode{AddrBXSI, AddrBXDI, AddrBPSI, AddrBPDI, AddrSI, AddrDI, AddrDirect, AddrBX}
		return base[rm]
	}
	dispBase := [8]AddressingMode{AddrBXSIDisp, AddrBXDIDisp, AddrBPSIDisp, AddrBPDIDisp, AddrSIDisp, AddrDIDisp, AddrBPDisp, AddrBXDisp}
	return dispBase[rm]
}

func resolveOperand(c *Cursor, t opTemplate, isFirst, haveModRM bool, mod, regField, rm int, disp int16) (Operand, error) {
	switch t {
	case tNone:
		return Operand{Type: OpNone}, nil
	case tEb:
		if mod == 3 {
			return Operand{Type: OpRegister8, Size: 1, Reg: rm}, nil
		}
		return Operand{Type: OpMemory, Size: 1, Mode: modrmAddrMode(mod, rm), Disp: disp}, nil
	case tEv:
		if mod == 3 {
			return Operand{Type: OpRegister16, Size: 2, Reg: rm}, nil
		}
		return Operand{Type: OpMemory, Size: 2, Mode: modrmAddrMode(mod, rm), Disp: disp}, nil
	case tGb:
		return Operand{Type: OpRegister8, Size: 1, Reg: regField}, nil
	case tGv:
		return Operand{Type: OpRegister16, Size: 2, Reg: regField}, nil
	case tSw:
		return Operand{Type: OpSegReg, Size: 2, Reg: regField}, nil
	case tSegES:
		return Operand{Type: OpSegReg, Size: 2, Reg: SegES}, nil
	case tSegCS:
		return Operand{Type: OpSegReg, Size: 2, Reg: SegCS}, nil
	case tSegSS:
		return Operand{Type: OpSegReg, Size: 2, Reg: SegSS}, nil
	case tSegDS:
		return Operand{Type: OpSegReg, Size: 2, Reg: SegDS}, nil
	case tM:
		return Operand{Type: OpMemory, Size: 2, Mode: modrmAddrMode(mod, rm), Disp: disp}, nil
	case tIb:
		v, ok := c.ReadU8()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated imm8", ErrUnsupportedOpcode)
		}
		return Operand{Type: OpImmediate8, Size: 1, Imm: uint16(v)}, nil
	case tIbSignExt:
		v, ok := c.ReadI8()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated imm8", ErrUnsupportedOpcode)
		}
		return Operand{Type: OpImmediate16, Size: 2, Imm: uint16(int16(v))}, nil
	case tIv:
		v, ok := c.ReadU16()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated imm16", ErrUnsupportedOpcode)
		}
		return Operand{Type: OpImmediate16, Size: 2, Imm: v}, nil
	case tJb:
		v, ok := c.ReadI8()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated rel8", ErrUnsupportedOpcode)
		}
		return Operand{Type: OpRelative8, Size: 1, Imm: uint16(int16(v))}, nil
	case tJv:
		v, ok := c.ReadI16()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated rel16", ErrUnsupportedOpcode)
		}
		return Operand{Type: OpRelative16, Size: 2, Imm: uint16(v)}, nil
	case tAL:
		return Operand{Type: OpRegister8, Size: 1, Reg: 0}, nil
	case tAX:
		return Operand{Type: OpRegister16, Size: 2, Reg: 0}, nil
	case tDX:
		return Operand{Type: OpRegister16, Size: 2, Reg: 2}, nil
	case tCL:
		return Operand{Type: OpRegister8, Size: 1, Reg: 1}, nil
	case t1:
		return Operand{Type: OpImmediate8, Size: 1, Imm: 1}, nil
	case tOb:
		v, ok := c.ReadU16()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated offset", ErrUnsupportedOpcode)
		}
		return Operand{Type: OpOffset8, Size: 1, Off: v}, nil
	case tOv:
		v, ok := c.ReadU16()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated offset", ErrUnsupportedOpcode)
		}
		return Operand{Type: OpOffset16, Size: 2, Off: v}, nil
	case tAp:
		off, ok := c.ReadU16()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated far ptr offset", ErrUnsupportedOpcode)
		}
		seg, ok := c.ReadU16()
		if !ok {
			return Operand{}, fmt.Errorf("%w: truncated far ptr segment", ErrUnsupportedOpcode)
		}
		return Operand{Type: OpFarAddress, Size: 4, Off: off, Seg: seg}, nil
	case tReg8Lo:
		return Operand{Type: OpRegister8, Size: 1, Reg: rm}, nil
	case tReg16Lo:
		return Operand{Type: OpRegister16, Size: 2, Reg: rm}, nil
	}
	return Operand{}, nil
}
