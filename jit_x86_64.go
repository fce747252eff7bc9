package symjit

// x86-64 System V AMD64 machine code emission: REX.W for 64-bit GPR
// operations, F2 0F for scalar double SSE2 ops, and the rsp/r12-need-SIB,
// rbp/r13-need-disp8 special cases in the ModRM disp-form selection.

const (
	regRAX = 0
	regRCX = 1
	regRDX = 2
	regRBX = 3
	regRSP = 4
	regRBP = 5
	regRSI = 6
	regRDI = 7
	regR8  = 8
	regR9  = 9
	regR10 = 10
	regR11 = 11
	regR12 = 12
	regR13 = 13
	regR14 = 14
	regR15 = 15
)

const rexW = 0x48

func rexByte(base byte, r, x, b uint8) byte {
	rex := base
	if r >= 8 {
		rex |= 0x04 // REX.R extends the ModRM reg field
	}
	if x >= 8 {
		rex |= 0x02 // REX.X extends the SIB index field (unused, no indexed addressing here)
	}
	if b >= 8 {
		rex |= 0x01 // REX.B extends the ModRM rm / SIB base field
	}
	return rex
}

// emitMemOperand writes the ModRM byte (and SIB/disp if required) for an
// operand addressing [baseEnc+disp] with reg field regEnc. It does not
// write any prefix or opcode bytes; callers emit REX and the opcode first.
func (w *codeWriter) emitMemOperand(regEnc, baseEnc uint8, disp int32) {
	needsSIB := (baseEnc & 7) == regRSP&7 // rsp or r12 as base requires a SIB byte
	switch {
	case disp == 0 && (baseEnc&7) != regRBP&7: // rbp/r13 can never use the zero-disp form
		w.emit(0x00 | (regEnc&7)<<3 | baseEnc&7)
		if needsSIB {
			w.emit(0x24)
		}
	case disp >= -128 && disp <= 127:
		w.emit(0x40 | (regEnc&7)<<3 | baseEnc&7)
		if needsSIB {
			w.emit(0x24)
		}
		w.emit(byte(int8(disp)))
	default:
		w.emit(0x80 | (regEnc&7)<<3 | baseEnc&7)
		if needsSIB {
			w.emit(0x24)
		}
		w.emitU32LE(uint32(disp))
	}
}

// MovLoad emits `mov dst, [base+disp]` (64-bit GPR load).
func (w *codeWriter) MovLoad(dst, base uint8, disp int32) {
	w.emit(rexByte(rexW, dst, 0, base))
	w.emit(0x8B)
	w.emitMemOperand(dst, base, disp)
}

// MovStore emits `mov [base+disp], src` (64-bit GPR store).
func (w *codeWriter) MovStore(src, base uint8, disp int32) {
	w.emit(rexByte(rexW, src, 0, base))
	w.emit(0x89)
	w.emitMemOperand(src, base, disp)
}

// MovImm64 emits `movabs dst, imm64`.
func (w *codeWriter) MovImm64(dst uint8, imm uint64) {
	rex := rexW
	if dst >= 8 {
		rex |= 0x01
	}
	w.emit(byte(rex))
	w.emit(0xB8 | dst&7)
	w.emitU64LE(imm)
}

// MovsdLoad emits `movsd dst, [base+disp]` (scalar double load into an
// XMM register). Opcode F2 0F 10.
func (w *codeWriter) MovsdLoad(dst, base uint8, disp int32) {
	w.emit(0xF2)
	if dst >= 8 || base >= 8 {
		w.emit(rexByte(0x40, dst, 0, base))
	}
	w.emit(0x0F, 0x10)
	w.emitMemOperand(dst, base, disp)
}

// MovsdStore emits `movsd [base+disp], src` (scalar double store). Opcode
// F2 0F 11.
func (w *codeWriter) MovsdStore(src, base uint8, disp int32) {
	w.emit(0xF2)
	if src >= 8 || base >= 8 {
		w.emit(rexByte(0x40, src, 0, base))
	}
	w.emit(0x0F, 0x11)
	w.emitMemOperand(src, base, disp)
}

// sseRegReg emits the common F2 [REX] 0F <op> ModRM shape shared by
// addsd/subsd/mulsd/divsd/sqrtsd/comisd/movsd-reg-reg.
func (w *codeWriter) sseRegReg(prefix byte, op byte, dst, src uint8) {
	if prefix != 0 {
		w.emit(prefix)
	}
	if dst >= 8 || src >= 8 {
		w.emit(rexByte(0x40, dst, 0, src))
	}
	w.emit(0x0F, op)
	w.emit(0xC0 | (dst&7)<<3 | src&7)
}

// AddsdReg emits `addsd dst, src`. F2 0F 58.
func (w *codeWriter) AddsdReg(dst, src uint8) { w.sseRegReg(0xF2, 0x58, dst, src) }

// SubsdReg emits `subsd dst, src`. F2 0F 5C.
func (w *codeWriter) SubsdReg(dst, src uint8) { w.sseRegReg(0xF2, 0x5C, dst, src) }

// MulsdReg emits `mulsd dst, src`. F2 0F 59.
func (w *codeWriter) MulsdReg(dst, src uint8) { w.sseRegReg(0xF2, 0x59, dst, src) }

// DivsdReg emits `divsd dst, src`. F2 0F 5E.
func (w *codeWriter) DivsdReg(dst, src uint8) { w.sseRegReg(0xF2, 0x5E, dst, src) }

// SqrtsdReg emits `sqrtsd dst, src`. F2 0F 51.
func (w *codeWriter) SqrtsdReg(dst, src uint8) { w.sseRegReg(0xF2, 0x51, dst, src) }

// XorpdReg emits `xorpd dst, src` (used with dst == src to zero a
// register). 66 0F 57.
func (w *codeWriter) XorpdReg(dst, src uint8) { w.sseRegReg(0x66, 0x57, dst, src) }

// MovsdReg emits `movsd dst, src` (XMM-to-XMM). F2 0F 10.
func (w *codeWriter) MovsdReg(dst, src uint8) { w.sseRegReg(0xF2, 0x10, dst, src) }

// MovqXmmFromGPR emits `movq xmm_dst, gpr_src`, used to load a 64-bit
// immediate bit pattern built with MovImm64 into an XMM register as a
// double. 66 REX.W 0F 6E.
func (w *codeWriter) MovqXmmFromGPR(dst, src uint8) {
	w.emit(0x66)
	w.emit(rexByte(rexW, dst, 0, src))
	w.emit(0x0F, 0x6E)
	w.emit(0xC0 | (dst&7)<<3 | src&7)
}

// Push emits `push reg`.
func (w *codeWriter) Push(reg uint8) {
	if reg >= 8 {
		w.emit(0x41)
	}
	w.emit(0x50 | reg&7)
}

// Pop emits `pop reg`.
func (w *codeWriter) Pop(reg uint8) {
	if reg >= 8 {
		w.emit(0x41)
	}
	w.emit(0x58 | reg&7)
}

// CallReg emits `call reg` (indirect call through a GPR holding the
// target address, FF /2).
func (w *codeWriter) CallReg(reg uint8) {
	if reg >= 8 {
		w.emit(0x41)
	}
	w.emit(0xFF)
	w.emit(0xD0 | reg&7)
}

// Ret emits `ret`.
func (w *codeWriter) Ret() { w.emit(0xC3) }

// MovRegReg emits `mov dst, src` between two 64-bit GPRs.
func (w *codeWriter) MovRegReg(dst, src uint8) {
	w.emit(rexByte(rexW, src, 0, dst))
	w.emit(0x89)
	w.emit(0xC0 | (src&7)<<3 | dst&7)
}

// MaxsdReg emits `maxsd dst, src`. F2 0F 5F.
func (w *codeWriter) MaxsdReg(dst, src uint8) { w.sseRegReg(0xF2, 0x5F, dst, src) }

// ComisdReg emits `comisd a, b`, setting flags from an ordered compare of
// two scalar doubles (ZF/PF/CF per the unordered result on NaN). 66 0F 2F.
func (w *codeWriter) ComisdReg(a, b uint8) { w.sseRegReg(0x66, 0x2F, a, b) }

// Setae emits `setae dst8` (dst := CF==0 ? 1 : 0), the byte-register
// destination for the >=-comparison idiom following ComisdReg.
func (w *codeWriter) Setae(dst uint8) {
	if dst >= 8 {
		w.emit(0x41)
	}
	w.emit(0x0F, 0x93)
	w.emit(0xC0 | dst&7)
}

// Movzx8To32 emits `movzx dst32, src8`, zero-extending a byte register
// (as written by Setae) into a 32-bit GPR ready for Cvtsi2sdFromGPR32.
func (w *codeWriter) Movzx8To32(dst, src uint8) {
	if dst >= 8 || src >= 8 {
		w.emit(rexByte(0x40, dst, 0, src))
	}
	w.emit(0x0F, 0xB6)
	w.emit(0xC0 | (dst&7)<<3 | src&7)
}

// Cvtsi2sdFromGPR32 emits `cvtsi2sd dst, src32`, converting a signed
// 32-bit integer GPR to a scalar double. F2 0F 2A.
func (w *codeWriter) Cvtsi2sdFromGPR32(dst, src uint8) {
	w.emit(0xF2)
	if dst >= 8 || src >= 8 {
		w.emit(rexByte(0x40, dst, 0, src))
	}
	w.emit(0x0F, 0x2A)
	w.emit(0xC0 | (dst&7)<<3 | src&7)
}
