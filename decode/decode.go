// Package decode implements the pluggable instruction-decoding capability
// the disassembler is parameterized over (§4.2.1, §9 "Polymorphism over
// decoders"). A Decoder is a narrow interface, not an inheritance
// hierarchy: decode.Native is the only implementation today, but an
// external reference disassembler could plug in at the same surface.
package decode

import (
	"encoding/binary"

	"github.com/ckillpk/zarchrev/ir"
)

// Decoder turns raw bytes at a given offset/address into a single
// Instruction. It must be a pure, deterministic function of its
// arguments: same bytes in, same Instruction out.
type Decoder interface {
	// Decode attempts to decode one instruction from data starting at
	// offset, reporting it at the given absolute address. Returns nil
	// when fewer bytes remain than the length its opcode implies. An
	// opcode with no known mnemonic still decodes, as mnemonic "UNKNOWN"
	// with Low confidence.
	Decode(data []byte, offset int, address uint32) *ir.Instruction

	// Length returns the instruction length implied by a first opcode
	// byte, independent of whether the full instruction can be decoded.
	Length(opcode byte) int
}

// branchMnemonics, callMnemonics mirror §4.2.1's classification tables
// exactly.
var branchMnemonics = map[string]bool{
	"BC": true, "BCR": true, "BAL": true, "BALR": true,
	"BASR": true, "BAS": true, "BXH": true, "BXLE": true,
	"BCT": true, "BCTR": true,
}

var callMnemonics = map[string]bool{
	"BALR": true, "BASR": true, "BAL": true, "BAS": true,
}

// mnemonics is the opcode -> mnemonic table from §4.2.1 / the source
// decoder's MNEMONICS table.
var mnemonics = map[byte]string{
	0x05: "BALR", 0x0D: "BASR", 0x07: "BCR", 0x47: "BC",
	0x18: "LR", 0x58: "L", 0x50: "ST", 0x90: "STM", 0x98: "LM",
	0x41: "LA", 0x1A: "AR", 0x5A: "A", 0x1B: "SR", 0x5B: "S",
	0x12: "LTR", 0x55: "CL", 0x95: "CLI", 0x15: "CLR",
	0x19: "CR", 0x59: "C", 0x89: "SLL", 0x88: "SRL",
	0x13: "LCR", 0x11: "LNR", 0x10: "LPR", 0x14: "NR",
	0x16: "OR", 0x17: "XR", 0x54: "N", 0x56: "O", 0x57: "X",
	0x96: "OI", 0x94: "NI", 0x97: "XI", 0x92: "MVI",
	0x43: "IC", 0x42: "STC", 0x44: "EX", 0x45: "BAL",
	0x46: "BCT", 0x8E: "SRDA", 0x8C: "SRDL", 0x8D: "SLDA",
	0x86: "BXH", 0x87: "BXLE", 0xD2: "MVC", 0xD5: "CLC",
	0xDC: "TR", 0xDD: "TRT", 0xD1: "MVN", 0xD3: "MVZ",
	0xF1: "MVO", 0xF2: "PACK", 0xF3: "UNPK", 0xD7: "XC",
	0xD6: "OC", 0xD4: "NC", 0xD9: "MVCK", 0xDA: "MVCP",
	0xDB: "MVCS", 0xDE: "ED", 0xDF: "EDMK", 0xFA: "AP",
	0xFB: "SP", 0xF8: "ZAP", 0xF9: "CP", 0xFC: "MP", 0xFD: "DP",
}

// Native is the engine's only decoder: a table-driven implementation of
// the 2/4/6-byte format family described in §4.2.1.
type Native struct{}

// Length implements Decoder.Length per §4.2.1's length table.
func (Native) Length(opcode byte) int {
	switch {
	case opcode >= 0x00 && opcode <= 0x1F:
		return 2
	case opcode >= 0x40 && opcode <= 0x5F:
		return 4
	case opcode >= 0x86 && opcode <= 0x9B:
		return 4
	case opcode == 0xA5 || opcode == 0xA7:
		return 4
	case opcode == 0xB2 || opcode == 0xB3 || opcode == 0xB9:
		return 4
	case opcode == 0xC0 || opcode == 0xC2 || opcode == 0xC4 || opcode == 0xC6 || opcode == 0xC8:
		return 6
	case opcode >= 0xD0 && opcode <= 0xDF:
		return 6
	case opcode == 0xE3 || opcode == 0xEB || opcode == 0xEC || opcode == 0xED:
		return 6
	case opcode >= 0xF0 && opcode <= 0xFD:
		return 6
	default:
		return 2
	}
}

// Decode implements Decoder.Decode.
func (d Native) Decode(data []byte, offset int, address uint32) *ir.Instruction {
	if offset < 0 || offset >= len(data) {
		return nil
	}

	opcode := data[offset]
	length := d.Length(opcode)
	if offset+length > len(data) {
		return nil
	}

	raw := append([]byte(nil), data[offset:offset+length]...)
	mnemonic, operands, format := decodeOperands(raw)

	isBranch := branchMnemonics[mnemonic]
	isCall := callMnemonics[mnemonic]
	isReturn := isReturnInstruction(mnemonic, operands)

	var target *uint32
	if isBranch && length >= 4 {
		target = branchTarget(raw, address, format)
	}

	confidence := ir.High
	if mnemonic == "UNKNOWN" {
		confidence = ir.Low
	}

	return &ir.Instruction{
		Address:      address,
		RawBytes:     raw,
		Mnemonic:     mnemonic,
		Operands:     operands,
		Format:       format,
		IsBranch:     isBranch,
		IsCall:       isCall,
		IsReturn:     isReturn,
		BranchTarget: target,
		Confidence:   confidence,
	}
}

// isReturnInstruction implements §4.2.1's is_return rule: BCR 15,14 or
// BR 14 specifically.
func isReturnInstruction(mnemonic string, operands []string) bool {
	if mnemonic == "BCR" && len(operands) > 0 && operands[0] == "15" {
		// BCR mask,14 is the conventional return; operand[1] carries the
		// target register.
		return len(operands) > 1 && operands[1] == "14"
	}
	if mnemonic == "BR" && len(operands) > 0 && operands[0] == "14" {
		return true
	}
	return false
}

// isRSOpcode reports whether opcode belongs to the RS family: two
// registers plus a single storage operand (shifts, STM/LM, BXH/BXLE).
func isRSOpcode(opcode byte) bool {
	switch opcode {
	case 0x86, 0x87, 0x88, 0x89, 0x8A, 0x8B, 0x8C, 0x8D, 0x8E, 0x8F, 0x90, 0x98:
		return true
	default:
		return false
	}
}

// isSIOpcode reports whether opcode belongs to the SI family: an
// immediate byte plus a single storage operand (TM/MVI/NI/CLI/OI/XI).
func isSIOpcode(opcode byte) bool {
	switch opcode {
	case 0x91, 0x92, 0x94, 0x95, 0x96, 0x97:
		return true
	default:
		return false
	}
}

func decodeOperands(raw []byte) (mnemonic string, operands []string, format ir.InstructionFormat) {
	opcode := raw[0]
	mnemonic, ok := mnemonics[opcode]
	if !ok {
		mnemonic = "UNKNOWN"
	}

	switch len(raw) {
	case 2:
		format = ir.FormatRR
		r1 := (raw[1] >> 4) & 0xF
		r2 := raw[1] & 0xF
		operands = []string{itoa(int(r1)), itoa(int(r2))}

	case 4:
		switch {
		case isSIOpcode(opcode):
			format = ir.FormatSI
			i2 := raw[1]
			b1 := (raw[2] >> 4) & 0xF
			d1 := (uint16(raw[2]&0xF) << 8) | uint16(raw[3])
			operands = []string{hexImmediate(i2), dispBase(int(d1), int(b1))}

		case isRSOpcode(opcode):
			format = ir.FormatRS
			r1 := (raw[1] >> 4) & 0xF
			r3 := raw[1] & 0xF
			b2 := (raw[2] >> 4) & 0xF
			d2 := (uint16(raw[2]&0xF) << 8) | uint16(raw[3])
			operands = []string{itoa(int(r1)), itoa(int(r3)), dispBase(int(d2), int(b2))}

		default:
			format = ir.FormatRX
			r1 := (raw[1] >> 4) & 0xF
			x2 := raw[1] & 0xF
			b2 := (raw[2] >> 4) & 0xF
			d2 := (uint16(raw[2]&0xF) << 8) | uint16(raw[3])
			if x2 != 0 {
				operands = []string{itoa(int(r1)), dispBaseIndex(int(d2), int(x2), int(b2))}
			} else {
				operands = []string{itoa(int(r1)), dispBase(int(d2), int(b2))}
			}
		}

	case 6:
		switch {
		case opcode >= 0xD0 && opcode <= 0xDF:
			format = ir.FormatSS
			l := raw[1]
			b1 := (raw[2] >> 4) & 0xF
			d1 := (uint16(raw[2]&0xF) << 8) | uint16(raw[3])
			b2 := (raw[4] >> 4) & 0xF
			d2 := (uint16(raw[4]&0xF) << 8) | uint16(raw[5])
			operands = []string{dispLenBase(int(d1), int(l), int(b1)), dispBase(int(d2), int(b2))}

		case opcode == 0xC0 || opcode == 0xC2 || opcode == 0xC4 || opcode == 0xC6 || opcode == 0xC8:
			format = ir.FormatRIL
			r1 := (raw[1] >> 4) & 0xF
			i2 := binary.BigEndian.Uint32(raw[2:6])
			operands = []string{itoa(int(r1)), hexImmediate32(i2)}

		default:
			format = ir.FormatUnknown
		}

	default:
		format = ir.FormatUnknown
	}

	return mnemonic, operands, format
}

// branchTarget implements §4.2.1's branch target resolution rules.
func branchTarget(raw []byte, address uint32, format ir.InstructionFormat) *uint32 {
	switch format {
	case ir.FormatRX:
		if len(raw) < 4 {
			return nil
		}
		b2 := (raw[2] >> 4) & 0xF
		d2 := (uint16(raw[2]&0xF) << 8) | uint16(raw[3])
		if b2 == 0 {
			t := uint32(d2)
			return &t
		}
		return nil

	case ir.FormatRIL:
		if len(raw) < 6 {
			return nil
		}
		offset := int32(binary.BigEndian.Uint32(raw[2:6]))
		t := uint32(int64(address) + int64(offset)*2)
		return &t

	default:
		return nil
	}
}
