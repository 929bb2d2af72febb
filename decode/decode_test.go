package decode

import (
	"bytes"
	"testing"

	"github.com/ckillpk/zarchrev/ir"
)

func TestNativeLength(t *testing.T) {
	cases := []struct {
		opcode byte
		want   int
	}{
		{0x05, 2}, // BALR
		{0x47, 4}, // BC
		{0x90, 4}, // STM
		{0xD2, 6}, // MVC
		{0xF1, 6}, // MVO
	}
	var d Native
	for _, tc := range cases {
		if got := d.Length(tc.opcode); got != tc.want {
			t.Errorf("Length(%#02x) = %d, want %d", tc.opcode, got, tc.want)
		}
	}
}

func TestNativeDecodeTable(t *testing.T) {
	cases := []struct {
		name     string
		raw      []byte
		mnemonic string
		format   ir.InstructionFormat
		isBranch bool
		isCall   bool
		isReturn bool
	}{
		{
			name:     "BALR 14,15 is a call",
			raw:      []byte{0x05, 0xEF},
			mnemonic: "BALR",
			format:   ir.FormatRR,
			isBranch: true,
			isCall:   true,
		},
		{
			name:     "BCR 15,14 is a return",
			raw:      []byte{0x07, 0xFE},
			mnemonic: "BCR",
			format:   ir.FormatRR,
			isBranch: true,
			isReturn: true,
		},
		{
			name:     "BC 15,0(1) is an unconditional branch",
			raw:      []byte{0x47, 0xF0, 0x10, 0x00},
			mnemonic: "BC",
			format:   ir.FormatRX,
			isBranch: true,
		},
		{
			name:     "STM prologue",
			raw:      []byte{0x90, 0xEC, 0xD0, 0x0C},
			mnemonic: "STM",
			format:   ir.FormatRS,
		},
		{
			name:     "MVC is an SS instruction",
			raw:      []byte{0xD2, 0x07, 0x10, 0x00, 0x20, 0x00},
			mnemonic: "MVC",
			format:   ir.FormatSS,
		},
	}

	var d Native
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := d.Decode(tc.raw, 0, 0x1000)
			if inst == nil {
				t.Fatalf("Decode(%x) = nil, want an instruction", tc.raw)
			}
			if inst.Mnemonic != tc.mnemonic {
				t.Errorf("Mnemonic = %q, want %q", inst.Mnemonic, tc.mnemonic)
			}
			if inst.Format != tc.format {
				t.Errorf("Format = %v, want %v", inst.Format, tc.format)
			}
			if inst.IsBranch != tc.isBranch {
				t.Errorf("IsBranch = %v, want %v", inst.IsBranch, tc.isBranch)
			}
			if inst.IsCall != tc.isCall {
				t.Errorf("IsCall = %v, want %v", inst.IsCall, tc.isCall)
			}
			if inst.IsReturn != tc.isReturn {
				t.Errorf("IsReturn = %v, want %v", inst.IsReturn, tc.isReturn)
			}
			if !bytes.Equal(inst.RawBytes, tc.raw) {
				t.Errorf("RawBytes = %x, want %x", inst.RawBytes, tc.raw)
			}
		})
	}
}

func TestNativeDecodeUnknownOpcode(t *testing.T) {
	var d Native
	inst := d.Decode([]byte{0x01, 0x00}, 0, 0x1000)
	if inst == nil {
		t.Fatal("Decode of an unmapped 2-byte opcode should still decode as UNKNOWN, not nil")
	}
	if inst.Mnemonic != "UNKNOWN" {
		t.Errorf("Mnemonic = %q, want UNKNOWN", inst.Mnemonic)
	}
	if inst.Confidence != ir.Low {
		t.Errorf("Confidence = %v, want Low", inst.Confidence)
	}
}

func TestNativeDecodeTruncatedInstructionReturnsNil(t *testing.T) {
	var d Native
	// BC (opcode 0x47) needs 4 bytes; only 2 are available.
	inst := d.Decode([]byte{0x47, 0xF0}, 0, 0x1000)
	if inst != nil {
		t.Errorf("Decode with insufficient bytes should return nil, got %+v", inst)
	}
}

func TestBranchTargetRXAbsoluteWhenBaseZero(t *testing.T) {
	raw := []byte{0x47, 0xF0, 0x01, 0x00} // BC 15,256(0)
	target := branchTarget(raw, 0x2000, ir.FormatRX)
	if target == nil {
		t.Fatal("expected a resolved branch target")
	}
	if *target != 0x100 {
		t.Errorf("target = %#x, want 0x100", *target)
	}
}

func TestBranchTargetRXUnresolvedWhenBaseNonzero(t *testing.T) {
	raw := []byte{0x47, 0xF1, 0x10, 0x00}
	target := branchTarget(raw, 0x2000, ir.FormatRX)
	if target != nil {
		t.Errorf("target = %#x, want nil (base register present)", *target)
	}
}
