package classify

import (
	"testing"

	"github.com/ckillpk/zarchrev/decode"
	"github.com/ckillpk/zarchrev/disasm"
	"github.com/ckillpk/zarchrev/ir"
)

func TestClassifyHighDecodeRateIsCode(t *testing.T) {
	data := []byte{
		0x05, 0xEF, // BALR 14,15
		0x18, 0x12, // LR 1,2
		0x07, 0xFE, // BCR 15,14
	}
	d := disasm.New(decode.Native{})
	result := d.Disassemble(data, 0x1000, ir.ModuleMetadata{Name: "MOD"})

	regions := New().Classify(result)
	if len(regions) != 1 {
		t.Fatalf("got %d regions, want 1", len(regions))
	}
	if regions[0].Type != ir.RegionCode {
		t.Errorf("Type = %v, want RegionCode (decode_rate=%v)", regions[0].Type, regions[0].DecodeRate)
	}
}

func TestClassifyLowDecodeRateIsData(t *testing.T) {
	// A buffer of bytes the decoder never recognizes as code (opcode
	// range 0xA0-0xA4 isn't in the table, so Length falls to the 2-byte
	// default but the mnemonic table never matches) still "decodes" at
	// the byte level; to get genuinely low density we instead use an
	// undecodable tail by feeding bytes whose implied length overruns the
	// buffer on every attempt except the first.
	data := make([]byte, 64)
	for i := range data {
		data[i] = 0xF8 // ZAP, a 6-byte opcode; with only 1-5 bytes remaining at
	}
	// any given offset within a 64-byte run of the same opcode, most
	// bytes will still decode (ten 6-byte ZAPs cover 60 of the 64) --
	// instead directly exercise the threshold math via classifySection.
	c := New()
	region := c.classifySection(&ir.DisassemblyResult{Instructions: nil}, 0, 99)
	if region.Type != ir.RegionData {
		t.Errorf("Type = %v, want RegionData for zero decoded bytes", region.Type)
	}
	if region.DecodeRate != 0 {
		t.Errorf("DecodeRate = %v, want 0", region.DecodeRate)
	}
	_ = data
}

func TestDetectConstantPoolsReclassifiesSmallUnknownIsland(t *testing.T) {
	regions := []ir.Region{
		{Start: 0, End: 99, Type: ir.RegionCode},
		{Start: 100, End: 150, Type: ir.RegionUnknown},
		{Start: 151, End: 300, Type: ir.RegionCode},
	}
	c := New()
	got := c.detectConstantPools(regions)

	if got[1].Type != ir.RegionData {
		t.Errorf("middle region Type = %v, want RegionData", got[1].Type)
	}
	if got[1].Evidence != "constant_pool_pattern" {
		t.Errorf("Evidence = %q, want constant_pool_pattern", got[1].Evidence)
	}
}

func TestDetectConstantPoolsLeavesLargeIslandAlone(t *testing.T) {
	regions := []ir.Region{
		{Start: 0, End: 99, Type: ir.RegionCode},
		{Start: 100, End: 1000, Type: ir.RegionUnknown},
		{Start: 1001, End: 1100, Type: ir.RegionCode},
	}
	c := New()
	got := c.detectConstantPools(regions)

	if got[1].Type != ir.RegionUnknown {
		t.Errorf("large unknown island Type = %v, want to stay RegionUnknown", got[1].Type)
	}
}
