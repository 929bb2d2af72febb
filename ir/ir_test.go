package ir

import "testing"

func TestConfidenceString(t *testing.T) {
	cases := []struct {
		c    Confidence
		want string
	}{
		{Low, "low"},
		{Medium, "medium"},
		{High, "high"},
	}
	for _, tc := range cases {
		if got := tc.c.String(); got != tc.want {
			t.Errorf("Confidence(%d).String() = %q, want %q", tc.c, got, tc.want)
		}
	}
}

func TestInstructionFormatString(t *testing.T) {
	cases := []struct {
		f    InstructionFormat
		want string
	}{
		{FormatRR, "RR"},
		{FormatRX, "RX"},
		{FormatRS, "RS"},
		{FormatSI, "SI"},
		{FormatSS, "SS"},
		{FormatRIL, "RIL"},
		{FormatUnknown, "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := tc.f.String(); got != tc.want {
			t.Errorf("InstructionFormat(%d).String() = %q, want %q", tc.f, got, tc.want)
		}
	}
}

func TestInstructionHexBytesAndNextAddress(t *testing.T) {
	inst := &Instruction{
		Address:  0x1000,
		RawBytes: []byte{0x47, 0xF0, 0x10, 0x00},
	}
	if got, want := inst.HexBytes(), "47F01000"; got != want {
		t.Errorf("HexBytes() = %q, want %q", got, want)
	}
	if got, want := inst.NextAddress(), uint32(0x1004); got != want {
		t.Errorf("NextAddress() = %#x, want %#x", got, want)
	}
}

func TestInstructionToASMLineIncludesAnnotation(t *testing.T) {
	inst := &Instruction{
		Address:        0x2000,
		RawBytes:       []byte{0x47, 0xF0, 0x10, 0x00},
		Mnemonic:       "BC",
		Operands:       []string{"15", "0(1)"},
		SyntheticLabel: "L_00001",
		Annotation:     "UNRESOLVED_TARGET",
	}
	line := inst.ToASMLine()
	if !contains(line, "BC") || !contains(line, "UNRESOLVED_TARGET") || !contains(line, "L_00001") {
		t.Errorf("ToASMLine() = %q, missing expected fields", line)
	}
}

func TestNewBasicBlockInitializesMaps(t *testing.T) {
	b := NewBasicBlock("block_1", 0x1000)
	if b.Predecessors == nil || b.Successors == nil {
		t.Fatal("NewBasicBlock did not initialize predecessor/successor maps")
	}
	if b.Confidence != High {
		t.Errorf("NewBasicBlock default confidence = %v, want High", b.Confidence)
	}
}

func TestControlFlowGraphAddEdgeAndUnresolved(t *testing.T) {
	cfg := NewControlFlowGraph("MOD", []uint32{0x1000})
	a := NewBasicBlock("a", 0x1000)
	b := NewBasicBlock("b", 0x1010)
	cfg.AddBlock(a)
	cfg.AddBlock(b)

	cfg.AddEdge("a", "b")
	if !a.Successors["b"] || !b.Predecessors["a"] {
		t.Fatal("AddEdge did not wire both directions")
	}

	cfg.AddUnresolved(0x1004)
	cfg.AddUnresolved(0x1004)
	if len(cfg.UnresolvedBranches) != 1 {
		t.Errorf("AddUnresolved did not dedupe: got %v", cfg.UnresolvedBranches)
	}
}

func TestControlFlowGraphAddCallEdge(t *testing.T) {
	cfg := NewControlFlowGraph("MOD", nil)
	caller := NewProcedure("p1", "PROC_1", 0x1000, "entry_point", High)
	callee := NewProcedure("p2", "PROC_2", 0x2000, "call_target", Medium)
	cfg.Procedures["p1"] = caller
	cfg.Procedures["p2"] = callee

	cfg.AddCallEdge("p1", "p2")

	if !caller.CallsTo["p2"] || !callee.CalledBy["p1"] {
		t.Fatal("AddCallEdge did not update procedure call sets")
	}
	if !cfg.CallGraph["p1"]["p2"] {
		t.Fatal("AddCallEdge did not update the call graph map")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
