package cfgbuild

import (
	"testing"

	"github.com/ckillpk/zarchrev/decode"
	"github.com/ckillpk/zarchrev/disasm"
	"github.com/ckillpk/zarchrev/ir"
)

func buildResult(t *testing.T, data []byte, base uint32) *ir.DisassemblyResult {
	t.Helper()
	d := disasm.New(decode.Native{})
	return d.Disassemble(data, base, ir.ModuleMetadata{Name: "MOD"})
}

func TestBuildUnresolvedConditionalBranchIsRecorded(t *testing.T) {
	// BC 8,8(1) (conditional, falls through to the next instruction)
	// followed by two more instructions; its target cannot be resolved.
	data := []byte{
		0x47, 0x80, 0x10, 0x08, // BC 8,8(1) -- base reg 1 so target is unresolved
		0x18, 0x12, // LR 1,2 (fall-through)
		0x07, 0xFE, // BCR 15,14 (return)
	}
	result := buildResult(t, data, 0x1000)
	cfg := Build(result)

	if len(cfg.Blocks) == 0 {
		t.Fatal("expected at least one basic block")
	}
	// The conditional branch's base register is nonzero, so the target
	// can't resolve and the branch should be recorded as unresolved.
	if len(cfg.UnresolvedBranches) == 0 {
		t.Error("expected an unresolved branch to be recorded")
	}
}

func TestBuildUnconditionalBranchSuppressesFallThrough(t *testing.T) {
	data := []byte{
		0x47, 0xF0, 0x10, 0x00, // BC 15,0(1) unconditional, base nonzero -> unresolved
		0x18, 0x12, // LR 1,2
	}
	result := buildResult(t, data, 0x1000)
	cfg := Build(result)

	var entryBlock *ir.BasicBlock
	for _, b := range cfg.Blocks {
		if b.StartAddress == 0x1000 {
			entryBlock = b
		}
	}
	if entryBlock == nil {
		t.Fatal("expected a block starting at the entry address")
	}
	if entryBlock.FallThrough != "" {
		t.Errorf("unconditional branch should suppress the fall-through edge, got %q", entryBlock.FallThrough)
	}
}

func TestBuildReturnHasNoSuccessors(t *testing.T) {
	data := []byte{
		0x07, 0xFE, // BCR 15,14 (return)
	}
	result := buildResult(t, data, 0x1000)
	cfg := Build(result)

	for _, b := range cfg.Blocks {
		if len(b.Successors) != 0 {
			t.Errorf("return block %s has successors %v, want none", b.ID, b.Successors)
		}
	}
}

func TestBuildEntryBlockGetsEntrySyntheticLabel(t *testing.T) {
	data := []byte{
		0x90, 0xEC, 0xD0, 0x0C, // STM 14,12,12(13)
		0x07, 0xFE, // BCR 15,14
	}
	result := buildResult(t, data, 0x1000)
	Build(result)

	if result.Instructions[0].SyntheticLabel != "ENTRY" {
		t.Errorf("entry instruction SyntheticLabel = %q, want ENTRY", result.Instructions[0].SyntheticLabel)
	}
}
