// Package cfgbuild implements the two-pass control flow graph
// construction described in §4.3: leader discovery, block materialization,
// edge wiring (including unresolved targets), and synthetic label
// assignment.
package cfgbuild

import (
	"fmt"
	"sort"

	"github.com/ckillpk/zarchrev/ir"
)

// Builder accumulates the state needed across the two passes.
type Builder struct {
	instructions   []*ir.Instruction
	instructionMap map[uint32]*ir.Instruction
	leaders        map[uint32]bool
	entryPoints    map[uint32]bool
	blocks         []*ir.BasicBlock
}

// Build constructs the complete CFG from a disassembly result, mutating
// and returning result.CFG.
//
// The source this spec is distilled from has a bug here: it references
// `cfg` before binding it (`cfg.unresolved_branches.extend(unresolved)`
// precedes `cfg = disasm_result.cfg`). This implementation binds cfg
// first, consistent with §9's documented intent.
func Build(result *ir.DisassemblyResult) *ir.ControlFlowGraph {
	b := &Builder{
		instructions:   result.Instructions,
		instructionMap: make(map[uint32]*ir.Instruction, len(result.Instructions)),
		leaders:        make(map[uint32]bool),
		entryPoints:    make(map[uint32]bool),
	}
	for _, inst := range result.Instructions {
		b.instructionMap[inst.Address] = inst
	}

	cfg := result.CFG
	for _, ep := range cfg.EntryPoints {
		b.entryPoints[ep] = true
	}
	if len(cfg.EntryPoints) == 0 && len(result.Instructions) > 0 {
		b.entryPoints[result.Instructions[0].Address] = true
	}

	b.findLeaders(cfg.EntryPoints)
	b.createBasicBlocks()
	for _, block := range b.blocks {
		cfg.AddBlock(block)
	}

	unresolved := b.addControlFlowEdges(cfg)
	for _, addr := range unresolved {
		cfg.AddUnresolved(addr)
	}

	b.assignSyntheticLabels()

	b.findUnresolvedBranches(cfg)

	return cfg
}

// findLeaders implements Pass 1 (§4.3): entry points, the first
// instruction if no entry point resolves, resolved branch targets, and
// the instruction following any conditional branch, call, or return.
func (b *Builder) findLeaders(entryPoints []uint32) {
	for _, ep := range entryPoints {
		if _, ok := b.instructionMap[ep]; ok {
			b.leaders[ep] = true
		}
	}

	if len(b.leaders) == 0 && len(b.instructions) > 0 {
		b.leaders[b.instructions[0].Address] = true
	}

	for i, inst := range b.instructions {
		switch {
		case inst.IsBranch && !inst.IsReturn:
			if inst.BranchTarget != nil {
				if _, ok := b.instructionMap[*inst.BranchTarget]; ok {
					b.leaders[*inst.BranchTarget] = true
				}
			}
			if !isUnconditionalBranch(inst) && i+1 < len(b.instructions) {
				b.leaders[b.instructions[i+1].Address] = true
			}

		case inst.IsCall:
			if i+1 < len(b.instructions) {
				b.leaders[b.instructions[i+1].Address] = true
			}

		case inst.IsReturn:
			if i+1 < len(b.instructions) {
				b.leaders[b.instructions[i+1].Address] = true
			}
		}
	}
}

// createBasicBlocks implements Pass 2's block materialization: sort
// leaders, slice the instruction stream between consecutive leaders, and
// derive each block's type.
func (b *Builder) createBasicBlocks() {
	sortedLeaders := make([]uint32, 0, len(b.leaders))
	for addr := range b.leaders {
		sortedLeaders = append(sortedLeaders, addr)
	}
	sort.Slice(sortedLeaders, func(i, j int) bool { return sortedLeaders[i] < sortedLeaders[j] })

	var lastAddr uint32
	var haveLast bool
	if len(b.instructions) > 0 {
		last := b.instructions[len(b.instructions)-1]
		lastAddr = last.NextAddress() - 1
		haveLast = true
	}

	for i, leader := range sortedLeaders {
		var endAddr uint32
		if i+1 < len(sortedLeaders) {
			endAddr = sortedLeaders[i+1] - 1
		} else if haveLast {
			endAddr = lastAddr
		} else {
			endAddr = leader
		}

		var blockInstructions []*ir.Instruction
		for _, inst := range b.instructions {
			if inst.Address >= leader && inst.Address <= endAddr {
				blockInstructions = append(blockInstructions, inst)
			}
		}
		if len(blockInstructions) == 0 {
			continue
		}

		block := ir.NewBasicBlock(fmt.Sprintf("block_%08X", leader), leader)
		block.EndAddress = blockInstructions[len(blockInstructions)-1].Address
		block.Instructions = blockInstructions
		block.Type = determineBlockType(blockInstructions, b.entryPoints[leader])

		b.blocks = append(b.blocks, block)
	}
}

// addControlFlowEdges implements Pass 2's edge wiring per the §4.3
// terminator table.
func (b *Builder) addControlFlowEdges(cfg *ir.ControlFlowGraph) []uint32 {
	var unresolved []uint32

	for _, block := range b.blocks {
		if len(block.Instructions) == 0 {
			continue
		}
		last := block.Instructions[len(block.Instructions)-1]

		switch {
		case last.IsBranch && !last.IsReturn && !last.IsCall:
			if last.BranchTarget != nil {
				target := b.findBlockByAddress(*last.BranchTarget)
				if target != nil {
					block.BranchTargets = append(block.BranchTargets, target.ID)
					cfg.AddEdge(block.ID, target.ID)
				} else {
					unresolved = append(unresolved, last.Address)
					last.Annotation = "UNRESOLVED_TARGET"
				}
			} else {
				unresolved = append(unresolved, last.Address)
				last.Annotation = "UNRESOLVED_TARGET (indirect)"
			}

			if !isUnconditionalBranch(last) {
				if next := b.findNextBlock(block); next != nil {
					block.FallThrough = next.ID
					cfg.AddEdge(block.ID, next.ID)
				}
			}

		case last.IsReturn:
			// No successors.

		case last.IsCall:
			if next := b.findNextBlock(block); next != nil {
				block.FallThrough = next.ID
				cfg.AddEdge(block.ID, next.ID)
			}

		default:
			if next := b.findNextBlock(block); next != nil {
				block.FallThrough = next.ID
				cfg.AddEdge(block.ID, next.ID)
			}
		}
	}

	return unresolved
}

// assignSyntheticLabels implements §4.3's label assignment: ENTRY blocks
// get "ENTRY", CALL-type targets get "PROC_NNN", other targets get
// "L_NNNNN", and the shared counter also labels call-target instructions
// directly.
func (b *Builder) assignSyntheticLabels() {
	counter := 1

	sorted := append([]*ir.BasicBlock(nil), b.blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartAddress < sorted[j].StartAddress })

	for _, block := range sorted {
		if len(block.Predecessors) == 0 && block.Type != ir.BlockEntry {
			continue
		}
		if len(block.Instructions) == 0 {
			continue
		}
		first := block.Instructions[0]
		if first.SyntheticLabel != "" {
			continue
		}

		switch block.Type {
		case ir.BlockEntry:
			first.SyntheticLabel = "ENTRY"
		case ir.BlockCall:
			first.SyntheticLabel = fmt.Sprintf("PROC_%03d", counter)
			counter++
		default:
			first.SyntheticLabel = fmt.Sprintf("L_%05d", counter)
			counter++
		}
	}

	for _, inst := range b.instructions {
		if inst.IsCall && inst.BranchTarget != nil {
			target, ok := b.instructionMap[*inst.BranchTarget]
			if ok && target.SyntheticLabel == "" {
				target.SyntheticLabel = fmt.Sprintf("PROC_%03d", counter)
				counter++
			}
		}
	}
}

// findUnresolvedBranches scans for branches whose resolved target simply
// doesn't land on a known instruction address (distinct from the
// never-computed-a-target case already recorded during edge wiring).
func (b *Builder) findUnresolvedBranches(cfg *ir.ControlFlowGraph) {
	for _, inst := range b.instructions {
		if inst.IsBranch && inst.BranchTarget != nil {
			if _, ok := b.instructionMap[*inst.BranchTarget]; !ok {
				cfg.AddUnresolved(inst.Address)
			}
		}
	}
}

func determineBlockType(instructions []*ir.Instruction, isEntry bool) ir.BlockType {
	if len(instructions) == 0 {
		return ir.BlockUnknown
	}
	last := instructions[len(instructions)-1]

	if isEntry {
		return ir.BlockEntry
	}
	for _, inst := range instructions {
		if inst.IsCall {
			return ir.BlockCall
		}
	}
	if last.IsReturn {
		return ir.BlockReturn
	}
	if last.IsBranch {
		return ir.BlockBranch
	}
	return ir.BlockNormal
}

// isUnconditionalBranch implements §4.3's fall-through suppression rule:
// BC 15,x and BCR 15,x are unconditional (the extended mnemonics B/BR
// would be too, were they ever produced by the decoder).
func isUnconditionalBranch(inst *ir.Instruction) bool {
	if inst.Mnemonic == "BC" && len(inst.Operands) > 0 && inst.Operands[0] == "15" {
		return true
	}
	if inst.Mnemonic == "BCR" && len(inst.Operands) > 0 && inst.Operands[0] == "15" {
		return true
	}
	if inst.Mnemonic == "B" || inst.Mnemonic == "BR" {
		return true
	}
	return false
}

func (b *Builder) findBlockByAddress(address uint32) *ir.BasicBlock {
	for _, block := range b.blocks {
		if address >= block.StartAddress && address <= block.EndAddress {
			return block
		}
	}
	return nil
}

// findNextBlock returns the block whose start is the smallest address
// greater than this block's end — the "fall-through block" of §4.3.
func (b *Builder) findNextBlock(block *ir.BasicBlock) *ir.BasicBlock {
	var next *ir.BasicBlock
	for _, other := range b.blocks {
		if other.StartAddress > block.EndAddress {
			if next == nil || other.StartAddress < next.StartAddress {
				next = other
			}
		}
	}
	return next
}
