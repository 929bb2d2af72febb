// Package procdetect infers procedure boundaries over an already-built
// control flow graph using the three independent heuristics from §4.4:
// known entry points, call targets, and prologue patterns.
package procdetect

import (
	"fmt"
	"sort"

	"github.com/ckillpk/zarchrev/ir"
)

const (
	entryPointConfidence = ir.High   // 0.95 equivalent
	callTargetConfidence = ir.Medium // 0.85 equivalent
	prologueConfidence   = ir.Medium // 0.75 equivalent; see DetectionMethod for the finer distinction
)

// Detector runs the three procedure-detection heuristics in the fixed
// order §4.4 requires: entry points first (so they always win a claim
// on their block), then call targets, then prologue patterns.
type Detector struct{}

// New returns a Detector.
func New() *Detector {
	return &Detector{}
}

// Detect populates cfg.Procedures and cfg.CallGraph from the blocks
// already registered on cfg.
func (d *Detector) Detect(cfg *ir.ControlFlowGraph) {
	claimed := make(map[uint32]bool)

	d.detectEntryPoints(cfg, claimed)
	d.detectCallTargets(cfg, claimed)
	d.detectPrologues(cfg, claimed)

	d.buildCallGraph(cfg)
}

func (d *Detector) detectEntryPoints(cfg *ir.ControlFlowGraph, claimed map[uint32]bool) {
	for _, ep := range cfg.EntryPoints {
		block := blockAtAddress(cfg, ep)
		if block == nil || claimed[ep] {
			continue
		}
		d.createProcedure(cfg, block, "entry_point", entryPointConfidence)
		claimed[ep] = true
	}
}

// detectCallTargets scans every instruction for call edges and claims
// the target block's start address as a new procedure entry.
func (d *Detector) detectCallTargets(cfg *ir.ControlFlowGraph, claimed map[uint32]bool) {
	targets := make(map[uint32]bool)
	for _, block := range cfg.Blocks {
		for _, inst := range block.Instructions {
			if inst.IsCall && inst.BranchTarget != nil {
				targets[*inst.BranchTarget] = true
			}
		}
	}

	sorted := sortedAddresses(targets)
	for _, addr := range sorted {
		if claimed[addr] {
			continue
		}
		block := blockAtAddress(cfg, addr)
		if block == nil {
			continue
		}
		d.createProcedure(cfg, block, "call_target", callTargetConfidence)
		claimed[addr] = true
	}
}

// detectPrologues claims any unclaimed block whose first instruction is
// the conventional register-save prologue, STM 14,12,....
func (d *Detector) detectPrologues(cfg *ir.ControlFlowGraph, claimed map[uint32]bool) {
	sorted := sortedBlocks(cfg)
	for _, block := range sorted {
		if claimed[block.StartAddress] {
			continue
		}
		if len(block.Instructions) == 0 {
			continue
		}
		first := block.Instructions[0]
		if first.Mnemonic == "STM" && len(first.Operands) > 0 && first.Operands[0] == "14" {
			d.createProcedure(cfg, block, "prologue_pattern", prologueConfidence)
			claimed[block.StartAddress] = true
		}
	}
}

// createProcedure materializes a Procedure rooted at block's start
// address and closes it over the blocks reachable without crossing a
// call edge (§4.4's intra-procedural DFS).
func (d *Detector) createProcedure(cfg *ir.ControlFlowGraph, entry *ir.BasicBlock, method string, confidence ir.Confidence) {
	id := fmt.Sprintf("proc_%08X", entry.StartAddress)
	name := fmt.Sprintf("PROC_%08X", entry.StartAddress)
	if entry.Instructions[0].SyntheticLabel != "" {
		name = entry.Instructions[0].SyntheticLabel
	}

	proc := ir.NewProcedure(id, name, entry.StartAddress, method, confidence)

	visited := make(map[string]bool)
	d.collectBlocks(cfg, entry, visited, proc)

	for blockID := range visited {
		proc.BlockIDs = append(proc.BlockIDs, blockID)
		block := cfg.Blocks[blockID]
		if block.Type == ir.BlockReturn {
			proc.ExitAddresses = append(proc.ExitAddresses, block.EndAddress)
		}
	}
	sort.Strings(proc.BlockIDs)
	sort.Slice(proc.ExitAddresses, func(i, j int) bool { return proc.ExitAddresses[i] < proc.ExitAddresses[j] })

	cfg.Procedures[id] = proc
}

// collectBlocks is the intra-procedural DFS: it follows every successor
// edge except one crossing a call (is_call instruction whose target is
// that successor), so control never wanders into a callee's body.
func (d *Detector) collectBlocks(cfg *ir.ControlFlowGraph, block *ir.BasicBlock, visited map[string]bool, proc *ir.Procedure) {
	if visited[block.ID] {
		return
	}
	visited[block.ID] = true

	for succID := range block.Successors {
		if isCallEdge(block, succID, cfg) {
			continue
		}
		succ, ok := cfg.Blocks[succID]
		if !ok {
			continue
		}
		d.collectBlocks(cfg, succ, visited, proc)
	}
}

// isCallEdge reports whether the edge from block to succID crosses a
// call: block's last instruction is a call whose target lands inside
// succ.
func isCallEdge(block *ir.BasicBlock, succID string, cfg *ir.ControlFlowGraph) bool {
	if len(block.Instructions) == 0 {
		return false
	}
	last := block.Instructions[len(block.Instructions)-1]
	if !last.IsCall || last.BranchTarget == nil {
		return false
	}
	succ, ok := cfg.Blocks[succID]
	if !ok {
		return false
	}
	return *last.BranchTarget >= succ.StartAddress && *last.BranchTarget <= succ.EndAddress
}

// buildCallGraph walks every call instruction and records a caller ->
// callee edge whenever both ends resolve to a known procedure.
func (d *Detector) buildCallGraph(cfg *ir.ControlFlowGraph) {
	for _, proc := range cfg.Procedures {
		for _, blockID := range proc.BlockIDs {
			block, ok := cfg.Blocks[blockID]
			if !ok {
				continue
			}
			for _, inst := range block.Instructions {
				if !inst.IsCall || inst.BranchTarget == nil {
					continue
				}
				callee := procedureAtAddress(cfg, *inst.BranchTarget)
				if callee == nil || callee.ID == proc.ID {
					continue
				}
				cfg.AddCallEdge(proc.ID, callee.ID)
			}
		}
	}
}

func procedureAtAddress(cfg *ir.ControlFlowGraph, addr uint32) *ir.Procedure {
	for _, proc := range cfg.Procedures {
		if proc.EntryAddress == addr {
			return proc
		}
	}
	return nil
}

func blockAtAddress(cfg *ir.ControlFlowGraph, addr uint32) *ir.BasicBlock {
	for _, block := range cfg.Blocks {
		if block.StartAddress == addr {
			return block
		}
	}
	return nil
}

func sortedAddresses(set map[uint32]bool) []uint32 {
	out := make([]uint32, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedBlocks(cfg *ir.ControlFlowGraph) []*ir.BasicBlock {
	out := make([]*ir.BasicBlock, 0, len(cfg.Blocks))
	for _, b := range cfg.Blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAddress < out[j].StartAddress })
	return out
}
