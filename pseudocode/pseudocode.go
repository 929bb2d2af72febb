// Package pseudocode renders a procedure as structured pseudocode:
// PROCEDURE/END PROCEDURE framing, IF/ELSE reconstruction from
// conditional branches, LOOP detection from back edges, and a
// mnemonic-to-statement mapping for the common instructions.
package pseudocode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ckillpk/zarchrev/ir"
)

// Float converts the IR's ordinal Confidence to the 0..1 scale render
// surfaces expect. The IR itself never stores a float confidence; the
// pipeline's validation scoring uses its own scale.
func Float(c ir.Confidence) float64 {
	switch c {
	case ir.High:
		return 0.95
	case ir.Medium:
		return 0.7
	default:
		return 0.4
	}
}

// conditionMask maps the low-order mask nibble of BC/BCR to its
// conventional branch condition name. Only the common single-bit,
// all-bits and no-bits cases are named; an unrecognized mask renders as
// "MASK n".
var conditionMask = map[string]string{
	"8": "EQUAL",
	"4": "HIGH",
	"2": "LOW",
	"1": "OVERFLOW",
	"15": "ALWAYS",
	"0": "NEVER",
}

// Generate renders every procedure in cfg as pseudocode, in ascending
// entry-address order.
func Generate(cfg *ir.ControlFlowGraph) string {
	var procs []*ir.Procedure
	for _, p := range cfg.Procedures {
		procs = append(procs, p)
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].EntryAddress < procs[j].EntryAddress })

	var b strings.Builder
	for _, proc := range procs {
		generateProcedure(&b, cfg, proc)
		b.WriteString("\n")
	}
	return b.String()
}

func generateProcedure(b *strings.Builder, cfg *ir.ControlFlowGraph, proc *ir.Procedure) {
	fmt.Fprintf(b, "PROCEDURE %s  ; confidence=%.2f, detected_by=%s\n", proc.Name, Float(proc.Confidence), proc.DetectionMethod)

	loopHeaders := findLoopHeaders(cfg, proc)

	visited := make(map[string]bool)
	entry := blockByAddress(cfg, proc.EntryAddress)
	if entry != nil {
		generateBlockSequence(b, cfg, entry, visited, loopHeaders, 1)
	}

	b.WriteString("END PROCEDURE\n")
}

func generateBlockSequence(b *strings.Builder, cfg *ir.ControlFlowGraph, block *ir.BasicBlock, visited map[string]bool, loopHeaders map[string]bool, indent int) {
	if visited[block.ID] {
		return
	}
	visited[block.ID] = true

	if loopHeaders[block.ID] {
		writeIndented(b, indent, fmt.Sprintf("LOOP  ; header %08X", block.StartAddress))
		indent++
	}

	for _, inst := range block.Instructions {
		writeIndented(b, indent, instructionToStatement(inst))
	}

	if len(block.BranchTargets) > 0 && block.FallThrough != "" {
		generateBranchStructure(b, cfg, block, visited, loopHeaders, indent)
		return
	}

	if loopHeaders[block.ID] {
		indent--
		writeIndented(b, indent, "END LOOP")
	}

	if block.FallThrough != "" {
		if next, ok := cfg.Blocks[block.FallThrough]; ok {
			generateBlockSequence(b, cfg, next, visited, loopHeaders, indent)
		}
	}
	for _, targetID := range block.BranchTargets {
		if next, ok := cfg.Blocks[targetID]; ok {
			generateBlockSequence(b, cfg, next, visited, loopHeaders, indent)
		}
	}
}

// generateBranchStructure renders a conditional block as IF/ELSE: the
// fall-through path is the "else", the branch target is the "then",
// matching the source generator's convention that a taken conditional
// branch represents the true case.
func generateBranchStructure(b *strings.Builder, cfg *ir.ControlFlowGraph, block *ir.BasicBlock, visited map[string]bool, loopHeaders map[string]bool, indent int) {
	var last *ir.Instruction
	if len(block.Instructions) > 0 {
		last = block.Instructions[len(block.Instructions)-1]
	}
	condition := "?"
	if last != nil {
		condition = branchCondition(last)
	}

	writeIndented(b, indent, fmt.Sprintf("IF %s THEN", condition))
	for _, targetID := range block.BranchTargets {
		if target, ok := cfg.Blocks[targetID]; ok {
			generateBlockSequence(b, cfg, target, visited, loopHeaders, indent+1)
		}
	}
	writeIndented(b, indent, "ELSE")
	if next, ok := cfg.Blocks[block.FallThrough]; ok {
		generateBlockSequence(b, cfg, next, visited, loopHeaders, indent+1)
	}
	writeIndented(b, indent, "END IF")
}

func branchCondition(inst *ir.Instruction) string {
	if len(inst.Operands) == 0 {
		return "UNKNOWN"
	}
	if name, ok := conditionMask[inst.Operands[0]]; ok {
		return name
	}
	return "MASK " + inst.Operands[0]
}

// instructionToStatement maps common mnemonics to a pseudocode
// statement; anything unmapped renders as a raw mnemonic/operand line.
func instructionToStatement(inst *ir.Instruction) string {
	ops := inst.Operands
	switch inst.Mnemonic {
	case "L", "LR":
		return fmt.Sprintf("R%s = LOAD(%s)", reg(ops, 0), operand(ops, 1))
	case "ST":
		return fmt.Sprintf("STORE(%s, R%s)", operand(ops, 1), reg(ops, 0))
	case "LA":
		return fmt.Sprintf("R%s = ADDRESS(%s)", reg(ops, 0), operand(ops, 1))
	case "A", "AR":
		return fmt.Sprintf("R%s = R%s + %s", reg(ops, 0), reg(ops, 0), operand(ops, 1))
	case "S", "SR":
		return fmt.Sprintf("R%s = R%s - %s", reg(ops, 0), reg(ops, 0), operand(ops, 1))
	case "C", "CR", "CL", "CLR":
		return fmt.Sprintf("COMPARE(R%s, %s)", reg(ops, 0), operand(ops, 1))
	case "STM":
		return fmt.Sprintf("SAVE_REGISTERS(%s..%s, %s)", reg(ops, 0), reg(ops, 1), operand(ops, 2))
	case "LM":
		return fmt.Sprintf("RESTORE_REGISTERS(%s..%s, %s)", reg(ops, 0), reg(ops, 1), operand(ops, 2))
	case "BALR", "BASR", "BAL", "BAS":
		return fmt.Sprintf("CALL %s", targetLabel(inst))
	case "BCR":
		if len(ops) > 1 && ops[0] == "15" && ops[1] == "14" {
			return "RETURN"
		}
		return fmt.Sprintf("GOTO %s", targetLabel(inst))
	case "BC":
		return fmt.Sprintf("GOTO %s", targetLabel(inst))
	case "MVC":
		return fmt.Sprintf("MOVE(%s, %s)", operand(ops, 1), operand(ops, 0))
	default:
		return fmt.Sprintf("%s %s", inst.Mnemonic, strings.Join(ops, ","))
	}
}

func targetLabel(inst *ir.Instruction) string {
	if inst.SyntheticLabel != "" {
		return inst.SyntheticLabel
	}
	if inst.BranchTarget != nil {
		return fmt.Sprintf("%08X", *inst.BranchTarget)
	}
	return "UNKNOWN"
}

func reg(ops []string, idx int) string {
	if idx < len(ops) {
		return ops[idx]
	}
	return "?"
}

func operand(ops []string, idx int) string {
	if idx < len(ops) {
		return ops[idx]
	}
	return "?"
}

func writeIndented(b *strings.Builder, indent int, line string) {
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(line)
	b.WriteString("\n")
}

func blockByAddress(cfg *ir.ControlFlowGraph, addr uint32) *ir.BasicBlock {
	for _, blk := range cfg.Blocks {
		if blk.StartAddress == addr {
			return blk
		}
	}
	return nil
}

// findLoopHeaders detects back edges within proc's own blocks: an edge
// from a block to one of its own ancestors in DFS order marks the
// ancestor as a loop header.
func findLoopHeaders(cfg *ir.ControlFlowGraph, proc *ir.Procedure) map[string]bool {
	headers := make(map[string]bool)
	onStack := make(map[string]bool)
	visited := make(map[string]bool)

	blockSet := make(map[string]bool, len(proc.BlockIDs))
	for _, id := range proc.BlockIDs {
		blockSet[id] = true
	}

	var dfs func(id string)
	dfs = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		onStack[id] = true

		block, ok := cfg.Blocks[id]
		if ok {
			for succ := range block.Successors {
				if !blockSet[succ] {
					continue
				}
				if onStack[succ] {
					headers[succ] = true
					continue
				}
				dfs(succ)
			}
		}
		onStack[id] = false
	}

	entryBlock := blockByAddress(cfg, proc.EntryAddress)
	if entryBlock != nil {
		dfs(entryBlock.ID)
	}

	return headers
}
