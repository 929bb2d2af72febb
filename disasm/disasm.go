// Package disasm performs the linear sweep over a code region described
// in §4.2: it walks the byte buffer once, asking a decode.Decoder for an
// instruction at each position, and accumulates both the decoded
// instruction stream and the runs of bytes no decoder could make sense
// of.
package disasm

import (
	"sort"

	"github.com/ckillpk/zarchrev/decode"
	"github.com/ckillpk/zarchrev/ir"
)

// Disassembler performs the linear sweep against a pluggable decoder.
// The core only needs the narrow decode.Decoder capability; it never
// depends on a concrete decoder type.
type Disassembler struct {
	Decoder decode.Decoder
}

// New returns a Disassembler using the given decoder. A nil decoder
// defaults to decode.Native{}.
func New(d decode.Decoder) *Disassembler {
	if d == nil {
		d = decode.Native{}
	}
	return &Disassembler{Decoder: d}
}

// Disassemble sweeps data (the code region) starting at baseAddress and
// returns a DisassemblyResult with the CFG seeded per §4.2: module name
// and entry points only, ready for cfgbuild.Build to populate.
func (d *Disassembler) Disassemble(data []byte, baseAddress uint32, metadata ir.ModuleMetadata) *ir.DisassemblyResult {
	var instructions []*ir.Instruction
	var unknownRegions []ir.UnknownRegion

	offset := 0
	address := baseAddress

	var unknownStart uint32
	var unknownBytes []byte
	inUnknown := false

	for offset < len(data) {
		inst := d.Decoder.Decode(data, offset, address)
		if inst != nil {
			if inUnknown {
				unknownRegions = append(unknownRegions, ir.UnknownRegion{
					Start:    unknownStart,
					End:      address - 1,
					RawBytes: unknownBytes,
				})
				inUnknown = false
				unknownBytes = nil
			}
			instructions = append(instructions, inst)
			offset += len(inst.RawBytes)
			address += uint32(len(inst.RawBytes))
			continue
		}

		if !inUnknown {
			inUnknown = true
			unknownStart = address
			unknownBytes = nil
		}
		unknownBytes = append(unknownBytes, data[offset])
		offset++
		address++
	}

	if inUnknown {
		unknownRegions = append(unknownRegions, ir.UnknownRegion{
			Start:    unknownStart,
			End:      address - 1,
			RawBytes: unknownBytes,
		})
	}

	entryPoints := []uint32{baseAddress}
	if metadata.EntryPoint != nil {
		entryPoints = []uint32{*metadata.EntryPoint}
	}

	cfg := ir.NewControlFlowGraph(metadata.Name, entryPoints)

	return &ir.DisassemblyResult{
		Metadata:       metadata,
		Instructions:   instructions,
		CFG:            cfg,
		UnknownRegions: unknownRegions,
		Statistics:     statistics(instructions, unknownRegions),
	}
}

// statistics computes the §6 statistics block: counts, decode rate, and
// the top-10 mnemonics by frequency.
func statistics(instructions []*ir.Instruction, unknownRegions []ir.UnknownRegion) map[string]any {
	var decodedBytes, unknownBytes int
	var branchCount, callCount, returnCount int
	mnemonicCounts := make(map[string]int)

	for _, inst := range instructions {
		decodedBytes += len(inst.RawBytes)
		if inst.IsBranch {
			branchCount++
		}
		if inst.IsCall {
			callCount++
		}
		if inst.IsReturn {
			returnCount++
		}
		mnemonicCounts[inst.Mnemonic]++
	}
	for _, r := range unknownRegions {
		unknownBytes += int(r.End-r.Start) + 1
	}

	decodeRate := 0.0
	if decodedBytes+unknownBytes > 0 {
		decodeRate = float64(decodedBytes) / float64(decodedBytes+unknownBytes)
	}

	type mc struct {
		name  string
		count int
	}
	var all []mc
	for name, count := range mnemonicCounts {
		all = append(all, mc{name, count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].name < all[j].name
	})
	if len(all) > 10 {
		all = all[:10]
	}
	topMnemonics := make([][2]any, 0, len(all))
	for _, m := range all {
		topMnemonics = append(topMnemonics, [2]any{m.name, m.count})
	}

	return map[string]any{
		"instruction_count": len(instructions),
		"decoded_bytes":     decodedBytes,
		"unknown_bytes":     unknownBytes,
		"decode_rate":       decodeRate,
		"branch_count":      branchCount,
		"call_count":        callCount,
		"return_count":      returnCount,
		"top_mnemonics":     topMnemonics,
	}
}
