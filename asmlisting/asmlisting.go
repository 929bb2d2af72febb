// Package asmlisting renders a DisassemblyResult as an HLASM-like
// assembly listing, grounded on the teacher's column-padded
// strings.Builder listing renderer.
package asmlisting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ckillpk/zarchrev/ir"
)

// Render produces the complete listing: a header banner, then every
// instruction's line (in address order), then a trailer summarizing the
// undecoded byte runs.
func Render(result *ir.DisassemblyResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "* MODULE %s (%s)\n", result.Metadata.Name, result.Metadata.FormatType)
	fmt.Fprintf(&b, "* AMODE=%d RMODE=%s\n", result.Metadata.AMODE, result.Metadata.RMODE)
	if result.Metadata.EntryPoint != nil {
		fmt.Fprintf(&b, "* ENTRY %08X\n", *result.Metadata.EntryPoint)
	}
	b.WriteString("*\n")

	instructions := append([]*ir.Instruction(nil), result.Instructions...)
	sort.Slice(instructions, func(i, j int) bool { return instructions[i].Address < instructions[j].Address })

	for _, inst := range instructions {
		b.WriteString(inst.ToASMLine())
		b.WriteString("\n")
	}

	if len(result.UnknownRegions) > 0 {
		b.WriteString("*\n* UNDECODED REGIONS\n")
		for _, u := range result.UnknownRegions {
			fmt.Fprintf(&b, "* %08X-%08X (%d bytes)\n", u.Start, u.End, int(u.End-u.Start)+1)
		}
	}

	return b.String()
}
