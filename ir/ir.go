// Package ir defines the intermediate representation produced by the
// reverse-engineering pipeline: decoded instructions, the control flow
// graph built over them, inferred procedures, classified byte regions,
// and the module metadata recovered during ingestion.
//
// Every entity here is created once during analysis and is read-only
// afterwards. Cross-entity references use stable string ids resolved
// through the maps on ControlFlowGraph, never back-pointers, so the
// natural cycles in a CFG (loops, recursive calls) don't need weak
// references or a GC-aware graph structure.
package ir

import "fmt"

// Confidence is a three-valued ordinal, not a float. Keeping it an
// ordinal in the IR means comparisons and thresholds stay unambiguous;
// conversion to a float happens only in its consumers (pseudocode.Float
// for rendering, and the pipeline's validation scoring).
type Confidence int

const (
	Low Confidence = iota
	Medium
	High
)

func (c Confidence) String() string {
	switch c {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// InstructionFormat names the z/Architecture encoding family.
type InstructionFormat int

const (
	FormatUnknown InstructionFormat = iota
	FormatRR
	FormatRX
	FormatRS
	FormatSI
	FormatSS
	FormatRIL
)

func (f InstructionFormat) String() string {
	switch f {
	case FormatRR:
		return "RR"
	case FormatRX:
		return "RX"
	case FormatRS:
		return "RS"
	case FormatSI:
		return "SI"
	case FormatSS:
		return "SS"
	case FormatRIL:
		return "RIL"
	default:
		return "UNKNOWN"
	}
}

// BlockType classifies a basic block by how it terminates or how it was
// reached.
type BlockType int

const (
	BlockNormal BlockType = iota
	BlockEntry
	BlockCall
	BlockReturn
	BlockBranch
	BlockUnknown
)

func (t BlockType) String() string {
	switch t {
	case BlockEntry:
		return "entry"
	case BlockCall:
		return "call"
	case BlockReturn:
		return "return"
	case BlockBranch:
		return "branch"
	case BlockUnknown:
		return "unknown"
	default:
		return "normal"
	}
}

// Instruction is a single disassembled instruction with its evidence:
// the exact bytes it came from and the address that follows it.
type Instruction struct {
	Address        uint32
	RawBytes       []byte
	Mnemonic       string
	Operands       []string
	Format         InstructionFormat
	SyntheticLabel string
	IsBranch       bool
	IsCall         bool
	IsReturn       bool
	BranchTarget   *uint32
	Annotation     string
	Confidence     Confidence
}

// HexBytes renders RawBytes as uppercase hex, e.g. "47F01000".
func (i *Instruction) HexBytes() string {
	return fmt.Sprintf("%X", i.RawBytes)
}

// NextAddress is the address one past this instruction's last byte.
func (i *Instruction) NextAddress() uint32 {
	return i.Address + uint32(len(i.RawBytes))
}

// ToASMLine renders the HLASM-like listing line described in §6:
// AAAAAAAA BBBBBBBBBBBBBBBB LABEL     MNEM   OPERANDS [* annotation]
func (i *Instruction) ToASMLine() string {
	label := i.SyntheticLabel
	for len(label) < 8 {
		label += " "
	}
	bytesCol := i.HexBytes()
	if len(bytesCol) > 16 {
		bytesCol = bytesCol[:16]
	}
	for len(bytesCol) < 16 {
		bytesCol += " "
	}
	operands := ""
	for idx, op := range i.Operands {
		if idx > 0 {
			operands += ","
		}
		operands += op
	}
	mnem := i.Mnemonic
	for len(mnem) < 6 {
		mnem += " "
	}
	line := fmt.Sprintf("%08X %s %s %s %s", i.Address, bytesCol, label, mnem, operands)
	if i.Annotation != "" {
		line += "  * " + i.Annotation
	}
	return line
}

// BasicBlock is a maximal straight-line instruction sequence with a
// single entry and a single exit.
type BasicBlock struct {
	ID             string
	StartAddress   uint32
	EndAddress     uint32
	Instructions   []*Instruction
	Type           BlockType
	Predecessors   map[string]bool
	Successors     map[string]bool
	FallThrough    string // empty when unset
	BranchTargets  []string
	Confidence     Confidence
}

// NewBasicBlock returns an empty block ready to be populated by the CFG
// builder.
func NewBasicBlock(id string, start uint32) *BasicBlock {
	return &BasicBlock{
		ID:           id,
		StartAddress: start,
		Predecessors: make(map[string]bool),
		Successors:   make(map[string]bool),
		Confidence:   High,
	}
}

// Procedure is an inferred function: an entry address, the set of blocks
// reachable from it without crossing a call edge, and its place in the
// call graph.
type Procedure struct {
	ID               string
	Name             string
	EntryAddress     uint32
	ExitAddresses    []uint32
	BlockIDs         []string
	CallsTo          map[string]bool
	CalledBy         map[string]bool
	Confidence       Confidence
	DetectionMethod  string
}

// NewProcedure returns an empty procedure.
func NewProcedure(id, name string, entry uint32, method string, confidence Confidence) *Procedure {
	return &Procedure{
		ID:              id,
		Name:            name,
		EntryAddress:    entry,
		CallsTo:         make(map[string]bool),
		CalledBy:        make(map[string]bool),
		Confidence:      confidence,
		DetectionMethod: method,
	}
}

// ControlFlowGraph is the module-wide graph of basic blocks, procedures,
// and their relationships.
type ControlFlowGraph struct {
	ModuleName          string
	EntryPoints         []uint32
	Blocks              map[string]*BasicBlock
	Procedures          map[string]*Procedure
	CallGraph           map[string]map[string]bool
	UnresolvedBranches  []uint32
	DataRegions         [][2]uint32
}

// NewControlFlowGraph returns a CFG with its maps initialized and the
// given entry points, matching the disassembler's responsibility (§4.2)
// of seeding the CFG with only the module name and entry-point list.
func NewControlFlowGraph(moduleName string, entryPoints []uint32) *ControlFlowGraph {
	return &ControlFlowGraph{
		ModuleName:  moduleName,
		EntryPoints: entryPoints,
		Blocks:      make(map[string]*BasicBlock),
		Procedures:  make(map[string]*Procedure),
		CallGraph:   make(map[string]map[string]bool),
	}
}

// AddBlock registers a block by id.
func (c *ControlFlowGraph) AddBlock(b *BasicBlock) {
	c.Blocks[b.ID] = b
}

// AddEdge records a successor/predecessor pair between two already
// registered blocks.
func (c *ControlFlowGraph) AddEdge(fromID, toID string) {
	from, ok := c.Blocks[fromID]
	if !ok {
		return
	}
	to, ok := c.Blocks[toID]
	if !ok {
		return
	}
	from.Successors[toID] = true
	to.Predecessors[fromID] = true
}

// AddUnresolved appends an unresolved branch source address, skipping
// duplicates (the CFG invariant forbids repeats).
func (c *ControlFlowGraph) AddUnresolved(addr uint32) {
	for _, a := range c.UnresolvedBranches {
		if a == addr {
			return
		}
	}
	c.UnresolvedBranches = append(c.UnresolvedBranches, addr)
}

// AddCallEdge records a caller -> callee relationship in both the call
// graph map and the procedures' own CallsTo/CalledBy sets.
func (c *ControlFlowGraph) AddCallEdge(callerID, calleeID string) {
	caller, ok := c.Procedures[callerID]
	if !ok {
		return
	}
	callee, ok := c.Procedures[calleeID]
	if !ok {
		return
	}
	caller.CallsTo[calleeID] = true
	callee.CalledBy[callerID] = true

	if c.CallGraph[callerID] == nil {
		c.CallGraph[callerID] = make(map[string]bool)
	}
	c.CallGraph[callerID][calleeID] = true
}

// RegionType classifies a byte range as executable code, data, or
// undetermined.
type RegionType int

const (
	RegionUnknown RegionType = iota
	RegionCode
	RegionData
)

func (t RegionType) String() string {
	switch t {
	case RegionCode:
		return "code"
	case RegionData:
		return "data"
	default:
		return "unknown"
	}
}

// Region is a classified, inclusive byte range within the code extent.
type Region struct {
	Start      uint32
	End        uint32
	Type       RegionType
	Confidence Confidence
	Evidence   string
	DecodeRate float64
}

// ModuleMetadata is what the ingestor recovers about the artifact before
// any bytes are disassembled.
type ModuleMetadata struct {
	Name             string
	FormatType       string // "load_module", "program_object", "unknown"
	EntryPoint       *uint32
	ExternalSymbols  []string
	Sections         []SectionInfo
	AMODE            int
	RMODE            string
	Attributes       map[string]string
}

// SectionInfo describes one section/CSECT-like descriptor recovered from
// a program object header.
type SectionInfo struct {
	Offset uint32
	Size   uint32
	Type   string
}

// UnknownRegion is an undecodable byte run flushed by the disassembler.
type UnknownRegion struct {
	Start    uint32
	End      uint32
	RawBytes []byte
}

// DisassemblyResult is the sole immutable output handed to collaborators
// (report writers, renderers, the CLI).
type DisassemblyResult struct {
	Metadata       ModuleMetadata
	Instructions   []*Instruction
	CFG            *ControlFlowGraph
	UnknownRegions []UnknownRegion
	Warnings       []string
	Statistics     map[string]any
}
