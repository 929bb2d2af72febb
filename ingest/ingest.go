// Package ingest recognizes and parses the binary container formats the
// engine accepts (§4.1): z/OS load modules and program objects, falling
// back to a raw-code heuristic scan when neither format is recognized.
package ingest

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ckillpk/zarchrev/ir"
)

// FormatError is the only condition that aborts ingestion outright: an
// artifact too short to contain even a minimal header.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

const (
	formatLoadModule    = "load_module"
	formatProgramObject = "program_object"
	formatUnknown       = "unknown"
)

// loadModulePrefixes are the recognized first-two-byte signatures of a
// z/OS load module's first text record, per §4.1.
var loadModulePrefixes = [][2]byte{
	{0x47, 0xF0},
	{0x90, 0xEC},
	{0x18, 0x0F},
	{0x05, 0xC0},
}

// Ingestor recovers a ModuleMetadata and the raw code bytes from an
// artifact buffer.
type Ingestor struct{}

// New returns an Ingestor. It carries no state; format detection is a
// pure function of the input bytes.
func New() *Ingestor {
	return &Ingestor{}
}

// Load detects the artifact's format and extracts its metadata and code
// bytes. path is used only to annotate a FormatError and as the default
// module name.
func (g *Ingestor) Load(path string, data []byte) (*ir.ModuleMetadata, []byte, error) {
	if len(data) < 8 {
		return nil, nil, &FormatError{Path: path, Reason: "artifact shorter than the minimum 8-byte header"}
	}

	name := moduleNameFromPath(path)

	switch detectFormat(data) {
	case formatProgramObject:
		meta, code := parseProgramObject(name, data)
		return meta, code, nil
	case formatLoadModule:
		meta, code := parseLoadModule(name, data)
		return meta, code, nil
	default:
		meta, code := applyHeuristics(name, data)
		return meta, code, nil
	}
}

func moduleNameFromPath(path string) string {
	name := path
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	if name == "" {
		name = "UNKNOWN"
	}
	return strings.ToUpper(name)
}

// detectFormat implements §4.1's ordered detection: program object magic
// first, then the load-module prefix table, else unknown.
func detectFormat(data []byte) string {
	if len(data) >= 2 && data[0] == 0x00 && data[1] == 0x03 {
		return formatProgramObject
	}
	if looksLikeLoadModule(data) {
		return formatLoadModule
	}
	return formatUnknown
}

func looksLikeLoadModule(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	for _, prefix := range loadModulePrefixes {
		if data[0] == prefix[0] && data[1] == prefix[1] {
			return true
		}
	}
	return false
}

// externalStride and sectionStride are the fixed byte strides §4.1
// describes for the descriptor tables following a program object's
// 32-byte header: an external is an 8-byte EBCDIC name (padded to a
// 16-byte entry), a section is a 4-byte offset plus a 4-byte size
// (padded to a 20-byte entry).
const (
	programObjectHeaderSize = 32
	externalStride          = 16
	sectionStride           = 20
)

// parseProgramObject reads the 32-byte program object header described
// in §4.1 — version (2–3), flags (4–5), text_size (8–11), entry_offset
// (12–15), external_count (16–17), section_count (18–19) — then the
// external symbol table and section table that follow it, and returns
// the code region `[32, 32+text_size)`.
func parseProgramObject(name string, data []byte) (*ir.ModuleMetadata, []byte) {
	meta := &ir.ModuleMetadata{
		Name:       name,
		FormatType: formatProgramObject,
		AMODE:      31,
		RMODE:      "ANY",
		Attributes: map[string]string{},
	}

	if len(data) < programObjectHeaderSize {
		meta.Attributes["truncated_header"] = "true"
		return meta, data
	}

	header := data[:programObjectHeaderSize]

	textSize := binary.BigEndian.Uint32(header[8:12])
	entry := binary.BigEndian.Uint32(header[12:16])
	externalCount := int(binary.BigEndian.Uint16(header[16:18]))
	sectionCount := int(binary.BigEndian.Uint16(header[18:20]))

	meta.EntryPoint = &entry

	codeEnd := programObjectHeaderSize + int(textSize)
	if codeEnd > len(data) {
		codeEnd = len(data)
	}
	code := data[programObjectHeaderSize:codeEnd]

	offset := programObjectHeaderSize
	for i := 0; i < externalCount && offset+externalStride <= len(data); i++ {
		name := ebcdicToASCII(data[offset : offset+8])
		meta.ExternalSymbols = append(meta.ExternalSymbols, strings.TrimRight(name, " "))
		offset += externalStride
	}

	for i := 0; i < sectionCount && offset+sectionStride <= len(data); i++ {
		sectOffset := binary.BigEndian.Uint32(data[offset : offset+4])
		sectSize := binary.BigEndian.Uint32(data[offset+4 : offset+8])
		meta.Sections = append(meta.Sections, ir.SectionInfo{
			Offset: sectOffset,
			Size:   sectSize,
			Type:   "CSECT",
		})
		offset += sectionStride
	}

	return meta, code
}

// parseLoadModule handles the classic load-module layout: an optional
// 20-byte PDS directory entry (identified by EBCDIC member-name bytes)
// followed directly by instruction text.
func parseLoadModule(name string, data []byte) (*ir.ModuleMetadata, []byte) {
	meta := &ir.ModuleMetadata{
		Name:       name,
		FormatType: formatLoadModule,
		AMODE:      31,
		RMODE:      "ANY",
		Attributes: map[string]string{},
	}

	code := data
	if hasPDSHeader(data) {
		const dirEntrySize = 20
		if len(data) > dirEntrySize {
			info := extractPDSInfo(data[:dirEntrySize])
			for k, v := range info {
				meta.Attributes[k] = v
			}
			code = data[dirEntrySize:]
		}
	}

	entry := uint32(0)
	meta.EntryPoint = &entry

	return meta, code
}

// hasPDSHeader checks whether the first 8 bytes decode to plausible
// EBCDIC uppercase member-name characters, per §4.1.
func hasPDSHeader(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	for _, b := range data[:8] {
		if b == 0x40 {
			continue
		}
		if !isEBCDICUpperOrDigit(b) {
			return false
		}
	}
	return true
}

func extractPDSInfo(entry []byte) map[string]string {
	name := ebcdicToASCII(entry[:8])
	return map[string]string{
		"member_name": strings.TrimRight(name, " "),
	}
}

// applyHeuristics scans the first 256 bytes at a 2-byte stride looking
// for a byte pair that decodes as a plausible instruction opcode, per
// §4.1's unknown-format fallback.
func applyHeuristics(name string, data []byte) (*ir.ModuleMetadata, []byte) {
	meta := &ir.ModuleMetadata{
		Name:       name,
		FormatType: formatUnknown,
		AMODE:      31,
		RMODE:      "ANY",
		Attributes: map[string]string{"heuristic_scan": "true"},
	}

	scanLen := len(data)
	if scanLen > 256 {
		scanLen = 256
	}
	for offset := 0; offset+1 < scanLen; offset += 2 {
		if looksLikeOpcode(data[offset]) {
			entry := uint32(offset)
			meta.EntryPoint = &entry
			break
		}
	}

	return meta, data
}

func looksLikeOpcode(b byte) bool {
	switch {
	case b >= 0x00 && b <= 0x1F:
		return true
	case b >= 0x40 && b <= 0x5F:
		return true
	case b >= 0x90 && b <= 0x9B:
		return true
	case b >= 0xD0 && b <= 0xDF:
		return true
	default:
		return false
	}
}

func isEBCDICUpperOrDigit(b byte) bool {
	switch {
	case b >= 0xC1 && b <= 0xC9:
		return true
	case b >= 0xD1 && b <= 0xD9:
		return true
	case b >= 0xE2 && b <= 0xE9:
		return true
	case b >= 0xF0 && b <= 0xF9:
		return true
	default:
		return false
	}
}

// ebcdicToASCII converts an EBCDIC-encoded byte slice to ASCII using the
// fixed table in §4.1; any byte outside the recognized ranges becomes
// '.'.
func ebcdicToASCII(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		sb.WriteByte(ebcdicByteToASCII(b))
	}
	return sb.String()
}

func ebcdicByteToASCII(b byte) byte {
	switch {
	case b == 0x40:
		return ' '
	case b >= 0xC1 && b <= 0xC9:
		return 'A' + (b - 0xC1)
	case b >= 0xD1 && b <= 0xD9:
		return 'J' + (b - 0xD1)
	case b >= 0xE2 && b <= 0xE9:
		return 'S' + (b - 0xE2)
	case b >= 0xF0 && b <= 0xF9:
		return '0' + (b - 0xF0)
	default:
		return '.'
	}
}
