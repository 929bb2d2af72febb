package ingest

import "testing"

func TestLoadRejectsShortArtifact(t *testing.T) {
	g := New()
	_, _, err := g.Load("tiny.bin", []byte{0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected a FormatError for a sub-8-byte artifact")
	}
	var fe *FormatError
	if !asFormatError(err, &fe) {
		t.Fatalf("error = %v, want *FormatError", err)
	}
}

func asFormatError(err error, target **FormatError) bool {
	fe, ok := err.(*FormatError)
	if ok {
		*target = fe
	}
	return ok
}

func TestDetectFormatProgramObject(t *testing.T) {
	// 32-byte header + one 16-byte external entry; text_size covers the
	// external entry's bytes too, matching the original ingestor's
	// overlapping code/descriptor-table layout.
	data := make([]byte, 48)
	data[0], data[1] = 0x00, 0x03 // magic

	putU32(data[8:12], 16)     // text_size
	putU32(data[12:16], 0x1000) // entry_offset
	putU16(data[16:18], 1)    // external_count
	putU16(data[18:20], 0)    // section_count

	// External symbol name, EBCDIC "AB" padded with spaces to 8 bytes.
	copy(data[32:40], []byte{0xC1, 0xC2, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40})

	g := New()
	meta, code, err := g.Load("prog.obj", data)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if meta.FormatType != formatProgramObject {
		t.Errorf("FormatType = %q, want %q", meta.FormatType, formatProgramObject)
	}
	if meta.EntryPoint == nil || *meta.EntryPoint != 0x1000 {
		t.Errorf("EntryPoint = %v, want 0x1000", meta.EntryPoint)
	}
	if meta.AMODE != 31 {
		t.Errorf("AMODE = %d, want 31 (program objects carry no AMODE byte; this is the §4.1 default)", meta.AMODE)
	}
	if len(code) != 16 {
		t.Errorf("code length = %d, want 16 (text_size)", len(code))
	}
	if len(meta.ExternalSymbols) != 1 || meta.ExternalSymbols[0] != "AB" {
		t.Errorf("ExternalSymbols = %v, want [AB]", meta.ExternalSymbols)
	}
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func TestDetectFormatLoadModule(t *testing.T) {
	data := []byte{0x47, 0xF0, 0x10, 0x00, 0x05, 0xEF, 0x00, 0x00}
	g := New()
	meta, code, err := g.Load("prog.load", data)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if meta.FormatType != formatLoadModule {
		t.Errorf("FormatType = %q, want %q", meta.FormatType, formatLoadModule)
	}
	if len(code) != len(data) {
		t.Errorf("code length = %d, want %d (no PDS header present)", len(code), len(data))
	}
}

func TestDetectFormatUnknownFallsBackToHeuristics(t *testing.T) {
	data := make([]byte, 16)
	for i := range data {
		data[i] = 0xAA
	}
	g := New()
	meta, code, err := g.Load("mystery.bin", data)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if meta.FormatType != formatUnknown {
		t.Errorf("FormatType = %q, want %q", meta.FormatType, formatUnknown)
	}
	if len(code) != len(data) {
		t.Errorf("code length = %d, want %d", len(code), len(data))
	}
}

func TestEBCDICToASCII(t *testing.T) {
	// "AB1 " in EBCDIC.
	data := []byte{0xC1, 0xC2, 0xF1, 0x40}
	got := ebcdicToASCII(data)
	want := "AB1 "
	if got != want {
		t.Errorf("ebcdicToASCII(%x) = %q, want %q", data, got, want)
	}
}

func TestEBCDICToASCIIUnmappedByteBecomesDot(t *testing.T) {
	got := ebcdicToASCII([]byte{0x00})
	if got != "." {
		t.Errorf("ebcdicToASCII(0x00) = %q, want %q", got, ".")
	}
}
