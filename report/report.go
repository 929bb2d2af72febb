// Package report writes a DisassemblyResult out in the engine's three
// structured formats plus the two rendered listings, grounded on the
// source reporter's text/YAML/JSON writers.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ckillpk/zarchrev/asmlisting"
	"github.com/ckillpk/zarchrev/ir"
	"github.com/ckillpk/zarchrev/pipeline"
	"github.com/ckillpk/zarchrev/pseudocode"
)

// Writer renders analysis results to disk in the engine's output
// formats.
type Writer struct {
	OutputDir string
}

// New returns a Writer rooted at dir; dir is created on first write.
func New(dir string) *Writer {
	return &Writer{OutputDir: dir}
}

// summary is the shared shape behind both the YAML and JSON reports.
type summary struct {
	Module       string         `yaml:"module" json:"module"`
	Format       string         `yaml:"format" json:"format"`
	AMODE        int            `yaml:"amode" json:"amode"`
	RMODE        string         `yaml:"rmode" json:"rmode"`
	Statistics   map[string]any `yaml:"statistics" json:"statistics"`
	Warnings     []string       `yaml:"warnings" json:"warnings"`
	Procedures   []procSummary  `yaml:"procedures" json:"procedures"`
	Validation   valSummary     `yaml:"validation" json:"validation"`
}

type procSummary struct {
	Name            string  `yaml:"name" json:"name"`
	EntryAddress    string  `yaml:"entry_address" json:"entry_address"`
	Confidence      string  `yaml:"confidence" json:"confidence"`
	DetectionMethod string  `yaml:"detection_method" json:"detection_method"`
	BlockCount      int     `yaml:"block_count" json:"block_count"`
}

type valSummary struct {
	Score        float64  `yaml:"score" json:"score"`
	DecodeRate   float64  `yaml:"decode_rate" json:"decode_rate"`
	Reachability float64  `yaml:"reachability" json:"reachability"`
	Issues       []string `yaml:"issues" json:"issues"`
}

func buildSummary(result *ir.DisassemblyResult, validation pipeline.Validation) summary {
	s := summary{
		Module:     result.Metadata.Name,
		Format:     result.Metadata.FormatType,
		AMODE:      result.Metadata.AMODE,
		RMODE:      result.Metadata.RMODE,
		Statistics: result.Statistics,
		Warnings:   result.Warnings,
		Validation: valSummary{
			Score:        validation.Score,
			DecodeRate:   validation.DecodeRate,
			Reachability: validation.Reachability,
			Issues:       validation.Issues,
		},
	}

	var procs []*ir.Procedure
	for _, p := range result.CFG.Procedures {
		procs = append(procs, p)
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].EntryAddress < procs[j].EntryAddress })
	for _, p := range procs {
		s.Procedures = append(s.Procedures, procSummary{
			Name:            p.Name,
			EntryAddress:    fmt.Sprintf("%08X", p.EntryAddress),
			Confidence:      p.Confidence.String(),
			DetectionMethod: p.DetectionMethod,
			BlockCount:      len(p.BlockIDs),
		})
	}

	return s
}

// WriteAll writes the text, YAML, JSON, ASM listing, and pseudocode
// outputs for result under w.OutputDir/<lower-cased module name>.*.
func (w *Writer) WriteAll(result *ir.DisassemblyResult, validation pipeline.Validation) error {
	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	base := strings.ToLower(result.Metadata.Name)
	s := buildSummary(result, validation)

	if err := w.writeText(base, result, validation); err != nil {
		return err
	}
	if err := w.writeYAML(base, s); err != nil {
		return err
	}
	if err := w.writeJSON(base, s); err != nil {
		return err
	}
	if err := w.writeFile(base+".asm", asmlisting.Render(result)); err != nil {
		return err
	}
	if err := w.writeFile(base+".pseudo", pseudocode.Generate(result.CFG)); err != nil {
		return err
	}

	return nil
}

func (w *Writer) writeText(base string, result *ir.DisassemblyResult, validation pipeline.Validation) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Module: %s (%s)\n", result.Metadata.Name, result.Metadata.FormatType)
	fmt.Fprintf(&b, "AMODE=%d RMODE=%s\n\n", result.Metadata.AMODE, result.Metadata.RMODE)

	fmt.Fprintf(&b, "Validation score: %.2f\n", validation.Score)
	for _, issue := range validation.Issues {
		fmt.Fprintf(&b, "  ! %s\n", issue)
	}
	b.WriteString("\n")

	if len(result.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, warning := range result.Warnings {
			fmt.Fprintf(&b, "  - %s\n", warning)
		}
		b.WriteString("\n")
	}

	b.WriteString("Procedures:\n")
	var procs []*ir.Procedure
	for _, p := range result.CFG.Procedures {
		procs = append(procs, p)
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].EntryAddress < procs[j].EntryAddress })
	for _, p := range procs {
		fmt.Fprintf(&b, "  %s @ %08X  confidence=%s  via=%s  blocks=%d\n",
			p.Name, p.EntryAddress, p.Confidence, p.DetectionMethod, len(p.BlockIDs))
	}

	return w.writeFile(base+".txt", b.String())
}

func (w *Writer) writeYAML(base string, s summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal yaml report: %w", err)
	}
	return w.writeFile(base+".yaml", string(data))
}

func (w *Writer) writeJSON(base string, s summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json report: %w", err)
	}
	return w.writeFile(base+".json", string(data))
}

func (w *Writer) writeFile(name, content string) error {
	path := filepath.Join(w.OutputDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// PortfolioEntry is one row of a batch run's index.
type PortfolioEntry struct {
	Module     string
	Path       string
	Score      float64
	DecodeRate float64
	Warnings   int
}

// WritePortfolioIndex writes a single YAML summary across every module
// processed in a batch run, sorted ascending by validation score so the
// weakest results surface first.
func (w *Writer) WritePortfolioIndex(entries []PortfolioEntry) error {
	if err := os.MkdirAll(w.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	sorted := append([]PortfolioEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	doc := struct {
		GeneratedAt string           `yaml:"generated_at"`
		Modules     []PortfolioEntry `yaml:"modules"`
	}{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Modules:     sorted,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal portfolio index: %w", err)
	}
	return w.writeFile("index.yaml", string(data))
}
