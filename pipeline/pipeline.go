// Package pipeline wires the stages together in the order §2 requires —
// ingest, disassemble, build the CFG, detect procedures, classify
// regions — logging each stage's start the way the corpus's structured
// loggers do, and assembling the warnings and validation summary a
// caller needs to judge the result's trustworthiness.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ckillpk/zarchrev/cfgbuild"
	"github.com/ckillpk/zarchrev/classify"
	"github.com/ckillpk/zarchrev/decode"
	"github.com/ckillpk/zarchrev/disasm"
	"github.com/ckillpk/zarchrev/ingest"
	"github.com/ckillpk/zarchrev/ir"
	"github.com/ckillpk/zarchrev/procdetect"
)

// decodeRateWarningThreshold and unresolvedBranchWarningThreshold mirror
// the thresholds the source this spec is distilled from flags results
// against (§6/§7).
const (
	decodeRateWarningThreshold    = 0.5
	unresolvedBranchWarningThreshold = 10
)

// ProgressFunc is called once per stage, named the way it will appear in
// logs, so a caller (e.g. a CLI progress bar) can mirror the pipeline's
// own logging without scraping it.
type ProgressFunc func(stage string)

// Pipeline orchestrates the full analysis from raw bytes to a validated
// DisassemblyResult.
type Pipeline struct {
	Logger     *logrus.Logger
	Decoder    decode.Decoder
	Thresholds classify.Thresholds
	Progress   ProgressFunc
}

// New returns a Pipeline with a default logrus logger, the native
// decoder, and default classification thresholds.
func New() *Pipeline {
	return &Pipeline{
		Logger:     logrus.New(),
		Decoder:    decode.Native{},
		Thresholds: classify.DefaultThresholds(),
	}
}

// ProcessFile runs every stage over path's contents and returns the
// populated result plus any warnings raised along the way.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, data []byte) (*ir.DisassemblyResult, error) {
	start := time.Now()

	p.report("ingesting binary")
	p.Logger.WithField("path", path).Info("ingesting binary")

	ingestor := ingest.New()
	metadata, code, err := ingestor.Load(path, data)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}

	p.report("disassembling code")
	p.Logger.Info("disassembling code")

	entryOffset := uint32(0)
	if metadata.EntryPoint != nil {
		entryOffset = *metadata.EntryPoint
	}
	d := disasm.New(p.Decoder)
	result := d.Disassemble(code, entryOffset, *metadata)

	p.report("building control flow graph")
	p.Logger.Info("building control flow graph")
	cfg := cfgbuild.Build(result)
	result.CFG = cfg

	p.report("detecting procedures")
	p.Logger.Info("detecting procedures")
	procdetect.New().Detect(cfg)

	p.report("classifying regions")
	p.Logger.Info("classifying regions")
	classifier := &classify.Classifier{Thresholds: p.Thresholds}
	regions := classifier.Classify(result)
	for _, r := range regions {
		if r.Type == ir.RegionData {
			cfg.DataRegions = append(cfg.DataRegions, [2]uint32{r.Start, r.End})
		}
	}

	for _, ur := range result.UnknownRegions {
		p.Logger.WithFields(logrus.Fields{
			"start": fmt.Sprintf("%08X", ur.Start),
			"end":   fmt.Sprintf("%08X", ur.End),
		}).Debug("decode gap")
	}

	result.Warnings = p.warnings(result)

	if result.Statistics == nil {
		result.Statistics = map[string]any{}
	}
	result.Statistics["processing_time"] = time.Since(start).Seconds()
	result.Statistics["file_path"] = path

	return result, nil
}

func (p *Pipeline) report(stage string) {
	if p.Progress != nil {
		p.Progress(stage)
	}
}

// warnings implements §6/§7's warning rules: a low overall decode rate,
// or more than a handful of unresolved branches.
func (p *Pipeline) warnings(result *ir.DisassemblyResult) []string {
	var warnings []string

	if rate, ok := result.Statistics["decode_rate"].(float64); ok && rate < decodeRateWarningThreshold {
		warnings = append(warnings, fmt.Sprintf("low decode rate: %.2f", rate))
	}
	if len(result.CFG.UnresolvedBranches) > unresolvedBranchWarningThreshold {
		warnings = append(warnings, fmt.Sprintf("%d unresolved branch targets", len(result.CFG.UnresolvedBranches)))
	}

	return warnings
}

// Validation is the supplemented result-quality summary ported from the
// source pipeline's validate_result: a composite score plus the signals
// that fed it.
type Validation struct {
	Score                float64
	DecodeRate           float64
	Reachability         float64
	AverageProcConfidence float64
	MnemonicDiversity    int
	Issues               []string
}

// Validate scores a result's overall trustworthiness: decode rate, CFG
// reachability from its entry points, average procedure confidence, and
// a sanity check on mnemonic diversity (a single repeated mnemonic
// across the whole module is a sign of a misaligned decode, not real
// code).
func (p *Pipeline) Validate(result *ir.DisassemblyResult) Validation {
	v := Validation{}

	if rate, ok := result.Statistics["decode_rate"].(float64); ok {
		v.DecodeRate = rate
	}
	v.Reachability = reachability(result.CFG)
	v.AverageProcConfidence = averageProcedureConfidence(result.CFG)

	mnemonics := make(map[string]bool)
	for _, inst := range result.Instructions {
		mnemonics[inst.Mnemonic] = true
	}
	v.MnemonicDiversity = len(mnemonics)

	if v.DecodeRate < decodeRateWarningThreshold {
		v.Issues = append(v.Issues, "decode rate below 0.5")
	}
	if v.Reachability < 0.5 {
		v.Issues = append(v.Issues, "less than half of blocks reachable from entry points")
	}
	if len(result.Instructions) > 20 && v.MnemonicDiversity <= 1 {
		v.Issues = append(v.Issues, "suspiciously low mnemonic diversity")
	}

	v.Score = (v.DecodeRate + v.Reachability + confidenceFloat(v.AverageProcConfidence)) / 3
	return v
}

// confidenceFloat is a passthrough placeholder: AverageProcConfidence is
// already a 0..1 float (procedure confidences are averaged as floats at
// this boundary, where the ordinal Confidence type blurs into a number
// on the scale of confidenceToFloat).
func confidenceFloat(f float64) float64 { return f }

func reachability(cfg *ir.ControlFlowGraph) float64 {
	if len(cfg.Blocks) == 0 {
		return 0
	}

	visited := make(map[string]bool)
	var queue []string
	for _, ep := range cfg.EntryPoints {
		for _, b := range cfg.Blocks {
			if b.StartAddress == ep {
				queue = append(queue, b.ID)
			}
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		block, ok := cfg.Blocks[id]
		if !ok {
			continue
		}
		for succ := range block.Successors {
			if !visited[succ] {
				queue = append(queue, succ)
			}
		}
	}

	return float64(len(visited)) / float64(len(cfg.Blocks))
}

func averageProcedureConfidence(cfg *ir.ControlFlowGraph) float64 {
	if len(cfg.Procedures) == 0 {
		return 0
	}
	var sum float64
	for _, proc := range cfg.Procedures {
		sum += confidenceToFloat(proc.Confidence)
	}
	return sum / float64(len(cfg.Procedures))
}

func confidenceToFloat(c ir.Confidence) float64 {
	switch c {
	case ir.High:
		return 1.0
	case ir.Medium:
		return 0.6
	default:
		return 0.2
	}
}
