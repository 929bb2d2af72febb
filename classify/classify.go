// Package classify assigns a CODE/DATA/UNKNOWN verdict to byte ranges
// using the decode-density thresholds from §4.5, then reclassifies small
// UNKNOWN islands sandwiched between CODE as constant pools.
package classify

import (
	"sort"

	"github.com/ckillpk/zarchrev/ir"
)

// Thresholds mirror §4.5's CODE_THRESHOLD/DATA_THRESHOLD, left tunable
// rather than hardcoded so a caller can loosen them for noisy artifacts.
type Thresholds struct {
	Code float64
	Data float64
}

// DefaultThresholds matches the engine's own values: 0.70 and 0.30.
func DefaultThresholds() Thresholds {
	return Thresholds{Code: 0.70, Data: 0.30}
}

// maxConstantPoolSize bounds how large an UNKNOWN island can be before
// it's too big to plausibly be a literal/constant pool embedded in code.
const maxConstantPoolSize = 256

// Classifier partitions a module's sections into classified regions.
type Classifier struct {
	Thresholds Thresholds
}

// New returns a Classifier using DefaultThresholds.
func New() *Classifier {
	return &Classifier{Thresholds: DefaultThresholds()}
}

// Classify produces the region list for a disassembly result: one region
// per section (or, absent section metadata, one region over the whole
// code extent), followed by the constant-pool reclassification pass.
func (c *Classifier) Classify(result *ir.DisassemblyResult) []ir.Region {
	var regions []ir.Region

	sections := result.Metadata.Sections
	if len(sections) == 0 {
		start, end := codeExtent(result)
		regions = append(regions, c.classifySection(result, start, end))
	} else {
		for _, s := range sections {
			regions = append(regions, c.classifySection(result, s.Offset, s.Offset+s.Size-1))
		}
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].Start < regions[j].Start })

	return c.detectConstantPools(regions)
}

// classifySection computes the decode rate over [start, end] and assigns
// CODE/DATA/UNKNOWN per §4.5's thresholds.
func (c *Classifier) classifySection(result *ir.DisassemblyResult, start, end uint32) ir.Region {
	decodedBytes, totalBytes := decodeDensity(result, start, end)

	rate := 0.0
	if totalBytes > 0 {
		rate = float64(decodedBytes) / float64(totalBytes)
	}

	region := ir.Region{
		Start:      start,
		End:        end,
		DecodeRate: rate,
	}

	switch {
	case rate > c.Thresholds.Code:
		region.Type = ir.RegionCode
		region.Confidence = ir.High
		region.Evidence = "decode_rate_above_code_threshold"
	case rate < c.Thresholds.Data:
		region.Type = ir.RegionData
		region.Confidence = ir.Medium
		region.Evidence = "decode_rate_below_data_threshold"
	default:
		region.Type = ir.RegionUnknown
		region.Confidence = ir.Low
		region.Evidence = "decode_rate_inconclusive"
	}

	return region
}

func decodeDensity(result *ir.DisassemblyResult, start, end uint32) (decoded, total int) {
	if end < start {
		return 0, 0
	}
	total = int(end-start) + 1

	for _, inst := range result.Instructions {
		if inst.Address >= start && inst.Address <= end {
			decoded += len(inst.RawBytes)
		}
	}
	return decoded, total
}

// detectConstantPools reclassifies a small UNKNOWN region flanked by
// CODE regions on both sides as DATA, per §4.5's constant-pool pattern.
func (c *Classifier) detectConstantPools(regions []ir.Region) []ir.Region {
	for i := range regions {
		if regions[i].Type != ir.RegionUnknown {
			continue
		}
		size := int(regions[i].End-regions[i].Start) + 1
		if size > maxConstantPoolSize {
			continue
		}
		if i == 0 || i == len(regions)-1 {
			continue
		}
		if regions[i-1].Type == ir.RegionCode && regions[i+1].Type == ir.RegionCode {
			regions[i].Type = ir.RegionData
			regions[i].Confidence = ir.Medium
			regions[i].Evidence = "constant_pool_pattern"
		}
	}
	return regions
}

func codeExtent(result *ir.DisassemblyResult) (start, end uint32) {
	if len(result.Instructions) == 0 {
		return 0, 0
	}
	start = result.Instructions[0].Address
	last := result.Instructions[len(result.Instructions)-1]
	end = last.NextAddress() - 1

	for _, r := range result.UnknownRegions {
		if r.End > end {
			end = r.End
		}
	}
	return start, end
}
