// Package driver sequences one repeat region end to end: reference window
// fetch, BAM iteration, per-read projection and filtering, evidence
// aggregation, genotype calling, and output-fragment assembly.
package driver

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/strgt/align"
	"github.com/grailbio/strgt/bamio"
	"github.com/grailbio/strgt/encoding/fasta"
	"github.com/grailbio/strgt/evidence"
	"github.com/grailbio/strgt/genotype"
	"github.com/grailbio/strgt/region"
	"github.com/grailbio/strgt/vcfw"
)

// Opts configures every region a driver run processes.
type Opts struct {
	FlankLen       int
	ConsLeftFlank  int
	ConsRightFlank int
	MapQualityMin  int
	ReadLengthMin  int
	ReadLengthMax  int

	ProperlyPaired  bool
	RejectMultiHits bool
	Mode            genotype.Ploidy
	EmitAll         bool

	MakeRepeatseqFile bool
	MakeCallsFile     bool
}

// DefaultOpts mirrors the core tool's documented defaults.
func DefaultOpts() Opts {
	return Opts{
		FlankLen:          20,
		ConsLeftFlank:     3,
		ConsRightFlank:    3,
		Mode:              genotype.Diploid,
		MakeRepeatseqFile: true,
		MakeCallsFile:     true,
	}
}

// Result holds one region's output fragments. Any field is empty when its
// corresponding Opts toggle is off, or (for VCF) when there was nothing to
// report.
type Result struct {
	Region    region.Region
	Repeatseq string
	Calls     string
	VCF       string
}

// Run processes one region against an open reference and BAM reader.
func Run(ref fasta.Fasta, bam *bamio.Reader, r region.Region, phi genotype.PhiTable, opts Opts) (Result, error) {
	window, err := region.FetchWindow(ref, r, opts.FlankLen)
	if err != nil {
		return Result{}, fmt.Errorf("driver: fetch window for %s: %w", r.Label(), err)
	}

	it, err := bam.RegionIterator(r.Chrom, r.Start-1, r.Stop)
	if err != nil {
		return Result{}, fmt.Errorf("driver: iterate %s: %w", r.Label(), err)
	}
	defer it.Close()

	agg := evidence.NewAggregator()
	candidates := make([]string, 0, 64)
	var numStars, numSpliced, numFlankFail, numFiltered int

	filterOpts := align.FilterOpts{
		MapQualityMin:   opts.MapQualityMin,
		ReadLengthMin:   opts.ReadLengthMin,
		ReadLengthMax:   opts.ReadLengthMax,
		ProperlyPaired:  opts.ProperlyPaired,
		RejectMultiHits: opts.RejectMultiHits,
	}

	for it.Scan() {
		rec := it.Record()
		if keep, _ := align.FilterRead(rec, filterOpts); !keep {
			numFiltered++
			continue
		}

		proj, err := align.Project(rec.Cigar, expandSeq(rec), rec.Pos, r.Start-1, r.Len(), opts.FlankLen)
		if err != nil {
			numSpliced++
			continue
		}
		if proj == nil {
			numStars++
			continue
		}

		pass, left, right := align.Validate(proj, window.LeftFlank, window.RightFlank, opts.FlankLen, opts.ConsLeftFlank, opts.ConsRightFlank)
		if !pass {
			numFlankFail++
			continue
		}

		length := align.ObservedLength(proj)
		agg.Add(evidence.Observation{
			Length:      length,
			BaseQuality: align.AverageBaseQuality(rec),
			MinFlank:    align.MinFlank(left, right),
			Reverse:     rec.Flags&sam.Reverse != 0,
		})
		candidates = append(candidates, align.RenderAligned(proj))
	}
	if err := it.Err(); err != nil {
		log.Error.Printf("driver: %s: bam scan error: %v", r.Label(), err)
	}

	counts := agg.Finalize()
	call := genotype.Call(counts, genotype.Opts{Mode: opts.Mode, RefLength: r.Len(), UnitSize: r.UnitLength, Phi: phi})

	var precBase byte = 'N'
	if n := len(window.LeftFlank); n > 0 {
		precBase = window.LeftFlank[n-1]
	}

	res := Result{Region: r}
	if opts.MakeRepeatseqFile {
		res.Repeatseq = renderRepeatseq(r, counts, call, numStars, numSpliced, numFlankFail, numFiltered)
	}
	if opts.MakeCallsFile {
		res.Calls = renderCalls(r, agg.NumReads(), call)
	}
	if line, ok := vcfw.Synthesize(vcfw.Record{
		Chrom:      r.Chrom,
		Start:      r.Start,
		PrecBase:   precBase,
		RefSeq:     window.Center,
		Unit:       r.UnitSeq,
		Candidates: candidates,
		Allele1:    call.Allele1,
		Allele2:    call.Allele2,
		Hypotheses: call.Hypotheses,
		Confidence: call.Confidence,
		BestProb:   bestProb(call),
		EmitAll:    opts.EmitAll,
	}); ok {
		res.VCF = line
	}
	return res, nil
}

func bestProb(call genotype.Result) float64 {
	best := 0.0
	for _, h := range call.Hypotheses {
		if h.Prob > best {
			best = h.Prob
		}
	}
	return best
}

func expandSeq(r *sam.Record) []byte {
	return r.Seq.Expand()
}

func genotypeString(call genotype.Result) string {
	if !call.Called {
		return "NA"
	}
	if call.Allele1 == call.Allele2 {
		return strconv.Itoa(call.Allele1)
	}
	return fmt.Sprintf("%dh%d", call.Allele1, call.Allele2)
}

// renderCalls writes one .calls row (region, read depth, genotype,
// confidence) with a tsv.Writer, the same column writer pileup/snp's
// TSV output uses.
func renderCalls(r region.Region, depth int, call genotype.Result) string {
	var buf bytes.Buffer
	w := tsv.NewWriter(&buf)
	w.WriteString(r.Label())
	w.WriteUint32(uint32(depth))
	w.WriteString(genotypeString(call))
	w.WriteString(confidenceString(call))
	if err := w.EndLine(); err != nil {
		log.Error.Printf("driver: %s: render calls row: %v", r.Label(), err)
	}
	if err := w.Flush(); err != nil {
		log.Error.Printf("driver: %s: flush calls row: %v", r.Label(), err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func renderRepeatseq(r region.Region, counts []evidence.AlleleCount, call genotype.Result, numStars, numSpliced, numFlankFail, numFiltered int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", r.Label())
	fmt.Fprintf(&sb, "  unit=%s purity=%.3f ref_length=%d\n", r.UnitSeq, r.Purity, r.Len())
	fmt.Fprintf(&sb, "  genotype=%s confidence=%s\n", genotypeString(call), confidenceString(call))
	fmt.Fprintf(&sb, "  reads: stars=%d spliced=%d flank_fail=%d filtered=%d\n", numStars, numSpliced, numFlankFail, numFiltered)
	for _, c := range counts {
		fmt.Fprintf(&sb, "    length=%d count=%d avg_bq=%.3f avg_flank=%.2f reverse=%d\n",
			c.Length, c.Count, c.AvgBaseQuality, c.AvgMinFlank, c.ReverseCount)
	}
	return sb.String()
}

func confidenceString(call genotype.Result) string {
	if !call.Called {
		return "NA"
	}
	return strconv.FormatFloat(call.Confidence, 'f', 2, 64)
}
