// Package vcfw synthesizes VCFv4.1 variant records from a region's observed
// allele sequences and its genotype call.
package vcfw

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/strgt/genotype"
)

// Header is the fixed set of meta-information lines every output file
// carries, regardless of which regions produce records.
var Header = []string{
	`##fileformat=VCFv4.1`,
	`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`,
	`##FORMAT=<ID=GL,Number=G,Type=Float,Description="Genotype likelihoods">`,
	`##INFO=<ID=AL,Number=A,Type=Integer,Description="Allele length offset from reference">`,
	`##INFO=<ID=DP,Number=1,Type=Integer,Description="Read depth">`,
	`##INFO=<ID=RU,Number=1,Type=String,Description="Repeat unit">`,
	`##INFO=<ID=RL,Number=1,Type=Integer,Description="Reference repeat length">`,
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tSAMPLE",
}

// Record holds everything Synthesize needs to build one region's VCF line.
type Record struct {
	Chrom      string
	Start      int    // 1-based position of the repeat's first base
	PrecBase   byte   // reference base immediately before Start
	RefSeq     string // uppercase reference repeat tract, no '-'
	Unit       string
	Candidates []string // per-read observed repeat-tract sequences, over {A,C,G,T,-}
	Allele1    int      // called allele lengths, Allele1 <= Allele2
	Allele2    int
	Hypotheses []genotype.Hypothesis
	Confidence float64 // phred-scaled QUAL, already clamped to [0,50]
	BestProb   float64 // 0..1, used for the FILTER threshold
	EmitAll    bool
}

// candidate is one deduplicated allele length's representative sequence.
type candidate struct {
	length int
	seq    string
	count  int
}

// Synthesize builds one tab-separated VCF data line, or returns ok=false
// when the region shows no variation and EmitAll is not set.
func Synthesize(r Record) (line string, ok bool) {
	stripped := make([]string, len(r.Candidates))
	allRef := true
	for i, c := range r.Candidates {
		s := strings.ReplaceAll(c, "-", "")
		stripped[i] = s
		if s != r.RefSeq {
			allRef = false
		}
	}
	if allRef && !r.EmitAll {
		return "", false
	}

	byLength := make(map[int]*candidate)
	seqCounts := make(map[string]int)
	for _, s := range stripped {
		seqCounts[s]++
		l := len(s)
		c, found := byLength[l]
		if !found {
			byLength[l] = &candidate{length: l, seq: s, count: 1}
			continue
		}
		c.count++
		// Keep whichever sequence has been seen most often for this length;
		// on a tie, the sequence that reached that count first stays.
		if seqCounts[s] > seqCounts[c.seq] {
			c.seq = s
		}
	}

	candidates := make([]candidate, 0, len(byLength))
	for _, c := range byLength {
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].length < candidates[j].length })

	depth := len(r.Candidates)

	alleleLengths := []int{len(r.RefSeq)}
	altSeqs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c.length == len(r.RefSeq) {
			continue
		}
		alleleLengths = append(alleleLengths, c.length)
		altSeqs = append(altSeqs, c.seq)
	}

	prec := string(r.PrecBase)
	ref := prec + r.RefSeq
	alt := "."
	if len(altSeqs) > 0 {
		prefixed := make([]string, len(altSeqs))
		for i, s := range altSeqs {
			prefixed[i] = prec + s
		}
		alt = strings.Join(prefixed, ",")
	}

	idx1, idx2 := alleleIndex(alleleLengths, r.Allele1), alleleIndex(alleleLengths, r.Allele2)

	qual := clamp(r.Confidence, 0, 50)
	filter := "."
	if r.BestProb > 0.8 {
		filter = "PASS"
	}

	alOffsets := make([]string, 0, len(alleleLengths)-1)
	for _, l := range alleleLengths[1:] {
		alOffsets = append(alOffsets, strconv.Itoa(l-len(r.RefSeq)))
	}
	alField := "."
	if len(alOffsets) > 0 {
		alField = strings.Join(alOffsets, ",")
	}
	info := fmt.Sprintf("AL=%s;RU=%s;DP=%d;RL=%d", alField, r.Unit, depth, len(r.RefSeq))

	gl := glField(alleleLengths, r.Hypotheses)

	sample := fmt.Sprintf("%d/%d:%s", idx1, idx2, gl)

	fields := []string{
		r.Chrom,
		strconv.Itoa(r.Start - 1),
		".",
		ref,
		alt,
		formatFloat(qual),
		filter,
		info,
		"GT:GL",
		sample,
	}
	return strings.Join(fields, "\t"), true
}

func alleleIndex(lengths []int, length int) int {
	for i, l := range lengths {
		if l == length {
			return i
		}
	}
	return 0
}

// glField emits genotype likelihoods in standard VCF order: for i in
// 0..n-1, for j in 0..i, the pair (lengths[j], lengths[i]).
func glField(lengths []int, hyps []genotype.Hypothesis) string {
	lookup := make(map[[2]int]float64, len(hyps))
	for _, h := range hyps {
		a, b := h.Allele1, h.Allele2
		if a > b {
			a, b = b, a
		}
		lookup[[2]int{a, b}] = genotype.PhredFromProb(h.Prob)
	}

	var vals []string
	for i := 0; i < len(lengths); i++ {
		for j := 0; j <= i; j++ {
			a, b := lengths[j], lengths[i]
			if a > b {
				a, b = b, a
			}
			v, ok := lookup[[2]int{a, b}]
			if !ok {
				v = 0
			}
			vals = append(vals, formatFloat(clamp(v, 0, 50)))
		}
	}
	return strings.Join(vals, ",")
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
