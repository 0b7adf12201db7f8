// Package genotype implements the Bayesian genotype caller: it ranks
// haploid/diploid allele-length hypotheses from a region's AlleleCount
// evidence using a Dirichlet-multinomial likelihood over a precomputed
// error-profile table.
package genotype

import (
	"math"

	"github.com/grailbio/strgt/evidence"
)

// Ploidy selects how many alleles a region is called with.
type Ploidy int

const (
	Haploid Ploidy = 1
	Diploid Ploidy = 2
)

// Opts configures one region's genotype call.
type Opts struct {
	Mode      Ploidy
	RefLength int // capped at 70 by Call
	UnitSize  int // clamped to [1,5] by Call
	Phi       PhiTable
}

// Hypothesis is one enumerated (allele1, allele2) pair and its score.
type Hypothesis struct {
	Allele1, Allele2 int // Allele1 <= Allele2
	LogProb          float64
	Prob             float64
}

// Result is the outcome of calling one region.
type Result struct {
	// Called is false when the region short-circuits to "NA".
	Called           bool
	NAReason         string
	Allele1, Allele2 int
	Confidence       float64 // phred-scaled, clamped to [0, 50]
	Hypotheses       []Hypothesis
}

const (
	maxAlleleCount     = 10000
	maxDistinctLengths = 9
	naConfidenceFloor  = 3.02
	confidenceCap      = 50.0
)

// Call ranks genotype hypotheses for one region's evidence and returns the
// best-supported call, or a "NA" Result when the evidence is degenerate.
func Call(counts []evidence.AlleleCount, opts Opts) Result {
	if opts.RefLength > 70 {
		opts.RefLength = 70
	}
	opts.UnitSize = unitSizeIndex(opts.UnitSize) + 1

	if len(counts) == 0 {
		return Result{NAReason: "no evidence"}
	}
	if len(counts) > maxDistinctLengths {
		return Result{NAReason: "too many distinct allele lengths"}
	}
	totalReads := 0
	for _, c := range counts {
		if c.Count >= maxAlleleCount {
			return Result{NAReason: "allele count exceeds plausible coverage"}
		}
		totalReads += c.Count
	}

	if len(counts) == 1 && counts[0].Count >= 2 {
		return Result{
			Called:     true,
			Allele1:    counts[0].Length,
			Allele2:    counts[0].Length,
			Confidence: confidenceCap,
			Hypotheses: []Hypothesis{{Allele1: counts[0].Length, Allele2: counts[0].Length, Prob: 1, LogProb: 0}},
		}
	}

	rlBucket := refLengthBucket(opts.RefLength)
	u := unitSizeIndex(opts.UnitSize)

	quant := make([]int, len(counts))
	for i, c := range counts {
		quant[i] = quantizeBaseQuality(c.AvgBaseQuality)
	}

	var hyps []Hypothesis
	for i := range counts {
		for j := i; j < len(counts); j++ {
			if opts.Mode == Haploid && i != j {
				continue
			}
			hyps = append(hyps, scorePair(counts, quant, i, j, totalReads, u, rlBucket, opts.Phi))
		}
	}

	normalize(hyps)

	best := hyps[0]
	for _, h := range hyps[1:] {
		if h.Prob > best.Prob {
			best = h
		}
	}

	confidence := phred(1 - best.Prob)
	if confidence <= naConfidenceFloor {
		return Result{NAReason: "confidence below floor", Hypotheses: hyps}
	}

	a1, a2 := best.Allele1, best.Allele2
	if a1 > a2 {
		a1, a2 = a2, a1
	}
	return Result{
		Called:     true,
		Allele1:    a1,
		Allele2:    a2,
		Confidence: confidence,
		Hypotheses: hyps,
	}
}

// scorePair computes the Dirichlet-multinomial log-likelihood for the
// hypothesis that alleles i and j (i<=j) explain the observed counts.
func scorePair(counts []evidence.AlleleCount, quant []int, i, j, totalReads, u, rlBucket int, phi PhiTable) Hypothesis {
	countI := counts[i].Count
	h := Hypothesis{Allele1: counts[i].Length, Allele2: counts[j].Length}

	if i == j {
		other := totalReads - countI
		numerator := []float64{
			1 + phi[u][rlBucket][quant[i]][phiCorrect] + float64(countI),
			1 + phi[u][rlBucket][quant[i]][phiError] + float64(other),
		}
		denominator := []float64{
			1 + phi[u][rlBucket][quant[i]][phiCorrect],
			1 + phi[u][rlBucket][quant[i]][phiError],
		}
		logMultinomial := logFactorial(totalReads) - logFactorial(countI) - logFactorial(other)
		h.LogProb = logMultinomial + logBeta(numerator) - logBeta(denominator)
		return h
	}

	countJ := counts[j].Count
	other := totalReads - countI - countJ
	numerator := []float64{
		1 + phi[u][rlBucket][quant[i]][phiCorrect] + float64(countI),
		1 + phi[u][rlBucket][quant[j]][phiCorrect] + float64(countJ),
		1 + phi[u][rlBucket][quant[i]][phiError] + phi[u][rlBucket][quant[j]][phiError] + float64(other),
	}
	denominator := []float64{
		1 + phi[u][rlBucket][quant[i]][phiCorrect],
		1 + phi[u][rlBucket][quant[j]][phiCorrect],
		1 + phi[u][rlBucket][quant[i]][phiError] + phi[u][rlBucket][quant[j]][phiError],
	}
	logMultinomial := logFactorial(totalReads) - logFactorial(countI) - logFactorial(countJ) - logFactorial(other)
	h.LogProb = logMultinomial + logBeta(numerator) - logBeta(denominator)
	return h
}

// normalize converts log-probabilities to probabilities that sum to 1,
// using the log-sum-exp trick for numerical stability, and writes Prob back
// into each Hypothesis in place.
func normalize(hyps []Hypothesis) {
	if len(hyps) == 0 {
		return
	}
	max := hyps[0].LogProb
	for _, h := range hyps[1:] {
		if h.LogProb > max {
			max = h.LogProb
		}
	}
	sum := 0.0
	for i := range hyps {
		hyps[i].Prob = math.Exp(hyps[i].LogProb - max)
		sum += hyps[i].Prob
	}
	for i := range hyps {
		hyps[i].Prob /= sum
	}
}

// PhredFromProb converts a hypothesis probability into the phred scale used
// by Call's Confidence field and by VCF GL values.
func PhredFromProb(prob float64) float64 {
	return phred(1 - prob)
}

// phred converts a probability of error into a capped, NaN-safe phred score.
func phred(pError float64) float64 {
	if pError <= 0 {
		return confidenceCap
	}
	v := -10 * math.Log10(pError)
	if math.IsNaN(v) {
		return 0
	}
	if v > confidenceCap {
		return confidenceCap
	}
	if v < 0 {
		return 0
	}
	return v
}
