// Package strgt implements the short-tandem-repeat genotyper's work
// distributor: it partitions a region list across worker goroutines, each
// backed by its own BAM and FASTA reader, and concatenates their output
// deterministically.
package strgt

import "github.com/grailbio/strgt/genotype"

// Opts is the full set of configuration recognized by the core tool.
type Opts struct {
	L                 int // flank window width
	ConsLeftFlank     int
	ConsRightFlank    int
	MapQualityMin     int
	ReadLengthMin     int
	ReadLengthMax     int
	ProperlyPaired    bool
	Multi             bool
	Mode              genotype.Ploidy
	EmitAll           bool
	MakeRepeatseqFile bool
	MakeCallsFile     bool
	Parallelism       int
	Phi               genotype.PhiTable
}

// DefaultOpts mirrors the core tool's documented defaults (spec.md section 6).
func DefaultOpts() Opts {
	return Opts{
		L:                 20,
		ConsLeftFlank:     3,
		ConsRightFlank:    3,
		Mode:              genotype.Diploid,
		MakeRepeatseqFile: true,
		MakeCallsFile:     true,
		Parallelism:       0, // 0 means runtime.NumCPU() at Run time
		Phi:               genotype.DefaultPhiTable(),
	}
}
