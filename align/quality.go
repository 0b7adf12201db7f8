package align

import (
	"math"

	"github.com/biogo/hts/sam"
)

// AverageBaseQuality returns the read's mean per-base call probability, in
// [0,1], derived from its phred quality string. A read with no quality
// information is treated as maximally confident, since there's no evidence
// to discount it with.
func AverageBaseQuality(r *sam.Record) float64 {
	if len(r.Qual) == 0 {
		return 0.999
	}
	sum := 0.0
	for _, q := range r.Qual {
		sum += 1 - math.Pow(10, -float64(q)/10)
	}
	return sum / float64(len(r.Qual))
}
