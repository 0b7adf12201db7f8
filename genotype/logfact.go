package genotype

import "math"

// logFactorialCacheSize bounds the process-wide precomputed table. Observed
// read depths per allele are excluded from calling once they reach 10,000
// (see Call's short-circuit rules), so a cache well beyond that covers every
// realistic hypothesis without per-call allocation.
const logFactorialCacheSize = 100001

var logFactorialTable [logFactorialCacheSize]float64

func init() {
	sum := 0.0
	for i := 1; i < logFactorialCacheSize; i++ {
		sum += math.Log(float64(i))
		logFactorialTable[i] = sum
	}
}

// logFactorial returns log(n!), using the precomputed table for small n and
// math.Lgamma for anything beyond it.
func logFactorial(n int) float64 {
	if n < 0 {
		return 0
	}
	if n < logFactorialCacheSize {
		return logFactorialTable[n]
	}
	v, _ := math.Lgamma(float64(n + 1))
	return v
}

// logBeta computes log(B(v)) = sum(lgamma(v_k)) - lgamma(sum(v_k)), the log
// multivariate Beta function used by the Dirichlet-multinomial likelihood.
func logBeta(v []float64) float64 {
	sum := 0.0
	total := 0.0
	for _, x := range v {
		g, _ := math.Lgamma(x)
		sum += g
		total += x
	}
	gt, _ := math.Lgamma(total)
	return sum - gt
}
