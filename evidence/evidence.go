// Package evidence reduces per-read allele-length observations within a
// repeat region into the AlleleCount summary the genotype caller consumes.
package evidence

import "sort"

// Observation is one read's contribution to a region's evidence, produced by
// the align package after projection, filtering, and flank validation.
type Observation struct {
	Length      int
	BaseQuality float64 // average per-base call probability, in [0,1]
	MinFlank    int
	Reverse     bool
}

// AlleleCount summarizes every read observed supporting one allele length.
type AlleleCount struct {
	Length         int
	Count          int
	SumBaseQuality float64
	SumMinFlank    int
	ReverseCount   int

	// AvgBaseQuality and AvgMinFlank are populated by Aggregator.Finalize.
	AvgBaseQuality float64
	AvgMinFlank    float64
}

// Aggregator reduces a region's read observations by integer allele length.
type Aggregator struct {
	byLength map[int]*AlleleCount
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{byLength: make(map[int]*AlleleCount)}
}

// Add folds one read's observation into its length bucket.
func (a *Aggregator) Add(obs Observation) {
	ac, ok := a.byLength[obs.Length]
	if !ok {
		ac = &AlleleCount{Length: obs.Length}
		a.byLength[obs.Length] = ac
	}
	ac.Count++
	ac.SumBaseQuality += obs.BaseQuality
	ac.SumMinFlank += obs.MinFlank
	if obs.Reverse {
		ac.ReverseCount++
	}
}

// NumReads returns the total number of observations folded in so far.
func (a *Aggregator) NumReads() int {
	n := 0
	for _, ac := range a.byLength {
		n += ac.Count
	}
	return n
}

// Finalize computes running averages and returns the allele counts sorted by
// count descending, with ties broken by longer length first.
func (a *Aggregator) Finalize() []AlleleCount {
	out := make([]AlleleCount, 0, len(a.byLength))
	for _, ac := range a.byLength {
		cp := *ac
		if cp.Count > 0 {
			cp.AvgBaseQuality = cp.SumBaseQuality / float64(cp.Count)
			cp.AvgMinFlank = float64(cp.SumMinFlank) / float64(cp.Count)
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Length > out[j].Length
	})
	return out
}
