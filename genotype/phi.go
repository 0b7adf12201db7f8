package genotype

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/errors"
)

// phiOutcome indexes the last dimension of a PhiTable entry.
type phiOutcome int

const (
	phiError   phiOutcome = 0
	phiCorrect phiOutcome = 1
)

// PhiTable is the precomputed error-profile table indexed by
// (unit_size-1, ref_length/15, quantized_base_quality, outcome). It is
// opaque data: the caller treats its contents as given, loading them once at
// startup rather than deriving them.
type PhiTable [5][5][5][2]float64

// LoadPhiTable reads a flat, whitespace-separated list of 250 floats (the
// table flattened in [unitSize][refLenBucket][qual][outcome] order) from r.
// This is the only format the core needs to agree on with whatever produced
// the table; the values themselves come from an external calibration run.
func LoadPhiTable(r io.Reader) (PhiTable, error) {
	var table PhiTable
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	n := 0
	for a := 0; a < 5; a++ {
		for b := 0; b < 5; b++ {
			for c := 0; c < 5; c++ {
				for d := 0; d < 2; d++ {
					if !scanner.Scan() {
						return table, errors.E(fmt.Sprintf("phi table: expected 250 values, got %d", n))
					}
					v, err := strconv.ParseFloat(scanner.Text(), 64)
					if err != nil {
						return table, errors.E(err, fmt.Sprintf("phi table: value %d is not numeric", n))
					}
					table[a][b][c][d] = v
					n++
				}
			}
		}
	}
	return table, nil
}

// DefaultPhiTable returns a uniform, uncalibrated table: for quality bucket
// q the "correct" weight is 4-q (4 for the best bucket, 0 for the worst)
// and every "error" weight is 0.1. It exists so the caller can run without an
// external calibration file; production use should load a real table via
// LoadPhiTable.
func DefaultPhiTable() PhiTable {
	var table PhiTable
	for a := 0; a < 5; a++ {
		for b := 0; b < 5; b++ {
			for q := 0; q < 5; q++ {
				table[a][b][q][phiCorrect] = float64(4 - q)
				table[a][b][q][phiError] = 0.1
			}
		}
	}
	return table
}

// quantizeBaseQuality maps an average base-call probability in [0,1] to the
// Phi table's quality bucket, per spec section 4.5: q' = clamp(-30*log10(avg_bq), 0, 4).
func quantizeBaseQuality(avgBQ float64) int {
	if avgBQ <= 0 {
		return 4
	}
	q := -30 * math.Log10(avgBQ)
	switch {
	case q < 0:
		return 0
	case q > 4:
		return 4
	default:
		return int(q)
	}
}

func refLengthBucket(refLength int) int {
	b := refLength / 15
	if b > 4 {
		return 4
	}
	if b < 0 {
		return 0
	}
	return b
}

func unitSizeIndex(unitSize int) int {
	if unitSize < 1 {
		unitSize = 1
	}
	if unitSize > 5 {
		unitSize = 5
	}
	return unitSize - 1
}
