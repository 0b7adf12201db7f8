package align

import (
	"github.com/biogo/hts/sam"
)

var xtTag = sam.Tag{'X', 'T'}

// FilterOpts is the subset of strgt.Opts that read-level filtering needs.
type FilterOpts struct {
	MapQualityMin   int
	ReadLengthMin   int // 0 disables
	ReadLengthMax   int // 0 disables
	ProperlyPaired  bool
	RejectMultiHits bool // the "-multi" option: reject XT:A:* containing 'R'
}

// FilterRead reports whether a read should be kept (keep is true) or
// excluded before projection is even attempted, per the filter table in
// spec.md section 6; for an excluded read, reason says why.
func FilterRead(r *sam.Record, opts FilterOpts) (keep bool, reason string) {
	if int(r.MapQ) < opts.MapQualityMin {
		return false, "mapq below threshold"
	}
	readLen := r.Seq.Length
	if opts.ReadLengthMin > 0 && readLen < opts.ReadLengthMin {
		return false, "read shorter than read_length_min"
	}
	if opts.ReadLengthMax > 0 && readLen > opts.ReadLengthMax {
		return false, "read longer than read_length_max"
	}
	if opts.ProperlyPaired && r.Flags&sam.ProperPair == 0 {
		return false, "not a properly paired read"
	}
	if opts.RejectMultiHits {
		if aux := r.AuxFields.Get(xtTag); aux != nil {
			// XT is an "A" (single character) SAM aux type; biogo/hts/sam
			// returns its value as a byte, not a string.
			if b, ok := aux.Value().(byte); ok && b == 'R' {
				return false, "XT tag indicates a multi-mapping read"
			}
		}
	}
	return true, ""
}
