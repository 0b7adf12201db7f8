// Package align projects aligned reads onto a repeat region's reference
// window, validates flank coverage, and extracts the observed allele length
// each read supports.
package align

import (
	"github.com/biogo/hts/sam"
)

// CellKind identifies what a single reference-coordinate slot in a
// Projection holds. This replaces the character-overloaded byte buffer
// ('x'/'S'/'-'/lowercase) of the original tool with an explicit enum, per
// the design notes on character-level state flags.
type CellKind byte

const (
	// CellMissing means no read coverage was observed at this reference
	// position (the read didn't reach this far, or was padded).
	CellMissing CellKind = iota
	// CellBase means the read aligned (matched or mismatched) a base here.
	CellBase
	// CellDeletion means the read's CIGAR recorded a 'D' deletion of this
	// reference position. ('N' rejects the whole read; see ErrSplicedRead.)
	CellDeletion
	// CellSoftClip means this position is covered by a soft-clipped read
	// base projected outward from the alignment's start or end.
	CellSoftClip
	// CellInsertionAnchor means a CellBase position that an insertion (in
	// Projection.Insertions) is spliced in immediately to the right of.
	CellInsertionAnchor
)

// Cell is one reference-coordinate slot of a Projection.
type Cell struct {
	Kind CellKind
	Base byte // valid when Kind is CellBase, CellSoftClip, or CellInsertionAnchor
}

// Projection is a read's view of the reference window
// [regionStart-L, regionStart+centerLen+L), built by walking the read's
// CIGAR. Pre and Post each have length L; Aligned has length centerLen.
// Insertions lists, in left-to-right genomic order, the read substrings
// inserted at CellInsertionAnchor cells that fall within the window.
type Projection struct {
	Pre, Aligned, Post []Cell
	Insertions         []Insertion
}

// Insertion is one inserted substring, anchored immediately to the right of
// a cell in Pre, Aligned, or Post.
type Insertion struct {
	// Segment identifies which slice the anchor cell belongs to.
	Segment  Segment
	AnchorAt int // index into the named segment
	Bases    string
}

// Segment names one of a Projection's three slices.
type Segment int

const (
	SegmentPre Segment = iota
	SegmentAligned
	SegmentPost
)

// ErrSplicedRead is returned by Project when the read's CIGAR contains an
// 'N' (skipped-region) operation; spliced alignments are unsupported and the
// caller should skip the read, per spec section 4.1.
type ErrSplicedRead struct{}

func (ErrSplicedRead) Error() string { return "align: read has a spliced (N) CIGAR operation" }

// Project builds a Projection for one read against one region. alignStart is
// the read's 0-based leftmost reference position (sam.Record.Pos).
// regionStart is the region's 0-based first reference position
// (region.Region.Start-1). centerLen is the repeat tract length
// (region.Region.Len()). flankLen is the configured flank window L.
//
// Project returns (nil, nil) for a read with an empty CIGAR (the caller
// should count it as a "star" and skip it), and (nil, ErrSplicedRead{}) for
// a read with an 'N' operation.
func Project(cigar sam.Cigar, seq []byte, alignStart, regionStart, centerLen, flankLen int) (*Projection, error) {
	if len(cigar) == 0 {
		return nil, nil
	}

	windowStart := regionStart - flankLen
	windowLen := 2*flankLen + centerLen
	cells := make([]Cell, windowLen)

	// inWindow reports the cell index for reference position refPos, or -1.
	inWindow := func(refPos int) int {
		off := refPos - windowStart
		if off < 0 || off >= windowLen {
			return -1
		}
		return off
	}

	type pendingIns struct {
		cellIdx int
		bases   string
	}
	var insertions []pendingIns

	refPos := alignStart
	readPos := 0

	markAnchor := func(cellIdx int) {
		if cellIdx >= 0 {
			cells[cellIdx].Kind = CellInsertionAnchor
		}
	}

	for opIdx, co := range cigar {
		n := co.Len()
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			for i := 0; i < n; i++ {
				if idx := inWindow(refPos); idx >= 0 {
					cells[idx] = Cell{Kind: CellBase, Base: seq[readPos]}
				}
				refPos++
				readPos++
			}
		case sam.CigarInsertion:
			bases := string(seq[readPos : readPos+n])
			anchorIdx := inWindow(refPos - 1)
			if anchorIdx >= 0 {
				markAnchor(anchorIdx)
				insertions = append(insertions, pendingIns{cellIdx: anchorIdx, bases: bases})
			}
			readPos += n
		case sam.CigarDeletion, sam.CigarSkipped:
			if co.Type() == sam.CigarSkipped {
				return nil, ErrSplicedRead{}
			}
			for i := 0; i < n; i++ {
				if idx := inWindow(refPos); idx >= 0 {
					cells[idx] = Cell{Kind: CellDeletion}
				}
				refPos++
			}
		case sam.CigarSoftClipped:
			leading := opIdx == 0
			trailing := opIdx == len(cigar)-1
			switch {
			case leading:
				// Project clipped bases backward from alignStart, in
				// read order, as additional pre-region padding.
				for i := 0; i < n; i++ {
					pos := alignStart - n + i
					if idx := inWindow(pos); idx >= 0 {
						cells[idx] = Cell{Kind: CellSoftClip, Base: seq[readPos+i]}
					}
				}
				readPos += n
			case trailing:
				for i := 0; i < n; i++ {
					pos := refPos + i
					if idx := inWindow(pos); idx >= 0 {
						cells[idx] = Cell{Kind: CellSoftClip, Base: seq[readPos+i]}
					}
				}
				readPos += n
			default:
				// Not valid per the SAM spec (S only at alignment ends),
				// but tolerate it defensively: consume the read bases
				// without projecting them onto the reference.
				readPos += n
			}
		case sam.CigarHardClipped, sam.CigarPadded:
			// H: bases not present in seq. P: consumes neither query nor
			// reference. Both are no-ops here.
		default:
			return nil, ErrSplicedRead{}
		}
	}

	proj := &Projection{
		Pre:     cells[0:flankLen],
		Aligned: cells[flankLen : flankLen+centerLen],
		Post:    cells[flankLen+centerLen : windowLen],
	}
	for _, ins := range insertions {
		seg, idx := locate(ins.cellIdx, flankLen, centerLen)
		proj.Insertions = append(proj.Insertions, Insertion{Segment: seg, AnchorAt: idx, Bases: ins.bases})
	}
	return proj, nil
}

// locate maps a global window cell index back to (segment, within-segment
// index).
func locate(cellIdx, flankLen, centerLen int) (Segment, int) {
	switch {
	case cellIdx < flankLen:
		return SegmentPre, cellIdx
	case cellIdx < flankLen+centerLen:
		return SegmentAligned, cellIdx - flankLen
	default:
		return SegmentPost, cellIdx - flankLen - centerLen
	}
}
