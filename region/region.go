// Package region parses repeat-region specifications and fetches the
// reference window (flanks plus repeat tract) each region needs for
// genotyping.
package region

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/strgt/encoding/fasta"
)

// Region is one repeat locus to genotype. Start and Stop are 1-based
// inclusive reference coordinates, matching the region-file convention in
// spec.md section 6.
type Region struct {
	Chrom      string
	Start      int
	Stop       int
	UnitLength int
	UnitSeq    string
	Purity     float64

	// Raw is the original region-file text, kept for .repeatseq/.calls
	// output and for error messages.
	Raw string
}

// Len returns the length of the repeat tract in reference coordinates.
func (r Region) Len() int { return r.Stop - r.Start + 1 }

// Label renders the region in "chrom:start-stop" form, the form used to
// label .repeatseq/.calls/.vcf output lines.
func (r Region) Label() string {
	var b strings.Builder
	b.WriteString(r.Chrom)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(r.Start))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(r.Stop))
	return b.String()
}

// Parse parses one region-file line:
//
//	<chr>:<start>-<stop>\t<unit_len>_<other>_<other>_<unit_seq>_<purity>_...
//
// Only unit_len (field 0), unit_seq (field 3), and purity (field 4) of the
// underscore-separated second column are read; trailing fields are ignored,
// per spec.md section 6.
func Parse(line string) (Region, error) {
	r := Region{Raw: line}
	cols := strings.SplitN(line, "\t", 2)
	if len(cols) != 2 {
		return r, errors.E("region line missing tab-separated annotation column", line)
	}
	coord, annot := cols[0], cols[1]

	colon := strings.IndexByte(coord, ':')
	dash := strings.IndexByte(coord, '-')
	if colon < 0 || dash < colon {
		return r, errors.E("malformed region coordinate", coord)
	}
	r.Chrom = coord[:colon]
	if r.Chrom == "" {
		return r, errors.E("malformed region coordinate: empty chromosome", coord)
	}
	start, err := strconv.Atoi(coord[colon+1 : dash])
	if err != nil {
		return r, errors.E(err, fmt.Sprintf("malformed region start in %q", coord))
	}
	stop, err := strconv.Atoi(coord[dash+1:])
	if err != nil {
		return r, errors.E(err, fmt.Sprintf("malformed region stop in %q", coord))
	}
	if start > stop {
		return r, errors.E(fmt.Sprintf("region start %d exceeds stop %d in %q", start, stop, coord))
	}
	r.Start, r.Stop = start, stop

	fields := strings.Split(annot, "_")
	if len(fields) < 5 {
		return r, errors.E(fmt.Sprintf("annotation column %q has fewer than 5 underscore-separated fields", annot))
	}
	unitLen, err := strconv.Atoi(fields[0])
	if err != nil {
		return r, errors.E(err, fmt.Sprintf("malformed unit length in %q", annot))
	}
	r.UnitLength = unitLen
	r.UnitSeq = fields[3]
	purity, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return r, errors.E(err, fmt.Sprintf("malformed purity in %q", annot))
	}
	r.Purity = purity
	return r, nil
}

// ParseFile parses a full region file, one region per line. Blank lines are
// skipped silently; a malformed line logs a warning naming its line number
// and is skipped rather than failing the whole batch. The returned order
// matches the input order, which Run relies on for deterministic output.
func ParseFile(r io.Reader) ([]Region, error) {
	var regions []Region
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		reg, err := Parse(line)
		if err != nil {
			log.Error.Printf("region file line %d: %v, skipping", lineNo, err)
			continue
		}
		regions = append(regions, reg)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "reading region file")
	}
	return regions, nil
}

// Window is the reference sequence immediately around a repeat: L bases of
// flank on either side (clipped at chromosome ends), all uppercased.
type Window struct {
	LeftFlank  string
	Center     string
	RightFlank string
}

// FetchWindow reads a Region's reference window from ref, using up to
// flankLen bases of context on either side of the repeat tract.
func FetchWindow(ref fasta.Fasta, r Region, flankLen int) (Window, error) {
	chromLen, err := ref.Len(r.Chrom)
	if err != nil {
		return Window{}, errors.E(err, fmt.Sprintf("fetching length of %q", r.Chrom))
	}
	if uint64(r.Stop) > chromLen {
		return Window{}, errors.E(fmt.Sprintf("region %s extends past end of chromosome %q (length %d)", r.Label(), r.Chrom, chromLen))
	}

	start0 := uint64(r.Start - 1)
	end0 := uint64(r.Stop)

	leftStart := uint64(0)
	if start0 > uint64(flankLen) {
		leftStart = start0 - uint64(flankLen)
	}
	rightEnd := chromLen
	if end0+uint64(flankLen) < chromLen {
		rightEnd = end0 + uint64(flankLen)
	}

	var left, right string
	if leftStart < start0 {
		if left, err = ref.Get(r.Chrom, leftStart, start0); err != nil {
			return Window{}, errors.E(err, fmt.Sprintf("fetching left flank for %s", r.Label()))
		}
	}
	center, err := ref.Get(r.Chrom, start0, end0)
	if err != nil {
		return Window{}, errors.E(err, fmt.Sprintf("fetching repeat tract for %s", r.Label()))
	}
	if end0 < rightEnd {
		if right, err = ref.Get(r.Chrom, end0, rightEnd); err != nil {
			return Window{}, errors.E(err, fmt.Sprintf("fetching right flank for %s", r.Label()))
		}
	}
	return Window{
		LeftFlank:  strings.ToUpper(left),
		Center:     strings.ToUpper(center),
		RightFlank: strings.ToUpper(right),
	}, nil
}
