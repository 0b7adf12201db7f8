package strgt

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// OutputFingerprint returns a short hex digest of opts, so that re-running
// with different filter parameters against the same BAM never silently
// overwrites a previous run's output files.
func OutputFingerprint(opts Opts) string {
	fields := []string{
		"L=" + strconv.Itoa(opts.L),
		"cons_left_flank=" + strconv.Itoa(opts.ConsLeftFlank),
		"cons_right_flank=" + strconv.Itoa(opts.ConsRightFlank),
		"map_quality_min=" + strconv.Itoa(opts.MapQualityMin),
		"read_length_min=" + strconv.Itoa(opts.ReadLengthMin),
		"read_length_max=" + strconv.Itoa(opts.ReadLengthMax),
		"properly_paired=" + strconv.FormatBool(opts.ProperlyPaired),
		"multi=" + strconv.FormatBool(opts.Multi),
		"mode=" + strconv.Itoa(int(opts.Mode)),
		"emit_all=" + strconv.FormatBool(opts.EmitAll),
	}
	sort.Strings(fields)
	paramString := strings.Join(fields, ";")

	h := fnv.New32a()
	_, _ = h.Write([]byte(paramString))
	return fmt.Sprintf("%08x", h.Sum32())
}

// OutputBasename derives the <bam-basename>.<fingerprint> stem that
// .repeatseq/.calls/.vcf file names are built from.
func OutputBasename(bamPath string, opts Opts) string {
	base := bamPath
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	base = strings.TrimSuffix(base, ".bam")
	return base + "." + OutputFingerprint(opts)
}
