/*
bio-strgt genotypes short tandem repeats from a coordinate-sorted, indexed
BAM against a list of repeat regions, emitting a human-readable summary, a
per-region calls table, and a VCF of the called alleles.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/strgt"
	"github.com/grailbio/strgt/encoding/fasta"
	"github.com/grailbio/strgt/genotype"
)

var (
	bamIndexPath   = flag.String("index", "", "BAM index path; defaults to bampath + \".bai\"")
	faiPath        = flag.String("fai", "", "FASTA index path; defaults to fapath + \".fai\", regenerated if missing")
	flankLen       = flag.Int("L", 20, "Number of reference bases of flank required on each side of a repeat tract")
	consLeftFlank  = flag.Int("cons_left_flank", 3, "Consecutive matching bases required at the start of the left flank")
	consRightFlank = flag.Int("cons_right_flank", 3, "Consecutive matching bases required at the start of the right flank")
	mapQualityMin  = flag.Int("map_quality_min", 0, "Reads with MAPQ below this level are skipped")
	readLengthMin  = flag.Int("read_length_min", 0, "Reads shorter than this are skipped; 0 disables")
	readLengthMax  = flag.Int("read_length_max", 0, "Reads longer than this are skipped; 0 disables")
	properlyPaired = flag.Bool("properly_paired", false, "Skip reads that are not properly paired")
	multi          = flag.Bool("multi", false, "Skip reads whose XT:A aux tag marks them as multi-mapping")
	haploid        = flag.Bool("haploid", false, "Call a single allele per locus instead of a diploid genotype pair")
	emitAll        = flag.Bool("emit_all", false, "Emit a VCF record even for loci called homozygous reference")
	repeatseqFile  = flag.Bool("make_repeatseq_file", true, "Write the .repeatseq summary file")
	callsFile      = flag.Bool("make_calls_file", true, "Write the .calls table file")
	outPrefix      = flag.String("out", "", "Output path prefix; defaults to <bam basename>.<parameter fingerprint> in the current directory")
	parallelism    = flag.Int("parallelism", 0, "Maximum number of simultaneous region-processing workers; 0 = runtime.NumCPU()")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] bampath fapath regionspath\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 3 {
		log.Fatalf("expected exactly 3 positional arguments (bampath, fapath, regionspath); got %d: %s", flag.NArg(), strings.Join(flag.Args(), " "))
	}
	bamPath := flag.Arg(0)
	fastaPath := flag.Arg(1)
	regionsPath := flag.Arg(2)

	baiPath := *bamIndexPath
	if baiPath == "" {
		baiPath = bamPath + ".bai"
	}

	faIndexPath := resolveFastaIndex(fastaPath, *faiPath)

	mode := genotype.Diploid
	if *haploid {
		mode = genotype.Haploid
	}
	opts := strgt.Opts{
		L:                 *flankLen,
		ConsLeftFlank:     *consLeftFlank,
		ConsRightFlank:    *consRightFlank,
		MapQualityMin:     *mapQualityMin,
		ReadLengthMin:     *readLengthMin,
		ReadLengthMax:     *readLengthMax,
		ProperlyPaired:    *properlyPaired,
		Multi:             *multi,
		Mode:              mode,
		EmitAll:           *emitAll,
		MakeRepeatseqFile: *repeatseqFile,
		MakeCallsFile:     *callsFile,
		Parallelism:       *parallelism,
		Phi:               genotype.DefaultPhiTable(),
	}

	prefix := *outPrefix
	if prefix == "" {
		prefix = strgt.OutputBasename(bamPath, opts)
	}

	out, err := strgt.Run(bamPath, baiPath, fastaPath, faIndexPath, regionsPath, opts)
	if err != nil {
		log.Panicf("%v", err)
	}

	ctx := vcontext.Background()
	if opts.MakeRepeatseqFile {
		writeOutput(ctx, prefix+".repeatseq", out.Repeatseq)
	}
	if opts.MakeCallsFile {
		writeOutput(ctx, prefix+".calls", out.Calls)
	}
	writeOutput(ctx, prefix+".vcf", out.VCF)
	log.Debug.Printf("exiting")
}

// resolveFastaIndex returns faiPath if set, else fastaPath+".fai", generating
// it first if it doesn't already exist.
func resolveFastaIndex(fastaPath, faiPath string) string {
	if faiPath == "" {
		faiPath = fastaPath + ".fai"
	}
	ctx := vcontext.Background()
	if in, err := file.Open(ctx, faiPath); err == nil {
		in.Close(ctx) // nolint: errcheck
		return faiPath
	}

	log.Printf("fasta index %s not found, generating", faiPath)
	fin, err := file.Open(ctx, fastaPath)
	if err != nil {
		log.Fatalf("open %s: %v", fastaPath, err)
	}
	defer fin.Close(ctx) // nolint: errcheck

	fout, err := file.Create(ctx, faiPath)
	if err != nil {
		log.Fatalf("create %s: %v", faiPath, err)
	}
	if err := fasta.GenerateIndex(fout.Writer(ctx), fin.Reader(ctx)); err != nil {
		log.Fatalf("generate index for %s: %v", fastaPath, err)
	}
	if err := fout.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", faiPath, err)
	}
	return faiPath
}

func writeOutput(ctx context.Context, path, body string) {
	f, err := file.Create(ctx, path)
	if err != nil {
		log.Fatalf("create %s: %v", path, err)
	}
	if _, err := f.Writer(ctx).Write([]byte(body)); err != nil {
		log.Fatalf("write %s: %v", path, err)
	}
	if err := f.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", path, err)
	}
}
