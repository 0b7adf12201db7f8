package strgt

import (
	"context"
	"fmt"
	"runtime"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/strgt/bamio"
	"github.com/grailbio/strgt/driver"
	"github.com/grailbio/strgt/encoding/fasta"
	"github.com/grailbio/strgt/region"
	"github.com/grailbio/strgt/vcfw"
)

// Outputs is the concatenated, worker-order-stable output of one Run.
type Outputs struct {
	Repeatseq string
	Calls     string
	VCF       string
}

// Run genotypes every region in regionsPath against the given BAM and FASTA.
// The region list is split into contiguous chunks across workers, each
// backed by its own readers so no state is shared across goroutines; worker
// output is concatenated in worker-index order so results are reproducible
// regardless of goroutine scheduling.
func Run(bamPath, baiPath, fastaPath, faiPath, regionsPath string, opts Opts) (Outputs, error) {
	ctx := vcontext.Background()

	regions, err := readRegions(ctx, regionsPath)
	if err != nil {
		return Outputs{}, err
	}
	header := ""
	for _, h := range vcfw.Header {
		header += h + "\n"
	}
	if len(regions) == 0 {
		return Outputs{VCF: header}, nil
	}

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(regions) {
		parallelism = len(regions)
	}

	driverOpts := toDriverOpts(opts)

	repeatseqParts := make([]string, parallelism)
	callsParts := make([]string, parallelism)
	vcfParts := make([]string, parallelism)

	var once errors.Once

	err = traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(regions)) / parallelism
		endIdx := ((jobIdx + 1) * len(regions)) / parallelism
		if startIdx == endIdx {
			return nil
		}

		ref, closeRef, err := openFasta(ctx, fastaPath, faiPath)
		if err != nil {
			once.Set(err)
			return err
		}
		defer closeRef()

		bam, err := bamio.Open(bamPath, baiPath)
		if err != nil {
			once.Set(err)
			return err
		}
		defer func() {
			if cerr := bam.Close(); cerr != nil {
				once.Set(cerr)
			}
		}()

		var repeatseq, calls, vcfBody string
		for _, r := range regions[startIdx:endIdx] {
			res, err := driver.Run(ref, bam, r, opts.Phi, driverOpts)
			if err != nil {
				log.Error.Printf("strgt: %s: %v", r.Label(), err)
				once.Set(err)
				continue
			}
			if res.Repeatseq != "" {
				repeatseq += res.Repeatseq
			}
			if res.Calls != "" {
				calls += res.Calls + "\n"
			}
			if res.VCF != "" {
				vcfBody += res.VCF + "\n"
			}
		}
		repeatseqParts[jobIdx] = repeatseq
		callsParts[jobIdx] = calls
		vcfParts[jobIdx] = vcfBody
		return nil
	})
	if err != nil {
		return Outputs{}, err
	}
	if once.Err() != nil {
		return Outputs{}, once.Err()
	}

	out := Outputs{}
	for i := 0; i < parallelism; i++ {
		out.Repeatseq += repeatseqParts[i]
		out.Calls += callsParts[i]
		out.VCF += vcfParts[i]
	}
	out.VCF = header + out.VCF
	return out, nil
}

func readRegions(ctx context.Context, path string) ([]region.Region, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, fmt.Sprintf("strgt: open regions file %s", path))
	}
	defer f.Close(ctx) // nolint: errcheck

	return region.ParseFile(f.Reader(ctx))
}

// openFasta opens a fresh, unshared reference handle: indexed random access
// when faiPath is set, eager in-memory parsing otherwise. The returned
// closer releases the underlying file handles.
func openFasta(ctx context.Context, fastaPath, faiPath string) (fasta.Fasta, func(), error) {
	in, err := file.Open(ctx, fastaPath)
	if err != nil {
		return nil, nil, errors.E(err, fmt.Sprintf("strgt: open reference %s", fastaPath))
	}

	if faiPath == "" {
		ref, err := fasta.New(in.Reader(ctx))
		if err != nil {
			in.Close(ctx) // nolint: errcheck
			return nil, nil, errors.E(err, fmt.Sprintf("strgt: parse reference %s", fastaPath))
		}
		return ref, func() { in.Close(ctx) }, nil // nolint: errcheck
	}

	idxIn, err := file.Open(ctx, faiPath)
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, nil, errors.E(err, fmt.Sprintf("strgt: open reference index %s", faiPath))
	}
	ref, err := fasta.NewIndexed(in.Reader(ctx), idxIn.Reader(ctx))
	if err != nil {
		in.Close(ctx)    // nolint: errcheck
		idxIn.Close(ctx) // nolint: errcheck
		return nil, nil, errors.E(err, fmt.Sprintf("strgt: parse reference index %s", faiPath))
	}
	closer := func() {
		in.Close(ctx)    // nolint: errcheck
		idxIn.Close(ctx) // nolint: errcheck
	}
	return ref, closer, nil
}

func toDriverOpts(o Opts) driver.Opts {
	return driver.Opts{
		FlankLen:          o.L,
		ConsLeftFlank:     o.ConsLeftFlank,
		ConsRightFlank:    o.ConsRightFlank,
		MapQualityMin:     o.MapQualityMin,
		ReadLengthMin:     o.ReadLengthMin,
		ReadLengthMax:     o.ReadLengthMax,
		ProperlyPaired:    o.ProperlyPaired,
		RejectMultiHits:   o.Multi,
		Mode:              o.Mode,
		EmitAll:           o.EmitAll,
		MakeRepeatseqFile: o.MakeRepeatseqFile,
		MakeCallsFile:     o.MakeCallsFile,
	}
}
