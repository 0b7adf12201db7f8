// Package bamio provides a minimal, region-restricted BAM alignment reader.
// Unlike a general-purpose provider, each Reader is owned by a single
// caller: it is not safe for concurrent use and does not pool iterators,
// matching the one-reader-per-worker resource model of the genotyper.
package bamio

import (
	"fmt"
	"io"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/vlog"
)

// Reader holds one open BAM file and its index. It is not thread-safe.
type Reader struct {
	bamPath string
	in      file.File
	reader  *bam.Reader
	index   *bam.Index
	header  *sam.Header
	err     errorreporter.T

	iterOut bool // an Iterator is currently live; reuse is forbidden until Close
}

// Open opens bamPath and its index (indexPath, or bamPath+".bai" if empty).
// Both paths may be local or any scheme github.com/grailbio/base/file
// supports transparently (e.g. S3 URLs).
func Open(bamPath, indexPath string) (*Reader, error) {
	if indexPath == "" {
		indexPath = bamPath + ".bai"
	}
	ctx := vcontext.Background()

	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return nil, fmt.Errorf("bamio: open %s: %w", bamPath, err)
	}

	idxFile, err := file.Open(ctx, indexPath)
	if err != nil {
		in.Close(ctx)
		return nil, fmt.Errorf("bamio: open index %s: %w", indexPath, err)
	}
	defer idxFile.Close(ctx)

	idx, err := bam.ReadIndex(idxFile.Reader(ctx))
	if err != nil {
		in.Close(ctx)
		return nil, fmt.Errorf("bamio: read index %s: %w", indexPath, err)
	}

	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		in.Close(ctx)
		return nil, fmt.Errorf("bamio: new reader %s: %w", bamPath, err)
	}

	return &Reader{
		bamPath: bamPath,
		in:      in,
		reader:  reader,
		index:   idx,
		header:  reader.Header(),
	}, nil
}

// Header returns the BAM header.
func (r *Reader) Header() *sam.Header {
	return r.header
}

// Close releases the underlying file handles. Do not call while an Iterator
// from this Reader is still in use.
func (r *Reader) Close() error {
	err := r.reader.Close()
	if cerr := r.in.Close(vcontext.Background()); err == nil {
		err = cerr
	}
	if err != nil {
		r.err.Set(err)
	}
	return r.err.Err()
}

// Err returns the first terminal error this Reader or any iterator it
// produced has recorded.
func (r *Reader) Err() error {
	return r.err.Err()
}

// RegionIterator returns an iterator over alignments overlapping the
// half-open 0-based reference range [start0, limit0) on chrom. Reusing the
// Reader for a second RegionIterator before the first is closed is a fatal
// error (vlog.Fatalf), since bam.Reader has no independent seek state to
// share.
func (r *Reader) RegionIterator(chrom string, start0, limit0 int) (*Iterator, error) {
	if r.iterOut {
		vlog.Fatalf("bamio: %s already has a live iterator", r.bamPath)
	}
	ref, ok := r.findRef(chrom)
	if !ok {
		return nil, fmt.Errorf("bamio: unknown reference %q", chrom)
	}

	offset, found, err := r.findOffset(ref, start0, limit0)
	if err != nil {
		return nil, err
	}
	it := &Iterator{reader: r, refID: ref.ID(), startPos: start0, limitPos: limit0}
	if !found {
		it.done = true
		return it, nil
	}
	if err := r.reader.Seek(offset); err != nil {
		return nil, fmt.Errorf("bamio: seek %s:%d-%d: %w", chrom, start0, limit0, err)
	}
	r.iterOut = true
	return it, nil
}

func (r *Reader) findRef(chrom string) (*sam.Reference, bool) {
	for _, ref := range r.header.Refs() {
		if ref.Name() == chrom {
			return ref, true
		}
	}
	return nil, false
}

// findOffset locates the bgzf offset of the first chunk that might contain a
// record overlapping [start0, limit0) on ref. A false return with a nil
// error means the index proves no such record exists.
func (r *Reader) findOffset(ref *sam.Reference, start0, limit0 int) (bgzf.Offset, bool, error) {
	chunks, err := r.index.Chunks(ref, start0, limit0)
	if err == index.ErrInvalid || len(chunks) == 0 {
		return bgzf.Offset{}, false, nil
	}
	if err != nil {
		return bgzf.Offset{}, false, err
	}
	return chunks[0].Begin, true, nil
}

// Iterator scans BAM records within one Reader.RegionIterator call.
type Iterator struct {
	reader   *Reader
	refID    int
	startPos int
	limitPos int

	next *sam.Record
	err  error
	done bool
}

// Scan advances to the next record overlapping the iterator's range.
// It returns false at the end of the range or on error; check Err to
// distinguish the two.
func (it *Iterator) Scan() bool {
	if it.done || it.err != nil {
		return false
	}
	for {
		rec, err := it.reader.reader.Read()
		if err != nil {
			if err != io.EOF {
				it.err = err
				it.reader.err.Set(err)
			}
			it.done = true
			return false
		}
		if rec.Ref == nil || rec.Ref.ID() != it.refID {
			it.done = true
			return false
		}
		accept, stop := inRange(rec.Pos, rec.End(), it.startPos, it.limitPos)
		if stop {
			it.done = true
			return false
		}
		if !accept {
			continue
		}
		it.next = rec
		return true
	}
}

// inRange reports whether a record spanning the 0-based reference interval
// [pos, end) overlaps the query range [start, limit), and whether the BAM
// reader (sorted by start position) can stop scanning because every
// subsequent record starts at or past limit and so cannot overlap it either.
//
// A record that starts before the query range (pos < start) can still
// overlap it, which is the common case for STR genotyping: a read spanning
// the repeat tract starts in the left flank, i.e. before the tract's start
// coordinate, and must not be discarded here.
func inRange(pos, end, start, limit int) (accept, stop bool) {
	if pos >= limit {
		return false, true
	}
	if end <= start {
		return false, false
	}
	return true, false
}

// Record returns the record most recently found by Scan.
func (it *Iterator) Record() *sam.Record {
	return it.next
}

// Err returns the first non-EOF error encountered by Scan.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases this iterator's claim on the owning Reader.
func (it *Iterator) Close() error {
	it.reader.iterOut = false
	return it.Err()
}
