package bamcompare

import (
	"context"
	"encoding/binary"
	"hash"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
)

// DiffColumns is the header line of the diff TSV.
var DiffColumns = []string{
	"ReadId", "Chromosome", "PosStart", "MismatchType", "Diff", "MateChr", "MatePos",
	"Cigar", "Flags", "MapQual", "Paired", "IsFirst", "NegStrand", "Duplicate", "IsSupp", "SuppData",
}

// DiffWriter writes diffs as TSV rows. It receives the diffs of many
// partitions concurrently, and writes each partition's diffs as one block,
// in partition-index order, so the output does not depend on scheduling.
// Thread safe.
type DiffWriter struct {
	mu      sync.Mutex
	w       *tsv.Writer
	hash    hash.Hash64
	next    int
	pending map[int][]DiffRecord
	counts  [3]int64
	err     error

	closers []func() error
}

// NewDiffWriter creates a DiffWriter that writes to w. The header line is
// written immediately.
func NewDiffWriter(w io.Writer) *DiffWriter {
	dw := &DiffWriter{
		w:       tsv.NewWriter(w),
		hash:    seahash.New(),
		pending: map[int][]DiffRecord{},
	}
	dw.w.WriteString(strings.Join(DiffColumns, "\t"))
	dw.err = dw.w.EndLine()
	return dw
}

// CreateDiffWriter creates the file at path and returns a DiffWriter for it.
// A path ending in .gz is compressed with bgzf, using the given number of
// compression threads.
func CreateDiffWriter(ctx context.Context, path string, parallelism int) (*DiffWriter, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "creating diff file", path)
	}
	w := out.Writer(ctx)
	var closers []func() error
	if fileio.DetermineType(path) == fileio.Gzip {
		if parallelism <= 0 {
			parallelism = 1
		}
		bw := bgzf.NewWriter(w, parallelism)
		w = bw
		closers = append(closers, bw.Close)
	}
	closers = append(closers, func() error { return out.Close(ctx) })
	dw := NewDiffWriter(w)
	dw.closers = closers
	return dw, nil
}

// PartitionSink returns the DiffSink for partition idx. Its diffs reach the
// output once Done has been called on it and on every sink with a smaller
// index.
func (w *DiffWriter) PartitionSink(idx int) *PartitionSink {
	return &PartitionSink{w: w, idx: idx}
}

// PartitionSink buffers the diffs of one partition for a DiffWriter.
type PartitionSink struct {
	w     *DiffWriter
	idx   int
	diffs []DiffRecord
}

// Accept implements DiffSink.
func (s *PartitionSink) Accept(diff DiffRecord) error {
	s.diffs = append(s.diffs, diff)
	return nil
}

// Done hands the partition's diffs to the writer.
func (s *PartitionSink) Done() error {
	return s.w.commit(s.idx, s.diffs)
}

func (w *DiffWriter) commit(idx int, diffs []DiffRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[idx] = diffs
	for {
		d, ok := w.pending[w.next]
		if !ok {
			break
		}
		delete(w.pending, w.next)
		w.next++
		w.writeDiffs(d)
	}
	return w.err
}

// Accept implements DiffSink, writing diff at once. It must not be mixed with
// PartitionSink.
func (w *DiffWriter) Accept(diff DiffRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writeDiffs([]DiffRecord{diff})
	return w.err
}

// REQUIRES: w.mu is locked.
func (w *DiffWriter) writeDiffs(diffs []DiffRecord) {
	for _, d := range diffs {
		if w.err != nil {
			return
		}
		w.counts[d.Type]++
		w.writeRow(d)
	}
}

func boolString(b bool) string { return strconv.FormatBool(b) }

// REQUIRES: w.mu is locked.
func (w *DiffWriter) writeRow(d DiffRecord) {
	r := d.Read
	diffs := strings.Join(d.DiffList, ";")
	chrom := "*"
	if r.Ref != nil {
		chrom = r.Ref.Name()
	}
	mateChrom := "*"
	if r.MateRef != nil {
		mateChrom = r.MateRef.Name()
	}
	w.w.WriteString(r.Name)
	w.w.WriteString(chrom)
	w.w.WriteInt64(int64(r.Pos + 1))
	w.w.WriteString(d.Type.String())
	w.w.WriteString(diffs)
	w.w.WriteString(mateChrom)
	w.w.WriteInt64(int64(r.MatePos + 1))
	w.w.WriteString(r.Cigar.String())
	w.w.WriteUint32(uint32(r.Flags))
	w.w.WriteUint32(uint32(r.MapQ))
	w.w.WriteString(boolString(r.Flags&sam.Paired != 0))
	w.w.WriteString(boolString(r.Flags&sam.Read1 != 0))
	w.w.WriteString(boolString(r.Flags&sam.Reverse != 0))
	w.w.WriteString(boolString(r.Flags&sam.Duplicate != 0))
	w.w.WriteString(boolString(r.Flags&sam.Supplementary != 0))
	w.w.WriteString(supplementaryData(r))
	if w.err = w.w.EndLine(); w.err != nil {
		return
	}

	var buf [8]byte
	w.hash.Write(gunsafe.StringToBytes(r.Name)) // nolint: errcheck
	binary.LittleEndian.PutUint64(buf[:], uint64(r.Pos))
	w.hash.Write(buf[:])                         // nolint: errcheck
	w.hash.Write([]byte{byte(d.Type)})           // nolint: errcheck
	w.hash.Write(gunsafe.StringToBytes(diffs))   // nolint: errcheck
}

// supplementaryData renders the first alignment of the SA attribute as
// "chrom;pos;strand;cigar;mapq", or N/A if there is none.
func supplementaryData(r *sam.Record) string {
	sa := attributeValue(r, sam.NewTag("SA"))
	if sa == MissingValue || sa == "" {
		return "N/A"
	}
	if i := strings.IndexByte(sa, ';'); i >= 0 {
		sa = sa[:i]
	}
	fields := strings.Split(sa, ",")
	if len(fields) > 5 {
		fields = fields[:5]
	}
	return strings.Join(fields, ";")
}

// Digest returns the seahash of the diffs written so far. Equal inputs yield
// equal digests.
func (w *DiffWriter) Digest() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hash.Sum64()
}

// TypeCounts returns the number of diffs written so far, by type.
func (w *DiffWriter) TypeCounts() map[MismatchType]int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[MismatchType]int64{
		RefOnly: w.counts[RefOnly],
		NewOnly: w.counts[NewOnly],
		Value:   w.counts[Value],
	}
}

// Close writes any partitions still pending, in index order, flushes the
// output, and closes the file if the writer created it.
func (w *DiffWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idxs := make([]int, 0, len(w.pending))
	for idx := range w.pending {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		w.writeDiffs(w.pending[idx])
		delete(w.pending, idx)
	}
	once := errors.Once{}
	once.Set(w.err)
	once.Set(w.w.Flush())
	for _, c := range w.closers {
		once.Set(c())
	}
	w.closers = nil
	return once.Err()
}
