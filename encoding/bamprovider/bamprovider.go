package bamprovider

import (
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	gbam "github.com/grailbio/bio-bamcompare/encoding/bam"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for an indexed BAM file. The BAM and index
// paths may be any URL understood by github.com/grailbio/base/file.
//
// Each iterator needs its own file handle. Handles are returned to a pool when
// the iterator is closed and reused by later iterators, so a provider keeps at
// most as many files open as it has concurrently active iterators.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the path of the *.bam.bai file. If "", Path + ".bai".
	Index string

	err errorreporter.T

	mu      sync.Mutex
	header  *sam.Header
	nActive int
	free    []*bamHandle
}

// bamHandle is an open BAM file and its index.
type bamHandle struct {
	in     file.File
	reader *bam.Reader
	index  *bam.Index
}

func (h *bamHandle) close() error {
	ctx := vcontext.Background()
	e := errors.Once{}
	if h.reader != nil {
		e.Set(h.reader.Close())
	}
	if h.in != nil {
		e.Set(h.in.Close(ctx))
	}
	return e.Err()
}

func (b *BAMProvider) indexPath() string {
	if b.Index != "" {
		return b.Index
	}
	return b.Path + ".bai"
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	ctx := vcontext.Background()
	in, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		err = errors.E(err, "reading BAM header of", b.Path)
		b.err.Set(err)
		return nil, err
	}
	defer r.Close() // nolint: errcheck
	b.header = r.Header()
	return b.header, nil
}

// GenerateShards implements the Provider interface.
func (b *BAMProvider) GenerateShards(opts GenerateShardsOpts) ([]gbam.Shard, error) {
	header, err := b.GetHeader()
	if err != nil {
		return nil, err
	}
	return generateShards(header, opts)
}

func generateShards(header *sam.Header, opts GenerateShardsOpts) ([]gbam.Shard, error) {
	if opts.ShardSize <= 0 {
		opts.ShardSize = DefaultShardSize
	}
	return gbam.GetPositionBasedShards(header, opts.ShardSize, opts.Padding, false)
}

// openHandle returns a pooled handle, or opens a new one.
func (b *BAMProvider) openHandle() (*bamHandle, error) {
	b.mu.Lock()
	b.nActive++
	if n := len(b.free); n > 0 {
		h := b.free[n-1]
		b.free = b.free[:n-1]
		b.mu.Unlock()
		return h, nil
	}
	b.mu.Unlock()

	ctx := vcontext.Background()
	h := &bamHandle{}
	var err error
	if h.in, err = file.Open(ctx, b.Path); err != nil {
		return h, err
	}
	indexIn, err := file.Open(ctx, b.indexPath())
	if err != nil {
		return h, err
	}
	defer indexIn.Close(ctx) // nolint: errcheck
	if h.index, err = bam.ReadIndex(indexIn.Reader(ctx)); err != nil {
		return h, errors.E(err, "reading BAM index", b.indexPath())
	}
	if h.reader, err = bam.NewReader(h.in.Reader(ctx), 1); err != nil {
		return h, errors.E(err, "opening BAM", b.Path)
	}
	return h, nil
}

// releaseHandle returns h to the pool. A handle whose iterator failed is
// closed instead, and the failure is recorded for Close.
func (b *BAMProvider) releaseHandle(h *bamHandle, iterErr error) {
	if iterErr != nil {
		b.err.Set(iterErr)
		b.err.Set(h.close())
		h = nil
	}
	b.mu.Lock()
	if h != nil {
		b.free = append(b.free, h)
	}
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("bamprovider: negative active iterator count for %s", b.Path)
	}
	b.mu.Unlock()
}

// NewIterator implements the Provider interface. The shard must lie on a
// single reference.
func (b *BAMProvider) NewIterator(shard gbam.Shard) Iterator {
	if shard.StartRef == nil || shard.EndRef == nil || shard.StartRef.ID() != shard.EndRef.ID() {
		return NewErrorIterator(errors.E(errors.Invalid,
			fmt.Sprintf("bamprovider: shard %v must start and end on the same reference", shard.String())))
	}
	start, limit := shard.PaddedStart(), shard.PaddedEnd()
	if start >= limit {
		return NewErrorIterator(nil)
	}
	h, err := b.openHandle()
	iter := &bamIterator{
		provider:  b,
		h:         h,
		startAddr: gbam.NewCoord(shard.StartRef, start),
		limitAddr: gbam.NewCoord(shard.StartRef, limit),
		err:       err,
	}
	if err == nil {
		iter.seek(shard.StartRef, start, limit)
	}
	return iter
}

// bamIterator reads the records whose start lies in [startAddr, limitAddr).
type bamIterator struct {
	provider             *BAMProvider
	h                    *bamHandle
	startAddr, limitAddr gbam.Coord

	rec    *sam.Record
	err    error
	closed bool
}

// seek positions the reader at the first index chunk overlapping
// [start, limit) of ref. It sets io.EOF if the index has no such chunk.
func (i *bamIterator) seek(ref *sam.Reference, start, limit int) {
	chunks, err := i.h.index.Chunks(ref, start, limit)
	if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
		i.err = io.EOF
		return
	}
	if err != nil {
		i.err = err
		return
	}
	i.err = i.h.reader.Seek(chunks[0].Begin)
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if i.closed {
		vlog.Fatal("bamprovider: Scan called on a closed iterator")
	}
	for i.err == nil {
		i.rec, i.err = i.h.reader.Read()
		if i.err != nil {
			break
		}
		addr := gbam.CoordFromSAMRecord(i.rec)
		if addr.LT(i.startAddr) {
			continue
		}
		if !addr.LT(i.limitAddr) {
			i.err = io.EOF
			break
		}
		return true
	}
	return false
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record { return i.rec }

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	if i.closed {
		vlog.Fatal("bamprovider: iterator closed twice")
	}
	i.closed = true
	err := i.Err()
	i.provider.releaseHandle(i.h, err)
	return err
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("bamprovider: %d iterators still active for %s", b.nActive, b.Path)
	}
	for _, h := range b.free {
		b.err.Set(h.close())
	}
	b.free = nil
	return b.err.Err()
}
