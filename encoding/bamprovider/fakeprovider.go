package bamprovider

import (
	gbam "github.com/grailbio/bio-bamcompare/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
	err    error
}

type fakeIterator struct {
	recs []*sam.Record
	rec  *sam.Record
	err  error

	shardRange gbam.CoordRange
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and recs by GenerateShards+NewIterator calls. recs must be
// sorted by coordinate.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header: header, recs: recs}
}

// NewFailingFakeProvider is similar to NewFakeProvider, but every iterator it
// creates fails with err once it has yielded the records in its shard.
func NewFailingFakeProvider(header *sam.Header, recs []*sam.Record, err error) Provider {
	return &fakeProvider{header: header, recs: recs, err: err}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// GenerateShards implements the Provider interface.
func (b *fakeProvider) GenerateShards(opts GenerateShardsOpts) ([]gbam.Shard, error) {
	return generateShards(b.header, opts)
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(shard gbam.Shard) Iterator {
	return &fakeIterator{recs: b.recs, shardRange: shard.CoordRange(), err: b.err}
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	if len(i.recs) == 0 {
		return i.err
	}
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return i.Err()
}

func (i *fakeIterator) Scan() bool {
	for {
		if len(i.recs) == 0 {
			return false
		}
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		addr := gbam.CoordFromSAMRecord(i.rec)
		if i.shardRange.Contains(addr) {
			return true
		}
		if !addr.LT(i.shardRange.Limit) {
			i.recs = nil
			return false
		}
	}
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}
