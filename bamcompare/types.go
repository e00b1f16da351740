package bamcompare

import (
	"fmt"
	"sync/atomic"

	"github.com/grailbio/bio-bamcompare/interval"
	"github.com/grailbio/hts/sam"
)

// Region is a genomic interval. Start and End are 1-based and inclusive.
type Region struct {
	Chrom      string
	Start, End int
}

// ParseRegion parses a region string of the form chrom, chrom:pos, or
// chrom:start-end.
func ParseRegion(s string) (Region, error) {
	e, err := interval.ParseRegionString(s)
	if err != nil {
		return Region{}, err
	}
	return Region{Chrom: e.ChrName, Start: int(e.Start0) + 1, End: int(e.End)}, nil
}

// String renders r as chrom:start-end.
func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Chrom, r.Start, r.End)
}

// start0 and limit0 give r as a 0-based half-open interval.
func (r Region) start0() int { return r.Start - 1 }
func (r Region) limit0() int { return r.End }

// MismatchType classifies a DiffRecord.
type MismatchType int

const (
	// RefOnly means the read was found only in the reference input.
	RefOnly MismatchType = iota
	// NewOnly means the read was found only in the new input.
	NewOnly
	// Value means the read was found in both inputs, but some tracked fields
	// differ.
	Value
)

// String returns the name used in the diff output.
func (t MismatchType) String() string {
	switch t {
	case RefOnly:
		return "REF_ONLY"
	case NewOnly:
		return "NEW_ONLY"
	case Value:
		return "VALUE"
	}
	return fmt.Sprintf("MismatchType(%d)", int(t))
}

// tieRank orders diffs that start at the same position.
func (t MismatchType) tieRank() int {
	switch t {
	case NewOnly:
		return 0
	case RefOnly:
		return 1
	}
	return 2
}

// DiffRecord describes one difference between the two inputs.
type DiffRecord struct {
	Type MismatchType
	// Read is the record that the diff is about. For Value diffs it is the
	// reference-side record.
	Read *sam.Record
	// DiffList holds one "name(ref/new)" entry per mismatching field. It is nil
	// unless Type == Value.
	DiffList []string
}

// Statistics counts the records accepted on each side of a comparison and
// the diffs emitted.
type Statistics struct {
	RefReadCount int64
	NewReadCount int64
	DiffCount    int64
}

// Add adds the counts of o to s.
func (s *Statistics) Add(o Statistics) {
	s.RefReadCount += o.RefReadCount
	s.NewReadCount += o.NewReadCount
	s.DiffCount += o.DiffCount
}

// Config controls a PartitionReader.
type Config struct {
	// HaltThreshold bounds the number of records buffered for one side. When a
	// buffer reaches it, ingestion of that side stops. 0 disables the bound.
	HaltThreshold int
	// IgnoreDuplicateFlag disables the duplicate-flag comparison.
	IgnoreDuplicateFlag bool
	// ExcludeConsensusReads drops records that carry the consensus-read
	// attribute.
	ExcludeConsensusReads bool
	// Excluded lists sub-regions to ignore. A record whose footprint inside the
	// region lies entirely in Excluded is dropped. nil means no exclusion.
	Excluded *interval.BEDUnion
	// ExtraChecks are appended to the default field checks.
	ExtraChecks []FieldCheck
}

// Halt is a cooperative stop signal shared between a PartitionReader and a
// RecordProvider. Thread safe.
type Halt struct {
	halted int32
}

// Set raises the signal.
func (h *Halt) Set() { atomic.StoreInt32(&h.halted, 1) }

// Halted reports whether Set has been called.
func (h *Halt) Halted() bool { return atomic.LoadInt32(&h.halted) != 0 }

// RecordProvider streams the records of one input.
type RecordProvider interface {
	// Stream calls fn for each record that overlaps region, in ascending
	// alignment-start order. It checks halt before each record and returns
	// as soon as it is raised.
	Stream(region Region, halt *Halt, fn func(*sam.Record)) error
}

// DiffSink receives the diffs produced by a PartitionReader, in emission
// order.
type DiffSink interface {
	Accept(diff DiffRecord) error
}

// DiffCollector is a DiffSink that keeps every diff in memory.
type DiffCollector struct {
	Diffs []DiffRecord
}

// Accept implements DiffSink.
func (c *DiffCollector) Accept(diff DiffRecord) error {
	c.Diffs = append(c.Diffs, diff)
	return nil
}

// sliceProvider is a RecordProvider over an in-memory list.
type sliceProvider struct {
	recs []*sam.Record
}

// NewSliceProvider creates a RecordProvider that yields recs, in the given
// order, regardless of the requested region. The reader's accept filter is
// left to discard records outside the region.
func NewSliceProvider(recs []*sam.Record) RecordProvider {
	return &sliceProvider{recs: recs}
}

// Stream implements RecordProvider.
func (p *sliceProvider) Stream(_ Region, halt *Halt, fn func(*sam.Record)) error {
	for _, r := range p.recs {
		if halt.Halted() {
			return nil
		}
		fn(r)
	}
	return nil
}
