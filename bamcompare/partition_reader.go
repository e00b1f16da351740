package bamcompare

import (
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	gbam "github.com/grailbio/bio-bamcompare/encoding/bam"
	"github.com/grailbio/bio-bamcompare/interval"
	"github.com/grailbio/hts/sam"
)

// PartitionReader compares the reference and new records of one region.
//
// Run reads the reference side into a buffer first. If that buffer reaches
// Config.HaltThreshold, the reader is truncated and the new side is never
// read, so everything buffered is reported as RefOnly. Otherwise the new side
// is read into a second buffer under the same bound, and the buffers are
// paired by (alignment start, read name).
//
// A PartitionReader is single threaded and may be run only once.
type PartitionReader struct {
	region      Region
	cfg         Config
	refProvider RecordProvider
	newProvider RecordProvider
	sink        DiffSink
	comparator  *Comparator

	refBuf    recordBuffer
	newBuf    recordBuffer
	stats     Statistics
	truncated bool
	newHalted bool
	ran       bool
}

// NewPartitionReader creates a reader for region. Diffs are pushed to sink
// during Run.
func NewPartitionReader(region Region, cfg Config, refProvider, newProvider RecordProvider, sink DiffSink) *PartitionReader {
	return &PartitionReader{
		region:      region,
		cfg:         cfg,
		refProvider: refProvider,
		newProvider: newProvider,
		sink:        sink,
		comparator:  NewComparator(cfg),
	}
}

// Stats returns the counts collected by Run.
func (p *PartitionReader) Stats() Statistics { return p.stats }

// Truncated reports whether the reference side hit the halt threshold.
func (p *PartitionReader) Truncated() bool { return p.truncated }

// NewHalted reports whether the new side hit the halt threshold. The records
// buffered before the halt are still compared, so some new-side reads of the
// region may be missing from the diffs.
func (p *PartitionReader) NewHalted() bool { return p.newHalted }

// Run ingests both sides and emits the diffs. A provider or sink error aborts
// the run and is returned.
func (p *PartitionReader) Run() error {
	if p.ran {
		return errors.E(errors.Precondition, "bamcompare: partition reader already ran for", p.region.String())
	}
	p.ran = true

	halted, err := p.ingest(p.refProvider, &p.refBuf, &p.stats.RefReadCount)
	if err != nil {
		return errors.E(err, "reading reference records in", p.region.String())
	}
	if halted {
		p.truncated = true
		log.Debug.Printf("%v: reference side halted after %d records, skipping new side", p.region, p.refBuf.len())
	} else {
		halted, err = p.ingest(p.newProvider, &p.newBuf, &p.stats.NewReadCount)
		if err != nil {
			return errors.E(err, "reading new records in", p.region.String())
		}
		if halted {
			p.newHalted = true
			log.Debug.Printf("%v: new side halted after %d records", p.region, p.newBuf.len())
		}
	}
	return p.emit()
}

// ingest streams provider into buf, counting accepted records in *count. It
// returns true if the halt threshold was reached.
func (p *PartitionReader) ingest(provider RecordProvider, buf *recordBuffer, count *int64) (bool, error) {
	halt := &Halt{}
	err := provider.Stream(p.region, halt, func(r *sam.Record) {
		if halt.Halted() || !p.accept(r) {
			return
		}
		buf.insert(r)
		*count++
		if p.cfg.HaltThreshold > 0 && buf.len() == p.cfg.HaltThreshold {
			log.Debug.Printf("%v: halt threshold %d reached at %s", p.region, p.cfg.HaltThreshold, ReadDetails(r))
			halt.Set()
		}
	})
	return halt.Halted(), err
}

// accept reports whether r takes part in the comparison. r must overlap the
// region with at least one base outside the excluded sub-regions, and must
// not be a consensus read when those are excluded.
func (p *PartitionReader) accept(r *sam.Record) bool {
	if r.Ref == nil || r.Ref.Name() != p.region.Chrom {
		return false
	}
	start, limit := r.Pos, gbam.AlignmentEnd(r)
	if s := p.region.start0(); start < s {
		start = s
	}
	if l := p.region.limit0(); limit > l {
		limit = l
	}
	if start >= limit {
		return false
	}
	if p.cfg.Excluded.CoversByName(p.region.Chrom, interval.PosType(start), interval.PosType(limit)) {
		return false
	}
	if p.cfg.ExcludeConsensusReads && r.AuxFields.Get(consensusTag) != nil {
		return false
	}
	return true
}

type pendingDiff struct {
	key  recordKey
	diff DiffRecord
}

// emit pairs the two buffers and pushes the diffs to the sink, ordered by
// position, then NewOnly before RefOnly before Value, then read name.
func (p *PartitionReader) emit() error {
	refs, news := p.refBuf.entries(), p.newBuf.entries()
	var pending []pendingDiff
	i, j := 0, 0
	for i < len(refs) || j < len(news) {
		var c int
		switch {
		case i == len(refs):
			c = 1
		case j == len(news):
			c = -1
		default:
			c = refs[i].key.compare(news[j].key)
		}
		switch {
		case c < 0:
			pending = append(pending, pendingDiff{refs[i].key, DiffRecord{Type: RefOnly, Read: refs[i].rec}})
			i++
		case c > 0:
			pending = append(pending, pendingDiff{news[j].key, DiffRecord{Type: NewOnly, Read: news[j].rec}})
			j++
		default:
			if diffs := p.comparator.Compare(refs[i].rec, news[j].rec); len(diffs) > 0 {
				pending = append(pending, pendingDiff{refs[i].key, DiffRecord{Type: Value, Read: refs[i].rec, DiffList: diffs}})
			}
			i++
			j++
		}
	}
	sort.SliceStable(pending, func(a, b int) bool {
		pa, pb := &pending[a], &pending[b]
		if pa.key.pos != pb.key.pos {
			return pa.key.pos < pb.key.pos
		}
		if ra, rb := pa.diff.Type.tieRank(), pb.diff.Type.tieRank(); ra != rb {
			return ra < rb
		}
		return pa.key.name < pb.key.name
	})
	for _, d := range pending {
		if err := p.sink.Accept(d.diff); err != nil {
			return errors.E(err, "writing diffs for", p.region.String())
		}
		p.stats.DiffCount++
	}
	return nil
}
