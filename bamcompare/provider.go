package bamcompare

import (
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bio-bamcompare/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
)

// DefaultFlagExclude lists the flags that BAMRecordProvider drops by default.
const DefaultFlagExclude = sam.Unmapped | sam.Secondary | sam.QCFail

// BAMRecordProvider is a RecordProvider that reads an indexed BAM file
// through a bamprovider.Provider. Thread safe, as long as the underlying
// Provider is.
type BAMRecordProvider struct {
	Provider bamprovider.Provider
	// Padding is the number of bases before the region start from which
	// records are read, so that reads which start before the region but
	// overlap it are seen.
	Padding int
	// MinMapQ drops records whose mapping quality is below it.
	MinMapQ int
	// FlagExclude drops records that have any of these flags.
	FlagExclude sam.Flags
}

// Stream implements RecordProvider. A region on a reference that the BAM
// header lacks yields no records.
func (p *BAMRecordProvider) Stream(region Region, halt *Halt, fn func(*sam.Record)) error {
	start := region.start0() - p.Padding
	if start < 0 {
		start = 0
	}
	iter := bamprovider.NewRefIterator(p.Provider, region.Chrom, start, region.limit0())
	for !halt.Halted() && iter.Scan() {
		r := iter.Record()
		if int(r.MapQ) < p.MinMapQ || r.Flags&p.FlagExclude != 0 {
			sam.PutInFreePool(r)
			continue
		}
		fn(r)
	}
	err := iter.Close()
	if err != nil && errors.Is(errors.NotExist, err) {
		log.Debug.Printf("%v: %v, no records", region, err)
		return nil
	}
	return err
}
