package bamcompare

import (
	"fmt"
	"testing"

	"github.com/grailbio/bio-bamcompare/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// newTestHeader creates a header with fresh chr1 and chr2 references, each
// 10000 bases long.
func newTestHeader(t *testing.T) (*sam.Header, *sam.Reference, *sam.Reference) {
	c1, c2 := newTestRef("chr1", 10000), newTestRef("chr2", 10000)
	header, err := sam.NewHeader(nil, []*sam.Reference{c1, c2})
	require.NoError(t, err)
	return header, c1, c2
}

func streamNames(t *testing.T, p RecordProvider, region Region) []string {
	var names []string
	require.NoError(t, p.Stream(region, &Halt{}, func(r *sam.Record) {
		names = append(names, r.Name)
	}))
	return names
}

func TestBAMRecordProvider(t *testing.T) {
	header, c1, c2 := newTestHeader(t)
	lowMapQ := newRead("LOW_MAPQ", c1, 150, 0)
	lowMapQ.MapQ = 10
	recs := []*sam.Record{
		newRead("PADDING", c1, 50, 0),
		lowMapQ,
		newRead("INSIDE", c1, 200, 0),
		newRead("SECONDARY", c1, 300, sam.Secondary),
		newRead("AFTER", c1, 500, 0),
		newRead("OTHER_CHR", c2, 200, 0),
	}
	provider := bamprovider.NewFakeProvider(header, recs)
	region := Region{Chrom: "chr1", Start: 100, End: 400}

	p := &BAMRecordProvider{Provider: provider, MinMapQ: 20, FlagExclude: DefaultFlagExclude}
	expect.EQ(t, streamNames(t, p, region), []string{"INSIDE"})

	p.Padding = 60
	expect.EQ(t, streamNames(t, p, region), []string{"PADDING", "INSIDE"})

	p = &BAMRecordProvider{Provider: provider}
	expect.EQ(t, streamNames(t, p, region), []string{"LOW_MAPQ", "INSIDE", "SECONDARY"})

	expect.EQ(t, len(streamNames(t, p, Region{Chrom: "chr9", Start: 1, End: 100})), 0)
	expect.EQ(t, streamNames(t, p, Region{Chrom: "chr2", Start: 1, End: 20000}), []string{"OTHER_CHR"})
}

func TestBAMRecordProviderHalt(t *testing.T) {
	header, c1, _ := newTestHeader(t)
	var recs []*sam.Record
	for i := 0; i < 10; i++ {
		recs = append(recs, newRead(fmt.Sprintf("READ_%d", i), c1, 100+i, 0))
	}
	p := &BAMRecordProvider{Provider: bamprovider.NewFakeProvider(header, recs)}
	halt := &Halt{}
	n := 0
	require.NoError(t, p.Stream(Region{Chrom: "chr1", Start: 1, End: 10000}, halt, func(*sam.Record) {
		n++
		if n == 3 {
			halt.Set()
		}
	}))
	expect.EQ(t, n, 3)
}

func TestBAMRecordProviderError(t *testing.T) {
	header, c1, _ := newTestHeader(t)
	p := &BAMRecordProvider{Provider: bamprovider.NewFailingFakeProvider(header,
		[]*sam.Record{newRead("READ_001", c1, 100, 0)}, fmt.Errorf("bad block"))}
	var names []string
	err := p.Stream(Region{Chrom: "chr1", Start: 1, End: 10000}, &Halt{}, func(r *sam.Record) {
		names = append(names, r.Name)
	})
	expect.EQ(t, names, []string{"READ_001"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad block")
}
