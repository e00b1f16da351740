package bamcompare

import (
	"context"
	"fmt"
	"io/ioutil"
	"runtime"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/base/tsv"
	gbam "github.com/grailbio/bio-bamcompare/encoding/bam"
	"github.com/grailbio/bio-bamcompare/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
)

// Opts configures Compare.
type Opts struct {
	// RefBAM and NewBAM are the coordinate-sorted, indexed inputs.
	RefBAM, NewBAM string
	// RefIndex and NewIndex are the index paths. They default to the BAM
	// path + ".bai".
	RefIndex, NewIndex string
	// OutputPath is the diff TSV. A .gz suffix compresses it. If empty, diffs
	// are only counted.
	OutputPath string
	// SummaryPath, if nonempty, receives a one-row TSV of the totals.
	SummaryPath string
	// Regions restricts the comparison. Each entry is chrom, chrom:pos or
	// chrom:start-end. Empty means every reference in RefBAM's header.
	Regions []string
	// ExcludeBED is a BED file of sub-regions to ignore.
	ExcludeBED string
	// ExcludePolyG is a reference genome version, "37" or "38", whose poly-G
	// artifact region is ignored. Empty disables it.
	ExcludePolyG string
	// PartitionSize is the width of a partition, in bases.
	PartitionSize int
	// Padding is the number of bases before each region from which reads are
	// read, so that reads starting before the region but overlapping it are
	// compared.
	Padding int
	// HaltThreshold bounds the records buffered per side and partition. 0
	// disables it.
	HaltThreshold         int
	IgnoreDuplicateFlag   bool
	ExcludeConsensusReads bool
	// MinMapQ drops records whose mapping quality is below it.
	MinMapQ int
	// FlagExclude drops records that have any of these flags.
	FlagExclude int
	// Parallelism is the number of partitions compared concurrently. If <= 0,
	// runtime.NumCPU() is used.
	Parallelism int
}

// DefaultOpts is the default Opts.
var DefaultOpts = Opts{
	PartitionSize: 1000000,
	Padding:       1000,
	FlagExclude:   int(DefaultFlagExclude),
}

// Summary aggregates the results of Compare.
type Summary struct {
	Statistics
	RefOnlyCount        int64
	NewOnlyCount        int64
	ValueCount          int64
	Partitions          int
	TruncatedPartitions int
	// HaltedNewPartitions counts the partitions whose new side hit the halt
	// threshold while the reference side did not. Their comparison is
	// complete, but new-side reads past the halt are missing.
	HaltedNewPartitions int
	// Digest is the seahash of the diff stream.
	Digest uint64
}

// String returns a one-line description of s.
func (s Summary) String() string {
	return fmt.Sprintf("refReads=%d newReads=%d diffs=%d (refOnly=%d newOnly=%d value=%d) partitions=%d truncated=%d haltedNew=%d digest=%016x",
		s.RefReadCount, s.NewReadCount, s.DiffCount, s.RefOnlyCount, s.NewOnlyCount, s.ValueCount,
		s.Partitions, s.TruncatedPartitions, s.HaltedNewPartitions, s.Digest)
}

// partition is one unit of work for Compare.
type partition struct {
	region  Region
	padding int
}

// makePartitions intersects regions with the reference shards. Only the first
// piece of a region is padded. A read that starts before a later piece is
// seen, and compared, by the piece in which it starts.
func makePartitions(shards []gbam.Shard, regions []Region, padding int) []partition {
	var parts []partition
	for _, r := range regions {
		first := true
		for _, shard := range shards {
			if shard.StartRef.Name() != r.Chrom {
				continue
			}
			start, end := shard.Start+1, shard.End
			if start < r.Start {
				start = r.Start
			}
			if end > r.End {
				end = r.End
			}
			if start > end {
				continue
			}
			p := partition{region: Region{Chrom: r.Chrom, Start: start, End: end}}
			if first {
				p.padding = padding
				first = false
			}
			parts = append(parts, p)
		}
	}
	return parts
}

// parseRegions converts the region strings into Regions clipped to the
// reference lengths. Empty regionStrs selects every reference in the header.
func parseRegions(header *sam.Header, regionStrs []string) ([]Region, error) {
	if len(regionStrs) == 0 {
		var regions []Region
		for _, ref := range header.Refs() {
			regions = append(regions, Region{Chrom: ref.Name(), Start: 1, End: ref.Len()})
		}
		return regions, nil
	}
	var regions []Region
	for _, str := range regionStrs {
		r, err := ParseRegion(str)
		if err != nil {
			return nil, errors.E(err, "parsing region", str)
		}
		ref := bamprovider.RefByName(header, r.Chrom)
		if ref == nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("region %s: reference %s not in the BAM header", str, r.Chrom))
		}
		if r.End > ref.Len() {
			r.End = ref.Len()
		}
		if r.Start > r.End {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("region %s is past the end of %s", str, r.Chrom))
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// Compare compares opts.RefBAM against opts.NewBAM, partition by partition,
// and writes the diffs to opts.OutputPath.
func Compare(ctx context.Context, opts Opts) (summary Summary, err error) {
	if opts.RefBAM == "" || opts.NewBAM == "" {
		return summary, errors.E(errors.Invalid, "bamcompare.Compare: both BAM paths must be set")
	}
	if opts.PartitionSize <= 0 {
		return summary, errors.E(errors.Invalid, fmt.Sprintf("bamcompare.Compare: partition size must be positive, got %d", opts.PartitionSize))
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	excluded, err := LoadExcludedRegions(opts.ExcludeBED, opts.ExcludePolyG)
	if err != nil {
		return summary, err
	}
	cfg := Config{
		HaltThreshold:         opts.HaltThreshold,
		IgnoreDuplicateFlag:   opts.IgnoreDuplicateFlag,
		ExcludeConsensusReads: opts.ExcludeConsensusReads,
		Excluded:              excluded,
	}

	refProvider := bamprovider.NewProvider(opts.RefBAM, bamprovider.ProviderOpts{Index: opts.RefIndex})
	newProvider := bamprovider.NewProvider(opts.NewBAM, bamprovider.ProviderOpts{Index: opts.NewIndex})
	defer func() {
		if e := refProvider.Close(); e != nil && err == nil {
			err = errors.E(e, "reading", opts.RefBAM)
		}
		if e := newProvider.Close(); e != nil && err == nil {
			err = errors.E(e, "reading", opts.NewBAM)
		}
	}()
	header, err := refProvider.GetHeader()
	if err != nil {
		return summary, errors.E(err, "reading header of", opts.RefBAM)
	}
	if _, err = newProvider.GetHeader(); err != nil {
		return summary, errors.E(err, "reading header of", opts.NewBAM)
	}
	regions, err := parseRegions(header, opts.Regions)
	if err != nil {
		return summary, err
	}
	shards, err := refProvider.GenerateShards(bamprovider.GenerateShardsOpts{ShardSize: opts.PartitionSize})
	if err != nil {
		return summary, errors.E(err, "sharding", opts.RefBAM)
	}
	parts := makePartitions(shards, regions, opts.Padding)

	var writer *DiffWriter
	if opts.OutputPath != "" {
		if writer, err = CreateDiffWriter(ctx, opts.OutputPath, parallelism); err != nil {
			return summary, err
		}
	} else {
		writer = NewDiffWriter(ioutil.Discard)
	}

	var (
		mu        sync.Mutex
		flagsExcl = sam.Flags(opts.FlagExclude)
	)
	summary.Partitions = len(parts)
	log.Printf("bamcompare: comparing %s against %s, %d partitions, %d workers",
		opts.RefBAM, opts.NewBAM, len(parts), parallelism)
	err = traverse.Limit(parallelism).Each(len(parts), func(idx int) error {
		part := parts[idx]
		sink := writer.PartitionSink(idx)
		reader := NewPartitionReader(part.region, cfg,
			&BAMRecordProvider{Provider: refProvider, Padding: part.padding, MinMapQ: opts.MinMapQ, FlagExclude: flagsExcl},
			&BAMRecordProvider{Provider: newProvider, Padding: part.padding, MinMapQ: opts.MinMapQ, FlagExclude: flagsExcl},
			sink)
		if err := reader.Run(); err != nil {
			return err
		}
		if err := sink.Done(); err != nil {
			return errors.E(err, "writing", opts.OutputPath)
		}
		stats := reader.Stats()
		log.Debug.Printf("%v: %+v", part.region, stats)
		mu.Lock()
		summary.Add(stats)
		if reader.Truncated() {
			summary.TruncatedPartitions++
		}
		if reader.NewHalted() {
			summary.HaltedNewPartitions++
		}
		mu.Unlock()
		return nil
	})
	if e := writer.Close(); e != nil && err == nil {
		err = errors.E(e, "writing", opts.OutputPath)
	}
	if err != nil {
		return summary, err
	}
	counts := writer.TypeCounts()
	summary.RefOnlyCount = counts[RefOnly]
	summary.NewOnlyCount = counts[NewOnly]
	summary.ValueCount = counts[Value]
	summary.Digest = writer.Digest()
	log.Printf("bamcompare: %v", summary)
	if opts.SummaryPath != "" {
		err = WriteSummary(ctx, opts.SummaryPath, summary)
	}
	return summary, err
}

// WriteSummary writes s to path as a TSV with a header line and one row.
func WriteSummary(ctx context.Context, path string, s Summary) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "creating summary file", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	w.WriteString(strings.Join([]string{
		"RefReadCount", "NewReadCount", "DiffCount", "RefOnly", "NewOnly", "Value",
		"Partitions", "TruncatedPartitions", "HaltedNewPartitions", "Digest"}, "\t"))
	if err = w.EndLine(); err != nil {
		return err
	}
	w.WriteInt64(s.RefReadCount)
	w.WriteInt64(s.NewReadCount)
	w.WriteInt64(s.DiffCount)
	w.WriteInt64(s.RefOnlyCount)
	w.WriteInt64(s.NewOnlyCount)
	w.WriteInt64(s.ValueCount)
	w.WriteInt64(int64(s.Partitions))
	w.WriteInt64(int64(s.TruncatedPartitions))
	w.WriteInt64(int64(s.HaltedNewPartitions))
	w.WriteString(fmt.Sprintf("%016x", s.Digest))
	if err = w.EndLine(); err != nil {
		return err
	}
	return w.Flush()
}
