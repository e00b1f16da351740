package bamcompare

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	gbam "github.com/grailbio/bio-bamcompare/encoding/bam"
	"github.com/grailbio/bio-bamcompare/encoding/bamprovider"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

type testRead struct {
	name  string
	ref   int
	pos1  int
	flags sam.Flags
	cigar string
}

func writeTestBAM(t *testing.T, path string, header *sam.Header, reads []testRead) {
	var recs []*sam.Record
	for _, r := range reads {
		ref := header.Refs()[r.ref]
		c := "151M"
		if r.cigar != "" {
			c = r.cigar
		}
		recs = append(recs, gbam.NewRecord(r.name, ref, r.pos1-1, sam.Paired|sam.Read1|r.flags, r.pos1+199, ref, cigar(c)))
	}
	require.NoError(t, gbam.WriteBAMWithIndex(path, header, recs))
}

// setupBAMs writes the reference and new BAMs used by the Compare tests into
// dir. Both have chr1 (10000 bases) and chr2 (5000 bases).
func setupBAMs(t *testing.T, dir string) (refPath, newPath string) {
	header, err := sam.NewHeader(nil, []*sam.Reference{newTestRef("chr1", 10000), newTestRef("chr2", 5000)})
	require.NoError(t, err)
	refPath = filepath.Join(dir, "ref.bam")
	newPath = filepath.Join(dir, "new.bam")
	writeTestBAM(t, refPath, header, []testRead{
		{"A", 0, 100, 0, ""},
		{"B", 0, 200, sam.Duplicate, ""},
		{"C", 0, 5000, 0, ""},
		{"D", 1, 100, 0, ""},
	})
	writeTestBAM(t, newPath, header, []testRead{
		{"A", 0, 100, 0, ""},
		{"B", 0, 200, 0, ""},
		{"E", 0, 300, 0, ""},
		{"D", 1, 100, 0, "150M1S"},
	})
	return
}

// readDiffs returns the name and mismatch type of each row of a diff TSV.
func readDiffs(t *testing.T, path string) []string {
	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	rows := lines(string(data))
	expect.EQ(t, rows[0], diffHeader)
	var diffs []string
	for _, row := range rows[1:] {
		cols := strings.Split(row, "\t")
		require.Len(t, cols, len(DiffColumns))
		diffs = append(diffs, cols[0]+":"+cols[3]+":"+cols[4])
	}
	return diffs
}

func TestCompareBAMs(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	refPath, newPath := setupBAMs(t, tempDir)

	wantDiffs := []string{
		"B:VALUE:duplicate(true/false)",
		"E:NEW_ONLY:",
		"C:REF_ONLY:",
		"D:VALUE:cigar(151M/150M1S)",
	}
	for _, partitionSize := range []int{1000000, 1000, 99} {
		opts := DefaultOpts
		opts.RefBAM = refPath
		opts.NewBAM = newPath
		opts.OutputPath = filepath.Join(tempDir, "diffs.tsv")
		opts.SummaryPath = filepath.Join(tempDir, "summary.tsv")
		opts.PartitionSize = partitionSize
		opts.Parallelism = 3

		summary, err := Compare(ctx, opts)
		require.NoError(t, err)
		expect.EQ(t, summary.Statistics, Statistics{RefReadCount: 4, NewReadCount: 4, DiffCount: 4})
		expect.EQ(t, summary.RefOnlyCount, int64(1))
		expect.EQ(t, summary.NewOnlyCount, int64(1))
		expect.EQ(t, summary.ValueCount, int64(2))
		expect.EQ(t, summary.TruncatedPartitions, 0)
		expect.EQ(t, readDiffs(t, opts.OutputPath), wantDiffs)

		data, err := ioutil.ReadFile(opts.SummaryPath)
		require.NoError(t, err)
		rows := lines(string(data))
		require.Len(t, rows, 2)
		expect.True(t, strings.HasPrefix(rows[1], "4\t4\t4\t1\t1\t2\t"))
	}
}

func TestCompareDigestIndependentOfPartitioning(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	refPath, newPath := setupBAMs(t, tempDir)

	var digests []uint64
	for _, parallelism := range []int{1, 8} {
		opts := DefaultOpts
		opts.RefBAM = refPath
		opts.NewBAM = newPath
		opts.PartitionSize = 500
		opts.Parallelism = parallelism
		summary, err := Compare(ctx, opts)
		require.NoError(t, err)
		expect.EQ(t, summary.Partitions, 30)
		digests = append(digests, summary.Digest)
	}
	expect.EQ(t, digests[0], digests[1])
}

func TestCompareRegions(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	refPath, newPath := setupBAMs(t, tempDir)

	opts := DefaultOpts
	opts.RefBAM = refPath
	opts.NewBAM = newPath
	opts.OutputPath = filepath.Join(tempDir, "diffs.tsv")
	opts.Regions = []string{"chr1:150-250"}
	summary, err := Compare(vcontext.Background(), opts)
	require.NoError(t, err)
	expect.EQ(t, summary.Statistics, Statistics{RefReadCount: 2, NewReadCount: 2, DiffCount: 1})
	expect.EQ(t, summary.Partitions, 1)
	expect.EQ(t, readDiffs(t, opts.OutputPath), []string{"B:VALUE:duplicate(true/false)"})

	opts.IgnoreDuplicateFlag = true
	summary, err = Compare(vcontext.Background(), opts)
	require.NoError(t, err)
	expect.EQ(t, summary.DiffCount, int64(0))
	expect.EQ(t, len(readDiffs(t, opts.OutputPath)), 0)

	opts.Regions = []string{"chr3:1-100"}
	_, err = Compare(vcontext.Background(), opts)
	require.Error(t, err)
}

func TestCompareHaltThreshold(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	refPath, newPath := setupBAMs(t, tempDir)

	opts := DefaultOpts
	opts.RefBAM = refPath
	opts.NewBAM = newPath
	opts.OutputPath = filepath.Join(tempDir, "diffs.tsv.gz")
	opts.PartitionSize = 1000
	opts.HaltThreshold = 2
	summary, err := Compare(vcontext.Background(), opts)
	require.NoError(t, err)
	expect.EQ(t, summary.Statistics, Statistics{RefReadCount: 4, NewReadCount: 1, DiffCount: 4})
	expect.EQ(t, summary.TruncatedPartitions, 1)
	expect.EQ(t, summary.HaltedNewPartitions, 0)
	expect.EQ(t, summary.RefOnlyCount, int64(3))
	expect.EQ(t, summary.ValueCount, int64(1))
}

func TestCompareHaltedNewSide(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	refPath, newPath := setupBAMs(t, tempDir)

	opts := DefaultOpts
	opts.RefBAM = refPath
	opts.NewBAM = newPath
	opts.SummaryPath = filepath.Join(tempDir, "summary.tsv")
	opts.Regions = []string{"chr1:1-400"}
	opts.HaltThreshold = 3
	summary, err := Compare(vcontext.Background(), opts)
	require.NoError(t, err)
	// The reference side has A and B. The new side halts on its third read, E.
	expect.EQ(t, summary.Statistics, Statistics{RefReadCount: 2, NewReadCount: 3, DiffCount: 2})
	expect.EQ(t, summary.TruncatedPartitions, 0)
	expect.EQ(t, summary.HaltedNewPartitions, 1)

	data, err := ioutil.ReadFile(opts.SummaryPath)
	require.NoError(t, err)
	rows := lines(string(data))
	require.Len(t, rows, 2)
	expect.EQ(t, strings.Split(rows[0], "\t")[8], "HaltedNewPartitions")
	expect.EQ(t, strings.Split(rows[1], "\t")[8], "1")
}

func TestCompareErrors(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	refPath, _ := setupBAMs(t, tempDir)

	opts := DefaultOpts
	_, err := Compare(vcontext.Background(), opts)
	require.Error(t, err)

	opts.RefBAM = refPath
	opts.NewBAM = filepath.Join(tempDir, "missing.bam")
	_, err = Compare(vcontext.Background(), opts)
	require.Error(t, err)

	opts.NewBAM = refPath
	opts.PartitionSize = 0
	_, err = Compare(vcontext.Background(), opts)
	require.Error(t, err)
}

func TestMakePartitions(t *testing.T) {
	header, _, _ := newTestHeader(t)
	regions, err := parseRegions(header, nil)
	require.NoError(t, err)
	expect.EQ(t, regions, []Region{{"chr1", 1, 10000}, {"chr2", 1, 10000}})

	shards, err := bamprovider.NewFakeProvider(header, nil).GenerateShards(bamprovider.GenerateShardsOpts{ShardSize: 4000})
	require.NoError(t, err)
	parts := makePartitions(shards, regions[:1], 100)
	expect.EQ(t, parts, []partition{
		{Region{"chr1", 1, 4000}, 100},
		{Region{"chr1", 4001, 8000}, 0},
		{Region{"chr1", 8001, 10000}, 0},
	})

	regions, err = parseRegions(header, []string{"chr2:3000-5000", "chr1:9000-20000"})
	require.NoError(t, err)
	expect.EQ(t, regions, []Region{{"chr2", 3000, 5000}, {"chr1", 9000, 10000}})
	parts = makePartitions(shards, regions, 100)
	expect.EQ(t, parts, []partition{
		{Region{"chr2", 3000, 4000}, 100},
		{Region{"chr2", 4001, 5000}, 0},
		{Region{"chr1", 9000, 10000}, 100},
	})

	_, err = parseRegions(header, []string{"chr2:20000-30000"})
	expect.True(t, err != nil)
	_, err = parseRegions(header, []string{"chrM"})
	expect.True(t, err != nil)
}
