package bamcompare

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	gbam "github.com/grailbio/bio-bamcompare/encoding/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

var diffHeader = "ReadId\tChromosome\tPosStart\tMismatchType\tDiff\tMateChr\tMatePos\tCigar\tFlags\tMapQual\t" +
	"Paired\tIsFirst\tNegStrand\tDuplicate\tIsSupp\tSuppData"

func lines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func TestDiffWriterRows(t *testing.T) {
	var buf bytes.Buffer
	w := NewDiffWriter(&buf)
	ref := newRead("READ_001", chr1, 100, sam.Duplicate|sam.Reverse,
		gbam.NewAux("SA", "chr2,500,+,100M51S,60,0;chr3,7,-,151M,0,1;"))
	require.NoError(t, w.Accept(DiffRecord{Type: Value, Read: ref, DiffList: []string{"duplicate(true/false)", "cigar(151M/150M1S)"}}))
	require.NoError(t, w.Accept(DiffRecord{Type: NewOnly, Read: newRead("READ_002", chr1, 200, 0)}))
	require.NoError(t, w.Close())

	expect.EQ(t, lines(buf.String()), []string{
		diffHeader,
		"READ_001\tchr1\t100\tVALUE\tduplicate(true/false);cigar(151M/150M1S)\tchr2\t100\t151M\t1105\t60\ttrue\ttrue\ttrue\ttrue\tfalse\tchr2;500;+;100M51S;60",
		"READ_002\tchr1\t200\tNEW_ONLY\t\tchr2\t100\t151M\t65\t60\ttrue\ttrue\tfalse\tfalse\tfalse\tN/A",
	})
	expect.EQ(t, w.TypeCounts(), map[MismatchType]int64{RefOnly: 0, NewOnly: 1, Value: 1})
}

func TestDiffWriterPartitionOrder(t *testing.T) {
	var buf bytes.Buffer
	w := NewDiffWriter(&buf)
	sinks := []*PartitionSink{w.PartitionSink(0), w.PartitionSink(1), w.PartitionSink(2)}
	for i, name := range []string{"READ_A", "READ_B", "READ_C"} {
		require.NoError(t, sinks[i].Accept(DiffRecord{Type: RefOnly, Read: newRead(name, chr1, 100*(i+1), 0)}))
	}
	require.NoError(t, sinks[2].Done())
	require.NoError(t, sinks[1].Done())
	expect.EQ(t, w.TypeCounts()[RefOnly], int64(0))
	require.NoError(t, sinks[0].Done())
	expect.EQ(t, w.TypeCounts()[RefOnly], int64(3))
	require.NoError(t, w.Close())

	var names []string
	for _, line := range lines(buf.String())[1:] {
		names = append(names, strings.Split(line, "\t")[0])
	}
	expect.EQ(t, names, []string{"READ_A", "READ_B", "READ_C"})
}

func TestDiffWriterDigest(t *testing.T) {
	digest := func(diffs []DiffRecord) uint64 {
		w := NewDiffWriter(ioutil.Discard)
		for _, d := range diffs {
			require.NoError(t, w.Accept(d))
		}
		require.NoError(t, w.Close())
		return w.Digest()
	}
	r := newRead("READ_001", chr1, 100, 0)
	d0 := digest([]DiffRecord{{Type: RefOnly, Read: r}})
	d1 := digest([]DiffRecord{{Type: RefOnly, Read: r}})
	d2 := digest([]DiffRecord{{Type: NewOnly, Read: r}})
	d3 := digest([]DiffRecord{{Type: Value, Read: r, DiffList: []string{"cigar(151M/150M1S)"}}})
	expect.EQ(t, d0, d1)
	expect.True(t, d0 != d2)
	expect.True(t, d2 != d3)
}

func TestCreateDiffWriterGzip(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	path := filepath.Join(tempDir, "diffs.tsv.gz")

	w, err := CreateDiffWriter(ctx, path, 2)
	require.NoError(t, err)
	sink := w.PartitionSink(0)
	require.NoError(t, sink.Accept(DiffRecord{Type: RefOnly, Read: newRead("READ_001", chr1, 100, 0)}))
	require.NoError(t, sink.Done())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := ioutil.ReadAll(gz)
	require.NoError(t, err)
	got := lines(string(data))
	expect.EQ(t, len(got), 2)
	expect.EQ(t, got[0], diffHeader)
	expect.True(t, strings.HasPrefix(got[1], "READ_001\tchr1\t100\tREF_ONLY\t"))
}

func TestSupplementaryData(t *testing.T) {
	expect.EQ(t, supplementaryData(newRead("R", chr1, 1, 0)), "N/A")
	expect.EQ(t, supplementaryData(newRead("R", chr1, 1, 0, gbam.NewAux("SA", "chr5,10,-,20S131M,3,2;"))), "chr5;10;-;20S131M;3")
}
