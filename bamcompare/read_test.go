package bamcompare

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/expect"
)

func TestReadDetails(t *testing.T) {
	expect.EQ(t, ReadDetails(newRead("READ_001", chr1, 100, 0)), "READ_001_chr1_100_fwd_R1_prim")
	r := newRead("READ_002", chr2, 5, sam.Reverse|sam.Supplementary)
	r.Flags &^= sam.Read1
	r.Flags |= sam.Read2
	expect.EQ(t, ReadDetails(r), "READ_002_chr2_5_rev_R2_supp")
	r = newRead("READ_003", chr1, 100, sam.Unmapped)
	expect.EQ(t, ReadDetails(r), "READ_003_unmapped_0_fwd_R1_prim")
}
