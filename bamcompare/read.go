package bamcompare

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// ReadDetails describes r in one token, as
// name_chrom_pos_fwd|rev_R1|R2_prim|supp. pos is 1-based. Unmapped reads
// report chromosome "unmapped" and position 0.
func ReadDetails(r *sam.Record) string {
	chrom, pos := "unmapped", 0
	if r.Flags&sam.Unmapped == 0 && r.Ref != nil {
		chrom, pos = r.Ref.Name(), r.Pos+1
	}
	strand := "fwd"
	if r.Flags&sam.Reverse != 0 {
		strand = "rev"
	}
	mate := "R2"
	if r.Flags&sam.Read1 != 0 {
		mate = "R1"
	}
	kind := "prim"
	if r.Flags&sam.Supplementary != 0 {
		kind = "supp"
	}
	return fmt.Sprintf("%s_%s_%d_%s_%s_%s", r.Name, chrom, pos, strand, mate, kind)
}
