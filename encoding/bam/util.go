package bam

import "github.com/grailbio/hts/sam"

// AlignmentEnd returns the 0-based exclusive end of the record's reference
// footprint. Records without a reference-consuming CIGAR get a footprint of
// one base.
func AlignmentEnd(record *sam.Record) int {
	end := record.End()
	if end <= record.Pos {
		return record.Pos + 1
	}
	return end
}
