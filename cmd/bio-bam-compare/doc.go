/*
bio-bam-compare compares two coordinate-sorted, indexed BAM files that were
aligned against the same reference, and reports the reads that appear in only
one of them or whose duplicate flag, CIGAR, mate CIGAR (MC) or supplementary
alignment (SA) differ.

Usage:

	bio-bam-compare [flags] refbam newbam

The genome is split into partitions of -partition-size bases, which are
compared in parallel. Within a partition, reads are matched by alignment start
and read name. The diffs are written to -output as TSV, one row per read:

	ReadId Chromosome PosStart MismatchType Diff MateChr MatePos Cigar Flags
	MapQual Paired IsFirst NegStrand Duplicate IsSupp SuppData

MismatchType is REF_ONLY, NEW_ONLY or VALUE. For VALUE rows, Diff lists the
mismatching fields as name(ref/new), separated by ';', and the other columns
describe the read in refbam.

If -halt-threshold is set, a partition stops buffering a side once it holds
that many reads. When this happens on the refbam side, the newbam side of the
partition is not read at all, and every buffered read is reported as
REF_ONLY.
*/
package main
