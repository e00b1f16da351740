// Package bamcompare compares two coordinate-sorted alignment files, one
// genomic partition at a time, and reports reads that exist on only one side
// or whose tracked fields differ.
//
// The unit of work is a PartitionReader. It buffers the reference side's
// records for one Region, then the new side's, and finally pairs the two
// buffers by (alignment start, read name) and pushes the differences to a
// DiffSink in a deterministic order. Compare drives many PartitionReaders
// over a worker pool and writes their diffs to a TSV file.
package bamcompare
