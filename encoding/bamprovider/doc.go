// Package bamprovider provides utilities for scanning a coordinate-sorted BAM
// file, one genomic shard at a time.
//
// The Provider is an interface for reading a BAM file in parallel. Each
// iterator created by a Provider reads one shard, so multiple goroutines can
// scan disjoint shards of the same file.
package bamprovider
