package bamprovider

import (
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// errorIterator yields nothing. A nil err makes it an empty iterator.
type errorIterator struct {
	err error
}

func (i *errorIterator) Scan() bool { return false }

func (i *errorIterator) Record() *sam.Record {
	vlog.Fatal("bamprovider: Record called on an iterator with no records")
	return nil
}

func (i *errorIterator) Err() error   { return i.err }
func (i *errorIterator) Close() error { return i.err }

// NewErrorIterator returns an Iterator that yields no records and reports err
// from Err and Close.
func NewErrorIterator(err error) Iterator {
	return &errorIterator{err: err}
}
