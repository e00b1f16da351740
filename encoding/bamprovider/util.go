package bamprovider

import (
	"fmt"

	"github.com/grailbio/base/errors"
	gbam "github.com/grailbio/bio-bamcompare/encoding/bam"
	"github.com/grailbio/hts/sam"
)

// RefByName returns the reference of h named refName, or nil.
func RefByName(h *sam.Header, refName string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == refName {
			return ref
		}
	}
	return nil
}

// NewRefIterator returns an iterator over the records of refName whose
// 0-based start lies in [start, limit). The limit is clipped to the reference
// length, and an empty range yields no records. If the header has no such
// reference, the iterator fails with an errors.NotExist error.
func NewRefIterator(p Provider, refName string, start, limit int) Iterator {
	h, err := p.GetHeader()
	if err != nil {
		return NewErrorIterator(err)
	}
	ref := RefByName(h, refName)
	if ref == nil {
		return NewErrorIterator(errors.E(errors.NotExist,
			fmt.Sprintf("bamprovider: reference '%s' not found", refName)))
	}
	if start < 0 {
		start = 0
	}
	if limit > ref.Len() {
		limit = ref.Len()
	}
	if start >= limit {
		return NewErrorIterator(nil)
	}
	return p.NewIterator(gbam.Shard{StartRef: ref, EndRef: ref, Start: start, End: limit})
}
