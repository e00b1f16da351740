package bamcompare

import (
	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// recordKey identifies a read within one input: its 0-based alignment start
// and its name.
type recordKey struct {
	pos  int
	name string
}

func keyOf(r *sam.Record) recordKey {
	return recordKey{pos: r.Pos, name: r.Name}
}

func (k recordKey) compare(k2 recordKey) int {
	if k.pos != k2.pos {
		return k.pos - k2.pos
	}
	switch {
	case k.name < k2.name:
		return -1
	case k.name > k2.name:
		return 1
	}
	return 0
}

type bufferEntry struct {
	key recordKey
	rec *sam.Record
}

// Compare compares two bufferEntry objects for use in llrb.
func (e *bufferEntry) Compare(c llrb.Comparable) int {
	return e.key.compare(c.(*bufferEntry).key)
}

// recordBuffer holds the records of one input, ordered by recordKey. Keys are
// unique. Thread compatible.
type recordBuffer struct {
	tree llrb.Tree
}

// insert adds r. It panics if a record with the same key is already present.
func (b *recordBuffer) insert(r *sam.Record) {
	e := &bufferEntry{key: keyOf(r), rec: r}
	if b.tree.Get(e) != nil {
		log.Panicf("bamcompare: duplicate record %s at position %d", r.Name, r.Pos+1)
	}
	b.tree.Insert(e)
}

func (b *recordBuffer) len() int { return b.tree.Len() }

// entries returns the buffered records in key order.
func (b *recordBuffer) entries() []*bufferEntry {
	entries := make([]*bufferEntry, 0, b.tree.Len())
	b.tree.Do(func(c llrb.Comparable) bool {
		entries = append(entries, c.(*bufferEntry))
		return false
	})
	return entries
}
