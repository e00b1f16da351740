package bamcompare

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/grailbio/hts/sam"
)

// MissingValue stands for an attribute that is absent or cannot be decoded.
const MissingValue = "missing"

// TrackedAttributes lists the attribute tags compared by default: the mate
// CIGAR and the supplementary-alignment data.
var TrackedAttributes = []string{"MC", "SA"}

var consensusTag = sam.NewTag("CR")

// FieldCheck is one entry of a Comparator's table. Extract renders the field
// of a record. Two records differ on the field iff the renderings differ.
type FieldCheck struct {
	Name    string
	Extract func(r *sam.Record) string
}

// DuplicateCheck compares the duplicate flag.
var DuplicateCheck = FieldCheck{
	Name: "duplicate",
	Extract: func(r *sam.Record) string {
		return strconv.FormatBool(r.Flags&sam.Duplicate != 0)
	},
}

// CigarCheck compares the CIGAR string.
var CigarCheck = FieldCheck{
	Name: "cigar",
	Extract: func(r *sam.Record) string {
		return r.Cigar.String()
	},
}

// AttributeCheck compares the value of the given two-letter attribute. An
// absent or undecodable value is rendered as MissingValue.
func AttributeCheck(tag string) FieldCheck {
	t := sam.NewTag(tag)
	return FieldCheck{
		Name: "attrib_" + tag,
		Extract: func(r *sam.Record) string {
			return attributeValue(r, t)
		},
	}
}

func attributeValue(r *sam.Record, tag sam.Tag) string {
	aux := r.AuxFields.Get(tag)
	if aux == nil || !auxComplete(aux) {
		return MissingValue
	}
	v := aux.Value()
	if v == nil {
		return MissingValue
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// auxFixedSize maps an aux type code to the size of its value, in bytes.
var auxFixedSize = map[byte]int{
	'A': 1, 'c': 1, 'C': 1,
	's': 2, 'S': 2,
	'i': 4, 'I': 4, 'f': 4,
}

// auxComplete reports whether aux holds a whole value of its declared type.
// sam.Aux.Value panics on a truncated payload.
func auxComplete(aux sam.Aux) bool {
	if len(aux) < 3 {
		return false
	}
	typ, payload := aux[2], aux[3:]
	if n, ok := auxFixedSize[typ]; ok {
		return len(payload) >= n
	}
	switch typ {
	case 'Z', 'H':
		return true
	case 'B':
		// Element type, 4-byte little-endian count, then the elements.
		if len(payload) < 5 {
			return false
		}
		n, ok := auxFixedSize[payload[0]]
		if !ok || payload[0] == 'A' {
			return false
		}
		count := binary.LittleEndian.Uint32(payload[1:5])
		return uint64(len(payload)-5) >= uint64(count)*uint64(n)
	}
	return false
}

// Comparator compares matched reference and new records field by field.
// Thread safe.
type Comparator struct {
	checks []FieldCheck
}

// NewComparator builds the default check table for cfg, followed by extra.
// The duplicate check is left out when cfg.IgnoreDuplicateFlag is set.
func NewComparator(cfg Config, extra ...FieldCheck) *Comparator {
	var checks []FieldCheck
	if !cfg.IgnoreDuplicateFlag {
		checks = append(checks, DuplicateCheck)
	}
	checks = append(checks, CigarCheck)
	for _, tag := range TrackedAttributes {
		checks = append(checks, AttributeCheck(tag))
	}
	checks = append(checks, cfg.ExtraChecks...)
	checks = append(checks, extra...)
	return &Comparator{checks: checks}
}

// Compare runs every check on the pair and returns one "name(ref/new)" entry
// per mismatch, in table order. It returns nil if the records agree.
func (c *Comparator) Compare(refRec, newRec *sam.Record) []string {
	var diffs []string
	for _, check := range c.checks {
		refVal, newVal := check.Extract(refRec), check.Extract(newRec)
		if refVal != newVal {
			diffs = append(diffs, check.Name+"("+refVal+"/"+newVal+")")
		}
	}
	return diffs
}
