package interval

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		// These simple loops beat the standard library string-split functions
		// when only the first few columns are needed.
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// PosType is BEDUnion's coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// searchPosType returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).  It's exactly the same
// as sort.SearchInts(), except for PosType.
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// BEDUnion is implemented as a collection of length-2N sequences, where N is
// the number of intervals, the (0-based) start position of the interval #k
// (numbering from zero) is in element [2k] and the end position is in element
// [2k+1], and the intervals are stored in increasing order.  A position p is
// inside the union iff searchPosType(a, p+1) is odd.
//
// A BEDUnion is immutable once built, so one instance may be queried from
// many goroutines.  A nil *BEDUnion behaves as the empty set.
type BEDUnion struct {
	// nameMap is a chromosome-keyed map with disjoint-interval-set values.
	nameMap map[string]([]PosType)
}

func (u *BEDUnion) intervals(chrName string) []PosType {
	if u == nil {
		return nil
	}
	return u.nameMap[chrName]
}

// Empty returns true if the union contains no bases.
func (u *BEDUnion) Empty() bool {
	if u == nil {
		return true
	}
	for _, a := range u.nameMap {
		if len(a) > 0 {
			return false
		}
	}
	return true
}

// ContainsByName checks whether the (0-based) interval [pos, pos+1) is
// contained within the BEDUnion, where chromosome is specified by name.
func (u *BEDUnion) ContainsByName(chrName string, pos PosType) bool {
	return searchPosType(u.intervals(chrName), pos+1)&1 == 1
}

// IntersectsByName checks whether the (0-based) interval [start, limit)
// shares at least one base with the BEDUnion.  It panics if limit <= start.
func (u *BEDUnion) IntersectsByName(chrName string, start, limit PosType) bool {
	if limit <= start {
		panic(fmt.Sprintf("interval.IntersectsByName: empty interval [%d, %d)", start, limit))
	}
	a := u.intervals(chrName)
	idx := searchPosType(a, start+1)
	if idx&1 == 1 {
		return true
	}
	return idx != len(a) && a[idx] < limit
}

// CoversByName checks whether every base of the (0-based) interval [start,
// limit) is inside the BEDUnion.  It panics if limit <= start.
func (u *BEDUnion) CoversByName(chrName string, start, limit PosType) bool {
	if limit <= start {
		panic(fmt.Sprintf("interval.CoversByName: empty interval [%d, %d)", start, limit))
	}
	a := u.intervals(chrName)
	idx := searchPosType(a, start+1)
	return idx&1 == 1 && a[idx] >= limit
}

// Entries returns the intervals of the union, sorted by chromosome name and
// then position.
func (u *BEDUnion) Entries() []Entry {
	if u == nil {
		return nil
	}
	names := make([]string, 0, len(u.nameMap))
	for name := range u.nameMap {
		names = append(names, name)
	}
	sort.Strings(names)
	var entries []Entry
	for _, name := range names {
		a := u.nameMap[name]
		for i := 0; i+1 < len(a); i += 2 {
			entries = append(entries, Entry{ChrName: name, Start0: a[i], End: a[i+1]})
		}
	}
	return entries
}

// Union returns the union of the given interval sets.  Nil arguments are
// ignored.
func Union(us ...*BEDUnion) (BEDUnion, error) {
	var entries []Entry
	for _, u := range us {
		entries = append(entries, u.Entries()...)
	}
	return NewBEDUnionFromEntries(entries)
}

func scanBEDEntries(scanner *bufio.Scanner, opts NewBEDOpts) ([]Entry, error) {
	var startSubtract int
	if opts.OneBasedInput {
		startSubtract++
	}
	var tokens [3][]byte
	var entries []Entry
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		if bytes.HasPrefix(curLine, []byte("#")) ||
			bytes.HasPrefix(curLine, []byte("track")) ||
			bytes.HasPrefix(curLine, []byte("browser")) {
			continue
		}
		nToken := getTokens(tokens[:], curLine)
		if nToken != 3 {
			if nToken == 0 {
				continue
			}
			return nil, fmt.Errorf("interval.scanBEDEntries: line %d has fewer tokens than expected", lineIdx)
		}
		parsedStart, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, err
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			return nil, fmt.Errorf("interval.scanBEDEntries: negative start coordinate %s on line %d", tokens[1], lineIdx)
		}
		parsedEnd, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return nil, err
		}
		if (parsedEnd < parsedStart) || (parsedEnd >= posTypeMax) {
			return nil, fmt.Errorf("interval.scanBEDEntries: invalid coordinate pair on line %d", lineIdx)
		}
		// The chromosome name must be copied, since tokens[0] refers to bytes
		// that the scanner will overwrite.
		entries = append(entries, Entry{
			ChrName: string(tokens[0]),
			Start0:  PosType(parsedStart),
			End:     PosType(parsedEnd),
		})
	}
	return entries, scanner.Err()
}

// NewBEDUnion loads just the intervals from an interval-BED, merging
// touching/overlapping intervals and eliminating empty ones in the process.
// The input need not be sorted.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (BEDUnion, error) {
	entries, err := scanBEDEntries(bufio.NewScanner(reader), opts)
	if err != nil {
		return BEDUnion{}, err
	}
	bedUnion, err := NewBEDUnionFromEntries(entries)
	if err == nil {
		log.Printf("BED loaded, %d interval(s), %d base(s) covered", len(entries), bedUnion.TotalBases())
	}
	return bedUnion, err
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Gzipped input is detected by the path suffix.
func NewBEDUnionFromPath(path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	return NewBEDUnion(reader, opts)
}

// TotalBases returns the number of bases covered by the union.
func (u *BEDUnion) TotalBases() int64 {
	var n int64
	for _, e := range u.Entries() {
		n += int64(e.End - e.Start0)
	}
	return n
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, posTypeMax - 1] is returned if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.Start0 = 0
		result.End = posTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.ChrName = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	// end0 == posTypeMax is prohibited so that the interval-array is guaranteed
	// to contain no repeats.
	if end0 < start1 || end0 >= posTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}

// NewBEDUnionFromEntries initializes a BEDUnion from a []Entry, in any order.
// The argument is not modified.
func NewBEDUnionFromEntries(entries []Entry) (BEDUnion, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ChrName != sorted[j].ChrName {
			return sorted[i].ChrName < sorted[j].ChrName
		}
		return sorted[i].Start0 < sorted[j].Start0
	})

	bedUnion := BEDUnion{nameMap: make(map[string]([]PosType))}
	prevChr := ""
	var prevStart, prevEnd PosType = -1, -1
	var chrIntervals []PosType
	flush := func() {
		if prevEnd != -1 {
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
		}
		if prevChr != "" {
			bedUnion.nameMap[prevChr] = chrIntervals
		}
	}
	for _, entry := range sorted {
		if entry.Start0 < 0 {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnionFromEntries: negative start coordinate in %s", entry.ChrName)
		}
		if (entry.End < entry.Start0) || (entry.End >= posTypeMax) {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnionFromEntries: invalid coordinate pair [%d, %d)", entry.Start0, entry.End)
		}
		if entry.ChrName != prevChr {
			flush()
			prevChr = entry.ChrName
			chrIntervals = []PosType{}
			prevStart, prevEnd = -1, -1
		}
		if entry.End == entry.Start0 {
			continue
		}
		if prevEnd == -1 {
			prevStart, prevEnd = entry.Start0, entry.End
			continue
		}
		if entry.Start0 > prevEnd {
			// New interval doesn't touch the previous one, so the previous one is
			// final.
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
			prevStart, prevEnd = entry.Start0, entry.End
		} else if entry.End > prevEnd {
			prevEnd = entry.End
		}
	}
	flush()
	return bedUnion, nil
}
