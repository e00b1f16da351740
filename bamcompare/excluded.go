package bamcompare

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bio-bamcompare/interval"
)

// polyGRegions maps a reference genome version to the region of chromosome 2
// that attracts poly-G artifact reads.
var polyGRegions = map[string]Region{
	"37": {Chrom: "2", Start: 33141260, End: 33141700},
	"38": {Chrom: "chr2", Start: 32916190, End: 32916630},
}

// PolyGRegion returns the poly-G artifact region for the given reference
// genome version, "37" or "38".
func PolyGRegion(version string) (Region, error) {
	r, ok := polyGRegions[version]
	if !ok {
		return Region{}, errors.E(errors.Invalid,
			fmt.Sprintf("bamcompare.PolyGRegion: unknown reference genome version %q, want 37 or 38", version))
	}
	return r, nil
}

// LoadExcludedRegions builds the set of excluded sub-regions from a BED file
// and the poly-G region of the given genome version. Either may be empty. It
// returns nil if nothing is excluded.
func LoadExcludedRegions(bedPath, polyGVersion string) (*interval.BEDUnion, error) {
	var parts []*interval.BEDUnion
	if bedPath != "" {
		bed, err := interval.NewBEDUnionFromPath(bedPath, interval.NewBEDOpts{})
		if err != nil {
			return nil, errors.E(err, "reading excluded regions from", bedPath)
		}
		parts = append(parts, &bed)
	}
	if polyGVersion != "" {
		r, err := PolyGRegion(polyGVersion)
		if err != nil {
			return nil, err
		}
		polyG, err := interval.NewBEDUnionFromEntries([]interval.Entry{{
			ChrName: r.Chrom,
			Start0:  interval.PosType(r.start0()),
			End:     interval.PosType(r.limit0()),
		}})
		if err != nil {
			return nil, err
		}
		parts = append(parts, &polyG)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	u, err := interval.Union(parts...)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
