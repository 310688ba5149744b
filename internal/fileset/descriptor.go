// Package fileset implements the time-bucket data model, overlap algebra,
// prune algorithms, and manifest I/O at the heart of the fileset-sync
// agent. See SPEC_FULL.md §3-4 for the algorithms this package implements.
package fileset

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Granularity is one of the eight time-bucket widths a fileset publishes
// at. Order matters: it is the coarsest-to-finest enumeration order used
// throughout the overlap algebra and the total order on descriptors.
type Granularity string

const (
	Year      Granularity = "Y"
	Quarter   Granularity = "Q"
	Month     Granularity = "M"
	Week      Granularity = "W"
	Day       Granularity = "D"
	Hour      Granularity = "H"
	TenMinute Granularity = "X"
	Minute    Granularity = "m"
)

// granularityRank fixes the coarsest-first total order. A lower rank is
// coarser.
var granularityRank = map[Granularity]int{
	Year:      0,
	Quarter:   1,
	Month:     2,
	Week:      3,
	Day:       4,
	Hour:      5,
	TenMinute: 6,
	Minute:    7,
}

func (g Granularity) valid() bool {
	_, ok := granularityRank[g]
	return ok
}

func (g Granularity) rank() int {
	return granularityRank[g]
}

// Descriptor is an immutable record describing one fileset member, parsed
// from its basename per the grammar:
//
//	{prefix}.{timestamp}.{granularity}.{extension}
//
// where timestamp length selects its format (YYYY, YYYYMM, YYYYMMDD, or
// YYYYMMDD.HHMM).
type Descriptor struct {
	Name        string
	Prefix      string
	Timestamp   time.Time
	Granularity Granularity
	Extension   string
	Directory   string // optional, set when the descriptor came from a local scan
	SourceURI   string // optional, set when the descriptor came from a remote manifest
}

// timeLayouts maps the length of the timestamp substring to its Go
// reference-time layout; the length of the string uniquely selects the
// format, per the filename grammar.
var timeLayouts = map[int]string{
	4:  "2006",
	6:  "200601",
	8:  "20060102",
	13: "20060102.1504",
}

// ParseName parses a bare basename into a Descriptor. Malformed names
// return an error; callers (the local directory scanner, the remote
// manifest parser) must skip these, never treat them as fatal.
func ParseName(name string) (Descriptor, error) {
	parts := strings.Split(name, ".")
	if len(parts) < 4 {
		return Descriptor{}, fmt.Errorf("fileset: %q has too few components to be a valid name", name)
	}

	extension := parts[len(parts)-1]
	granLetter := Granularity(parts[len(parts)-2])
	if !granLetter.valid() {
		return Descriptor{}, fmt.Errorf("fileset: %q has unknown granularity letter %q", name, granLetter)
	}

	prefix := parts[0]
	tsParts := parts[1 : len(parts)-2]
	tsString := strings.Join(tsParts, ".")

	layout, ok := timeLayouts[len(tsString)]
	if !ok {
		return Descriptor{}, fmt.Errorf("fileset: %q has a timestamp of unrecognized length %d", name, len(tsString))
	}

	ts, err := time.Parse(layout, tsString)
	if err != nil {
		return Descriptor{}, fmt.Errorf("fileset: %q has an unparseable timestamp: %w", name, err)
	}

	return Descriptor{
		Name:        name,
		Prefix:      prefix,
		Timestamp:   ts.UTC(),
		Granularity: granLetter,
		Extension:   extension,
	}, nil
}

// Key identifies a descriptor for equality and hashing purposes: by
// (granularity, timestamp, name).
type Key struct {
	Granularity Granularity
	Timestamp   time.Time
	Name        string
}

func (d Descriptor) Key() Key {
	return Key{Granularity: d.Granularity, Timestamp: d.Timestamp, Name: d.Name}
}

// Less implements the total order from SPEC_FULL.md §3: by granularity
// rank (coarsest first), then timestamp ascending, then name
// lexicographically.
func Less(a, b Descriptor) bool {
	if ra, rb := a.Granularity.rank(), b.Granularity.rank(); ra != rb {
		return ra < rb
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Name < b.Name
}

// Sorted returns descriptors from the set s in the total order.
func Sorted(s Set) []Descriptor {
	out := make([]Descriptor, 0, len(s))
	for _, d := range s {
		out = append(out, d)
	}
	sortDescriptors(out)
	return out
}

func sortDescriptors(ds []Descriptor) {
	sort.Slice(ds, func(i, j int) bool { return Less(ds[i], ds[j]) })
}
