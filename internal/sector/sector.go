// Package sector holds the static partition of the gym map into named sectors.
package sector

import (
	"fmt"

	"github.com/huiputin/routemap/internal/geo"
	"github.com/huiputin/routemap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Index is an ordered, immutable list of sectors.
// Order is configuration order and is the order clusters and notifications use.
type Index struct {
	sectors   []core.Sector
	envelopes []geom.Envelope
}

// NewIndex validates the sectors and builds an Index.
// Bounds are inclusive, so sectors must not overlap or share an edge: a marker on a
// shared edge would be counted in both.
func NewIndex(sectors []core.Sector) (*Index, error) {
	idx := &Index{
		sectors:   make([]core.Sector, 0, len(sectors)),
		envelopes: make([]geom.Envelope, 0, len(sectors)),
	}
	seen := make(map[int]struct{}, len(sectors))
	for _, s := range sectors {
		if s.XMin > s.XMax || s.YMin > s.YMax {
			return nil, fmt.Errorf("sector %d (%s): inverted bounds", s.ID, s.Name)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("sector %d (%s): duplicate id", s.ID, s.Name)
		}
		seen[s.ID] = struct{}{}

		env, err := geo.SectorEnvelope(s)
		if err != nil {
			return nil, err
		}
		for n, other := range idx.envelopes {
			if geo.Touches(env, other) {
				o := idx.sectors[n]
				return nil, fmt.Errorf("sector %d (%s): overlaps sector %d (%s)", s.ID, s.Name, o.ID, o.Name)
			}
		}
		idx.sectors = append(idx.sectors, s)
		idx.envelopes = append(idx.envelopes, env)
	}
	return idx, nil
}

// MustIndex is NewIndex for built-in layouts; it panics on invalid input.
func MustIndex(sectors []core.Sector) *Index {
	idx, err := NewIndex(sectors)
	if err != nil {
		panic(err)
	}
	return idx
}

// Sectors returns a copy of the sectors in index order.
func (i *Index) Sectors() []core.Sector {
	out := make([]core.Sector, len(i.sectors))
	copy(out, i.sectors)
	return out
}

// Len returns the number of sectors.
func (i *Index) Len() int {
	return len(i.sectors)
}

// At returns the sector at position n in index order.
func (i *Index) At(n int) core.Sector {
	return i.sectors[n]
}

// Contains reports whether the n-th sector contains p, bounds inclusive.
func (i *Index) Contains(n int, p core.Position) bool {
	return geo.Contains(i.envelopes[n], p)
}

// Locate returns the sector containing p, if any.
func (i *Index) Locate(p core.Position) (core.Sector, bool) {
	for n := range i.sectors {
		if i.Contains(n, p) {
			return i.sectors[n], true
		}
	}
	return core.Sector{}, false
}
