// Package cluster derives per-sector summaries from the current marker set.
package cluster

import (
	"github.com/huiputin/routemap/internal/sector"
	"github.com/huiputin/routemap/pkg/core"
)

// Aggregate returns one cluster per sector, in index order.
// Only visible markers count; bounds are inclusive; the center is the sector midpoint,
// never the mean of the member markers. Sectors without markers are still returned.
func Aggregate(markers []core.Marker, idx *sector.Index) []core.Cluster {
	clusters := make([]core.Cluster, 0, idx.Len())
	for n := 0; n < idx.Len(); n++ {
		s := idx.At(n)
		members := make([]core.Marker, 0)
		for _, m := range markers {
			if !m.Visible {
				continue
			}
			if idx.Contains(n, m.Position()) {
				members = append(members, m)
			}
		}
		clusters = append(clusters, core.Cluster{
			SectorID: s.ID,
			Name:     s.Name,
			Center:   s.Center(),
			Count:    len(members),
			Visible:  len(members) > 0,
			Markers:  members,
		})
	}
	return clusters
}

// Total returns the number of markers across all clusters.
func Total(clusters []core.Cluster) int {
	total := 0
	for _, c := range clusters {
		total += c.Count
	}
	return total
}
