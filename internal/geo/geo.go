package geo

import (
	"fmt"

	"github.com/huiputin/routemap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// MAP COORDINATES
// Marker positions are pixels on the gym map image. There is no CRS: X grows to the
// right and Y grows downwards, exactly as the map component reports touches.

// XY converts a core.Position into a geom.XY.
func XY(p core.Position) geom.XY {
	return geom.XY{X: p.X, Y: p.Y}
}

// SectorEnvelope returns the bounding envelope of a sector. Bounds that are NaN or
// infinite are rejected.
func SectorEnvelope(s core.Sector) (geom.Envelope, error) {
	env, err := geom.NewEnvelope([]geom.XY{
		{X: s.XMin, Y: s.YMin},
		{X: s.XMax, Y: s.YMax},
	})
	if err != nil {
		return geom.Envelope{}, fmt.Errorf("sector %d (%s): %w", s.ID, s.Name, err)
	}
	return env, nil
}

// Contains reports whether p lies inside env. Points on the boundary are inside.
func Contains(env geom.Envelope, p core.Position) bool {
	return env.Contains(XY(p))
}

// Touches reports whether two envelopes share at least one point, edges included.
func Touches(a, b geom.Envelope) bool {
	return a.Intersects(b)
}
