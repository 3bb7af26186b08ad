// pkg/core/marker.go
package core

// Marker is a point on the map representing one climbing route.
// Only Visible ever changes after creation (soft delete).
type Marker struct {
	ID      string  `json:"id"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	RouteID string  `json:"routeId"`
	Visible bool    `json:"visible"`
}

// Position returns the marker location.
func (m Marker) Position() Position {
	return Position{X: m.X, Y: m.Y}
}

// Sector is a fixed rectangular region of the map. Bounds are inclusive.
type Sector struct {
	ID   int     `json:"id" mapstructure:"id"`
	Name string  `json:"name" mapstructure:"name"`
	XMin float64 `json:"xMin" mapstructure:"xMin"`
	XMax float64 `json:"xMax" mapstructure:"xMax"`
	YMin float64 `json:"yMin" mapstructure:"yMin"`
	YMax float64 `json:"yMax" mapstructure:"yMax"`
}

// Center returns the geometric midpoint of the sector.
func (s Sector) Center() Position {
	return Position{
		X: (s.XMin + s.XMax) / 2,
		Y: (s.YMin + s.YMax) / 2,
	}
}

// Cluster summarises the visible markers of one sector.
// Count == len(Markers) and Visible == (Count > 0) always hold.
type Cluster struct {
	SectorID int      `json:"id"`
	Name     string   `json:"name"`
	Center   Position `json:"center"`
	Count    int      `json:"count"`
	Visible  bool     `json:"visible"`
	Markers  []Marker `json:"markers"`
}
