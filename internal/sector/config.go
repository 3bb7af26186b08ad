package sector

import (
	"fmt"
	"math"

	"github.com/huiputin/routemap/pkg/core"
	"github.com/spf13/viper"
)

// below is the largest float64 smaller than v. A sector ending at below(v) and the
// next one starting at v cover the line without sharing a point.
func below(v float64) float64 {
	return math.Nextafter(v, math.Inf(-1))
}

// Defaults is the built-in layout of the gym map image (1000 x 700 px).
func Defaults() []core.Sector {
	return []core.Sector{
		{ID: 1, Name: "Slab", XMin: 0, XMax: below(250), YMin: 0, YMax: below(350)},
		{ID: 2, Name: "Cave", XMin: 250, XMax: below(500), YMin: 0, YMax: below(350)},
		{ID: 3, Name: "Prow", XMin: 500, XMax: below(750), YMin: 0, YMax: below(350)},
		{ID: 4, Name: "Overhang", XMin: 750, XMax: 1000, YMin: 0, YMax: below(350)},
		{ID: 5, Name: "Kids Wall", XMin: 0, XMax: below(500), YMin: 350, YMax: 700},
		{ID: 6, Name: "Competition Wall", XMin: 500, XMax: 1000, YMin: 350, YMax: 700},
	}
}

// FromConfig builds the Index from the "sectors" config key, falling back to Defaults
// when the key is not set.
func FromConfig() (*Index, error) {
	if !viper.IsSet("sectors") {
		return MustIndex(Defaults()), nil
	}

	var sectors []core.Sector
	if err := viper.UnmarshalKey("sectors", &sectors); err != nil {
		return nil, fmt.Errorf("error decoding sectors: %w", err)
	}
	if len(sectors) == 0 {
		return nil, fmt.Errorf("sectors configured but empty")
	}
	return NewIndex(sectors)
}
