package sector

import (
	"math"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huiputin/routemap/pkg/core"
)

func TestNewIndex_KeepsOrder(t *testing.T) {
	idx, err := NewIndex([]core.Sector{
		{ID: 2, Name: "South", XMin: 0, XMax: 10, YMin: 10.5, YMax: 20},
		{ID: 1, Name: "North", XMin: 0, XMax: 10, YMin: 0, YMax: 10},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, "South", idx.At(0).Name)
	assert.Equal(t, "North", idx.Sectors()[1].Name)
}

func TestNewIndex_InvertedBounds(t *testing.T) {
	_, err := NewIndex([]core.Sector{{ID: 1, Name: "Bad", XMin: 10, XMax: 0, YMin: 0, YMax: 10}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inverted bounds")
}

func TestNewIndex_DuplicateID(t *testing.T) {
	_, err := NewIndex([]core.Sector{
		{ID: 1, Name: "A", XMax: 1, YMax: 1},
		{ID: 1, Name: "B", XMin: 5, XMax: 6, YMax: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")
}

func TestNewIndex_NonFiniteBounds(t *testing.T) {
	tests := []core.Sector{
		{ID: 1, Name: "nan", XMin: math.NaN(), XMax: 10, YMax: 10},
		{ID: 2, Name: "inf", XMax: math.Inf(1), YMax: 10},
		{ID: 3, Name: "-inf", XMax: 10, YMin: math.Inf(-1), YMax: 10},
	}

	for _, s := range tests {
		t.Run(s.Name, func(t *testing.T) {
			_, err := NewIndex([]core.Sector{s})
			assert.Error(t, err)
		})
	}
}

func TestNewIndex_RejectsOverlap(t *testing.T) {
	tests := []struct {
		name    string
		sectors []core.Sector
	}{
		{"shared edge", []core.Sector{
			{ID: 1, Name: "North", XMax: 10, YMax: 10},
			{ID: 2, Name: "South", XMax: 10, YMin: 10, YMax: 20},
		}},
		{"shared corner", []core.Sector{
			{ID: 1, Name: "A", XMax: 10, YMax: 10},
			{ID: 2, Name: "B", XMin: 10, XMax: 20, YMin: 10, YMax: 20},
		}},
		{"nested", []core.Sector{
			{ID: 1, Name: "Outer", XMax: 100, YMax: 100},
			{ID: 2, Name: "Inner", XMin: 10, XMax: 20, YMin: 10, YMax: 20},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndex(tt.sectors)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "overlaps")
		})
	}
}

func TestMustIndex_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustIndex([]core.Sector{{ID: 1, YMin: 2, YMax: 1}})
	})
}

func TestSectors_ReturnsCopy(t *testing.T) {
	idx := MustIndex([]core.Sector{{ID: 1, Name: "North", XMax: 10, YMax: 10}})

	s := idx.Sectors()
	s[0].Name = "changed"

	assert.Equal(t, "North", idx.At(0).Name)
}

func TestLocate(t *testing.T) {
	idx := MustIndex([]core.Sector{
		{ID: 1, Name: "North", XMin: 0, XMax: 10, YMin: 0, YMax: 10},
		{ID: 2, Name: "South", XMin: 0, XMax: 10, YMin: 10.5, YMax: 20},
	})

	s, ok := idx.Locate(core.Position{X: 5, Y: 5})
	require.True(t, ok)
	assert.Equal(t, "North", s.Name)

	s, ok = idx.Locate(core.Position{X: 10, Y: 20})
	require.True(t, ok)
	assert.Equal(t, "South", s.Name)

	_, ok = idx.Locate(core.Position{X: 5, Y: 10.25})
	assert.False(t, ok)
	_, ok = idx.Locate(core.Position{X: 50, Y: 50})
	assert.False(t, ok)
}

func TestDefaults_EveryPointInExactlyOneSector(t *testing.T) {
	idx, err := NewIndex(Defaults())
	require.NoError(t, err)
	assert.Equal(t, 6, idx.Len())

	points := []core.Position{
		{X: 0, Y: 0},
		{X: 999, Y: 699},
		{X: 1000, Y: 700},
		{X: 250, Y: 100},
		{X: 500, Y: 350},
		{X: 750, Y: 349.5},
		{X: 249.9999, Y: 350},
	}
	for _, p := range points {
		hits := 0
		for n := 0; n < idx.Len(); n++ {
			if idx.Contains(n, p) {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "point %v", p)
	}
}

func TestDefaults_EdgesBelongToTheFollowingSector(t *testing.T) {
	idx := MustIndex(Defaults())

	s, ok := idx.Locate(core.Position{X: 250, Y: 100})
	require.True(t, ok)
	assert.Equal(t, "Cave", s.Name)

	s, ok = idx.Locate(core.Position{X: 500, Y: 350})
	require.True(t, ok)
	assert.Equal(t, "Competition Wall", s.Name)
}

func TestFromConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	idx, err := FromConfig()
	require.NoError(t, err)
	assert.Equal(t, len(Defaults()), idx.Len())
}

func TestFromConfig_Configured(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("sectors", []map[string]any{
		{"id": 7, "name": "North", "xMin": 0, "xMax": 10, "yMin": 0, "yMax": 9.99},
		{"id": 8, "name": "South", "xMin": 0, "xMax": 10, "yMin": 10, "yMax": 20},
	})

	idx, err := FromConfig()
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())
	assert.Equal(t, core.Sector{ID: 7, Name: "North", XMin: 0, XMax: 10, YMin: 0, YMax: 9.99}, idx.At(0))
}

func TestFromConfig_TouchingSectors(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("sectors", []map[string]any{
		{"id": 7, "name": "North", "xMin": 0, "xMax": 10, "yMin": 0, "yMax": 10},
		{"id": 8, "name": "South", "xMin": 0, "xMax": 10, "yMin": 10, "yMax": 20},
	})

	_, err := FromConfig()
	assert.Error(t, err)
}
