package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateGrade(t *testing.T) {
	tests := []struct {
		name  string
		sends []SentRecord
		want  string
	}{
		{name: "no sends", sends: nil, want: ""},
		{name: "single", sends: []SentRecord{{Grade: "6B"}}, want: "6B"},
		{
			name:  "mean rank",
			sends: []SentRecord{{Grade: "6A"}, {Grade: "6B"}},
			want:  "6A+",
		},
		{
			name:  "rounds half up",
			sends: []SentRecord{{Grade: "6A"}, {Grade: "6A+"}},
			want:  "6A+",
		},
		{
			name:  "case insensitive",
			sends: []SentRecord{{Grade: "7a"}, {Grade: " 7A "}},
			want:  "7A",
		},
		{
			name:  "unknown grades ignored when some are known",
			sends: []SentRecord{{Grade: "yellow"}, {Grade: "5+"}},
			want:  "5+",
		},
		{
			name:  "mode when nothing is on the scale",
			sends: []SentRecord{{Grade: "red"}, {Grade: "blue"}, {Grade: "blue"}},
			want:  "blue",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateGrade(tt.sends))
		})
	}
}

func TestGradeRank(t *testing.T) {
	r, ok := GradeRank("3")
	assert.True(t, ok)
	assert.Equal(t, 0, r)

	r, ok = GradeRank("8c+")
	assert.True(t, ok)
	assert.Equal(t, len(FontScale)-1, r)

	_, ok = GradeRank("V5")
	assert.False(t, ok)
}
