// pkg/core/grade.go
package core

import (
	"math"
	"strings"
)

// FontScale is the Fontainebleau boulder scale in ascending difficulty.
var FontScale = []string{
	"3", "4", "4+", "5", "5+",
	"6A", "6A+", "6B", "6B+", "6C", "6C+",
	"7A", "7A+", "7B", "7B+", "7C", "7C+",
	"8A", "8A+", "8B", "8B+", "8C", "8C+",
}

var fontRank = func() map[string]int {
	m := make(map[string]int, len(FontScale))
	for i, g := range FontScale {
		m[g] = i
	}
	return m
}()

// GradeRank returns the position of grade on FontScale, case-insensitive.
func GradeRank(grade string) (int, bool) {
	r, ok := fontRank[strings.ToUpper(strings.TrimSpace(grade))]
	return r, ok
}

// AggregateGrade derives the community grade from the sent records.
// Known grades are averaged by rank and rounded; when no vote is on the scale the most
// frequent vote wins, the first to reach that count on ties. No sends yields "".
func AggregateGrade(sends []SentRecord) string {
	if len(sends) == 0 {
		return ""
	}

	sum, n := 0, 0
	for _, s := range sends {
		if r, ok := GradeRank(s.Grade); ok {
			sum += r
			n++
		}
	}
	if n > 0 {
		return FontScale[int(math.Round(float64(sum)/float64(n)))]
	}

	counts := make(map[string]int)
	best, bestCount := "", 0
	for _, s := range sends {
		g := strings.TrimSpace(s.Grade)
		counts[g]++
		if counts[g] > bestCount {
			best, bestCount = g, counts[g]
		}
	}
	return best
}
