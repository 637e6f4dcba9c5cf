package inference

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankScenarios(t *testing.T) {
	classes := NewClassMap([]string{"a", "b", "c", "d"})
	scores := []float64{0.9, 0.05, 0.8, 0.0}

	tests := []struct {
		name      string
		count     int
		threshold float64
		want      []Prediction
	}{
		{
			name:      "top two above threshold",
			count:     2,
			threshold: 0.1,
			want:      []Prediction{{Index: 0, Label: "a", Score: 0.9}, {Index: 2, Label: "c", Score: 0.8}},
		},
		{
			name:      "high threshold",
			count:     2,
			threshold: 0.85,
			want:      []Prediction{{Index: 0, Label: "a", Score: 0.9}},
		},
		{
			name:      "threshold is strict",
			count:     4,
			threshold: 0.8,
			want:      []Prediction{{Index: 0, Label: "a", Score: 0.9}},
		},
		{
			name:      "nothing clears",
			count:     3,
			threshold: 0.95,
			want:      []Prediction{},
		},
		{
			name:      "count larger than classes",
			count:     10,
			threshold: -1,
			want: []Prediction{
				{Index: 0, Label: "a", Score: 0.9},
				{Index: 2, Label: "c", Score: 0.8},
				{Index: 1, Label: "b", Score: 0.05},
				{Index: 3, Label: "d", Score: 0.0},
			},
		},
		{
			name:      "zero count",
			count:     0,
			threshold: 0,
			want:      []Prediction{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Rank(scores, classes, tt.count, tt.threshold)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankTiesPreferLowerIndex(t *testing.T) {
	classes := NewClassMap([]string{"a", "b", "c", "d"})

	got := Rank([]float64{0.5, 0.7, 0.5, 0.5}, classes, 3, 0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "a", "c"}, labels(got))
}

func TestRankNaN(t *testing.T) {
	classes := NewClassMap([]string{"a", "b", "c"})

	got := Rank([]float64{math.NaN(), 0.3, 0.2}, classes, 2, 0.1)
	assert.Equal(t, []string{"b", "c"}, labels(got))

	got = Rank([]float64{math.NaN(), math.NaN()}, classes, 2, math.Inf(-1))
	assert.Empty(t, got)
}

func TestRankUnknownClassUsesIndex(t *testing.T) {
	got := Rank([]float64{0.1, 0.9}, NewClassMap([]string{"only"}), 1, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].Label)

	got = Rank([]float64{0.9}, nil, 1, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "0", got[0].Label)
}

func TestRankMatchesFullSort(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))

	for range 500 {
		n := 1 + r.IntN(40)
		scores := make([]float64, n)
		for i := range scores {
			// coarse values force ties
			scores[i] = float64(r.IntN(10)) / 10
		}
		count := r.IntN(n + 2)
		threshold := float64(r.IntN(10)) / 10

		got := Rank(scores, nil, count, threshold)

		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			switch {
			case scores[a] > scores[b]:
				return -1
			case scores[a] < scores[b]:
				return 1
			default:
				return 0
			}
		})

		want := []int{}
		for _, i := range order[:min(count, n)] {
			if scores[i] > threshold {
				want = append(want, i)
			}
		}

		gotIdx := make([]int, len(got))
		for i, p := range got {
			gotIdx[i] = p.Index
			assert.Greater(t, p.Score, threshold)
		}
		require.Equal(t, want, gotIdx, "scores=%v count=%d threshold=%v", scores, count, threshold)
		assert.LessOrEqual(t, len(got), max(count, 0))
	}
}

func labels(ps []Prediction) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Label
	}
	return out
}

func TestParseClassMap(t *testing.T) {
	csv := `index,mid,display_name
0,/m/09x0r,"Speech"
1,/m/0ytgt,"Child speech, kid speaking"
3,/m/01j3sz,Laughter
`
	m, err := ParseClassMap(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, "Speech", m.Label(0))
	assert.Equal(t, "Child speech, kid speaking", m.Label(1))
	assert.Equal(t, "2", m.Label(2))
	assert.Equal(t, "Laughter", m.Label(3))
}

func TestParseClassMapErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"short row", "index,mid,display_name\n0,/m/x\n"},
		{"bad index", "index,mid,display_name\nzero,/m/x,Speech\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClassMap(strings.NewReader(tt.in))
			require.Error(t, err)
		})
	}
}

func TestLoadClassMapMissingFile(t *testing.T) {
	_, err := LoadClassMap(t.TempDir() + "/missing.csv")
	require.Error(t, err)
}
