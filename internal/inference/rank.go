package inference

import (
	"container/heap"
	"math"
	"slices"
)

// Prediction is a labelled class score.
type Prediction struct {
	Index int     `json:"-"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Rank picks the count highest scores, keeps those strictly above
// threshold, and orders them by descending score. Equal scores are ordered
// by ascending class index. NaN scores rank below every number and never
// pass the threshold. The result is never nil.
func Rank(scores []float64, classes *ClassMap, count int, threshold float64) []Prediction {
	k := min(count, len(scores))
	if k <= 0 {
		return []Prediction{}
	}

	top := &indexHeap{scores: scores, idx: make([]int, 0, k)}
	for i := range scores {
		if top.Len() < k {
			heap.Push(top, i)
			continue
		}
		if outranks(scores, i, top.idx[0]) {
			top.idx[0] = i
			heap.Fix(top, 0)
		}
	}

	out := make([]Prediction, 0, k)
	for _, i := range top.idx {
		if scores[i] > threshold {
			out = append(out, Prediction{Index: i, Label: classes.Label(i), Score: scores[i]})
		}
	}

	slices.SortFunc(out, func(a, b Prediction) int {
		switch {
		case outranks(scores, a.Index, b.Index):
			return -1
		case outranks(scores, b.Index, a.Index):
			return 1
		default:
			return 0
		}
	})

	return out
}

func rankValue(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(-1)
	}
	return v
}

// outranks reports whether class i orders before class j.
func outranks(scores []float64, i, j int) bool {
	si, sj := rankValue(scores[i]), rankValue(scores[j])
	if si != sj {
		return si > sj
	}
	return i < j
}

// indexHeap keeps the weakest selected class at the root.
type indexHeap struct {
	scores []float64
	idx    []int
}

func (h *indexHeap) Len() int           { return len(h.idx) }
func (h *indexHeap) Less(a, b int) bool { return outranks(h.scores, h.idx[b], h.idx[a]) }
func (h *indexHeap) Swap(a, b int)      { h.idx[a], h.idx[b] = h.idx[b], h.idx[a] }
func (h *indexHeap) Push(x any)         { h.idx = append(h.idx, x.(int)) }

func (h *indexHeap) Pop() any {
	n := len(h.idx)
	x := h.idx[n-1]
	h.idx = h.idx[:n-1]
	return x
}
