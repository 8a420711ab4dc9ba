package analytics

import (
	"sort"
	"strconv"
	"strings"
)

// Delta is the drained increment for one food.
type Delta struct {
	FoodID int64
	Views  int64
	Orders int64
}

type deltaSet map[int64]*Delta

func (s deltaSet) add(m Metric, foodID, n int64) {
	d, ok := s[foodID]
	if !ok {
		d = &Delta{FoodID: foodID}
		s[foodID] = d
	}
	switch m {
	case MetricView:
		d.Views += n
	case MetricOrder:
		d.Orders += n
	}
}

// sorted returns non-zero deltas ordered by food id, so concurrent
// writers to foods always lock rows in the same order.
func (s deltaSet) sorted() []Delta {
	out := make([]Delta, 0, len(s))
	for _, d := range s {
		if d.Views != 0 || d.Orders != 0 {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FoodID < out[j].FoodID })
	return out
}

func keyPattern(m Metric) string { return string(m) + ":*" }

func parseKey(m Metric, key string) (int64, bool) {
	rest, ok := strings.CutPrefix(key, string(m)+":")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
