// Package layout packs overlapping timed events of one day column into
// side-by-side lanes.
//
// Events are grouped into clusters: maximal runs whose [StartMin, EndMin)
// intervals chain-overlap after sorting by start. Two events that never
// intersect share a cluster when an intermediate event overlaps both.
// Within a cluster every event takes the lowest lane that is free at its
// start, and all items of the cluster report the same LanesTotal so their
// widths agree. Clusters needing more than MaxLanes lanes keep lanes
// [0, MaxLanes) and fold the rest into one Overflow at the cluster start.
package layout

import (
	"cmp"
	"slices"

	"familyboard/internal/model"
)

// DefaultMaxLanes applies when Options.MaxLanes is not positive.
const DefaultMaxLanes = 3

// Span is an event clamped to a visible day window, in minutes since
// midnight. Callers guarantee EndMin > StartMin (see Clamp).
type Span struct {
	Event    model.Event `json:"event"`
	StartMin int         `json:"start_min"`
	EndMin   int         `json:"end_min"`
}

// Item is a laid-out span.
type Item struct {
	Span
	// Index is the position of the span in the input slice.
	Index      int `json:"-"`
	Lane       int `json:"lane"`
	LanesTotal int `json:"lanes_total"`
}

// Overflow summarizes the events of one cluster that did not fit.
type Overflow struct {
	StartMin int `json:"start_min"`
	// Count is the number of events hidden from Items. Several hidden
	// events can share a lane, so Count may exceed HiddenLanes.
	Count int `json:"count"`
	// HiddenLanes is the number of lanes beyond MaxLanes the cluster needed.
	HiddenLanes int `json:"hidden_lanes"`
}

// Options tunes Layout.
type Options struct {
	MaxLanes int
}

// Result is the output of Layout.
type Result struct {
	Items     []Item     `json:"items"`
	Overflows []Overflow `json:"overflows"`
}

// Layout assigns lanes to spans. It never modifies its input and is
// deterministic: ties on start are broken by earlier end, then by input
// order.
func Layout(spans []Span, opts Options) Result {
	maxLanes := opts.MaxLanes
	if maxLanes <= 0 {
		maxLanes = DefaultMaxLanes
	}

	res := Result{Items: make([]Item, 0, len(spans)), Overflows: []Overflow{}}
	for _, cl := range clusters(spans) {
		lanes, total := assignLanes(spans, cl)

		visibleTotal := min(total, maxLanes)
		hidden := 0
		for i, idx := range cl.members {
			if lanes[i] >= maxLanes {
				hidden++
				continue
			}
			res.Items = append(res.Items, Item{
				Span:       spans[idx],
				Index:      idx,
				Lane:       lanes[i],
				LanesTotal: visibleTotal,
			})
		}

		if total > maxLanes {
			res.Overflows = append(res.Overflows, Overflow{
				StartMin:    cl.startMin,
				Count:       hidden,
				HiddenLanes: total - maxLanes,
			})
		}
	}
	return res
}

type cluster struct {
	members  []int // indices into spans, in sweep order
	startMin int
	endMin   int
}

// sortedIndices orders spans by (StartMin, EndMin) keeping input order on ties.
func sortedIndices(spans []Span) []int {
	order := make([]int, len(spans))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Or(
			cmp.Compare(spans[a].StartMin, spans[b].StartMin),
			cmp.Compare(spans[a].EndMin, spans[b].EndMin),
		)
	})
	return order
}

func clusters(spans []Span) []cluster {
	var out []cluster
	var cur *cluster
	for _, idx := range sortedIndices(spans) {
		s := spans[idx]
		if cur == nil || s.StartMin >= cur.endMin {
			out = append(out, cluster{startMin: s.StartMin, endMin: s.EndMin})
			cur = &out[len(out)-1]
			cur.members = append(cur.members, idx)
			continue
		}
		cur.members = append(cur.members, idx)
		cur.endMin = max(cur.endMin, s.EndMin)
	}
	return out
}

// assignLanes runs first-fit over a cluster whose members are already in
// sweep order. It returns the lane per member and the number of lanes used,
// which equals the peak number of concurrently active events.
func assignLanes(spans []Span, cl cluster) ([]int, int) {
	type active struct {
		lane   int
		endMin int
	}

	lanes := make([]int, len(cl.members))
	var busy []bool
	var running []active

	for i, idx := range cl.members {
		s := spans[idx]

		// Half-open intervals: ending exactly at s.StartMin frees the lane.
		kept := running[:0]
		for _, a := range running {
			if a.endMin <= s.StartMin {
				busy[a.lane] = false
				continue
			}
			kept = append(kept, a)
		}
		running = kept

		lane := slices.Index(busy, false)
		if lane < 0 {
			lane = len(busy)
			busy = append(busy, false)
		}
		busy[lane] = true
		running = append(running, active{lane: lane, endMin: s.EndMin})
		lanes[i] = lane
	}
	return lanes, len(busy)
}
