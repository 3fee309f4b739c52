// Package sponsored splices sponsored product ads into organic result lists.
package sponsored

import (
	"github.com/ManuelReschke/PixelMart/internal/pkg/catalog"
)

// Result is one entry of a result list. Entries with IsSponsored set must be
// rendered with a disclosure label.
type Result struct {
	ProductID   uint                 `json:"product_id"`
	Position    int                  `json:"position"`
	IsSponsored bool                 `json:"is_sponsored"`
	AdID        uint                 `json:"ad_id,omitempty"`
	Meta        *catalog.ProductMeta `json:"meta,omitempty"`
}

// Candidate is a ranked sponsored ad ready for insertion.
type Candidate struct {
	AdID      uint
	ProductID uint
}

// Layout controls where sponsored entries go.
type Layout struct {
	// Fixed are strictly increasing 1-indexed positions.
	Fixed []int
	// Interval repeats slots after the last fixed one. 0 disables repetition.
	Interval int
	// DedupeRadius is how many organic neighbours of a slot are checked for
	// the same product. 0 disables the check.
	DedupeRadius int
}

// DefaultLayout is 1st, 3rd, 6th and then every 10th position.
func DefaultLayout() Layout {
	return Layout{Fixed: []int{1, 3, 6}, Interval: 10, DedupeRadius: 5}
}

// slots yields sponsored positions in increasing order.
type slots struct {
	layout Layout
	i      int
	last   int
}

func (s *slots) next() int {
	if s.i < len(s.layout.Fixed) {
		s.last = s.layout.Fixed[s.i]
		s.i++
		return s.last
	}
	if s.layout.Interval <= 0 || len(s.layout.Fixed) == 0 {
		return -1
	}
	s.last += s.layout.Interval
	return s.last
}

// Positions returns the first n sponsored positions of layout.
func Positions(n int, layout Layout) []int {
	out := make([]int, 0, n)
	s := &slots{layout: layout}
	for len(out) < n {
		p := s.next()
		if p < 0 {
			break
		}
		out = append(out, p)
	}
	return out
}

// Splice returns a new list with candidates inserted at the layout's slots,
// in candidate order. Organic entries are never dropped, so the result is at
// least as long as organic. A slot whose remaining candidates all duplicate
// a nearby organic product stays organic. Insertion stops when candidates
// run out or the next slot lies beyond the end of the list.
func Splice(organic []Result, candidates []Candidate, layout Layout) []Result {
	out := make([]Result, 0, len(organic)+len(candidates))
	pending := make([]Candidate, len(candidates))
	copy(pending, candidates)
	inserted := map[uint]bool{}

	s := &slots{layout: layout}
	slot := s.next()
	oi := 0
	for {
		pos := len(out) + 1
		if len(pending) > 0 && slot == pos {
			if j := pick(pending, organic, oi, layout.DedupeRadius, inserted); j >= 0 {
				c := pending[j]
				pending = append(pending[:j], pending[j+1:]...)
				inserted[c.ProductID] = true
				out = append(out, Result{ProductID: c.ProductID, Position: pos, IsSponsored: true, AdID: c.AdID})
				slot = s.next()
				continue
			}
			slot = s.next()
		}
		if oi >= len(organic) {
			break
		}
		r := organic[oi]
		r.Position = pos
		r.IsSponsored = false
		r.AdID = 0
		out = append(out, r)
		oi++
	}
	return out
}

// pick returns the index of the first pending candidate whose product is
// neither sponsored already nor among the organic entries within radius of
// the organic index oi.
func pick(pending []Candidate, organic []Result, oi, radius int, inserted map[uint]bool) int {
	for j, c := range pending {
		if inserted[c.ProductID] {
			continue
		}
		if radius > 0 && nearby(organic, oi, radius, c.ProductID) {
			continue
		}
		return j
	}
	return -1
}

func nearby(organic []Result, oi, radius int, productID uint) bool {
	lo, hi := oi-radius, oi+radius
	if lo < 0 {
		lo = 0
	}
	if hi > len(organic)-1 {
		hi = len(organic) - 1
	}
	for i := lo; i <= hi; i++ {
		if organic[i].ProductID == productID {
			return true
		}
	}
	return false
}
