// Package damage implements the per-buffer-age damage ring described in
// spec section 3 ("Damage ring") and section 4.4.
package damage

import "github.com/vellumwm/vellum/internal/region"

// Ring is an array of regions of length maxBufferAge (backend-reported,
// always >= 1). Index current rotates on every Rotate call (i.e. every
// present). Adding damage unions into the region at current; reading back
// with buffer age k unions the regions at current through current-k+1.
type Ring struct {
	slots   []*region.Region
	current int
}

// NewRing allocates a ring sized to maxBufferAge. Per spec section 4.7,
// this is (re)allocated whenever the backend's max buffer age changes,
// e.g. across a redirect start/stop cycle.
func NewRing(maxBufferAge int) *Ring {
	if maxBufferAge < 1 {
		maxBufferAge = 1
	}
	slots := make([]*region.Region, maxBufferAge)
	for i := range slots {
		slots[i] = region.Empty()
	}
	return &Ring{slots: slots}
}

// Add unions r into the region at the current slot.
func (rg *Ring) Add(r *region.Region) {
	if r.IsEmpty() {
		return
	}
	rg.slots[rg.current] = rg.slots[rg.current].Union(r)
}

// Rotate advances current to the next slot and clears it, to be called
// exactly once per present.
func (rg *Ring) Rotate() {
	rg.current = (rg.current + 1) % len(rg.slots)
	rg.slots[rg.current] = region.Empty()
}

// ReadBack returns the union of the regions touched by the last age
// presents (age in [1, len(slots)]), i.e. the region that must be
// repainted to bring a buffer of that age up to date. age <= 0 is treated
// as "unknown age" and returns nil to signal "repaint everything."
func (rg *Ring) ReadBack(age int) *region.Region {
	if age <= 0 {
		return nil
	}
	if age > len(rg.slots) {
		age = len(rg.slots)
	}
	out := region.Empty()
	idx := rg.current
	for i := 0; i < age; i++ {
		out = out.Union(rg.slots[idx])
		idx--
		if idx < 0 {
			idx = len(rg.slots) - 1
		}
	}
	return out
}

// Len reports the ring's slot count (== the backend's max buffer age at
// allocation time).
func (rg *Ring) Len() int { return len(rg.slots) }
