// Package region implements the rectangular region algebra the compositor
// uses to describe damage, opacity occlusion and clip areas. A Region is a
// set of axis-aligned rectangles; exact duplicate rectangles are dropped,
// but the rectangles of a region may overlap.
package region

import "sync/atomic"

// Rect is an axis-aligned rectangle in the usual half-open convention:
// it covers X in [X, X+W) and Y in [Y, Y+H).
type Rect struct {
	X, Y int32
	W, H int32
}

func (r Rect) empty() bool { return r.W <= 0 || r.H <= 0 }

func (r Rect) x2() int32 { return r.X + r.W }
func (r Rect) y2() int32 { return r.Y + r.H }

func (r Rect) translate(dx, dy int32) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

func intersectRect(a, b Rect) (Rect, bool) {
	x1 := max32(a.X, b.X)
	y1 := max32(a.Y, b.Y)
	x2 := min32(a.x2(), b.x2())
	y2 := min32(a.y2(), b.y2())
	if x2 <= x1 || y2 <= y1 {
		return Rect{}, false
	}
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, true
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}

// Region is an immutable set of rectangles, shared across windows via a
// reference count. The zero value is the empty region and is safe to use
// directly; Empty, FromRect and FromRects create ref-counted regions for
// sharing.
type Region struct {
	rects []Rect
	refs  int32
}

// Empty returns a fresh empty region with a ref count of 1.
func Empty() *Region {
	return &Region{refs: 1}
}

// FromRect returns a region containing exactly one rectangle. Zero-size
// rectangles normalize to the empty region.
func FromRect(r Rect) *Region {
	if r.empty() {
		return Empty()
	}
	return &Region{rects: []Rect{r}, refs: 1}
}

// FromRects builds a region out of an arbitrary rectangle slice, dropping
// empty rectangles and exact duplicates; overlapping rectangles are kept.
func FromRects(rs []Rect) *Region {
	reg := Empty()
	for _, r := range rs {
		reg = reg.Union(FromRect(r))
	}
	return reg
}

// IsEmpty reports whether the region covers no pixels. A nil receiver is
// treated as empty, which lets callers pass an absent reg_ignore around
// without a nil check at every call site.
func (r *Region) IsEmpty() bool {
	return r == nil || len(r.rects) == 0
}

// Rects returns the region's rectangles. The returned slice must not be
// mutated; it may be shared with the Region's internal storage.
func (r *Region) Rects() []Rect {
	if r == nil {
		return nil
	}
	return r.rects
}

// Ref increments the reference count and returns the same region, so call
// sites can write `w.regIgnore = shared.Ref()`.
func (r *Region) Ref() *Region {
	if r == nil {
		return nil
	}
	atomic.AddInt32(&r.refs, 1)
	return r
}

// Unref decrements the reference count. Once it reaches zero the region's
// backing storage is dropped; Unref on an already-freed or nil region is a
// no-op.
func (r *Region) Unref() {
	if r == nil || r.refs == 0 {
		return
	}
	if atomic.AddInt32(&r.refs, -1) == 0 {
		r.rects = nil
	}
}

// Union returns the pixel-set union of r and o. Either operand may be nil
// or empty.
func (r *Region) Union(o *Region) *Region {
	out := append(append([]Rect{}, r.Rects()...), o.Rects()...)
	return &Region{rects: coalesce(out), refs: 1}
}

// Intersect returns the pixel-set intersection of r and o.
func (r *Region) Intersect(o *Region) *Region {
	if r.IsEmpty() || o.IsEmpty() {
		return Empty()
	}
	var out []Rect
	for _, a := range r.Rects() {
		for _, b := range o.Rects() {
			if ir, ok := intersectRect(a, b); ok {
				out = append(out, ir)
			}
		}
	}
	return &Region{rects: coalesce(out), refs: 1}
}

// Subtract returns the pixels in r that are not in o.
func (r *Region) Subtract(o *Region) *Region {
	if r.IsEmpty() {
		return Empty()
	}
	if o.IsEmpty() {
		return FromRects(append([]Rect{}, r.Rects()...))
	}
	result := append([]Rect{}, r.Rects()...)
	for _, b := range o.Rects() {
		result = subtractOne(result, b)
	}
	return &Region{rects: coalesce(result), refs: 1}
}

// Translate returns the region shifted by (dx, dy), used to move a
// window-local bounding shape into root coordinates.
func (r *Region) Translate(dx, dy int32) *Region {
	if r.IsEmpty() {
		return Empty()
	}
	out := make([]Rect, len(r.rects))
	for i, rect := range r.rects {
		out[i] = rect.translate(dx, dy)
	}
	return &Region{rects: out, refs: 1}
}

// subtractOne removes rectangle b from every rectangle in rs, splitting as
// needed, and returns the resulting rectangle list.
func subtractOne(rs []Rect, b Rect) []Rect {
	var out []Rect
	for _, a := range rs {
		out = append(out, splitDifference(a, b)...)
	}
	return out
}

// splitDifference returns the pieces of a that remain after removing b,
// as up to four non-overlapping rectangles (top/bottom/left/right bands).
func splitDifference(a, b Rect) []Rect {
	ir, ok := intersectRect(a, b)
	if !ok {
		return []Rect{a}
	}
	var out []Rect
	if ir.Y > a.Y {
		out = append(out, Rect{X: a.X, Y: a.Y, W: a.W, H: ir.Y - a.Y})
	}
	if ir.y2() < a.y2() {
		out = append(out, Rect{X: a.X, Y: ir.y2(), W: a.W, H: a.y2() - ir.y2()})
	}
	midY, midH := ir.Y, ir.H
	if ir.X > a.X {
		out = append(out, Rect{X: a.X, Y: midY, W: ir.X - a.X, H: midH})
	}
	if ir.x2() < a.x2() {
		out = append(out, Rect{X: ir.x2(), Y: midY, W: a.x2() - ir.x2(), H: midH})
	}
	return out
}

// coalesce drops empty and fully-duplicate rectangles. It intentionally
// does not attempt a full band-merge normalization: callers only rely on
// the pixel set, not on a canonical rectangle count.
func coalesce(rs []Rect) []Rect {
	var out []Rect
	for _, r := range rs {
		if r.empty() {
			continue
		}
		dup := false
		for _, o := range out {
			if o == r {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}
