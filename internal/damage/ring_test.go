package damage

import (
	"testing"

	"github.com/vellumwm/vellum/internal/region"
)

// TestBufferAgeAwareDamage follows scenario S4: max_buffer_age = 3, three
// frames each add a damage rectangle, then a frame with buffer age 3 must
// see the union of all three, and after that paint the oldest slot clears.
func TestBufferAgeAwareDamage(t *testing.T) {
	r := NewRing(3)

	r1 := region.FromRect(region.Rect{X: 0, Y: 0, W: 10, H: 10})
	r2 := region.FromRect(region.Rect{X: 20, Y: 20, W: 10, H: 10})
	r3 := region.FromRect(region.Rect{X: 40, Y: 40, W: 10, H: 10})

	r.Add(r1)
	r.Rotate()
	r.Add(r2)
	r.Rotate()
	r.Add(r3)

	got := r.ReadBack(3)
	if len(got.Rects()) != 3 {
		t.Fatalf("expected union of 3 rects, got %d: %+v", len(got.Rects()), got.Rects())
	}

	r.Rotate() // simulate the present that consumed this frame's paint
	// This Rotate moves the current slot onto r1's and clears it, so a
	// readback of age 2 covers only the new damage below and r3.
	r.Add(region.FromRect(region.Rect{X: 60, Y: 60, W: 5, H: 5}))
	got2 := r.ReadBack(2)
	for _, rect := range got2.Rects() {
		if rect == region.Rect{X: 0, Y: 0, W: 10, H: 10} {
			t.Fatalf("stale r1 rectangle leaked into a 2-age readback")
		}
	}
}

func TestReadBackUnknownAgeReturnsNil(t *testing.T) {
	r := NewRing(2)
	if got := r.ReadBack(0); got != nil {
		t.Fatalf("expected nil for unknown age, got %+v", got)
	}
	if got := r.ReadBack(-1); got != nil {
		t.Fatalf("expected nil for negative age, got %+v", got)
	}
}

func TestReadBackClampsToRingLength(t *testing.T) {
	r := NewRing(2)
	r.Add(region.FromRect(region.Rect{X: 0, Y: 0, W: 1, H: 1}))
	got := r.ReadBack(100)
	if got.IsEmpty() {
		t.Fatalf("expected non-empty readback even when age exceeds ring length")
	}
}
