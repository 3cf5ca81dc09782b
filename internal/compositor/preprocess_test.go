package compositor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Invariant 1: at the end of preprocess every window has reg_ignore_valid
// == true and reg_ignore equal to the union of opaque regions of every
// window strictly above it in stack order.
func TestPreprocessRegIgnoreMatchesOpaqueAbove(t *testing.T) {
	s := newTestSession()

	top := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 50, Height: 50})
	middle := mappedWindow(s, 2, Geometry{X: 10, Y: 10, Width: 50, Height: 50})
	bottom := mappedWindow(s, 3, Geometry{X: 0, Y: 0, Width: 200, Height: 200})

	s.TrackWindow(bottom, 0)
	s.TrackWindow(middle, bottom.ID())
	s.TrackWindow(top, middle.ID()) // stack bottom -> middle -> top

	s.Preprocess(0)

	require.True(t, top.regIgnoreValid)
	require.True(t, top.regIgnore.IsEmpty(), "topmost window has nothing above it")

	require.True(t, middle.regIgnoreValid)
	wantMiddle := windowRegion(top)
	require.ElementsMatch(t, wantMiddle.Rects(), middle.regIgnore.Rects())
	wantMiddle.Unref()

	require.True(t, bottom.regIgnoreValid)
	wantBottom := windowRegion(top).Union(windowRegion(middle))
	require.ElementsMatch(t, wantBottom.Rects(), bottom.regIgnore.Rects())
	wantBottom.Unref()
}

// Boundary 9: a window fully off-screen has to_paint == false regardless
// of opacity.
func TestPreprocessOffscreenWindowNeverPaints(t *testing.T) {
	s := newTestSession()
	w := mappedWindow(s, 1, Geometry{X: -1000, Y: -1000, Width: 10, Height: 10})
	s.TrackWindow(w, 0)

	s.Preprocess(0)

	require.False(t, w.ToPaint)
}

// Boundary 10: a window with opacity*255 < 1 has to_paint == false.
func TestPreprocessNearZeroOpacityNeverPaints(t *testing.T) {
	s := newTestSession()
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	w.machine.Retarget(0, false) // snaps straight to 0 opacity, unredirected
	s.TrackWindow(w, 0)

	s.Preprocess(0)

	require.False(t, w.ToPaint)
}

// Round-trip 7: restack(w, a); restack(w, a) is a no-op on the second call.
func TestRestackTwiceIsIdempotent(t *testing.T) {
	s := newTestSession()
	a := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	b := mappedWindow(s, 2, Geometry{X: 20, Y: 0, Width: 10, Height: 10})
	s.TrackWindow(a, 0)
	s.TrackWindow(b, a.ID())

	s.Registry.Restack(b.ID(), a.ID())
	var first []uint32
	s.Registry.IterTopToBottom(func(gw genericWindow) bool {
		first = append(first, uint32(gw.(*Window).ID()))
		return true
	})

	s.Registry.Restack(b.ID(), a.ID())
	var second []uint32
	s.Registry.IterTopToBottom(func(gw genericWindow) bool {
		second = append(second, uint32(gw.(*Window).ID()))
		return true
	})

	require.Equal(t, first, second)
}

// Spec section 4.4 step 5: shadow_opacity is only computed for windows
// that paint this frame, per the formula
// config.shadow_opacity * opacity * frame_opacity.
func TestPreprocessComputesShadowOpacity(t *testing.T) {
	s := newTestSession()
	s.Config.ShadowOpacity = 0.5
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	s.TrackWindow(w, 0)

	s.Preprocess(0)

	require.True(t, w.ToPaint)
	require.InDelta(t, 0.5, w.ShadowOpacity, 1e-9)
}

// Spec section 4.4 step 2: dim is recomputed from focus every frame.
func TestPreprocessRecomputesDimFromFocus(t *testing.T) {
	s := newTestSession()
	w := mappedWindow(s, 1, Geometry{X: 0, Y: 0, Width: 10, Height: 10})
	s.TrackWindow(w, 0)

	s.Preprocess(0)
	require.True(t, w.Dim, "unfocused window must be dimmed")

	w.SetFocused(true)
	s.Preprocess(10)
	require.False(t, w.Dim, "focusing the window must clear dim")
}
