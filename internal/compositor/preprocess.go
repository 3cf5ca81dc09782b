package compositor

import (
	"github.com/vellumwm/vellum/internal/region"
	"github.com/vellumwm/vellum/internal/registry"
	"github.com/vellumwm/vellum/internal/wstate"
)

// genericWindow is the registry's narrow Window view; Preprocess always
// downcasts it back to *Window since this package is the only registry
// client.
type genericWindow = registry.Window

// Preprocess implements spec section 4.4's per-frame preprocess pass: a
// single top-to-bottom walk of the window stack that rebuilds the paint
// list, the reg_ignore chain, and each window's opacity/fade state before
// Paint runs. nowMs is the current monotonic time in milliseconds, used
// to step fades.
func (s *Session) Preprocess(nowMs int64) {
	fp := wstate.FadeParams{
		FadeDeltaMs: s.Config.FadeDeltaMs,
		FadeInStep:  s.Config.FadeInStep,
		FadeOutStep: s.Config.FadeOutStep,
		NoFade:      !s.Config.FadeOpenClose,
	}

	var (
		prev      *Window
		accIgnore = region.Empty() // union of opaque regions seen so far, top to bottom
		anyFading bool
		finished  []*Window
	)
	s.paintHead = nil

	// The stack is snapshotted into a slice first: ForgetWindow below
	// mutates the registry's backing list, which must not happen while
	// Registry.IterTopToBottom is still walking it.
	var stack []*Window
	s.Registry.IterTopToBottom(func(gw genericWindow) bool {
		stack = append(stack, gw.(*Window))
		return true
	})

	for _, w := range stack {
		// Step 1: skip windows the lifecycle machine has fully retired.
		if w.State() == wstate.Unmapped {
			w.ToPaint = false
			continue
		}

		// Step 2: advance the fade/opacity state machine.
		if w.machine.Step(nowMs, fp) {
			anyFading = true
		}
		if w.State() == wstate.Destroying && w.machine.Finished() {
			finished = append(finished, w)
			continue
		}

		// Step 2b: recompute dim from focus; a change redamages the
		// window so the new dim/undim state actually shows up this frame.
		newDim := !w.Focused()
		if newDim != w.Dim {
			dmg := windowRegion(w)
			s.DamageRoot(dmg)
			dmg.Unref()
		}
		w.Dim = newDim

		// Step 3: classify the paint mode from opacity and shape.
		w.Mode = classifyMode(w)

		// Step 4: rule evaluation for shadow/invert/blur/dim/paint
		// exclusion, cached per window and only recomputed when the
		// session's rule matcher is present.
		s.applyRules(w)

		// Step 5: visibility culling against the accumulated opaque
		// region built by windows already visited (i.e. windows above
		// this one in the stack), clipped to the screen. A window whose
		// to_paint flips since the last frame is redamaged.
		winRegion := windowRegion(w)
		screen := fullRootRegion(s.RootWidth, s.RootHeight)
		visible := winRegion.Subtract(accIgnore)
		onScreen := visible.Intersect(screen)
		w.ToPaint = w.MapState && w.Opacity()*255 >= 1 && !w.PaintExcluded && !w.ImageError && !onScreen.IsEmpty()
		if w.ToPaint != w.prevToPaint {
			s.DamageRoot(winRegion)
			w.prevToPaint = w.ToPaint
		}
		visible.Unref()
		onScreen.Unref()
		screen.Unref()

		// Step 5b: if to_paint, update shadow_opacity per spec section
		// 4.4 step 5's formula; frame_opacity only discounts the
		// FRAME_TRANS case, where the frame (not the whole body) is the
		// translucent part.
		if w.ToPaint {
			frameOpacity := 1.0
			if w.Mode == ModeFrameTrans {
				frameOpacity = s.Config.FrameOpacity
			}
			w.ShadowOpacity = s.Config.ShadowOpacity * w.Opacity() * frameOpacity
		}

		// Step 6: record this window's reg_ignore -- the union of
		// opaque regions above it in the stack, i.e. everything
		// accumulated so far -- before folding its own contribution in.
		if w.regIgnore != nil {
			w.regIgnore.Unref()
		}
		w.regIgnore = accIgnore
		w.regIgnore.Ref()
		w.regIgnoreValid = true

		// Fold this window's opaque contribution into the running
		// accumulator, for windows below it to cull against.
		if w.Mode == ModeSolid && w.ToPaint {
			merged := accIgnore.Union(winRegion)
			accIgnore.Unref()
			accIgnore = merged
		}
		winRegion.Unref()

		// Step 7: stale-image bookkeeping; Paint clears StaleImage once
		// it has rebound the backend image.
		if !w.EverDamaged && w.ToPaint {
			w.EverDamaged = true
			w.StaleImage = true
		}

		// Step 8: link into the paint list (top to bottom == prev to
		// next, so Paint can walk it bottom to top by recursion or by
		// reversing during the walk below).
		w.prevTrans = nil
		if prev != nil {
			prev.prevTrans = w
		} else {
			s.paintHead = w
		}
		prev = w
	}

	for _, w := range finished {
		s.ForgetWindow(w.ID())
	}

	// Step 9: drive the redirect controller from whether anything is
	// still mid-fade or otherwise requires compositing this frame.
	s.anyFading = anyFading
	s.stepRedirectController(anyFading)

	accIgnore.Unref()
}

// classifyMode implements spec section 4.4 step 3's SOLID / FRAME_TRANS /
// TRANS classification.
func classifyMode(w *Window) PaintMode {
	switch {
	case w.Opacity() >= 1.0 && !w.HasAlpha:
		return ModeSolid
	case w.Opacity() >= 1.0 && w.HasAlpha:
		return ModeFrameTrans
	default:
		return ModeTrans
	}
}

// applyRules resolves the per-window rule-derived flags (shadow, invert,
// blur, paint exclusion) via the session's RuleMatcher, falling back to
// the window's already-cached values when no matcher is configured.
func (s *Session) applyRules(w *Window) {
	if s.Rules == nil {
		return
	}
	if v, ok := s.Rules.MatchBool(w, "shadow-exclude"); ok {
		w.ShadowFlag = !v
	}
	if v, ok := s.Rules.MatchBool(w, "unredir-exclude"); ok {
		w.UnredirExcluded = v
	}
	if v, ok := s.Rules.MatchBool(w, "paint-exclude"); ok {
		w.PaintExcluded = v
	}
	if v, ok := s.Rules.MatchBool(w, "invert-color"); ok {
		w.InvertColor = v
	}
	if v, ok := s.Rules.MatchBool(w, "blur-background"); ok {
		w.BlurBackground = v
	}

	oldVal, oldOK := w.ruleOpacity, w.hasRuleOpacity
	v, ok := s.Rules.MatchFloat(w, "opacity")
	w.SetRuleOpacity(v, ok)
	if ok != oldOK || (ok && v != oldVal) {
		w.Retarget()
	}
}

// windowRegion returns w's bounding shape translated into root
// coordinates, or its full geometry rectangle if no shape was read.
func windowRegion(w *Window) *region.Region {
	if w.BoundingShape != nil && !w.BoundingShape.IsEmpty() {
		return w.BoundingShape.Translate(w.Geometry.X, w.Geometry.Y)
	}
	return region.FromRect(region.Rect{
		X: w.Geometry.X,
		Y: w.Geometry.Y,
		W: int32(w.Geometry.Width),
		H: int32(w.Geometry.Height),
	})
}
