package compositor

import (
	"github.com/vellumwm/vellum/internal/damage"
	"github.com/vellumwm/vellum/internal/region"
)

// fullRootRegion returns a region covering the entire root window, used to
// force a full repaint when redir_start brings compositing back online.
func fullRootRegion(width, height uint16) *region.Region {
	return region.FromRect(region.Rect{X: 0, Y: 0, W: int32(width), H: int32(height)})
}

// stepRedirectController implements spec section 4.7's redirect
// controller: the screen stays redirected to the compositor so long as
// anything is fading, any window wants to stay unredirected is false, or
// the unredirect delay has not yet elapsed since the last reason to
// redirect went away.
//
// anyFading reports whether Preprocess found any window still mid-fade
// this frame.
func (s *Session) stepRedirectController(anyFading bool) {
	wantRedirect := anyFading || s.anyWindowNeedsRedirect()

	switch {
	case wantRedirect:
		s.UnredirPending = false
		if !s.Redirected {
			s.redirStart()
		}
	case s.Redirected && s.Config.UnredirIfPossible:
		// Nothing currently needs compositing; arm (or keep armed) the
		// unredirect delay rather than dropping redirection immediately,
		// per spec section 4.7's "avoid flicker on rapid show/hide."
		s.UnredirPending = true
	default:
		s.UnredirPending = false
	}
}

// anyWindowNeedsRedirect reports whether any tracked window requires the
// screen to stay redirected: a window that is not full-screen-opaque-
// solid-and-unexcluded needs compositing to happen at all.
func (s *Session) anyWindowNeedsRedirect() bool {
	needs := false
	s.Registry.IterTopToBottom(func(gw genericWindow) bool {
		w := gw.(*Window)
		if !w.MapState {
			return true
		}
		if w.UnredirExcluded || w.Mode != ModeSolid {
			needs = true
			return false
		}
		return true
	})
	return needs
}

// UnredirTimerFired is called by cmd/vellumd's unredirect-delay reactor
// timer once the delay armed by stepRedirectController has elapsed without being
// cancelled, per spec section 4.7's "delay timer... cancelled if
// redirection becomes necessary again before it fires."
func (s *Session) UnredirTimerFired() {
	if !s.UnredirPending {
		return // cancelled since the timer was armed
	}
	s.UnredirPending = false
	if s.Redirected {
		s.redirStop()
	}
}

// redirStart implements spec section 4.7's redir_start: map overlay, then
// request server-side subwindow redirect, then allocate the damage ring,
// then mark every currently viewable window for a fresh bind, then force
// full-screen damage. A bind failure for any one window does not abort the
// sequence — it surfaces as that window's own ImageError on the next
// paint, per the same per-window recoverability rule rebindImage already
// follows.
func (s *Session) redirStart() {
	if s.Redirected {
		return
	}
	if s.Conn != nil {
		if s.OverlayWindow != 0 {
			if err := s.Conn.MapWindow(s.OverlayWindow); err != nil {
				s.logf("redir_start: map overlay: %v", err)
			}
			if err := s.Conn.SetOverlayInputShape(s.OverlayWindow); err != nil {
				s.logf("redir_start: empty overlay shape: %v", err)
			}
		}
		if err := s.Conn.RedirectSubwindows(s.Root); err != nil {
			s.logf("redir_start: redirect subwindows: %v", err)
			return
		}
	}

	maxAge := 1
	if s.Backend != nil {
		maxAge = s.Backend.MaxBufferAge()
	}
	s.Damage = damage.NewRing(maxAge)

	for _, w := range s.windowsByID {
		if w.MapState {
			w.StaleImage = true
		}
	}

	s.Redirected = true
	full := fullRootRegion(s.RootWidth, s.RootHeight)
	s.DamageRoot(full)
	full.Unref()
	s.logf("redirecting screen to compositor")
}

// redirStop implements spec section 4.7's redir_stop: release every
// bound window image, undo subwindow redirect, unmap the overlay, and
// free the damage ring, letting windows render directly again.
func (s *Session) redirStop() {
	if !s.Redirected {
		return
	}
	if s.Backend != nil {
		for _, w := range s.windowsByID {
			if w.Image != nil {
				s.Backend.ReleaseImage(w.Image)
				w.Image = nil
			}
			if w.ShadowImage != nil {
				s.Backend.ReleaseImage(w.ShadowImage)
				w.ShadowImage = nil
			}
			w.StaleImage = true
		}
	}
	if s.Conn != nil {
		if err := s.Conn.UnredirectSubwindows(s.Root); err != nil {
			s.logf("redir_stop: unredirect subwindows: %v", err)
		}
		if s.OverlayWindow != 0 {
			if err := s.Conn.UnmapWindow(s.OverlayWindow); err != nil {
				s.logf("redir_stop: unmap overlay: %v", err)
			}
		}
	}
	s.Damage = damage.NewRing(1)

	s.Redirected = false
	s.logf("releasing screen redirection")
}
