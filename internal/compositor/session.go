package compositor

import (
	"log"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/vellumwm/vellum/internal/backend"
	"github.com/vellumwm/vellum/internal/config"
	"github.com/vellumwm/vellum/internal/damage"
	"github.com/vellumwm/vellum/internal/region"
	"github.com/vellumwm/vellum/internal/registry"
	"github.com/vellumwm/vellum/internal/roottile"
	"github.com/vellumwm/vellum/internal/xconn"
)

// ControlSurface is the opaque collaborator spec section 3 references for
// rule evaluation and forced overrides: "a rule-list evaluator and a
// control surface (D-Bus or similar) are assumed to exist as opaque
// collaborators." internal/dbusctl implements this.
type ControlSurface interface {
	// ForcedOpacity returns a per-window opacity override, if one has been
	// set via the control surface, and whether it applies.
	ForcedOpacity(id xproto.Window) (float64, bool)
	// ForcedShadow, ForcedFade and ForcedInvert mirror ForcedOpacity for
	// the other per-window force flags of spec section 4.5.
	ForcedShadow(id xproto.Window) (bool, bool)
	ForcedFade(id xproto.Window) (bool, bool)
	ForcedInvert(id xproto.Window) (bool, bool)
}

// RuleMatcher evaluates the opaque rule lists spec section 3 mentions
// (shadow-exclude, unredir-exclude, opacity rules, window-type defaults).
type RuleMatcher interface {
	MatchBool(w *Window, ruleset string) (value bool, matched bool)
	MatchFloat(w *Window, ruleset string) (value float64, matched bool)
}

// Session is the compositor's top-level state, per spec section 3:
// "the connection, the root window, the overlay window, the window
// registry, the current configuration snapshot, and the redirect
// controller's state."
type Session struct {
	Conn *xconn.Conn
	Root xproto.Window

	OverlayWindow xproto.Window
	RootWidth     uint16
	RootHeight    uint16

	Registry *registry.Registry
	Damage   *damage.Ring
	Backend  backend.Backend
	RootTile *roottile.Tile

	Config  config.Config
	Rules   RuleMatcher
	Control ControlSurface

	// Redirected reports whether the screen is currently redirected to
	// the compositor, per spec section 4.7's redirect controller.
	Redirected bool
	// UnredirPending is set while the unredirect-delay timer is armed.
	UnredirPending bool

	// regIgnoreValid caches the "has any window's shape changed since the
	// reg_ignore cache was built" flag of spec section 4.4 step 1.
	regIgnoreValid bool

	// anyFading records the last Preprocess pass's fading census, consulted
	// by the scheduler's AnyFading hook to arm/disarm the fade timer.
	anyFading bool

	windowsByID map[xproto.Window]*Window

	// paintHead links the top-to-bottom paint list built by Preprocess.
	// Rebuilt every frame; never persisted across frames.
	paintHead *Window
}

// NewSession constructs a Session wired to conn/root, with an empty
// registry and damage ring, invalidating reg_ignore on every stack
// mutation per spec section 4.2.
func NewSession(conn *xconn.Conn, root xproto.Window, width, height uint16, cfg config.Config, rules RuleMatcher, control ControlSurface) *Session {
	s := &Session{
		Conn:        conn,
		Root:        root,
		RootWidth:   width,
		RootHeight:  height,
		Config:      cfg,
		Rules:       rules,
		Control:     control,
		windowsByID: make(map[xproto.Window]*Window),
	}
	s.Registry = registry.New(s)
	s.Damage = damage.NewRing(maxBufferAgeOrDefault(cfg))
	return s
}

func maxBufferAgeOrDefault(cfg config.Config) int {
	// The ring only needs to be as deep as the backend's MaxBufferAge;
	// until a backend is attached, size it generously and let
	// AttachBackend grow it if the real backend wants more.
	return 4
}

// AttachBackend wires the chosen backend.Backend into the session, per
// spec section 4.6, resizing the damage ring to the backend's reported
// MaxBufferAge.
func (s *Session) AttachBackend(b backend.Backend) {
	s.Backend = b
	if age := b.MaxBufferAge(); age > s.Damage.Len() {
		s.Damage = damage.NewRing(age)
	}
}

// RefreshRootTile re-resolves the desktop background tile, called at
// startup and whenever PropertyNotify on the root window reports
// _XROOTPMAP_ID/_XSETROOT_ID changed, per spec section 4.8's event table.
func (s *Session) RefreshRootTile(pixmap xproto.Window) {
	if s.Backend == nil {
		return
	}
	if s.RootTile != nil {
		s.RootTile.Release(s.Backend)
	}
	s.RootTile = roottile.Resolve(s.Backend, xproto.Pixmap(pixmap), s.RootWidth, s.RootHeight)
}

// InvalidateRegIgnore implements registry.Invalidator: any stack mutation
// invalidates the cached reg_ignore chain, per spec section 4.2's
// invariant "reg_ignore cache must be invalidated whenever the stacking
// order changes."
func (s *Session) InvalidateRegIgnore(id xproto.Window) {
	s.regIgnoreValid = false
	if w, ok := s.windowsByID[id]; ok {
		w.regIgnoreValid = false
	}
}

// AnyFading reports whether the most recent Preprocess pass found any
// window still mid-fade, for the scheduler's periodic fade timer.
func (s *Session) AnyFading() bool { return s.anyFading }

// Window looks up a tracked window by its outer (frame) id.
func (s *Session) Window(id xproto.Window) (*Window, bool) {
	w, ok := s.windowsByID[id]
	return w, ok
}

// TrackWindow registers a newly created Window with the session, per
// spec section 4's "Created on CreateNotify / initial query tree."
// prevAboveID is the id the window should be stacked above (0 = bottom
// of stack), mirroring registry.Insert's convention.
func (s *Session) TrackWindow(w *Window, prevAboveID xproto.Window) {
	s.windowsByID[w.ID()] = w
	s.Registry.Insert(w, prevAboveID)
}

// ForgetWindow drops a window from the session entirely, once its
// lifecycle has finished DESTROYING, per spec section 4's terminal
// transition "Destroying -> (removed)."
func (s *Session) ForgetWindow(id xproto.Window) {
	delete(s.windowsByID, id)
	s.Registry.RemoveNode(id)
}

// StopRedirect implements spec section 4.7's redir_stop: release every
// bound window image, undo subwindow redirect, unmap the overlay, and
// free the damage ring. Exported so cmd/vellumd can run it once on clean
// shutdown, mirroring the per-frame call stepRedirectController makes via
// the unredirect-delay timer.
func (s *Session) StopRedirect() { s.redirStop() }

// DamageRoot merges r (in root coordinates) into the current frame's
// damage, per spec section 4's damage accumulator.
func (s *Session) DamageRoot(r *region.Region) {
	s.Damage.Add(r)
}

func (s *Session) logf(format string, args ...any) {
	log.Printf("compositor: "+format, args...)
}
