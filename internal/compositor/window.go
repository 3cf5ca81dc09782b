// Package compositor implements the core engine of spec sections 4.4
// through 4.7: the per-frame preprocess and paint passes, the redirect
// controller, and the Window/Session records spec section 3 describes.
package compositor

import (
	"github.com/BurntSushi/xgb/xproto"

	"github.com/vellumwm/vellum/internal/backend"
	"github.com/vellumwm/vellum/internal/region"
	"github.com/vellumwm/vellum/internal/wstate"
	"github.com/vellumwm/vellum/internal/xprop"
)

// PaintMode is the SOLID/FRAME_TRANS/TRANS classification of spec section
// 4.4 step 3.
type PaintMode int

const (
	ModeSolid PaintMode = iota
	ModeFrameTrans
	ModeTrans
)

// OpacitySourceKind records which rule in the priority chain last set a
// window's opacity target, per spec section 3's "opacity-source flag."
type OpacitySourceKind int

const (
	OpacitySourceNone OpacitySourceKind = iota
	OpacitySourceProperty
	OpacitySourceRule
	OpacitySourceTypeDefault
	OpacitySourceActive
	OpacitySourceInactive
)

// FrameExtents is the frame-window-vs-client-window padding of spec
// section 3, in the order (Top, Right, Bottom, Left).
type FrameExtents struct {
	Top, Right, Bottom, Left uint32
}

// Geometry is a window's position and size, in root coordinates.
type Geometry struct {
	X, Y          int32
	Width, Height uint16
	BorderWidth   uint16
}

// Window is the full per-window record of spec section 3. Most fields are
// mutated only by Preprocess; Paint treats them as read-only.
type Window struct {
	id       xproto.Window
	clientID xproto.Window
	sess     *Session

	Geometry Geometry
	MapState bool // X map-state, independent of the compositor lifecycle

	machine *wstate.Machine

	Wintype        xprop.Wintype
	opacitySource  OpacitySourceKind
	focused        bool
	BoundingShape  *region.Region // window-local coordinates
	HasAlpha       bool
	FrameExtents   FrameExtents
	ShadowFlag     bool
	InvertColor    bool
	BlurBackground bool
	Dim            bool

	EverDamaged bool
	StaleImage  bool
	ImageError  bool

	// prevTrans links this window into the current frame's paint list.
	// It is rebuilt every frame by Preprocess and must not be read
	// outside of the frame that set it, per spec section 9's "arena-style
	// list... don't model it as owned by windows."
	prevTrans *Window

	regIgnore      *region.Region
	regIgnoreValid bool

	PaintExcluded   bool // rule cache
	UnredirExcluded bool // rule cache

	LeaderID    xproto.Window
	cacheLeader bool

	Image       backend.Image
	ShadowImage backend.Image

	Mode          PaintMode
	ToPaint       bool
	prevToPaint   bool
	ShadowOpacity float64

	// Cached property reads, refreshed by the event dispatcher on the
	// relevant PropertyNotify and consulted by ComputeTarget via the
	// wstate.OpacitySource methods below.
	propertyOpacity    float64
	hasPropertyOpacity bool
	wintypeOpacity     float64
	hasWintypeOpacity  bool
	forcedOpacity      float64
	hasForcedOpacity   bool
	ruleOpacity        float64
	hasRuleOpacity     bool
	noFadeRule         bool
}

// NewWindow constructs a Window in the UNMAPPED state, per spec section
// 4's lifecycle: "Created on CreateNotify / initial query tree."
func NewWindow(sess *Session, id, clientID xproto.Window) *Window {
	return &Window{
		id:       id,
		clientID: clientID,
		sess:     sess,
		machine:  wstate.New(),
	}
}

// ID implements registry.Window.
func (w *Window) ID() xproto.Window { return w.id }

// ClientWindow implements the registry.FindToplevel constraint, for
// looking a window up by its inner (WM_STATE-bearing) id.
func (w *Window) ClientWindow() xproto.Window { return w.clientID }

// State returns the current lifecycle state.
func (w *Window) State() wstate.State { return w.machine.State() }

// Opacity returns the current (possibly mid-fade) opacity.
func (w *Window) Opacity() float64 { return w.machine.Opacity() }

// TargetOpacity returns the opacity the fade is heading toward.
func (w *Window) TargetOpacity() float64 { return w.machine.Target() }

// --- wstate.OpacitySource ---

// Focused reports whether the window manager currently considers this
// window active. SetFocused updates it.
func (w *Window) Focused() bool { return w.focused }

// SetFocused records a focus change, called by the event dispatcher on
// _NET_ACTIVE_WINDOW updates.
func (w *Window) SetFocused(v bool) { w.focused = v }

func (w *Window) InactiveOpacityOverride() bool { return w.sess.Config.InactiveOpacityOverride }
func (w *Window) InactiveOpacity() float64      { return w.sess.Config.InactiveOpacity }
func (w *Window) ActiveOpacity() float64        { return w.sess.Config.ActiveOpacity }

func (w *Window) PropertyOpacity() (float64, bool) {
	return w.propertyOpacity, w.hasPropertyOpacity
}

func (w *Window) WintypeOpacity() (float64, bool) {
	return w.wintypeOpacity, w.hasWintypeOpacity
}

func (w *Window) ForcedOpacity() (float64, bool) {
	return w.forcedOpacity, w.hasForcedOpacity
}

// SetPropertyOpacity records a freshly-read _NET_WM_WINDOW_OPACITY value
// (or its absence), called by the event dispatcher on the relevant
// PropertyNotify.
func (w *Window) SetPropertyOpacity(value float64, ok bool) {
	w.propertyOpacity, w.hasPropertyOpacity = value, ok
}

// SetWintypeOpacity records the configured default opacity for this
// window's Wintype, if the config sets one.
func (w *Window) SetWintypeOpacity(value float64, ok bool) {
	w.wintypeOpacity, w.hasWintypeOpacity = value, ok
}

// SetForcedOpacity records a control-surface override (UNSET clears it).
func (w *Window) SetForcedOpacity(value float64, ok bool) {
	w.forcedOpacity, w.hasForcedOpacity = value, ok
}

// SetRuleOpacity records the current match of the rule-list "opacity"
// ruleset, re-evaluated by applyRules every frame. It slots between
// property opacity and the wintype default in the priority chain, ahead
// of wstate.ComputeTarget's own tiers since that function only knows
// about the property/wintype/active/inactive/forced inputs.
func (w *Window) SetRuleOpacity(value float64, ok bool) {
	w.ruleOpacity, w.hasRuleOpacity = value, ok
}

// RecomputeOpacityTarget implements spec section 4.3's trigger list:
// "recomputed on any of: focus change, window-type change, property
// change..., opacity-rule re-match, force overrides." Callers invoke this
// after updating whichever cached input changed; the resulting target is
// applied to the lifecycle machine by the caller via Retarget/Map/Unmap,
// since only Preprocess/the dispatcher know which transition applies.
func (w *Window) RecomputeOpacityTarget() float64 {
	switch {
	case w.hasForcedOpacity:
		w.opacitySource = OpacitySourceNone
	case w.sess.Config.InactiveOpacityOverride && !w.focused:
		w.opacitySource = OpacitySourceInactive
	case w.hasPropertyOpacity:
		w.opacitySource = OpacitySourceProperty
	case w.hasRuleOpacity:
		w.opacitySource = OpacitySourceRule
		return w.ruleOpacity
	case w.hasWintypeOpacity:
		w.opacitySource = OpacitySourceTypeDefault
	case w.focused:
		w.opacitySource = OpacitySourceActive
	default:
		w.opacitySource = OpacitySourceNone
	}
	return wstate.ComputeTarget(w)
}

// OpacitySource reports which rule in the priority chain last decided
// this window's opacity target, for diagnostics (e.g. a future "vellumctl
// inspect" surface).
func (w *Window) OpacitySource() OpacitySourceKind { return w.opacitySource }

// redirected reports the session's current redirection state, used to
// drive the fade-skip rule of spec section 4.3.
func (w *Window) redirected() bool { return w.sess.Redirected }

// MapNow transitions the window to Mapping/Mapped with a freshly computed
// opacity target, called by the event dispatcher on MapNotify.
func (w *Window) MapNow() {
	w.machine.Map(w.RecomputeOpacityTarget(), w.redirected())
}

// UnmapNow transitions the window toward Unmapped, called by the event
// dispatcher on UnmapNotify.
func (w *Window) UnmapNow() {
	w.machine.Unmap(w.redirected())
}

// DestroyNow transitions the window toward Destroying, called by the
// event dispatcher on DestroyNotify. It drops the window from the
// session's id lookup (Session.Window) at once; the window stays in the
// stack until its fade-out finishes and Preprocess forgets it. The
// registry's own id-index entry is removed by the caller via
// Session.Registry.Remove, per spec section 4.2's "id-index removed
// immediately" rule.
func (w *Window) DestroyNow() {
	if w.sess != nil && w.sess.windowsByID[w.id] == w {
		delete(w.sess.windowsByID, w.id)
	}
	w.machine.Destroy(w.redirected())
}

// Retarget re-fades the window toward a newly computed opacity target,
// called whenever one of the cached opacity inputs changes on an already
// Mapped window.
func (w *Window) Retarget() {
	w.machine.Retarget(w.RecomputeOpacityTarget(), w.redirected())
}
