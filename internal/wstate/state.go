// Package wstate implements the window lifecycle state machine and
// opacity-target/fade-stepping logic described in spec section 4.3.
package wstate

import "fmt"

// State is the window's lifecycle tag. It is a total, exhaustively-matched
// enum rather than a bit-flag set, per spec section 9's design note.
type State int

const (
	Unmapped State = iota
	Mapping
	Mapped
	Fading
	Unmapping
	Destroying
)

func (s State) String() string {
	switch s {
	case Unmapped:
		return "UNMAPPED"
	case Mapping:
		return "MAPPING"
	case Mapped:
		return "MAPPED"
	case Fading:
		return "FADING"
	case Unmapping:
		return "UNMAPPING"
	case Destroying:
		return "DESTROYING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// OpacitySource supplies the inputs to the opacity-target priority chain
// of spec section 4.3. Implemented by the compositor's Window type; kept
// as an interface here so the fade math has no dependency on the window
// record's field layout.
type OpacitySource interface {
	// Focused reports whether this is the window the WM considers active.
	Focused() bool
	// InactiveOpacityOverride and InactiveOpacity implement rule 1.
	InactiveOpacityOverride() bool
	InactiveOpacity() float64
	// PropertyOpacity implements rule 2: ok is false when neither the
	// frame nor the client window carries _NET_WM_WINDOW_OPACITY.
	PropertyOpacity() (value float64, ok bool)
	// WintypeOpacity implements rule 3.
	WintypeOpacity() (value float64, ok bool)
	// ActiveOpacity implements rule 4.
	ActiveOpacity() float64
	// ForcedOpacity lets the D-Bus control surface pin a value outside
	// the normal priority chain (force ON/OFF); ok is false when no
	// override is active (UNSET).
	ForcedOpacity() (value float64, ok bool)
}

// ComputeTarget implements the priority-ordered opacity target rules of
// spec section 4.3. destroying/unmapping callers should skip this and use
// 0 directly, per "Destroying/Unmapping force target to 0."
func ComputeTarget(src OpacitySource) float64 {
	if v, ok := src.ForcedOpacity(); ok {
		return v
	}
	if src.InactiveOpacityOverride() && !src.Focused() {
		return src.InactiveOpacity()
	}
	if v, ok := src.PropertyOpacity(); ok {
		return v
	}
	if v, ok := src.WintypeOpacity(); ok {
		return v
	}
	if src.Focused() {
		return src.ActiveOpacity()
	}
	return 1.0
}

// Machine drives one window's lifecycle state and opacity trajectory.
type Machine struct {
	state    State
	opacity  float64
	target   float64
	lastStep hasTime
}

// hasTime is an explicit millisecond timestamp, rather than time.Time, so
// that tests can drive the machine with a fake clock without constructing
// monotonic time.Time values.
type hasTime struct {
	set bool
	ms  int64
}

// New returns a machine starting in Unmapped, per the invariant
// "opacity = opacity_tgt = 0" there.
func New() *Machine {
	return &Machine{state: Unmapped}
}

func (m *Machine) State() State     { return m.state }
func (m *Machine) Opacity() float64 { return m.opacity }
func (m *Machine) Target() float64  { return m.target }

// Map transitions Unmapped -> Mapping and sets the new opacity target.
// redirected controls the fade-skip rule of section 4.3: "if redirection
// is currently off, any transition skips straight to the terminal
// opacity."
func (m *Machine) Map(target float64, redirected bool) {
	if m.state != Unmapped {
		return
	}
	m.target = target
	if !redirected || target == m.opacity {
		m.opacity = target
		m.state = Mapped
		return
	}
	m.state = Mapping
}

// Unmap transitions {Mapped, Mapping, Fading} -> Unmapping with target 0.
func (m *Machine) Unmap(redirected bool) {
	switch m.state {
	case Mapped, Mapping, Fading:
	default:
		return
	}
	m.target = 0
	if !redirected {
		m.opacity = 0
		m.state = Unmapped
		return
	}
	m.state = Unmapping
}

// Destroy transitions any state to Destroying with target 0. If
// redirection is off the fade is skipped and the caller should treat the
// window as immediately finished (Finished reports true right away).
func (m *Machine) Destroy(redirected bool) {
	m.target = 0
	if !redirected {
		m.opacity = 0
		m.state = Destroying
		return
	}
	m.state = Destroying
}

// Retarget changes the opacity target of a Mapped window, entering
// Fading, per "MAPPED -- opacity target change --> FADING." Calling it on
// a window not currently Mapped is a no-op: a fade already in progress
// keeps heading to whatever Map, Unmap, Destroy or an earlier Retarget
// set last, and other states manage
// their own target via Map/Unmap/Destroy.
func (m *Machine) Retarget(target float64, redirected bool) {
	if m.state != Mapped {
		return
	}
	m.target = target
	if !redirected || target == m.opacity {
		m.opacity = target
		return
	}
	m.state = Fading
}

// FadeParams bundles the stepping configuration from spec section 4.3.
type FadeParams struct {
	FadeDeltaMs int64
	FadeInStep  float64
	FadeOutStep float64
	// NoFade, when true, implements the rule-based blacklist: "snap to
	// target immediately."
	NoFade bool
}

// Step advances the fade state machine to nowMs, per the stepping
// algorithm of spec section 4.3, and fires the Mapping/Fading/Unmapping/
// Destroying -> terminal transition when the target is reached. It
// returns true if the window is still fading after this step (the F-pass
// uses this to decide whether to keep the fade timer armed).
func (m *Machine) Step(nowMs int64, p FadeParams) (stillFading bool) {
	switch m.state {
	case Unmapped, Mapped:
		return false
	}

	if p.NoFade {
		m.opacity = m.target
	} else {
		if !m.lastStep.set {
			m.lastStep = hasTime{set: true, ms: nowMs}
		} else {
			delta := nowMs - m.lastStep.ms
			if p.FadeDeltaMs <= 0 {
				p.FadeDeltaMs = 1
			}
			steps := delta / p.FadeDeltaMs
			if steps > 0 {
				m.lastStep.ms += steps * p.FadeDeltaMs
				m.advance(steps, p)
			}
		}
	}

	if m.opacity == m.target {
		m.finishTransition()
		return false
	}
	return true
}

func (m *Machine) advance(steps int64, p FadeParams) {
	if m.target > m.opacity {
		m.opacity += float64(steps) * p.FadeInStep
		if m.opacity > m.target {
			m.opacity = m.target
		}
	} else if m.target < m.opacity {
		m.opacity -= float64(steps) * p.FadeOutStep
		if m.opacity < m.target {
			m.opacity = m.target
		}
	}
}

func (m *Machine) finishTransition() {
	m.lastStep = hasTime{}
	switch m.state {
	case Mapping, Fading:
		m.state = Mapped
	case Unmapping:
		m.state = Unmapped
	case Destroying:
		// compositor's Preprocess observes Finished() and calls
		// Session.ForgetWindow to free the window;
		// there is no further state to move to here.
	}
}

// Finished reports whether a Destroying window has reached opacity 0 and
// may be freed.
func (m *Machine) Finished() bool {
	return m.state == Destroying && m.opacity == m.target
}
