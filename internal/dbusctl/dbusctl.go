// Package dbusctl exposes the control surface spec section 6 calls an
// opaque collaborator over D-Bus: per-window force overrides for
// opacity, shadow, fade and color inversion, plus a focus-tracking
// toggle. It implements compositor.ControlSurface directly so
// cmd/vellumd can wire it straight into a Session.
package dbusctl

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/BurntSushi/xgb/xproto"
)

const (
	busName       = "org.vellumwm.Vellum"
	objectPath    = dbus.ObjectPath("/org/vellumwm/Vellum")
	interfaceName = "org.vellumwm.Vellum.Control"
)

// Server owns the session-bus connection and the per-window force-override
// tables the exported methods mutate. All exported D-Bus methods run on
// the bus connection's own goroutine, so the tables are guarded by a
// mutex, which the ControlSurface.Forced* readers below also take.
type Server struct {
	conn *dbus.Conn

	mu          sync.Mutex
	opacity     map[xproto.Window]float64
	shadow      map[xproto.Window]bool
	fade        map[xproto.Window]bool
	invert      map[xproto.Window]bool
	trackFocus  bool
}

// New connects to the session bus, requests busName, and exports the
// control interface at objectPath. Following the teacher's one-shot
// resource-acquisition style, a failure at any step returns an error
// rather than retrying.
func New() (*Server, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("dbusctl: connect session bus: %w", err)
	}
	s := &Server{
		conn:       conn,
		opacity:    make(map[xproto.Window]float64),
		shadow:     make(map[xproto.Window]bool),
		fade:       make(map[xproto.Window]bool),
		invert:     make(map[xproto.Window]bool),
		trackFocus: true,
	}
	if err := conn.Export(s, objectPath, interfaceName); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dbusctl: export methods: %w", err)
	}
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dbusctl: request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("dbusctl: bus name %s already owned", busName)
	}
	return s, nil
}

// Close releases the bus connection.
func (s *Server) Close() error { return s.conn.Close() }

// SetOpacity is exported as org.vellumwm.Vellum.Control.SetOpacity(id
// uint32, value float64). A negative value clears the override.
func (s *Server) SetOpacity(id uint32, value float64) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value < 0 {
		delete(s.opacity, xproto.Window(id))
		return nil
	}
	s.opacity[xproto.Window(id)] = value
	return nil
}

// SetShadow is exported as SetShadow(id uint32, enabled bool). There is
// no "unset" form; ForceUnsetShadow clears an override.
func (s *Server) SetShadow(id uint32, enabled bool) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shadow[xproto.Window(id)] = enabled
	return nil
}

// ForceUnsetShadow is exported as ForceUnsetShadow(id uint32).
func (s *Server) ForceUnsetShadow(id uint32) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shadow, xproto.Window(id))
	return nil
}

// SetFade is exported as SetFade(id uint32, enabled bool).
func (s *Server) SetFade(id uint32, enabled bool) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fade[xproto.Window(id)] = enabled
	return nil
}

// ForceUnsetFade is exported as ForceUnsetFade(id uint32).
func (s *Server) ForceUnsetFade(id uint32) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fade, xproto.Window(id))
	return nil
}

// SetInvert is exported as SetInvert(id uint32, enabled bool).
func (s *Server) SetInvert(id uint32, enabled bool) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invert[xproto.Window(id)] = enabled
	return nil
}

// ForceUnsetInvert is exported as ForceUnsetInvert(id uint32).
func (s *Server) ForceUnsetInvert(id uint32) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invert, xproto.Window(id))
	return nil
}

// SetTrackFocus is exported as SetTrackFocus(enabled bool), recording the
// focus-tracking toggle that TrackFocus reports. Nothing else reads it;
// focus handling does not depend on it.
func (s *Server) SetTrackFocus(enabled bool) *dbus.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackFocus = enabled
	return nil
}

// TrackFocus reports the current focus-tracking toggle. No non-test code
// in this module reads it; the core only sees per-window overrides through
// ControlSurface.
func (s *Server) TrackFocus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackFocus
}

// --- compositor.ControlSurface ---

func (s *Server) ForcedOpacity(id xproto.Window) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.opacity[id]
	return v, ok
}

func (s *Server) ForcedShadow(id xproto.Window) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.shadow[id]
	return v, ok
}

func (s *Server) ForcedFade(id xproto.Window) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.fade[id]
	return v, ok
}

func (s *Server) ForcedInvert(id xproto.Window) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.invert[id]
	return v, ok
}
