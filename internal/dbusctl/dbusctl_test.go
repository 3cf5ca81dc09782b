package dbusctl

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
)

func newTestServer() *Server {
	return &Server{
		opacity:    make(map[xproto.Window]float64),
		shadow:     make(map[xproto.Window]bool),
		fade:       make(map[xproto.Window]bool),
		invert:     make(map[xproto.Window]bool),
		trackFocus: true,
	}
}

func TestSetAndClearOpacityOverride(t *testing.T) {
	s := newTestServer()
	if err := s.SetOpacity(7, 0.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := s.ForcedOpacity(7)
	if !ok || v != 0.5 {
		t.Fatalf("expected forced opacity 0.5, got %v ok=%v", v, ok)
	}

	if err := s.SetOpacity(7, -1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.ForcedOpacity(7); ok {
		t.Fatalf("expected a negative value to clear the override")
	}
}

func TestShadowOverrideLifecycle(t *testing.T) {
	s := newTestServer()
	s.SetShadow(3, false)
	v, ok := s.ForcedShadow(3)
	if !ok || v != false {
		t.Fatalf("expected forced shadow=false, got %v ok=%v", v, ok)
	}
	s.ForceUnsetShadow(3)
	if _, ok := s.ForcedShadow(3); ok {
		t.Fatalf("expected override cleared after ForceUnsetShadow")
	}
}

func TestTrackFocusToggle(t *testing.T) {
	s := newTestServer()
	s.SetTrackFocus(false)
	if s.TrackFocus() {
		t.Fatalf("expected TrackFocus to report false after SetTrackFocus(false)")
	}
}
