// Package registry maintains the compositor's window stack: a total
// z-order plus an id index, as described in spec section 4.2.
package registry

import (
	"container/list"
	"log"

	"github.com/BurntSushi/xgb/xproto"
)

// Window is the minimal identity every stack entry must carry. Concrete
// window state (geometry, opacity, images...) lives one layer up in
// internal/compositor; the registry only orders and looks things up.
type Window interface {
	ID() xproto.Window
}

// Invalidator receives the side effects a stack mutation must trigger on
// the reg_ignore cache, per spec section 4.2: "the reg_ignore cache of the
// moved window and of its old and new lower neighbour is invalidated."
type Invalidator interface {
	InvalidateRegIgnore(id xproto.Window)
}

// Registry is a z-ordered doubly linked stack (bottom = list.Back) with a
// hash index on window id for O(1) lookup.
type Registry struct {
	order *list.List
	index map[xproto.Window]*list.Element
	inv   Invalidator
}

// New creates an empty registry. inv may be nil, in which case stack
// mutations perform no invalidation (useful in tests that only exercise
// ordering).
func New(inv Invalidator) *Registry {
	return &Registry{
		order: list.New(),
		index: make(map[xproto.Window]*list.Element),
		inv:   inv,
	}
}

func (r *Registry) notify(id xproto.Window) {
	if r.inv != nil && id != 0 {
		r.inv.InvalidateRegIgnore(id)
	}
}

// neighborBelow returns the id of the window immediately below e in the
// stack, or 0 if e is already at the bottom.
func (r *Registry) neighborBelow(e *list.Element) xproto.Window {
	if n := e.Next(); n != nil {
		return n.Value.(Window).ID()
	}
	return 0
}

// Insert places w immediately above prevID in stack order. prevID == 0
// means "place at the bottom." A duplicate id is a no-op, logged as a
// warning, matching the teacher's policy for unexpected protocol replays.
func (r *Registry) Insert(w Window, prevID xproto.Window) {
	id := w.ID()
	if _, ok := r.index[id]; ok {
		log.Printf("registry: insert of already-present window %v ignored\n", id)
		return
	}

	var e *list.Element
	if prevID == 0 {
		e = r.order.PushBack(w)
	} else if prevElem, ok := r.index[prevID]; ok {
		e = r.order.InsertBefore(w, prevElem)
	} else {
		log.Printf("registry: insert of %v above missing %v, placing at bottom\n", id, prevID)
		e = r.order.PushBack(w)
	}
	r.index[id] = e
	r.notify(id)
	r.notify(r.neighborBelow(e))
}

// Remove takes w out of the id index immediately, per spec section 4.3's
// "the id-index is removed immediately so new windows with the same id do
// not collide." The stack node itself is left alone — callers finishing a
// fade-out call RemoveNode once the node should disappear from the order
// too.
func (r *Registry) Remove(id xproto.Window) {
	e, ok := r.index[id]
	if !ok {
		log.Printf("registry: remove of unknown window %v ignored\n", id)
		return
	}
	delete(r.index, id)
	below := r.neighborBelow(e)
	r.notify(below)
}

// RemoveNode drops the stack node for id entirely. Call this once a
// DESTROYING window's fade has completed; Remove must already have been
// called (or this is a no-op on a window that was never indexed, e.g. one
// finishing a second time).
func (r *Registry) RemoveNode(id xproto.Window) {
	for e := r.order.Front(); e != nil; e = e.Next() {
		if e.Value.(Window).ID() == id {
			below := r.neighborBelow(e)
			r.order.Remove(e)
			r.notify(below)
			return
		}
	}
}

// Restack moves id so that it sits immediately above newAboveID (0 means
// bottom). It is idempotent when newAboveID already is id's current
// neighbour. If newAboveID cannot be found (e.g. it is mid-DESTROYING and
// already out of the index), the call is reported and left as a no-op, per
// spec section 4.2.
func (r *Registry) Restack(id xproto.Window, newAboveID xproto.Window) {
	e, ok := r.index[id]
	if !ok {
		log.Printf("registry: restack of unknown window %v ignored\n", id)
		return
	}

	oldBelow := r.neighborBelow(e)

	if newAboveID == 0 {
		if r.order.Back() == e {
			return // already at the bottom
		}
	} else {
		target, ok := r.index[newAboveID]
		if !ok {
			log.Printf("registry: restack of %v above missing %v left as no-op\n", id, newAboveID)
			return
		}
		if prev := target.Prev(); prev == e {
			return // already immediately above newAboveID
		}
	}

	r.order.Remove(e)
	if newAboveID == 0 {
		e = r.order.PushBack(e.Value)
	} else {
		target := r.index[newAboveID]
		e = r.order.InsertBefore(e.Value, target)
	}
	r.index[id] = e

	newBelow := r.neighborBelow(e)
	r.notify(id)
	r.notify(oldBelow)
	r.notify(newBelow)
}

// Find looks up a window by id.
func (r *Registry) Find(id xproto.Window) (Window, bool) {
	e, ok := r.index[id]
	if !ok {
		return nil, false
	}
	return e.Value.(Window), true
}

// FindToplevel searches for a stack entry by client window id, for
// implementations where Window also exposes a ClientWindow() method. It
// walks the order rather than the index, since DESTROYING windows (absent
// from the index) can still legitimately be looked up this way by callers
// tracking their own state.
func FindToplevel[W interface {
	Window
	ClientWindow() xproto.Window
}](r *Registry, client xproto.Window) (W, bool) {
	var zero W
	for e := r.order.Front(); e != nil; e = e.Next() {
		w, ok := e.Value.(W)
		if ok && w.ClientWindow() == client {
			return w, true
		}
	}
	return zero, false
}

// IterTopToBottom calls fn for every window from the top of the stack
// down, stopping early if fn returns false.
func (r *Registry) IterTopToBottom(fn func(Window) bool) {
	for e := r.order.Front(); e != nil; e = e.Next() {
		if !fn(e.Value.(Window)) {
			return
		}
	}
}

// IterBottomToTop calls fn for every window from the bottom of the stack
// up, stopping early if fn returns false.
func (r *Registry) IterBottomToTop(fn func(Window) bool) {
	for e := r.order.Back(); e != nil; e = e.Prev() {
		if !fn(e.Value.(Window)) {
			return
		}
	}
}

// Len returns the number of windows currently in the stack order,
// including those already removed from the id index.
func (r *Registry) Len() int {
	return r.order.Len()
}
