package registry

import (
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWin struct {
	id xproto.Window
}

func (f fakeWin) ID() xproto.Window { return f.id }

type invalidations struct {
	ids []xproto.Window
}

func (inv *invalidations) InvalidateRegIgnore(id xproto.Window) {
	inv.ids = append(inv.ids, id)
}

func order(r *Registry) []xproto.Window {
	var ids []xproto.Window
	r.IterTopToBottom(func(w Window) bool {
		ids = append(ids, w.ID())
		return true
	})
	return ids
}

func TestInsertBottomAndAbove(t *testing.T) {
	r := New(nil)
	r.Insert(fakeWin{1}, 0) // becomes the only (bottom) window
	r.Insert(fakeWin{2}, 0) // also placed at the bottom, displacing 1 upward
	r.Insert(fakeWin{3}, 1) // placed immediately above window 1

	assert.Equal(t, []xproto.Window{3, 1, 2}, order(r))
}

func TestDuplicateInsertIsNoop(t *testing.T) {
	r := New(nil)
	r.Insert(fakeWin{1}, 0)
	r.Insert(fakeWin{1}, 0)
	assert.Equal(t, 1, r.Len())
}

func TestRestackIdempotent(t *testing.T) {
	r := New(nil)
	r.Insert(fakeWin{1}, 0)
	r.Insert(fakeWin{2}, 1)
	before := order(r)
	r.Restack(2, 1)
	r.Restack(2, 1)
	assert.Equal(t, before, order(r))
}

func TestRestackMissingTargetIsNoop(t *testing.T) {
	r := New(nil)
	r.Insert(fakeWin{1}, 0)
	r.Insert(fakeWin{2}, 1)
	before := order(r)
	r.Restack(1, 99)
	assert.Equal(t, before, order(r))
}

func TestRemoveKeepsNodeButDropsIndex(t *testing.T) {
	r := New(nil)
	r.Insert(fakeWin{1}, 0)
	r.Remove(1)
	_, ok := r.Find(1)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len()) // node still in stack order

	r.RemoveNode(1)
	assert.Equal(t, 0, r.Len())
}

func TestStackMutationInvalidatesNeighbours(t *testing.T) {
	inv := &invalidations{}
	r := New(inv)
	r.Insert(fakeWin{1}, 0) // bottom
	r.Insert(fakeWin{2}, 1) // above 1
	r.Insert(fakeWin{3}, 2) // above 2, top
	require.Equal(t, []xproto.Window{3, 2, 1}, order(r))

	inv.ids = nil
	r.Restack(1, 3) // move 1 (bottom) to sit immediately above 3 (top)
	require.NotEmpty(t, inv.ids)
	assert.Equal(t, []xproto.Window{1, 3, 2}, order(r))
}
