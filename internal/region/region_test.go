package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyOperandsWellDefined(t *testing.T) {
	e := Empty()
	r := FromRect(Rect{0, 0, 10, 10})

	assert.True(t, e.Union(e).IsEmpty())
	assert.True(t, e.Intersect(r).IsEmpty())
	assert.True(t, r.Intersect(e).IsEmpty())
	assert.True(t, e.Subtract(r).IsEmpty())
	assert.False(t, r.Subtract(e).IsEmpty())
	assert.True(t, e.Translate(5, 5).IsEmpty())

	var nilRegion *Region
	assert.True(t, nilRegion.IsEmpty())
	assert.True(t, nilRegion.Union(r).Subtract(r).IsEmpty())
}

func TestUnion(t *testing.T) {
	a := FromRect(Rect{0, 0, 10, 10})
	b := FromRect(Rect{20, 20, 10, 10})
	u := a.Union(b)
	assert.Len(t, u.Rects(), 2)
}

func TestIntersect(t *testing.T) {
	a := FromRect(Rect{0, 0, 10, 10})
	b := FromRect(Rect{5, 5, 10, 10})
	i := a.Intersect(b)
	assert.Equal(t, []Rect{{5, 5, 5, 5}}, i.Rects())
}

func TestSubtractFullyCovers(t *testing.T) {
	a := FromRect(Rect{0, 0, 10, 10})
	b := FromRect(Rect{-5, -5, 20, 20})
	assert.True(t, a.Subtract(b).IsEmpty())
}

func TestSubtractSplitsIntoBands(t *testing.T) {
	a := FromRect(Rect{0, 0, 10, 10})
	b := FromRect(Rect{4, 4, 2, 2})
	d := a.Subtract(b)
	var area int32
	for _, r := range d.Rects() {
		area += r.W * r.H
	}
	assert.Equal(t, int32(96), area)
}

func TestTranslate(t *testing.T) {
	a := FromRect(Rect{0, 0, 10, 10})
	tr := a.Translate(3, 4)
	assert.Equal(t, []Rect{{3, 4, 10, 10}}, tr.Rects())
}

func TestRefCounting(t *testing.T) {
	r := FromRect(Rect{0, 0, 1, 1})
	r.Ref()
	r.Unref()
	assert.False(t, r.IsEmpty())
	r.Unref()
	assert.True(t, r.IsEmpty())
}
