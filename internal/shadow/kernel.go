// Package shadow precomputes the Gaussian convolution kernel used to
// rasterize drop shadows, and caches the resulting shadow images per
// window size so repeated frames of an unchanging window don't redo the
// convolution, per spec section 4.5/L.
package shadow

import (
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vellumwm/vellum/internal/backend"
)

// gaussianRadius is the number of standard deviations the kernel extends
// to either side of its center, matching the teacher's blur-radius
// conventions for separable Gaussian kernels.
const gaussianRadius = 3.0

// BuildKernel precomputes a square, normalized Gaussian convolution
// kernel for the given shadow radius.
func BuildKernel(radius int) *backend.Kernel {
	if radius < 1 {
		radius = 1
	}
	sigma := float64(radius) / gaussianRadius
	size := 2*radius + 1
	data := make([]float64, size*size)

	var sum float64
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			v := gaussian2D(float64(x), float64(y), sigma)
			data[(y+radius)*size+(x+radius)] = v
			sum += v
		}
	}
	for i := range data {
		data[i] /= sum
	}

	return &backend.Kernel{Width: size, Height: size, Data: data}
}

func gaussian2D(x, y, sigma float64) float64 {
	return math.Exp(-(x*x+y*y)/(2*sigma*sigma)) / (2 * math.Pi * sigma * sigma)
}

// cacheKey identifies a cached shadow image by the geometry and tint it
// was rendered for.
type cacheKey struct {
	w, h       int
	r, g, b, a uint16
}

// Cache bounds a per-window shadow image cache by entry count, per spec
// section L: "shadow images are cached and only rebuilt when a window's
// size changes."
type Cache struct {
	lru *lru.Cache
}

// NewCache builds a shadow image cache holding at most capacity entries,
// evicting least-recently-used shadows first.
func NewCache(capacity int) (*Cache, error) {
	if capacity < 1 {
		capacity = 1
	}
	l, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("shadow: new cache: %w", err)
	}
	return &Cache{lru: l}, nil
}

// Get returns a previously rendered shadow image for the given geometry
// and tint, if still cached.
func (c *Cache) Get(w, h int, r, g, b, a uint16) (backend.Image, bool) {
	v, ok := c.lru.Get(cacheKey{w, h, r, g, b, a})
	if !ok {
		return nil, false
	}
	return v.(backend.Image), true
}

// Put stores img as the cached shadow for the given geometry and tint.
func (c *Cache) Put(w, h int, r, g, b, a uint16, img backend.Image) {
	c.lru.Add(cacheKey{w, h, r, g, b, a}, img)
}

// Purge drops every cached shadow, e.g. on a backend re-init where old
// Image handles are no longer valid.
func (c *Cache) Purge() {
	c.lru.Purge()
}
