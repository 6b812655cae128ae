// Package lighting provides light sources for the deferred lighting pass.
package lighting

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxLights is the maximum number of lights the lighting pass accepts per frame.
const MaxLights = 64

// ErrTooManyLights is returned when a frame submits more than MaxLights lights.
var ErrTooManyLights = errors.New("too many lights")

// Light is a point or directional light source.
type Light struct {
	// Position is the world position of a point light, or the direction the
	// light travels for a directional light.
	Position    mgl32.Vec3
	Color       mgl32.Vec3 // RGB (0-1 range, may exceed 1 for bright lights)
	Radius      float32    // Falloff distance; <= 0 means no attenuation
	Directional bool
}

// Buffer holds lights flattened for GPU upload.
// The flat slices are reused between frames.
type Buffer struct {
	lights    []Light
	positions []float32 // vec4 per light, w = 0 for directional lights
	colors    []float32 // vec3 per light
	radii     []float32
}

// NewBuffer creates an empty light buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		lights:    make([]Light, 0, MaxLights),
		positions: make([]float32, 0, MaxLights*4),
		colors:    make([]float32, 0, MaxLights*3),
		radii:     make([]float32, 0, MaxLights),
	}
}

// Clear removes all lights from the buffer.
func (b *Buffer) Clear() {
	b.lights = b.lights[:0]
	b.positions = b.positions[:0]
	b.colors = b.colors[:0]
	b.radii = b.radii[:0]
}

// Set replaces all lights in the buffer.
func (b *Buffer) Set(lights []Light) error {
	if len(lights) > MaxLights {
		return fmt.Errorf("%w: %d submitted, max %d", ErrTooManyLights, len(lights), MaxLights)
	}
	b.Clear()
	for _, l := range lights {
		b.add(l)
	}
	return nil
}

// Add appends one light. Fails when the buffer is full.
func (b *Buffer) Add(l Light) error {
	if len(b.lights) >= MaxLights {
		return fmt.Errorf("%w: max %d", ErrTooManyLights, MaxLights)
	}
	b.add(l)
	return nil
}

func (b *Buffer) add(l Light) {
	w := float32(1)
	if l.Directional {
		w = 0
		l.Position = normalize(l.Position)
	}
	b.lights = append(b.lights, l)
	b.positions = append(b.positions, l.Position[0], l.Position[1], l.Position[2], w)
	b.colors = append(b.colors, l.Color[0], l.Color[1], l.Color[2])
	b.radii = append(b.radii, l.Radius)
}

// Count returns the number of lights in the buffer.
func (b *Buffer) Count() int {
	return len(b.lights)
}

// Lights returns the buffered lights.
func (b *Buffer) Lights() []Light {
	return b.lights
}

// Positions returns positions as a flat slice for GPU upload.
// Format: [x0, y0, z0, w0, x1, ...]
func (b *Buffer) Positions() []float32 {
	return b.positions
}

// Colors returns colors as a flat slice for GPU upload.
// Format: [r0, g0, b0, r1, g1, b1, ...]
func (b *Buffer) Colors() []float32 {
	return b.colors
}

// Radii returns attenuation radii as a flat slice for GPU upload.
func (b *Buffer) Radii() []float32 {
	return b.radii
}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() == 0 {
		return mgl32.Vec3{0, -1, 0}
	}
	return v.Normalize()
}
