// Package frame holds the per-frame state passed through the render pipeline.
package frame

import (
	"context"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/camera"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/lighting"
)

// Context is everything one frame needs: the display size, the command
// stream being recorded, the viewpoint and the lights.
type Context struct {
	ctx context.Context

	// Index counts frames since the pipeline started.
	Index uint64
	// ImageIndex is the swapchain image being rendered to.
	ImageIndex int

	// Width and Height are the display size for this frame.
	Width  int
	Height int

	Commands gpu.CommandStream
	Camera   camera.Camera
	Sun      lighting.Sun
	Lights   []lighting.Light
}

// New creates a frame context bound to ctx.
func New(ctx context.Context, width, height int) *Context {
	return &Context{ctx: ctx, Width: width, Height: height}
}

// Context returns the frame's context. It is never nil.
func (f *Context) Context() context.Context {
	if f.ctx == nil {
		return context.Background()
	}
	return f.ctx
}

// WithContext returns a shallow copy of f bound to ctx.
func (f *Context) WithContext(ctx context.Context) *Context {
	f2 := *f
	f2.ctx = ctx
	return &f2
}

// Zero reports whether the display has no area, in which case the frame is skipped.
func (f *Context) Zero() bool {
	return f.Width <= 0 || f.Height <= 0
}

// LightDirection returns the direction the shadow-casting sunlight travels.
func (f *Context) LightDirection() mgl32.Vec3 {
	return f.Sun.Direction()
}
