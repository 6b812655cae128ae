package gpu

import "github.com/go-gl/mathgl/mgl32"

// Fragment identifies the target pixel a kernel invocation shades.
// U and V are the pixel centre in [0,1], V pointing up as in GL texture space.
type Fragment struct {
	X, Y int
	U, V float32
}

// FragmentOutput is what a kernel writes for one pixel.
type FragmentOutput struct {
	Colour     [MaxColourAttachments]mgl32.Vec4
	Depth      float32
	WriteDepth bool
	Discard    bool
}

// KernelInput is the view a kernel gets of bound images and uniforms.
type KernelInput interface {
	// Sample reads the image bound to unit with bilinear filtering, clamped to edge.
	Sample(unit int, u, v float32) mgl32.Vec4
	// Fetch reads one texel, clamped to edge.
	Fetch(unit, x, y int) mgl32.Vec4
	ImageSize(unit int) (width, height int)
	TargetSize() (width, height int)
	Uniforms() *Uniforms
}

// Kernel is the CPU form of a full-screen fragment program.
type Kernel func(in KernelInput, frag Fragment, out *FragmentOutput)
