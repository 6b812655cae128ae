package soft

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

const maxUnits = 16

type commands struct {
	dev      *Device
	fb       *gpu.Framebuffer
	prog     *gpu.Program
	uniforms map[uint32]*gpu.Uniforms
	bound    [maxUnits]*gpu.Image
	err      error
}

func (c *commands) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *commands) Err() error {
	return c.err
}

func (c *commands) BeginPass(fb *gpu.Framebuffer, clear []gpu.ClearValue) {
	if fb == nil {
		c.fail(errors.New("begin pass: nil framebuffer"))
		return
	}
	if _, ok := c.dev.framebuffers[fb.ID]; !ok {
		c.fail(fmt.Errorf("begin pass: framebuffer %d was destroyed", fb.ID))
		return
	}
	c.fb = fb
	for i, img := range fb.Colour {
		if i < len(clear) {
			c.clearImage(img, clear[i].Colour)
		}
	}
	if fb.Depth != nil && len(clear) > len(fb.Colour) {
		d := clear[len(fb.Colour)].Depth
		c.clearImage(fb.Depth, mgl32.Vec4{d, d, d, 1})
	}
}

func (c *commands) clearImage(img *gpu.Image, v mgl32.Vec4) {
	t, err := c.dev.lookup(img)
	if err != nil {
		c.fail(err)
		return
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			t.set(x, y, v)
		}
	}
}

func (c *commands) EndPass() {
	c.fb = nil
}

func (c *commands) UseProgram(p *gpu.Program) {
	if p == nil {
		c.fail(errors.New("use program: nil program"))
		return
	}
	c.prog = p
}

func (c *commands) current() *gpu.Uniforms {
	if c.prog == nil {
		c.fail(errors.New("uniform set without a bound program"))
		return gpu.NewUniforms()
	}
	u, ok := c.uniforms[c.prog.ID]
	if !ok {
		u = gpu.NewUniforms()
		c.uniforms[c.prog.ID] = u
	}
	return u
}

func (c *commands) BindImage(unit int, img *gpu.Image) {
	if unit < 0 || unit >= maxUnits {
		c.fail(fmt.Errorf("bind image: unit %d out of range", unit))
		return
	}
	c.bound[unit] = img
}

func (c *commands) SetInt(name string, v int32) { c.current().SetInt(name, v) }
func (c *commands) SetFloat(name string, v float32) { c.current().SetFloats(name, v) }
func (c *commands) SetVec2(name string, v mgl32.Vec2) { c.current().SetFloats(name, v[:]...) }
func (c *commands) SetVec3(name string, v mgl32.Vec3) { c.current().SetFloats(name, v[:]...) }
func (c *commands) SetMat4(name string, m mgl32.Mat4) { c.current().SetMat4(name, m) }
func (c *commands) SetFloatArray(name string, components int, v []float32) {
	c.current().SetFloats(name, v...)
}

func (c *commands) DrawFullscreen() {
	if c.err != nil {
		return
	}
	if c.fb == nil {
		c.fail(errors.New("draw outside of a pass"))
		return
	}
	if c.prog == nil || c.prog.Kernel == nil {
		c.fail(errors.New("draw without a program"))
		return
	}

	in := &input{dev: c.dev, uniforms: c.current(), w: c.fb.Width, h: c.fb.Height}
	inputs := make(map[int]*gpu.Image)
	for unit, img := range c.bound {
		if img == nil {
			continue
		}
		t, err := c.dev.lookup(img)
		if err != nil {
			c.fail(fmt.Errorf("draw %s: unit %d: %w", c.prog.Name, unit, err))
			return
		}
		in.units[unit] = t
		inputs[unit] = img
	}

	targets := make([]*texels, len(c.fb.Colour))
	for i, img := range c.fb.Colour {
		t, err := c.dev.lookup(img)
		if err != nil {
			c.fail(err)
			return
		}
		targets[i] = t
	}
	var depth *texels
	if c.fb.Depth != nil {
		t, err := c.dev.lookup(c.fb.Depth)
		if err != nil {
			c.fail(err)
			return
		}
		depth = t
	}

	w, h := c.fb.Width, c.fb.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			frag := gpu.Fragment{
				X: x, Y: y,
				U: (float32(x) + 0.5) / float32(w),
				V: (float32(y) + 0.5) / float32(h),
			}
			var out gpu.FragmentOutput
			c.prog.Kernel(in, frag, &out)
			if out.Discard {
				continue
			}
			if depth != nil && out.WriteDepth {
				if out.Depth >= depth.at(x, y)[0] {
					continue
				}
				depth.set(x, y, mgl32.Vec4{out.Depth, out.Depth, out.Depth, 1})
			}
			for i, t := range targets {
				t.set(x, y, out.Colour[i])
			}
		}
	}

	c.dev.draws = append(c.dev.draws, Draw{Program: c.prog.Name, Target: c.fb, Inputs: inputs})
}

func (c *commands) DrawMesh(m *gpu.Mesh, model mgl32.Mat4) {
	c.fail(fmt.Errorf("draw mesh: %w", gpu.ErrUnsupported))
}

// Blit copies src into the first colour attachment of dst, scaling bilinearly.
func (c *commands) Blit(src *gpu.Image, dst *gpu.Framebuffer) {
	if dst == nil || len(dst.Colour) == 0 {
		c.fail(errors.New("blit: destination has no colour attachment"))
		return
	}
	st, err := c.dev.lookup(src)
	if err != nil {
		c.fail(fmt.Errorf("blit: %w", err))
		return
	}
	dt, err := c.dev.lookup(dst.Colour[0])
	if err != nil {
		c.fail(fmt.Errorf("blit: %w", err))
		return
	}

	if src.Width == dst.Width && src.Height == dst.Height {
		for y := 0; y < dst.Height; y++ {
			for x := 0; x < dst.Width; x++ {
				dt.set(x, y, st.at(x, y))
			}
		}
		return
	}

	from := toRGBA64(st)
	to := image.NewRGBA64(image.Rect(0, 0, dst.Width, dst.Height))
	draw.BiLinear.Scale(to, to.Bounds(), from, from.Bounds(), draw.Src, nil)
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			p := to.RGBA64At(x, y)
			dt.set(x, y, mgl32.Vec4{
				float32(p.R) / 0xffff, float32(p.G) / 0xffff,
				float32(p.B) / 0xffff, float32(p.A) / 0xffff,
			})
		}
	}
}

// toRGBA64 keeps the bottom-up row order; the scale is symmetric so it does not matter.
func toRGBA64(t *texels) *image.RGBA64 {
	w, h := t.desc.Width, t.desc.Height
	img := image.NewRGBA64(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := t.at(x, y)
			img.SetRGBA64(x, y, color.RGBA64{R: to16(v[0]), G: to16(v[1]), B: to16(v[2]), A: to16(v[3])})
		}
	}
	return img
}

func to16(v float32) uint16 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 1 {
		return 0xffff
	}
	return uint16(v*0xffff + 0.5)
}

type input struct {
	dev      *Device
	units    [maxUnits]*texels
	uniforms *gpu.Uniforms
	w, h     int
}

func (in *input) Uniforms() *gpu.Uniforms {
	return in.uniforms
}

func (in *input) TargetSize() (int, int) {
	return in.w, in.h
}

func (in *input) ImageSize(unit int) (int, int) {
	if unit < 0 || unit >= maxUnits || in.units[unit] == nil {
		return 0, 0
	}
	d := in.units[unit].desc
	return d.Width, d.Height
}

func (in *input) Fetch(unit, x, y int) mgl32.Vec4 {
	if unit < 0 || unit >= maxUnits || in.units[unit] == nil {
		return mgl32.Vec4{}
	}
	t := in.units[unit]
	v := t.at(x, y)
	if t.desc.Format.IsDepth() {
		return mgl32.Vec4{v[0], v[0], v[0], 1}
	}
	return v
}

func (in *input) Sample(unit int, u, v float32) mgl32.Vec4 {
	if unit < 0 || unit >= maxUnits || in.units[unit] == nil {
		return mgl32.Vec4{}
	}
	d := in.units[unit].desc
	fx := u*float32(d.Width) - 0.5
	fy := v*float32(d.Height) - 0.5
	x0, tx := split(fx)
	y0, ty := split(fy)

	a := in.Fetch(unit, x0, y0)
	b := in.Fetch(unit, x0+1, y0)
	c := in.Fetch(unit, x0, y0+1)
	e := in.Fetch(unit, x0+1, y0+1)

	bottom := a.Mul(1 - tx).Add(b.Mul(tx))
	top := c.Mul(1 - tx).Add(e.Mul(tx))
	return bottom.Mul(1 - ty).Add(top.Mul(ty))
}

// split returns the integer texel and the blend weight, snapping weights
// within rounding error of a texel centre so centre samples are exact.
func split(v float32) (int, float32) {
	i := int(v)
	if float32(i) > v {
		i--
	}
	f := v - float32(i)
	if f < 1e-4 {
		return i, 0
	}
	if f > 1-1e-4 {
		return i + 1, 0
	}
	return i, f
}
