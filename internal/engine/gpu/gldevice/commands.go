package gldevice

import (
	"errors"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

type commands struct {
	dev   *Device
	fb    *gpu.Framebuffer
	prog  *gpu.Program
	cache *uniformCache
	err   error
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
	c.fb = fb
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.ID)
	gl.Viewport(0, 0, int32(fb.Width), int32(fb.Height))

	if fb.Depth != nil || fb.Swapchain {
		gl.Enable(gl.DEPTH_TEST)
		gl.DepthFunc(gl.LESS)
		gl.DepthMask(true)
	} else {
		gl.Disable(gl.DEPTH_TEST)
	}

	if fb.Swapchain {
		if len(clear) > 0 {
			v := clear[0].Colour
			gl.ClearColor(v[0], v[1], v[2], v[3])
			gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		}
		return
	}

	for i := range fb.Colour {
		if i < len(clear) {
			v := clear[i].Colour
			gl.ClearBufferfv(gl.COLOR, int32(i), &v[0])
		}
	}
	if fb.Depth != nil && len(clear) > len(fb.Colour) {
		d := clear[len(fb.Colour)].Depth
		gl.ClearBufferfv(gl.DEPTH, 0, &d)
	}
}

func (c *commands) EndPass() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	c.fb = nil
}

func (c *commands) UseProgram(p *gpu.Program) {
	if p == nil {
		c.fail(errors.New("use program: nil program"))
		return
	}
	c.prog = p
	c.cache = c.dev.caches[p.ID]
	if c.cache == nil {
		c.cache = newUniformCache(p.ID)
		c.dev.caches[p.ID] = c.cache
	}
	gl.UseProgram(p.ID)
}

func (c *commands) uniforms() *uniformCache {
	if c.cache == nil {
		c.fail(errors.New("uniform set without a bound program"))
		return nil
	}
	return c.cache
}

func (c *commands) BindImage(unit int, img *gpu.Image) {
	gl.ActiveTexture(uint32(gl.TEXTURE0 + unit))
	if img == nil {
		gl.BindTexture(gl.TEXTURE_2D, 0)
		return
	}
	gl.BindTexture(gl.TEXTURE_2D, img.ID)
}

func (c *commands) SetInt(name string, v int32) {
	if uc := c.uniforms(); uc != nil {
		uc.setInt(name, v)
	}
}

func (c *commands) SetFloat(name string, v float32) {
	if uc := c.uniforms(); uc != nil {
		uc.setFloat(name, v)
	}
}

func (c *commands) SetVec2(name string, v mgl32.Vec2) {
	if uc := c.uniforms(); uc != nil {
		uc.setVec2(name, v)
	}
}

func (c *commands) SetVec3(name string, v mgl32.Vec3) {
	if uc := c.uniforms(); uc != nil {
		uc.setVec3(name, v)
	}
}

func (c *commands) SetMat4(name string, m mgl32.Mat4) {
	if uc := c.uniforms(); uc != nil {
		uc.setMat4(name, m)
	}
}

func (c *commands) SetFloatArray(name string, components int, v []float32) {
	if uc := c.uniforms(); uc != nil {
		uc.setFloatArray(name, components, v)
	}
}

func (c *commands) DrawFullscreen() {
	if c.fb == nil {
		c.fail(errors.New("draw outside of a pass"))
		return
	}
	gl.Disable(gl.CULL_FACE)
	gl.BindVertexArray(c.dev.emptyVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
}

func (c *commands) DrawMesh(m *gpu.Mesh, model mgl32.Mat4) {
	if c.fb == nil {
		c.fail(errors.New("draw outside of a pass"))
		return
	}
	if m == nil {
		c.fail(errors.New("draw mesh: nil mesh"))
		return
	}
	c.SetMat4("model", model)
	gl.Enable(gl.CULL_FACE)
	gl.CullFace(gl.BACK)
	gl.BindVertexArray(m.ID)
	gl.DrawArrays(gl.TRIANGLES, 0, m.VertexCount)
	gl.BindVertexArray(0)
}

func (c *commands) Blit(src *gpu.Image, dst *gpu.Framebuffer) {
	if src == nil || dst == nil {
		c.fail(errors.New("blit: nil source or destination"))
		return
	}
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, c.dev.readFBO)
	gl.FramebufferTexture2D(gl.READ_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, src.ID, 0)
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, dst.ID)
	gl.BlitFramebuffer(
		0, 0, int32(src.Width), int32(src.Height),
		0, 0, int32(dst.Width), int32(dst.Height),
		gl.COLOR_BUFFER_BIT, gl.LINEAR,
	)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}
