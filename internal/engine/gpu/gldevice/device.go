// Package gldevice implements gpu.Device on OpenGL 4.1 core.
// All calls must be made from the thread that owns the GL context.
package gldevice

import (
	"fmt"
	"image"
	"image/draw"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/logger"
)

// Device is an OpenGL implementation of gpu.Device.
type Device struct {
	images   map[uint32]*gpu.Image
	caches   map[uint32]*uniformCache
	emptyVAO uint32 // Full-screen triangles are generated from gl_VertexID
	readFBO  uint32 // Scratch FBO for blits and read-back
	meshVBO  map[uint32]uint32
}

// New initialises the GL function pointers and the device's scratch objects.
// Must be called after the GL context is current.
func New() (*Device, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("initializing OpenGL: %w", err)
	}

	logger.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	d := &Device{
		images:  make(map[uint32]*gpu.Image),
		caches:  make(map[uint32]*uniformCache),
		meshVBO: make(map[uint32]uint32),
	}
	gl.GenVertexArrays(1, &d.emptyVAO)
	gl.GenFramebuffers(1, &d.readFBO)
	return d, nil
}

type texFormat struct {
	internal int32
	format   uint32
	xtype    uint32
}

func glFormat(f gpu.Format) texFormat {
	switch f {
	case gpu.FormatRGBA16F:
		return texFormat{gl.RGBA16F, gl.RGBA, gl.FLOAT}
	case gpu.FormatDepth24:
		return texFormat{gl.DEPTH_COMPONENT24, gl.DEPTH_COMPONENT, gl.FLOAT}
	case gpu.FormatDepth32F:
		return texFormat{gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT}
	default:
		return texFormat{gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE}
	}
}

// CreateImage allocates a 2D texture usable as attachment and sampler input.
func (d *Device) CreateImage(label string, width, height int, format gpu.Format) (*gpu.Image, error) {
	return d.createTexture(label, width, height, format, nil)
}

func (d *Device) createTexture(label string, width, height int, format gpu.Format, pixels unsafe.Pointer) (*gpu.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image %q: invalid size %dx%d", label, width, height)
	}
	f := glFormat(format)

	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, f.internal, int32(width), int32(height), 0, f.format, f.xtype, pixels)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)

	if format.IsDepth() {
		// Samples outside the shadow map read as "not occluded".
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_BORDER)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_BORDER)
		border := []float32{1, 1, 1, 1}
		gl.TexParameterfv(gl.TEXTURE_2D, gl.TEXTURE_BORDER_COLOR, &border[0])
	} else {
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)

	img := &gpu.Image{ID: tex, Label: label, Width: width, Height: height, Format: format}
	d.images[tex] = img
	return img, nil
}

// UploadImage uploads decoded pixels as an RGBA8 texture.
func (d *Device) UploadImage(label string, src image.Image) (*gpu.Image, error) {
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	// GL texture rows start at the bottom.
	for y := 0; y < b.Dy(); y++ {
		dst := image.Rect(0, b.Dy()-1-y, b.Dx(), b.Dy()-y)
		draw.Draw(rgba, dst, src, image.Pt(b.Min.X, b.Min.Y+y), draw.Src)
	}
	if len(rgba.Pix) == 0 {
		return nil, fmt.Errorf("image %q is empty", label)
	}
	return d.createTexture(label, b.Dx(), b.Dy(), gpu.FormatRGBA8, gl.Ptr(rgba.Pix))
}

// DestroyImage deletes the texture.
func (d *Device) DestroyImage(img *gpu.Image) {
	if img == nil || img.ID == 0 {
		return
	}
	id := img.ID
	gl.DeleteTextures(1, &id)
	delete(d.images, id)
}

// CreateFramebuffer creates an FBO with the given attachments.
func (d *Device) CreateFramebuffer(colour []*gpu.Image, depth *gpu.Image) (*gpu.Framebuffer, error) {
	if err := gpu.ValidateFramebuffer(colour, depth); err != nil {
		return nil, err
	}

	var fbo uint32
	gl.GenFramebuffers(1, &fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)

	drawBuffers := make([]uint32, len(colour))
	for i, img := range colour {
		attachment := uint32(gl.COLOR_ATTACHMENT0 + i)
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, attachment, gl.TEXTURE_2D, img.ID, 0)
		drawBuffers[i] = attachment
	}
	if depth != nil {
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.TEXTURE_2D, depth.ID, 0)
	}

	if len(drawBuffers) > 0 {
		gl.DrawBuffers(int32(len(drawBuffers)), &drawBuffers[0])
	} else {
		// Depth-only, e.g. the shadow map
		gl.DrawBuffer(gl.NONE)
		gl.ReadBuffer(gl.NONE)
	}

	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.DeleteFramebuffers(1, &fbo)
		return nil, fmt.Errorf("framebuffer incomplete: 0x%x", status)
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	fb := &gpu.Framebuffer{ID: fbo, Colour: append([]*gpu.Image(nil), colour...), Depth: depth}
	if len(colour) > 0 {
		fb.Width, fb.Height = colour[0].Width, colour[0].Height
	} else {
		fb.Width, fb.Height = depth.Width, depth.Height
	}
	return fb, nil
}

// DestroyFramebuffer deletes the FBO. The default framebuffer is never deleted.
func (d *Device) DestroyFramebuffer(fb *gpu.Framebuffer) {
	if fb == nil || fb.Swapchain || fb.ID == 0 {
		return
	}
	id := fb.ID
	gl.DeleteFramebuffers(1, &id)
}

// Swapchain returns the window's default framebuffer.
// GL presents through SwapBuffers, so there is exactly one image.
func (d *Device) Swapchain(width, height int) ([]*gpu.Framebuffer, error) {
	return []*gpu.Framebuffer{{ID: 0, Width: width, Height: height, Swapchain: true}}, nil
}

// CreateProgram compiles and links a program.
func (d *Device) CreateProgram(src gpu.ProgramSource) (*gpu.Program, error) {
	id, err := compileProgram(src.Vertex, src.Fragment)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", src.Name, err)
	}
	d.caches[id] = newUniformCache(id)
	logger.Debug("program created", zap.String("name", src.Name), zap.Uint32("id", id))
	return &gpu.Program{ID: id, Name: src.Name, Kernel: src.Kernel}, nil
}

// DestroyProgram deletes the program.
func (d *Device) DestroyProgram(p *gpu.Program) {
	if p == nil || p.ID == 0 {
		return
	}
	gl.DeleteProgram(p.ID)
	delete(d.caches, p.ID)
}

// CreateMesh uploads interleaved position/normal/colour vertices.
func (d *Device) CreateMesh(vertices []float32) (*gpu.Mesh, error) {
	if len(vertices) == 0 || len(vertices)%gpu.VertexStride != 0 {
		return nil, fmt.Errorf("mesh: %d floats is not a multiple of %d", len(vertices), gpu.VertexStride)
	}

	var vao, vbo uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)

	stride := int32(gpu.VertexStride * 4)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(1, 3, gl.FLOAT, false, stride, 3*4)
	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointerWithOffset(2, 3, gl.FLOAT, false, stride, 6*4)
	gl.EnableVertexAttribArray(2)

	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindVertexArray(0)

	d.meshVBO[vao] = vbo
	return &gpu.Mesh{ID: vao, VertexCount: int32(len(vertices) / gpu.VertexStride)}, nil
}

// DestroyMesh deletes the mesh buffers.
func (d *Device) DestroyMesh(m *gpu.Mesh) {
	if m == nil || m.ID == 0 {
		return
	}
	if vbo, ok := d.meshVBO[m.ID]; ok {
		gl.DeleteBuffers(1, &vbo)
		delete(d.meshVBO, m.ID)
	}
	vao := m.ID
	gl.DeleteVertexArrays(1, &vao)
}

// Begin starts a command stream. GL commands are issued immediately.
func (d *Device) Begin() gpu.CommandStream {
	return &commands{dev: d}
}

// Submit flushes the stream and inserts a fence after it.
func (d *Device) Submit(cs gpu.CommandStream) (gpu.Fence, error) {
	if err := cs.Err(); err != nil {
		return nil, err
	}
	if code := gl.GetError(); code != gl.NO_ERROR {
		return nil, fmt.Errorf("gl error 0x%x during frame", code)
	}
	sync := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	gl.Flush()
	return &fence{sync: sync}, nil
}

// ReadPixels reads a colour image back as top-down RGBA.
func (d *Device) ReadPixels(img *gpu.Image) (*image.RGBA, error) {
	if img == nil || img.Format.IsDepth() {
		return nil, fmt.Errorf("read pixels: need a colour image")
	}
	w, h := img.Width, img.Height
	pixels := make([]byte, w*h*4)

	var prev int32
	gl.GetIntegerv(gl.FRAMEBUFFER_BINDING, &prev)
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.readFBO)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, img.ID, 0)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(prev))

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	rowSize := w * 4
	for y := 0; y < h; y++ {
		src := (h - 1 - y) * rowSize
		copy(out.Pix[y*out.Stride:y*out.Stride+rowSize], pixels[src:src+rowSize])
	}
	return out, nil
}

// Close deletes the device's scratch objects.
func (d *Device) Close() {
	if d.emptyVAO != 0 {
		gl.DeleteVertexArrays(1, &d.emptyVAO)
		d.emptyVAO = 0
	}
	if d.readFBO != 0 {
		gl.DeleteFramebuffers(1, &d.readFBO)
		d.readFBO = 0
	}
	for id := range d.images {
		tex := id
		gl.DeleteTextures(1, &tex)
	}
	d.images = make(map[uint32]*gpu.Image)
}
