// Package soft implements gpu.Device on the CPU.
//
// Every program runs its Kernel once per target pixel. The device is slow but
// deterministic, which makes it the backend for headless rendering and for
// tests of the frame pipeline.
package soft

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

// DefaultSwapchainImages is the number of presentable images (triple buffering).
const DefaultSwapchainImages = 3

// texels is the backing store of one image: 4 floats per texel, row 0 at the bottom.
type texels struct {
	desc *gpu.Image
	pix  []float32
}

// Draw records one full-screen draw for inspection.
type Draw struct {
	Program string
	Target  *gpu.Framebuffer
	Inputs  map[int]*gpu.Image
}

// Device is a CPU implementation of gpu.Device.
type Device struct {
	nextID          uint32
	images          map[uint32]*texels
	framebuffers    map[uint32]*gpu.Framebuffer
	programs        map[uint32]*gpu.Program
	meshes          map[uint32]*gpu.Mesh
	swapchainImages int

	draws      []Draw
	submitted  int
	fenceWaits int
}

// Option configures a Device.
type Option func(*Device)

// WithSwapchainImages sets the number of presentable images.
func WithSwapchainImages(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.swapchainImages = n
		}
	}
}

// New creates a soft device.
func New(opts ...Option) *Device {
	d := &Device{
		images:          make(map[uint32]*texels),
		framebuffers:    make(map[uint32]*gpu.Framebuffer),
		programs:        make(map[uint32]*gpu.Program),
		meshes:          make(map[uint32]*gpu.Mesh),
		swapchainImages: DefaultSwapchainImages,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) id() uint32 {
	d.nextID++
	return d.nextID
}

// CreateImage allocates a zeroed image. Depth images start cleared to 1.
func (d *Device) CreateImage(label string, width, height int, format gpu.Format) (*gpu.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image %q: invalid size %dx%d", label, width, height)
	}
	img := &gpu.Image{ID: d.id(), Label: label, Width: width, Height: height, Format: format}
	t := &texels{desc: img, pix: make([]float32, width*height*4)}
	if format.IsDepth() {
		for i := 0; i < len(t.pix); i += 4 {
			t.pix[i] = 1
			t.pix[i+3] = 1
		}
	}
	d.images[img.ID] = t
	return img, nil
}

// UploadImage creates an RGBA8 image from decoded pixels.
func (d *Device) UploadImage(label string, src image.Image) (*gpu.Image, error) {
	b := src.Bounds()
	img, err := d.CreateImage(label, b.Dx(), b.Dy(), gpu.FormatRGBA8)
	if err != nil {
		return nil, err
	}
	t := d.images[img.ID]
	for y := 0; y < b.Dy(); y++ {
		row := b.Dy() - 1 - y // image rows run top-down
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (row*b.Dx() + x) * 4
			t.pix[i] = float32(c.R) / 255
			t.pix[i+1] = float32(c.G) / 255
			t.pix[i+2] = float32(c.B) / 255
			t.pix[i+3] = float32(c.A) / 255
		}
	}
	return img, nil
}

// DestroyImage frees an image.
func (d *Device) DestroyImage(img *gpu.Image) {
	if img != nil {
		delete(d.images, img.ID)
	}
}

// CreateFramebuffer groups attachments into a framebuffer.
func (d *Device) CreateFramebuffer(colour []*gpu.Image, depth *gpu.Image) (*gpu.Framebuffer, error) {
	if err := gpu.ValidateFramebuffer(colour, depth); err != nil {
		return nil, err
	}
	fb := &gpu.Framebuffer{ID: d.id(), Colour: append([]*gpu.Image(nil), colour...), Depth: depth}
	if len(colour) > 0 {
		fb.Width, fb.Height = colour[0].Width, colour[0].Height
	} else {
		fb.Width, fb.Height = depth.Width, depth.Height
	}
	d.framebuffers[fb.ID] = fb
	return fb, nil
}

// DestroyFramebuffer frees a framebuffer; swapchain framebuffers also free their image.
func (d *Device) DestroyFramebuffer(fb *gpu.Framebuffer) {
	if fb == nil {
		return
	}
	if fb.Swapchain {
		for _, img := range fb.Colour {
			d.DestroyImage(img)
		}
	}
	delete(d.framebuffers, fb.ID)
}

// Swapchain creates the presentable framebuffers.
func (d *Device) Swapchain(width, height int) ([]*gpu.Framebuffer, error) {
	fbs := make([]*gpu.Framebuffer, 0, d.swapchainImages)
	for i := 0; i < d.swapchainImages; i++ {
		img, err := d.CreateImage(fmt.Sprintf("swapchain%d", i), width, height, gpu.FormatRGBA8)
		if err != nil {
			for _, fb := range fbs {
				d.DestroyFramebuffer(fb)
			}
			return nil, err
		}
		fb, err := d.CreateFramebuffer([]*gpu.Image{img}, nil)
		if err != nil {
			d.DestroyImage(img)
			return nil, err
		}
		fb.Swapchain = true
		fbs = append(fbs, fb)
	}
	return fbs, nil
}

// CreateProgram registers a program. The soft device requires a kernel.
func (d *Device) CreateProgram(src gpu.ProgramSource) (*gpu.Program, error) {
	if src.Kernel == nil {
		return nil, fmt.Errorf("program %q: %w: no CPU kernel", src.Name, gpu.ErrUnsupported)
	}
	p := &gpu.Program{ID: d.id(), Name: src.Name, Kernel: src.Kernel}
	d.programs[p.ID] = p
	return p, nil
}

// DestroyProgram frees a program.
func (d *Device) DestroyProgram(p *gpu.Program) {
	if p != nil {
		delete(d.programs, p.ID)
	}
}

// CreateMesh is unsupported: the soft device only runs full-screen kernels.
func (d *Device) CreateMesh(vertices []float32) (*gpu.Mesh, error) {
	return nil, gpu.ErrUnsupported
}

// DestroyMesh is a no-op.
func (d *Device) DestroyMesh(m *gpu.Mesh) {}

// Begin starts a command stream. Commands execute immediately.
func (d *Device) Begin() gpu.CommandStream {
	return &commands{dev: d, uniforms: make(map[uint32]*gpu.Uniforms)}
}

// Submit finishes a command stream and returns an already signalled fence.
func (d *Device) Submit(cs gpu.CommandStream) (gpu.Fence, error) {
	if err := cs.Err(); err != nil {
		return nil, err
	}
	d.submitted++
	return &fence{dev: d}, nil
}

// ReadPixels converts a colour image into a top-down RGBA image.
func (d *Device) ReadPixels(img *gpu.Image) (*image.RGBA, error) {
	t, err := d.lookup(img)
	if err != nil {
		return nil, err
	}
	w, h := img.Width, img.Height
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := h - 1 - y
		for x := 0; x < w; x++ {
			i := (row*w + x) * 4
			c := mgl32.Vec4{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
			if img.Format.IsDepth() {
				c = mgl32.Vec4{c[0], c[0], c[0], 1}
			}
			out.SetRGBA(x, y, color.RGBA{R: to8(c[0]), G: to8(c[1]), B: to8(c[2]), A: to8(c[3])})
		}
	}
	return out, nil
}

// Close releases everything.
func (d *Device) Close() {
	d.images = make(map[uint32]*texels)
	d.framebuffers = make(map[uint32]*gpu.Framebuffer)
	d.programs = make(map[uint32]*gpu.Program)
	d.meshes = make(map[uint32]*gpu.Mesh)
}

// Pixel returns the stored value of one texel, (0,0) being bottom-left.
func (d *Device) Pixel(img *gpu.Image, x, y int) mgl32.Vec4 {
	t, err := d.lookup(img)
	if err != nil {
		return mgl32.Vec4{}
	}
	return t.at(x, y)
}

// Fill writes every texel of img from fn, quantising like a draw would.
func (d *Device) Fill(img *gpu.Image, fn func(x, y int) mgl32.Vec4) {
	t, err := d.lookup(img)
	if err != nil {
		return
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			t.set(x, y, fn(x, y))
		}
	}
}

// Draws returns the draws issued since the device was created.
func (d *Device) Draws() []Draw {
	return d.draws
}

// ResetDraws clears the draw log.
func (d *Device) ResetDraws() {
	d.draws = d.draws[:0]
}

// LiveImages returns the number of images not yet destroyed.
func (d *Device) LiveImages() int {
	return len(d.images)
}

// LiveFramebuffers returns the number of framebuffers not yet destroyed.
func (d *Device) LiveFramebuffers() int {
	return len(d.framebuffers)
}

// FenceWaits returns how many times a fence from this device was waited on.
func (d *Device) FenceWaits() int {
	return d.fenceWaits
}

// Submitted returns the number of submitted command streams.
func (d *Device) Submitted() int {
	return d.submitted
}

func (d *Device) lookup(img *gpu.Image) (*texels, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	t, ok := d.images[img.ID]
	if !ok {
		return nil, fmt.Errorf("image %q (%d) was destroyed", img.Label, img.ID)
	}
	return t, nil
}

func (t *texels) at(x, y int) mgl32.Vec4 {
	w, h := t.desc.Width, t.desc.Height
	x = clampInt(x, 0, w-1)
	y = clampInt(y, 0, h-1)
	i := (y*w + x) * 4
	return mgl32.Vec4{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

func (t *texels) set(x, y int, c mgl32.Vec4) {
	if t.desc.Format == gpu.FormatRGBA8 {
		for k := range c {
			c[k] = float32(to8(c[k])) / 255
		}
	}
	i := (y*t.desc.Width + x) * 4
	t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3] = c[0], c[1], c[2], c[3]
}

func to8(v float32) uint8 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(float64(v) * 255))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type fence struct {
	dev    *Device
	waited bool
}

func (f *fence) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !f.waited {
		f.waited = true
		f.dev.fenceWaits++
	}
	return nil
}

func (f *fence) Signalled() bool {
	return true
}
