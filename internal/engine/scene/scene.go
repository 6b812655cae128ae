// Package scene provides the demo world drawn by the render pipeline:
// a textured ground plane, a few spheres and an orbiting lamp.
//
// On devices with mesh support the world is uploaded as vertex buffers and
// drawn with the geometry and shadow programs. Devices without meshes (the
// soft backend) get full-screen kernels that ray cast the same primitives,
// so both backends fill identical g-buffers.
package scene

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-render/internal/assets"
	"github.com/Faultbox/midgard-render/internal/engine/frame"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/lighting"
	"github.com/Faultbox/midgard-render/internal/engine/shader"
	"github.com/Faultbox/midgard-render/internal/engine/shadow"
	"github.com/Faultbox/midgard-render/internal/logger"
)

// Shape is the primitive an Object is made of.
type Shape int

// Shapes.
const (
	Ground Shape = iota // Square in the XZ plane, Size is the half extent
	Sphere              // Size is the radius
)

// Object is one primitive of the world.
type Object struct {
	Name           string
	Shape          Shape
	Centre         mgl32.Vec3
	Size           float32
	Colour         mgl32.Vec3
	Textured       bool
	TextureScale   float32 // Texture repeats per world unit
	Unlit          bool
	ReceivesShadow bool
	CastsShadow    bool

	mesh *gpu.Mesh
}

// Model returns the object's model matrix.
func (o *Object) Model() mgl32.Mat4 {
	return mgl32.Translate3D(o.Centre[0], o.Centre[1], o.Centre[2]).Mul4(mgl32.Scale3D(o.Size, o.Size, o.Size))
}

// Options configures the demo world.
type Options struct {
	// GroundTexture is loaded through the asset manager. Empty uses a
	// generated checkerboard.
	GroundTexture string
	GroundSize    float32
	LampOrbit     float32
	LampColour    mgl32.Vec3
	LampRadius    float32
}

// DefaultOptions returns the demo defaults.
func DefaultOptions() Options {
	return Options{
		GroundSize: 40,
		LampOrbit:  9,
		LampColour: mgl32.Vec3{1, 0.75, 0.35},
		LampRadius: 14,
	}
}

// Scene is the demo world.
type Scene struct {
	dev     gpu.Device
	opts    Options
	objects []*Object
	lamp    *Object

	meshes   bool
	geometry *gpu.Program
	shadows  *gpu.Program
	texture  *gpu.Image

	// State of the pass being drawn, read by the ray cast kernels.
	projectionView        mgl32.Mat4
	projectionViewInverse mgl32.Mat4
	casters               []*Object
}

// New builds the demo world on dev.
func New(dev gpu.Device, am *assets.Manager, opts Options) (*Scene, error) {
	s := &Scene{dev: dev, opts: opts}
	s.objects = []*Object{
		{Name: "ground", Shape: Ground, Size: opts.GroundSize, Colour: mgl32.Vec3{0.8, 0.8, 0.75},
			Textured: true, TextureScale: 0.125, ReceivesShadow: true},
		{Name: "red", Shape: Sphere, Centre: mgl32.Vec3{0, 2, 0}, Size: 2, Colour: mgl32.Vec3{0.8, 0.2, 0.15},
			ReceivesShadow: true, CastsShadow: true},
		{Name: "green", Shape: Sphere, Centre: mgl32.Vec3{-6, 1.5, 4}, Size: 1.5, Colour: mgl32.Vec3{0.2, 0.7, 0.25},
			ReceivesShadow: true, CastsShadow: true},
		{Name: "blue", Shape: Sphere, Centre: mgl32.Vec3{5, 3, -4}, Size: 3, Colour: mgl32.Vec3{0.2, 0.35, 0.8},
			ReceivesShadow: true, CastsShadow: true},
		{Name: "lamp", Shape: Sphere, Size: 0.4, Colour: opts.LampColour, Unlit: true},
	}
	s.lamp = s.objects[len(s.objects)-1]
	s.Update(0)

	if err := s.upload(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.createPrograms(am); err != nil {
		s.Destroy()
		return nil, err
	}

	var err error
	if opts.GroundTexture != "" {
		s.texture, err = am.Texture(dev, opts.GroundTexture)
	} else {
		s.texture, err = dev.UploadImage("ground", checkerboard(64, 8))
	}
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("ground texture: %w", err)
	}

	logger.Info("scene created",
		zap.Int("objects", len(s.objects)),
		zap.Bool("meshes", s.meshes))
	return s, nil
}

// upload creates vertex buffers, or switches to ray casting when the device has none.
func (s *Scene) upload() error {
	s.meshes = true
	for _, o := range s.objects {
		var verts []float32
		switch o.Shape {
		case Ground:
			verts = PlaneVertices(o.Colour)
		case Sphere:
			verts = SphereVertices(16, 24, o.Colour)
		}
		mesh, err := s.dev.CreateMesh(verts)
		if errors.Is(err, gpu.ErrUnsupported) {
			s.releaseMeshes()
			s.meshes = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("uploading %s: %w", o.Name, err)
		}
		o.mesh = mesh
	}
	return nil
}

func (s *Scene) createPrograms(am *assets.Manager) error {
	geom := assets.ProgramSpec{Name: "geometry", Vertex: shader.GeometryVertex, Fragment: shader.GeometryFragment}
	shad := assets.ProgramSpec{Name: "shadow", Vertex: shader.ShadowVertex, Fragment: shader.ShadowFragment}
	if !s.meshes {
		geom.Kernel = s.geometryKernel
		shad.Kernel = s.shadowKernel
	}

	var err error
	if s.geometry, err = am.Program(s.dev, geom); err != nil {
		return err
	}
	if s.shadows, err = am.Program(s.dev, shad); err != nil {
		return err
	}
	return nil
}

// Update moves the lamp to its position at time t (seconds).
func (s *Scene) Update(t float64) {
	angle := float32(t) * 0.5
	s.lamp.Centre = mgl32.Vec3{
		s.opts.LampOrbit * float32(math.Cos(float64(angle))),
		1.2,
		s.opts.LampOrbit * float32(math.Sin(float64(angle))),
	}
}

// Lights returns the point lights of the world.
func (s *Scene) Lights() []lighting.Light {
	return []lighting.Light{{
		Position: s.lamp.Centre,
		Color:    s.opts.LampColour,
		Radius:   s.opts.LampRadius,
	}}
}

// Objects returns the primitives of the world.
func (s *Scene) Objects() []*Object {
	return s.objects
}

// Meshes reports whether the world is drawn from vertex buffers.
func (s *Scene) Meshes() bool {
	return s.meshes
}

// Bounds returns the axis aligned bounds of the world.
func (s *Scene) Bounds() (lo, hi mgl32.Vec3) {
	inf := float32(math.Inf(1))
	lo = mgl32.Vec3{inf, inf, inf}
	hi = mgl32.Vec3{-inf, -inf, -inf}
	for _, o := range s.objects {
		olo, ohi := o.bounds()
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], olo[i])
			hi[i] = max(hi[i], ohi[i])
		}
	}
	return lo, hi
}

// radius returns the radius of the object's bounding sphere.
func (o *Object) radius() float32 {
	if o.Shape == Ground {
		return o.Size * math.Sqrt2
	}
	return o.Size
}

func (o *Object) bounds() (mgl32.Vec3, mgl32.Vec3) {
	if o.Shape == Ground {
		return o.Centre.Sub(mgl32.Vec3{o.Size, 0, o.Size}), o.Centre.Add(mgl32.Vec3{o.Size, 0, o.Size})
	}
	r := mgl32.Vec3{o.Size, o.Size, o.Size}
	return o.Centre.Sub(r), o.Centre.Add(r)
}

// RenderShadows draws the casters that can throw a shadow into the shadow box.
func (s *Scene) RenderShadows(f *frame.Context, shadows *shadow.Shadows) error {
	s.casters = s.Casters(shadows.Box(), s.casters[:0])
	lightProjectionView := shadows.ProjectionViewMatrix()

	cs := f.Commands
	cs.UseProgram(s.shadows)
	cs.SetMat4("projectionView", lightProjectionView)
	if !s.meshes {
		s.setPass(lightProjectionView)
		cs.DrawFullscreen()
		return cs.Err()
	}
	for _, o := range s.casters {
		cs.DrawMesh(o.mesh, o.Model())
	}
	return cs.Err()
}

// Casters appends to dst the shadow casting objects inside box.
func (s *Scene) Casters(box *shadow.Box, dst []*Object) []*Object {
	for _, o := range s.objects {
		if o.CastsShadow && box.Contains(o.Centre, o.radius()) {
			dst = append(dst, o)
		}
	}
	return dst
}

// RenderGeometry fills the g-buffer with every object.
func (s *Scene) RenderGeometry(f *frame.Context) error {
	if f.Camera == nil {
		return errors.New("geometry pass: frame has no camera")
	}
	cs := f.Commands
	projection, view := f.Camera.Projection(), f.Camera.View()

	cs.UseProgram(s.geometry)
	cs.SetMat4("projection", projection)
	cs.SetMat4("view", view)
	cs.BindImage(0, s.texture)
	cs.SetInt("samplerAlbedo", 0)
	if !s.meshes {
		s.setPass(projection.Mul4(view))
		cs.DrawFullscreen()
		return cs.Err()
	}
	for _, o := range s.objects {
		cs.SetFloat("textured", flag(o.Textured))
		cs.SetFloat("textureScale", o.TextureScale)
		cs.SetFloat("unlit", flag(o.Unlit))
		cs.SetFloat("receivesShadow", flag(o.ReceivesShadow))
		cs.DrawMesh(o.mesh, o.Model())
	}
	return cs.Err()
}

func (s *Scene) setPass(projectionView mgl32.Mat4) {
	s.projectionView = projectionView
	s.projectionViewInverse = projectionView.Inv()
}

func flag(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

func (s *Scene) releaseMeshes() {
	for _, o := range s.objects {
		if o.mesh != nil {
			s.dev.DestroyMesh(o.mesh)
			o.mesh = nil
		}
	}
}

// Destroy releases the world's device resources.
func (s *Scene) Destroy() {
	s.releaseMeshes()
	if s.geometry != nil {
		s.dev.DestroyProgram(s.geometry)
		s.geometry = nil
	}
	if s.shadows != nil {
		s.dev.DestroyProgram(s.shadows)
		s.shadows = nil
	}
	if s.texture != nil {
		s.dev.DestroyImage(s.texture)
		s.texture = nil
	}
}

// checkerboard returns a size x size grey checker with cells of cell texels.
func checkerboard(size, cell int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	light := color.RGBA{R: 235, G: 235, B: 225, A: 255}
	dark := color.RGBA{R: 150, G: 155, B: 140, A: 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}
	return img
}
