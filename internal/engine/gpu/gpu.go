// Package gpu defines the device collaborator the render pipeline draws through.
//
// The pipeline never calls a graphics API directly. Attachments, framebuffers,
// programs and command streams are created through a Device so the same frame
// code runs on the OpenGL backend (gldevice) and on the CPU reference backend
// (soft) used for headless rendering and tests.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxColourAttachments is the number of colour outputs a framebuffer may have.
const MaxColourAttachments = 4

// ErrUnsupported is returned by a device that cannot provide a primitive.
var ErrUnsupported = errors.New("gpu: operation not supported by device")

// Format is an attachment pixel format.
type Format int

// Attachment formats.
const (
	FormatRGBA8 Format = iota
	FormatRGBA16F
	FormatDepth24
	FormatDepth32F
)

// IsDepth reports whether the format is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatDepth24 || f == FormatDepth32F
}

func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatRGBA16F:
		return "rgba16f"
	case FormatDepth24:
		return "depth24"
	case FormatDepth32F:
		return "depth32f"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Image is a device image handle. Devices own the backing storage.
type Image struct {
	ID     uint32
	Label  string
	Width  int
	Height int
	Format Format
}

// Framebuffer is a set of attachments that a pass renders into.
type Framebuffer struct {
	ID        uint32
	Width     int
	Height    int
	Colour    []*Image
	Depth     *Image
	Swapchain bool // Presentable image owned by the device, not by a stage
}

// ClearValue is the clear colour (or depth) for one attachment.
type ClearValue struct {
	Colour mgl32.Vec4
	Depth  float32
}

// ProgramSource describes a shader program.
// Kernel is the CPU equivalent of Fragment used by the soft device.
type ProgramSource struct {
	Name     string
	Vertex   string
	Fragment string
	Kernel   Kernel
}

// Program is a linked shader program handle.
type Program struct {
	ID     uint32
	Name   string
	Kernel Kernel
}

// Mesh is an uploaded vertex buffer.
// Vertices are interleaved position(3), normal(3), colour(3).
type Mesh struct {
	ID          uint32
	VertexCount int32
}

// VertexStride is the number of floats per mesh vertex.
const VertexStride = 9

// Fence is signalled when a submitted command stream finished executing.
type Fence interface {
	Wait(ctx context.Context) error
	Signalled() bool
}

// CommandStream records (or issues) the draws of one frame.
type CommandStream interface {
	BeginPass(fb *Framebuffer, clear []ClearValue)
	EndPass()
	UseProgram(p *Program)
	BindImage(unit int, img *Image)
	SetInt(name string, v int32)
	SetFloat(name string, v float32)
	SetVec2(name string, v mgl32.Vec2)
	SetVec3(name string, v mgl32.Vec3)
	SetMat4(name string, m mgl32.Mat4)
	SetFloatArray(name string, components int, v []float32)
	DrawFullscreen()
	DrawMesh(m *Mesh, model mgl32.Mat4)
	Blit(src *Image, dst *Framebuffer)
	Err() error
}

// Device allocates GPU resources and submits command streams.
type Device interface {
	CreateImage(label string, width, height int, format Format) (*Image, error)
	UploadImage(label string, img image.Image) (*Image, error)
	DestroyImage(img *Image)

	CreateFramebuffer(colour []*Image, depth *Image) (*Framebuffer, error)
	DestroyFramebuffer(fb *Framebuffer)

	// Swapchain returns one framebuffer per presentable image at the given size.
	Swapchain(width, height int) ([]*Framebuffer, error)

	CreateProgram(src ProgramSource) (*Program, error)
	DestroyProgram(p *Program)

	CreateMesh(vertices []float32) (*Mesh, error)
	DestroyMesh(m *Mesh)

	Begin() CommandStream
	Submit(cs CommandStream) (Fence, error)

	// ReadPixels returns the colour image as top-down RGBA.
	ReadPixels(img *Image) (*image.RGBA, error)

	Close()
}

// ValidateFramebuffer checks attachment formats before a device creates a framebuffer.
func ValidateFramebuffer(colour []*Image, depth *Image) error {
	if len(colour) == 0 && depth == nil {
		return errors.New("framebuffer has no attachments")
	}
	if len(colour) > MaxColourAttachments {
		return fmt.Errorf("framebuffer has %d colour attachments, max %d", len(colour), MaxColourAttachments)
	}
	w, h := -1, -1
	check := func(img *Image) error {
		if w < 0 {
			w, h = img.Width, img.Height
			return nil
		}
		if img.Width != w || img.Height != h {
			return fmt.Errorf("attachment %q is %dx%d, expected %dx%d", img.Label, img.Width, img.Height, w, h)
		}
		return nil
	}
	for i, img := range colour {
		if img == nil {
			return fmt.Errorf("colour attachment %d is nil", i)
		}
		if img.Format.IsDepth() {
			return fmt.Errorf("colour attachment %d (%q) has depth format %s", i, img.Label, img.Format)
		}
		if err := check(img); err != nil {
			return err
		}
	}
	if depth != nil {
		if !depth.Format.IsDepth() {
			return fmt.Errorf("depth attachment %q has colour format %s", depth.Label, depth.Format)
		}
		if err := check(depth); err != nil {
			return err
		}
	}
	return nil
}
