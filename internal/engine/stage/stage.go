// Package stage manages render stages: the framebuffers and attachments one
// pass of the frame renders into, rebuilt when the display size changes.
package stage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/logger"
)

// Attachment describes one image of a stage.
type Attachment struct {
	Label  string
	Format gpu.Format
	Clear  gpu.ClearValue
}

// Description is the immutable layout of a stage.
type Description struct {
	Name string

	// Colour attachments in binding order.
	Colour []Attachment
	// Depth is the optional depth attachment.
	Depth *Attachment

	// Swapchain stages render into the device's presentable images and own no
	// attachments of their own.
	Swapchain bool

	// FitDisplay stages follow the display size multiplied by Scale.
	// Other stages are Width x Height regardless of the display.
	FitDisplay bool
	Scale      float32
	Width      int
	Height     int
}

func (d Description) validate() error {
	if d.Swapchain {
		if len(d.Colour) > 0 || d.Depth != nil {
			return errors.New("swapchain stage cannot declare attachments")
		}
		if !d.FitDisplay {
			return errors.New("swapchain stage must fit the display")
		}
		return nil
	}
	if len(d.Colour) == 0 && d.Depth == nil {
		return errors.New("stage has no attachments")
	}
	if len(d.Colour) > gpu.MaxColourAttachments {
		return fmt.Errorf("stage has %d colour attachments, max %d", len(d.Colour), gpu.MaxColourAttachments)
	}
	for i, a := range d.Colour {
		if a.Format.IsDepth() {
			return fmt.Errorf("colour attachment %d (%q) has depth format %s", i, a.Label, a.Format)
		}
	}
	if d.Depth != nil && !d.Depth.Format.IsDepth() {
		return fmt.Errorf("depth attachment %q has colour format %s", d.Depth.Label, d.Depth.Format)
	}
	if d.FitDisplay && d.Scale < 0 {
		return fmt.Errorf("negative display scale %f", d.Scale)
	}
	if !d.FitDisplay && (d.Width <= 0 || d.Height <= 0) {
		return fmt.Errorf("fixed stage has invalid size %dx%d", d.Width, d.Height)
	}
	return nil
}

// Stage owns the framebuffers and attachments described by a Description.
type Stage struct {
	dev  gpu.Device
	desc Description

	framebuffers []*gpu.Framebuffer
	colour       []*gpu.Image
	depth        *gpu.Image
	clears       []gpu.ClearValue

	width  int
	height int
	usable bool

	// fences of submitted frames that referenced the attachments and had
	// not signalled at the last Track
	pending []gpu.Fence
}

// New creates a stage. Fixed-size stages are built immediately; stages that
// fit the display stay unusable until the first Rebuild with a non-zero size.
func New(dev gpu.Device, desc Description) (*Stage, error) {
	if desc.FitDisplay && desc.Scale == 0 {
		desc.Scale = 1
	}
	if err := desc.validate(); err != nil {
		return nil, fmt.Errorf("stage %q: %w", desc.Name, err)
	}
	desc.Colour = append([]Attachment(nil), desc.Colour...)

	s := &Stage{dev: dev, desc: desc}
	for _, a := range desc.Colour {
		s.clears = append(s.clears, a.Clear)
	}
	if desc.Depth != nil {
		s.clears = append(s.clears, desc.Depth.Clear)
	}

	if !desc.FitDisplay {
		if err := s.create(desc.Width, desc.Height); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Size returns the size the stage wants for a display of the given size.
func (s *Stage) Size(displayWidth, displayHeight int) (int, int) {
	if !s.desc.FitDisplay {
		return s.desc.Width, s.desc.Height
	}
	return scaled(displayWidth, s.desc.Scale), scaled(displayHeight, s.desc.Scale)
}

func scaled(v int, scale float32) int {
	if v <= 0 {
		return 0
	}
	n := int(float32(v) * scale)
	if n < 1 {
		n = 1
	}
	return n
}

// IsOutOfDate reports whether the stage must be rebuilt for a display of the
// given size.
func (s *Stage) IsOutOfDate(displayWidth, displayHeight int) bool {
	w, h := s.Size(displayWidth, displayHeight)
	return w != s.width || h != s.height
}

// Track records the fence of a submitted frame that used the stage and
// drops the fences of earlier frames that have signalled. Rebuild waits for
// the rest before releasing the attachments.
func (s *Stage) Track(f gpu.Fence) {
	live := s.pending[:0]
	for _, p := range s.pending {
		if !p.Signalled() {
			live = append(live, p)
		}
	}
	clear(s.pending[len(live):])
	s.pending = live
	if f != nil {
		s.pending = append(s.pending, f)
	}
}

// InFlight returns the number of tracked fences not yet seen signalled.
func (s *Stage) InFlight() int { return len(s.pending) }

// Rebuild recreates the attachments for a display of the given size.
// A zero-area display marks the stage unusable without touching the
// attachments. Rebuild blocks until the last tracked frame has finished.
func (s *Stage) Rebuild(ctx context.Context, displayWidth, displayHeight int) error {
	if displayWidth <= 0 || displayHeight <= 0 {
		if s.usable {
			logger.Debug("stage paused on zero-area display", zap.String("stage", s.desc.Name))
		}
		s.usable = false
		return nil
	}

	w, h := s.Size(displayWidth, displayHeight)
	if w == s.width && h == s.height && len(s.framebuffers) > 0 {
		s.usable = true
		return nil
	}

	if err := s.waitIdle(ctx); err != nil {
		return fmt.Errorf("stage %q: %w", s.desc.Name, err)
	}
	s.release()

	if err := s.create(w, h); err != nil {
		return err
	}
	logger.Debug("stage rebuilt",
		zap.String("stage", s.desc.Name),
		zap.Int("width", w),
		zap.Int("height", h))
	return nil
}

func (s *Stage) waitIdle(ctx context.Context) error {
	for len(s.pending) > 0 {
		if err := s.pending[0].Wait(ctx); err != nil {
			return fmt.Errorf("waiting for in-flight frame: %w", err)
		}
		s.pending[0] = nil
		s.pending = s.pending[1:]
	}
	s.pending = nil
	return nil
}

func (s *Stage) create(w, h int) error {
	if s.desc.Swapchain {
		fbs, err := s.dev.Swapchain(w, h)
		if err != nil {
			return fmt.Errorf("stage %q: creating swapchain framebuffers: %w", s.desc.Name, err)
		}
		s.framebuffers = fbs
	} else {
		for _, a := range s.desc.Colour {
			img, err := s.dev.CreateImage(s.label(a), w, h, a.Format)
			if err != nil {
				s.release()
				return fmt.Errorf("stage %q: creating attachment %q: %w", s.desc.Name, a.Label, err)
			}
			s.colour = append(s.colour, img)
		}
		if d := s.desc.Depth; d != nil {
			img, err := s.dev.CreateImage(s.label(*d), w, h, d.Format)
			if err != nil {
				s.release()
				return fmt.Errorf("stage %q: creating depth attachment: %w", s.desc.Name, err)
			}
			s.depth = img
		}
		fb, err := s.dev.CreateFramebuffer(s.colour, s.depth)
		if err != nil {
			s.release()
			return fmt.Errorf("stage %q: creating framebuffer: %w", s.desc.Name, err)
		}
		s.framebuffers = []*gpu.Framebuffer{fb}
	}

	s.width, s.height = w, h
	s.usable = true
	return nil
}

func (s *Stage) label(a Attachment) string {
	if a.Label == "" {
		return s.desc.Name
	}
	return s.desc.Name + "." + a.Label
}

func (s *Stage) release() {
	for _, fb := range s.framebuffers {
		s.dev.DestroyFramebuffer(fb)
	}
	for _, img := range s.colour {
		s.dev.DestroyImage(img)
	}
	if s.depth != nil {
		s.dev.DestroyImage(s.depth)
	}
	s.framebuffers = nil
	s.colour = nil
	s.depth = nil
	s.width, s.height = 0, 0
	s.usable = false
}

// Destroy waits for the last tracked frame and releases every attachment.
func (s *Stage) Destroy(ctx context.Context) error {
	err := s.waitIdle(ctx)
	s.release()
	return err
}

// ActiveFramebuffer returns the framebuffer to render into for a swapchain
// image. Stages not backed by the swapchain have a single framebuffer.
// Returns nil while the stage is unusable.
func (s *Stage) ActiveFramebuffer(imageIndex int) *gpu.Framebuffer {
	if !s.usable || len(s.framebuffers) == 0 {
		return nil
	}
	if !s.desc.Swapchain {
		return s.framebuffers[0]
	}
	if imageIndex < 0 {
		imageIndex = 0
	}
	return s.framebuffers[imageIndex%len(s.framebuffers)]
}

// Begin starts a pass on the active framebuffer with the stage's clear values.
func (s *Stage) Begin(cs gpu.CommandStream, imageIndex int) error {
	fb := s.ActiveFramebuffer(imageIndex)
	if fb == nil {
		return fmt.Errorf("stage %q is not usable", s.desc.Name)
	}
	cs.BeginPass(fb, s.clears)
	return nil
}

// ColourImage returns colour attachment i, or nil.
func (s *Stage) ColourImage(i int) *gpu.Image {
	if i < 0 || i >= len(s.colour) {
		return nil
	}
	return s.colour[i]
}

// DepthImage returns the depth attachment, or nil.
func (s *Stage) DepthImage() *gpu.Image {
	return s.depth
}

// Images returns the number of framebuffers: the swapchain length for
// swapchain stages, otherwise 1. Zero before the first build.
func (s *Stage) Images() int { return len(s.framebuffers) }

// Name returns the stage name.
func (s *Stage) Name() string { return s.desc.Name }

// Width returns the width recorded at the last rebuild.
func (s *Stage) Width() int { return s.width }

// Height returns the height recorded at the last rebuild.
func (s *Stage) Height() int { return s.height }

// Usable reports whether the stage has attachments for a non-zero display.
func (s *Stage) Usable() bool { return s.usable }

// HasDepth reports whether the stage has a depth attachment.
func (s *Stage) HasDepth() bool { return s.desc.Depth != nil }

// FitDisplay reports whether the stage follows the display size.
func (s *Stage) FitDisplay() bool { return s.desc.FitDisplay }

// Swapchain reports whether the stage renders into presentable images.
func (s *Stage) Swapchain() bool { return s.desc.Swapchain }
