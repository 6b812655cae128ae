// Package post implements the post-processing filter chain: an ordered list
// of full-screen passes, each reading the previous pass's output.
package post

import (
	"context"
	"fmt"

	"github.com/Faultbox/midgard-render/internal/assets"
	"github.com/Faultbox/midgard-render/internal/engine/frame"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/shader"
	"github.com/Faultbox/midgard-render/internal/engine/stage"
)

// Sizing is the target size of a pass: a fraction of the display, or fixed.
type Sizing struct {
	Scale  float32 // Display multiplier, used when Width and Height are zero
	Width  int
	Height int
}

// Fit returns a sizing that follows the display at scale.
func Fit(scale float32) Sizing {
	return Sizing{Scale: scale}
}

// Fixed returns a sizing of exactly width x height.
func Fixed(width, height int) Sizing {
	return Sizing{Width: width, Height: height}
}

func (s Sizing) fitDisplay() bool {
	return s.Width == 0 && s.Height == 0
}

// Pass is one filter: a program and the stage it renders into.
type Pass struct {
	dev     gpu.Device
	effect  Effect
	program *gpu.Program
	stage   *stage.Stage
}

// NewPass creates a pass for effect.
func NewPass(dev gpu.Device, am *assets.Manager, effect Effect, sizing Sizing) (*Pass, error) {
	if effect == nil {
		return nil, fmt.Errorf("filter pass: nil effect")
	}
	prog, err := am.Program(dev, assets.ProgramSpec{
		Name:     effect.Name(),
		Vertex:   shader.Fullscreen,
		Fragment: effect.fragment(),
		Kernel:   effect.kernel(),
	})
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", effect.Name(), err)
	}

	st, err := stage.New(dev, stage.Description{
		Name:       "filter." + effect.Name(),
		Colour:     []stage.Attachment{{Label: "colour", Format: gpu.FormatRGBA8}},
		FitDisplay: sizing.fitDisplay(),
		Scale:      sizing.Scale,
		Width:      sizing.Width,
		Height:     sizing.Height,
	})
	if err != nil {
		dev.DestroyProgram(prog)
		return nil, fmt.Errorf("filter %s: %w", effect.Name(), err)
	}

	return &Pass{dev: dev, effect: effect, program: prog, stage: st}, nil
}

// Effect returns the pass's effect.
func (p *Pass) Effect() Effect {
	return p.effect
}

// SetEffect replaces the effect parameters. The variant cannot change
// because the program is built for it.
func (p *Pass) SetEffect(e Effect) error {
	if e == nil || e.Name() != p.effect.Name() {
		return fmt.Errorf("filter %s: cannot switch to a different effect", p.effect.Name())
	}
	p.effect = e
	return nil
}

// Resize rebuilds the target when the display size changed.
func (p *Pass) Resize(ctx context.Context, displayWidth, displayHeight int) error {
	if !p.stage.IsOutOfDate(displayWidth, displayHeight) && p.stage.Usable() {
		return nil
	}
	return p.stage.Rebuild(ctx, displayWidth, displayHeight)
}

// StoreParameters writes the effect's uniforms for this frame.
func (p *Pass) StoreParameters(f *frame.Context) {
	f.Commands.UseProgram(p.program)
	p.effect.store(f.Commands, p.stage.Width(), p.stage.Height())
}

// Render draws input through the effect into the pass's target.
func (p *Pass) Render(cs gpu.CommandStream, input *gpu.Image) error {
	if input == nil {
		return fmt.Errorf("filter %s: nil input", p.effect.Name())
	}
	if err := p.stage.Begin(cs, 0); err != nil {
		return err
	}
	cs.UseProgram(p.program)
	cs.BindImage(0, input)
	cs.SetInt("samplerColour", 0)
	cs.DrawFullscreen()
	cs.EndPass()
	return nil
}

// Output returns the image the pass renders into.
func (p *Pass) Output() *gpu.Image {
	return p.stage.ColourImage(0)
}

// Stage returns the pass's target stage.
func (p *Pass) Stage() *stage.Stage {
	return p.stage
}

// Destroy releases the program and target.
func (p *Pass) Destroy(ctx context.Context) error {
	p.dev.DestroyProgram(p.program)
	return p.stage.Destroy(ctx)
}
