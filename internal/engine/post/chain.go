package post

import (
	"context"
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-render/internal/assets"
	"github.com/Faultbox/midgard-render/internal/engine/frame"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

// Chain runs its passes in order, each reading the previous output.
type Chain struct {
	passes []*Pass
}

// NewChain creates a chain that owns passes.
func NewChain(passes ...*Pass) *Chain {
	return &Chain{passes: passes}
}

// Options configure a chain built from effect names.
type Options struct {
	Params Params
	// BlurSize is the display multiplier of blur passes. Other passes
	// run at display size.
	BlurSize float32
}

// Build creates a chain from effect names.
func Build(dev gpu.Device, am *assets.Manager, names []string, opts Options) (*Chain, error) {
	c := &Chain{}
	for _, name := range names {
		effect, err := EffectByName(name, opts.Params)
		if err != nil {
			_ = c.Destroy(context.Background())
			return nil, err
		}
		sizing := Fit(1)
		switch effect.(type) {
		case BlurHorizontal, BlurVertical:
			if opts.BlurSize > 0 {
				sizing = Fit(opts.BlurSize)
			}
		}
		p, err := NewPass(dev, am, effect, sizing)
		if err != nil {
			_ = c.Destroy(context.Background())
			return nil, err
		}
		c.passes = append(c.passes, p)
	}
	return c, nil
}

// Passes returns the passes in order.
func (c *Chain) Passes() []*Pass {
	return c.passes
}

// Len returns the number of passes.
func (c *Chain) Len() int {
	return len(c.passes)
}

// Apply resizes the passes to the frame's display and runs them over input.
// An empty chain returns input, as does a zero-area display after pausing
// every pass.
func (c *Chain) Apply(f *frame.Context, input *gpu.Image) (*gpu.Image, error) {
	if f.Width <= 0 || f.Height <= 0 {
		for i, p := range c.passes {
			if err := p.Resize(f.Context(), f.Width, f.Height); err != nil {
				return nil, fmt.Errorf("filter %d (%s): %w", i, p.effect.Name(), err)
			}
		}
		return input, nil
	}

	out := input
	for i, p := range c.passes {
		if err := p.Resize(f.Context(), f.Width, f.Height); err != nil {
			return nil, fmt.Errorf("filter %d (%s): %w", i, p.effect.Name(), err)
		}
		p.StoreParameters(f)
		if err := p.Render(f.Commands, out); err != nil {
			return nil, fmt.Errorf("filter %d (%s): %w", i, p.effect.Name(), err)
		}
		out = p.Output()
	}
	return out, nil
}

// Track records the fence of a frame that used the chain.
func (c *Chain) Track(fence gpu.Fence) {
	for _, p := range c.passes {
		p.stage.Track(fence)
	}
}

// Destroy releases every pass.
func (c *Chain) Destroy(ctx context.Context) error {
	var errs []error
	for _, p := range c.passes {
		if err := p.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.passes = nil
	return errors.Join(errs...)
}
