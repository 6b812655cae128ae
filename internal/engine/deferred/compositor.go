// Package deferred implements the lighting pass of the deferred renderer: it
// reads the g-buffer, the shadow map and the frame's lights and writes the
// lit scene in one full-screen draw.
package deferred

import (
	"context"
	"fmt"

	"github.com/Faultbox/midgard-render/internal/assets"
	"github.com/Faultbox/midgard-render/internal/engine/frame"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/lighting"
	"github.com/Faultbox/midgard-render/internal/engine/shader"
	"github.com/Faultbox/midgard-render/internal/engine/shadow"
	"github.com/Faultbox/midgard-render/internal/engine/stage"
)

// Compositor is the deferred lighting pass.
type Compositor struct {
	dev     gpu.Device
	program *gpu.Program
	stage   *stage.Stage
	shadows *shadow.Shadows
	lights  *lighting.Buffer
}

// New creates the compositor. Its output follows the display size.
func New(dev gpu.Device, am *assets.Manager, shadows *shadow.Shadows) (*Compositor, error) {
	prog, err := am.Program(dev, assets.ProgramSpec{
		Name:     "deferred",
		Vertex:   shader.Fullscreen,
		Fragment: shader.Deferred,
		Kernel:   Kernel,
	})
	if err != nil {
		return nil, fmt.Errorf("creating lighting program: %w", err)
	}

	st, err := stage.New(dev, stage.Description{
		Name:       "deferred",
		Colour:     []stage.Attachment{{Label: "lit", Format: gpu.FormatRGBA16F}},
		FitDisplay: true,
		Scale:      1,
	})
	if err != nil {
		dev.DestroyProgram(prog)
		return nil, err
	}

	return &Compositor{
		dev:     dev,
		program: prog,
		stage:   st,
		shadows: shadows,
		lights:  lighting.NewBuffer(),
	}, nil
}

// Apply lights the g-buffer into the compositor's output.
func (c *Compositor) Apply(f *frame.Context, g GBuffer) (*gpu.Image, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := c.lights.Set(f.Lights); err != nil {
		return nil, err
	}
	if f.Camera == nil {
		return nil, fmt.Errorf("lighting pass: frame has no camera")
	}

	if c.stage.IsOutOfDate(f.Width, f.Height) || !c.stage.Usable() {
		if err := c.stage.Rebuild(f.Context(), f.Width, f.Height); err != nil {
			return nil, err
		}
	}

	cs := f.Commands
	if err := c.stage.Begin(cs, f.ImageIndex); err != nil {
		return nil, err
	}
	cs.UseProgram(c.program)
	for unit, img := range g.units() {
		cs.BindImage(unit, img)
		cs.SetInt(samplerNames[unit], int32(unit))
	}
	c.storeParameters(f, g)
	cs.DrawFullscreen()
	cs.EndPass()

	return c.stage.ColourImage(0), nil
}

func (c *Compositor) storeParameters(f *frame.Context, g GBuffer) {
	cs := f.Commands
	cam := f.Camera

	cs.SetMat4("projectionInverse", cam.Projection().Inv())
	cs.SetMat4("viewInverse", cam.View().Inv())
	cs.SetVec3("cameraPosition", cam.Position())

	cs.SetFloatArray("lightPosition", 4, c.lights.Positions())
	cs.SetFloatArray("lightColour", 3, c.lights.Colors())
	cs.SetFloatArray("lightRadius", 1, c.lights.Radii())
	cs.SetInt("lightCount", int32(c.lights.Count()))

	cs.SetVec3("sunDirection", f.LightDirection())
	cs.SetVec3("sunColour", f.Sun.Color)
	cs.SetFloat("ambient", f.Sun.Ambient)

	s := c.shadows.Settings
	cs.SetMat4("shadowSpace", c.shadows.ShadowMapSpaceMatrix())
	cs.SetFloat("shadowDistance", s.Distance)
	cs.SetFloat("shadowTransition", s.Transition)
	cs.SetFloat("shadowBias", s.Bias)
	cs.SetFloat("shadowDarkness", s.Darkness)
	cs.SetInt("shadowPCF", int32(s.PCF))
	cs.SetFloat("shadowMapSize", float32(g.Shadow.Width))
	cs.SetFloat("brightnessBoost", s.BrightnessBoost)
}

// Output returns the lit image of the last Apply.
func (c *Compositor) Output() *gpu.Image {
	return c.stage.ColourImage(0)
}

// Stage returns the output stage.
func (c *Compositor) Stage() *stage.Stage {
	return c.stage
}

// Destroy releases the program and the output stage.
func (c *Compositor) Destroy(ctx context.Context) error {
	c.dev.DestroyProgram(c.program)
	return c.stage.Destroy(ctx)
}
