// Package pipeline runs one frame of the deferred renderer: shadow depth
// pass, geometry pass, lighting, post-processing and presentation.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-render/internal/assets"
	"github.com/Faultbox/midgard-render/internal/engine/camera"
	"github.com/Faultbox/midgard-render/internal/engine/deferred"
	"github.com/Faultbox/midgard-render/internal/engine/frame"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/lighting"
	"github.com/Faultbox/midgard-render/internal/engine/post"
	"github.com/Faultbox/midgard-render/internal/engine/shadow"
	"github.com/Faultbox/midgard-render/internal/engine/stage"
	"github.com/Faultbox/midgard-render/internal/logger"
)

// G-buffer colour attachment indices.
const (
	GBufferColour = iota
	GBufferNormal
	GBufferExtras
)

// Display reports the current drawable size. A minimised window is 0x0.
type Display interface {
	Size() (width, height int)
}

// Scene draws the world. Both calls happen inside a pass the pipeline began.
type Scene interface {
	// RenderShadows draws the shadow casters into the bound depth-only target.
	// The shadow box may be used to cull casters that cannot reach the view.
	RenderShadows(f *frame.Context, shadows *shadow.Shadows) error
	// RenderGeometry fills the bound g-buffer: colour, normal, extras, depth.
	RenderGeometry(f *frame.Context) error
}

// Config configures the pipeline.
type Config struct {
	Shadows     shadow.Settings
	PostEnabled bool
	Filters     []string
	Post        post.Options
	Sky         mgl32.Vec4 // G-buffer clear colour
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Shadows:     shadow.DefaultSettings(),
		PostEnabled: true,
		Filters:     []string{"fxaa"},
		Post: post.Options{
			Params:   post.Params{BlurScale: 2, FXAASpan: 8, VignetteStrength: 0.4, PixelSize: 4},
			BlurSize: 0.5,
		},
		Sky: mgl32.Vec4{0.45, 0.6, 0.8, 1},
	}
}

// Result describes one call to Render.
type Result struct {
	// Skipped is set when the display had no area and nothing was submitted.
	Skipped bool
	Frame   uint64
	// ImageIndex is the swapchain image that was rendered to.
	ImageIndex int
	// Output is the final image before presentation.
	Output *gpu.Image
	Fence  gpu.Fence
}

// Pipeline owns every stage of the frame.
type Pipeline struct {
	dev     gpu.Device
	display Display
	scene   Scene

	shadows    *shadow.Shadows
	shadowMap  *shadow.Map
	gbuffer    *stage.Stage
	compositor *deferred.Compositor
	chain      *post.Chain
	present    *stage.Stage

	frameIndex uint64
	imageIndex int
}

// New creates the pipeline and its stages.
func New(dev gpu.Device, am *assets.Manager, display Display, scene Scene, cfg Config) (_ *Pipeline, err error) {
	p := &Pipeline{
		dev:     dev,
		display: display,
		scene:   scene,
		shadows: shadow.New(cfg.Shadows),
	}
	defer func() {
		if err != nil {
			_ = p.Destroy(context.Background())
		}
	}()

	if p.shadowMap, err = shadow.NewMap(dev, cfg.Shadows.Size); err != nil {
		return nil, err
	}

	p.gbuffer, err = stage.New(dev, stage.Description{
		Name: "gbuffer",
		Colour: []stage.Attachment{
			GBufferColour: {Label: "colour", Format: gpu.FormatRGBA8, Clear: gpu.ClearValue{Colour: cfg.Sky}},
			GBufferNormal: {Label: "normal", Format: gpu.FormatRGBA16F},
			GBufferExtras: {Label: "extras", Format: gpu.FormatRGBA8},
		},
		Depth:      &stage.Attachment{Label: "depth", Format: gpu.FormatDepth32F, Clear: gpu.ClearValue{Depth: 1}},
		FitDisplay: true,
		Scale:      1,
	})
	if err != nil {
		return nil, err
	}

	if p.compositor, err = deferred.New(dev, am, p.shadows); err != nil {
		return nil, err
	}

	if cfg.PostEnabled && len(cfg.Filters) > 0 {
		if p.chain, err = post.Build(dev, am, cfg.Filters, cfg.Post); err != nil {
			return nil, fmt.Errorf("building filter chain: %w", err)
		}
	}

	p.present, err = stage.New(dev, stage.Description{Name: "present", Swapchain: true, FitDisplay: true, Scale: 1})
	if err != nil {
		return nil, err
	}

	logger.Info("render pipeline created",
		zap.Int("shadowMapSize", p.shadowMap.Resolution()),
		zap.Int("filters", p.chainLen()))
	return p, nil
}

func (p *Pipeline) chainLen() int {
	if p.chain == nil {
		return 0
	}
	return p.chain.Len()
}

// Render draws one frame. A zero-area display skips the frame without error.
func (p *Pipeline) Render(ctx context.Context, cam camera.Camera, sun lighting.Sun, lights []lighting.Light) (Result, error) {
	w, h := p.display.Size()
	f := frame.New(ctx, w, h)
	f.Index = p.frameIndex
	f.Camera = cam
	f.Sun = sun
	f.Lights = lights

	if f.Zero() {
		if err := p.pause(ctx); err != nil {
			return Result{}, err
		}
		logger.Debug("display has no area, skipping frame", zap.Uint64("frame", f.Index))
		return Result{Skipped: true, Frame: f.Index}, nil
	}

	for _, st := range []*stage.Stage{p.gbuffer, p.present} {
		if st.IsOutOfDate(w, h) || !st.Usable() {
			if err := st.Rebuild(ctx, w, h); err != nil {
				return Result{}, err
			}
		}
	}
	if p.imageIndex >= p.present.Images() {
		p.imageIndex = 0
	}
	f.ImageIndex = p.imageIndex
	f.Commands = p.dev.Begin()

	out, err := p.record(f)
	if err != nil {
		return Result{}, err
	}

	fence, err := p.dev.Submit(f.Commands)
	if err != nil {
		return Result{}, fmt.Errorf("submitting frame %d: %w", f.Index, err)
	}
	p.track(fence)

	res := Result{Frame: f.Index, ImageIndex: f.ImageIndex, Output: out, Fence: fence}
	p.frameIndex++
	p.imageIndex = (p.imageIndex + 1) % p.present.Images()
	return res, nil
}

// record issues every pass of the frame in order.
func (p *Pipeline) record(f *frame.Context) (*gpu.Image, error) {
	cs := f.Commands

	p.shadows.Update(f)
	if err := p.shadowMap.Begin(f); err != nil {
		return nil, err
	}
	if err := p.scene.RenderShadows(f, p.shadows); err != nil {
		return nil, fmt.Errorf("shadow pass: %w", err)
	}
	p.shadowMap.End(f)

	if err := p.gbuffer.Begin(cs, f.ImageIndex); err != nil {
		return nil, err
	}
	if err := p.scene.RenderGeometry(f); err != nil {
		return nil, fmt.Errorf("geometry pass: %w", err)
	}
	cs.EndPass()

	lit, err := p.compositor.Apply(f, deferred.GBuffer{
		Colour: p.gbuffer.ColourImage(GBufferColour),
		Normal: p.gbuffer.ColourImage(GBufferNormal),
		Extras: p.gbuffer.ColourImage(GBufferExtras),
		Depth:  p.gbuffer.DepthImage(),
		Shadow: p.shadowMap.Texture(),
	})
	if err != nil {
		return nil, fmt.Errorf("lighting pass: %w", err)
	}

	out := lit
	if p.chain != nil {
		if out, err = p.chain.Apply(f, lit); err != nil {
			return nil, fmt.Errorf("post pass: %w", err)
		}
	}

	cs.Blit(out, p.present.ActiveFramebuffer(f.ImageIndex))
	if err := cs.Err(); err != nil {
		return nil, fmt.Errorf("recording frame %d: %w", f.Index, err)
	}
	return out, nil
}

// pause marks every display-sized stage unusable until the display has area again.
func (p *Pipeline) pause(ctx context.Context) error {
	stages := []*stage.Stage{p.gbuffer, p.present, p.compositor.Stage()}
	if p.chain != nil {
		for _, pass := range p.chain.Passes() {
			stages = append(stages, pass.Stage())
		}
	}
	for _, st := range stages {
		if err := st.Rebuild(ctx, 0, 0); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) track(fence gpu.Fence) {
	p.shadowMap.Stage().Track(fence)
	p.gbuffer.Track(fence)
	p.compositor.Stage().Track(fence)
	if p.chain != nil {
		p.chain.Track(fence)
	}
	p.present.Track(fence)
}

// Shadows returns the shadow state of the last frame.
func (p *Pipeline) Shadows() *shadow.Shadows { return p.shadows }

// GBuffer returns the g-buffer stage.
func (p *Pipeline) GBuffer() *stage.Stage { return p.gbuffer }

// ShadowMap returns the shadow depth map.
func (p *Pipeline) ShadowMap() *shadow.Map { return p.shadowMap }

// Compositor returns the lighting pass.
func (p *Pipeline) Compositor() *deferred.Compositor { return p.compositor }

// Chain returns the filter chain, nil when post-processing is off.
func (p *Pipeline) Chain() *post.Chain { return p.chain }

// Present returns the swapchain stage.
func (p *Pipeline) Present() *stage.Stage { return p.present }

// Destroy waits for in-flight frames and releases every stage.
func (p *Pipeline) Destroy(ctx context.Context) error {
	var errs []error
	if p.chain != nil {
		errs = append(errs, p.chain.Destroy(ctx))
	}
	if p.compositor != nil {
		errs = append(errs, p.compositor.Destroy(ctx))
	}
	for _, st := range []*stage.Stage{p.gbuffer, p.present} {
		if st != nil {
			errs = append(errs, st.Destroy(ctx))
		}
	}
	if p.shadowMap != nil {
		errs = append(errs, p.shadowMap.Destroy(ctx))
	}
	return errors.Join(errs...)
}
