// Package viewer implements the interactive window loop.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-render/internal/assets"
	"github.com/Faultbox/midgard-render/internal/config"
	"github.com/Faultbox/midgard-render/internal/engine/camera"
	"github.com/Faultbox/midgard-render/internal/engine/debug"
	"github.com/Faultbox/midgard-render/internal/engine/gpu/gldevice"
	"github.com/Faultbox/midgard-render/internal/engine/input"
	"github.com/Faultbox/midgard-render/internal/engine/lighting"
	"github.com/Faultbox/midgard-render/internal/engine/pipeline"
	"github.com/Faultbox/midgard-render/internal/engine/scene"
	"github.com/Faultbox/midgard-render/internal/engine/window"
	"github.com/Faultbox/midgard-render/internal/logger"
)

// minimisedDelay throttles the loop while there is nothing to draw.
const minimisedDelay = 50 * time.Millisecond

// Viewer is the interactive renderer.
type Viewer struct {
	cfg      *config.Config
	running  bool
	window   *window.Window
	device   *gldevice.Device
	assets   *assets.Manager
	scene    *scene.Scene
	pipeline *pipeline.Pipeline
	input    *input.Input
	camera   *camera.OrbitCamera
	sun      lighting.Sun
	shots    *debug.Screenshots
}

// New opens the window and builds the pipeline.
func New(cfg *config.Config) (*Viewer, error) {
	logger.Info("initializing viewer",
		zap.String("title", cfg.Display.Title),
		zap.Int("width", cfg.Display.Width),
		zap.Int("height", cfg.Display.Height),
	)

	v := &Viewer{
		cfg:   cfg,
		input: input.New(),
		sun:   pipeline.SunFromConfig(cfg),
		shots: debug.NewScreenshots(cfg.Output.ScreenshotDir, "screenshot"),
	}

	var err error
	// The GL context must exist before the device is created.
	v.window, err = window.New(window.Config{
		Title:      cfg.Display.Title,
		Width:      cfg.Display.Width,
		Height:     cfg.Display.Height,
		Fullscreen: cfg.Display.Fullscreen,
		VSync:      cfg.Display.VSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	if v.device, err = gldevice.New(); err != nil {
		v.Close()
		return nil, err
	}

	v.assets = assets.NewManager(cfg.Assets.ShaderDir, cfg.Assets.TextureDir)

	opts := scene.DefaultOptions()
	opts.GroundTexture = cfg.Assets.GroundTexture
	if v.scene, err = scene.New(v.device, v.assets, opts); err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to create scene: %w", err)
	}

	if v.pipeline, err = pipeline.New(v.device, v.assets, v.window, v.scene, pipeline.FromConfig(cfg)); err != nil {
		v.Close()
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	v.camera = camera.NewOrbitCamera()
	v.camera.FitToBounds(v.scene.Bounds())

	logger.Info("viewer initialized")
	return v, nil
}

// Run draws frames until the window closes or ctx is cancelled.
func (v *Viewer) Run(ctx context.Context) error {
	v.running = true

	start := time.Now()
	lastTime := start
	frameCount := 0
	fpsTimer := start

	logger.Info("starting render loop")

	for v.running {
		if err := ctx.Err(); err != nil {
			return nil
		}

		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if v.input.Update() {
			break
		}
		capture := v.handleEvents()
		v.handleMovement()

		v.scene.Update(now.Sub(start).Seconds())
		v.camera.SetAspect(v.window.Size())

		res, err := v.pipeline.Render(ctx, v.camera, v.sun, v.scene.Lights())
		if err != nil {
			return fmt.Errorf("render error: %w", err)
		}
		if res.Skipped {
			sdl.Delay(uint32(minimisedDelay.Milliseconds()))
			continue
		}

		if capture {
			if path, err := v.shots.Capture(v.device, res.Output); err != nil {
				logger.Warn("screenshot failed", zap.Error(err))
			} else {
				logger.Info("screenshot saved", zap.String("path", path))
			}
		}

		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			logger.Debug("fps", zap.Int("count", frameCount), zap.Float64("dtMs", dt*1000))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

// handleEvents applies this frame's events. Returns true when a screenshot was requested.
func (v *Viewer) handleEvents() bool {
	capture := false
	for _, event := range v.input.Events() {
		switch event.Type {
		case input.EventKeyDown:
			switch event.Key {
			case sdl.SCANCODE_ESCAPE:
				v.running = false
			case sdl.SCANCODE_F12:
				capture = true
			}
		case input.EventDrag:
			v.camera.HandleDrag(event.DX, event.DY)
		case input.EventWheel:
			v.camera.HandleZoom(event.DY)
		case input.EventWindowMinimised:
			logger.Debug("window minimised")
		case input.EventWindowResize:
			logger.Debug("window resized", zap.Int("width", event.Width), zap.Int("height", event.Height))
		}
	}
	return capture
}

func (v *Viewer) handleMovement() {
	var forward, right, up float32
	if v.input.IsKeyHeld(sdl.SCANCODE_W) {
		forward++
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_S) {
		forward--
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_D) {
		right++
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_A) {
		right--
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_E) {
		up++
	}
	if v.input.IsKeyHeld(sdl.SCANCODE_Q) {
		up--
	}
	if forward != 0 || right != 0 || up != 0 {
		v.camera.HandleMovement(forward, right, up)
	}
}

// Close releases the pipeline, the device and the window.
func (v *Viewer) Close() {
	logger.Info("closing viewer")

	var errs []error
	if v.pipeline != nil {
		errs = append(errs, v.pipeline.Destroy(context.Background()))
	}
	if v.scene != nil {
		v.scene.Destroy()
	}
	if v.assets != nil {
		v.assets.Close()
	}
	if v.device != nil {
		v.device.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("releasing pipeline", zap.Error(err))
	}
}
