// Package headless renders frames on the CPU device and writes them as PNG.
package headless

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-render/internal/assets"
	"github.com/Faultbox/midgard-render/internal/config"
	"github.com/Faultbox/midgard-render/internal/engine/camera"
	"github.com/Faultbox/midgard-render/internal/engine/debug"
	"github.com/Faultbox/midgard-render/internal/engine/gpu/soft"
	"github.com/Faultbox/midgard-render/internal/engine/pipeline"
	"github.com/Faultbox/midgard-render/internal/engine/scene"
	"github.com/Faultbox/midgard-render/internal/logger"
)

// FrameStep is the simulated time between frames, in seconds.
const FrameStep = 1.0 / 30

// display is a fixed-size offscreen display.
type display struct{ width, height int }

func (d display) Size() (int, int) { return d.width, d.height }

// Run renders cfg.Output.Frames frames and returns the written file paths.
func Run(ctx context.Context, cfg *config.Config) (paths []string, err error) {
	if cfg.Display.Width <= 0 || cfg.Display.Height <= 0 {
		return nil, fmt.Errorf("headless rendering needs a display size, got %dx%d", cfg.Display.Width, cfg.Display.Height)
	}

	dev := soft.New()
	defer dev.Close()

	am := assets.NewManager(cfg.Assets.ShaderDir, cfg.Assets.TextureDir)
	defer am.Close()

	opts := scene.DefaultOptions()
	opts.GroundTexture = cfg.Assets.GroundTexture
	sc, err := scene.New(dev, am, opts)
	if err != nil {
		return nil, err
	}
	defer sc.Destroy()

	disp := display{cfg.Display.Width, cfg.Display.Height}
	p, err := pipeline.New(dev, am, disp, sc, pipeline.FromConfig(cfg))
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, p.Destroy(context.Background()))
	}()

	cam := camera.NewOrbitCamera()
	cam.FitToBounds(sc.Bounds())
	cam.SetAspect(disp.Size())

	sun := pipeline.SunFromConfig(cfg)
	shots := debug.NewScreenshots(cfg.Output.ScreenshotDir, "frame")

	logger.Info("rendering headless",
		zap.Int("frames", cfg.Output.Frames),
		zap.Int("width", disp.width),
		zap.Int("height", disp.height))

	for i := 0; i < cfg.Output.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		sc.Update(float64(i) * FrameStep)

		res, err := p.Render(ctx, cam, sun, sc.Lights())
		if err != nil {
			return paths, err
		}
		path, err := shots.CaptureFrame(dev, res.Output, res.Frame)
		if err != nil {
			return paths, err
		}
		logger.Debug("frame written", zap.Uint64("frame", res.Frame), zap.String("path", path))
		paths = append(paths, path)
	}
	return paths, nil
}
