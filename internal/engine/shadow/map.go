package shadow

import (
	"context"
	"fmt"

	"github.com/Faultbox/midgard-render/internal/engine/frame"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/stage"
)

// DefaultResolution is the default shadow map resolution.
const DefaultResolution = 2048

// Map is the depth-only stage the shadow casters are rendered into.
type Map struct {
	stage *stage.Stage
}

// NewMap creates a square depth map. Resolution should be a power of 2.
func NewMap(dev gpu.Device, resolution int) (*Map, error) {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	st, err := stage.New(dev, stage.Description{
		Name: "shadows",
		Depth: &stage.Attachment{
			Label:  "depth",
			Format: gpu.FormatDepth32F,
			Clear:  gpu.ClearValue{Depth: 1},
		},
		Width:  resolution,
		Height: resolution,
	})
	if err != nil {
		return nil, fmt.Errorf("creating shadow map: %w", err)
	}
	return &Map{stage: st}, nil
}

// Begin starts the depth pass.
func (m *Map) Begin(f *frame.Context) error {
	return m.stage.Begin(f.Commands, f.ImageIndex)
}

// End finishes the depth pass.
func (m *Map) End(f *frame.Context) {
	f.Commands.EndPass()
}

// Texture returns the depth image sampled by the lighting pass.
func (m *Map) Texture() *gpu.Image {
	return m.stage.DepthImage()
}

// Resolution returns the map width (= height) in texels.
func (m *Map) Resolution() int {
	return m.stage.Width()
}

// Stage returns the underlying stage.
func (m *Map) Stage() *stage.Stage {
	return m.stage
}

// Destroy releases the depth image once the last tracked frame is done.
func (m *Map) Destroy(ctx context.Context) error {
	return m.stage.Destroy(ctx)
}
