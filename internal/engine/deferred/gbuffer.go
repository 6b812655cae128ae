package deferred

import (
	"errors"
	"fmt"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

// ErrAttachmentOrder is returned when the lighting inputs are missing or
// bound in the wrong slots.
var ErrAttachmentOrder = errors.New("lighting inputs out of order")

// Texture units of the lighting pass inputs.
const (
	UnitColour = iota
	UnitNormal
	UnitExtras
	UnitDepth
	UnitShadow
)

// samplerNames are the sampler uniforms, indexed by unit.
var samplerNames = [...]string{
	UnitColour: "samplerColour",
	UnitNormal: "samplerNormal",
	UnitExtras: "samplerExtras",
	UnitDepth:  "samplerDepth",
	UnitShadow: "samplerShadows",
}

// GBuffer is the fixed set of images the lighting pass reads.
//
// Extras holds per-pixel material flags: R > 0.5 marks an unlit surface,
// G > 0.5 a surface that receives shadows.
type GBuffer struct {
	Colour *gpu.Image
	Normal *gpu.Image
	Extras *gpu.Image
	Depth  *gpu.Image
	Shadow *gpu.Image
}

// units returns the images in binding order.
func (g GBuffer) units() [5]*gpu.Image {
	return [5]*gpu.Image{g.Colour, g.Normal, g.Extras, g.Depth, g.Shadow}
}

// Validate checks that every slot is filled with an image of the right kind.
func (g GBuffer) Validate() error {
	for unit, img := range g.units() {
		name := samplerNames[unit]
		if img == nil {
			return fmt.Errorf("%w: %s is missing", ErrAttachmentOrder, name)
		}
		wantDepth := unit == UnitDepth || unit == UnitShadow
		if img.Format.IsDepth() != wantDepth {
			return fmt.Errorf("%w: %s bound to %q (%s)", ErrAttachmentOrder, name, img.Label, img.Format)
		}
	}
	if g.Normal.Width != g.Colour.Width || g.Extras.Width != g.Colour.Width || g.Depth.Width != g.Colour.Width ||
		g.Normal.Height != g.Colour.Height || g.Extras.Height != g.Colour.Height || g.Depth.Height != g.Colour.Height {
		return fmt.Errorf("%w: g-buffer attachments differ in size", ErrAttachmentOrder)
	}
	return nil
}
