package post

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/shader"
)

// Effect is one of the filter variants below. The set is closed.
type Effect interface {
	// Name identifies the effect in config files and logs.
	Name() string

	fragment() string
	kernel() gpu.Kernel
	// store writes the effect's uniforms for a target of the given size.
	store(cs gpu.CommandStream, width, height int)
}

// BlurHorizontal is the horizontal half of a separable gaussian blur.
type BlurHorizontal struct {
	Scale float32 // Tap spread in target pixels
}

// BlurVertical is the vertical half of a separable gaussian blur.
type BlurVertical struct {
	Scale float32
}

// FXAA is fast approximate anti-aliasing.
type FXAA struct {
	SpanMax float32 // Longest edge search, in pixels
}

// Darken scales colour towards black. Factor is clamped to [0,1]:
// 0 leaves the image unchanged, 1 makes it black.
type Darken struct {
	Factor float32
}

// Grey converts to luminance.
type Grey struct{}

// Negative inverts the colour channels.
type Negative struct{}

// Vignette darkens the corners.
type Vignette struct {
	Strength float32
}

// Pixelate snaps the image to square cells.
type Pixelate struct {
	Size float32 // Cell edge in target pixels
}

func (BlurHorizontal) Name() string { return "blur_h" }
func (BlurVertical) Name() string   { return "blur_v" }
func (FXAA) Name() string           { return "fxaa" }
func (Darken) Name() string         { return "darken" }
func (Grey) Name() string           { return "grey" }
func (Negative) Name() string       { return "negative" }
func (Vignette) Name() string       { return "vignette" }
func (Pixelate) Name() string       { return "pixelate" }

func (BlurHorizontal) fragment() string { return shader.Blur }
func (BlurVertical) fragment() string   { return shader.Blur }
func (FXAA) fragment() string           { return shader.FXAA }
func (Darken) fragment() string         { return shader.Darken }
func (Grey) fragment() string           { return shader.Grey }
func (Negative) fragment() string       { return shader.Negative }
func (Vignette) fragment() string       { return shader.Vignette }
func (Pixelate) fragment() string       { return shader.Pixelate }

func (BlurHorizontal) kernel() gpu.Kernel { return blurKernel }
func (BlurVertical) kernel() gpu.Kernel   { return blurKernel }
func (FXAA) kernel() gpu.Kernel           { return fxaaKernel }
func (Darken) kernel() gpu.Kernel         { return darkenKernel }
func (Grey) kernel() gpu.Kernel           { return greyKernel }
func (Negative) kernel() gpu.Kernel       { return negativeKernel }
func (Vignette) kernel() gpu.Kernel       { return vignetteKernel }
func (Pixelate) kernel() gpu.Kernel       { return pixelateKernel }

func (e BlurHorizontal) store(cs gpu.CommandStream, width, height int) {
	cs.SetVec2("blurDirection", mgl32.Vec2{1, 0})
	cs.SetFloat("blurResolution", float32(width))
	cs.SetFloat("blurScale", e.Scale)
}

func (e BlurVertical) store(cs gpu.CommandStream, width, height int) {
	cs.SetVec2("blurDirection", mgl32.Vec2{0, 1})
	cs.SetFloat("blurResolution", float32(height))
	cs.SetFloat("blurScale", e.Scale)
}

func (e FXAA) store(cs gpu.CommandStream, width, height int) {
	cs.SetVec2("texelSize", mgl32.Vec2{1 / float32(width), 1 / float32(height)})
	cs.SetFloat("spanMax", e.SpanMax)
}

func (e Darken) store(cs gpu.CommandStream, width, height int) {
	factor := e.Factor
	if math.IsNaN(float64(factor)) || math.IsInf(float64(factor), 0) {
		factor = 0
	}
	cs.SetFloat("factor", mgl32.Clamp(factor, 0, 1))
}

func (Grey) store(cs gpu.CommandStream, width, height int)     {}
func (Negative) store(cs gpu.CommandStream, width, height int) {}

func (e Vignette) store(cs gpu.CommandStream, width, height int) {
	cs.SetFloat("vignetteStrength", e.Strength)
}

func (e Pixelate) store(cs gpu.CommandStream, width, height int) {
	size := e.Size
	if size < 1 {
		size = 1
	}
	cs.SetVec2("resolution", mgl32.Vec2{float32(width), float32(height)})
	cs.SetFloat("pixelSize", size)
}

// Params are the tunables used when effects are built by name.
type Params struct {
	BlurScale        float32
	FXAASpan         float32
	DarkenFactor     float32
	VignetteStrength float32
	PixelSize        float32
}

// EffectByName returns the effect registered under name.
func EffectByName(name string, p Params) (Effect, error) {
	switch name {
	case "blur_h":
		return BlurHorizontal{Scale: p.BlurScale}, nil
	case "blur_v":
		return BlurVertical{Scale: p.BlurScale}, nil
	case "fxaa":
		return FXAA{SpanMax: p.FXAASpan}, nil
	case "darken":
		return Darken{Factor: p.DarkenFactor}, nil
	case "grey":
		return Grey{}, nil
	case "negative":
		return Negative{}, nil
	case "vignette":
		return Vignette{Strength: p.VignetteStrength}, nil
	case "pixelate":
		return Pixelate{Size: p.PixelSize}, nil
	default:
		return nil, fmt.Errorf("unknown filter %q", name)
	}
}
