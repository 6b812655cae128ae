package pipeline

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/config"
	"github.com/Faultbox/midgard-render/internal/engine/lighting"
	"github.com/Faultbox/midgard-render/internal/engine/post"
	"github.com/Faultbox/midgard-render/internal/engine/shadow"
)

// FromConfig converts the loaded configuration into pipeline settings.
func FromConfig(cfg *config.Config) Config {
	out := DefaultConfig()
	s := cfg.Shadows
	out.Shadows = shadow.Settings{
		Size:            s.Size,
		PCF:             s.PCF,
		Bias:            s.Bias,
		Darkness:        s.Darkness,
		Distance:        s.Distance,
		Transition:      s.Transition,
		BoxOffset:       s.BoxOffset,
		BoxDistance:     s.BoxDistance,
		Margin:          s.Margin,
		BrightnessBoost: s.BrightnessBoost,
	}
	out.PostEnabled = cfg.Post.Enabled
	out.Filters = append([]string(nil), cfg.Post.Filters...)
	out.Post = post.Options{
		Params: post.Params{
			BlurScale:        cfg.Post.BlurScale,
			FXAASpan:         cfg.Post.FXAASpan,
			DarkenFactor:     cfg.Post.DarkenFactor,
			VignetteStrength: cfg.Post.VignetteStrength,
			PixelSize:        cfg.Post.PixelSize,
		},
		BlurSize: cfg.Post.BlurSize,
	}
	return out
}

// SunFromConfig returns the configured sun.
func SunFromConfig(cfg *config.Config) lighting.Sun {
	l := cfg.Lighting
	return lighting.Sun{
		Longitude: l.SunLongitude,
		Latitude:  l.SunLatitude,
		Color:     mgl32.Vec3(l.SunColour),
		Ambient:   l.Ambient,
	}
}
