package pipeline

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/config"
)

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Shadows.Distance = 80
	cfg.Shadows.Margin = 12
	cfg.Post.Filters = []string{"blur_h", "blur_v"}
	cfg.Post.BlurSize = 0.25
	cfg.Post.DarkenFactor = 0.4

	got := FromConfig(cfg)
	if got.Shadows.Distance != 80 || got.Shadows.Margin != 12 {
		t.Errorf("shadows = %+v", got.Shadows)
	}
	if got.Shadows.Size != cfg.Shadows.Size || got.Shadows.PCF != cfg.Shadows.PCF {
		t.Errorf("shadow map settings not carried: %+v", got.Shadows)
	}
	if len(got.Filters) != 2 || got.Filters[1] != "blur_v" {
		t.Errorf("filters = %v", got.Filters)
	}
	if got.Post.BlurSize != 0.25 || got.Post.Params.DarkenFactor != 0.4 {
		t.Errorf("post = %+v", got.Post)
	}

	cfg.Post.Filters[0] = "grey"
	if got.Filters[0] != "blur_h" {
		t.Error("filters must not alias the config slice")
	}
}

func TestSunFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Lighting.SunLatitude = 90
	cfg.Lighting.SunColour = [3]float32{1, 0.5, 0.25}

	sun := SunFromConfig(cfg)
	if sun.Color != (mgl32.Vec3{1, 0.5, 0.25}) {
		t.Errorf("colour = %v", sun.Color)
	}
	if d := sun.Direction(); d[1] > -0.999 {
		t.Errorf("overhead sun should shine straight down, got %v", d)
	}
}
