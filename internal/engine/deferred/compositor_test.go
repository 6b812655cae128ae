package deferred

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/assets"
	"github.com/Faultbox/midgard-render/internal/engine/camera"
	"github.com/Faultbox/midgard-render/internal/engine/frame"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/gpu/soft"
	"github.com/Faultbox/midgard-render/internal/engine/lighting"
	"github.com/Faultbox/midgard-render/internal/engine/shadow"
	"github.com/Faultbox/midgard-render/internal/engine/stage"
)

const (
	width  = 16
	height = 12
)

type fixture struct {
	dev        *soft.Device
	shadows    *shadow.Shadows
	shadowMap  *shadow.Map
	gbuffer    *stage.Stage
	compositor *Compositor
	cam        *camera.Perspective
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := soft.New()

	shadows := shadow.New(shadow.DefaultSettings())
	shadowMap, err := shadow.NewMap(dev, 32)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}

	gbuffer, err := stage.New(dev, stage.Description{
		Name: "gbuffer",
		Colour: []stage.Attachment{
			{Label: "colour", Format: gpu.FormatRGBA8},
			{Label: "normal", Format: gpu.FormatRGBA16F},
			{Label: "extras", Format: gpu.FormatRGBA8},
		},
		Depth:  &stage.Attachment{Label: "depth", Format: gpu.FormatDepth32F, Clear: gpu.ClearValue{Depth: 1}},
		Width:  width,
		Height: height,
	})
	if err != nil {
		t.Fatalf("gbuffer: %v", err)
	}

	c, err := New(dev, assets.NewManager("", ""), shadows)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	lens := camera.Lens{FovY: mgl32.DegToRad(60), Aspect: float32(width) / height, ZNear: 0.5, ZFar: 300}
	cam := camera.NewPerspective(mgl32.Vec3{0, 10, 10}, mgl32.Vec3{}, lens)

	return &fixture{dev: dev, shadows: shadows, shadowMap: shadowMap, gbuffer: gbuffer, compositor: c, cam: cam}
}

func (fx *fixture) gbufferInputs() GBuffer {
	return GBuffer{
		Colour: fx.gbuffer.ColourImage(0),
		Normal: fx.gbuffer.ColourImage(1),
		Extras: fx.gbuffer.ColourImage(2),
		Depth:  fx.gbuffer.DepthImage(),
		Shadow: fx.shadowMap.Texture(),
	}
}

// fill writes a uniform surface into the g-buffer: 0.6 grey albedo, normals up,
// all pixels at the depth of the world origin.
func (fx *fixture) fill(extras mgl32.Vec4) {
	g := fx.gbufferInputs()
	clip := fx.cam.Projection().Mul4(fx.cam.View()).Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	depth := clip[2]/clip[3]*0.5 + 0.5

	fx.dev.Fill(g.Colour, func(x, y int) mgl32.Vec4 { return mgl32.Vec4{0.6, 0.6, 0.6, 1} })
	fx.dev.Fill(g.Normal, func(x, y int) mgl32.Vec4 { return mgl32.Vec4{0, 1, 0, 0} })
	fx.dev.Fill(g.Extras, func(x, y int) mgl32.Vec4 { return extras })
	fx.dev.Fill(g.Depth, func(x, y int) mgl32.Vec4 { return mgl32.Vec4{depth, depth, depth, 1} })
}

func (fx *fixture) frame() *frame.Context {
	f := frame.New(context.Background(), width, height)
	f.Camera = fx.cam
	f.Sun = lighting.Sun{Longitude: 0, Latitude: 90, Color: mgl32.Vec3{1, 1, 1}, Ambient: 0.25}
	f.Commands = fx.dev.Begin()
	fx.shadows.Update(f)
	return f
}

func approx(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-3
}

func TestApplySunLighting(t *testing.T) {
	fx := newFixture(t)
	fx.fill(mgl32.Vec4{0, 0, 0, 1})
	f := fx.frame()

	out, err := fx.compositor.Apply(f, fx.gbufferInputs())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Width != width || out.Height != height {
		t.Errorf("expected %dx%d output, got %dx%d", width, height, out.Width, out.Height)
	}

	// 0.6 * (ambient 0.25 + sun 1 * n.l 1)
	got := fx.dev.Pixel(out, width/2, height/2)
	if !approx(got[0], 0.75) || !approx(got[1], 0.75) || !approx(got[2], 0.75) {
		t.Errorf("expected 0.75 grey, got %v", got)
	}
}

func TestApplyShadowed(t *testing.T) {
	tests := []struct {
		name        string
		shadowDepth float32
		want        float32
	}{
		// 0.6 * (0.25 + 1 * (1 - darkness 0.6))
		{"occluded", 0, 0.39},
		{"clear", 1, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.fill(mgl32.Vec4{0, 1, 0, 1})
			fx.dev.Fill(fx.shadowMap.Texture(), func(x, y int) mgl32.Vec4 {
				return mgl32.Vec4{tt.shadowDepth, tt.shadowDepth, tt.shadowDepth, 1}
			})
			f := fx.frame()

			out, err := fx.compositor.Apply(f, fx.gbufferInputs())
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			got := fx.dev.Pixel(out, width/2, height/2)
			if !approx(got[0], tt.want) {
				t.Errorf("expected %f, got %v", tt.want, got)
			}
		})
	}
}

func TestApplyShadowFadesOutBeyondDistance(t *testing.T) {
	fx := newFixture(t)
	fx.shadows.Settings.Distance = 5
	fx.shadows.Settings.Transition = 1
	fx.fill(mgl32.Vec4{0, 1, 0, 1})
	fx.dev.Fill(fx.shadowMap.Texture(), func(x, y int) mgl32.Vec4 { return mgl32.Vec4{} })
	f := fx.frame()

	out, err := fx.compositor.Apply(f, fx.gbufferInputs())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	// The surface is ~14 units from the camera, past the shadow distance.
	if got := fx.dev.Pixel(out, width/2, height/2); !approx(got[0], 0.75) {
		t.Errorf("expected unshadowed 0.75 beyond the shadow distance, got %v", got)
	}
}

func TestApplyUnlitPassesThrough(t *testing.T) {
	fx := newFixture(t)
	fx.fill(mgl32.Vec4{1, 1, 0, 1})
	f := fx.frame()

	out, err := fx.compositor.Apply(f, fx.gbufferInputs())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	albedo := fx.dev.Pixel(fx.gbuffer.ColourImage(0), 3, 3)
	if got := fx.dev.Pixel(out, 3, 3); got != albedo {
		t.Errorf("unlit pixel should equal albedo %v, got %v", albedo, got)
	}
}

func TestApplyPointLight(t *testing.T) {
	fx := newFixture(t)
	fx.fill(mgl32.Vec4{0, 0, 0, 1})
	f := fx.frame()
	f.Sun.Color = mgl32.Vec3{}
	f.Sun.Ambient = 0
	fx.shadows.Settings.BrightnessBoost = 0
	f.Lights = []lighting.Light{{Position: mgl32.Vec3{0, 5, 0}, Color: mgl32.Vec3{1, 0, 0}}}

	out, err := fx.compositor.Apply(f, fx.gbufferInputs())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := fx.dev.Pixel(out, width/2, height/2)
	if got[0] <= 0.1 {
		t.Errorf("expected red light contribution, got %v", got)
	}
	if got[1] != 0 || got[2] != 0 {
		t.Errorf("expected only red, got %v", got)
	}
}

func TestApplyBindsInputsInOrder(t *testing.T) {
	fx := newFixture(t)
	fx.fill(mgl32.Vec4{0, 0, 0, 1})
	g := fx.gbufferInputs()

	if _, err := fx.compositor.Apply(fx.frame(), g); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	draws := fx.dev.Draws()
	if len(draws) == 0 {
		t.Fatal("expected a draw")
	}
	last := draws[len(draws)-1]
	if last.Program != "deferred" {
		t.Errorf("expected deferred program, got %s", last.Program)
	}
	want := map[int]*gpu.Image{
		UnitColour: g.Colour,
		UnitNormal: g.Normal,
		UnitExtras: g.Extras,
		UnitDepth:  g.Depth,
		UnitShadow: g.Shadow,
	}
	for unit, img := range want {
		if last.Inputs[unit] != img {
			t.Errorf("unit %d: expected %q, got %v", unit, img.Label, last.Inputs[unit])
		}
	}
}

func TestApplyTooManyLights(t *testing.T) {
	fx := newFixture(t)
	fx.fill(mgl32.Vec4{0, 0, 0, 1})
	f := fx.frame()
	f.Lights = make([]lighting.Light, lighting.MaxLights+1)

	_, err := fx.compositor.Apply(f, fx.gbufferInputs())
	if !errors.Is(err, lighting.ErrTooManyLights) {
		t.Fatalf("expected ErrTooManyLights, got %v", err)
	}
	if len(fx.dev.Draws()) != 0 {
		t.Error("no draw should be issued when the light count is invalid")
	}
}

func TestApplyAttachmentOrder(t *testing.T) {
	fx := newFixture(t)
	g := fx.gbufferInputs()

	tests := []struct {
		name string
		g    GBuffer
	}{
		{"depth in normal slot", GBuffer{Colour: g.Colour, Normal: g.Depth, Extras: g.Extras, Depth: g.Normal, Shadow: g.Shadow}},
		{"missing shadow map", GBuffer{Colour: g.Colour, Normal: g.Normal, Extras: g.Extras, Depth: g.Depth}},
		{"colour in shadow slot", GBuffer{Colour: g.Colour, Normal: g.Normal, Extras: g.Extras, Depth: g.Depth, Shadow: g.Colour}},
		{"empty", GBuffer{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.compositor.Apply(fx.frame(), tt.g)
			if !errors.Is(err, ErrAttachmentOrder) {
				t.Errorf("expected ErrAttachmentOrder, got %v", err)
			}
		})
	}
}

func TestApplyFollowsDisplaySize(t *testing.T) {
	fx := newFixture(t)
	fx.fill(mgl32.Vec4{0, 0, 0, 1})
	f := fx.frame()

	if _, err := fx.compositor.Apply(f, fx.gbufferInputs()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	f.Width, f.Height = 8, 6
	out, err := fx.compositor.Apply(f, fx.gbufferInputs())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Width != 8 || out.Height != 6 {
		t.Errorf("expected 8x6, got %dx%d", out.Width, out.Height)
	}
	if fx.compositor.Output() != out {
		t.Error("Output should return the last lit image")
	}
}

func TestDestroy(t *testing.T) {
	fx := newFixture(t)
	fx.fill(mgl32.Vec4{0, 0, 0, 1})
	if _, err := fx.compositor.Apply(fx.frame(), fx.gbufferInputs()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	before := fx.dev.LiveImages()
	if err := fx.compositor.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if fx.dev.LiveImages() != before-1 {
		t.Errorf("expected the lit image to be released, live images %d -> %d", before, fx.dev.LiveImages())
	}
}
