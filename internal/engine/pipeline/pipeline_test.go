package pipeline

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
)

type display struct{ w, h int }

func (d *display) Size() (int, int) { return d.w, d.h }

// floorScene fills the lower half of the screen with a lit floor and
// leaves the upper half to the sky.
type floorScene struct {
	geometry *gpu.Program
	shadows  *gpu.Program
	calls    []string
	fail     error
}

func newFloorScene(t *testing.T, dev gpu.Device) *floorScene {
	t.Helper()
	geom, err := dev.CreateProgram(gpu.ProgramSource{Name: "floor", Kernel: func(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
		if frag.V > 0.5 {
			out.Discard = true
			return
		}
		out.Colour[GBufferColour] = mgl32.Vec4{0.6, 0.6, 0.6, 1}
		out.Colour[GBufferNormal] = mgl32.Vec4{0, 1, 0, 0}
		out.Colour[GBufferExtras] = mgl32.Vec4{0, 1, 0, 1}
		out.Depth = 0.5
		out.WriteDepth = true
	}})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	shad, err := dev.CreateProgram(gpu.ProgramSource{Name: "floor.shadow", Kernel: func(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
		out.Discard = true
	}})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	return &floorScene{geometry: geom, shadows: shad}
}

func (s *floorScene) RenderShadows(f *frame.Context, shadows *shadow.Shadows) error {
	s.calls = append(s.calls, "shadows")
	if s.fail != nil {
		return s.fail
	}
	f.Commands.UseProgram(s.shadows)
	f.Commands.SetMat4("projectionView", shadows.ProjectionViewMatrix())
	f.Commands.DrawFullscreen()
	return nil
}

func (s *floorScene) RenderGeometry(f *frame.Context) error {
	s.calls = append(s.calls, "geometry")
	f.Commands.UseProgram(s.geometry)
	f.Commands.DrawFullscreen()
	return nil
}

func newCamera(w, h int) camera.Camera {
	lens := camera.DefaultLens()
	lens.SetAspect(w, h)
	return camera.NewPerspective(mgl32.Vec3{0, 10, 20}, mgl32.Vec3{}, lens)
}

func testConfig(filters ...string) Config {
	cfg := DefaultConfig()
	cfg.Shadows.Size = 64
	cfg.Filters = filters
	cfg.PostEnabled = len(filters) > 0
	return cfg
}

func newPipeline(t *testing.T, dev *soft.Device, d Display, s Scene, cfg Config) *Pipeline {
	t.Helper()
	p, err := New(dev, assets.NewManager("", ""), d, s, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestRenderPassOrder(t *testing.T) {
	dev := soft.New()
	disp := &display{32, 24}
	scene := newFloorScene(t, dev)
	p := newPipeline(t, dev, disp, scene, testConfig("grey"))

	res, err := p.Render(context.Background(), newCamera(32, 24), lighting.Sun{Latitude: 60, Color: mgl32.Vec3{1, 1, 1}}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Skipped {
		t.Fatal("frame should not be skipped")
	}

	var programs []string
	for _, d := range dev.Draws() {
		programs = append(programs, d.Program)
	}
	want := []string{"floor.shadow", "floor", "deferred", "grey"}
	if len(programs) != len(want) {
		t.Fatalf("draws = %v, want %v", programs, want)
	}
	for i := range want {
		if programs[i] != want[i] {
			t.Errorf("draw %d = %s, want %s", i, programs[i], want[i])
		}
	}
	if len(scene.calls) != 2 || scene.calls[0] != "shadows" || scene.calls[1] != "geometry" {
		t.Errorf("scene calls = %v", scene.calls)
	}

	lit := dev.Draws()[2]
	if lit.Inputs[4] != p.ShadowMap().Texture() {
		t.Error("lighting pass did not read the shadow map")
	}
	if lit.Inputs[0] != p.GBuffer().ColourImage(GBufferColour) {
		t.Error("lighting pass did not read the g-buffer colour")
	}
	if dev.Draws()[3].Inputs[0] != p.Compositor().Output() {
		t.Error("filter did not read the lit image")
	}
	if res.Output != p.Chain().Passes()[0].Output() {
		t.Error("result should be the last filter output")
	}
	if dev.Submitted() != 1 {
		t.Errorf("submitted = %d, want 1", dev.Submitted())
	}
}

func TestRenderSkyAndFloor(t *testing.T) {
	dev := soft.New()
	disp := &display{16, 16}
	cfg := testConfig()
	p := newPipeline(t, dev, disp, newFloorScene(t, dev), cfg)

	res, err := p.Render(context.Background(), newCamera(16, 16), lighting.Sun{Latitude: 90, Color: mgl32.Vec3{1, 1, 1}, Ambient: 0.2}, nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if res.Output != p.Compositor().Output() {
		t.Fatal("without filters the lit image is the output")
	}

	sky := dev.Pixel(res.Output, 8, 14)
	for i := 0; i < 3; i++ {
		if math.Abs(float64(sky[i]-cfg.Sky[i])) > 1.0/255 {
			t.Errorf("sky[%d] = %f, want %f", i, sky[i], cfg.Sky[i])
		}
	}

	floor := dev.Pixel(res.Output, 8, 2)
	if floor[0] <= 0.6*0.2 {
		t.Errorf("floor should be lit above ambient, got %v", floor)
	}

	present := p.Present().ActiveFramebuffer(res.ImageIndex).Colour[0]
	got := dev.Pixel(present, 8, 14)
	if math.Abs(float64(got[2]-sky[2])) > 2.0/255 {
		t.Errorf("presented sky = %v, want %v", got, sky)
	}
}

func TestRenderCyclesSwapchainImages(t *testing.T) {
	dev := soft.New(soft.WithSwapchainImages(3))
	p := newPipeline(t, dev, &display{8, 8}, newFloorScene(t, dev), testConfig())

	want := []int{0, 1, 2, 0}
	for i, idx := range want {
		res, err := p.Render(context.Background(), newCamera(8, 8), lighting.Sun{Latitude: 45}, nil)
		if err != nil {
			t.Fatalf("Render %d: %v", i, err)
		}
		if res.ImageIndex != idx {
			t.Errorf("frame %d image index = %d, want %d", i, res.ImageIndex, idx)
		}
		if res.Frame != uint64(i) {
			t.Errorf("frame index = %d, want %d", res.Frame, i)
		}
	}
}

func TestRenderRetiresFinishedFrames(t *testing.T) {
	dev := soft.New()
	p := newPipeline(t, dev, &display{8, 8}, newFloorScene(t, dev), testConfig("grey"))

	for i := 0; i < 50; i++ {
		if _, err := p.Render(context.Background(), newCamera(8, 8), lighting.Sun{Latitude: 45}, nil); err != nil {
			t.Fatalf("Render %d: %v", i, err)
		}
	}
	// Soft fences signal on submit, so only the last frame stays tracked.
	for _, s := range []interface{ InFlight() int }{p.GBuffer(), p.ShadowMap().Stage(), p.Compositor().Stage(), p.Present()} {
		if n := s.InFlight(); n != 1 {
			t.Errorf("%d fences in flight after 50 frames, want 1", n)
		}
	}
	for _, pass := range p.Chain().Passes() {
		if n := pass.Stage().InFlight(); n != 1 {
			t.Errorf("filter %s: %d fences in flight, want 1", pass.Effect().Name(), n)
		}
	}
}

func TestRenderZeroDisplaySkips(t *testing.T) {
	dev := soft.New()
	disp := &display{16, 16}
	scene := newFloorScene(t, dev)
	p := newPipeline(t, dev, disp, scene, testConfig("blur_h", "blur_v"))
	cam := newCamera(16, 16)

	if _, err := p.Render(context.Background(), cam, lighting.Sun{Latitude: 45}, nil); err != nil {
		t.Fatalf("Render: %v", err)
	}

	disp.w, disp.h = 0, 0
	res, err := p.Render(context.Background(), cam, lighting.Sun{Latitude: 45}, nil)
	if err != nil {
		t.Fatalf("Render minimised: %v", err)
	}
	if !res.Skipped {
		t.Error("expected skipped frame")
	}
	if dev.Submitted() != 1 {
		t.Errorf("submitted = %d, want 1", dev.Submitted())
	}
	if p.GBuffer().Usable() || p.Present().Usable() || p.Compositor().Stage().Usable() {
		t.Error("display-sized stages should be unusable while minimised")
	}
	for _, pass := range p.Chain().Passes() {
		if pass.Stage().Usable() {
			t.Errorf("%s should be unusable", pass.Stage().Name())
		}
	}
	if !p.ShadowMap().Stage().Usable() {
		t.Error("the shadow map does not follow the display")
	}

	disp.w, disp.h = 20, 10
	res, err = p.Render(context.Background(), cam, lighting.Sun{Latitude: 45}, nil)
	if err != nil {
		t.Fatalf("Render restored: %v", err)
	}
	if res.Skipped {
		t.Error("restored frame should render")
	}
	if p.GBuffer().Width() != 20 || p.GBuffer().Height() != 10 {
		t.Errorf("gbuffer = %dx%d, want 20x10", p.GBuffer().Width(), p.GBuffer().Height())
	}
	if blur := p.Chain().Passes()[0].Stage(); blur.Width() != 10 || blur.Height() != 5 {
		t.Errorf("blur = %dx%d, want 10x5", blur.Width(), blur.Height())
	}
}

func TestRenderResize(t *testing.T) {
	dev := soft.New()
	disp := &display{16, 12}
	p := newPipeline(t, dev, disp, newFloorScene(t, dev), testConfig("fxaa"))
	cam := newCamera(16, 12)

	for _, size := range [][2]int{{16, 12}, {8, 6}, {8, 6}} {
		disp.w, disp.h = size[0], size[1]
		res, err := p.Render(context.Background(), cam, lighting.Sun{Latitude: 45}, nil)
		if err != nil {
			t.Fatalf("Render %v: %v", size, err)
		}
		if res.Output.Width != size[0] || res.Output.Height != size[1] {
			t.Errorf("output = %dx%d, want %v", res.Output.Width, res.Output.Height, size)
		}
		if p.Present().Width() != size[0] {
			t.Errorf("present width = %d, want %d", p.Present().Width(), size[0])
		}
	}
}

func TestRenderSceneError(t *testing.T) {
	dev := soft.New()
	scene := newFloorScene(t, dev)
	scene.fail = errors.New("boom")
	p := newPipeline(t, dev, &display{8, 8}, scene, testConfig())

	_, err := p.Render(context.Background(), newCamera(8, 8), lighting.Sun{}, nil)
	if !errors.Is(err, scene.fail) {
		t.Fatalf("err = %v, want scene error", err)
	}
	if dev.Submitted() != 0 {
		t.Error("failed frame must not be submitted")
	}
}

func TestRenderTooManyLights(t *testing.T) {
	dev := soft.New()
	p := newPipeline(t, dev, &display{8, 8}, newFloorScene(t, dev), testConfig())

	lights := make([]lighting.Light, lighting.MaxLights+1)
	_, err := p.Render(context.Background(), newCamera(8, 8), lighting.Sun{}, lights)
	if !errors.Is(err, lighting.ErrTooManyLights) {
		t.Fatalf("err = %v, want ErrTooManyLights", err)
	}
}

func TestNewRejectsUnknownFilter(t *testing.T) {
	dev := soft.New()
	if _, err := New(dev, assets.NewManager("", ""), &display{8, 8}, newFloorScene(t, dev), testConfig("sepia")); err == nil {
		t.Fatal("expected error for unknown filter")
	}
	if dev.LiveImages() != 0 || dev.LiveFramebuffers() != 0 {
		t.Errorf("leaked %d images, %d framebuffers", dev.LiveImages(), dev.LiveFramebuffers())
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	dev := soft.New()
	p := newPipeline(t, dev, &display{8, 8}, newFloorScene(t, dev), testConfig("blur_h", "darken"))

	for i := 0; i < 2; i++ {
		if _, err := p.Render(context.Background(), newCamera(8, 8), lighting.Sun{Latitude: 45}, nil); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}
	if err := p.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if dev.LiveImages() != 0 || dev.LiveFramebuffers() != 0 {
		t.Errorf("leaked %d images, %d framebuffers", dev.LiveImages(), dev.LiveFramebuffers())
	}
}
