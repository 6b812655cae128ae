package shadow

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/camera"
	"github.com/Faultbox/midgard-render/internal/engine/frame"
	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/gpu/soft"
	"github.com/Faultbox/midgard-render/internal/engine/lighting"
)

func testCamera() *camera.Perspective {
	lens := camera.Lens{FovY: mgl32.DegToRad(60), Aspect: 4.0 / 3.0, ZNear: 0.5, ZFar: 300}
	return camera.NewPerspective(mgl32.Vec3{10, 20, 30}, mgl32.Vec3{0, 0, 0}, lens)
}

func sunDirection() mgl32.Vec3 {
	return mgl32.Vec3{-0.3, -1, -0.2}.Normalize()
}

func TestBoxDeterministic(t *testing.T) {
	a := New(DefaultSettings())
	b := New(DefaultSettings())

	a.UpdateFrom(testCamera(), sunDirection())
	b.UpdateFrom(testCamera(), sunDirection())

	if a.ProjectionViewMatrix() != b.ProjectionViewMatrix() {
		t.Error("projection-view differs for identical inputs")
	}
	if a.ShadowMapSpaceMatrix() != b.ShadowMapSpaceMatrix() {
		t.Error("shadow-map-space differs for identical inputs")
	}
	if a.Box().Centre() != b.Box().Centre() {
		t.Error("box centre differs for identical inputs")
	}

	// Updating again with the same inputs must not drift.
	before := a.ShadowMapSpaceMatrix()
	a.UpdateFrom(testCamera(), sunDirection())
	if a.ShadowMapSpaceMatrix() != before {
		t.Error("repeated update changed the matrices")
	}
}

func TestBoxFollowsCamera(t *testing.T) {
	s := New(DefaultSettings())
	cam := testCamera()
	s.UpdateFrom(cam, sunDirection())
	first := s.Box().Centre()

	cam.Eye = cam.Eye.Add(mgl32.Vec3{50, 0, 0})
	cam.Target = cam.Target.Add(mgl32.Vec3{50, 0, 0})
	s.UpdateFrom(cam, sunDirection())

	moved := s.Box().Centre().Sub(first)
	if d := moved.Sub(mgl32.Vec3{50, 0, 0}); d.Len() > 5e-2 {
		t.Errorf("expected box to move with the camera by (50,0,0), moved %v", moved)
	}
}

func TestShadowSpaceMapsCornersIntoUnitCube(t *testing.T) {
	dirs := []mgl32.Vec3{
		sunDirection(),
		{0, -1, 0},
		{1, -0.2, 0},
		{0.1, 0.995, 0},
	}
	const eps = 1e-3

	for _, dir := range dirs {
		s := New(DefaultSettings())
		s.UpdateFrom(testCamera(), dir)
		m := s.ShadowMapSpaceMatrix()

		for i, c := range s.Box().Corners() {
			p := m.Mul4x1(c.Vec4(1))
			for k := 0; k < 3; k++ {
				if p[k] < -eps || p[k] > 1+eps {
					t.Errorf("dir %v corner %d axis %d: %f outside [0,1]", dir, i, k, p[k])
				}
			}
		}

		// The frustum corners sit inside the box.
		for i, c := range s.Box().Frustum() {
			p := m.Mul4x1(c.Vec4(1))
			for k := 0; k < 3; k++ {
				if p[k] < -eps || p[k] > 1+eps {
					t.Errorf("dir %v frustum corner %d axis %d: %f outside [0,1]", dir, i, k, p[k])
				}
			}
		}
	}
}

func TestMarginKeepsCornersInside(t *testing.T) {
	settings := DefaultSettings()
	settings.Margin = 20
	s := New(settings)
	s.UpdateFrom(testCamera(), sunDirection())

	for i, c := range s.Box().Corners() {
		p := s.ShadowMapSpaceMatrix().Mul4x1(c.Vec4(1))
		if p[2] <= 0 || p[2] >= 1 {
			t.Errorf("corner %d depth %f should sit strictly inside with a margin", i, p[2])
		}
	}
}

func TestBoxDistanceCapsLength(t *testing.T) {
	short := DefaultSettings()
	short.BoxDistance = 20
	long := DefaultSettings()
	long.BoxDistance = 100

	a, b := New(short), New(long)
	a.UpdateFrom(testCamera(), sunDirection())
	b.UpdateFrom(testCamera(), sunDirection())

	if a.Box().Width()*a.Box().Height() >= b.Box().Width()*b.Box().Height() {
		t.Errorf("shorter box distance should give a smaller box: %fx%f vs %fx%f",
			a.Box().Width(), a.Box().Height(), b.Box().Width(), b.Box().Height())
	}

	// The shadow distance caps the box distance.
	capped := DefaultSettings()
	capped.BoxDistance = 1000
	capped.Distance = 20
	c := New(capped)
	c.UpdateFrom(testCamera(), sunDirection())
	if c.Box().Width() != a.Box().Width() || c.Box().Height() != a.Box().Height() {
		t.Errorf("shadow distance 20 should cap like box distance 20: %fx%f vs %fx%f",
			c.Box().Width(), c.Box().Height(), a.Box().Width(), a.Box().Height())
	}
}

// collapsed is a camera whose matrices cannot be inverted.
type collapsed struct{}

func (collapsed) View() mgl32.Mat4       { return mgl32.Ident4() }
func (collapsed) Projection() mgl32.Mat4 { return mgl32.Mat4{} }
func (collapsed) Near() float32          { return 1 }
func (collapsed) Far() float32           { return 1 }
func (collapsed) Position() mgl32.Vec3   { return mgl32.Vec3{1, 2, 3} }

func TestDegenerateBoxIsFinite(t *testing.T) {
	tests := []struct {
		name string
		cam  camera.Camera
		dir  mgl32.Vec3
	}{
		{"light along view", camera.NewPerspective(mgl32.Vec3{0, 50, 0.001}, mgl32.Vec3{0, 0, 0}, camera.DefaultLens()), mgl32.Vec3{0, -1, 0}},
		{"collapsed camera", collapsed{}, sunDirection()},
		{"zero light direction", testCamera(), mgl32.Vec3{}},
		{"NaN light direction", testCamera(), mgl32.Vec3{float32(math.NaN()), 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := DefaultSettings()
			settings.BoxOffset = 0
			s := New(settings)
			s.UpdateFrom(tt.cam, tt.dir)

			for name, m := range map[string]mgl32.Mat4{
				"projection":     s.ProjectionMatrix(),
				"light view":     s.LightViewMatrix(),
				"projectionView": s.ProjectionViewMatrix(),
				"shadowSpace":    s.ShadowMapSpaceMatrix(),
			} {
				for i, v := range m {
					if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
						t.Errorf("%s[%d] = %f", name, i, v)
					}
				}
			}
			b := s.Box()
			for _, e := range []float32{b.Width(), b.Height(), b.Length()} {
				if !(e >= MinExtent*0.99) {
					t.Errorf("extent %f below minimum %f", e, float32(MinExtent))
				}
			}
		})
	}
}

func TestCollapsedCameraUsesMinExtent(t *testing.T) {
	settings := DefaultSettings()
	settings.BoxOffset = 0
	s := New(settings)
	s.UpdateFrom(collapsed{}, sunDirection())

	b := s.Box()
	for _, e := range []float32{b.Width(), b.Height(), b.Length()} {
		if math.Abs(float64(e-MinExtent)) > 1e-5 {
			t.Errorf("expected extent %f, got %f", float32(MinExtent), e)
		}
	}
	if !b.Centre().ApproxEqualThreshold(mgl32.Vec3{1, 2, 3}, 1e-4) {
		t.Errorf("collapsed box should centre on the camera, got %v", b.Centre())
	}
}

func TestUpVectorFallback(t *testing.T) {
	s := New(DefaultSettings())

	s.UpdateFrom(testCamera(), mgl32.Vec3{0, -1, 0})
	if s.Box().Up() != (mgl32.Vec3{0, 0, 1}) {
		t.Errorf("vertical light should use +Z up, got %v", s.Box().Up())
	}
	s.UpdateFrom(testCamera(), sunDirection())
	if s.Box().Up() != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("slanted light should use +Y up, got %v", s.Box().Up())
	}
}

func TestBoxContains(t *testing.T) {
	s := New(DefaultSettings())
	s.UpdateFrom(testCamera(), mgl32.Vec3{0, -1, 0})
	b := s.Box()

	if !b.Contains(b.Centre(), 0) {
		t.Error("box should contain its centre")
	}
	// Straight up the light ray from the centre: still a caster.
	if !b.Contains(b.Centre().Add(mgl32.Vec3{0, 1000, 0}), 0) {
		t.Error("points between the light and the box should count as inside")
	}
	far := b.Centre().Add(mgl32.Vec3{10000, 0, 0})
	if b.Contains(far, 1) {
		t.Error("distant point should be outside")
	}
	if !b.Contains(far, 20000) {
		t.Error("huge sphere should overlap the box")
	}
}

func TestFade(t *testing.T) {
	tests := []struct {
		distance float32
		want     float32
	}{
		{0, 1},
		{140, 1},
		{145, 0.5},
		{150, 0},
		{200, 0},
	}
	for _, tt := range tests {
		if got := Fade(tt.distance, 150, 10); math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("Fade(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
	if Fade(149, 150, 0) != 1 {
		t.Error("zero transition should be a hard edge")
	}
}

func TestUpdateFromFrame(t *testing.T) {
	f := frame.New(context.Background(), 800, 600)
	f.Camera = testCamera()
	f.Sun = lighting.Sun{Longitude: 30, Latitude: 60}

	a := New(DefaultSettings())
	a.Update(f)
	b := New(DefaultSettings())
	b.UpdateFrom(f.Camera, f.Sun.Direction())

	if a.ShadowMapSpaceMatrix() != b.ShadowMapSpaceMatrix() {
		t.Error("Update(frame) should match UpdateFrom with the frame's camera and sun")
	}
}

func TestMap(t *testing.T) {
	dev := soft.New()
	m, err := NewMap(dev, 64)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	if m.Resolution() != 64 {
		t.Errorf("expected resolution 64, got %d", m.Resolution())
	}
	tex := m.Texture()
	if tex == nil || tex.Format != gpu.FormatDepth32F {
		t.Fatalf("expected a depth texture, got %+v", tex)
	}

	f := frame.New(context.Background(), 800, 600)
	f.Commands = dev.Begin()
	if err := m.Begin(f); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	m.End(f)
	if got := dev.Pixel(tex, 10, 10)[0]; got != 1 {
		t.Errorf("expected cleared depth 1, got %f", got)
	}

	if err := m.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if dev.LiveImages() != 0 {
		t.Errorf("expected no live images, got %d", dev.LiveImages())
	}
}
