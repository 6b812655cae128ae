package shadow

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/camera"
	"github.com/Faultbox/midgard-render/internal/engine/frame"
)

// Bias maps clip space [-1,1] to texture space [0,1] on every axis.
var Bias = mgl32.Mat4{
	0.5, 0, 0, 0,
	0, 0.5, 0, 0,
	0, 0, 0.5, 0,
	0.5, 0.5, 0.5, 1,
}

// Settings are the shadow tunables.
type Settings struct {
	Size            int     // Shadow map resolution (width = height)
	PCF             int     // Percentage-closer filter radius in texels
	Bias            float32 // Depth bias against acne
	Darkness        float32 // How much light a shadowed fragment loses (0-1)
	Distance        float32 // Nothing beyond this distance from the camera is shadowed
	Transition      float32 // Fade band before Distance
	BoxOffset       float32
	BoxDistance     float32
	Margin          float32 // Extra room in front of and behind the box
	BrightnessBoost float32 // Minimum lighting for surfaces facing away from the sun
}

// DefaultSettings returns the settings the renderer ships with.
func DefaultSettings() Settings {
	return Settings{
		Size:            DefaultResolution,
		PCF:             1,
		Bias:            0.001,
		Darkness:        0.6,
		Distance:        150,
		Transition:      10,
		BoxOffset:       15,
		BoxDistance:     100,
		BrightnessBoost: 0.1,
	}
}

// Shadows holds the shadow box and the matrices derived from it.
type Shadows struct {
	Settings Settings

	box            *Box
	projection     mgl32.Mat4
	lightView      mgl32.Mat4
	projectionView mgl32.Mat4
	shadowSpace    mgl32.Mat4
}

// New creates the shadow state.
func New(s Settings) *Shadows {
	return &Shadows{
		Settings:       s,
		box:            NewBox(s.BoxOffset, s.BoxDistance, s.Distance),
		projection:     mgl32.Ident4(),
		lightView:      mgl32.Ident4(),
		projectionView: mgl32.Ident4(),
		shadowSpace:    Bias,
	}
}

// Update refits the box to the frame's camera and sun and recomputes every matrix.
func (s *Shadows) Update(f *frame.Context) {
	s.UpdateFrom(f.Camera, f.LightDirection())
}

// UpdateFrom is Update without a frame context.
func (s *Shadows) UpdateFrom(cam camera.Camera, lightDir mgl32.Vec3) {
	s.box.Offset = s.Settings.BoxOffset
	s.box.Distance = s.Settings.BoxDistance
	s.box.ShadowDistance = s.Settings.Distance
	s.box.Update(cam, lightDir)

	b := s.box
	margin := s.Settings.Margin
	if margin < 0 {
		margin = 0
	}

	centre := b.Centre()
	eye := centre.Sub(b.Direction().Mul(b.Length()/2 + margin))
	s.lightView = mgl32.LookAtV(eye, centre, b.Up())

	w, h := b.Width()/2, b.Height()/2
	s.projection = mgl32.Ortho(-w, w, -h, h, 0, b.Length()+2*margin)

	s.projectionView = s.projection.Mul4(s.lightView)
	s.shadowSpace = Bias.Mul4(s.projectionView)
}

// ProjectionMatrix returns the orthographic light projection.
func (s *Shadows) ProjectionMatrix() mgl32.Mat4 { return s.projection }

// LightViewMatrix returns the light view matrix.
func (s *Shadows) LightViewMatrix() mgl32.Mat4 { return s.lightView }

// ProjectionViewMatrix returns projection x light view, used by the depth pass.
func (s *Shadows) ProjectionViewMatrix() mgl32.Mat4 { return s.projectionView }

// ShadowMapSpaceMatrix maps world positions to shadow map texture
// coordinates plus comparison depth.
func (s *Shadows) ShadowMapSpaceMatrix() mgl32.Mat4 { return s.shadowSpace }

// Box returns the shadow box of the last update.
func (s *Shadows) Box() *Box { return s.box }

// Fade returns how strongly a fragment at distance from the camera is
// shadowed: 1 up to shadowDistance-transition, 0 from shadowDistance on,
// linear in between.
func Fade(distance, shadowDistance, transition float32) float32 {
	if distance >= shadowDistance {
		return 0
	}
	if transition <= 0 {
		return 1
	}
	start := shadowDistance - transition
	if distance <= start {
		return 1
	}
	return (shadowDistance - distance) / transition
}
