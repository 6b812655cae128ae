// Package camera provides camera implementations for 3D rendering.
package camera

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is what the frame pipeline needs from a viewpoint.
type Camera interface {
	View() mgl32.Mat4
	Projection() mgl32.Mat4
	Near() float32
	Far() float32
	Position() mgl32.Vec3
}

// Lens is a perspective projection.
type Lens struct {
	FovY   float32 // Vertical field of view, radians
	Aspect float32
	ZNear  float32
	ZFar   float32
}

// DefaultLens returns a 60 degree lens for a 16:9 display.
func DefaultLens() Lens {
	return Lens{FovY: mgl32.DegToRad(60), Aspect: 16.0 / 9.0, ZNear: 0.1, ZFar: 1000}
}

// SetAspect updates the aspect ratio from a display size. Zero sizes are ignored.
func (l *Lens) SetAspect(width, height int) {
	if width > 0 && height > 0 {
		l.Aspect = float32(width) / float32(height)
	}
}

// Projection returns the perspective projection matrix.
func (l *Lens) Projection() mgl32.Mat4 {
	return mgl32.Perspective(l.FovY, l.Aspect, l.ZNear, l.ZFar)
}

// Near returns the near plane distance.
func (l *Lens) Near() float32 { return l.ZNear }

// Far returns the far plane distance.
func (l *Lens) Far() float32 { return l.ZFar }

// Perspective is a camera placed explicitly with an eye, a target and a lens.
type Perspective struct {
	Lens
	Eye    mgl32.Vec3
	Target mgl32.Vec3
	Up     mgl32.Vec3
}

// NewPerspective creates a camera looking from eye at target.
func NewPerspective(eye, target mgl32.Vec3, lens Lens) *Perspective {
	return &Perspective{Lens: lens, Eye: eye, Target: target, Up: mgl32.Vec3{0, 1, 0}}
}

// View returns the view matrix.
func (c *Perspective) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Target, c.Up)
}

// Position returns the eye position.
func (c *Perspective) Position() mgl32.Vec3 {
	return c.Eye
}

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	Lens

	// Center point to orbit around
	Center mgl32.Vec3

	// Spherical coordinates
	Distance  float32 // Distance from center
	RotationX float32 // Pitch (vertical angle, radians)
	RotationY float32 // Yaw (horizontal angle, radians)

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Lens:            DefaultLens(),
		Distance:        40.0,
		RotationX:       0.5,
		RotationY:       0.0,
		MinDistance:     5.0,
		MaxDistance:     500.0,
		MinPitch:        0.1,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() mgl32.Vec3 {
	x := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Sin(float64(c.RotationY)))
	y := c.Distance * float32(gomath.Sin(float64(c.RotationX)))
	z := c.Distance * float32(gomath.Cos(float64(c.RotationX))*gomath.Cos(float64(c.RotationY)))

	return c.Center.Add(mgl32.Vec3{x, y, z})
}

// View returns the view matrix for this camera.
func (c *OrbitCamera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position(), c.Center, mgl32.Vec3{0, 1, 0})
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX += deltaY * c.DragSensitivity
	c.RotationX = mgl32.Clamp(c.RotationX, c.MinPitch, c.MaxPitch)
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	c.Distance = mgl32.Clamp(c.Distance, c.MinDistance, c.MaxDistance)
}

// HandleMovement pans the camera center point based on keyboard input.
func (c *OrbitCamera) HandleMovement(forward, right, up float32) {
	// Speed scales with distance for consistent feel
	speed := c.Distance * 0.01

	dirX := float32(gomath.Sin(float64(c.RotationY)))
	dirZ := float32(gomath.Cos(float64(c.RotationY)))
	rightX := float32(gomath.Cos(float64(c.RotationY)))
	rightZ := float32(-gomath.Sin(float64(c.RotationY)))

	// Negate forward so W moves "into" the scene
	c.Center[0] += (-dirX*forward + rightX*right) * speed
	c.Center[2] += (-dirZ*forward + rightZ*right) * speed
	c.Center[1] += up * speed
}

// FitToBounds adjusts camera to view the given bounding box.
func (c *OrbitCamera) FitToBounds(min, max mgl32.Vec3) {
	c.Center = min.Add(max).Mul(0.5)

	size := max.Sub(min)
	maxSize := size.X()
	if size.Z() > maxSize {
		maxSize = size.Z()
	}

	c.Distance = mgl32.Clamp(maxSize*0.8, c.MinDistance, c.MaxDistance)
	c.RotationX = 0.6 // Look down at ~35 degrees
	c.RotationY = 0.0
}
