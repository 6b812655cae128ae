// Package shadow fits a light-aligned box around the visible part of the
// camera frustum and derives the matrices of a single directional shadow map.
package shadow

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/camera"
)

// MinExtent is the smallest width, height or length a box may have.
// Keeps the orthographic projection invertible when the frustum collapses.
const MinExtent = 1e-3

// ndcCorners are the corners of the clip cube: four near (z=-1) then four far (z=+1).
var ndcCorners = [8]mgl32.Vec4{
	{-1, -1, -1, 1}, {1, -1, -1, 1}, {1, 1, -1, 1}, {-1, 1, -1, 1},
	{-1, -1, 1, 1}, {1, -1, 1, 1}, {1, 1, 1, 1}, {-1, 1, 1, 1},
}

// Box is the light-space bounding box of the camera frustum, truncated to
// the shadow distance. It is recomputed every frame.
type Box struct {
	// Offset pads the box on every axis so casters just outside the
	// frustum still land in the shadow map.
	Offset float32
	// Distance limits how far along the view the box reaches.
	// Zero means the camera far plane. Capped at ShadowDistance.
	Distance float32
	// ShadowDistance is the distance beyond which nothing is shadowed.
	ShadowDistance float32

	frustum  [8]mgl32.Vec3 // world space
	rotation mgl32.Mat4    // world to light space, rotation only
	min, max mgl32.Vec3    // light space
	centre   mgl32.Vec3    // world space
	up       mgl32.Vec3
	dir      mgl32.Vec3
}

// NewBox creates a box with the given padding and distances.
func NewBox(offset, distance, shadowDistance float32) *Box {
	return &Box{
		Offset:         offset,
		Distance:       distance,
		ShadowDistance: shadowDistance,
		rotation:       mgl32.Ident4(),
		up:             mgl32.Vec3{0, 1, 0},
		dir:            mgl32.Vec3{0, -1, 0},
	}
}

// Update refits the box to the camera for a light travelling along lightDir.
func (b *Box) Update(cam camera.Camera, lightDir mgl32.Vec3) {
	b.dir = lightDirection(lightDir)
	b.up = upVector(b.dir)
	b.rotation = mgl32.LookAtV(mgl32.Vec3{}, b.dir, b.up)

	b.fitFrustum(cam)

	inf := float32(math.Inf(1))
	b.min = mgl32.Vec3{inf, inf, inf}
	b.max = mgl32.Vec3{-inf, -inf, -inf}
	for _, c := range b.frustum {
		p := b.rotation.Mul4x1(c.Vec4(1)).Vec3()
		for i := 0; i < 3; i++ {
			b.min[i] = float32(math.Min(float64(b.min[i]), float64(p[i])))
			b.max[i] = float32(math.Max(float64(b.max[i]), float64(p[i])))
		}
	}

	for i := 0; i < 3; i++ {
		b.min[i] -= b.Offset
		b.max[i] += b.Offset
		if b.max[i]-b.min[i] < MinExtent {
			mid := (b.min[i] + b.max[i]) / 2
			b.min[i] = mid - MinExtent/2
			b.max[i] = mid + MinExtent/2
		}
	}

	mid := b.min.Add(b.max).Mul(0.5)
	b.centre = b.rotation.Transpose().Mul4x1(mid.Vec4(1)).Vec3()
}

// fitFrustum un-projects the clip cube and pulls the far corners in to the
// box distance.
func (b *Box) fitFrustum(cam camera.Camera) {
	inv := cam.Projection().Mul4(cam.View()).Inv()
	eye := cam.Position()
	for i, ndc := range ndcCorners {
		p := inv.Mul4x1(ndc)
		if p[3] == 0 || !finite(p) {
			b.frustum[i] = eye
			continue
		}
		b.frustum[i] = p.Vec3().Mul(1 / p[3])
		if !finiteVec3(b.frustum[i]) {
			b.frustum[i] = eye
		}
	}

	near, far := cam.Near(), cam.Far()
	depth := far
	if b.Distance > 0 && b.Distance < depth {
		depth = b.Distance
	}
	if b.ShadowDistance > 0 && b.ShadowDistance < depth {
		depth = b.ShadowDistance
	}
	if depth < near {
		depth = near
	}
	if far <= near {
		return
	}
	t := (depth - near) / (far - near)
	for i := 0; i < 4; i++ {
		n, f := b.frustum[i], b.frustum[i+4]
		b.frustum[i+4] = n.Add(f.Sub(n).Mul(t))
	}
}

// Width is the extent across the light's x axis.
func (b *Box) Width() float32 { return b.max[0] - b.min[0] }

// Height is the extent across the light's y axis.
func (b *Box) Height() float32 { return b.max[1] - b.min[1] }

// Length is the extent along the light direction.
func (b *Box) Length() float32 { return b.max[2] - b.min[2] }

// Centre returns the box centre in world space.
func (b *Box) Centre() mgl32.Vec3 { return b.centre }

// Min returns the light-space minimum corner.
func (b *Box) Min() mgl32.Vec3 { return b.min }

// Max returns the light-space maximum corner.
func (b *Box) Max() mgl32.Vec3 { return b.max }

// Up returns the up vector used for the light rotation.
func (b *Box) Up() mgl32.Vec3 { return b.up }

// Direction returns the normalised light direction of the last update.
func (b *Box) Direction() mgl32.Vec3 { return b.dir }

// Frustum returns the truncated camera frustum corners in world space.
func (b *Box) Frustum() [8]mgl32.Vec3 { return b.frustum }

// Corners returns the eight box corners in world space.
func (b *Box) Corners() [8]mgl32.Vec3 {
	inv := b.rotation.Transpose()
	var out [8]mgl32.Vec3
	for i := range out {
		p := b.min
		if i&1 != 0 {
			p[0] = b.max[0]
		}
		if i&2 != 0 {
			p[1] = b.max[1]
		}
		if i&4 != 0 {
			p[2] = b.max[2]
		}
		out[i] = inv.Mul4x1(p.Vec4(1)).Vec3()
	}
	return out
}

// Contains reports whether a sphere overlaps the box across the light's x
// and y axes. The depth axis is not tested: casters between the light and
// the box still throw shadows into it.
func (b *Box) Contains(point mgl32.Vec3, radius float32) bool {
	p := b.rotation.Mul4x1(point.Vec4(1)).Vec3()
	for i := 0; i < 2; i++ {
		if p[i]+radius < b.min[i] || p[i]-radius > b.max[i] {
			return false
		}
	}
	return true
}

func lightDirection(d mgl32.Vec3) mgl32.Vec3 {
	if l := d.Len(); l > 1e-6 && !math.IsNaN(float64(l)) && !math.IsInf(float64(l), 0) {
		return d.Mul(1 / l)
	}
	return mgl32.Vec3{0, -1, 0}
}

// upVector picks +Y, or +Z when the light is close to vertical.
func upVector(dir mgl32.Vec3) mgl32.Vec3 {
	if float32(math.Abs(float64(dir.Y()))) > 0.99 {
		return mgl32.Vec3{0, 0, 1}
	}
	return mgl32.Vec3{0, 1, 0}
}

func finite(v mgl32.Vec4) bool {
	for _, c := range v {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}

func finiteVec3(v mgl32.Vec3) bool {
	return finite(v.Vec4(1))
}
