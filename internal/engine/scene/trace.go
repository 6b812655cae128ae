package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

// hit is the nearest intersection along a ray.
type hit struct {
	object *Object
	t      float32
	point  mgl32.Vec3
	normal mgl32.Vec3
}

// ray returns the world space ray through the pixel at (u, v) for a
// projection-view inverse, from the near plane towards the far plane.
func ray(inverse mgl32.Mat4, u, v float32) (origin, dir mgl32.Vec3) {
	near := mgl32.TransformCoordinate(mgl32.Vec3{u*2 - 1, v*2 - 1, -1}, inverse)
	far := mgl32.TransformCoordinate(mgl32.Vec3{u*2 - 1, v*2 - 1, 1}, inverse)
	return near, far.Sub(near).Normalize()
}

// trace returns the nearest of objects hit by the ray.
func trace(objects []*Object, origin, dir mgl32.Vec3) (hit, bool) {
	best := hit{t: float32(math.Inf(1))}
	found := false
	for _, o := range objects {
		t, ok := o.intersect(origin, dir)
		if !ok || t >= best.t {
			continue
		}
		best.object, best.t = o, t
		found = true
	}
	if !found {
		return best, false
	}
	best.point = origin.Add(dir.Mul(best.t))
	if best.object.Shape == Ground {
		best.normal = mgl32.Vec3{0, 1, 0}
	} else {
		best.normal = best.point.Sub(best.object.Centre).Normalize()
	}
	return best, true
}

func (o *Object) intersect(origin, dir mgl32.Vec3) (float32, bool) {
	switch o.Shape {
	case Ground:
		if dir[1] == 0 {
			return 0, false
		}
		t := (o.Centre[1] - origin[1]) / dir[1]
		if t <= 0 {
			return 0, false
		}
		p := origin.Add(dir.Mul(t)).Sub(o.Centre)
		if abs(p[0]) > o.Size || abs(p[2]) > o.Size {
			return 0, false
		}
		return t, true
	case Sphere:
		oc := origin.Sub(o.Centre)
		b := oc.Dot(dir)
		c := oc.Dot(oc) - o.Size*o.Size
		disc := b*b - c
		if disc < 0 {
			return 0, false
		}
		sq := float32(math.Sqrt(float64(disc)))
		if t := -b - sq; t > 0 {
			return t, true
		}
		if t := -b + sq; t > 0 {
			return t, true
		}
	}
	return 0, false
}

// depth returns the window depth in [0,1] of a world point.
func depth(projectionView mgl32.Mat4, p mgl32.Vec3) float32 {
	clip := projectionView.Mul4x1(p.Vec4(1))
	if clip[3] == 0 {
		return 1
	}
	return mgl32.Clamp(clip[2]/clip[3]*0.5+0.5, 0, 1)
}

// geometryKernel is the ray cast form of geometry.frag for devices without meshes.
func (s *Scene) geometryKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	origin, dir := ray(s.projectionViewInverse, frag.U, frag.V)
	h, ok := trace(s.objects, origin, dir)
	if !ok {
		out.Discard = true
		return
	}

	o := h.object
	colour := o.Colour
	if o.Textured {
		tex := in.Sample(0, fract(h.point[0]*o.TextureScale), fract(h.point[2]*o.TextureScale))
		colour = mgl32.Vec3{colour[0] * tex[0], colour[1] * tex[1], colour[2] * tex[2]}
	}

	out.Colour[0] = colour.Vec4(1)
	out.Colour[1] = h.normal.Vec4(0)
	out.Colour[2] = mgl32.Vec4{flag(o.Unlit), flag(o.ReceivesShadow), 0, 1}
	out.Depth = depth(s.projectionView, h.point)
	out.WriteDepth = true
}

// shadowKernel writes the light space depth of the nearest culled caster.
func (s *Scene) shadowKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	origin, dir := ray(s.projectionViewInverse, frag.U, frag.V)
	h, ok := trace(s.casters, origin, dir)
	if !ok {
		out.Discard = true
		return
	}
	out.Depth = depth(s.projectionView, h.point)
	out.WriteDepth = true
}

func fract(v float32) float32 {
	return v - float32(math.Floor(float64(v)))
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
