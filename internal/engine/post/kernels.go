package post

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

// CPU forms of the filter shaders. Unit 0 is the pass input.

var luma = mgl32.Vec3{0.299, 0.587, 0.114}

func blurKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	u := in.Uniforms()
	res := u.Float("blurResolution")
	if res <= 0 {
		res = 1
	}
	step := u.Vec2("blurDirection").Mul(u.Float("blurScale") / res)

	sample := func(k float32) mgl32.Vec4 {
		return in.Sample(0, frag.U+step[0]*k, frag.V+step[1]*k)
	}
	c := sample(0).Mul(0.2270270270)
	c = c.Add(sample(1.3846153846).Add(sample(-1.3846153846)).Mul(0.3162162162))
	c = c.Add(sample(3.2307692308).Add(sample(-3.2307692308)).Mul(0.0702702703))
	out.Colour[0] = c
}

func fxaaKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	const (
		reduceMul = 1.0 / 8.0
		reduceMin = 1.0 / 128.0
	)
	u := in.Uniforms()
	texel := u.Vec2("texelSize")
	spanMax := u.Float("spanMax")

	at := func(dx, dy float32) mgl32.Vec4 {
		return in.Sample(0, frag.U+dx*texel[0], frag.V+dy*texel[1])
	}
	lumaOf := func(c mgl32.Vec4) float32 { return c.Vec3().Dot(luma) }

	lumaNW := lumaOf(at(-1, -1))
	lumaNE := lumaOf(at(1, -1))
	lumaSW := lumaOf(at(-1, 1))
	lumaSE := lumaOf(at(1, 1))
	centre := at(0, 0)
	lumaM := lumaOf(centre)

	lumaMin := min(lumaM, lumaNW, lumaNE, lumaSW, lumaSE)
	lumaMax := max(lumaM, lumaNW, lumaNE, lumaSW, lumaSE)

	dir := mgl32.Vec2{
		-((lumaNW + lumaNE) - (lumaSW + lumaSE)),
		(lumaNW + lumaSW) - (lumaNE + lumaSE),
	}
	dirReduce := max((lumaNW+lumaNE+lumaSW+lumaSE)*0.25*reduceMul, reduceMin)
	rcpDirMin := 1 / (min(abs32(dir[0]), abs32(dir[1])) + dirReduce)
	dir = mgl32.Vec2{
		mgl32.Clamp(dir[0]*rcpDirMin, -spanMax, spanMax),
		mgl32.Clamp(dir[1]*rcpDirMin, -spanMax, spanMax),
	}

	along := func(k float32) mgl32.Vec3 {
		return in.Sample(0, frag.U+dir[0]*texel[0]*k, frag.V+dir[1]*texel[1]*k).Vec3()
	}
	rgbA := along(1.0/3.0 - 0.5).Add(along(2.0/3.0 - 0.5)).Mul(0.5)
	rgbB := rgbA.Mul(0.5).Add(along(-0.5).Add(along(0.5)).Mul(0.25))

	lumaB := rgbB.Dot(luma)
	if lumaB < lumaMin || lumaB > lumaMax {
		out.Colour[0] = rgbA.Vec4(centre[3])
	} else {
		out.Colour[0] = rgbB.Vec4(centre[3])
	}
}

func darkenKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	c := in.Sample(0, frag.U, frag.V)
	k := 1 - in.Uniforms().Float("factor")
	out.Colour[0] = mgl32.Vec4{c[0] * k, c[1] * k, c[2] * k, c[3]}
}

func greyKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	c := in.Sample(0, frag.U, frag.V)
	g := c.Vec3().Dot(luma)
	out.Colour[0] = mgl32.Vec4{g, g, g, c[3]}
}

func negativeKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	c := in.Sample(0, frag.U, frag.V)
	out.Colour[0] = mgl32.Vec4{1 - c[0], 1 - c[1], 1 - c[2], c[3]}
}

func vignetteKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	c := in.Sample(0, frag.U, frag.V)
	d := mgl32.Vec2{frag.U - 0.5, frag.V - 0.5}.Len()
	shade := 1 - in.Uniforms().Float("vignetteStrength")*smoothstep(0.3, 0.75, d)
	out.Colour[0] = mgl32.Vec4{c[0] * shade, c[1] * shade, c[2] * shade, c[3]}
}

func pixelateKernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	u := in.Uniforms()
	res := u.Vec2("resolution")
	size := u.Float("pixelSize")
	if res[0] <= 0 || res[1] <= 0 || size <= 0 {
		out.Colour[0] = in.Sample(0, frag.U, frag.V)
		return
	}
	cw, ch := size/res[0], size/res[1]
	cu := (float32(math.Floor(float64(frag.U/cw))) + 0.5) * cw
	cv := (float32(math.Floor(float64(frag.V/ch))) + 0.5) * ch
	out.Colour[0] = in.Sample(0, cu, cv)
}

func smoothstep(edge0, edge1, x float32) float32 {
	t := mgl32.Clamp((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
