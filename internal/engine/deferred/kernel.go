package deferred

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
	"github.com/Faultbox/midgard-render/internal/engine/shadow"
)

// Kernel is the CPU form of deferred.frag.
func Kernel(in gpu.KernelInput, frag gpu.Fragment, out *gpu.FragmentOutput) {
	u := in.Uniforms()

	albedo := in.Sample(UnitColour, frag.U, frag.V)
	extras := in.Sample(UnitExtras, frag.U, frag.V)
	depth := in.Sample(UnitDepth, frag.U, frag.V)[0]

	if depth >= 1 || extras[0] > 0.5 {
		out.Colour[0] = albedo
		return
	}

	normal := in.Sample(UnitNormal, frag.U, frag.V).Vec3()
	if normal.Len() > 0 {
		normal = normal.Normalize()
	}
	world := worldPosition(u.Mat4("projectionInverse"), u.Mat4("viewInverse"), frag.U, frag.V, depth)

	diffuse := max(normal.Dot(u.Vec3("sunDirection").Mul(-1)), u.Float("brightnessBoost"))
	lit := float32(1)
	if extras[1] > 0.5 {
		lit = shadowFactor(in, world)
	}

	sun := u.Vec3("sunColour").Mul(diffuse * lit)
	ambient := u.Float("ambient")
	colour := mgl32.Vec3{
		albedo[0] * (ambient + sun[0]),
		albedo[1] * (ambient + sun[1]),
		albedo[2] * (ambient + sun[2]),
	}

	positions := u.Floats("lightPosition")
	colours := u.Floats("lightColour")
	radii := u.Floats("lightRadius")
	count := int(u.Int("lightCount"))
	for i := 0; i < count && (i+1)*4 <= len(positions) && (i+1)*3 <= len(colours) && i < len(radii); i++ {
		p := positions[i*4 : i*4+4]
		var toLight mgl32.Vec3
		attenuation := float32(1)
		if p[3] == 0 {
			toLight = mgl32.Vec3{-p[0], -p[1], -p[2]}
		} else {
			toLight = mgl32.Vec3{p[0], p[1], p[2]}.Sub(world)
			if r := radii[i]; r > 0 {
				falloff := mgl32.Clamp(1-toLight.Len()/r, 0, 1)
				attenuation = falloff * falloff
			}
		}
		if toLight.Len() == 0 {
			continue
		}
		nDotL := max(normal.Dot(toLight.Normalize()), 0)
		k := nDotL * attenuation
		colour[0] += albedo[0] * colours[i*3] * k
		colour[1] += albedo[1] * colours[i*3+1] * k
		colour[2] += albedo[2] * colours[i*3+2] * k
	}

	out.Colour[0] = mgl32.Vec4{colour[0], colour[1], colour[2], albedo[3]}
}

func worldPosition(projectionInverse, viewInverse mgl32.Mat4, u, v, depth float32) mgl32.Vec3 {
	ndc := mgl32.Vec4{u*2 - 1, v*2 - 1, depth*2 - 1, 1}
	view := projectionInverse.Mul4x1(ndc)
	if view[3] != 0 {
		view = view.Mul(1 / view[3])
	}
	return viewInverse.Mul4x1(view).Vec3()
}

func shadowFactor(in gpu.KernelInput, world mgl32.Vec3) float32 {
	u := in.Uniforms()
	coords := u.Mat4("shadowSpace").Mul4x1(world.Vec4(1))
	if coords[0] < 0 || coords[0] > 1 || coords[1] < 0 || coords[1] > 1 || coords[2] > 1 {
		return 1
	}

	size := u.Float("shadowMapSize")
	if size <= 0 {
		size = 1
	}
	texel := 1 / size
	pcf := int(u.Int("shadowPCF"))
	bias := u.Float("shadowBias")

	var total, inShadow float32
	for x := -pcf; x <= pcf; x++ {
		for y := -pcf; y <= pcf; y++ {
			nearest := in.Sample(UnitShadow, coords[0]+float32(x)*texel, coords[1]+float32(y)*texel)[0]
			if coords[2]-bias > nearest {
				inShadow++
			}
			total++
		}
	}

	distance := world.Sub(u.Vec3("cameraPosition")).Len()
	fade := shadow.Fade(distance, u.Float("shadowDistance"), u.Float("shadowTransition"))
	return 1 - (inShadow/total)*u.Float("shadowDarkness")*fade
}
