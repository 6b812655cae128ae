package gldevice

import (
	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

// uniformCache caches uniform locations of one program.
type uniformCache struct {
	program   uint32
	locations map[string]int32
}

func newUniformCache(program uint32) *uniformCache {
	return &uniformCache{
		program:   program,
		locations: make(map[string]int32),
	}
}

// location returns the cached location, -1 for inactive uniforms.
func (uc *uniformCache) location(name string) int32 {
	if loc, ok := uc.locations[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(uc.program, gl.Str(name+"\x00"))
	uc.locations[name] = loc
	return loc
}

func (uc *uniformCache) setInt(name string, v int32) {
	if loc := uc.location(name); loc != -1 {
		gl.Uniform1i(loc, v)
	}
}

func (uc *uniformCache) setFloat(name string, v float32) {
	if loc := uc.location(name); loc != -1 {
		gl.Uniform1f(loc, v)
	}
}

func (uc *uniformCache) setVec2(name string, v mgl32.Vec2) {
	if loc := uc.location(name); loc != -1 {
		gl.Uniform2f(loc, v[0], v[1])
	}
}

func (uc *uniformCache) setVec3(name string, v mgl32.Vec3) {
	if loc := uc.location(name); loc != -1 {
		gl.Uniform3f(loc, v[0], v[1], v[2])
	}
}

func (uc *uniformCache) setMat4(name string, m mgl32.Mat4) {
	if loc := uc.location(name); loc != -1 {
		gl.UniformMatrix4fv(loc, 1, false, &m[0])
	}
}

// setFloatArray uploads a float/vec2/vec3/vec4 array uniform.
func (uc *uniformCache) setFloatArray(name string, components int, v []float32) {
	if len(v) == 0 || components <= 0 {
		return
	}
	loc := uc.location(name)
	if loc == -1 {
		return
	}
	count := int32(len(v) / components)
	switch components {
	case 1:
		gl.Uniform1fv(loc, count, &v[0])
	case 2:
		gl.Uniform2fv(loc, count, &v[0])
	case 3:
		gl.Uniform3fv(loc, count, &v[0])
	case 4:
		gl.Uniform4fv(loc, count, &v[0])
	}
}
