package gpu

import "github.com/go-gl/mathgl/mgl32"

// Uniforms is a name-keyed uniform store.
// The soft device keeps one per bound program so kernels can read parameters
// the same way a shader reads its uniforms.
type Uniforms struct {
	floats map[string][]float32
	ints   map[string]int32
}

// NewUniforms creates an empty uniform store.
func NewUniforms() *Uniforms {
	return &Uniforms{
		floats: make(map[string][]float32),
		ints:   make(map[string]int32),
	}
}

// SetInt stores an integer uniform.
func (u *Uniforms) SetInt(name string, v int32) {
	u.ints[name] = v
}

// SetFloats stores a float uniform of any width, reusing the previous backing slice.
func (u *Uniforms) SetFloats(name string, v ...float32) {
	dst := u.floats[name]
	if cap(dst) < len(v) {
		dst = make([]float32, len(v))
	}
	dst = dst[:len(v)]
	copy(dst, v)
	u.floats[name] = dst
}

// SetMat4 stores a matrix uniform.
func (u *Uniforms) SetMat4(name string, m mgl32.Mat4) {
	u.SetFloats(name, m[:]...)
}

// Int returns an integer uniform, or 0 when unset.
func (u *Uniforms) Int(name string) int32 {
	return u.ints[name]
}

// Float returns the first component of a float uniform, or 0 when unset.
func (u *Uniforms) Float(name string) float32 {
	if v := u.floats[name]; len(v) > 0 {
		return v[0]
	}
	return 0
}

// Floats returns the raw components of a float uniform.
func (u *Uniforms) Floats(name string) []float32 {
	return u.floats[name]
}

// Vec2 returns a vec2 uniform.
func (u *Uniforms) Vec2(name string) mgl32.Vec2 {
	var out mgl32.Vec2
	copy(out[:], u.floats[name])
	return out
}

// Vec3 returns a vec3 uniform.
func (u *Uniforms) Vec3(name string) mgl32.Vec3 {
	var out mgl32.Vec3
	copy(out[:], u.floats[name])
	return out
}

// Mat4 returns a mat4 uniform, or the zero matrix when unset.
func (u *Uniforms) Mat4(name string) mgl32.Mat4 {
	var out mgl32.Mat4
	copy(out[:], u.floats[name])
	return out
}

// Has reports whether a uniform with the given name was set.
func (u *Uniforms) Has(name string) bool {
	if _, ok := u.floats[name]; ok {
		return true
	}
	_, ok := u.ints[name]
	return ok
}
