package lighting

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SunDirection converts longitude/latitude angles in degrees to a unit vector
// pointing towards the sun. Longitude is rotation around Y, latitude is the
// elevation above the horizon.
func SunDirection(longitude, latitude float32) mgl32.Vec3 {
	lonRad := float64(mgl32.DegToRad(longitude))
	latRad := float64(mgl32.DegToRad(latitude))

	x := float32(math.Cos(latRad) * math.Sin(lonRad))
	y := float32(math.Sin(latRad))
	z := float32(math.Cos(latRad) * math.Cos(lonRad))

	return mgl32.Vec3{x, y, z}
}

// Sun is the scene's directional key light, the one that casts shadows.
type Sun struct {
	Longitude float32
	Latitude  float32
	Color     mgl32.Vec3
	Ambient   float32
}

// Direction returns the unit direction sunlight travels (from the sun into the scene).
func (s Sun) Direction() mgl32.Vec3 {
	return SunDirection(s.Longitude, s.Latitude).Mul(-1)
}

// Light returns the sun as a directional Light.
func (s Sun) Light() Light {
	return Light{Position: s.Direction(), Color: s.Color, Directional: true}
}
