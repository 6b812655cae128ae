package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/midgard-render/internal/engine/gpu"
)

// PlaneVertices returns a unit square in the XZ plane facing +Y, as two
// triangles in gpu.Mesh layout.
func PlaneVertices(colour mgl32.Vec3) []float32 {
	corners := [4]mgl32.Vec3{{-1, 0, -1}, {-1, 0, 1}, {1, 0, 1}, {1, 0, -1}}
	up := mgl32.Vec3{0, 1, 0}
	verts := make([]float32, 0, 6*gpu.VertexStride)
	for _, i := range [6]int{0, 1, 2, 0, 2, 3} {
		verts = appendVertex(verts, corners[i], up, colour)
	}
	return verts
}

// SphereVertices returns a unit UV sphere with counter-clockwise triangles.
func SphereVertices(stacks, slices int, colour mgl32.Vec3) []float32 {
	point := func(stack, slice int) mgl32.Vec3 {
		theta := math.Pi * float64(stack) / float64(stacks)
		phi := 2 * math.Pi * float64(slice) / float64(slices)
		return mgl32.Vec3{
			float32(math.Sin(theta) * math.Cos(phi)),
			float32(math.Cos(theta)),
			float32(math.Sin(theta) * math.Sin(phi)),
		}
	}

	verts := make([]float32, 0, stacks*slices*6*gpu.VertexStride)
	for i := 0; i < stacks; i++ {
		for j := 0; j < slices; j++ {
			a, b := point(i, j), point(i+1, j)
			c, d := point(i+1, j+1), point(i, j+1)
			for _, p := range [6]mgl32.Vec3{a, d, c, a, c, b} {
				verts = appendVertex(verts, p, p, colour)
			}
		}
	}
	return verts
}

func appendVertex(dst []float32, pos, normal, colour mgl32.Vec3) []float32 {
	return append(dst,
		pos[0], pos[1], pos[2],
		normal[0], normal[1], normal[2],
		colour[0], colour[1], colour[2],
	)
}
