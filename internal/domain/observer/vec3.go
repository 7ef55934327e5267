package observer

import "math"

// Vec3 is a 3-component vector for positions and facings.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns v - u.
func (v Vec3) Sub(u Vec3) Vec3 {
	return Vec3{X: v.X - u.X, Y: v.Y - u.Y, Z: v.Z - u.Z}
}

// Dot returns the dot product of v and u.
func (v Vec3) Dot(u Vec3) float64 {
	return v.X*u.X + v.Y*u.Y + v.Z*u.Z
}

// Length returns the Euclidean norm of v.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// DistanceTo returns the Euclidean distance between v and u.
func (v Vec3) DistanceTo(u Vec3) float64 {
	return v.Sub(u).Length()
}

// Normalized returns v scaled to unit length. The zero vector is
// returned unchanged.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return Vec3{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}

// AngleDegreesTo returns the angle between v and u in degrees.
// Degenerate (zero) vectors yield 180 so they never pass a cone test.
func (v Vec3) AngleDegreesTo(u Vec3) float64 {
	nv, nu := v.Normalized(), u.Normalized()
	if nv.Length() == 0 || nu.Length() == 0 {
		return 180
	}
	d := nv.Dot(nu)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Acos(d) * 180 / math.Pi
}
