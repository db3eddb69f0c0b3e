package scene

import "math"

// Input is the directional state held by the client for the current tick.
// AxisX/AxisY are the analog vector from touch or the on-screen pad; when
// either is non-zero the analog vector overrides the discrete key flags
// entirely for that tick.
type Input struct {
	Up    bool
	Down  bool
	Left  bool
	Right bool
	AxisX float64
	AxisY float64
}

// Actor is the camera-followed player. Position is in absolute world
// coordinates and stays within world bounds at all times.
type Actor struct {
	X float64
	Y float64
}

// Controller turns held input into actor movement with a frame-delta
// independent fixed speed.
type Controller struct {
	Speed  float64
	WorldW float64
	WorldH float64
}

const diagonalScale = 0.7071067811865476 // 1/sqrt(2)

// Velocity resolves input into a 2D velocity. Diagonal movement is scaled by
// 1/sqrt(2) so its magnitude equals the axis-aligned speed.
func (c Controller) Velocity(in Input) (vx, vy float64) {
	if in.Left {
		vx = -c.Speed
	} else if in.Right {
		vx = c.Speed
	}
	if in.Up {
		vy = -c.Speed
	} else if in.Down {
		vy = c.Speed
	}

	if in.AxisX != 0 || in.AxisY != 0 {
		vx = clampAxis(in.AxisX) * c.Speed
		vy = clampAxis(in.AxisY) * c.Speed
	}

	if vx != 0 && vy != 0 {
		vx *= diagonalScale
		vy *= diagonalScale
	}
	return vx, vy
}

// Step advances the actor by one tick of dt seconds, then clamps to bounds.
func (c Controller) Step(a *Actor, in Input, dt float64) {
	vx, vy := c.Velocity(in)
	a.X = clamp(a.X+vx*dt, 0, c.WorldW)
	a.Y = clamp(a.Y+vy*dt, 0, c.WorldH)
}

func clampAxis(v float64) float64 {
	return clamp(v, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
