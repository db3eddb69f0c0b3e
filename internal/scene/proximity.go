package scene

import "math"

// Tracker computes the nearest zone within the interaction radius each tick
// and detects enter/exit transitions. At most one zone is active at a time;
// overlapping radii resolve to the nearer zone, ties to registry order.
type Tracker struct {
	Radius float64

	current *Zone
	// Set by manual dismissal: the suppressed zone cannot re-enter until the
	// actor leaves its radius (or a different zone becomes nearest).
	suppressed *Zone
}

// Transition reports a zone change. Exit is always delivered before Enter.
type Transition struct {
	Exited  *Zone
	Entered *Zone
}

// Update recomputes the active zone for the actor position. The second return
// is false when nothing changed.
func (t *Tracker) Update(x, y float64, reg *Registry) (Transition, bool) {
	var nearest *Zone
	nearestDist := math.Inf(1)
	for _, z := range reg.Zones() {
		d := math.Hypot(x-z.X, y-z.Y)
		// Strict comparisons: the first minimal zone in registry order wins.
		if d < t.Radius && d < nearestDist {
			nearestDist = d
			nearest = z
		}
	}

	if t.suppressed != nil {
		if nearest == t.suppressed {
			return Transition{}, false
		}
		t.suppressed = nil
	}

	if nearest == t.current {
		return Transition{}, false
	}
	tr := Transition{Exited: t.current, Entered: nearest}
	t.current = nearest
	return tr, true
}

// Active returns the currently-tracked zone, if any.
func (t *Tracker) Active() *Zone { return t.current }

// Suppress clears the tracked zone after a manual dismissal. The zone stays
// inactive until the actor leaves its radius and comes back.
func (t *Tracker) Suppress() {
	if t.current == nil {
		return
	}
	t.suppressed = t.current
	t.current = nil
}
