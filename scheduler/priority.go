package scheduler

import (
	"cmp"

	"facilityflow/request"
	"facilityflow/staff"
)

// PriorityKey ranks a request/worker pairing. Keys compare lexicographically
// and lower is better.
type PriorityKey struct {
	BuildingDistance int
	WingMismatch     int
	FloorDistance    int
}

// Compare returns -1, 0 or +1 as k is better than, equal to or worse than o.
func (k PriorityKey) Compare(o PriorityKey) int {
	if c := cmp.Compare(k.BuildingDistance, o.BuildingDistance); c != 0 {
		return c
	}
	if c := cmp.Compare(k.WingMismatch, o.WingMismatch); c != 0 {
		return c
	}
	return cmp.Compare(k.FloorDistance, o.FloorDistance)
}

// Engine orders the request queue and matches workers to requests. It holds
// only the read-only proximity table and is safe for concurrent use.
type Engine struct {
	proximity *Proximity
}

// NewEngine returns an Engine over p, or over the built-in layout when p is nil.
func NewEngine(p *Proximity) *Engine {
	if p == nil {
		p = DefaultProximity()
	}
	return &Engine{proximity: p}
}

// Proximity exposes the layout the engine ranks with.
func (e *Engine) Proximity() *Proximity {
	return e.proximity
}

// Priority computes the key for sending w to req. The wing only counts when
// both sit in the same building; otherwise it is always a mismatch.
func (e *Engine) Priority(req request.Request, w staff.Worker) PriorityKey {
	key := PriorityKey{
		BuildingDistance: e.proximity.Distance(w.CurrentBuilding, req.Building),
		WingMismatch:     1,
		FloorDistance:    absInt(w.CurrentLocationFloor - req.LocationFloor),
	}
	if w.CurrentBuilding == req.Building && w.CurrentWing == req.Wing {
		key.WingMismatch = 0
	}
	return key
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
