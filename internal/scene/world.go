package scene

import (
	"math"
	"sync"
)

// Box is an axis-aligned volume in the world. Living boxes belong to an
// actor and expose a head region; non-living boxes are penetrable geometry.
type Box struct {
	ID       string
	OwnerID  string // actor that owns this volume, empty for static geometry
	Min, Max Vec3
	Material Material
	Living   bool

	// HeadFraction is the top portion of a living box classified as the
	// head region. Zero means the default of 0.25.
	HeadFraction float64
}

// Center returns the midpoint of the box.
func (b Box) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Extent returns the box dimensions along each axis.
func (b Box) Extent() Vec3 {
	return b.Max.Sub(b.Min)
}

// partAt classifies a point on a living box into a body region by height.
func (b Box) partAt(p Vec3) BodyPart {
	if !b.Living {
		return PartNone
	}
	head := b.HeadFraction
	if head <= 0 {
		head = 0.25
	}
	height := b.Max.Y - b.Min.Y
	if height <= 0 {
		return PartTorso
	}
	rel := (p.Y - b.Min.Y) / height
	switch {
	case rel >= 1-head:
		return PartHead
	case rel < 0.35:
		return PartLimbs
	default:
		return PartTorso
	}
}

// RayHit describes the first intersection along a cast segment.
type RayHit struct {
	ObjectID string
	OwnerID  string
	Point    Vec3
	Normal   Vec3
	Distance float64
	Material Material
	Part     BodyPart
	Living   bool
}

// World is a mutable collection of boxes with a grid-accelerated raycast.
// Mutation and queries are safe for concurrent use; the broad-phase grid is
// rebuilt lazily after mutations.
type World struct {
	mu    sync.RWMutex
	boxes []Box
	index map[string]int
	grid  *cellGrid
	dirty bool
}

// NewWorld creates an empty world whose broad-phase grid covers the given
// horizontal bounds. cellSize should roughly match typical object size.
func NewWorld(minX, minZ, maxX, maxZ, cellSize float64) *World {
	return &World{
		index: make(map[string]int),
		grid:  newCellGrid(minX, minZ, maxX, maxZ, cellSize),
		dirty: true,
	}
}

// Upsert adds or replaces a box by ID.
func (w *World) Upsert(b Box) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i, ok := w.index[b.ID]; ok {
		w.boxes[i] = b
	} else {
		w.index[b.ID] = len(w.boxes)
		w.boxes = append(w.boxes, b)
	}
	w.dirty = true
}

// Remove deletes a box by ID. Removing an unknown ID is a no-op.
func (w *World) Remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index[id]
	if !ok {
		return
	}
	last := len(w.boxes) - 1
	w.boxes[i] = w.boxes[last]
	w.index[w.boxes[i].ID] = i
	w.boxes = w.boxes[:last]
	delete(w.index, id)
	w.dirty = true
}

// Contains reports whether a box with the given ID exists.
func (w *World) Contains(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.index[id]
	return ok
}

// Box returns the box with the given ID.
func (w *World) Box(id string) (Box, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if i, ok := w.index[id]; ok {
		return w.boxes[i], true
	}
	return Box{}, false
}

func (w *World) rebuildLocked() {
	if !w.dirty {
		return
	}
	w.grid.rebuild(w.boxes)
	w.dirty = false
}

// Raycast finds the nearest intersection along origin + t*dir for
// t in (0, maxDist]. Boxes whose ID or OwnerID equals exclude are skipped.
func (w *World) Raycast(origin, dir Vec3, maxDist float64, exclude string) (RayHit, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rebuildLocked()
	candidates := w.grid.walk(origin, dir, maxDist, len(w.boxes))
	boxes := w.boxes
	best := RayHit{Distance: math.Inf(1)}
	found := false
	for _, idx := range candidates {
		b := boxes[idx]
		if exclude != "" && (b.ID == exclude || b.OwnerID == exclude) {
			continue
		}
		tEnter, _, ok := intersectBox(b, origin, dir)
		if !ok || tEnter <= 0 || tEnter > maxDist || tEnter >= best.Distance {
			continue
		}
		point := origin.Add(dir.Scale(tEnter))
		best = RayHit{
			ObjectID: b.ID,
			OwnerID:  b.OwnerID,
			Point:    point,
			Normal:   faceNormal(b, point),
			Distance: tEnter,
			Material: b.Material,
			Part:     b.partAt(point),
			Living:   b.Living,
		}
		found = true
	}
	return best, found
}

// Thickness estimates how much of the named box lies along dir starting at
// entry, capped at maxProbe. Used by the penetration probe.
func (w *World) Thickness(objectID string, entry, dir Vec3, maxProbe float64) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i, ok := w.index[objectID]
	if !ok {
		return 0, false
	}
	b := w.boxes[i]
	// Start just inside the surface so the slab test is entered.
	inside := entry.Add(dir.Scale(1e-4))
	_, tExit, ok := intersectBox(b, inside, dir)
	if !ok || tExit <= 0 {
		return 0, false
	}
	return math.Min(tExit, maxProbe), true
}

// Extent returns the largest dimension of the named box.
func (w *World) Extent(objectID string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i, ok := w.index[objectID]
	if !ok {
		return 0, false
	}
	return w.boxes[i].Extent().MaxComponent(), true
}

// intersectBox runs the slab test for a ray against an AABB.
// Returns entry and exit distances along dir; ok is false on a miss.
// A ray starting inside the box reports tEnter <= 0.
func intersectBox(b Box, origin, dir Vec3) (tEnter, tExit float64, ok bool) {
	tEnter = math.Inf(-1)
	tExit = math.Inf(1)
	mins := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	maxs := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	orig := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}

	for axis := 0; axis < 3; axis++ {
		if math.Abs(d[axis]) < 1e-12 {
			if orig[axis] < mins[axis] || orig[axis] > maxs[axis] {
				return 0, 0, false
			}
			continue
		}
		t1 := (mins[axis] - orig[axis]) / d[axis]
		t2 := (maxs[axis] - orig[axis]) / d[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tEnter {
			tEnter = t1
		}
		if t2 < tExit {
			tExit = t2
		}
		if tEnter > tExit {
			return 0, 0, false
		}
	}
	if tExit < 0 {
		return 0, 0, false
	}
	return tEnter, tExit, true
}

// faceNormal returns the outward normal of the box face nearest to p.
func faceNormal(b Box, p Vec3) Vec3 {
	dists := []struct {
		d float64
		n Vec3
	}{
		{math.Abs(p.X - b.Min.X), Vec3{X: -1}},
		{math.Abs(p.X - b.Max.X), Vec3{X: 1}},
		{math.Abs(p.Y - b.Min.Y), Vec3{Y: -1}},
		{math.Abs(p.Y - b.Max.Y), Vec3{Y: 1}},
		{math.Abs(p.Z - b.Min.Z), Vec3{Z: -1}},
		{math.Abs(p.Z - b.Max.Z), Vec3{Z: 1}},
	}
	best := dists[0]
	for _, c := range dists[1:] {
		if c.d < best.d {
			best = c
		}
	}
	return best.n
}
