package scene

import "math"

// cellGrid is the broad-phase index for raycasts: a fixed-size 2D grid over
// the horizontal (X, Z) plane. Boxes register in every cell they overlap;
// a raycast walks only the cells its segment crosses.
//
// Cells hold box indices (not pointers) in row-major order and are reused
// across rebuilds to keep GC pressure low.
type cellGrid struct {
	cellSize float64
	invCell  float64
	cols     int
	rows     int
	originX  float64
	originZ  float64
	cells    [][]uint32

	// stamp dedupes candidates across cells per query without clearing a
	// visited set each time.
	stamp   []uint32
	stampID uint32
	scratch []uint32
}

func newCellGrid(minX, minZ, maxX, maxZ, cellSize float64) *cellGrid {
	if cellSize <= 0 {
		cellSize = 10
	}
	cols := int(math.Ceil((maxX - minX) / cellSize))
	rows := int(math.Ceil((maxZ - minZ) / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &cellGrid{
		cellSize: cellSize,
		invCell:  1 / cellSize,
		cols:     cols,
		rows:     rows,
		originX:  minX,
		originZ:  minZ,
		cells:    make([][]uint32, cols*rows),
		scratch:  make([]uint32, 0, 64),
	}
}

// cellAt clamps a world position into grid coordinates, so geometry outside
// the configured bounds lands in an edge cell instead of being lost.
func (g *cellGrid) cellAt(x, z float64) (int, int) {
	col := int((x - g.originX) * g.invCell)
	row := int((z - g.originZ) * g.invCell)
	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}

// rebuild repopulates the grid from the current box set.
func (g *cellGrid) rebuild(boxes []Box) {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	for idx, b := range boxes {
		c0, r0 := g.cellAt(b.Min.X, b.Min.Z)
		c1, r1 := g.cellAt(b.Max.X, b.Max.Z)
		for r := r0; r <= r1; r++ {
			for c := c0; c <= c1; c++ {
				cell := r*g.cols + c
				g.cells[cell] = append(g.cells[cell], uint32(idx))
			}
		}
	}
	if len(g.stamp) < len(boxes) {
		g.stamp = make([]uint32, len(boxes))
	}
}

// walk returns the deduplicated box indices in every cell the segment
// origin..origin+dir*maxDist crosses, using a DDA traversal over the grid.
func (g *cellGrid) walk(origin, dir Vec3, maxDist float64, boxCount int) []uint32 {
	g.stampID++
	if g.stampID == 0 {
		// Wrapped: reset stamps so stale marks cannot alias.
		for i := range g.stamp {
			g.stamp[i] = 0
		}
		g.stampID = 1
	}
	out := g.scratch[:0]

	col, row := g.cellAt(origin.X, origin.Z)
	endX := origin.X + dir.X*maxDist
	endZ := origin.Z + dir.Z*maxDist
	endCol, endRow := g.cellAt(endX, endZ)

	stepC, stepR := 0, 0
	tMaxC, tMaxR := math.Inf(1), math.Inf(1)
	tDeltaC, tDeltaR := math.Inf(1), math.Inf(1)

	if dir.X > 1e-12 {
		stepC = 1
		next := g.originX + float64(col+1)*g.cellSize
		tMaxC = (next - origin.X) / dir.X
		tDeltaC = g.cellSize / dir.X
	} else if dir.X < -1e-12 {
		stepC = -1
		next := g.originX + float64(col)*g.cellSize
		tMaxC = (next - origin.X) / dir.X
		tDeltaC = -g.cellSize / dir.X
	}
	if dir.Z > 1e-12 {
		stepR = 1
		next := g.originZ + float64(row+1)*g.cellSize
		tMaxR = (next - origin.Z) / dir.Z
		tDeltaR = g.cellSize / dir.Z
	} else if dir.Z < -1e-12 {
		stepR = -1
		next := g.originZ + float64(row)*g.cellSize
		tMaxR = (next - origin.Z) / dir.Z
		tDeltaR = -g.cellSize / dir.Z
	}

	// A segment can cross at most cols+rows cells; the cap guards against
	// degenerate traversal on clamped out-of-bounds endpoints.
	for steps := 0; steps <= g.cols+g.rows; steps++ {
		for _, idx := range g.cells[row*g.cols+col] {
			if int(idx) >= boxCount {
				continue
			}
			if g.stamp[idx] == g.stampID {
				continue
			}
			g.stamp[idx] = g.stampID
			out = append(out, idx)
		}
		if col == endCol && row == endRow {
			break
		}
		if tMaxC < tMaxR {
			if col == endCol {
				// Direction is nearly axis-aligned; finish along rows.
				if row == endRow {
					break
				}
				row += stepR
				tMaxR += tDeltaR
				continue
			}
			col += stepC
			tMaxC += tDeltaC
		} else {
			if row == endRow {
				if col == endCol {
					break
				}
				col += stepC
				tMaxC += tDeltaC
				continue
			}
			row += stepR
			tMaxR += tDeltaR
		}
		if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
			break
		}
	}

	g.scratch = out
	return out
}
