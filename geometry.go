/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.*/

package emisgrid

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// box is an axis-aligned rectangle.
type box struct {
	minX, minY, maxX, maxY float64
}

func (b box) area() float64 { return (b.maxX - b.minX) * (b.maxY - b.minY) }

func boundsOf(r []geom.Point) box {
	b := box{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	for _, p := range r {
		b.minX = math.Min(b.minX, p.X)
		b.minY = math.Min(b.minY, p.Y)
		b.maxX = math.Max(b.maxX, p.X)
		b.maxY = math.Max(b.maxY, p.Y)
	}
	return b
}

func (b box) contains(o box) bool {
	return o.minX >= b.minX && o.maxX <= b.maxX && o.minY >= b.minY && o.maxY <= b.maxY
}

func (b box) overlaps(o box) bool {
	return o.minX < b.maxX && o.maxX > b.minX && o.minY < b.maxY && o.maxY > b.minY
}

// clipArea returns the area of the intersection between ring r and b.
// r must be a simple polygon; it does not need to be closed.
func clipArea(r []geom.Point, b box) float64 {
	rb := boundsOf(r)
	if !b.overlaps(rb) {
		return 0
	}
	if b.contains(rb) {
		return geom.Polygon{r}.Area()
	}
	return geom.Polygon{clipRing(r, b)}.Area()
}

// clipRing clips ring r to box b using the Sutherland-Hodgman algorithm.
// The clip window is convex, so the result area is exact for any
// simple subject polygon.
func clipRing(r []geom.Point, b box) []geom.Point {
	out := r
	for edge := 0; edge < 4 && len(out) > 0; edge++ {
		in := out
		out = make([]geom.Point, 0, len(in)+4)
		prev := in[len(in)-1]
		for _, cur := range in {
			curIn, prevIn := b.inside(cur, edge), b.inside(prev, edge)
			if curIn {
				if !prevIn {
					out = append(out, b.cross(prev, cur, edge))
				}
				out = append(out, cur)
			} else if prevIn {
				out = append(out, b.cross(prev, cur, edge))
			}
			prev = cur
		}
	}
	return out
}

func (b box) inside(p geom.Point, edge int) bool {
	switch edge {
	case 0:
		return p.X >= b.minX
	case 1:
		return p.X <= b.maxX
	case 2:
		return p.Y >= b.minY
	default:
		return p.Y <= b.maxY
	}
}

// cross returns the point where segment pq crosses the given box edge.
func (b box) cross(p, q geom.Point, edge int) geom.Point {
	switch edge {
	case 0, 1:
		x := b.minX
		if edge == 1 {
			x = b.maxX
		}
		t := (x - p.X) / (q.X - p.X)
		return geom.Point{X: x, Y: p.Y + t*(q.Y-p.Y)}
	default:
		y := b.minY
		if edge == 3 {
			y = b.maxY
		}
		t := (y - p.Y) / (q.Y - p.Y)
		return geom.Point{X: p.X + t*(q.X-p.X), Y: y}
	}
}

// densify returns points spaced along the boundary of b,
// n points per side.
func densify(b box, n int) (x, y []float64) {
	x = make([]float64, 0, 4*n)
	y = make([]float64, 0, 4*n)
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n)
		x = append(x, b.minX+f*(b.maxX-b.minX), b.maxX, b.maxX-f*(b.maxX-b.minX), b.minX)
		y = append(y, b.minY, b.minY+f*(b.maxY-b.minY), b.maxY, b.maxY-f*(b.maxY-b.minY))
	}
	return
}

// reprojectBox returns the bounding box, in the coordinates of t's
// destination, of the densified boundary of b. ok is false if no
// boundary point could be transformed.
func reprojectBox(t proj.Transformer, b box) (o box, ok bool) {
	x, y := densify(b, 16)
	o = box{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	for i := range x {
		xx, yy, err := t(x[i], y[i])
		if err != nil || math.IsNaN(xx) || math.IsNaN(yy) {
			continue
		}
		ok = true
		o.minX, o.maxX = math.Min(o.minX, xx), math.Max(o.maxX, xx)
		o.minY, o.maxY = math.Min(o.minY, yy), math.Max(o.maxY, yy)
	}
	return o, ok
}

// indexRange returns the cell index range [ix0, ix1) x [iy0, iy1) that
// can overlap b, which is in the grid projection, with one cell of slack.
func (g *Grid) indexRange(b box) (ix0, ix1, iy0, iy1 int) {
	clamp := func(v float64, n int) int {
		if v < 0 {
			return 0
		}
		if v > float64(n) {
			return n
		}
		return int(v)
	}
	ix0 = clamp(math.Floor((b.minX-g.X0)/g.Dx)-1, g.Nx)
	ix1 = clamp(math.Floor((b.maxX-g.X0)/g.Dx)+2, g.Nx)
	iy0 = clamp(math.Floor((b.minY-g.Y0)/g.Dy)-1, g.Ny)
	iy1 = clamp(math.Floor((b.maxY-g.Y0)/g.Dy)+2, g.Ny)
	return
}

// CellWeight is the fraction of a geometry that falls in grid cell (IX, IY).
type CellWeight struct {
	IX, IY int
	Weight float64
}

// PolygonCellIntersection returns every cell of grid that overlaps
// polygon p, which is in longitude-latitude coordinates, together with
// the fraction of the area of p that falls in the cell. Cells with no
// overlap are omitted, so the weights sum to less than one when p
// extends beyond the grid. Areas are computed in planar
// longitude-latitude coordinates, and polygons crossing the
// antimeridian are not supported.
func PolygonCellIntersection(p geom.Polygonal, grid *Grid) ([]CellWeight, error) {
	total := p.Area()
	if !(total > 0) {
		return nil, nil
	}
	pb := p.Bounds()
	b, ok := reprojectBox(grid.fromLonLat, box{minX: pb.Min.X, minY: pb.Min.Y, maxX: pb.Max.X, maxY: pb.Max.Y})
	if !ok {
		return nil, nil
	}
	ix0, ix1, iy0, iy1 := grid.indexRange(b)
	var o []CellWeight
	for iy := iy0; iy < iy1; iy++ {
		for ix := ix0; ix < ix1; ix++ {
			cell, err := grid.CellPolygonLonLat(ix, iy)
			if err != nil {
				return nil, err
			}
			if !cell.Bounds().Overlaps(pb) {
				continue
			}
			isect := cell.Intersection(p)
			if isect == nil {
				continue
			}
			if a := isect.Area(); a > 0 {
				o = append(o, CellWeight{IX: ix, IY: iy, Weight: a / total})
			}
		}
	}
	return o, nil
}
