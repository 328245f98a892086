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
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/emisgrid/internal/hash"
)

// Rectilinear is a source grid whose cells are bounded by
// one-dimensional arrays of edge coordinates along each axis, as is
// typical of gridded scientific datasets. Edges may be increasing or
// decreasing, but must be strictly monotonic.
type Rectilinear struct {
	Name string

	// XEdges and YEdges hold the Nx+1 and Ny+1 cell edge coordinates.
	XEdges, YEdges []float64

	// SR is the spatial reference of the edges. A nil SR is
	// interpreted as longitude-latitude.
	SR *proj.SR
}

// NewRectilinear creates a new source grid and checks that it is valid.
func NewRectilinear(name string, xEdges, yEdges []float64, sr *proj.SR) (*Rectilinear, error) {
	if sr == nil {
		sr = LonLat()
	}
	r := &Rectilinear{Name: name, XEdges: xEdges, YEdges: yEdges, SR: sr}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewRectilinearFromCenters creates a new source grid from cell center
// coordinates. Interior edges are placed halfway between adjacent
// centers and the outer edges are extrapolated by half of the
// neighboring spacing.
func NewRectilinearFromCenters(name string, xCenters, yCenters []float64, sr *proj.SR) (*Rectilinear, error) {
	xe, err := centersToEdges(xCenters)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s x centers: %v", ErrConfig, name, err)
	}
	ye, err := centersToEdges(yCenters)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s y centers: %v", ErrConfig, name, err)
	}
	return NewRectilinear(name, xe, ye, sr)
}

func centersToEdges(c []float64) ([]float64, error) {
	if len(c) < 2 {
		return nil, fmt.Errorf("need at least 2 centers but have %d", len(c))
	}
	n := len(c)
	e := make([]float64, n+1)
	e[0] = c[0] - (c[1]-c[0])/2
	for i := 1; i < n; i++ {
		e[i] = (c[i-1] + c[i]) / 2
	}
	e[n] = c[n-1] + (c[n-1]-c[n-2])/2
	return e, nil
}

// RectilinearFromGrid returns the source grid with the same cells as g.
func RectilinearFromGrid(g *Grid) *Rectilinear {
	return &Rectilinear{Name: g.Name, XEdges: g.CellBoundsX(), YEdges: g.CellBoundsY(), SR: g.SR}
}

// Nx returns the number of columns.
func (r *Rectilinear) Nx() int { return len(r.XEdges) - 1 }

// Ny returns the number of rows.
func (r *Rectilinear) Ny() int { return len(r.YEdges) - 1 }

// Validate checks that the edges of r are strictly monotonic.
func (r *Rectilinear) Validate() error {
	if _, err := newAxis(r.XEdges); err != nil {
		return fmt.Errorf("source %s x edges: %w", r.Name, err)
	}
	if _, err := newAxis(r.YEdges); err != nil {
		return fmt.Errorf("source %s y edges: %w", r.Name, err)
	}
	return nil
}

// CellAreas returns the cell areas in m², with shape [Ny, Nx].
// Longitude-latitude grids use the area of a spherical rectangle;
// projected grids are assumed to be in meters.
func (r *Rectilinear) CellAreas() *sparse.DenseArray {
	sr := r.SR
	if sr == nil || sr.Name == "longlat" {
		return sphericalAreas(r.XEdges, r.YEdges)
	}
	nx, ny := r.Nx(), r.Ny()
	a := sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			a.Elements[j*nx+i] = math.Abs((r.XEdges[i+1] - r.XEdges[i]) * (r.YEdges[j+1] - r.YEdges[j]))
		}
	}
	return a
}

// Areas returns the cell areas in the form used by Redistribute.
func (r *Rectilinear) Areas() Areas { return ArrayAreas{r.CellAreas()} }

type rectilinearDefinition struct {
	XEdges, YEdges []float64
	SR             *proj.SR
}

// Key returns a fingerprint of the source grid geometry.
func (r *Rectilinear) Key() string {
	return hash.Hash(rectilinearDefinition{XEdges: r.XEdges, YEdges: r.YEdges, SR: r.srOrLonLat()})
}

func (r *Rectilinear) srOrLonLat() *proj.SR {
	if r.SR == nil {
		return LonLat()
	}
	return r.SR
}

// axis holds increasing edge coordinates. Cells of descending input
// edges are mapped back to their original indices with cell.
type axis struct {
	edges []float64
	flip  bool
}

func newAxis(e []float64) (axis, error) {
	if len(e) < 2 {
		return axis{}, fmt.Errorf("%w: need at least 2 edges but have %d", ErrConfig, len(e))
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return axis{}, fmt.Errorf("%w: edge %d is %g", ErrConfig, i, v)
		}
	}
	a := axis{edges: e}
	if e[1] < e[0] {
		a.flip = true
		a.edges = make([]float64, len(e))
		for i, v := range e {
			a.edges[len(e)-1-i] = v
		}
	}
	for i := 1; i < len(a.edges); i++ {
		if !(a.edges[i] > a.edges[i-1]) {
			return axis{}, fmt.Errorf("%w: edges %d and %d are %g and %g", ErrNotMonotonic, i-1, i, e[i-1], e[i])
		}
	}
	return a, nil
}

func (a axis) n() int { return len(a.edges) - 1 }

// cell returns the original index of increasing cell i.
func (a axis) cell(i int) int {
	if a.flip {
		return a.n() - 1 - i
	}
	return i
}

// span returns the range [lo, hi) of increasing cells that can overlap
// the interval [min, max], expanded by one cell on each side.
func (a axis) span(min, max float64) (lo, hi int) {
	lo = sort.SearchFloat64s(a.edges, min) - 2
	if lo < 0 {
		lo = 0
	}
	hi = sort.SearchFloat64s(a.edges, max) + 1
	if hi > a.n() {
		hi = a.n()
	}
	return lo, hi
}

// WeightTable maps every target grid cell to the source cells that
// overlap it. For target cell i (row-major), SrcX[i], SrcY[i] and
// Weights[i] are parallel lists, where each weight is the fraction of
// the source cell's area that falls within the target cell.
type WeightTable struct {
	Source, Target string

	// Fingerprint identifies the source and target geometry the table
	// was built for.
	Fingerprint string

	SrcNx, SrcNy int
	DstNx, DstNy int

	SrcX, SrcY [][]int
	Weights    [][]float64

	// Coverage is the sum of the weights assigned from each source cell,
	// in row-major order. It is 1 for source cells entirely within the
	// target grid and less than 1 for partially covered cells.
	Coverage []float64
}

// Fingerprint returns the combined fingerprint of a source and
// target grid.
func Fingerprint(src *Rectilinear, dst *Grid) string {
	return hash.Combine(src.Key(), dst.Key())
}

// BuildWeights computes the area-weighted overlap between the cells of
// src and dst. The corners of each target cell are transformed into the
// spatial reference of src and the resulting quadrilateral is clipped
// against each candidate source cell. Rows of the target grid are
// processed concurrently; the result does not depend on the number of
// processors.
func BuildWeights(src *Rectilinear, dst *Grid) (*WeightTable, error) {
	xa, err := newAxis(src.XEdges)
	if err != nil {
		return nil, fmt.Errorf("source %s x edges: %w", src.Name, err)
	}
	ya, err := newAxis(src.YEdges)
	if err != nil {
		return nil, fmt.Errorf("source %s y edges: %w", src.Name, err)
	}
	cx, cy, err := dst.cornersIn(src.srOrLonLat())
	if err != nil {
		return nil, fmt.Errorf("emisgrid: building weights from %s to %s: %v", src.Name, dst.Name, err)
	}
	quads := dst.quads(cx, cy)

	n := dst.Nx * dst.Ny
	wt := &WeightTable{
		Source:      src.Name,
		Target:      dst.Name,
		Fingerprint: Fingerprint(src, dst),
		SrcNx:       src.Nx(),
		SrcNy:       src.Ny(),
		DstNx:       dst.Nx,
		DstNy:       dst.Ny,
		SrcX:        make([][]int, n),
		SrcY:        make([][]int, n),
		Weights:     make([][]float64, n),
	}

	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for p := 0; p < nprocs; p++ {
		go func(p int) {
			defer wg.Done()
			for iy := p; iy < dst.Ny; iy += nprocs {
				for ix := 0; ix < dst.Nx; ix++ {
					i := iy*dst.Nx + ix
					wt.SrcX[i], wt.SrcY[i], wt.Weights[i] = cellWeights(quads[i][:], xa, ya)
				}
			}
		}(p)
	}
	wg.Wait()

	wt.Coverage = make([]float64, wt.SrcNx*wt.SrcNy)
	for i, w := range wt.Weights {
		for k, ww := range w {
			wt.Coverage[wt.SrcY[i][k]*wt.SrcNx+wt.SrcX[i][k]] += ww
		}
	}
	return wt, nil
}

// coverageTolerance is how far the coverage of a source cell may exceed 1.
const coverageTolerance = 1e-9

// OverCoverage returns the number of source cells whose coverage exceeds
// 1+tol and the largest coverage of any source cell.
func (wt *WeightTable) OverCoverage(tol float64) (n int, max float64) {
	for _, c := range wt.Coverage {
		if c > 1+tol {
			n++
		}
		if c > max {
			max = c
		}
	}
	return n, max
}

// cellWeights returns the source cells overlapping quadrilateral q and
// the fraction of each source cell's area that q covers.
func cellWeights(q []geom.Point, xa, ya axis) (sx, sy []int, w []float64) {
	for _, p := range q {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			return nil, nil, nil
		}
	}
	qb := boundsOf(q)
	x0, x1 := xa.span(qb.minX, qb.maxX)
	y0, y1 := ya.span(qb.minY, qb.maxY)
	for j := y0; j < y1; j++ {
		for i := x0; i < x1; i++ {
			b := box{minX: xa.edges[i], maxX: xa.edges[i+1], minY: ya.edges[j], maxY: ya.edges[j+1]}
			a := clipArea(q, b)
			if a <= 0 {
				continue
			}
			sx = append(sx, xa.cell(i))
			sy = append(sy, ya.cell(j))
			w = append(w, a/b.area())
		}
	}
	return sx, sy, w
}

// Len returns the number of non-zero weights in the table.
func (wt *WeightTable) Len() int {
	var n int
	for _, w := range wt.Weights {
		n += len(w)
	}
	return n
}

// check makes sure the table is internally consistent and was built for
// the given fingerprint.
func (wt *WeightTable) check(fingerprint string) error {
	if wt.Fingerprint != fingerprint {
		return fmt.Errorf("fingerprint %s does not match %s", wt.Fingerprint, fingerprint)
	}
	n := wt.DstNx * wt.DstNy
	if len(wt.SrcX) != n || len(wt.SrcY) != n || len(wt.Weights) != n {
		return fmt.Errorf("table has %d, %d, %d entries but the target grid has %d cells",
			len(wt.SrcX), len(wt.SrcY), len(wt.Weights), n)
	}
	for i, w := range wt.Weights {
		if len(wt.SrcX[i]) != len(w) || len(wt.SrcY[i]) != len(w) {
			return fmt.Errorf("target cell %d has mismatched index and weight lists", i)
		}
		for k := range w {
			if sx, sy := wt.SrcX[i][k], wt.SrcY[i][k]; sx < 0 || sx >= wt.SrcNx || sy < 0 || sy >= wt.SrcNy {
				return fmt.Errorf("target cell %d refers to source cell (%d, %d) outside of [%d %d]",
					i, sx, sy, wt.SrcNx, wt.SrcNy)
			}
		}
	}
	if len(wt.Coverage) != wt.SrcNx*wt.SrcNy {
		return fmt.Errorf("coverage has %d entries but the source grid has %d cells", len(wt.Coverage), wt.SrcNx*wt.SrcNy)
	}
	return nil
}
