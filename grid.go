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
	"os"
	"path/filepath"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	goshp "github.com/jonas-p/go-shp"
	"github.com/spatialmodel/emisgrid/internal/hash"
)

// EarthRadius is the radius of the spherical earth used for
// cell areas, in meters. It matches the sphere used by WRF.
const EarthRadius = 6370997.

// LonLat returns the geographic spatial reference used for
// all longitude-latitude coordinates.
func LonLat() *proj.SR {
	sr, err := proj.Parse("+proj=longlat")
	if err != nil {
		panic(err)
	}
	return sr
}

// NewTransform returns a function that transforms points from src to
// dst. Unlike src.NewTransform, the result is never nil: equal spatial
// references give the identity transform.
func NewTransform(src, dst *proj.SR) (proj.Transformer, error) {
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = func(x, y float64) (float64, float64, error) { return x, y, nil }
	}
	return t, nil
}

// Grid is a regular rectangular grid embedded in a spatial projection.
// Grids must be created with NewGrid and are not modified afterwards.
type Grid struct {
	Name   string
	Nx, Ny int
	Dx, Dy float64

	// X0 and Y0 are the coordinates of the lower-left corner of the
	// grid in the units of SR.
	X0, Y0 float64

	SR *proj.SR

	toLonLat, fromLonLat proj.Transformer
}

// NewGrid creates a new grid with nx columns and ny rows of
// dx by dy cells, with the lower-left corner at (x0, y0).
// A nil sr is interpreted as longitude-latitude.
func NewGrid(name string, nx, ny int, dx, dy, x0, y0 float64, sr *proj.SR) (*Grid, error) {
	switch {
	case nx <= 0:
		return nil, fmt.Errorf("%w: grid %s: nx=%d but should be >0", ErrConfig, name, nx)
	case ny <= 0:
		return nil, fmt.Errorf("%w: grid %s: ny=%d but should be >0", ErrConfig, name, ny)
	case !(dx > 0):
		return nil, fmt.Errorf("%w: grid %s: dx=%g but should be >0", ErrConfig, name, dx)
	case !(dy > 0):
		return nil, fmt.Errorf("%w: grid %s: dy=%g but should be >0", ErrConfig, name, dy)
	case math.IsNaN(x0) || math.IsInf(x0, 0) || math.IsNaN(y0) || math.IsInf(y0, 0):
		return nil, fmt.Errorf("%w: grid %s: origin (%g, %g) is not finite", ErrConfig, name, x0, y0)
	}
	if sr == nil {
		sr = LonLat()
	}
	g := &Grid{
		Name: name,
		Nx:   nx, Ny: ny,
		Dx: dx, Dy: dy,
		X0: x0, Y0: y0,
		SR: sr,
	}
	ll := LonLat()
	var err error
	if g.toLonLat, err = NewTransform(sr, ll); err != nil {
		return nil, fmt.Errorf("%w: grid %s: %v", ErrConfig, name, err)
	}
	if g.fromLonLat, err = NewTransform(ll, sr); err != nil {
		return nil, fmt.Errorf("%w: grid %s: %v", ErrConfig, name, err)
	}
	return g, nil
}

// Geographic returns whether the grid is defined in longitude-latitude
// coordinates.
func (g *Grid) Geographic() bool { return g.SR.Name == "longlat" }

// CellCoordsX returns the x coordinates of the cell centers.
func (g *Grid) CellCoordsX() []float64 { return centers(g.X0, g.Dx, g.Nx) }

// CellCoordsY returns the y coordinates of the cell centers.
func (g *Grid) CellCoordsY() []float64 { return centers(g.Y0, g.Dy, g.Ny) }

// CellBoundsX returns the Nx+1 x coordinates of the cell edges.
func (g *Grid) CellBoundsX() []float64 { return edges(g.X0, g.Dx, g.Nx) }

// CellBoundsY returns the Ny+1 y coordinates of the cell edges.
func (g *Grid) CellBoundsY() []float64 { return edges(g.Y0, g.Dy, g.Ny) }

func centers(x0, dx float64, n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = x0 + (float64(i)+0.5)*dx
	}
	return o
}

func edges(x0, dx float64, n int) []float64 {
	o := make([]float64, n+1)
	for i := range o {
		o[i] = x0 + float64(i)*dx
	}
	return o
}

// LowerLeft returns the lower-left corner of the grid.
func (g *Grid) LowerLeft() geom.Point { return geom.Point{X: g.X0, Y: g.Y0} }

// Extent returns the bounds of the grid in its own projection.
func (g *Grid) Extent() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: g.X0, Y: g.Y0},
		Max: geom.Point{X: g.X0 + g.Dx*float64(g.Nx), Y: g.Y0 + g.Dy*float64(g.Ny)},
	}
}

// CellArea returns the area of a single cell in the squared units
// of the grid projection.
func (g *Grid) CellArea() float64 { return g.Dx * g.Dy }

// CellAreas returns the area of each grid cell in m², with
// shape [Ny, Nx]. Geographic grids use the area of a spherical
// rectangle; projected grids are assumed to be in meters.
func (g *Grid) CellAreas() *sparse.DenseArray {
	if g.Geographic() {
		return sphericalAreas(g.CellBoundsX(), g.CellBoundsY())
	}
	a := sparse.ZerosDense(g.Ny, g.Nx)
	for i := range a.Elements {
		a.Elements[i] = g.Dx * g.Dy
	}
	return a
}

// Areas returns the cell areas in the form used by Redistribute.
func (g *Grid) Areas() Areas {
	if g.Geographic() {
		return ArrayAreas{g.CellAreas()}
	}
	return UniformArea(g.Dx * g.Dy)
}

// LonLatToXY projects longitude-latitude coordinates into the grid
// projection. Points that cannot be projected are returned as NaN.
func (g *Grid) LonLatToXY(lon, lat []float64) (x, y []float64, err error) {
	return transformAll(g.fromLonLat, lon, lat)
}

// XYToLonLat converts coordinates in the grid projection to
// longitude-latitude. Points that cannot be converted are returned as NaN.
func (g *Grid) XYToLonLat(x, y []float64) (lon, lat []float64, err error) {
	return transformAll(g.toLonLat, x, y)
}

func transformAll(t proj.Transformer, x, y []float64) (ox, oy []float64, err error) {
	if len(x) != len(y) {
		return nil, nil, fmt.Errorf("%w: coordinate arrays have lengths %d and %d", ErrShape, len(x), len(y))
	}
	ox = make([]float64, len(x))
	oy = make([]float64, len(y))
	for i := range x {
		var terr error
		ox[i], oy[i], terr = t(x[i], y[i])
		if terr != nil {
			ox[i], oy[i] = math.NaN(), math.NaN()
		}
	}
	return ox, oy, nil
}

// LonLatToCellIndex returns the column and row of the cell containing
// each longitude-latitude point. valid is false, and ix and iy are -1,
// for points outside the grid.
func (g *Grid) LonLatToCellIndex(lon, lat []float64) (ix, iy []int, valid []bool, err error) {
	x, y, err := g.LonLatToXY(lon, lat)
	if err != nil {
		return nil, nil, nil, err
	}
	ix, iy, valid = g.XYToCellIndex(x, y)
	return ix, iy, valid, nil
}

// XYToCellIndex is the same as LonLatToCellIndex, except that the
// points are already in the grid projection.
func (g *Grid) XYToCellIndex(x, y []float64) (ix, iy []int, valid []bool) {
	ix = make([]int, len(x))
	iy = make([]int, len(x))
	valid = make([]bool, len(x))
	for i := range x {
		ix[i], iy[i], valid[i] = g.cellIndex(x[i], y[i])
	}
	return
}

func (g *Grid) cellIndex(x, y float64) (ix, iy int, valid bool) {
	fx := math.Floor((x - g.X0) / g.Dx)
	fy := math.Floor((y - g.Y0) / g.Dy)
	if !(fx >= 0 && fx < float64(g.Nx) && fy >= 0 && fy < float64(g.Ny)) {
		return -1, -1, false
	}
	return int(fx), int(fy), true
}

// cornersIn returns the (Nx+1)*(Ny+1) cell corner lattice,
// row-major by y, transformed into spatial reference sr.
// Corners that cannot be transformed are NaN.
func (g *Grid) cornersIn(sr *proj.SR) (x, y []float64, err error) {
	t, err := NewTransform(g.SR, sr)
	if err != nil {
		return nil, nil, err
	}
	bx, by := g.CellBoundsX(), g.CellBoundsY()
	n := len(bx) * len(by)
	x, y = make([]float64, 0, n), make([]float64, 0, n)
	for _, yy := range by {
		x = append(x, bx...)
		for range bx {
			y = append(y, yy)
		}
	}
	return transformAll(t, x, y)
}

// CellBoundsLonLat returns the longitude-latitude coordinates of the
// four corners of every cell, in row-major order, starting at the
// lower-left corner and proceeding counter-clockwise.
func (g *Grid) CellBoundsLonLat() ([][4]geom.Point, error) {
	x, y, err := g.cornersIn(LonLat())
	if err != nil {
		return nil, err
	}
	return g.quads(x, y), nil
}

func (g *Grid) quads(x, y []float64) [][4]geom.Point {
	o := make([][4]geom.Point, g.Nx*g.Ny)
	w := g.Nx + 1
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			ll, lr := j*w+i, j*w+i+1
			ul, ur := (j+1)*w+i, (j+1)*w+i+1
			o[j*g.Nx+i] = [4]geom.Point{
				{X: x[ll], Y: y[ll]}, {X: x[lr], Y: y[lr]},
				{X: x[ur], Y: y[ur]}, {X: x[ul], Y: y[ul]},
			}
		}
	}
	return o
}

// CellPolygon returns the polygon of cell (ix, iy) in the grid projection.
func (g *Grid) CellPolygon(ix, iy int) geom.Polygon {
	x := g.X0 + float64(ix)*g.Dx
	y := g.Y0 + float64(iy)*g.Dy
	return geom.Polygon([]geom.Path{{
		{X: x, Y: y}, {X: x + g.Dx, Y: y},
		{X: x + g.Dx, Y: y + g.Dy}, {X: x, Y: y + g.Dy}, {X: x, Y: y}}})
}

// CellPolygonLonLat returns the polygon of cell (ix, iy) in
// longitude-latitude coordinates.
func (g *Grid) CellPolygonLonLat(ix, iy int) (geom.Polygon, error) {
	p, err := g.CellPolygon(ix, iy).Transform(g.toLonLat)
	if err != nil {
		return nil, err
	}
	return p.(geom.Polygon), nil
}

type gridDefinition struct {
	Nx, Ny         int
	Dx, Dy, X0, Y0 float64
	SR             *proj.SR
}

// Key returns a fingerprint of the grid geometry. Grids with the same
// dimensions, spacing, origin and projection have the same key
// regardless of their names.
func (g *Grid) Key() string {
	return hash.Hash(gridDefinition{Nx: g.Nx, Ny: g.Ny, Dx: g.Dx, Dy: g.Dy, X0: g.X0, Y0: g.Y0, SR: g.SR})
}

// WriteToShp writes the grid cells to a shapefile in directory outdir.
func (g *Grid) WriteToShp(outdir string) error {
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(filepath.Join(outdir, g.Name+ext))
	}
	fields := make([]goshp.Field, 2)
	fields[0] = goshp.NumberField("row", 10)
	fields[1] = goshp.NumberField("col", 10)
	shpf, err := shp.NewEncoderFromFields(filepath.Join(outdir, g.Name+".shp"),
		goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("emisgrid: writing grid shapefile: %v", err)
	}
	for iy := 0; iy < g.Ny; iy++ {
		for ix := 0; ix < g.Nx; ix++ {
			if err = shpf.EncodeFields(g.CellPolygon(ix, iy), iy, ix); err != nil {
				shpf.Close()
				return fmt.Errorf("emisgrid: writing grid shapefile: %v", err)
			}
		}
	}
	shpf.Close()
	return nil
}
