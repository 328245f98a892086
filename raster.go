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
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
)

// Anchor specifies which point of a pixel the raster origin refers to.
type Anchor int

const (
	// PixelCorner means that X0, Y0 is the outer corner of the first pixel.
	PixelCorner Anchor = iota
	// PixelCenter means that X0, Y0 is the center of the first pixel.
	PixelCenter
)

// Aggregation specifies how raster pixels are combined within a grid cell.
type Aggregation int

const (
	// Sum adds the values of all pixels in a cell. It is meant for
	// extensive quantities such as emission totals. Cells without any
	// pixels are 0.
	Sum Aggregation = iota

	// Mean averages the values of all pixels in a cell. It is meant for
	// intensive quantities such as fractions or indicators. Cells
	// without any pixels are NaN.
	Mean
)

func (a Aggregation) String() string {
	switch a {
	case Sum:
		return "sum"
	case Mean:
		return "mean"
	default:
		return fmt.Sprintf("Aggregation(%d)", int(a))
	}
}

// ParseAggregation parses "sum" or "mean".
func ParseAggregation(s string) (Aggregation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "":
		return Sum, nil
	case "mean":
		return Mean, nil
	default:
		return -1, fmt.Errorf("%w: invalid aggregation '%s'", ErrConfig, s)
	}
}

// Raster is a dense regular raster. Data are stored row-major with
// row 0 first. Dy is usually negative for north-up rasters, where
// row 0 is the northernmost row.
type Raster struct {
	Nx, Ny int
	X0, Y0 float64
	Dx, Dy float64
	Anchor Anchor

	// SR is the spatial reference of the raster. A nil SR is
	// interpreted as longitude-latitude.
	SR *proj.SR

	// If HasNoData is set, pixels equal to NoData are skipped.
	// NaN pixels are always skipped.
	HasNoData bool
	NoData    float64

	Data []float64
}

// pixelOffset is the offset from the origin to the center of the first pixel,
// in pixels.
func (r *Raster) pixelOffset() float64 {
	if r.Anchor == PixelCorner {
		return 0.5
	}
	return 0
}

// PixelCenter returns the coordinates of the center of pixel (col, row).
func (r *Raster) PixelCenter(col, row int) (x, y float64) {
	off := r.pixelOffset()
	return r.X0 + (float64(col)+off)*r.Dx, r.Y0 + (float64(row)+off)*r.Dy
}

func (r *Raster) validate() error {
	switch {
	case r.Nx <= 0 || r.Ny <= 0:
		return fmt.Errorf("%w: raster dimensions %dx%d should be >0", ErrConfig, r.Nx, r.Ny)
	case r.Dx == 0 || r.Dy == 0 || math.IsNaN(r.Dx) || math.IsNaN(r.Dy):
		return fmt.Errorf("%w: raster pixel size %gx%g should be non-zero", ErrConfig, r.Dx, r.Dy)
	case len(r.Data) != r.Nx*r.Ny:
		return fmt.Errorf("%w: raster has %d values but dimensions %dx%d", ErrShape, len(r.Data), r.Nx, r.Ny)
	}
	return nil
}

// window returns the range of columns and rows [c0, c1) x [r0, r1)
// whose pixel centers can fall within box b, which is in raster
// coordinates.
func (r *Raster) window(b box) (c0, c1, r0, r1 int) {
	off := r.pixelOffset()
	rng := func(lo, hi, o, d float64, n int) (int, int) {
		a := (lo-o)/d - off
		z := (hi-o)/d - off
		if a > z {
			a, z = z, a
		}
		i0 := int(math.Max(math.Floor(a)-1, 0))
		i1 := int(math.Min(math.Ceil(z)+2, float64(n)))
		if i1 < i0 {
			i1 = i0
		}
		return i0, i1
	}
	c0, c1 = rng(b.minX, b.maxX, r.X0, r.Dx, r.Nx)
	r0, r1 = rng(b.minY, b.maxY, r.Y0, r.Dy, r.Ny)
	return
}

// RemapRaster aggregates the pixels of r onto grid g by the grid cell
// that contains each pixel center. Pixels outside of g are dropped.
// Only the part of the raster that overlaps the grid extent is read.
func RemapRaster(r *Raster, g *Grid, mode Aggregation) (*sparse.DenseArray, error) {
	out, _, err := RemapRasterCounts(r, g, mode)
	return out, err
}

// RemapRasterCounts is the same as RemapRaster but also returns the
// number of pixels assigned to each grid cell.
func RemapRasterCounts(r *Raster, g *Grid, mode Aggregation) (out, counts *sparse.DenseArray, err error) {
	if err := r.validate(); err != nil {
		return nil, nil, err
	}
	if mode != Sum && mode != Mean {
		return nil, nil, fmt.Errorf("%w: invalid aggregation %v", ErrConfig, mode)
	}
	rsr := r.SR
	if rsr == nil {
		rsr = LonLat()
	}
	toRaster, err := NewTransform(g.SR, rsr)
	if err != nil {
		return nil, nil, fmt.Errorf("emisgrid: remapping raster: %v", err)
	}
	toGrid, err := NewTransform(rsr, g.SR)
	if err != nil {
		return nil, nil, fmt.Errorf("emisgrid: remapping raster: %v", err)
	}
	out = sparse.ZerosDense(g.Ny, g.Nx)
	counts = sparse.ZerosDense(g.Ny, g.Nx)

	e := g.Extent()
	b, ok := reprojectBox(toRaster, box{minX: e.Min.X, minY: e.Min.Y, maxX: e.Max.X, maxY: e.Max.Y})
	if ok {
		c0, c1, r0, r1 := r.window(b)
		for row := r0; row < r1; row++ {
			for col := c0; col < c1; col++ {
				v := r.Data[row*r.Nx+col]
				if math.IsNaN(v) || (r.HasNoData && v == r.NoData) {
					continue
				}
				x, y := r.PixelCenter(col, row)
				gx, gy, err := toGrid(x, y)
				if err != nil {
					continue
				}
				ix, iy, valid := g.cellIndex(gx, gy)
				if !valid {
					continue
				}
				i := iy*g.Nx + ix
				out.Elements[i] += v
				counts.Elements[i]++
			}
		}
	}
	if mode == Mean {
		for i, c := range counts.Elements {
			if c == 0 {
				out.Elements[i] = math.NaN()
				continue
			}
			out.Elements[i] /= c
		}
	}
	return out, counts, nil
}
