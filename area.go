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

	"github.com/ctessum/sparse"
)

// Areas gives the area of each cell of a grid.
type Areas interface {
	Area(ix, iy int) float64
}

// UniformArea is an Areas where every cell has the same area.
type UniformArea float64

// Area returns the cell area.
func (a UniformArea) Area(_, _ int) float64 { return float64(a) }

// ArrayAreas is an Areas backed by an array with shape [ny, nx].
type ArrayAreas struct {
	*sparse.DenseArray
}

// Area returns the area of cell (ix, iy).
func (a ArrayAreas) Area(ix, iy int) float64 {
	return a.Elements[iy*a.Shape[1]+ix]
}

// checkAreas makes sure a is consistent with an nx by ny grid.
func checkAreas(a Areas, nx, ny int, name string) error {
	switch aa := a.(type) {
	case nil:
		return fmt.Errorf("%w: %s areas are missing", ErrShape, name)
	case ArrayAreas:
		if aa.DenseArray == nil || len(aa.Shape) != 2 || aa.Shape[0] != ny || aa.Shape[1] != nx {
			var shape []int
			if aa.DenseArray != nil {
				shape = aa.Shape
			}
			return fmt.Errorf("%w: %s areas have shape %v but the grid is [%d %d]", ErrShape, name, shape, ny, nx)
		}
	case UniformArea:
		if !(aa > 0) {
			return fmt.Errorf("%w: %s cell area is %g", ErrConfig, name, float64(aa))
		}
	}
	return nil
}

// sphericalAreas returns the areas in m² of the lon-lat rectangles
// defined by edges xb and yb (degrees), with shape [len(yb)-1, len(xb)-1].
// The area of each rectangle is R²·Δλ·(sin φ2 - sin φ1).
func sphericalAreas(xb, yb []float64) *sparse.DenseArray {
	nx, ny := len(xb)-1, len(yb)-1
	a := sparse.ZerosDense(ny, nx)
	const deg2rad = math.Pi / 180
	for j := 0; j < ny; j++ {
		band := math.Abs(math.Sin(yb[j+1]*deg2rad) - math.Sin(yb[j]*deg2rad))
		for i := 0; i < nx; i++ {
			a.Elements[j*nx+i] = EarthRadius * EarthRadius * math.Abs(xb[i+1]-xb[i]) * deg2rad * band
		}
	}
	return a
}
