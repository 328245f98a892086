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

// bands checks that f has shape [ny, nx] or [nband, ny, nx] and
// returns the number of bands.
func bands(f *sparse.DenseArray, nx, ny int) (int, error) {
	if f == nil {
		return 0, fmt.Errorf("%w: field is nil", ErrShape)
	}
	s := f.Shape
	switch {
	case len(s) == 2 && s[0] == ny && s[1] == nx:
		return 1, nil
	case len(s) == 3 && s[1] == ny && s[2] == nx:
		return s[0], nil
	}
	return 0, fmt.Errorf("%w: field has shape %v but the grid is [%d %d]", ErrShape, s, ny, nx)
}

func newField(nband int, banded bool, nx, ny int) *sparse.DenseArray {
	if banded {
		return sparse.ZerosDense(nband, ny, nx)
	}
	return sparse.ZerosDense(ny, nx)
}

// Redistribute conservatively maps areal density field src, defined on
// the source grid of wt, onto the target grid of wt:
//
//	dst[i] = Σ src[k] · w[k] · srcArea[k] / dstArea[i]
//
// src may have shape [ny, nx] or [nband, ny, nx]; each band is
// redistributed independently. Mass from source cells outside of the
// target grid is dropped and NaN source values contribute nothing.
// Target cells with no overlapping source cells are 0.
func Redistribute(src *sparse.DenseArray, wt *WeightTable, srcArea, dstArea Areas) (*sparse.DenseArray, error) {
	nband, err := bands(src, wt.SrcNx, wt.SrcNy)
	if err != nil {
		return nil, fmt.Errorf("redistributing %s: %w", wt.Source, err)
	}
	if err := checkAreas(srcArea, wt.SrcNx, wt.SrcNy, "source"); err != nil {
		return nil, err
	}
	if err := checkAreas(dstArea, wt.DstNx, wt.DstNy, "target"); err != nil {
		return nil, err
	}
	out := newField(nband, len(src.Shape) == 3, wt.DstNx, wt.DstNy)
	srcSize, dstSize := wt.SrcNx*wt.SrcNy, wt.DstNx*wt.DstNy
	for b := 0; b < nband; b++ {
		sb := src.Elements[b*srcSize : (b+1)*srcSize]
		for i, w := range wt.Weights {
			if len(w) == 0 {
				continue
			}
			var sum float64
			for k, ww := range w {
				sx, sy := wt.SrcX[i][k], wt.SrcY[i][k]
				v := sb[sy*wt.SrcNx+sx]
				if math.IsNaN(v) {
					continue
				}
				sum += v * ww * srcArea.Area(sx, sy)
			}
			out.Elements[b*dstSize+i] = sum / dstArea.Area(i%wt.DstNx, i/wt.DstNx)
		}
	}
	return out, nil
}

// TotalMass returns the area integral of areal density field f over
// all bands, skipping NaN values. f must have shape [ny, nx] or
// [nband, ny, nx], matching areas.
func TotalMass(f *sparse.DenseArray, areas Areas) float64 {
	s := f.Shape
	nx, ny := s[len(s)-1], s[len(s)-2]
	var sum float64
	for i, v := range f.Elements {
		if math.IsNaN(v) {
			continue
		}
		c := i % (nx * ny)
		sum += v * areas.Area(c%nx, c/nx)
	}
	return sum
}
