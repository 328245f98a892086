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
	"gonum.org/v1/gonum/floats"
)

// NearestTable maps every target grid cell to the single source cell
// that contains the target cell center. It does not conserve mass and
// is intended for categorical data such as land-water masks.
type NearestTable struct {
	Source, Target string
	Fingerprint    string

	SrcNx, SrcNy int
	DstNx, DstNy int

	// SrcX and SrcY hold the source column and row for each target cell
	// in row-major order, or -1 where the target cell center is outside
	// of the source grid.
	SrcX, SrcY []int
}

// BuildNearest bins the centers of the dst cells, transformed into the
// spatial reference of src, into the src edge arrays. It is meant for
// grids that share a projection and have parallel axes.
func BuildNearest(src *Rectilinear, dst *Grid) (*NearestTable, error) {
	xa, err := newAxis(src.XEdges)
	if err != nil {
		return nil, fmt.Errorf("source %s x edges: %w", src.Name, err)
	}
	ya, err := newAxis(src.YEdges)
	if err != nil {
		return nil, fmt.Errorf("source %s y edges: %w", src.Name, err)
	}
	t, err := NewTransform(dst.SR, src.srOrLonLat())
	if err != nil {
		return nil, fmt.Errorf("emisgrid: building nearest-cell table from %s to %s: %v", src.Name, dst.Name, err)
	}
	xc, yc := dst.CellCoordsX(), dst.CellCoordsY()
	n := dst.Nx * dst.Ny
	nt := &NearestTable{
		Source:      src.Name,
		Target:      dst.Name,
		Fingerprint: Fingerprint(src, dst),
		SrcNx:       src.Nx(),
		SrcNy:       src.Ny(),
		DstNx:       dst.Nx,
		DstNy:       dst.Ny,
		SrcX:        make([]int, n),
		SrcY:        make([]int, n),
	}
	for iy, y := range yc {
		for ix, x := range xc {
			i := iy*dst.Nx + ix
			nt.SrcX[i], nt.SrcY[i] = -1, -1
			sx, sy, err := t(x, y)
			if err != nil || math.IsNaN(sx) || math.IsNaN(sy) {
				continue
			}
			ci := floats.Within(xa.edges, sx)
			cj := floats.Within(ya.edges, sy)
			if ci < 0 || cj < 0 {
				continue
			}
			nt.SrcX[i], nt.SrcY[i] = xa.cell(ci), ya.cell(cj)
		}
	}
	return nt, nil
}

// Apply samples src at the nearest source cell of every target cell.
// src must have shape [SrcNy, SrcNx] or [nband, SrcNy, SrcNx]. Target
// cells outside of the source grid are set to fill.
func (nt *NearestTable) Apply(src *sparse.DenseArray, fill float64) (*sparse.DenseArray, error) {
	nband, err := bands(src, nt.SrcNx, nt.SrcNy)
	if err != nil {
		return nil, err
	}
	out := newField(nband, len(src.Shape) == 3, nt.DstNx, nt.DstNy)
	srcSize, dstSize := nt.SrcNx*nt.SrcNy, nt.DstNx*nt.DstNy
	for b := 0; b < nband; b++ {
		for i := 0; i < dstSize; i++ {
			if nt.SrcX[i] < 0 {
				out.Elements[b*dstSize+i] = fill
				continue
			}
			out.Elements[b*dstSize+i] = src.Elements[b*srcSize+nt.SrcY[i]*nt.SrcNx+nt.SrcX[i]]
		}
	}
	return out, nil
}

func (nt *NearestTable) check(fingerprint string) error {
	if nt.Fingerprint != fingerprint {
		return fmt.Errorf("fingerprint %s does not match %s", nt.Fingerprint, fingerprint)
	}
	n := nt.DstNx * nt.DstNy
	if len(nt.SrcX) != n || len(nt.SrcY) != n {
		return fmt.Errorf("table has %d and %d entries but the target grid has %d cells", len(nt.SrcX), len(nt.SrcY), n)
	}
	for i := range nt.SrcX {
		if nt.SrcX[i] >= nt.SrcNx || nt.SrcY[i] >= nt.SrcNy {
			return fmt.Errorf("target cell %d refers to source cell (%d, %d) outside of [%d %d]",
				i, nt.SrcX[i], nt.SrcY[i], nt.SrcNx, nt.SrcNy)
		}
	}
	return nil
}
