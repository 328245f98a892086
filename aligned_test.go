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
	"testing"

	"github.com/ctessum/sparse"
)

func TestNearestIdentity(t *testing.T) {
	g := lccGrid(t)
	nt, err := BuildNearest(RectilinearFromGrid(g), g)
	if err != nil {
		t.Fatal(err)
	}
	field := randomField(g.Nx, g.Ny, 2)
	out, err := nt.Apply(field, -1)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range field.Elements {
		if out.Elements[i] != v {
			t.Fatalf("cell %d = %g, want %g", i, out.Elements[i], v)
		}
	}
}

func TestNearestRefined(t *testing.T) {
	src, err := NewRectilinear("mask", regularEdges(0, 1, 4), []float64{4, 3, 2, 1, 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := NewGrid("fine", 10, 8, 0.5, 0.5, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	nt, err := BuildNearest(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	for iy := 0; iy < dst.Ny; iy++ {
		for ix := 0; ix < dst.Nx; ix++ {
			i := iy*dst.Nx + ix
			wantX, wantY := ix/2, 3-iy/2
			if ix >= 8 {
				wantX, wantY = -1, -1
			}
			if nt.SrcX[i] != wantX || nt.SrcY[i] != wantY {
				t.Errorf("target (%d, %d) -> (%d, %d), want (%d, %d)", ix, iy, nt.SrcX[i], nt.SrcY[i], wantX, wantY)
			}
		}
	}

	// Banded fields keep their leading dimension.
	field := sparse.ZerosDense(2, 4, 4)
	for i := range field.Elements {
		field.Elements[i] = float64(i)
	}
	out, err := nt.Apply(field, -9)
	if err != nil {
		t.Fatal(err)
	}
	if v := out.Get(1, 7, 9); v != -9 {
		t.Errorf("outside cell = %g, want -9", v)
	}
	if v, want := out.Get(1, 0, 0), field.Get(1, 3, 0); v != want {
		t.Errorf("cell = %g, want %g", v, want)
	}
}

func TestNearestShape(t *testing.T) {
	g, err := NewGrid("g", 2, 2, 1, 1, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	nt, err := BuildNearest(RectilinearFromGrid(g), g)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := nt.Apply(sparse.ZerosDense(3, 2), 0); err == nil {
		t.Error("expected a shape error")
	}
}
