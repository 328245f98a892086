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

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestClipArea(t *testing.T) {
	square := []geom.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	diamond := []geom.Point{{X: 1, Y: 0}, {X: 2, Y: 1}, {X: 1, Y: 2}, {X: 0, Y: 1}}
	concave := []geom.Point{{X: 0, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 3}, {X: 2, Y: 3}, {X: 2, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 3}, {X: 0, Y: 3}}
	tests := []struct {
		name string
		ring []geom.Point
		b    box
		want float64
	}{
		{name: "half", ring: square, b: box{minX: 0.5, minY: 0, maxX: 1.5, maxY: 1}, want: 0.5},
		{name: "contained", ring: square, b: box{minX: -1, minY: -1, maxX: 2, maxY: 2}, want: 1},
		{name: "disjoint", ring: square, b: box{minX: 2, minY: 2, maxX: 3, maxY: 3}, want: 0},
		{name: "touching", ring: square, b: box{minX: 1, minY: 0, maxX: 2, maxY: 1}, want: 0},
		{name: "inside", ring: square, b: box{minX: 0.25, minY: 0.25, maxX: 0.75, maxY: 0.5}, want: 0.125},
		{name: "diamond quadrant", ring: diamond, b: box{minX: 0, minY: 0, maxX: 1, maxY: 1}, want: 0.5},
		{name: "diamond center", ring: diamond, b: box{minX: 0.5, minY: 0.5, maxX: 1.5, maxY: 1.5}, want: 1},
		{name: "concave notch", ring: concave, b: box{minX: 0, minY: 2, maxX: 3, maxY: 3}, want: 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			have := clipArea(test.ring, test.b)
			if !scalar.EqualWithinAbs(have, test.want, 1e-12) {
				t.Errorf("area = %g, want %g", have, test.want)
			}
		})
	}
}

func TestClipAreaWinding(t *testing.T) {
	cw := []geom.Point{{X: 0, Y: 0}, {X: 0, Y: 2}, {X: 3, Y: 2}, {X: 3, Y: 0}}
	b := box{minX: -1, minY: -1, maxX: 4, maxY: 4}
	if a := clipArea(cw, b); a != 6 {
		t.Errorf("area = %g, want 6", a)
	}
	if a := clipArea(cw[:2], b); a != 0 {
		t.Errorf("degenerate area = %g, want 0", a)
	}
	b.maxX = 1.5
	if a := clipArea(cw, b); a != 3 {
		t.Errorf("clipped area = %g, want 3", a)
	}
}

func TestPolygonCellIntersection(t *testing.T) {
	g, err := NewGrid("g", 4, 4, 1, 1, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := geom.Polygon{{{X: 0.5, Y: 0.5}, {X: 2.5, Y: 0.5}, {X: 2.5, Y: 1.5}, {X: 0.5, Y: 1.5}, {X: 0.5, Y: 0.5}}}
	cw, err := PolygonCellIntersection(p, g)
	if err != nil {
		t.Fatal(err)
	}
	want := map[[2]int]float64{
		{0, 0}: 0.125, {1, 0}: 0.25, {2, 0}: 0.125,
		{0, 1}: 0.125, {1, 1}: 0.25, {2, 1}: 0.125,
	}
	if len(cw) != len(want) {
		t.Fatalf("have %d cells, want %d: %+v", len(cw), len(want), cw)
	}
	var sum float64
	for _, c := range cw {
		w, ok := want[[2]int{c.IX, c.IY}]
		if !ok {
			t.Errorf("unexpected cell %+v", c)
			continue
		}
		if !scalar.EqualWithinAbs(c.Weight, w, 1e-9) {
			t.Errorf("cell (%d, %d) weight = %g, want %g", c.IX, c.IY, c.Weight, w)
		}
		sum += c.Weight
	}
	if !scalar.EqualWithinAbs(sum, 1, 1e-9) {
		t.Errorf("weights sum to %g, want 1", sum)
	}
}

func TestPolygonCellIntersectionPartial(t *testing.T) {
	g, err := NewGrid("g", 2, 2, 1, 1, 0, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Half of the polygon is west of the grid.
	p := geom.Polygon{{{X: -1, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: -1, Y: 1}, {X: -1, Y: 0}}}
	cw, err := PolygonCellIntersection(p, g)
	if err != nil {
		t.Fatal(err)
	}
	if len(cw) != 1 || cw[0].IX != 0 || cw[0].IY != 0 || !scalar.EqualWithinAbs(cw[0].Weight, 0.5, 1e-9) {
		t.Errorf("have %+v, want [{0 0 0.5}]", cw)
	}

	// Entirely outside.
	p = geom.Polygon{{{X: 10, Y: 10}, {X: 11, Y: 10}, {X: 11, Y: 11}, {X: 10, Y: 11}, {X: 10, Y: 10}}}
	cw, err = PolygonCellIntersection(p, g)
	if err != nil {
		t.Fatal(err)
	}
	if len(cw) != 0 {
		t.Errorf("have %+v, want no cells", cw)
	}
}

func TestPolygonCellIntersectionProjected(t *testing.T) {
	g := lccGrid(t)
	p := geom.Polygon{{{X: -98, Y: 39}, {X: -96, Y: 39}, {X: -96, Y: 41}, {X: -98, Y: 41}, {X: -98, Y: 39}}}
	cw, err := PolygonCellIntersection(p, g)
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, c := range cw {
		sum += c.Weight
	}
	if !scalar.EqualWithinAbs(sum, 1, 1e-6) {
		t.Errorf("weights sum to %g, want 1", sum)
	}
	if len(cw) < 25 {
		t.Errorf("have %d cells; a 2°x2° polygon should cover many 36 km cells", len(cw))
	}
}
