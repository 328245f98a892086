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


package sector

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
)

// writeCOARDS writes a COARDS file with 1° cells centered on lons and
// lats. If data has more than one band, variable "emis" has a time
// record dimension.
func writeCOARDS(t *testing.T, lons, lats []float32, data [][]float32, fill float32) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emis.nc")
	var h *cdf.Header
	if len(data) > 1 {
		h = cdf.NewHeader([]string{"time", "lat", "lon"}, []int{0, len(lats), len(lons)})
		h.AddVariable("emis", []string{"time", "lat", "lon"}, []float32{})
	} else {
		h = cdf.NewHeader([]string{"lat", "lon"}, []int{len(lats), len(lons)})
		h.AddVariable("emis", []string{"lat", "lon"}, []float32{})
	}
	h.AddVariable("lat", []string{"lat"}, []float32{})
	h.AddVariable("lon", []string{"lon"}, []float32{})
	h.AddAttribute("emis", "_FillValue", []float32{fill})
	h.AddAttribute("emis", "units", "kg/m2/s")
	h.AddAttribute("", "title", "test emissions")
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	write := func(v string, begin, end []int, d []float32) {
		if _, err := nc.Writer(v, begin, end).Write(d); err != nil {
			t.Fatal(err)
		}
	}
	// Fixed-size variables are written with the end one past the last
	// element; record variables can be written without an end.
	write("lat", []int{0}, []int{len(lats)}, lats)
	write("lon", []int{0}, []int{len(lons)}, lons)
	if len(data) > 1 {
		for i, d := range data {
			write("emis", []int{i, 0, 0}, nil, d)
		}
	} else {
		write("emis", []int{0, 0}, []int{len(lats), len(lons)}, data[0])
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		t.Fatal(err)
	}
	return path
}

var (
	testLons = []float32{-99.5, -98.5, -97.5, -96.5}
	testLats = []float32{41, 40, 39} // north to south
)

func TestReadCOARDS(t *testing.T) {
	data := [][]float32{
		{
			1, 2, 3, 4,
			5, 6, -999, 8,
			9, 10, 11, 12,
		},
		{
			2, 4, 6, 8,
			10, 12, 14, 16,
			18, 20, 22, 24,
		},
	}
	path := writeCOARDS(t, testLons, testLats, data, -999)
	g, err := ReadCOARDS(path, "emis")
	if err != nil {
		t.Fatal(err)
	}
	if g.Source.Name != "emis" {
		t.Errorf("source name: %s", g.Source.Name)
	}
	if g.Source.Nx() != 4 || g.Source.Ny() != 3 {
		t.Fatalf("source dimensions: %dx%d", g.Source.Nx(), g.Source.Ny())
	}
	wantY := []float64{41.5, 40.5, 39.5, 38.5}
	for i, y := range wantY {
		if g.Source.YEdges[i] != y {
			t.Errorf("y edge %d: have %g, want %g", i, g.Source.YEdges[i], y)
		}
	}
	if s := g.Data.Shape; len(s) != 3 || s[0] != 2 || s[1] != 3 || s[2] != 4 {
		t.Fatalf("shape: %v", s)
	}
	if v := g.Data.Get(0, 1, 2); !math.IsNaN(v) {
		t.Errorf("fill value should be NaN but is %g", v)
	}
	if v := g.Data.Get(0, 2, 3); v != 12 {
		t.Errorf("band 0 value: %g", v)
	}
	if v := g.Data.Get(1, 0, 1); v != 4 {
		t.Errorf("band 1 value: %g", v)
	}
}

func TestReadCOARDSSingleBand(t *testing.T) {
	path := writeCOARDS(t, testLons, testLats, [][]float32{make([]float32, 12)}, -1)
	g, err := ReadCOARDS(path, "emis")
	if err != nil {
		t.Fatal(err)
	}
	if s := g.Data.Shape; s[0] != 1 {
		t.Errorf("shape: %v", s)
	}
}

func TestReadCOARDSErrors(t *testing.T) {
	path := writeCOARDS(t, testLons, testLats, [][]float32{make([]float32, 12)}, -1)
	if _, err := ReadCOARDS(path, "missing"); err == nil {
		t.Error("expected an error for a missing variable")
	}
	if _, err := ReadCOARDS(path, "lat"); err == nil {
		t.Error("expected an error for a variable with the wrong dimensions")
	}
	if _, err := ReadCOARDS(filepath.Join(t.TempDir(), "none.nc"), "emis"); err == nil {
		t.Error("expected an error for a missing file")
	}
}
