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


package output

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/emisgrid"
)

func testGrid(t *testing.T) *emisgrid.Grid {
	g, err := emisgrid.NewGrid("test", 3, 2, 1, 1, -100, 40, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func testSteps() []time.Time {
	start := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)
	return []time.Time{start, start.Add(time.Hour), start.Add(3 * time.Hour)}
}

func TestWriter(t *testing.T) {
	g := testGrid(t)
	w, err := NewWriter(g, testSteps())
	if err != nil {
		t.Fatal(err)
	}
	flux := sparse.ZerosDense(3, 2, 3)
	for i := range flux.Elements {
		flux.Elements[i] = float64(i)
	}
	if err := w.Add(Layer{Name: "Power", Category: "point", Description: "power plants",
		Codes: []string{"0101", "0102"}, Flux: flux}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "emis.nc")
	if err := w.Write(path); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if dims := nc.Header.Dimensions("E_POWER"); len(dims) != 3 || dims[0] != "Time" || dims[2] != "west_east" {
		t.Errorf("dimensions: %v", dims)
	}
	if u := nc.Header.GetAttribute("E_POWER", "units"); u != FluxUnits {
		t.Errorf("units: %v", u)
	}
	if c := nc.Header.GetAttribute("E_POWER", "codes"); c != "0101,0102" {
		t.Errorf("codes: %v", c)
	}

	r := nc.Reader("E_POWER", nil, nil)
	data := r.Zero(18).([]float32)
	if _, err := r.Read(data); err != nil {
		t.Fatal(err)
	}
	for i, v := range data {
		if v != float32(i) {
			t.Errorf("E_POWER[%d] = %g", i, v)
		}
	}

	r = nc.Reader("time", nil, nil)
	hours := r.Zero(3).([]float64)
	if _, err := r.Read(hours); err != nil {
		t.Fatal(err)
	}
	if hours[0] != 0 || hours[1] != 1 || hours[2] != 3 {
		t.Errorf("time: %v", hours)
	}

	r = nc.Reader("XLAT", nil, nil)
	lat := r.Zero(6).([]float32)
	if _, err := r.Read(lat); err != nil {
		t.Fatal(err)
	}
	if lat[0] != 40.5 || lat[5] != 41.5 {
		t.Errorf("XLAT: %v", lat)
	}
	r = nc.Reader("XLONG", nil, nil)
	lon := r.Zero(6).([]float32)
	if _, err := r.Read(lon); err != nil {
		t.Fatal(err)
	}
	if lon[0] != -99.5 || lon[2] != -97.5 {
		t.Errorf("XLONG: %v", lon)
	}

	files, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("temporary files were left behind: %v", files)
	}
}

func TestWriterErrors(t *testing.T) {
	g := testGrid(t)
	if _, err := NewWriter(g, nil); err == nil {
		t.Error("expected an error for no time steps")
	}
	w, err := NewWriter(g, testSteps())
	if err != nil {
		t.Fatal(err)
	}
	err = w.Add(Layer{Name: "bad", Flux: sparse.ZerosDense(2, 2, 3)})
	if !errors.Is(err, emisgrid.ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
	if err := w.Add(Layer{Name: "a", Flux: sparse.ZerosDense(3, 2, 3)}); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(Layer{Name: "A", Flux: sparse.ZerosDense(3, 2, 3)}); err == nil {
		t.Error("expected an error for a duplicate layer")
	}
	if err := w.Write(filepath.Join(t.TempDir(), "missing", "emis.nc")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

// A file with fixed-size variables must be writable to the last
// element of every variable.
func TestWriterProjectedSingleStep(t *testing.T) {
	sr, err := proj.Parse("+proj=lcc +lat_1=33.000000 +lat_2=45.000000 +lat_0=40.000000 +lon_0=-97.000000 +x_0=0 +y_0=0 +a=6370997.000000 +b=6370997.000000 +to_meter=1")
	if err != nil {
		t.Fatal(err)
	}
	g, err := emisgrid.NewGrid("lcc", 2, 2, 12000, 12000, -12000, -12000, sr)
	if err != nil {
		t.Fatal(err)
	}
	steps := testSteps()[:1]
	w, err := NewWriter(g, steps)
	if err != nil {
		t.Fatal(err)
	}
	flux := sparse.ZerosDense(1, 2, 2)
	flux.Elements = []float64{1, 2, 3, 4}
	if err := w.Add(Layer{Name: "nox", Flux: flux}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "emis.nc")
	if err := w.Write(path); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if p := nc.Header.GetAttribute("", "projection"); p != "lcc" {
		t.Errorf("projection: %v", p)
	}
	if c := nc.Header.GetAttribute("E_NOX", "codes"); c != nil {
		t.Errorf("codes should not be set, got %v", c)
	}
	r := nc.Reader("E_NOX", nil, nil)
	data := r.Zero(4).([]float32)
	if _, err := r.Read(data); err != nil {
		t.Fatal(err)
	}
	for i, v := range data {
		if v != float32(i+1) {
			t.Errorf("E_NOX[%d] = %g", i, v)
		}
	}
	r = nc.Reader("XLONG", nil, nil)
	lon := r.Zero(4).([]float32)
	if _, err := r.Read(lon); err != nil {
		t.Fatal(err)
	}
	if !(lon[0] < -97 && lon[1] > -97) {
		t.Errorf("XLONG should straddle the central meridian: %v", lon)
	}
}
