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


// Package output writes gridded emission fluxes to NetCDF files.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/emisgrid"
)

// FluxUnits are the units of all output emission variables.
const FluxUnits = "kg m-2 s-1"

// Layer is the gridded emissions of one sector.
type Layer struct {
	Name        string
	Category    string
	Description string
	Codes       []string

	// Flux has shape [nt, ny, nx] and units of kg m-2 s-1.
	Flux *sparse.DenseArray
}

// VarName returns the name of the NetCDF variable holding l.
func (l Layer) VarName() string { return "E_" + strings.ToUpper(l.Name) }

// Writer collects the layers of an emissions file.
type Writer struct {
	grid   *emisgrid.Grid
	steps  []time.Time
	layers []Layer
	names  map[string]bool
}

// NewWriter creates a writer for emissions on grid g at the given
// time steps.
func NewWriter(g *emisgrid.Grid, steps []time.Time) (*Writer, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("output: no time steps")
	}
	return &Writer{grid: g, steps: steps, names: make(map[string]bool)}, nil
}

// Add adds a layer to the file.
func (w *Writer) Add(l Layer) error {
	g := w.grid
	s := l.Flux.Shape
	if len(s) != 3 || s[0] != len(w.steps) || s[1] != g.Ny || s[2] != g.Nx {
		return fmt.Errorf("output: layer %s has shape %v but should be [%d %d %d]: %w",
			l.Name, s, len(w.steps), g.Ny, g.Nx, emisgrid.ErrShape)
	}
	v := l.VarName()
	if w.names[v] {
		return fmt.Errorf("output: duplicate variable %s", v)
	}
	w.names[v] = true
	w.layers = append(w.layers, l)
	return nil
}

// Write writes the file to path. The file is first written to a
// temporary file in the same directory and then renamed, so path never
// holds a partially written file.
func (w *Writer) Write(path string) error {
	g := w.grid
	nt := len(w.steps)
	x, y := cellCenters(g)
	lon, lat, err := g.XYToLonLat(x, y)
	if err != nil {
		return fmt.Errorf("output: %v", err)
	}

	h := cdf.NewHeader(
		[]string{"Time", "south_north", "west_east"},
		[]int{nt, g.Ny, g.Nx})
	h.AddAttribute("", "comment", "Gridded emissions")
	h.AddAttribute("", "grid_name", g.Name)
	h.AddAttribute("", "projection", g.SR.Name)
	h.AddAttribute("", "x0", []float64{g.X0})
	h.AddAttribute("", "y0", []float64{g.Y0})
	h.AddAttribute("", "dx", []float64{g.Dx})
	h.AddAttribute("", "dy", []float64{g.Dy})
	h.AddAttribute("", "nx", []int32{int32(g.Nx)})
	h.AddAttribute("", "ny", []int32{int32(g.Ny)})
	h.AddAttribute("", "start_date", w.steps[0].UTC().Format(time.RFC3339))

	h.AddVariable("time", []string{"Time"}, []float64{0})
	h.AddAttribute("time", "units", "hours since "+w.steps[0].UTC().Format("2006-01-02 15:04:05"))
	h.AddVariable("XLAT", []string{"south_north", "west_east"}, []float32{0})
	h.AddAttribute("XLAT", "description", "latitude of cell centers")
	h.AddAttribute("XLAT", "units", "degrees_north")
	h.AddVariable("XLONG", []string{"south_north", "west_east"}, []float32{0})
	h.AddAttribute("XLONG", "description", "longitude of cell centers")
	h.AddAttribute("XLONG", "units", "degrees_east")
	for _, l := range w.layers {
		v := l.VarName()
		h.AddVariable(v, []string{"Time", "south_north", "west_east"}, []float32{0})
		h.AddAttribute(v, "units", FluxUnits)
		if l.Category != "" {
			h.AddAttribute(v, "category", l.Category)
		}
		if len(l.Codes) > 0 {
			h.AddAttribute(v, "codes", strings.Join(l.Codes, ","))
		}
		if l.Description != "" {
			h.AddAttribute(v, "description", l.Description)
		}
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("output: invalid header: %v", errs)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("output: %v", err)
	}
	defer os.Remove(tmp.Name())
	if err := w.write(tmp, h, lon, lat); err != nil {
		tmp.Close()
		return fmt.Errorf("output: writing %s: %v", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: %v", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("output: %v", err)
	}
	return nil
}

func (w *Writer) write(ff *os.File, h *cdf.Header, lon, lat []float64) error {
	f, err := cdf.Create(ff, h)
	if err != nil {
		return err
	}
	hours := make([]float64, len(w.steps))
	for i, s := range w.steps {
		hours[i] = s.Sub(w.steps[0]).Hours()
	}
	if err := writeVar(f, "time", hours); err != nil {
		return err
	}
	if err := writeVar(f, "XLAT", float32s(lat)); err != nil {
		return err
	}
	if err := writeVar(f, "XLONG", float32s(lon)); err != nil {
		return err
	}
	for _, l := range w.layers {
		if err := writeVar(f, l.VarName(), float32s(l.Flux.Elements)); err != nil {
			return fmt.Errorf("variable %s: %v", l.VarName(), err)
		}
	}
	return cdf.UpdateNumRecs(ff)
}

// writeVar writes all of variable v. The end index is one past the
// last element so that the writer does not report io.EOF on the
// final value.
func writeVar(f *cdf.File, v string, data interface{}) error {
	end := f.Header.Lengths(v)
	start := make([]int, len(end))
	_, err := f.Writer(v, start, end).Write(data)
	return err
}

func float32s(d []float64) []float32 {
	o := make([]float32, len(d))
	for i, v := range d {
		o[i] = float32(v)
	}
	return o
}

// cellCenters returns the projected coordinates of every cell center
// in row-major order.
func cellCenters(g *emisgrid.Grid) (x, y []float64) {
	xc, yc := g.CellCoordsX(), g.CellCoordsY()
	x = make([]float64, 0, g.Nx*g.Ny)
	y = make([]float64, 0, g.Nx*g.Ny)
	for _, yy := range yc {
		for _, xx := range xc {
			x = append(x, xx)
			y = append(y, yy)
		}
	}
	return x, y
}
