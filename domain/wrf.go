/*
Copyright © 2017 the InMAP authors.
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

// Package domain provides the target grids that emissions are regridded
// onto, either from explicit parameters or from WRF/WPS namelists.
package domain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/spatialmodel/emisgrid"
)

// WRFConfig holds the domain information in a set of WRF namelists.
type WRFConfig struct {
	MaxDom          int
	ParentID        []int
	ParentGridRatio []float64
	IParentStart    []int
	JParentStart    []int
	EWE             []int
	ESN             []int
	Dx0             float64
	Dy0             float64
	MapProj         string
	RefLat          float64
	RefLon          float64
	TrueLat1        float64
	TrueLat2        float64
	StandLon        float64
	RefX            float64
	RefY            float64

	// S, W, Dx, Dy, Nx, and Ny are the south and west edges, cell sizes
	// and dimensions of each nest, in projected units.
	S, W        []float64
	Dx, Dy      []float64
	Nx, Ny      []int
	DomainNames []string

	sr *proj.SR
}

// ParseWRFConfig extracts domain information from a WPS namelist and,
// optionally, a WRF namelist. If wrfnamelist is not empty, its domain
// settings are checked against the WPS namelist.
func ParseWRFConfig(wpsnamelist, wrfnamelist string) (*WRFConfig, error) {
	e := new(errCat)
	d := &WRFConfig{StandLon: math.NaN()}
	f, err := os.Open(wpsnamelist)
	if err != nil {
		return nil, fmt.Errorf("domain: %v", err)
	}
	d.parseWPS(f, e)
	f.Close()
	if wrfnamelist != "" {
		f, err := os.Open(wrfnamelist)
		if err != nil {
			return nil, fmt.Errorf("domain: %v", err)
		}
		d.parseWRF(f, e)
		f.Close()
	}
	if err := e.err(); err != nil {
		return nil, err
	}
	d.nests(e)
	if err := e.err(); err != nil {
		return nil, err
	}
	return d, nil
}

// SR returns the spatial reference of the WRF domain.
func (d *WRFConfig) SR() *proj.SR { return d.sr }

// Grids creates grid definitions for all of the nests in the configuration.
func (d *WRFConfig) Grids() ([]*emisgrid.Grid, error) {
	grids := make([]*emisgrid.Grid, d.MaxDom)
	for i := range grids {
		var err error
		if grids[i], err = d.Grid(i); err != nil {
			return nil, err
		}
	}
	return grids, nil
}

// Grid creates the grid definition for nest i, where 0 is the
// outermost domain.
func (d *WRFConfig) Grid(i int) (*emisgrid.Grid, error) {
	if i < 0 || i >= d.MaxDom {
		return nil, fmt.Errorf("domain: nest %d does not exist; max_dom is %d", i+1, d.MaxDom)
	}
	return emisgrid.NewGrid(d.DomainNames[i], d.Nx[i], d.Ny[i],
		d.Dx[i], d.Dy[i], d.W[i], d.S[i], d.sr)
}

// projection calculates the spatial projection of the domain and the
// projected coordinates of the reference point.
func (d *WRFConfig) projection(e *errCat) (xRef, yRef float64) {
	var mapProj string
	switch d.MapProj {
	case "lambert":
		mapProj = "lcc"
	case "lat-lon":
		mapProj = "longlat"
	case "merc", "mercator":
		mapProj = "merc"
	default:
		e.Add(fmt.Errorf("domain: `lambert', `lat-lon', and `mercator' "+
			"are the only map projections that are currently supported "+
			"(your projection is `%v')", d.MapProj))
		return
	}
	d.sr = proj.NewSR()
	d.sr.Name = mapProj
	// Angles in proj.SR are in radians.
	const deg2rad = math.Pi / 180
	d.sr.Lat1 = d.TrueLat1 * deg2rad
	d.sr.Lat2 = d.TrueLat2 * deg2rad
	d.sr.Lat0 = d.RefLat * deg2rad
	d.sr.Long0 = d.RefLon * deg2rad
	if !math.IsNaN(d.StandLon) {
		d.sr.Long0 = d.StandLon * deg2rad
	}
	if mapProj == "merc" {
		d.sr.Lat0 = 0
		d.sr.LatTS = d.TrueLat1 * deg2rad
	}
	d.sr.A = emisgrid.EarthRadius
	d.sr.B = emisgrid.EarthRadius
	d.sr.ToMeter = 1.
	d.sr.DeriveConstants()
	if mapProj == "longlat" {
		return d.RefLon, d.RefLat
	}
	t, err := emisgrid.NewTransform(emisgrid.LonLat(), d.sr)
	if err != nil {
		e.Add(fmt.Errorf("domain: %v", err))
		return
	}
	xRef, yRef, err = t(d.RefLon, d.RefLat)
	if err != nil {
		e.Add(fmt.Errorf("domain: projecting reference point: %v", err))
	}
	return
}

// nests calculates the location and size of each nest.
func (d *WRFConfig) nests(e *errCat) {
	if d.MaxDom < 1 {
		e.Add(fmt.Errorf("domain: max_dom=%d but should be >0", d.MaxDom))
		return
	}
	for name, n := range map[string]int{
		"parent_id": len(d.ParentID), "parent_grid_ratio": len(d.ParentGridRatio),
		"i_parent_start": len(d.IParentStart), "j_parent_start": len(d.JParentStart),
		"e_we": len(d.EWE), "e_sn": len(d.ESN),
	} {
		if n < d.MaxDom {
			e.Add(fmt.Errorf("domain: %s has %d values but max_dom is %d", name, n, d.MaxDom))
		}
	}
	if e.str != "" {
		return
	}
	if math.IsNaN(d.RefX) {
		d.RefX = float64(d.EWE[0]) / 2.
	}
	if math.IsNaN(d.RefY) {
		d.RefY = float64(d.ESN[0]) / 2.
	}
	xRef, yRef := d.projection(e)
	d.S = make([]float64, d.MaxDom)
	d.W = make([]float64, d.MaxDom)
	d.S[0] = yRef - (d.RefY-0.5)*d.Dy0
	d.W[0] = xRef - (d.RefX-0.5)*d.Dx0
	d.Dx = make([]float64, d.MaxDom)
	d.Dy = make([]float64, d.MaxDom)
	d.Dx[0] = d.Dx0
	d.Dy[0] = d.Dy0
	d.Nx = make([]int, d.MaxDom)
	d.Ny = make([]int, d.MaxDom)
	d.DomainNames = make([]string, d.MaxDom)
	for i := 0; i < d.MaxDom; i++ {
		d.DomainNames[i] = fmt.Sprintf("d%02v", i+1)
		d.Nx[i] = d.EWE[i] - 1
		d.Ny[i] = d.ESN[i] - 1
		if i == 0 {
			continue
		}
		parentID := d.ParentID[i] - 1
		if parentID < 0 || parentID >= i {
			e.Add(fmt.Errorf("domain: nest %d has invalid parent_id %d", i+1, d.ParentID[i]))
			continue
		}
		if !(d.ParentGridRatio[i] > 0) {
			e.Add(fmt.Errorf("domain: nest %d has invalid parent_grid_ratio %g", i+1, d.ParentGridRatio[i]))
			continue
		}
		d.S[i] = d.S[parentID] +
			float64(d.JParentStart[i]-1)*d.Dy[parentID]
		d.W[i] = d.W[parentID] +
			float64(d.IParentStart[i]-1)*d.Dx[parentID]
		d.Dx[i] = d.Dx[parentID] /
			d.ParentGridRatio[i]
		d.Dy[i] = d.Dy[parentID] /
			d.ParentGridRatio[i]
	}
}

// namelistEntries calls f with the name and value of every
// assignment in a Fortran namelist.
func namelistEntries(r io.Reader, e *errCat, f func(name, val string)) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		if i := strings.Index(line, "!"); i != -1 {
			line = line[:i]
		}
		i := strings.Index(line, "=")
		if i == -1 {
			continue
		}
		name := strings.ToLower(strings.Trim(line[:i], " \t,"))
		val := strings.Trim(line[i+1:], " \t,\r")
		f(name, val)
	}
	if err := s.Err(); err != nil {
		e.Add(fmt.Errorf("domain: reading namelist: %v", err))
	}
}

// parseWPS parses a WPS namelist.
func (d *WRFConfig) parseWPS(r io.Reader, e *errCat) {
	d.RefX, d.RefY = math.NaN(), math.NaN()
	p := namelistParser{e: e}
	namelistEntries(r, e, func(name, val string) {
		switch name {
		case "max_dom":
			d.MaxDom = p.int(name, val)
		case "map_proj":
			d.MapProj = strings.Trim(val, " '\"")
		case "ref_lat":
			d.RefLat = p.float(name, val)
		case "ref_lon":
			d.RefLon = p.float(name, val)
		case "truelat1":
			d.TrueLat1 = p.float(name, val)
		case "truelat2":
			d.TrueLat2 = p.float(name, val)
		case "stand_lon":
			d.StandLon = p.float(name, val)
		case "ref_x":
			d.RefX = p.float(name, val)
		case "ref_y":
			d.RefY = p.float(name, val)
		case "parent_id":
			d.ParentID = p.intList(name, val)
		case "parent_grid_ratio":
			d.ParentGridRatio = p.floatList(name, val)
		case "i_parent_start":
			d.IParentStart = p.intList(name, val)
		case "j_parent_start":
			d.JParentStart = p.intList(name, val)
		case "e_we":
			d.EWE = p.intList(name, val)
		case "e_sn":
			d.ESN = p.intList(name, val)
		case "dx":
			d.Dx0 = p.float(name, val)
		case "dy":
			d.Dy0 = p.float(name, val)
		}
	})
}

// parseWRF checks the domain settings in a WRF namelist against
// those already read from the WPS namelist.
func (d *WRFConfig) parseWRF(r io.Reader, e *errCat) {
	p := namelistParser{e: e}
	namelistEntries(r, e, func(name, val string) {
		switch name {
		case "max_dom":
			e.compare(d.MaxDom, p.int(name, val), name)
		case "parent_id":
			e.compare(d.ParentID, p.intList(name, val), name)
		case "parent_grid_ratio":
			e.compare(d.ParentGridRatio, p.floatList(name, val), name)
		case "i_parent_start":
			e.compare(d.IParentStart, p.intList(name, val), name)
		case "j_parent_start":
			e.compare(d.JParentStart, p.intList(name, val), name)
		case "e_we":
			e.compare(d.EWE, p.intList(name, val), name)
		case "e_sn":
			e.compare(d.ESN, p.intList(name, val), name)
		case "dx":
			if v := p.floatList(name, val); len(v) > 0 {
				e.compare(d.Dx0, v[0], name)
			}
		case "dy":
			if v := p.floatList(name, val); len(v) > 0 {
				e.compare(d.Dy0, v[0], name)
			}
		}
	})
}

type namelistParser struct {
	e *errCat
}

func (p namelistParser) int(name, str string) int {
	out, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		p.e.Add(fmt.Errorf("domain: namelist variable %s: %v", name, err))
	}
	return out
}

func (p namelistParser) intList(name, str string) []int {
	var out []int
	for _, ival := range strings.Split(str, ",") {
		if strings.TrimSpace(ival) == "" {
			continue
		}
		out = append(out, p.int(name, ival))
	}
	return out
}

func (p namelistParser) float(name, str string) float64 {
	s := strings.Replace(strings.ToLower(strings.TrimSpace(str)), "d", "e", 1)
	out, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.e.Add(fmt.Errorf("domain: namelist variable %s: %v", name, err))
	}
	return out
}

func (p namelistParser) floatList(name, str string) []float64 {
	var out []float64
	for _, ival := range strings.Split(str, ",") {
		if strings.TrimSpace(ival) == "" {
			continue
		}
		out = append(out, p.float(name, ival))
	}
	return out
}

// errCat collects errors so that all problems in a configuration
// can be reported at once, instead of just the first one.
type errCat struct {
	str string
}

func (e *errCat) Add(err error) {
	if err != nil && !strings.Contains(e.str, err.Error()) {
		e.str += err.Error() + "\n"
	}
}

func (e *errCat) err() error {
	if e.str != "" {
		return errors.New(strings.TrimSuffix(e.str, "\n"))
	}
	return nil
}

func (e *errCat) compare(val1, val2 interface{}, name string) {
	errFlag := false
	switch v1 := val1.(type) {
	case int:
		errFlag = v1 != val2.(int)
	case float64:
		errFlag = floatcompare(v1, val2.(float64))
	case []int:
		v2 := val2.([]int)
		for i := 0; i < len(v1) && i < len(v2); i++ {
			if v1[i] != v2[i] {
				errFlag = true
				break
			}
		}
	case []float64:
		v2 := val2.([]float64)
		for i := 0; i < len(v1) && i < len(v2); i++ {
			if floatcompare(v1[i], v2[i]) {
				errFlag = true
				break
			}
		}
	}
	if errFlag {
		e.Add(fmt.Errorf("domain: WRF variable mismatch for %v, WPS namelist=%v; "+
			"WRF namelist=%v", name, val1, val2))
	}
}

func floatcompare(val1, val2 float64) bool {
	return math.Abs((val1-val2)/val2) > 1.e-8
}
