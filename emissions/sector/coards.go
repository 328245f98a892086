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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/emisgrid"
)

// GriddedData holds emissions data read from a gridded input file.
type GriddedData struct {
	// Source is the grid the data are defined on.
	Source *emisgrid.Rectilinear

	// Data has shape [nband, ny, nx]. Missing values are NaN.
	Data *sparse.DenseArray
}

// toFloats converts the output of a cdf reader to float64.
func toFloats(dataI interface{}) ([]float64, error) {
	switch d := dataI.(type) {
	case []float64:
		return d, nil
	case []float32:
		data := make([]float64, len(d))
		for i, v := range d {
			data[i] = float64(v)
		}
		return data, nil
	case []int32:
		data := make([]float64, len(d))
		for i, v := range d {
			data[i] = float64(v)
		}
		return data, nil
	case []int16:
		data := make([]float64, len(d))
		for i, v := range d {
			data[i] = float64(v)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", dataI)
	}
}

// fillValue returns the _FillValue or missing_value attribute of
// variable v, and whether one was found.
func fillValue(nc *cdf.File, v string) (float64, bool, error) {
	for _, a := range []string{"_FillValue", "missing_value"} {
		noDataI := nc.Header.GetAttribute(v, a)
		if noDataI == nil {
			continue
		}
		noData, err := toFloats(noDataI)
		if err != nil || len(noData) == 0 {
			return 0, false, fmt.Errorf("invalid type for COARDS %s: %T", a, noDataI)
		}
		return noData[0], true, nil
	}
	return 0, false, nil
}

// readCOARDSVar reads n values of variable v from a COARDS file,
// starting at begin and ending at end (inclusive). Fill values are
// replaced with NaN.
func readCOARDSVar(nc *cdf.File, v string, begin, end []int, n int) ([]float64, error) {
	r := nc.Reader(v, begin, end)
	if r == nil {
		return nil, fmt.Errorf("variable %s does not exist", v)
	}
	dataI := r.Zero(n)
	if _, err := r.Read(dataI); err != nil {
		return nil, err
	}
	data, err := toFloats(dataI)
	if err != nil {
		return nil, err
	}
	noData, ok, err := fillValue(nc, v)
	if err != nil {
		return nil, err
	}
	if ok {
		for i, d := range data {
			if d == noData {
				data[i] = math.NaN()
			}
		}
	}
	return data, nil
}

// readAxis reads a one-dimensional coordinate variable.
func readAxis(nc *cdf.File, v string) ([]float64, error) {
	l := nc.Header.Lengths(v)
	if len(l) != 1 {
		return nil, fmt.Errorf("coordinate variable %s should have 1 dimension but has %d", v, len(l))
	}
	return readCOARDSVar(nc, v, nil, nil, l[0])
}

// ReadCOARDS reads variable from a COARDS-compliant NetCDF file
// (NetCDF 4 and greater not supported). The variable must have
// dimensions [lat, lon] or [time, lat, lon], and the lat and lon
// coordinate variables must hold the cell centers. Rows are kept in
// the order they are stored in the file. Information regarding the
// COARDS NetCDF conventions is available here:
// https://ferret.pmel.noaa.gov/Ferret/documentation/coards-netcdf-conventions.
func ReadCOARDS(path, variable string) (*GriddedData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sector: opening COARDS file %s: %v", path, err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("sector: opening COARDS file %s: %v", path, err)
	}
	dims := nc.Header.Dimensions(variable)
	if dims == nil {
		return nil, fmt.Errorf("sector: COARDS file %s does not contain variable %s", path, variable)
	}
	switch {
	case len(dims) == 2 && dims[0] == "lat" && dims[1] == "lon":
	case len(dims) == 3 && dims[1] == "lat" && dims[2] == "lon":
	default:
		return nil, fmt.Errorf("sector: variable %s in COARDS file %s has dimensions %v; "+
			"it should be [lat lon] or [time lat lon]", variable, path, dims)
	}

	lons, err := readAxis(nc, "lon")
	if err != nil {
		return nil, fmt.Errorf("sector: reading lon from COARDS file %s: %v", path, err)
	}
	lats, err := readAxis(nc, "lat")
	if err != nil {
		return nil, fmt.Errorf("sector: reading lat from COARDS file %s: %v", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	src, err := emisgrid.NewRectilinearFromCenters(name, lons, lats, nil)
	if err != nil {
		return nil, fmt.Errorf("sector: COARDS file %s: %w", path, err)
	}

	nx, ny := len(lons), len(lats)
	nband := 1
	if len(dims) == 3 {
		nband = nc.Header.Lengths(variable)[0]
		if nc.Header.IsRecordVariable(variable) {
			fi, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("sector: COARDS file %s: %v", path, err)
			}
			nband = int(nc.Header.NumRecs(fi.Size()))
		}
		if nband < 1 {
			return nil, fmt.Errorf("sector: variable %s in COARDS file %s has no time steps", variable, path)
		}
	}
	data := sparse.ZerosDense(nband, ny, nx)
	for b := 0; b < nband; b++ {
		var begin, end []int
		if len(dims) == 3 {
			begin, end = []int{b, 0, 0}, []int{b, ny - 1, nx - 1}
		}
		d, err := readCOARDSVar(nc, variable, begin, end, nx*ny)
		if err != nil {
			return nil, fmt.Errorf("sector: reading variable %s from COARDS file %s: %v", variable, path, err)
		}
		copy(data.Elements[b*nx*ny:(b+1)*nx*ny], d)
	}
	return &GriddedData{Source: src, Data: data}, nil
}
