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
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/spatialmodel/emisgrid"
)

// ReadASCIIGrid reads a raster in Esri ASCII grid format. The returned
// raster has no spatial reference; pixels equal to NODATA_value, if
// present, are set to NaN.
func ReadASCIIGrid(r io.Reader) (*emisgrid.Raster, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	s.Split(bufio.ScanWords)

	header := make(map[string]float64)
	var first string
	for s.Scan() {
		key := strings.ToLower(s.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !s.Scan() {
			return nil, fmt.Errorf("sector: ASCII grid header %s has no value", key)
		}
		v, err := strconv.ParseFloat(s.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("sector: ASCII grid header %s: %v", key, err)
		}
		header[key] = v
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("sector: reading ASCII grid: %v", err)
	}

	for _, k := range []string{"ncols", "nrows"} {
		if _, ok := header[k]; !ok {
			return nil, fmt.Errorf("sector: ASCII grid header is missing %s", k)
		}
	}
	nx, ny := int(header["ncols"]), int(header["nrows"])
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("sector: ASCII grid dimensions %dx%d should be >0", nx, ny)
	}
	dx, okx := header["dx"]
	dy, oky := header["dy"]
	if cs, ok := header["cellsize"]; ok {
		dx, dy, okx, oky = cs, cs, true, true
	}
	if !okx || !oky || !(dx > 0) || !(dy > 0) {
		return nil, fmt.Errorf("sector: ASCII grid cell size is missing or invalid")
	}

	// The origin is converted to the upper left corner.
	var x0, y0 float64
	if v, ok := header["xllcorner"]; ok {
		x0 = v
	} else if v, ok := header["xllcenter"]; ok {
		x0 = v - dx/2
	} else {
		return nil, fmt.Errorf("sector: ASCII grid header is missing xllcorner or xllcenter")
	}
	if v, ok := header["yllcorner"]; ok {
		y0 = v + float64(ny)*dy
	} else if v, ok := header["yllcenter"]; ok {
		y0 = v - dy/2 + float64(ny)*dy
	} else {
		return nil, fmt.Errorf("sector: ASCII grid header is missing yllcorner or yllcenter")
	}

	rast := &emisgrid.Raster{
		Nx: nx, Ny: ny,
		X0: x0, Y0: y0,
		Dx: dx, Dy: -dy,
		Anchor: emisgrid.PixelCorner,
		Data:   make([]float64, 0, nx*ny),
	}
	noData, hasNoData := header["nodata_value"]
	add := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("sector: ASCII grid value %d: %v", len(rast.Data), err)
		}
		if hasNoData && v == noData {
			v = math.NaN()
		}
		rast.Data = append(rast.Data, v)
		return nil
	}
	if first != "" {
		if err := add(first); err != nil {
			return nil, err
		}
	}
	for s.Scan() {
		if len(rast.Data) == nx*ny {
			return nil, fmt.Errorf("sector: ASCII grid has more than %d values", nx*ny)
		}
		if err := add(s.Text()); err != nil {
			return nil, err
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("sector: reading ASCII grid: %v", err)
	}
	if len(rast.Data) != nx*ny {
		return nil, fmt.Errorf("sector: ASCII grid has %d values but should have %d", len(rast.Data), nx*ny)
	}
	return rast, nil
}

// ReadASCIIGridFile reads an Esri ASCII grid from path. If a .prj file
// with the same base name exists, it is used as the spatial reference
// of the raster; otherwise the raster is assumed to be in
// longitude-latitude coordinates.
func ReadASCIIGridFile(path string) (*emisgrid.Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sector: %v", err)
	}
	defer f.Close()
	r, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("%v (file %s)", err, path)
	}
	prj := strings.TrimSuffix(path, ".asc") + ".prj"
	b, err := os.ReadFile(prj)
	if os.IsNotExist(err) {
		return r, nil
	} else if err != nil {
		return nil, fmt.Errorf("sector: %v", err)
	}
	if r.SR, err = proj.Parse(strings.TrimSpace(string(b))); err != nil {
		return nil, fmt.Errorf("sector: parsing projection %s: %v", prj, err)
	}
	return r, nil
}
