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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Facility is a point source of emissions.
type Facility struct {
	Name     string
	Lon, Lat float64

	// Emissions is the amount emitted by the facility, in the units
	// of its sector.
	Emissions float64
}

// ReadFacilitiesCSV reads facilities from a CSV file with a header row
// containing name, lon, lat, and emissions columns. Column names are
// not case sensitive and other columns are ignored.
func ReadFacilitiesCSV(r io.Reader) ([]Facility, error) {
	c := csv.NewReader(r)
	c.TrimLeadingSpace = true
	header, err := c.Read()
	if err != nil {
		return nil, fmt.Errorf("sector: reading facilities header: %v", err)
	}
	cols := map[string]int{"name": -1, "lon": -1, "lat": -1, "emissions": -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, ok := cols[h]; ok {
			cols[h] = i
		}
	}
	for _, k := range []string{"name", "lon", "lat", "emissions"} {
		if cols[k] < 0 {
			return nil, fmt.Errorf("sector: facilities file is missing column '%s'", k)
		}
	}
	var out []Facility
	line := 1
	for {
		rec, err := c.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("sector: reading facilities: %v", err)
		}
		f := Facility{Name: strings.TrimSpace(rec[cols["name"]])}
		for _, v := range []struct {
			col string
			val *float64
		}{{"lon", &f.Lon}, {"lat", &f.Lat}, {"emissions", &f.Emissions}} {
			if *v.val, err = strconv.ParseFloat(strings.TrimSpace(rec[cols[v.col]]), 64); err != nil {
				return nil, fmt.Errorf("sector: facilities line %d: %s: %v", line, v.col, err)
			}
		}
		if math.Abs(f.Lat) > 90 || math.Abs(f.Lon) > 360 {
			return nil, fmt.Errorf("sector: facilities line %d: location (%g, %g) is not valid longitude-latitude",
				line, f.Lon, f.Lat)
		}
		out = append(out, f)
	}
	return out, nil
}
