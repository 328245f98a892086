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
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/spatialmodel/emisgrid"
)

// Footprint is an area source of emissions, such as a facility
// boundary, in longitude-latitude coordinates.
type Footprint struct {
	geom.Polygonal

	// Emissions is the amount emitted from the footprint, in the units
	// of its sector.
	Emissions float64
}

// ReadFootprints reads polygons and their emissions from shapefile
// shpPath, where attr is the attribute holding the emissions. The
// polygons are reprojected from the spatial reference in the .prj file
// to longitude-latitude. Records with empty geometries are skipped.
func ReadFootprints(shpPath, attr string) ([]Footprint, error) {
	d, err := shp.NewDecoder(shpPath)
	if err != nil {
		return nil, fmt.Errorf("sector: opening footprints: %v", err)
	}
	defer d.Close()
	sr, err := d.SR()
	if err != nil {
		return nil, fmt.Errorf("sector: reading footprints projection: %v", err)
	}
	trans, err := emisgrid.NewTransform(sr, emisgrid.LonLat())
	if err != nil {
		return nil, fmt.Errorf("sector: footprints: %v", err)
	}
	var out []Footprint
	for row := 0; ; row++ {
		g, fields, more := d.DecodeRowFields(attr)
		if !more {
			break
		}
		if err := d.Error(); err != nil {
			return nil, fmt.Errorf("sector: reading footprints: %v", err)
		}
		if g == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[attr]), 64)
		if err != nil {
			return nil, fmt.Errorf("sector: footprint %d attribute %s: %v", row, attr, err)
		}
		gg, err := g.Transform(trans)
		if err != nil {
			return nil, fmt.Errorf("sector: footprint %d: %v", row, err)
		}
		p, ok := gg.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("sector: footprint %d is a %T but should be a polygon", row, gg)
		}
		out = append(out, Footprint{Polygonal: p, Emissions: v})
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("sector: reading footprints: %v", err)
	}
	return out, nil
}
