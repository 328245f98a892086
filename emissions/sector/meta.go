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


// Package sector reads emissions sectors from gridded, point, polygon,
// and raster inputs and maps them onto a target grid as emission fluxes.
package sector

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/emisgrid"
)

// Category is the kind of input data a sector is read from.
type Category string

const (
	// Gridded sectors are read from COARDS NetCDF files.
	Gridded Category = "gridded"

	// Point sectors are read from CSV files of facility locations.
	Point Category = "point"

	// Polygon sectors are read from shapefiles of facility footprints.
	Polygon Category = "polygon"

	// RasterProxy sectors are read from Esri ASCII grids.
	RasterProxy Category = "raster"
)

// Regridding methods for gridded sectors.
const (
	Conservative = "conservative"
	Nearest      = "nearest"
)

// SectorMeta describes an emissions sector and where its data come from.
type SectorMeta struct {
	// Name is the sector name. It is used in output variable names,
	// so it may only contain letters, numbers, and underscores.
	Name string

	Category    Category
	Description string

	// File is the path to the input data.
	File string

	// Variable is the emissions variable in a gridded input file.
	Variable string

	// Units are the units of the input data, for example "tons/year"
	// or "kg/m2/s".
	Units string

	// Codes are the source classification codes the sector represents.
	Codes []string

	// Regrid is the regridding method for gridded sectors, either
	// "conservative" (the default) or "nearest".
	Regrid string

	// Aggregation is how raster pixels are combined in each grid cell,
	// either "sum" (the default) or "mean".
	Aggregation string

	// Total, if non-zero, is the total emissions of a raster sector in
	// Units. The raster is then used as a spatial proxy to apportion it.
	Total float64

	// Attribute is the shapefile attribute holding the emissions of
	// each footprint in a polygon sector.
	Attribute string

	units       Units
	aggregation emisgrid.Aggregation
}

var validName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// NewSectorMeta checks m and returns a validated copy of it.
func NewSectorMeta(m SectorMeta) (*SectorMeta, error) {
	if !validName.MatchString(m.Name) {
		return nil, fmt.Errorf("sector: invalid sector name '%s'; names must start with a letter and "+
			"contain only letters, numbers, and underscores", m.Name)
	}
	m.Category = Category(strings.ToLower(string(m.Category)))
	if m.File == "" {
		return nil, fmt.Errorf("sector %s: File must be specified", m.Name)
	}
	var err error
	if m.units, err = ParseUnits(m.Units); err != nil {
		return nil, fmt.Errorf("sector %s: %v", m.Name, err)
	}
	switch m.Category {
	case Gridded:
		if m.Variable == "" {
			return nil, fmt.Errorf("sector %s: Variable must be specified for gridded sectors", m.Name)
		}
		m.Regrid = strings.ToLower(m.Regrid)
		switch m.Regrid {
		case "":
			m.Regrid = Conservative
		case Conservative, Nearest:
		default:
			return nil, fmt.Errorf("sector %s: invalid Regrid '%s'; valid options are %s and %s",
				m.Name, m.Regrid, Conservative, Nearest)
		}
	case Point:
		if m.units.PerArea() {
			return nil, fmt.Errorf("sector %s: point sector units '%s' should not be per area", m.Name, m.Units)
		}
	case Polygon:
		if m.Attribute == "" {
			return nil, fmt.Errorf("sector %s: Attribute must be specified for polygon sectors", m.Name)
		}
		if m.units.PerArea() {
			return nil, fmt.Errorf("sector %s: polygon sector units '%s' should not be per area", m.Name, m.Units)
		}
	case RasterProxy:
		if m.aggregation, err = emisgrid.ParseAggregation(m.Aggregation); err != nil {
			return nil, fmt.Errorf("sector %s: %w", m.Name, err)
		}
		m.Aggregation = m.aggregation.String()
		switch {
		case m.Total < 0:
			return nil, fmt.Errorf("sector %s: Total=%g but should be >=0", m.Name, m.Total)
		case m.Total > 0 && m.units.PerArea():
			return nil, fmt.Errorf("sector %s: units '%s' of Total should not be per area", m.Name, m.Units)
		case m.Total == 0 && m.aggregation == emisgrid.Sum && m.units.PerArea():
			return nil, fmt.Errorf("sector %s: summed raster units '%s' should not be per area", m.Name, m.Units)
		case m.Total == 0 && m.aggregation == emisgrid.Mean && !m.units.PerArea():
			return nil, fmt.Errorf("sector %s: averaged raster units '%s' should be per area", m.Name, m.Units)
		}
	default:
		return nil, fmt.Errorf("sector %s: invalid Category '%s'; valid options are %s, %s, %s, and %s",
			m.Name, m.Category, Gridded, Point, Polygon, RasterProxy)
	}
	return &m, nil
}

// ParsedUnits returns the parsed input units of the sector.
func (m *SectorMeta) ParsedUnits() Units { return m.units }

// sectorFile is the layout of a sector definition file.
type sectorFile struct {
	Sector []SectorMeta
}

// ReadSectors reads sector definitions from a TOML file containing a
// [[Sector]] table array. Environment variables in file paths are
// expanded, and relative paths are interpreted relative to dir.
func ReadSectors(r io.Reader, dir string) ([]*SectorMeta, error) {
	var f sectorFile
	md, err := toml.DecodeReader(r, &f)
	if err != nil {
		return nil, fmt.Errorf("sector: reading sector definitions: %v", err)
	}
	if u := md.Undecoded(); len(u) > 0 {
		return nil, fmt.Errorf("sector: unknown sector fields %v", u)
	}
	if len(f.Sector) == 0 {
		return nil, fmt.Errorf("sector: no sectors are defined")
	}
	names := make(map[string]bool)
	out := make([]*SectorMeta, len(f.Sector))
	for i, s := range f.Sector {
		s.File = os.ExpandEnv(s.File)
		if s.File != "" && !filepath.IsAbs(s.File) {
			s.File = filepath.Join(dir, s.File)
		}
		m, err := NewSectorMeta(s)
		if err != nil {
			return nil, err
		}
		if names[strings.ToUpper(m.Name)] {
			return nil, fmt.Errorf("sector: duplicate sector name %s", m.Name)
		}
		names[strings.ToUpper(m.Name)] = true
		out[i] = m
	}
	return out, nil
}

// ReadSectorFile reads sector definitions from the TOML file at path.
func ReadSectorFile(path string) ([]*SectorMeta, error) {
	path = os.ExpandEnv(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sector: %v", err)
	}
	defer f.Close()
	return ReadSectors(f, filepath.Dir(path))
}
