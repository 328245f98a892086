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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/spatialmodel/emisgrid"
)

const sectorsTOML = `
[[Sector]]
Name = "agriculture"
Category = "Gridded"
Description = "Agricultural NH3"
File = "ag.nc"
Variable = "NH3"
Units = "kg/m2/s"
Codes = ["2801000000"]

[[Sector]]
Name = "power"
Category = "point"
File = "$SECTOR_TEST_DIR/power.csv"
Units = "tons/year"

[[Sector]]
Name = "population_proxy"
Category = "raster"
File = "/data/pop.asc"
Units = "tons/year"
Total = 1000.0
Aggregation = "Sum"
`

func TestReadSectors(t *testing.T) {
	os.Setenv("SECTOR_TEST_DIR", "/abs")
	defer os.Unsetenv("SECTOR_TEST_DIR")
	sectors, err := ReadSectors(strings.NewReader(sectorsTOML), "/inputs")
	if err != nil {
		t.Fatal(err)
	}
	if len(sectors) != 3 {
		t.Fatalf("got %d sectors", len(sectors))
	}
	ag := sectors[0]
	want := SectorMeta{
		Name:        "agriculture",
		Category:    Gridded,
		Description: "Agricultural NH3",
		File:        filepath.Join("/inputs", "ag.nc"),
		Variable:    "NH3",
		Units:       "kg/m2/s",
		Codes:       []string{"2801000000"},
		Regrid:      Conservative,
	}
	have := *ag
	have.units = Units{}
	if diff := pretty.Diff(have, want); len(diff) > 0 {
		t.Errorf("agriculture sector: %v", diff)
	}
	if !ag.ParsedUnits().PerArea() {
		t.Error("agriculture units should be per area")
	}
	if sectors[1].File != "/abs/power.csv" {
		t.Errorf("expanded path: %s", sectors[1].File)
	}
	if sectors[2].Aggregation != "sum" || sectors[2].aggregation != emisgrid.Sum {
		t.Errorf("aggregation: %s", sectors[2].Aggregation)
	}
}

func TestReadSectorsErrors(t *testing.T) {
	tests := []struct {
		name, toml, want string
	}{
		{name: "empty", toml: "", want: "no sectors"},
		{name: "unknown field", toml: "[[Sector]]\nName=\"a\"\nColor=\"red\"", want: "unknown"},
		{name: "duplicate", toml: `
[[Sector]]
Name = "a"
Category = "point"
File = "a.csv"
Units = "kg/s"
[[Sector]]
Name = "A"
Category = "point"
File = "b.csv"
Units = "kg/s"`, want: "duplicate"},
		{name: "syntax", toml: "[[Sector]\n", want: "reading sector definitions"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ReadSectors(strings.NewReader(test.toml), "")
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("expected error containing %q, got %v", test.want, err)
			}
		})
	}
}

func TestNewSectorMeta(t *testing.T) {
	base := func() SectorMeta {
		return SectorMeta{Name: "s", File: "f", Units: "kg/year"}
	}
	tests := []struct {
		name   string
		modify func(*SectorMeta)
		ok     bool
	}{
		{name: "gridded", modify: func(m *SectorMeta) { m.Category = Gridded; m.Variable = "v" }, ok: true},
		{name: "gridded nearest", modify: func(m *SectorMeta) { m.Category = Gridded; m.Variable = "v"; m.Regrid = "Nearest" }, ok: true},
		{name: "gridded no variable", modify: func(m *SectorMeta) { m.Category = Gridded }},
		{name: "gridded bad regrid", modify: func(m *SectorMeta) { m.Category = Gridded; m.Variable = "v"; m.Regrid = "bilinear" }},
		{name: "point", modify: func(m *SectorMeta) { m.Category = Point }, ok: true},
		{name: "point per area", modify: func(m *SectorMeta) { m.Category = Point; m.Units = "kg/m2/s" }},
		{name: "polygon", modify: func(m *SectorMeta) { m.Category = Polygon; m.Attribute = "EMIS" }, ok: true},
		{name: "polygon no attribute", modify: func(m *SectorMeta) { m.Category = Polygon }},
		{name: "raster sum", modify: func(m *SectorMeta) { m.Category = RasterProxy }, ok: true},
		{name: "raster mean", modify: func(m *SectorMeta) { m.Category = RasterProxy; m.Aggregation = "mean"; m.Units = "kg/m2/s" }, ok: true},
		{name: "raster mean total", modify: func(m *SectorMeta) { m.Category = RasterProxy; m.Aggregation = "mean" }},
		{name: "raster proxy", modify: func(m *SectorMeta) { m.Category = RasterProxy; m.Aggregation = "mean"; m.Total = 5 }, ok: true},
		{name: "raster negative total", modify: func(m *SectorMeta) { m.Category = RasterProxy; m.Total = -1 }},
		{name: "raster bad aggregation", modify: func(m *SectorMeta) { m.Category = RasterProxy; m.Aggregation = "max" }},
		{name: "bad category", modify: func(m *SectorMeta) { m.Category = "line" }},
		{name: "bad name", modify: func(m *SectorMeta) { m.Category = Point; m.Name = "on-road" }},
		{name: "no file", modify: func(m *SectorMeta) { m.Category = Point; m.File = "" }},
		{name: "bad units", modify: func(m *SectorMeta) { m.Category = Point; m.Units = "kg" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := base()
			test.modify(&m)
			_, err := NewSectorMeta(m)
			if test.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			} else if !test.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}
