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


package emisgridutil

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/spatialmodel/emisgrid"
	"github.com/spatialmodel/emisgrid/cloud"
)

// writeInputs writes a gridded, a point, and a raster sector that all
// cover the 4x3 one-degree grid with its lower-left corner at
// (-100, 38.5), and returns the path of the sector file.
func writeInputs(t *testing.T, dir string) string {
	t.Helper()
	writeFile(t, filepath.Join(dir, "power.csv"), "name,lon,lat,emissions\nplant,-99.5,39,2\nfar,0,0,5\n")
	writeFile(t, filepath.Join(dir, "pop.asc"), `ncols 4
nrows 3
xllcorner -100
yllcorner 38.5
cellsize 1
NODATA_value -9999
1 2 3 4
5 -9999 7 8
9 10 11 12
`)
	writeCOARDS(t, filepath.Join(dir, "ag.nc"))
	path := filepath.Join(dir, "sectors.toml")
	writeFile(t, path, `
[[Sector]]
Name = "ag"
Category = "gridded"
File = "ag.nc"
Variable = "NH3"
Units = "kg/m2/s"

[[Sector]]
Name = "power"
Category = "point"
File = "power.csv"
Units = "kg/s"
Codes = ["egu"]

[[Sector]]
Name = "pop"
Category = "raster"
File = "pop.asc"
Units = "kg/s"
Aggregation = "sum"
`)
	return path
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeCOARDS(t *testing.T, path string) {
	t.Helper()
	lons := []float32{-99.5, -98.5, -97.5, -96.5}
	lats := []float32{41, 40, 39}
	h := cdf.NewHeader([]string{"lat", "lon"}, []int{len(lats), len(lons)})
	h.AddVariable("NH3", []string{"lat", "lon"}, []float32{})
	h.AddVariable("lat", []string{"lat"}, []float32{})
	h.AddVariable("lon", []string{"lon"}, []float32{})
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
	for v, d := range map[string][]float32{
		"lat": lats,
		"lon": lons,
		"NH3": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
	} {
		end := nc.Header.Lengths(v)
		if _, err := nc.Writer(v, make([]int, len(end)), end).Write(d); err != nil {
			t.Fatal(err)
		}
	}
}

func testConfig(t *testing.T) (*Cfg, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	writeFile(t, cfgPath, `
SectorFile = "`+writeInputs(t, dir)+`"
OutputFile = "`+filepath.Join(dir, "out.nc")+`"
StartDate = "2020-01-01"
EndDate = "2020-01-01T02:00:00"
TimeStep = "1h"
LogLevel = "error"

[Domain]
Name = "test"
Nx = 4
Ny = 3
Dx = 1.0
Dy = 1.0
X0 = -100.0
Y0 = 38.5
`)
	cfg := InitializeConfig()
	cfg.Set("config", cfgPath)
	return cfg, dir
}

func readVar(t *testing.T, nc *cdf.File, name string, n int) []float32 {
	t.Helper()
	r := nc.Reader(name, nil, nil)
	data := r.Zero(n).([]float32)
	if _, err := r.Read(data); err != nil {
		t.Fatal(err)
	}
	return data
}

func TestRun(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.Root.SetArgs([]string{"run"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "out.nc"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if l := nc.Header.Lengths("E_AG"); len(l) != 3 || l[0] != 2 || l[1] != 3 || l[2] != 4 {
		t.Fatalf("E_AG dimensions: %v", l)
	}
	g, err := emisgrid.NewGrid("test", 4, 3, 1, 1, -100, 38.5, nil)
	if err != nil {
		t.Fatal(err)
	}
	areas := g.Areas()

	ag := readVar(t, nc, "E_AG", 24)
	for i, want := range []float64{9, 10, 11, 12, 5, 6, 7, 8, 1, 2, 3, 4} {
		for step := 0; step < 2; step++ {
			if have := float64(ag[step*12+i]); math.Abs(have-want) > 1e-4*want {
				t.Errorf("E_AG step %d cell %d: have %g, want %g", step, i, have, want)
			}
		}
	}

	power := readVar(t, nc, "E_POWER", 24)
	if have, want := float64(power[0])*areas.Area(0, 0), 2.0; math.Abs(have-want) > 1e-5 {
		t.Errorf("E_POWER mass: have %g, want %g", have, want)
	}
	for i, v := range power[1:12] {
		if v != 0 {
			t.Errorf("E_POWER cell %d = %g", i+1, v)
		}
	}
	if codes := nc.Header.GetAttribute("E_POWER", "codes"); codes == nil {
		t.Error("missing codes attribute")
	}

	pop := readVar(t, nc, "E_POP", 24)
	var mass float64
	for i, v := range pop[:12] {
		mass += float64(v) * areas.Area(i%4, i/4)
	}
	if math.Abs(mass-72) > 1e-4 {
		t.Errorf("E_POP mass: have %g, want 72", mass)
	}
}

func TestRunMissingSectorFile(t *testing.T) {
	cfg, dir := testConfig(t)
	cfg.Set("SectorFile", filepath.Join(dir, "missing.toml"))
	cfg.Root.SetArgs([]string{"run"})
	if err := cfg.Root.Execute(); err == nil {
		t.Error("expected an error")
	}
}

func TestWeightsAndCache(t *testing.T) {
	ctx := context.Background()
	cfg, dir := testConfig(t)
	cacheDir := filepath.Join(dir, "cache")
	cfg.Set("CacheDir", cacheDir)
	cfg.Root.SetArgs([]string{"weights"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}

	b, err := cloud.OpenBucket(ctx, cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	keys, err := cloud.Keys(ctx, b, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "conservative_ag_test_") {
		t.Fatalf("cached keys: %v", keys)
	}
	if err := cloud.WriteBlob(ctx, b, "nearest_other", []byte("x")); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cfg.Root.SetOut(&out)
	cfg.Root.SetArgs([]string{"cache", "list"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if have := strings.Fields(out.String()); len(have) != 2 {
		t.Errorf("cache list: %q", out.String())
	}

	out.Reset()
	cfg.Root.SetArgs([]string{"cache", "clear", "conservative"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if have := out.String(); have != "deleted 1 weight tables\n" {
		t.Errorf("cache clear: %q", have)
	}
	keys, err = cloud.Keys(ctx, b, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "nearest_other" {
		t.Errorf("remaining keys: %v", keys)
	}
}

func TestCacheWithoutDir(t *testing.T) {
	cfg := InitializeConfig()
	cfg.Root.SetArgs([]string{"cache", "list"})
	if err := cfg.Root.Execute(); err == nil {
		t.Error("expected an error")
	}
}

func TestGridCmd(t *testing.T) {
	cfg, dir := testConfig(t)
	outdir := filepath.Join(dir, "shp")
	if err := os.Mkdir(outdir, 0755); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	cfg.Root.SetOut(&out)
	cfg.Root.SetArgs([]string{"grid", outdir})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		if _, err := os.Stat(filepath.Join(outdir, "test"+ext)); err != nil {
			t.Error(err)
		}
	}
	if !strings.Contains(out.String(), "(4x3)") {
		t.Errorf("grid output: %q", out.String())
	}
}

func TestVersion(t *testing.T) {
	cfg := InitializeConfig()
	var out bytes.Buffer
	cfg.Root.SetOut(&out)
	cfg.Root.SetArgs([]string{"version"})
	if err := cfg.Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if have, want := out.String(), "emisgrid v"+emisgrid.Version+"\n"; have != want {
		t.Errorf("have %q, want %q", have, want)
	}
}
