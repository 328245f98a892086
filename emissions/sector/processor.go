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
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emisgrid"
	"gonum.org/v1/gonum/floats"
)

// Target is the grid and time steps that sectors are mapped onto.
type Target struct {
	Grid *emisgrid.Grid

	// Steps are the start times of the output time steps.
	Steps []time.Time

	// Weights provides the weight tables for gridded sectors.
	Weights *emisgrid.WeightCache

	Log logrus.FieldLogger
}

func (t *Target) log() logrus.FieldLogger {
	if t.Log == nil {
		return logrus.StandardLogger()
	}
	return t.Log
}

// Process reads the input data of sector m and maps them onto the
// target grid. The result has shape [len(t.Steps), Ny, Nx] and units
// of kg m-2 s-1.
func (m *SectorMeta) Process(ctx context.Context, t *Target) (*sparse.DenseArray, error) {
	if len(t.Steps) == 0 {
		return nil, fmt.Errorf("sector %s: no output time steps", m.Name)
	}
	log := t.log().WithFields(logrus.Fields{"sector": m.Name, "category": m.Category})
	start := time.Now()
	var f *sparse.DenseArray
	var err error
	switch m.Category {
	case Gridded:
		f, err = m.processGridded(ctx, t, log)
	case Point:
		f, err = m.processPoints(t, log)
	case Polygon:
		f, err = m.processFootprints(t, log)
	case RasterProxy:
		f, err = m.processRaster(t, log)
	default:
		err = fmt.Errorf("invalid category '%s'", m.Category)
	}
	if err != nil {
		return nil, fmt.Errorf("sector %s: %w", m.Name, err)
	}
	out, err := expandTime(f, t.Steps)
	if err != nil {
		return nil, fmt.Errorf("sector %s: %w", m.Name, err)
	}
	log.WithFields(logrus.Fields{
		"emissions_kg_s": emisgrid.TotalMass(f, t.Grid.Areas()) / float64(bandCount(f)),
		"duration":       time.Since(start).Round(time.Millisecond),
	}).Info("processed sector")
	return out, nil
}

// processGridded converts gridded data to fluxes and regrids them.
func (m *SectorMeta) processGridded(ctx context.Context, t *Target, log logrus.FieldLogger) (*sparse.DenseArray, error) {
	g, err := ReadCOARDS(m.File, m.Variable)
	if err != nil {
		return nil, err
	}
	srcAreas := g.Source.Areas()
	nx, ny := g.Source.Nx(), g.Source.Ny()
	var factor float64
	if m.units.PerArea() {
		factor, err = m.units.FluxFactor()
	} else {
		factor, err = m.units.TotalFactor()
	}
	if err != nil {
		return nil, err
	}
	flux := g.Data
	for i, v := range flux.Elements {
		if math.IsNaN(v) {
			flux.Elements[i] = 0
			continue
		}
		v *= factor
		if !m.units.PerArea() {
			c := i % (nx * ny)
			v /= srcAreas.Area(c%nx, c/nx)
		}
		flux.Elements[i] = v
	}

	if m.Regrid == Nearest {
		nt, err := t.Weights.Nearest(ctx, g.Source, t.Grid)
		if err != nil {
			return nil, err
		}
		return nt.Apply(flux, 0)
	}
	wt, err := t.Weights.Conservative(ctx, g.Source, t.Grid)
	if err != nil {
		return nil, err
	}
	out, err := emisgrid.Redistribute(flux, wt, srcAreas, t.Grid.Areas())
	if err != nil {
		return nil, err
	}
	in := emisgrid.TotalMass(flux, srcAreas)
	if in > 0 {
		log.WithFields(logrus.Fields{
			"source":        g.Source.Name,
			"weights":       wt.Len(),
			"mass_fraction": emisgrid.TotalMass(out, t.Grid.Areas()) / in,
		}).Debug("regridded gridded emissions")
	}
	return out, nil
}

// processPoints assigns facility emissions to the cells that contain them.
func (m *SectorMeta) processPoints(t *Target, log logrus.FieldLogger) (*sparse.DenseArray, error) {
	r, err := os.Open(m.File)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	facs, err := ReadFacilitiesCSV(r)
	if err != nil {
		return nil, err
	}
	factor, err := m.units.TotalFactor()
	if err != nil {
		return nil, err
	}
	lons, lats := make([]float64, len(facs)), make([]float64, len(facs))
	for i, f := range facs {
		lons[i], lats[i] = f.Lon, f.Lat
	}
	ix, iy, valid, err := t.Grid.LonLatToCellIndex(lons, lats)
	if err != nil {
		return nil, err
	}
	g := t.Grid
	areas := g.Areas()
	out := sparse.ZerosDense(g.Ny, g.Nx)
	var dropped int
	for i, f := range facs {
		if !valid[i] {
			dropped++
			continue
		}
		out.Elements[iy[i]*g.Nx+ix[i]] += f.Emissions * factor / areas.Area(ix[i], iy[i])
	}
	if dropped > 0 {
		log.WithFields(logrus.Fields{"dropped": dropped, "total": len(facs)}).
			Warn("facilities outside of the grid were dropped")
	}
	return out, nil
}

// processFootprints splits footprint emissions among the cells they overlap.
func (m *SectorMeta) processFootprints(t *Target, log logrus.FieldLogger) (*sparse.DenseArray, error) {
	fps, err := ReadFootprints(m.File, m.Attribute)
	if err != nil {
		return nil, err
	}
	factor, err := m.units.TotalFactor()
	if err != nil {
		return nil, err
	}
	g := t.Grid
	areas := g.Areas()
	out := sparse.ZerosDense(g.Ny, g.Nx)
	var dropped float64
	for _, fp := range fps {
		cws, err := emisgrid.PolygonCellIntersection(fp, g)
		if err != nil {
			return nil, err
		}
		var covered float64
		for _, cw := range cws {
			out.Elements[cw.IY*g.Nx+cw.IX] += fp.Emissions * factor * cw.Weight / areas.Area(cw.IX, cw.IY)
			covered += cw.Weight
		}
		dropped += fp.Emissions * factor * math.Max(1-covered, 0)
	}
	if dropped > 0 {
		log.WithField("dropped_kg_s", dropped).Warn("footprint emissions outside of the grid were dropped")
	}
	return out, nil
}

// processRaster aggregates a raster onto the grid, either as emissions
// or as a spatial proxy for a total.
func (m *SectorMeta) processRaster(t *Target, log logrus.FieldLogger) (*sparse.DenseArray, error) {
	r, err := ReadASCIIGridFile(m.File)
	if err != nil {
		return nil, err
	}
	g := t.Grid
	out, counts, err := emisgrid.RemapRasterCounts(r, g, m.aggregation)
	if err != nil {
		return nil, err
	}
	log.WithField("pixels", floats.Sum(counts.Elements)).Debug("remapped raster")
	for i, v := range out.Elements {
		if math.IsNaN(v) {
			out.Elements[i] = 0
		}
	}
	areas := g.Areas()
	if m.units.PerArea() {
		factor, err := m.units.FluxFactor()
		if err != nil {
			return nil, err
		}
		out.Scale(factor)
		return out, nil
	}
	factor, err := m.units.TotalFactor()
	if err != nil {
		return nil, err
	}
	if m.Total > 0 {
		sum := floats.Sum(out.Elements)
		if !(sum > 0) {
			return nil, fmt.Errorf("raster proxy %s has no weight within grid %s", m.File, g.Name)
		}
		factor *= m.Total / sum
	}
	for i := range out.Elements {
		out.Elements[i] *= factor / areas.Area(i%g.Nx, i/g.Nx)
	}
	return out, nil
}

func bandCount(f *sparse.DenseArray) int {
	if len(f.Shape) == 3 {
		return f.Shape[0]
	}
	return 1
}

// expandTime maps field f, with shape [ny, nx] or [nband, ny, nx], onto
// the output time steps. A single band is constant in time, 12 bands
// are a monthly climatology indexed by the month of each step, and any
// other number of bands must match the number of steps.
func expandTime(f *sparse.DenseArray, steps []time.Time) (*sparse.DenseArray, error) {
	nband := bandCount(f)
	ny, nx := f.Shape[len(f.Shape)-2], f.Shape[len(f.Shape)-1]
	size := nx * ny
	out := sparse.ZerosDense(len(steps), ny, nx)
	for i, s := range steps {
		var b int
		switch {
		case nband == 1:
		case nband == len(steps):
			b = i
		case nband == 12:
			b = int(s.Month()) - 1
		default:
			return nil, fmt.Errorf("%w: input has %d time bands but there are %d output steps; "+
				"it should have 1, 12, or %d", emisgrid.ErrShape, nband, len(steps), len(steps))
		}
		copy(out.Elements[i*size:(i+1)*size], f.Elements[b*size:(b+1)*size])
	}
	return out, nil
}
