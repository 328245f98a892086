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
	"context"
	"fmt"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emisgrid/emissions/sector"
	"github.com/spatialmodel/emisgrid/output"
)

// Pipeline maps a set of emissions sectors onto a target grid.
type Pipeline struct {
	Sectors []*sector.SectorMeta
	Target  *sector.Target
}

// NewPipeline reads the sectors, target grid, time steps, and weight
// cache specified in cfg.
func NewPipeline(ctx context.Context, cfg *viper.Viper) (*Pipeline, error) {
	log, err := Logger(cfg)
	if err != nil {
		return nil, err
	}
	sectors, err := sector.ReadSectorFile(cfg.GetString("SectorFile"))
	if err != nil {
		return nil, err
	}
	g, err := TargetGrid(cfg)
	if err != nil {
		return nil, err
	}
	steps, err := TimeSteps(cfg)
	if err != nil {
		return nil, err
	}
	wc, err := OpenCache(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"grid":    g.Name,
		"nx":      g.Nx,
		"ny":      g.Ny,
		"sectors": len(sectors),
		"steps":   len(steps),
	}).Info("emisgrid: initialized")
	return &Pipeline{
		Sectors: sectors,
		Target:  &sector.Target{Grid: g, Steps: steps, Weights: wc, Log: log},
	}, nil
}

// Run processes every sector and writes the fluxes to outputFile.
func (p *Pipeline) Run(ctx context.Context, outputFile string) error {
	start := time.Now()
	w, err := output.NewWriter(p.Target.Grid, p.Target.Steps)
	if err != nil {
		return err
	}
	for _, m := range p.Sectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		flux, err := m.Process(ctx, p.Target)
		if err != nil {
			return err
		}
		err = w.Add(output.Layer{
			Name:        m.Name,
			Category:    string(m.Category),
			Description: m.Description,
			Codes:       m.Codes,
			Flux:        flux,
		})
		if err != nil {
			return err
		}
	}
	if err := w.Write(expand(outputFile)); err != nil {
		return err
	}
	p.Target.Log.WithFields(logrus.Fields{
		"file":     outputFile,
		"duration": time.Since(start),
	}).Info("emisgrid: finished")
	return nil
}

// BuildWeights builds the weight table for each gridded sector and
// saves it to the cache.
func (p *Pipeline) BuildWeights(ctx context.Context) error {
	var n int
	for _, m := range p.Sectors {
		if m.Category != sector.Gridded {
			continue
		}
		g, err := sector.ReadCOARDS(m.File, m.Variable)
		if err != nil {
			return err
		}
		if m.Regrid == sector.Nearest {
			_, err = p.Target.Weights.Nearest(ctx, g.Source, p.Target.Grid)
		} else {
			_, err = p.Target.Weights.Conservative(ctx, g.Source, p.Target.Grid)
		}
		if err != nil {
			return fmt.Errorf("sector %s: %w", m.Name, err)
		}
		n++
	}
	p.Target.Log.WithField("tables", n).Info("emisgrid: weight tables ready")
	return nil
}
