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
	"os"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emisgrid"
	"github.com/spatialmodel/emisgrid/cloud"
	"github.com/spatialmodel/emisgrid/domain"
	"github.com/spf13/cast"
	"gocloud.dev/blob"
)

// expand expands environment variables in a file path.
func expand(s string) string {
	return os.ExpandEnv(s)
}

// TargetGrid returns the grid that emissions are mapped onto. If
// Domain.WPSNamelist is set, the grid is nest Domain.Index of the WRF
// configuration; otherwise it is built from the other Domain options.
func TargetGrid(cfg *viper.Viper) (*emisgrid.Grid, error) {
	if wps := cfg.GetString("Domain.WPSNamelist"); wps != "" {
		wrf := cfg.GetString("Domain.WRFNamelist")
		if wrf != "" {
			wrf = expand(wrf)
		}
		d, err := domain.ParseWRFConfig(expand(wps), wrf)
		if err != nil {
			return nil, err
		}
		i := cast.ToInt(cfg.Get("Domain.Index"))
		if i < 1 || i > d.MaxDom {
			return nil, fmt.Errorf("emisgrid: Domain.Index %d is out of range [1, %d]: %w",
				i, d.MaxDom, emisgrid.ErrConfig)
		}
		return d.Grid(i - 1)
	}
	return domain.Regular(
		cfg.GetString("Domain.Name"),
		cast.ToInt(cfg.Get("Domain.Nx")),
		cast.ToInt(cfg.Get("Domain.Ny")),
		cast.ToFloat64(cfg.Get("Domain.Dx")),
		cast.ToFloat64(cfg.Get("Domain.Dy")),
		cast.ToFloat64(cfg.Get("Domain.X0")),
		cast.ToFloat64(cfg.Get("Domain.Y0")),
		cfg.GetString("Domain.Proj"),
	)
}

var dateFormats = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(name, s string) (time.Time, error) {
	for _, f := range dateFormats {
		if t, err := time.ParseInLocation(f, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("emisgrid: invalid %s '%s': %w", name, s, emisgrid.ErrConfig)
}

// maxSteps limits the number of output time steps.
const maxSteps = 100000

// TimeSteps returns the start times of the output time steps specified
// by StartDate, EndDate, and TimeStep. TimeStep is either a duration or
// "month". If EndDate is empty there is a single step at StartDate.
func TimeSteps(cfg *viper.Viper) ([]time.Time, error) {
	start, err := parseDate("StartDate", cfg.GetString("StartDate"))
	if err != nil {
		return nil, err
	}
	endStr := cfg.GetString("EndDate")
	if endStr == "" {
		return []time.Time{start}, nil
	}
	end, err := parseDate("EndDate", endStr)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("emisgrid: EndDate %v must be after StartDate %v: %w", end, start, emisgrid.ErrConfig)
	}

	var next func(time.Time) time.Time
	step := strings.TrimSpace(cfg.GetString("TimeStep"))
	if strings.EqualFold(step, "month") {
		next = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	} else {
		d, err := cast.ToDurationE(step)
		if err != nil {
			return nil, fmt.Errorf("emisgrid: invalid TimeStep '%s': %w", step, emisgrid.ErrConfig)
		}
		if d <= 0 {
			return nil, fmt.Errorf("emisgrid: TimeStep must be positive: %w", emisgrid.ErrConfig)
		}
		next = func(t time.Time) time.Time { return t.Add(d) }
	}
	var steps []time.Time
	for t := start; t.Before(end); t = next(t) {
		if len(steps) == maxSteps {
			return nil, fmt.Errorf("emisgrid: more than %d time steps: %w", maxSteps, emisgrid.ErrConfig)
		}
		steps = append(steps, t)
	}
	return steps, nil
}

// openCacheBucket opens the bucket at CacheDir, or returns nil if
// CacheDir is empty.
func openCacheBucket(ctx context.Context, cfg *viper.Viper) (*blob.Bucket, error) {
	dir := cfg.GetString("CacheDir")
	if dir == "" {
		return nil, nil
	}
	return cloud.OpenBucket(ctx, expand(dir))
}

// OpenCache returns a weight table cache backed by CacheDir.
func OpenCache(ctx context.Context, cfg *viper.Viper, log logrus.FieldLogger) (*emisgrid.WeightCache, error) {
	b, err := openCacheBucket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return emisgrid.NewWeightCache(b,
		emisgrid.ForceRebuild(cast.ToBool(cfg.Get("ForceRebuild"))),
		emisgrid.MemoryCacheSize(cast.ToInt(cfg.Get("MemCacheSize"))),
		emisgrid.CacheLogger(log),
	), nil
}

// Logger returns a logger that writes to standard error at LogLevel.
func Logger(cfg *viper.Viper) (*logrus.Logger, error) {
	log := logrus.New()
	log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	lvl := cfg.GetString("LogLevel")
	if lvl == "" {
		return log, nil
	}
	level, err := logrus.ParseLevel(lvl)
	if err != nil {
		return nil, fmt.Errorf("emisgrid: %v: %w", err, emisgrid.ErrConfig)
	}
	log.SetLevel(level)
	return log, nil
}

func listCache(ctx context.Context, cfg *viper.Viper, prefix string) ([]string, error) {
	b, err := openCacheBucket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("emisgrid: CacheDir is not set: %w", emisgrid.ErrConfig)
	}
	defer b.Close()
	return cloud.Keys(ctx, b, prefix)
}

func clearCache(ctx context.Context, cfg *viper.Viper, prefix string) (int, error) {
	b, err := openCacheBucket(ctx, cfg)
	if err != nil {
		return 0, err
	}
	if b == nil {
		return 0, fmt.Errorf("emisgrid: CacheDir is not set: %w", emisgrid.ErrConfig)
	}
	defer b.Close()
	return cloud.DeletePrefix(ctx, b, prefix)
}
