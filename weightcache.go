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

package emisgrid

import (
	"context"
	"encoding"
	"fmt"
	"sync"

	"github.com/ctessum/requestcache/v4"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/emisgrid/cloud"
	"gocloud.dev/blob"
)

// WeightCache builds weight tables and stores them for reuse.
// Concurrent requests for the same table are only computed once, and
// recently used tables are held in memory. If a persistent store is
// configured, tables are also saved there and reloaded by later runs.
// Entries in the store that cannot be read, are corrupt, or were built
// for different grids are rebuilt and overwritten.
type WeightCache struct {
	store *blob.Bucket
	cache *requestcache.Cache

	memSize int
	force   bool

	mu      sync.Mutex
	rebuilt map[string]bool

	// Log receives messages about cache activity.
	Log logrus.FieldLogger
}

// CacheOption configures a WeightCache.
type CacheOption func(*WeightCache)

// ForceRebuild causes every table to be rebuilt the first time it is
// requested from the cache, ignoring any stored copy.
func ForceRebuild(force bool) CacheOption {
	return func(c *WeightCache) { c.force = force }
}

// MemoryCacheSize sets the number of tables held in memory.
// The default is 20.
func MemoryCacheSize(n int) CacheOption {
	return func(c *WeightCache) { c.memSize = n }
}

// CacheLogger sets the logger for cache activity.
func CacheLogger(l logrus.FieldLogger) CacheOption {
	return func(c *WeightCache) { c.Log = l }
}

// NewWeightCache creates a new cache that persists tables in store.
// store may be nil, in which case tables are only held in memory.
func NewWeightCache(store *blob.Bucket, opts ...CacheOption) *WeightCache {
	c := &WeightCache{
		store:   store,
		memSize: 20,
		rebuilt: make(map[string]bool),
		Log:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	c.cache = requestcache.NewCache(requestcache.Deduplicate(), requestcache.Memory(c.memSize))
	return c
}

// cacheKey returns the storage key for a table of the given kind.
func cacheKey(kind string, src *Rectilinear, dst *Grid) string {
	return fmt.Sprintf("%s_%s_%s_%s", kind, src.Name, dst.Name, Fingerprint(src, dst))
}

// Conservative returns the area-weighted table mapping src onto dst.
func (c *WeightCache) Conservative(ctx context.Context, src *Rectilinear, dst *Grid) (*WeightTable, error) {
	req := c.cache.NewRequest(ctx, &conservativeRequest{c: c, src: src, dst: dst})
	wt := new(WeightTable)
	if err := req.Result(wt); err != nil {
		return nil, err
	}
	return wt, nil
}

// Nearest returns the nearest-cell table mapping src onto dst.
func (c *WeightCache) Nearest(ctx context.Context, src *Rectilinear, dst *Grid) (*NearestTable, error) {
	req := c.cache.NewRequest(ctx, &nearestRequest{c: c, src: src, dst: dst})
	nt := new(NearestTable)
	if err := req.Result(nt); err != nil {
		return nil, err
	}
	return nt, nil
}

type conservativeRequest struct {
	c   *WeightCache
	src *Rectilinear
	dst *Grid
}

func (r *conservativeRequest) Key() string { return cacheKey("conservative", r.src, r.dst) }

func (r *conservativeRequest) Run(ctx context.Context, res requestcache.Result) error {
	key := r.Key()
	fp := Fingerprint(r.src, r.dst)
	wt := new(WeightTable)
	if r.c.load(ctx, key, wt) {
		err := wt.check(fp)
		if err == nil {
			r.c.checkCoverage(wt)
			*res.(*WeightTable) = *wt
			return nil
		}
		r.c.Log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("rebuilding invalid cached weight table")
	}
	r.c.Log.WithFields(logrus.Fields{
		"source": r.src.Name, "target": r.dst.Name,
		"source_cells": r.src.Nx() * r.src.Ny(), "target_cells": r.dst.Nx * r.dst.Ny,
	}).Info("building conservative weight table")
	wt, err := BuildWeights(r.src, r.dst)
	if err != nil {
		return err
	}
	r.c.checkCoverage(wt)
	r.c.save(ctx, key, wt)
	*res.(*WeightTable) = *wt
	return nil
}

// checkCoverage warns when source cells have been assigned more than
// their whole area, which happens when target cells overlap.
func (c *WeightCache) checkCoverage(wt *WeightTable) {
	if n, max := wt.OverCoverage(coverageTolerance); n > 0 {
		c.Log.WithFields(logrus.Fields{
			"source": wt.Source, "target": wt.Target,
			"cells": n, "max_coverage": max,
		}).Warn("source cells are covered more than once")
	}
}

type nearestRequest struct {
	c   *WeightCache
	src *Rectilinear
	dst *Grid
}

func (r *nearestRequest) Key() string { return cacheKey("nearest", r.src, r.dst) }

func (r *nearestRequest) Run(ctx context.Context, res requestcache.Result) error {
	key := r.Key()
	fp := Fingerprint(r.src, r.dst)
	nt := new(NearestTable)
	if r.c.load(ctx, key, nt) {
		err := nt.check(fp)
		if err == nil {
			*res.(*NearestTable) = *nt
			return nil
		}
		r.c.Log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("rebuilding invalid cached nearest-cell table")
	}
	r.c.Log.WithFields(logrus.Fields{"source": r.src.Name, "target": r.dst.Name}).Info("building nearest-cell table")
	nt, err := BuildNearest(r.src, r.dst)
	if err != nil {
		return err
	}
	r.c.save(ctx, key, nt)
	*res.(*NearestTable) = *nt
	return nil
}

// load reads the table stored under key into v. It returns false if
// there is no usable stored table. When rebuilding is forced, the
// stored table is ignored the first time each key is requested.
func (c *WeightCache) load(ctx context.Context, key string, v encoding.BinaryUnmarshaler) bool {
	if c.store == nil {
		return false
	}
	if c.force {
		c.mu.Lock()
		first := !c.rebuilt[key]
		c.rebuilt[key] = true
		c.mu.Unlock()
		if first {
			return false
		}
	}
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		c.Log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("checking weight cache")
		return false
	}
	if !exists {
		return false
	}
	b, err := cloud.ReadBlob(ctx, c.store, key)
	if err != nil {
		c.Log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("reading weight cache")
		return false
	}
	if err := v.UnmarshalBinary(b); err != nil {
		c.Log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("rebuilding corrupt cached table")
		return false
	}
	c.Log.WithField("key", key).Debug("loaded cached table")
	return true
}

// save stores v under key. Failures are logged but otherwise ignored,
// because the table can always be rebuilt.
func (c *WeightCache) save(ctx context.Context, key string, v encoding.BinaryMarshaler) {
	if c.store == nil {
		return
	}
	b, err := v.MarshalBinary()
	if err == nil {
		err = cloud.WriteBlob(ctx, c.store, key, b)
	}
	if err != nil {
		c.Log.WithFields(logrus.Fields{"key": key, "error": err}).Warn("saving table to weight cache")
	}
}
