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


package domain

import (
	"fmt"

	"github.com/ctessum/geom/proj"
	"github.com/spatialmodel/emisgrid"
)

// Regular creates a regular target grid from explicit parameters.
// projection is a proj4 string; if it is empty the grid is in
// longitude-latitude coordinates.
func Regular(name string, nx, ny int, dx, dy, x0, y0 float64, projection string) (*emisgrid.Grid, error) {
	var sr *proj.SR
	if projection != "" {
		var err error
		sr, err = proj.Parse(projection)
		if err != nil {
			return nil, fmt.Errorf("domain: parsing projection %q: %v", projection, err)
		}
	}
	return emisgrid.NewGrid(name, nx, ny, dx, dy, x0, y0, sr)
}
