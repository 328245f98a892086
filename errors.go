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

// Package emisgrid regrids emissions fields from their native grids onto
// a regular simulation grid while conserving mass.
package emisgrid

import "errors"

var (
	// ErrConfig is returned for invalid grid or source definitions.
	ErrConfig = errors.New("emisgrid: invalid configuration")

	// ErrShape is returned when an array does not match the shape of
	// the grid it is declared on.
	ErrShape = errors.New("emisgrid: shape mismatch")

	// ErrNotMonotonic is returned when cell edge coordinates are not
	// strictly increasing or strictly decreasing.
	ErrNotMonotonic = errors.New("emisgrid: coordinates are not strictly monotonic")
)
