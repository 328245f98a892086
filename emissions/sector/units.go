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
	"strings"

	"github.com/ctessum/unit"
	"github.com/ctessum/unit/badunit"
)

var (
	// kgPerS is the dimension of an emission rate.
	kgPerS = unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -1}

	// kgPerM2PerS is the dimension of an emission flux.
	kgPerM2PerS = unit.Dimensions{unit.MassDim: 1, unit.LengthDim: -2, unit.TimeDim: -1}
)

// Units are the units of emissions input data, in the form
// "<mass>[/m2]/<period>", for example "tons/year" or "kg/m2/s".
// Supported masses are kg, g, tons (short tons), tonnes, and lbs;
// supported periods are s, hour, day, month, and year. A month is
// one twelfth of a 365-day year.
type Units struct {
	text    string
	mass    func(v float64) *unit.Unit
	perArea bool
	period  *unit.Unit
}

// ParseUnits parses an emissions unit string.
func ParseUnits(s string) (Units, error) {
	u := Units{text: s}
	parts := strings.Split(strings.ToLower(strings.ReplaceAll(s, " ", "")), "/")
	switch len(parts) {
	case 2:
	case 3:
		if parts[1] != "m2" && parts[1] != "m^2" {
			return u, fmt.Errorf("sector: invalid area units '%s' in '%s'; only m2 is supported", parts[1], s)
		}
		u.perArea = true
	default:
		return u, fmt.Errorf("sector: invalid units '%s'; should be of the form mass[/m2]/period", s)
	}
	switch parts[0] {
	case "kg":
		u.mass = func(v float64) *unit.Unit { return unit.New(v, unit.Kilogram) }
	case "g":
		u.mass = func(v float64) *unit.Unit { return unit.New(v/1000., unit.Kilogram) }
	case "tons", "ton":
		u.mass = badunit.Ton
	case "tonnes", "tonne":
		u.mass = func(v float64) *unit.Unit { return unit.New(v*1000., unit.Kilogram) }
	case "lbs", "lb":
		u.mass = badunit.Pound
	default:
		return u, fmt.Errorf("sector: invalid mass units '%s' in '%s'; valid options are kg, g, tons, tonnes, and lbs", parts[0], s)
	}
	const day = 24 * 60 * 60
	switch parts[len(parts)-1] {
	case "s":
		u.period = unit.New(1, unit.Second)
	case "hour", "hr", "h":
		u.period = badunit.Hour(1)
	case "day":
		u.period = unit.New(day, unit.Second)
	case "month":
		u.period = unit.New(365*day/12., unit.Second)
	case "year", "yr":
		u.period = unit.New(365*day, unit.Second)
	default:
		return u, fmt.Errorf("sector: invalid time period '%s' in '%s'; valid options are s, hour, day, month, and year", parts[len(parts)-1], s)
	}
	return u, nil
}

func (u Units) String() string { return u.text }

// PerArea returns whether the units are an areal flux rather than an
// amount per source.
func (u Units) PerArea() bool { return u.perArea }

// Rate converts value v into an emission rate in kg/s, or kg/m2/s if
// the units are per area.
func (u Units) Rate(v float64) *unit.Unit {
	r := unit.Div(u.mass(v), u.period)
	if u.perArea {
		r.Div(unit.New(1, unit.Meter2))
	}
	return r
}

// FluxFactor returns the factor that converts values in these units
// to kg m-2 s-1. It returns an error if the units are not per area.
func (u Units) FluxFactor() (float64, error) {
	if u.mass == nil {
		return 0, fmt.Errorf("sector: units are not initialized")
	}
	if !u.perArea {
		return 0, fmt.Errorf("sector: units '%s' are not per area", u.text)
	}
	r := u.Rate(1)
	if err := r.Check(kgPerM2PerS); err != nil {
		return 0, fmt.Errorf("sector: %v", err)
	}
	return r.Value(), nil
}

// TotalFactor returns the factor that converts values in these units
// to kg s-1. It returns an error if the units are per area.
func (u Units) TotalFactor() (float64, error) {
	if u.mass == nil {
		return 0, fmt.Errorf("sector: units are not initialized")
	}
	if u.perArea {
		return 0, fmt.Errorf("sector: units '%s' are per area; a total is required", u.text)
	}
	r := u.Rate(1)
	if err := r.Check(kgPerS); err != nil {
		return 0, fmt.Errorf("sector: %v", err)
	}
	return r.Value(), nil
}
