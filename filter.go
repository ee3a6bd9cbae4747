/*
Copyright © 2024 the spatialprep authors.
This file is part of spatialprep.

spatialprep is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

spatialprep is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with spatialprep.  If not, see <http://www.gnu.org/licenses/>.
*/

package spatialprep

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// TotalCovered returns the land-cover area of r, excluding no-data area.
func TotalCovered(r *CoverageRow) float64 {
	a := r.Area
	a[NoData] = 0
	return floats.Sum(a[:])
}

// FilterUnits returns the keys of the units whose covered area is positive.
func FilterUnits(rows []CoverageRow) map[UnitKey]bool {
	keep := make(map[UnitKey]bool, len(rows))
	for i := range rows {
		t := TotalCovered(&rows[i])
		if t > 0 && !math.IsNaN(t) {
			keep[rows[i].Key()] = true
		}
	}
	return keep
}

// TrimUnits returns the units in keep, in their original order.
func TrimUnits(units []*Unit, keep map[UnitKey]bool) []*Unit {
	o := make([]*Unit, 0, len(units))
	for _, u := range units {
		if keep[u.Key()] {
			o = append(o, u)
		}
	}
	return o
}

// TrimCoverage returns the rows in keep, in their original order.
func TrimCoverage(rows []CoverageRow, keep map[UnitKey]bool) []CoverageRow {
	o := make([]CoverageRow, 0, len(rows))
	for _, r := range rows {
		if keep[r.Key()] {
			o = append(o, r)
		}
	}
	return o
}
