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
	"testing"
)

func TestTotalCovered(t *testing.T) {
	var r CoverageRow
	r.Area[Agricultural] = 2
	r.Area[ForestScrub] = 3
	r.Area[Unmapped] = 1
	r.Area[NoData] = 100
	if have := TotalCovered(&r); have != 6 {
		t.Errorf("have %g but want 6", have)
	}
	if r.Area[NoData] != 100 {
		t.Error("TotalCovered modified its argument")
	}
}

func TestFilterUnits(t *testing.T) {
	rows := []CoverageRow{
		{Level: 1, UnitID: "covered"},
		{Level: 1, UnitID: "nodata"},
		{Level: 1, UnitID: "empty"},
		{Level: 2, UnitID: "nan"},
	}
	rows[0].Area[WaterInland] = 1
	rows[1].Area[NoData] = 1
	rows[3].Area[Open] = math.NaN()

	keep := FilterUnits(rows)
	if len(keep) != 1 || !keep[UnitKey{1, "covered"}] {
		t.Errorf("have %v", keep)
	}

	units := []*Unit{
		{ID: "empty", Level: 1},
		{ID: "covered", Level: 1},
		{ID: "covered", Level: 2},
		{ID: "missing", Level: 1},
	}
	trimmed := TrimUnits(units, keep)
	if len(trimmed) != 1 || trimmed[0] != units[1] {
		t.Errorf("have %d units after trimming", len(trimmed))
	}
	trimmedRows := TrimCoverage(rows, keep)
	if len(trimmedRows) != 1 || trimmedRows[0].UnitID != "covered" {
		t.Errorf("have rows %+v", trimmedRows)
	}

	// Filtering is idempotent.
	again := FilterUnits(trimmedRows)
	if len(again) != len(keep) {
		t.Errorf("have %d units after filtering twice but want %d", len(again), len(keep))
	}
}
