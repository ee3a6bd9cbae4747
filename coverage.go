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
	"context"
	"fmt"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/eurotiger/spatialprep/internal/geotiff"
)

// ExtractCoverage calculates the area of each raster code within each unit.
// Unit geometries must be in the coordinate system of the raster. Cells that
// are partly covered contribute the covered part of their area, no-data
// cells contribute nothing, and units that do not overlap any cell have no
// records. The records are sorted by level, unit ID and code.
func ExtractCoverage(ctx context.Context, r *geotiff.Raster, units []*Unit, workers int) ([]CoverageRecord, error) {
	per, err := Map(ctx, workers, units, func(ctx context.Context, u *Unit) ([]CoverageRecord, error) {
		return unitCoverage(ctx, r, u)
	})
	if err != nil {
		return nil, err
	}
	var o []CoverageRecord
	for _, recs := range per {
		o = append(o, recs...)
	}
	sort.Slice(o, func(i, j int) bool {
		if o[i].Level != o[j].Level {
			return o[i].Level < o[j].Level
		}
		if o[i].UnitID != o[j].UnitID {
			return o[i].UnitID < o[j].UnitID
		}
		return o[i].Code < o[j].Code
	})
	return o, nil
}

func unitCoverage(ctx context.Context, r *geotiff.Raster, u *Unit) ([]CoverageRecord, error) {
	row0, row1, col0, col1, ok := r.CellRange(u.Geom.Bounds())
	if !ok {
		return nil, nil
	}
	areas := make(map[int]float64)
	var codes []int
	for row := row0; row <= row1; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Clip the unit to the raster row once, then to each cell in it.
		left, right := r.CellBounds(row, col0), r.CellBounds(row, col1)
		stripBounds := &geom.Bounds{Min: left.Min, Max: right.Max}
		strip := clip(u.Geom, stripBounds)
		if len(strip) == 0 {
			continue
		}
		_, _, c0, c1, ok := r.CellRange(strip.Bounds())
		if !ok {
			continue
		}
		for col := c0; col <= c1; col++ {
			v := r.At(row, col)
			if r.IsNoData(v) {
				continue
			}
			a := clip(strip, r.CellBounds(row, col)).Area()
			if a <= 0 {
				continue
			}
			if _, ok := areas[v]; !ok {
				codes = append(codes, v)
			}
			areas[v] += a
		}
	}
	sort.Ints(codes)
	o := make([]CoverageRecord, len(codes))
	for i, c := range codes {
		o[i] = CoverageRecord{Level: u.Level, UnitID: u.ID, Code: c, Area: areas[c]}
	}
	return o, nil
}

// TransformUnits returns copies of units with geometries transformed from
// src to dst.
func TransformUnits(units []*Unit, src, dst *proj.SR) ([]*Unit, error) {
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("spatialprep: creating transform: %v", err)
	}
	o := make([]*Unit, len(units))
	for i, u := range units {
		g, err := u.Geom.Transform(t)
		if err != nil {
			return nil, fmt.Errorf("spatialprep: transforming unit %s: %v", u.Key(), err)
		}
		uu := *u
		uu.Geom = g.(geom.Polygon)
		o[i] = &uu
	}
	return o, nil
}
