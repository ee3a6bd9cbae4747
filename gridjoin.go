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
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// GridLink records that a sampling grid cell overlaps a unit.
type GridLink struct {
	Level  Level
	UnitID string
	CellID int
}

// JoinGrid finds the cells in the covered window of g that overlap each
// unit. Unit geometries must be in geographic coordinates. Cells that only
// touch a unit along an edge or at a corner do not overlap it. The links
// are sorted by level, unit ID and cell ID.
//
// If some units overlap no cells, the links of the other units are returned
// together with an *EmptyUnitsError.
func JoinGrid(ctx context.Context, g *SamplingGrid, units []*Unit, workers int) ([]GridLink, error) {
	per, err := Map(ctx, workers, units, func(ctx context.Context, u *Unit) ([]GridLink, error) {
		return joinUnit(ctx, g, u)
	})
	if err != nil {
		return nil, err
	}
	var links []GridLink
	empty := new(EmptyUnitsError)
	for i, l := range per {
		if len(l) == 0 {
			empty.Units = append(empty.Units, units[i].Key())
		}
		links = append(links, l...)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Level != links[j].Level {
			return links[i].Level < links[j].Level
		}
		if links[i].UnitID != links[j].UnitID {
			return links[i].UnitID < links[j].UnitID
		}
		return links[i].CellID < links[j].CellID
	})
	if len(empty.Units) > 0 {
		return links, empty
	}
	return links, nil
}

func joinUnit(ctx context.Context, g *SamplingGrid, u *Unit) ([]GridLink, error) {
	row0, row1, col0, col1, ok := g.CellRange(u.Geom.Bounds())
	if !ok {
		return nil, nil
	}
	row0, row1 = max(row0, g.Row0), min(row1, g.Row1)
	col0, col1 = max(col0, g.Col0), min(col1, g.Col1)
	var o []GridLink
	for row := row0; row <= row1; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := g.CellBounds(row, col0)
		b.Extend(g.CellBounds(row, col1))
		strip := clip(u.Geom, b)
		if len(strip) == 0 {
			continue
		}
		_, _, c0, c1, ok := g.CellRange(strip.Bounds())
		if !ok {
			continue
		}
		for col := max(c0, col0); col <= min(c1, col1); col++ {
			if clip(strip, g.CellBounds(row, col)).Area() > 0 {
				o = append(o, GridLink{Level: u.Level, UnitID: u.ID, CellID: g.CellID(row, col)})
			}
		}
	}
	return o, nil
}

// WriteGridLinks writes links as CSV.
func WriteGridLinks(w io.Writer, links []GridLink) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"level", "unit_id", "cell_id"}); err != nil {
		return err
	}
	for _, l := range links {
		if err := cw.Write([]string{strconv.Itoa(int(l.Level)), l.UnitID, strconv.Itoa(l.CellID)}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("spatialprep: writing grid lookup: %v", err)
	}
	return nil
}
