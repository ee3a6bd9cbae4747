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
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ctessum/geom"
)

func testGrid(t *testing.T) *SamplingGrid {
	t.Helper()
	g, err := NewSamplingGrid(0.5, NorthWest)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Cover(&geom.Bounds{Min: geom.Point{X: 10, Y: 45}, Max: geom.Point{X: 11, Y: 46}}); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestJoinGrid(t *testing.T) {
	g := testGrid(t)
	units := []*Unit{
		{ID: "straddling", Level: 2, Geom: square(10.4, 45.4, 10.6, 45.6)},
		{ID: "inside", Level: 2, Geom: square(10.1, 45.1, 10.4, 45.4)},
		{ID: "cell", Level: 1, Geom: square(10.5, 45.5, 11, 46)},
	}
	links, err := JoinGrid(context.Background(), g, units, 2)
	if err != nil {
		t.Fatal(err)
	}
	// Row 88 is 45.5N to 46N and column 380 is 10E to 10.5E.
	id := func(row, col int) int { return g.CellID(row, col) }
	want := []GridLink{
		{Level: 1, UnitID: "cell", CellID: id(88, 381)},
		{Level: 2, UnitID: "inside", CellID: id(89, 380)},
		{Level: 2, UnitID: "straddling", CellID: id(88, 380)},
		{Level: 2, UnitID: "straddling", CellID: id(88, 381)},
		{Level: 2, UnitID: "straddling", CellID: id(89, 380)},
		{Level: 2, UnitID: "straddling", CellID: id(89, 381)},
	}
	if len(links) != len(want) {
		t.Fatalf("have %d links %+v but want %d", len(links), links, len(want))
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link %d: have %+v but want %+v", i, links[i], want[i])
		}
	}

	var b bytes.Buffer
	if err := WriteGridLinks(&b, links[:2]); err != nil {
		t.Fatal(err)
	}
	wantCSV := "level,unit_id,cell_id\n1,cell,63742\n2,inside,64461\n"
	if b.String() != wantCSV {
		t.Errorf("have\n%s\nbut want\n%s", b.String(), wantCSV)
	}
}

func TestJoinGridEmpty(t *testing.T) {
	g := testGrid(t)
	units := []*Unit{
		{ID: "inside", Level: 1, Geom: square(10.1, 45.1, 10.4, 45.4)},
		{ID: "outside", Level: 1, Geom: square(20.1, 45.1, 20.4, 45.4)},
	}
	links, err := JoinGrid(context.Background(), g, units, 1)
	var ee *EmptyUnitsError
	if !errors.As(err, &ee) {
		t.Fatalf("have error %v but want an EmptyUnitsError", err)
	}
	if len(ee.Units) != 1 || ee.Units[0] != (UnitKey{Level: 1, ID: "outside"}) {
		t.Errorf("have empty units %v", ee.Units)
	}
	if !strings.Contains(err.Error(), "outside") {
		t.Errorf("error %q does not name the empty unit", err)
	}
	if len(links) != 1 || links[0].UnitID != "inside" {
		t.Errorf("have links %+v", links)
	}
}
