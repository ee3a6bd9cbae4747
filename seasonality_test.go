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
	"reflect"
	"strings"
	"testing"

	"github.com/ctessum/geom"

	"github.com/eurotiger/spatialprep/photoperiod"
)

func TestShortestDays(t *testing.T) {
	units := []*Unit{
		{ID: "north", Level: 1, GeoCentroid: geom.Point{X: 10, Y: 45}},
		{ID: "south", Level: 2, GeoCentroid: geom.Point{X: 10, Y: -35}},
	}
	days := ShortestDays(units, 2023)
	if len(days) != 2 {
		t.Fatalf("have %d days but want 2", len(days))
	}
	if days[0].Month != 12 || days[1].Month != 6 {
		t.Errorf("have months %d and %d but want 12 and 6", days[0].Month, days[1].Month)
	}
	d := photoperiod.ShortestDay(45, 2023)
	if days[0].Day != d.Day() || days[0].UnitID != "north" || days[1].Level != 2 {
		t.Errorf("have %+v", days[0])
	}

	var b bytes.Buffer
	if err := WriteShortestDays(&b, days); err != nil {
		t.Fatal(err)
	}
	have, err := ReadShortestDays(&b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(have, days) {
		t.Errorf("have %+v but want %+v", have, days)
	}

	b.Reset()
	if err := WriteShortestDaysCSV(&b, days); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 3 || lines[0] != "level,unit_id,day,month" || !strings.HasSuffix(lines[1], ",12") {
		t.Errorf("have table\n%s", b.String())
	}
}

func TestReadShortestDaysInvalid(t *testing.T) {
	if _, err := ReadShortestDays(strings.NewReader("not gob")); err == nil {
		t.Error("expected an error")
	}
}
