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
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
)

func TestReadUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gadm_2.shp")
	writeSourceShp(t, path, 2, []srcUnit{
		{ids: []string{"DEU", "DEU.1_1"}, name: "Bayern", g: square(10, 47, 13, 50)},
		{ids: []string{"DEU", "DEU.2_1"}, name: "Hessen", g: square(8, 49, 10, 51)},
	})
	units, sr, err := ReadUnits(path, 2, FieldSpec{IDFields: testIDFields, NameField: "NAME_1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sr == nil {
		t.Fatal("spatial reference should be read from the .prj file")
	}
	if len(units) != 2 {
		t.Fatalf("have %d units but want 2", len(units))
	}
	u := units[0]
	if u.ID != "DEU.1_1" || u.Level != 2 || u.Name != "Bayern" {
		t.Errorf("have unit %s %d %q", u.ID, u.Level, u.Name)
	}
	if len(u.Parents) != 1 || u.Parents[0] != "DEU" {
		t.Errorf("have parents %v but want [DEU]", u.Parents)
	}
	if !sameShape(u.Geom, square(10, 47, 13, 50)) {
		t.Errorf("have geometry %v", u.Geom)
	}
}

func TestReadUnitsErrors(t *testing.T) {
	dir := t.TempDir()
	fields := FieldSpec{IDFields: testIDFields, NameField: "NAME_1"}
	if _, _, err := ReadUnits(filepath.Join(dir, "missing.shp"), 2, fields, nil); err == nil {
		t.Error("a missing file should be an error")
	}

	path := filepath.Join(dir, "gadm_1.shp")
	writeSourceShp(t, path, 1, []srcUnit{{ids: []string{"FRA"}, name: "France", g: square(0, 43, 5, 49)}})
	if _, _, err := ReadUnits(path, 2, fields, nil); err == nil {
		t.Error("a missing ID field should be an error")
	}
	if _, _, err := ReadUnits(path, 5, fields, nil); err == nil {
		t.Error("an invalid level should be an error")
	}
}

func TestWriteReadUnits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boundaries_l3_geo.shp")
	in := &UnitSet{
		Level: 3,
		Proj:  WGS84,
		Units: []*Unit{
			{
				ID: "ITA.1.2_1", Level: 3, Parents: []string{"ITA", "ITA.1_1"}, Name: "Chieti",
				Geom:           square(14, 42, 15, 42.5),
				GeoCentroid:    geom.Point{X: 14.5, Y: 42.25},
				PlanarCentroid: geom.Point{X: 368000.25, Y: 1369000.5},
			},
		},
	}
	if err := WriteUnits(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := ReadUnitsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.Level != 3 || out.Proj != WGS84 || len(out.Units) != 1 {
		t.Fatalf("have level %d, proj %q and %d units", out.Level, out.Proj, len(out.Units))
	}
	u, want := out.Units[0], in.Units[0]
	if u.ID != want.ID || u.Name != want.Name || len(u.Parents) != 2 || u.Parents[1] != "ITA.1_1" {
		t.Errorf("have unit %+v", u)
	}
	if u.GeoCentroid != want.GeoCentroid || u.PlanarCentroid != want.PlanarCentroid {
		t.Errorf("have centroids %v and %v", u.GeoCentroid, u.PlanarCentroid)
	}
	if !sameShape(u.Geom, want.Geom) {
		t.Errorf("have geometry %v", u.Geom)
	}
}

func TestWriteUnitsFailureKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boundaries_l2_geo.shp")
	good := &UnitSet{
		Level: 2,
		Proj:  WGS84,
		Units: []*Unit{
			{ID: "ITA.1_1", Level: 2, Parents: []string{"ITA"}, Name: "Abruzzo", Geom: square(13, 41, 15, 43)},
		},
	}
	if err := WriteUnits(path, good); err != nil {
		t.Fatal(err)
	}
	bad := &UnitSet{
		Level: 2,
		Proj:  WGS84,
		Units: []*Unit{
			{ID: "ITA.2_1", Level: 2, Parents: []string{"ITA"}, Name: "Lazio", Geom: square(11, 41, 13, 43)},
			{ID: "X", Level: 2, Parents: []string{"A", "B", "C", "D"}, Geom: square(0, 0, 1, 1)},
		},
	}
	if err := WriteUnits(path, bad); err == nil {
		t.Fatal("a unit with too many parents should be an error")
	}
	out, err := ReadUnitsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Units) != 1 || out.Units[0].ID != "ITA.1_1" {
		t.Errorf("the earlier shapefile was changed: have %d units", len(out.Units))
	}
	left, err := filepath.Glob(filepath.Join(dir, "*.tmp*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("temporary files were left behind: %v", left)
	}
}
