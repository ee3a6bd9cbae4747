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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	goshp "github.com/jonas-p/go-shp"

	"github.com/eurotiger/spatialprep/internal/hash"
)

// Level is an administrative level, from 1 (countries) to NumLevels.
type Level int

// NumLevels is the number of nested administrative levels.
const NumLevels = 4

// UnitKey identifies an administrative unit across levels.
type UnitKey struct {
	Level Level
	ID    string
}

func (k UnitKey) String() string { return fmt.Sprintf("L%d:%s", k.Level, k.ID) }

// Unit is an administrative unit.
type Unit struct {
	ID    string
	Level Level

	// Parents holds the IDs of the enclosing units at levels 1 to Level-1.
	Parents []string
	Name    string

	// Geom holds all rings of all parts of the unit.
	Geom geom.Polygon

	GeoCentroid    geom.Point
	PlanarCentroid geom.Point
}

// Key returns the key of u.
func (u *Unit) Key() UnitKey { return UnitKey{Level: u.Level, ID: u.ID} }

// UnitSet holds the units of one level in one coordinate system.
type UnitSet struct {
	Level Level

	// Proj is the definition of the coordinate system of the unit
	// geometries, in proj4 or WKT format.
	Proj  string
	Units []*Unit
}

// FieldSpec names the source shapefile attributes that hold unit
// information. A level k shapefile holds the IDs of the unit and all of its
// parents in IDFields[0:k].
type FieldSpec struct {
	IDFields  []string
	NameField string
}

// ReadUnits reads the level units from the source shapefile at path. If
// sr is nil, the spatial reference is read from the .prj file that
// accompanies the shapefile. The spatial reference of the returned
// geometries is also returned.
func ReadUnits(path string, level Level, fields FieldSpec, sr *proj.SR) ([]*Unit, *proj.SR, error) {
	if level < 1 || level > NumLevels {
		return nil, nil, fmt.Errorf("spatialprep: invalid administrative level %d", level)
	}
	if len(fields.IDFields) < int(level) {
		return nil, nil, fmt.Errorf("spatialprep: level %d needs %d ID fields but %d were given",
			level, level, len(fields.IDFields))
	}
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, nil, fmt.Errorf("spatialprep: opening boundary file: %v", err)
	}
	defer d.Close()
	if sr == nil {
		if sr, err = d.SR(); err != nil {
			return nil, nil, fmt.Errorf("spatialprep: reading spatial reference of %s: %v", path, err)
		}
	}

	names := append([]string{}, fields.IDFields[:level]...)
	if fields.NameField != "" {
		names = append(names, fields.NameField)
	}
	var units []*Unit
	for {
		g, attrs, more := d.DecodeRowFields(names...)
		if err := d.Error(); err != nil {
			return nil, nil, fmt.Errorf("spatialprep: reading %s: %v", path, err)
		}
		if !more {
			break
		}
		u := &Unit{
			ID:    cleanAttr(attrs[fields.IDFields[level-1]]),
			Level: level,
			Name:  cleanAttr(attrs[fields.NameField]),
		}
		for _, f := range fields.IDFields[:level-1] {
			u.Parents = append(u.Parents, cleanAttr(attrs[f]))
		}
		if u.ID == "" {
			return nil, nil, fmt.Errorf("spatialprep: %s: unit %d has an empty %s",
				path, len(units), fields.IDFields[level-1])
		}
		if u.Geom, err = toPolygon(g); err != nil {
			return nil, nil, fmt.Errorf("spatialprep: %s: unit %s: %v", path, u.ID, err)
		}
		units = append(units, u)
	}
	return units, sr, nil
}

func cleanAttr(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

// toPolygon flattens a polygonal geometry into a single ring list.
func toPolygon(g geom.Geom) (geom.Polygon, error) {
	switch t := g.(type) {
	case geom.Polygon:
		return t, nil
	case geom.Polygonal:
		var p geom.Polygon
		for _, pp := range t.Polygons() {
			p = append(p, pp...)
		}
		return p, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("geometry type %T is not polygonal", g)
	}
}

// Attribute fields of persisted unit shapefiles.
var unitFields = []goshp.Field{
	goshp.StringField("UnitID", 64),
	goshp.NumberField("Level", 2),
	goshp.StringField("Parent1", 64),
	goshp.StringField("Parent2", 64),
	goshp.StringField("Parent3", 64),
	goshp.StringField("Name", 254),
	goshp.FloatField("GeoLon", 19, 8),
	goshp.FloatField("GeoLat", 19, 8),
	goshp.FloatField("PlanarX", 19, 8),
	goshp.FloatField("PlanarY", 19, 8),
}

func unitFieldNames() []string {
	o := make([]string, len(unitFields))
	for i, f := range unitFields {
		o[i] = cleanAttr(string(f.Name[:]))
	}
	return o
}

func shpBase(path string) string { return strings.TrimSuffix(path, ".shp") }

// WriteUnits writes s to a polygon shapefile at path, with the coordinate
// system definition in the accompanying .prj file.
func WriteUnits(path string, s *UnitSet) error {
	return writeShp(path, s.Proj, unitFields, func(e *shp.Encoder) error {
		for _, u := range s.Units {
			if len(u.Parents) >= NumLevels {
				return fmt.Errorf("spatialprep: unit %s has %d parents", u.Key(), len(u.Parents))
			}
			var parents [NumLevels - 1]string
			copy(parents[:], u.Parents)
			err := e.EncodeFields(u.Geom, u.ID, int(u.Level), parents[0], parents[1], parents[2], u.Name,
				u.GeoCentroid.X, u.GeoCentroid.Y, u.PlanarCentroid.X, u.PlanarCentroid.Y)
			if err != nil {
				return fmt.Errorf("spatialprep: writing unit %s to %s: %v", u.Key(), path, err)
			}
		}
		return nil
	})
}

// shpExts are the files of a shapefile.
var shpExts = []string{".shp", ".shx", ".dbf", ".prj"}

// writeShp writes a polygon shapefile and its .prj file next to path, and
// moves them into place once write has succeeded. An existing shapefile at
// path is left as it was if anything fails.
func writeShp(path, prj string, fields []goshp.Field, write func(*shp.Encoder) error) error {
	base := shpBase(path)
	tmp := base + ".tmp"
	e, err := shp.NewEncoderFromFields(tmp+".shp", goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("spatialprep: creating %s: %v", path, err)
	}
	if err := write(e); err != nil {
		e.Close()
		removeShp(tmp)
		return err
	}
	e.Close()
	err = os.WriteFile(tmp+".prj", []byte(prj), 0644)
	for _, ext := range shpExts {
		if err != nil {
			break
		}
		err = os.Rename(tmp+ext, base+ext)
	}
	if err != nil {
		removeShp(tmp)
		return fmt.Errorf("spatialprep: writing %s: %v", path, err)
	}
	return nil
}

func removeShp(base string) {
	for _, ext := range shpExts {
		os.Remove(base + ext)
	}
}

// ReadUnitsFile reads a unit shapefile written by WriteUnits.
func ReadUnitsFile(path string) (*UnitSet, error) {
	base := shpBase(path)
	prj, err := os.ReadFile(base + ".prj")
	if err != nil {
		return nil, fmt.Errorf("spatialprep: %v", err)
	}
	s := &UnitSet{Proj: strings.TrimSpace(string(prj))}
	if _, err := proj.Parse(s.Proj); err != nil {
		return nil, fmt.Errorf("spatialprep: parsing spatial reference of %s: %v", path, err)
	}
	d, err := shp.NewDecoder(base + ".shp")
	if err != nil {
		return nil, fmt.Errorf("spatialprep: opening %s: %v", path, err)
	}
	defer d.Close()

	names := unitFieldNames()
	for {
		g, attrs, more := d.DecodeRowFields(names...)
		if err := d.Error(); err != nil {
			return nil, fmt.Errorf("spatialprep: reading %s: %v", path, err)
		}
		if !more {
			break
		}
		u, err := unitFromAttrs(attrs)
		if err != nil {
			return nil, fmt.Errorf("spatialprep: reading %s: %v", path, err)
		}
		if s.Level == 0 {
			s.Level = u.Level
		} else if u.Level != s.Level {
			return nil, fmt.Errorf("spatialprep: %s mixes levels %d and %d", path, s.Level, u.Level)
		}
		if u.Geom, err = toPolygon(g); err != nil {
			return nil, fmt.Errorf("spatialprep: %s: unit %s: %v", path, u.ID, err)
		}
		s.Units = append(s.Units, u)
	}
	return s, nil
}

func unitFromAttrs(attrs map[string]string) (*Unit, error) {
	u := &Unit{ID: cleanAttr(attrs["UnitID"]), Name: cleanAttr(attrs["Name"])}
	l, err := strconv.Atoi(cleanAttr(attrs["Level"]))
	if err != nil {
		return nil, fmt.Errorf("unit %s: invalid level: %v", u.ID, err)
	}
	u.Level = Level(l)
	parents := []string{"Parent1", "Parent2", "Parent3"}
	for i := 0; i < l-1 && i < len(parents); i++ {
		u.Parents = append(u.Parents, cleanAttr(attrs[parents[i]]))
	}
	floats := make([]float64, 4)
	for i, f := range []string{"GeoLon", "GeoLat", "PlanarX", "PlanarY"} {
		if floats[i], err = strconv.ParseFloat(cleanAttr(attrs[f]), 64); err != nil {
			return nil, fmt.Errorf("unit %s: invalid %s: %v", u.ID, f, err)
		}
	}
	u.GeoCentroid = geom.Point{X: floats[0], Y: floats[1]}
	u.PlanarCentroid = geom.Point{X: floats[2], Y: floats[3]}
	return u, nil
}

// Fingerprint returns a content hash of units.
func Fingerprint(units []*Unit) string { return hash.Sum(units) }

// UnitBounds returns the combined bounds of units.
func UnitBounds(units []*Unit) *geom.Bounds {
	b := geom.NewBounds()
	for _, u := range units {
		b.Extend(u.Geom.Bounds())
	}
	return b
}
