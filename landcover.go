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
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Category is a coarse land-cover category.
type Category int

// Land-cover categories. Unmapped holds the area of raster codes that are
// not in the class key.
const (
	UrbanContinuous Category = iota
	UrbanDiscontinuous
	RoadsRails
	GreenUrban
	SportsLeisure
	OtherArtificial
	Agricultural
	ForestScrub
	Open
	WetlandInland
	WetlandMarine
	WaterInland
	WaterMarine
	NoData
	Unmapped

	// NumCategories is the number of categories.
	NumCategories = int(Unmapped) + 1
)

var categoryNames = [NumCategories]string{
	"urban_continuous",
	"urban_discontinuous",
	"roads_rails",
	"green_urban",
	"sports_leisure",
	"other_artificial",
	"agricultural",
	"forest_scrub",
	"open",
	"wetland_inland",
	"wetland_marine",
	"water_inland",
	"water_marine",
	"no_data",
	"unmapped",
}

func (c Category) String() string {
	if c < 0 || int(c) >= NumCategories {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory returns the category with the given column name.
func ParseCategory(name string) (Category, error) {
	for i, n := range categoryNames {
		if n == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("spatialprep: unknown land-cover category %q", name)
}

// Class describes one raster code of the land-cover legend.
type Class struct {
	Code int

	// CLC is the three-digit CORINE Land Cover nomenclature code.
	CLC      int
	Label    string
	Category Category
}

// ClassKey maps raster codes to classes.
type ClassKey map[int]Class

// Categorize returns the category of code, or Unmapped.
func (k ClassKey) Categorize(code int) Category {
	if c, ok := k[code]; ok {
		return c.Category
	}
	return Unmapped
}

// Classes returns the classes of k sorted by code.
func (k ClassKey) Classes() []Class {
	o := make([]Class, 0, len(k))
	for _, c := range k {
		o = append(o, c)
	}
	sort.Slice(o, func(i, j int) bool { return o[i].Code < o[j].Code })
	return o
}

// DefaultClassKey returns the key of the CORINE Land Cover raster legend,
// where grid codes 1 to 44 are the land-cover classes and 48 is no data.
func DefaultClassKey() ClassKey {
	classes := []Class{
		{1, 111, "Continuous urban fabric", UrbanContinuous},
		{2, 112, "Discontinuous urban fabric", UrbanDiscontinuous},
		{3, 121, "Industrial or commercial units", OtherArtificial},
		{4, 122, "Road and rail networks and associated land", RoadsRails},
		{5, 123, "Port areas", OtherArtificial},
		{6, 124, "Airports", OtherArtificial},
		{7, 131, "Mineral extraction sites", OtherArtificial},
		{8, 132, "Dump sites", OtherArtificial},
		{9, 133, "Construction sites", OtherArtificial},
		{10, 141, "Green urban areas", GreenUrban},
		{11, 142, "Sport and leisure facilities", SportsLeisure},
		{12, 211, "Non-irrigated arable land", Agricultural},
		{13, 212, "Permanently irrigated land", Agricultural},
		{14, 213, "Rice fields", Agricultural},
		{15, 221, "Vineyards", Agricultural},
		{16, 222, "Fruit trees and berry plantations", Agricultural},
		{17, 223, "Olive groves", Agricultural},
		{18, 231, "Pastures", Agricultural},
		{19, 241, "Annual crops associated with permanent crops", Agricultural},
		{20, 242, "Complex cultivation patterns", Agricultural},
		{21, 243, "Land principally occupied by agriculture with significant areas of natural vegetation", Agricultural},
		{22, 244, "Agro-forestry areas", Agricultural},
		{23, 311, "Broad-leaved forest", ForestScrub},
		{24, 312, "Coniferous forest", ForestScrub},
		{25, 313, "Mixed forest", ForestScrub},
		{26, 321, "Natural grasslands", ForestScrub},
		{27, 322, "Moors and heathland", ForestScrub},
		{28, 323, "Sclerophyllous vegetation", ForestScrub},
		{29, 324, "Transitional woodland-shrub", ForestScrub},
		{30, 331, "Beaches, dunes, sands", Open},
		{31, 332, "Bare rocks", Open},
		{32, 333, "Sparsely vegetated areas", Open},
		{33, 334, "Burnt areas", Open},
		{34, 335, "Glaciers and perpetual snow", Open},
		{35, 411, "Inland marshes", WetlandInland},
		{36, 412, "Peat bogs", WetlandInland},
		{37, 421, "Salt marshes", WetlandMarine},
		{38, 422, "Salines", WetlandMarine},
		{39, 423, "Intertidal flats", WetlandMarine},
		{40, 511, "Water courses", WaterInland},
		{41, 512, "Water bodies", WaterInland},
		{42, 521, "Coastal lagoons", WaterMarine},
		{43, 522, "Estuaries", WaterMarine},
		{44, 523, "Sea and ocean", WaterMarine},
		{48, 999, "NODATA", NoData},
	}
	k := make(ClassKey, len(classes))
	for _, c := range classes {
		k[c.Code] = c
	}
	return k
}

// ReadClassKey reads a class key from TOML of the form
//
//	[[Class]]
//	Code = 1
//	CLC = 111
//	Label = "Continuous urban fabric"
//	Category = "urban_continuous"
func ReadClassKey(r io.Reader) (ClassKey, error) {
	var f struct {
		Class []struct {
			Code     int
			CLC      int
			Label    string
			Category string
		}
	}
	if _, err := toml.DecodeReader(r, &f); err != nil {
		return nil, fmt.Errorf("spatialprep: decoding class key: %v", err)
	}
	if len(f.Class) == 0 {
		return nil, fmt.Errorf("spatialprep: class key has no classes")
	}
	k := make(ClassKey, len(f.Class))
	for _, c := range f.Class {
		if _, ok := k[c.Code]; ok {
			return nil, &DuplicateError{Table: "class key", Key: strconv.Itoa(c.Code)}
		}
		cat, err := ParseCategory(c.Category)
		if err != nil {
			return nil, err
		}
		if cat == Unmapped {
			return nil, fmt.Errorf("spatialprep: class %d cannot be assigned to the %s category", c.Code, cat)
		}
		k[c.Code] = Class{Code: c.Code, CLC: c.CLC, Label: c.Label, Category: cat}
	}
	return k, nil
}

// WriteClassKey writes k as CSV.
func WriteClassKey(w io.Writer, k ClassKey) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"code", "clc_code", "label", "category"}); err != nil {
		return err
	}
	for _, c := range k.Classes() {
		if err := cw.Write([]string{strconv.Itoa(c.Code), strconv.Itoa(c.CLC), c.Label, c.Category.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CoverageRecord is the area of one raster code within one unit.
type CoverageRecord struct {
	Level  Level
	UnitID string
	Code   int
	Area   float64
}

// CoverageRow holds the area of each land-cover category within one unit.
type CoverageRow struct {
	Level  Level
	UnitID string
	Area   [NumCategories]float64
}

// Key returns the key of the unit of r.
func (r *CoverageRow) Key() UnitKey { return UnitKey{Level: r.Level, ID: r.UnitID} }

// UnmappedCode reports a raster code that is not in the class key.
type UnmappedCode struct {
	Code  int
	Area  float64
	Units int
}

// Pivot aggregates records by unit and category, returning one row per unit
// sorted by level and unit ID. Area of codes that are not in key is kept in
// the Unmapped column, and the codes are also returned.
func Pivot(records []CoverageRecord, key ClassKey) ([]CoverageRow, []UnmappedCode, error) {
	type codeKey struct {
		unit UnitKey
		code int
	}
	seen := make(map[codeKey]bool, len(records))
	rows := make(map[UnitKey]*CoverageRow)
	unmapped := make(map[int]*UnmappedCode)
	for _, r := range records {
		uk := UnitKey{Level: r.Level, ID: r.UnitID}
		ck := codeKey{unit: uk, code: r.Code}
		if seen[ck] {
			return nil, nil, &DuplicateError{Table: "land-cover coverage", Key: fmt.Sprintf("%s code %d", uk, r.Code)}
		}
		seen[ck] = true
		row, ok := rows[uk]
		if !ok {
			row = &CoverageRow{Level: r.Level, UnitID: r.UnitID}
			rows[uk] = row
		}
		cat := key.Categorize(r.Code)
		row.Area[cat] += r.Area
		if cat == Unmapped {
			u, ok := unmapped[r.Code]
			if !ok {
				u = &UnmappedCode{Code: r.Code}
				unmapped[r.Code] = u
			}
			u.Area += r.Area
			u.Units++
		}
	}

	o := make([]CoverageRow, 0, len(rows))
	for _, r := range rows {
		o = append(o, *r)
	}
	sortRows(o)
	um := make([]UnmappedCode, 0, len(unmapped))
	for _, u := range unmapped {
		um = append(um, *u)
	}
	sort.Slice(um, func(i, j int) bool { return um[i].Code < um[j].Code })
	return o, um, nil
}

func sortRows(rows []CoverageRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Level != rows[j].Level {
			return rows[i].Level < rows[j].Level
		}
		return rows[i].UnitID < rows[j].UnitID
	})
}

func coverageHeader() []string {
	return append([]string{"level", "unit_id"}, categoryNames[:]...)
}

// WriteCoverage writes rows as CSV with one column per category.
func WriteCoverage(w io.Writer, rows []CoverageRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(coverageHeader()); err != nil {
		return err
	}
	line := make([]string, 2+NumCategories)
	for _, r := range rows {
		line[0] = strconv.Itoa(int(r.Level))
		line[1] = r.UnitID
		for i, a := range r.Area {
			line[2+i] = strconv.FormatFloat(a, 'g', -1, 64)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCoverage reads a table written by WriteCoverage. The header must match
// the category columns exactly.
func ReadCoverage(r io.Reader) ([]CoverageRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2 + NumCategories
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("spatialprep: reading coverage header: %v", err)
	}
	for i, h := range coverageHeader() {
		if header[i] != h {
			return nil, fmt.Errorf("spatialprep: coverage column %d is %q but should be %q", i, header[i], h)
		}
	}
	var rows []CoverageRow
	seen := make(map[UnitKey]bool)
	for {
		line, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("spatialprep: reading coverage: %v", err)
		}
		l, err := strconv.Atoi(line[0])
		if err != nil {
			return nil, fmt.Errorf("spatialprep: reading coverage: invalid level %q", line[0])
		}
		row := CoverageRow{Level: Level(l), UnitID: line[1]}
		for i := range row.Area {
			if row.Area[i], err = strconv.ParseFloat(line[2+i], 64); err != nil {
				return nil, fmt.Errorf("spatialprep: reading coverage for unit %s: %v", row.Key(), err)
			}
		}
		if seen[row.Key()] {
			return nil, &DuplicateError{Table: "land-cover coverage", Key: row.Key().String()}
		}
		seen[row.Key()] = true
		rows = append(rows, row)
	}
	return rows, nil
}
