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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"

	"github.com/eurotiger/spatialprep/internal/geotiff"
)

const testPlanarProj = "+proj=aea +lat_1=43 +lat_2=62 +lat_0=30 +lon_0=10 +x_0=0 +y_0=0 +ellps=intl +units=m +no_defs"

var (
	testIDFields   = []string{"GID_0", "GID_1", "GID_2", "GID_3"}
	testNameFields = []string{"COUNTRY", "NAME_1", "NAME_2", "NAME_3"}
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}}
}

// sameShape compares the area and extent of two polygons, ignoring ring
// orientation and starting point.
func sameShape(a, b geom.Polygon) bool {
	if len(a) != len(b) || math.Abs(a.Area()-b.Area()) > 1e-9 {
		return false
	}
	ba, bb := a.Bounds(), b.Bounds()
	return math.Abs(ba.Min.X-bb.Min.X) < 1e-9 && math.Abs(ba.Min.Y-bb.Min.Y) < 1e-9 &&
		math.Abs(ba.Max.X-bb.Max.X) < 1e-9 && math.Abs(ba.Max.Y-bb.Max.Y) < 1e-9
}

// srcUnit is a unit of a source boundary file; ids holds the IDs of the unit
// and its parents, starting at level 1.
type srcUnit struct {
	ids  []string
	name string
	g    geom.Polygon
}

// writeSourceShp writes a boundary file laid out like the GADM levels.
func writeSourceShp(t *testing.T, path string, level int, units []srcUnit) {
	t.Helper()
	var fields []goshp.Field
	for _, f := range testIDFields[:level] {
		fields = append(fields, goshp.StringField(f, 32))
	}
	fields = append(fields, goshp.StringField(testNameFields[level-1], 64))
	e, err := shp.NewEncoderFromFields(path, goshp.POLYGON, fields...)
	if err != nil {
		t.Fatal(err)
	}
	for _, u := range units {
		var vals []interface{}
		for _, id := range u.ids {
			vals = append(vals, id)
		}
		vals = append(vals, u.name)
		if err := e.EncodeFields(u.g, vals...); err != nil {
			t.Fatal(err)
		}
	}
	e.Close()
	prj := strings.TrimSuffix(path, ".shp") + ".prj"
	if err := os.WriteFile(prj, []byte(WGS84), 0644); err != nil {
		t.Fatal(err)
	}
}

// writeTestRaster writes a geographic int32 GeoTIFF.
func writeTestRaster(t *testing.T, path string, g geotiff.Georef, nx, ny int, data []int32, noData int32) {
	t.Helper()
	writeTestRasterEPSG(t, path, g, nx, ny, data, noData, geotiff.EPSGWGS84)
}

// writeTestRasterEPSG writes an int32 GeoTIFF that names epsg as a
// geographic coordinate system, or no coordinate system if epsg is 0.
func writeTestRasterEPSG(t *testing.T, path string, g geotiff.Georef, nx, ny int, data []int32, noData, epsg int32) {
	t.Helper()
	img := &geotiff.Int32Image{
		Georef:     g,
		Nx:         nx,
		Ny:         ny,
		Data:       data,
		EPSG:       int(epsg),
		Geographic: true,
		NoData:     noData,
		HasNoData:  true,
	}
	if err := geotiff.WriteInt32(path, img); err != nil {
		t.Fatal(err)
	}
}

func testConfig(dir string) Config {
	files := make([]string, NumLevels)
	for i := range files {
		files[i] = filepath.Join(dir, "src", "gadm_"+string(rune('0'+i))+".shp")
	}
	return Config{
		OutputDir:       filepath.Join(dir, "out"),
		NumWorkers:      2,
		BoundaryFiles:   files,
		IDFields:        testIDFields,
		NameFields:      testNameFields,
		GeoProj:         WGS84,
		PlanarProj:      testPlanarProj,
		BBox:            geom.Bounds{Min: geom.Point{X: -25, Y: 34}, Max: geom.Point{X: 45, Y: 72}},
		LandCoverFile:   filepath.Join(dir, "src", "landcover.tif"),
		CellSize:        0.5,
		ExpansionFactor: 1.1,
		Origin:          NorthWest,
		Year:            2023,
	}
}
