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
	"testing"

	"github.com/ctessum/geom/proj"

	"github.com/eurotiger/spatialprep/internal/geotiff"
)

func TestRasterCRS(t *testing.T) {
	const utm32 = "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs"
	const utm33 = "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs"
	geoRef := geotiff.Georef{X0: 9.75, Y0: 47.25, Dx: 0.5, Dy: 0.5}
	utmRef := geotiff.Georef{X0: 500000, Y0: 5200000, Dx: 1000, Dy: 1000}
	tests := []struct {
		name       string
		georef     geotiff.Georef
		epsg       int
		geographic bool
		proj       string
		wantName   string
		wantErr    bool
	}{
		{name: "geographic from file", georef: geoRef, epsg: 4326, geographic: true, wantName: "longlat"},
		{name: "geographic match", georef: geoRef, epsg: 4326, geographic: true, proj: WGS84, wantName: "longlat"},
		{name: "geographic conflict", georef: geoRef, epsg: 4326, geographic: true, proj: testPlanarProj, wantErr: true},
		{name: "utm from file", georef: utmRef, epsg: 32632, wantName: "utm"},
		{name: "utm match", georef: utmRef, epsg: 32632, proj: utm32, wantName: "utm"},
		{name: "utm conflict", georef: utmRef, epsg: 32632, proj: utm33, wantErr: true},
		{name: "etrs89 utm", georef: utmRef, epsg: 25832, proj: utm32, wantName: "utm"},
		{name: "no crs", georef: utmRef, wantErr: true},
		{name: "setting only", georef: utmRef, proj: testPlanarProj, wantName: "aea"},
		{name: "laea", georef: utmRef, epsg: 3035, wantErr: true},
		{name: "laea with setting", georef: utmRef, epsg: 3035, proj: testPlanarProj, wantName: "aea"},
		{name: "unknown", georef: utmRef, epsg: 2056, wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := geotiff.NewRaster(test.georef, 100, 100, geotiff.Uint8, nil)
			r.EPSG, r.Geographic = test.epsg, test.geographic
			var configured *proj.SR
			if test.proj != "" {
				var err error
				if configured, err = proj.Parse(test.proj); err != nil {
					t.Fatal(err)
				}
			}
			sr, err := rasterCRS(r, configured)
			if (err != nil) != test.wantErr {
				t.Fatalf("have error %v, want error %v", err, test.wantErr)
			}
			if err == nil && sr.Name != test.wantName {
				t.Errorf("have projection %q but want %q", sr.Name, test.wantName)
			}
		})
	}
}

func TestEPSGProjParses(t *testing.T) {
	for _, code := range []int{4326, 4258, 4269, 3857, 32601, 32632, 32760, 25828, 25838} {
		def, err := EPSGProj(code)
		if err != nil {
			t.Errorf("EPSG:%d: %v", code, err)
			continue
		}
		if _, err := proj.Parse(def); err != nil {
			t.Errorf("EPSG:%d: parsing %q: %v", code, def, err)
		}
	}
	for _, code := range []int{3035, 32600, 32661, 2056} {
		if _, err := EPSGProj(code); err == nil {
			t.Errorf("EPSG:%d: expected an error", code)
		}
	}
}
