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
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/eurotiger/spatialprep/internal/geotiff"
)

const etrs89 = "+ellps=GRS80 +towgs84=0,0,0,0,0,0,0"

// EPSGProj returns the proj4 definition of an EPSG code. Only codes whose
// projection can be transformed are known: geographic WGS84, NAD83 and
// ETRS89, web mercator, and the WGS84 and ETRS89 UTM zones.
func EPSGProj(code int) (string, error) {
	switch {
	case code == geotiff.EPSGWGS84:
		return WGS84, nil
	case code == 4269:
		return "+proj=longlat +datum=NAD83 +no_defs", nil
	case code == 4258:
		return "+proj=longlat " + etrs89 + " +no_defs", nil
	case code == 3857:
		return "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs", nil
	case code > 32600 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600), nil
	case code > 32700 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700), nil
	case code >= 25828 && code <= 25838:
		return fmt.Sprintf("+proj=utm +zone=%d %s +units=m +no_defs", code-25800, etrs89), nil
	case code == 3035:
		return "", fmt.Errorf("EPSG:3035 (ETRS89 Lambert azimuthal equal-area) cannot be transformed; " +
			"reproject the raster, for example to its UTM zone")
	}
	return "", fmt.Errorf("EPSG:%d is not a known coordinate system", code)
}

// rasterCRS returns the spatial reference of r. configured is the
// LandCover.Proj setting, which may be nil. It is an error if the raster
// names a coordinate system that configured does not match, or if neither
// gives one.
func rasterCRS(r *geotiff.Raster, configured *proj.SR) (*proj.SR, error) {
	if r.EPSG == 0 {
		if configured == nil {
			return nil, fmt.Errorf("the raster does not name its coordinate system; set LandCover.Proj")
		}
		return configured, nil
	}
	def, err := EPSGProj(r.EPSG)
	var fromFile *proj.SR
	if err == nil {
		fromFile, err = proj.Parse(def)
	}
	if configured == nil {
		if err != nil {
			return nil, fmt.Errorf("raster coordinate system: %v", err)
		}
		return fromFile, nil
	}
	if isGeographic(configured) != r.Geographic {
		return nil, fmt.Errorf("LandCover.Proj %s does not match the raster's %s EPSG:%d",
			crsKind(isGeographic(configured)), crsKind(r.Geographic), r.EPSG)
	}
	if fromFile == nil {
		// The code is not known, so the setting is trusted.
		return configured, nil
	}
	same, err := equivalent(fromFile, configured, rasterPoints(r), math.Min(r.Dx, r.Dy)/2)
	if err != nil {
		return nil, err
	}
	if !same {
		return nil, fmt.Errorf("LandCover.Proj does not match the raster's EPSG:%d", r.EPSG)
	}
	return configured, nil
}

func isGeographic(sr *proj.SR) bool { return sr.Name == "longlat" }

func crsKind(geographic bool) string {
	if geographic {
		return "geographic"
	}
	return "projected"
}

// rasterPoints returns the corners and center of r.
func rasterPoints(r *geotiff.Raster) []geom.Point {
	b := r.Bounds()
	return []geom.Point{
		b.Min, b.Max,
		{X: b.Min.X, Y: b.Max.Y}, {X: b.Max.X, Y: b.Min.Y},
		{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2},
	}
}

// equivalent reports whether transforming pts from a to b moves none of
// them by more than tol.
func equivalent(a, b *proj.SR, pts []geom.Point, tol float64) (bool, error) {
	if a == b {
		return true, nil
	}
	t, err := a.NewTransform(b)
	if err != nil {
		return false, fmt.Errorf("comparing coordinate systems: %v", err)
	}
	for _, p := range pts {
		q, err := p.Transform(t)
		if err != nil {
			return false, nil
		}
		qp := q.(geom.Point)
		if !finite(qp) || math.Abs(qp.X-p.X) > tol || math.Abs(qp.Y-p.Y) > tol {
			return false, nil
		}
	}
	return true, nil
}
