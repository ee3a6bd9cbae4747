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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"
)

// Curator validates, repairs and crops administrative units, and expresses
// them in geographic and planar coordinates.
type Curator struct {
	GeoSR, PlanarSR *proj.SR

	// BBox is the study region in geographic coordinates.
	BBox *geom.Bounds

	Workers int
	Log     logrus.FieldLogger
}

type curated struct {
	geo, planar *Unit
	repaired    bool
}

// Curate curates units whose geometries are in the src spatial reference.
// Units outside of the bounding box are dropped, so the returned slices can
// be shorter than units. Both returned slices hold the same units in the
// same order.
func (c *Curator) Curate(ctx context.Context, units []*Unit, src *proj.SR) (geo, planar []*Unit, err error) {
	if err := checkDuplicateUnits(units); err != nil {
		return nil, nil, err
	}
	toGeo, err := src.NewTransform(c.GeoSR)
	if err != nil {
		return nil, nil, fmt.Errorf("spatialprep: creating geographic transform: %v", err)
	}
	toPlanar, err := c.GeoSR.NewTransform(c.PlanarSR)
	if err != nil {
		return nil, nil, fmt.Errorf("spatialprep: creating planar transform: %v", err)
	}

	results, err := Map(ctx, c.Workers, units, func(_ context.Context, u *Unit) (curated, error) {
		return c.curateUnit(u, toGeo, toPlanar)
	})
	if err != nil {
		return nil, nil, err
	}
	log := c.log()
	var repaired int
	for _, r := range results {
		if r.geo == nil {
			continue
		}
		if r.repaired {
			repaired++
		}
		geo = append(geo, r.geo)
		planar = append(planar, r.planar)
	}
	if len(units) > 0 {
		log.WithFields(logrus.Fields{
			"level":    units[0].Level,
			"input":    len(units),
			"output":   len(geo),
			"repaired": repaired,
		}).Info("curated boundaries")
	}
	return geo, planar, nil
}

func (c *Curator) log() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *Curator) curateUnit(u *Unit, toGeo, toPlanar proj.Transformer) (curated, error) {
	var r curated
	invalid := func(reason string) (curated, error) {
		return r, &InvalidGeometryError{Unit: u.Key(), Reason: reason}
	}
	g, err := u.Geom.Transform(toGeo)
	if err != nil {
		return r, fmt.Errorf("spatialprep: transforming unit %s to geographic coordinates: %v", u.Key(), err)
	}
	gp := cleanPolygon(g.(geom.Polygon))
	if validatePolygon(gp) != "" {
		r.repaired = true
		gp = repairPolygon(gp)
		if reason := validatePolygon(gp); reason != "" {
			return invalid(reason)
		}
	}

	if !contains(c.BBox, gp.Bounds()) {
		gp = cleanPolygon(clip(gp, c.BBox))
		if len(gp) == 0 {
			return r, nil
		}
		if reason := validatePolygon(gp); reason != "" {
			return invalid("after cropping: " + reason)
		}
	}

	pg, err := gp.Transform(toPlanar)
	if err != nil {
		return r, fmt.Errorf("spatialprep: transforming unit %s to planar coordinates: %v", u.Key(), err)
	}
	pp := pg.(geom.Polygon)
	if reason := validatePolygon(pp); reason != "" {
		return invalid("in planar coordinates: " + reason)
	}

	geoC, err := centroid(gp)
	if err != nil {
		return invalid(err.Error())
	}
	planarC, err := centroid(pp)
	if err != nil {
		return invalid(err.Error())
	}
	r.geo = &Unit{
		ID: u.ID, Level: u.Level, Parents: u.Parents, Name: u.Name,
		Geom: gp, GeoCentroid: geoC, PlanarCentroid: planarC,
	}
	planar := *r.geo
	planar.Geom = pp
	r.planar = &planar
	return r, nil
}

func checkDuplicateUnits(units []*Unit) error {
	seen := make(map[UnitKey]bool, len(units))
	for _, u := range units {
		if seen[u.Key()] {
			return &DuplicateError{Table: fmt.Sprintf("level %d boundaries", u.Level), Key: u.ID}
		}
		seen[u.Key()] = true
	}
	return nil
}
