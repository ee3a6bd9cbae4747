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

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
)

func TestClip(t *testing.T) {
	holed := append(square(0, 0, 4, 4), geom.Path{{X: 1, Y: 1}, {X: 1, Y: 3}, {X: 3, Y: 3}, {X: 3, Y: 1}, {X: 1, Y: 1}})
	for _, test := range []struct {
		name string
		p    geom.Polygon
		b    geom.Bounds
		area float64
	}{
		{name: "inside", p: square(1, 1, 2, 2), b: geom.Bounds{Min: geom.Point{X: 0, Y: 0}, Max: geom.Point{X: 4, Y: 4}}, area: 1},
		{name: "straddling", p: square(0, 0, 4, 4), b: geom.Bounds{Min: geom.Point{X: 1.5, Y: -1}, Max: geom.Point{X: 3.5, Y: 2.5}}, area: 5},
		{name: "hole", p: holed, b: geom.Bounds{Min: geom.Point{X: -1, Y: -1}, Max: geom.Point{X: 2, Y: 5}}, area: 2*4 - 1*2},
		{name: "outside", p: square(0, 0, 1, 1), b: geom.Bounds{Min: geom.Point{X: 2, Y: 2}, Max: geom.Point{X: 3, Y: 3}}, area: 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			o := clip(test.p, &test.b)
			if a := o.Area(); !floats.EqualWithinAbsOrRel(a, test.area, 1e-9, 1e-9) {
				t.Errorf("have area %g but want %g", a, test.area)
			}
			if test.area > 0 && !contains(&test.b, o.Bounds()) {
				t.Errorf("clipped bounds %+v are outside of %+v", *o.Bounds(), test.b)
			}
		})
	}
}
