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
	"github.com/ctessum/geom/index/rtree"
)

func finite(p geom.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// boundsPolygon returns the rectangle b, grown on each side by frac times
// its width and height.
func boundsPolygon(b *geom.Bounds, frac float64) geom.Polygon {
	dx := (b.Max.X - b.Min.X) * frac
	dy := (b.Max.Y - b.Min.Y) * frac
	x0, y0, x1, y1 := b.Min.X-dx, b.Min.Y-dy, b.Max.X+dx, b.Max.Y+dy
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0},
	}}
}

// contains reports whether inner lies entirely within outer.
func contains(outer, inner *geom.Bounds) bool {
	return inner.Min.X >= outer.Min.X && inner.Max.X <= outer.Max.X &&
		inner.Min.Y >= outer.Min.Y && inner.Max.Y <= outer.Max.Y
}

// clip returns the part of p inside b.
func clip(p geom.Polygon, b *geom.Bounds) geom.Polygon {
	pb := p.Bounds()
	if contains(b, pb) {
		return p
	}
	if !pb.Overlaps(b) {
		return nil
	}
	return intersect(p, boundsPolygon(b, 0))
}

// intersect returns the area shared by a and b as a single polygon.
func intersect(a, b geom.Polygon) geom.Polygon {
	var o geom.Polygon
	for _, p := range a.Intersection(b).Polygons() {
		o = append(o, p...)
	}
	return o
}

// cleanPolygon drops non-finite and repeated consecutive points, closes
// rings, and drops rings with fewer than four points or without area.
func cleanPolygon(p geom.Polygon) geom.Polygon {
	var o geom.Polygon
	for _, r := range p {
		ring := make([]geom.Point, 0, len(r)+1)
		for _, pt := range r {
			if !finite(pt) {
				continue
			}
			if n := len(ring); n > 0 && ring[n-1] == pt {
				continue
			}
			ring = append(ring, pt)
		}
		if n := len(ring); n > 0 && ring[0] != ring[n-1] {
			ring = append(ring, ring[0])
		}
		if len(ring) < 4 || (geom.Polygon{ring}).Area() == 0 {
			continue
		}
		o = append(o, ring)
	}
	return o
}

// validatePolygon returns a description of the first problem found in p,
// or "" if p is valid.
func validatePolygon(p geom.Polygon) string {
	if len(p) == 0 {
		return "empty geometry"
	}
	for i, r := range p {
		if len(r) < 4 {
			return fmt.Sprintf("ring %d has %d points", i, len(r))
		}
		if r[0] != r[len(r)-1] {
			return fmt.Sprintf("ring %d is not closed", i)
		}
		for _, pt := range r {
			if !finite(pt) {
				return fmt.Sprintf("ring %d has a non-finite coordinate", i)
			}
		}
	}
	if a := p.Area(); !(a > 0) {
		return fmt.Sprintf("area is %g", a)
	}
	if pt, bad := selfIntersection(p); bad {
		return fmt.Sprintf("self-intersection at (%g, %g)", pt.X, pt.Y)
	}
	return ""
}

// repairPolygon cleans p and rebuilds it through the polygon clipper if its
// edges cross.
func repairPolygon(p geom.Polygon) geom.Polygon {
	p = cleanPolygon(p)
	if len(p) == 0 {
		return p
	}
	if _, bad := selfIntersection(p); bad {
		p = cleanPolygon(intersect(p, boundsPolygon(p.Bounds(), 0.01)))
	}
	return p
}

type segment struct {
	geom.LineString
	ring, i, n int
}

// adjacent reports whether s and o share a vertex as consecutive edges of
// the same ring.
func (s *segment) adjacent(o *segment) bool {
	if s.ring != o.ring {
		return false
	}
	d := s.i - o.i
	return d == 1 || d == -1 || d == s.n-1 || d == 1-s.n
}

func orient(a, b, c geom.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment reports whether c, known to be collinear with a and b, lies
// strictly between them.
func onSegment(a, b, c geom.Point) bool {
	return c != a && c != b &&
		math.Min(a.X, b.X) <= c.X && c.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= c.Y && c.Y <= math.Max(a.Y, b.Y)
}

// crosses reports whether two segments intersect in a way that is not
// allowed between edges of a valid polygon, and where.
func crosses(s, o *segment) (geom.Point, bool) {
	a, b := s.LineString[0], s.LineString[1]
	c, d := o.LineString[0], o.LineString[1]
	d1, d2 := sign(orient(a, b, c)), sign(orient(a, b, d))
	d3, d4 := sign(orient(c, d, a)), sign(orient(c, d, b))
	if d1*d2 < 0 && d3*d4 < 0 {
		ab := geom.Point{X: b.X - a.X, Y: b.Y - a.Y}
		t := orient(c, d, a) / (orient(c, d, a) - orient(c, d, b))
		return geom.Point{X: a.X + t*ab.X, Y: a.Y + t*ab.Y}, true
	}
	if d1 == 0 && d2 == 0 {
		// Collinear: overlapping edges.
		for _, pt := range []geom.Point{c, d} {
			if onSegment(a, b, pt) {
				return pt, true
			}
		}
		for _, pt := range []geom.Point{a, b} {
			if onSegment(c, d, pt) {
				return pt, true
			}
		}
		if (a == c && b == d) || (a == d && b == c) {
			return a, true
		}
	}
	return geom.Point{}, false
}

// selfIntersection finds crossing or overlapping edges in p. Rings may touch
// at vertices.
func selfIntersection(p geom.Polygon) (geom.Point, bool) {
	tree := rtree.NewTree(25, 50)
	for ri, r := range p {
		n := len(r) - 1
		for i := 0; i < n; i++ {
			s := &segment{LineString: geom.LineString{r[i], r[i+1]}, ring: ri, i: i, n: n}
			for _, oI := range tree.SearchIntersect(s.Bounds()) {
				o := oI.(*segment)
				if s.adjacent(o) {
					// Consecutive edges only conflict if they fold back.
					a, b, c := o.LineString[0], o.LineString[1], s.LineString[1]
					if o.LineString[1] != s.LineString[0] {
						a, b, c = s.LineString[0], s.LineString[1], o.LineString[1]
					}
					if orient(a, b, c) == 0 && (b.X-a.X)*(c.X-b.X)+(b.Y-a.Y)*(c.Y-b.Y) < 0 {
						return b, true
					}
					continue
				}
				if pt, ok := crosses(s, o); ok {
					return pt, true
				}
			}
			tree.Insert(s)
		}
	}
	return geom.Point{}, false
}

// centroid returns the area-weighted centroid of p, treating rings that lie
// inside an odd number of other rings as holes.
func centroid(p geom.Polygon) (geom.Point, error) {
	var a, x, y float64
	for i, r := range p {
		ring := geom.Polygon{r}
		w := ring.Area()
		if w == 0 {
			continue
		}
		if isHole(p, i) {
			w = -w
		}
		c := ring.Centroid()
		a += w
		x += c.X * w
		y += c.Y * w
	}
	o := geom.Point{X: x / a, Y: y / a}
	if !(a > 0) || !finite(o) {
		return o, fmt.Errorf("centroid is undefined for a geometry with area %g", a)
	}
	return o, nil
}

func isHole(p geom.Polygon, i int) bool {
	if len(p) == 1 {
		return false
	}
	others := make(geom.Polygon, 0, len(p)-1)
	others = append(others, p[:i]...)
	others = append(others, p[i+1:]...)
	for _, pt := range p[i] {
		switch pt.Within(others) {
		case geom.Inside:
			return true
		case geom.Outside:
			return false
		}
	}
	return false
}
