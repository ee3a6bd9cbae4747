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

// Package photoperiod calculates day length from latitude and date using the
// CBM model of Forsythe et al. (1995), "A model comparison for daylength as a
// function of latitude and day of year", Ecological Modelling 80:87-95.
package photoperiod

import (
	"math"
	"time"
)

// Twilight is the depression of the sun's center below the horizon at
// sunrise and sunset, in degrees. 0.8333 accounts for atmospheric refraction
// and the radius of the solar disc.
const Twilight = 0.8333

// Declination returns the solar declination in radians on day of year yday.
func Declination(yday int) float64 {
	theta := 0.2163108 + 2*math.Atan(0.9671396*math.Tan(0.00860*float64(yday-186)))
	return math.Asin(0.39795 * math.Cos(theta))
}

// DayLength returns the number of hours between sunrise and sunset at
// latitude lat (degrees north) on day of year yday. It is 24 during polar
// day and 0 during polar night.
func DayLength(lat float64, yday int) float64 {
	phi := Declination(yday)
	l := lat * math.Pi / 180
	x := (math.Sin(Twilight*math.Pi/180) + math.Sin(l)*math.Sin(phi)) / (math.Cos(l) * math.Cos(phi))
	switch {
	case x >= 1:
		return 24
	case x <= -1:
		return 0
	}
	return 24 - 24/math.Pi*math.Acos(x)
}

// ShortestDay returns the date in year with the shortest day at latitude
// lat. Dates are scanned in order, so the earliest of several equally short
// days is returned.
func ShortestDay(lat float64, year int) time.Time {
	t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	best, bestLen := t, math.Inf(1)
	for ; t.Year() == year; t = t.AddDate(0, 0, 1) {
		if d := DayLength(lat, t.YearDay()); d < bestLen {
			best, bestLen = t, d
		}
	}
	return best
}
