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
	"encoding/gob"
	"fmt"
	"io"
	"strconv"

	"github.com/eurotiger/spatialprep/photoperiod"
)

// ShortestDay is the date of the shortest day of the year for one unit.
type ShortestDay struct {
	Level  Level
	UnitID string
	Day    int
	Month  int
}

// ShortestDays finds the shortest day in year at the geographic centroid
// latitude of each unit.
func ShortestDays(units []*Unit, year int) []ShortestDay {
	o := make([]ShortestDay, len(units))
	for i, u := range units {
		d := photoperiod.ShortestDay(u.GeoCentroid.Y, year)
		o[i] = ShortestDay{Level: u.Level, UnitID: u.ID, Day: d.Day(), Month: int(d.Month())}
	}
	return o
}

// WriteShortestDays gob-encodes days to w.
func WriteShortestDays(w io.Writer, days []ShortestDay) error {
	if err := gob.NewEncoder(w).Encode(days); err != nil {
		return fmt.Errorf("spatialprep: encoding shortest days: %v", err)
	}
	return nil
}

// ReadShortestDays decodes days written by WriteShortestDays.
func ReadShortestDays(r io.Reader) ([]ShortestDay, error) {
	var days []ShortestDay
	if err := gob.NewDecoder(r).Decode(&days); err != nil {
		return nil, fmt.Errorf("spatialprep: decoding shortest days: %v", err)
	}
	return days, nil
}

// WriteShortestDaysCSV writes days as CSV.
func WriteShortestDaysCSV(w io.Writer, days []ShortestDay) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"level", "unit_id", "day", "month"}); err != nil {
		return err
	}
	for _, d := range days {
		err := cw.Write([]string{strconv.Itoa(int(d.Level)), d.UnitID, strconv.Itoa(d.Day), strconv.Itoa(d.Month)})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
