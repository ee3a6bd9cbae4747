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
	"strings"
)

// InvalidGeometryError is returned when a unit geometry is still invalid
// after repair.
type InvalidGeometryError struct {
	Unit   UnitKey
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("spatialprep: unit %s has invalid geometry that could not be repaired: %s", e.Unit, e.Reason)
}

// EmptyUnitsError lists units that do not intersect any sampling grid cell.
type EmptyUnitsError struct {
	Units []UnitKey
}

func (e *EmptyUnitsError) Error() string {
	s := make([]string, len(e.Units))
	for i, u := range e.Units {
		s[i] = u.String()
	}
	const max = 20
	if len(s) > max {
		s = append(s[:max], fmt.Sprintf("and %d more", len(e.Units)-max))
	}
	return fmt.Sprintf("spatialprep: %d units do not intersect any sampling grid cell: %s",
		len(e.Units), strings.Join(s, ", "))
}

// DuplicateError is returned when a table that should have one row per key
// has more than one.
type DuplicateError struct {
	Table string
	Key   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("spatialprep: duplicate key %s in %s", e.Key, e.Table)
}
