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
along with spatialprep.  If not, see <http://www.gnu.org/licenses/>.*/

package hash

import "testing"

type rec struct {
	ID   string
	Vals []float64
}

func TestSum(t *testing.T) {
	a := Sum([]rec{{ID: "a", Vals: []float64{1, 2}}})
	b := Sum([]rec{{ID: "a", Vals: []float64{1, 2}}})
	c := Sum([]rec{{ID: "a", Vals: []float64{1, 3}}})
	if a != b {
		t.Errorf("equal values hashed differently: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different values hashed the same")
	}
	if len(a) != 32 {
		t.Errorf("have digest length %d but want 32", len(a))
	}
}

func TestSumFallback(t *testing.T) {
	// gob cannot encode a func field, so this uses the spew dump.
	type withFunc struct {
		F func()
	}
	a := Sum(withFunc{})
	if a != Sum(withFunc{}) {
		t.Error("fallback digest is not deterministic")
	}
}
