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

package era5

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

// Record is one value of one variable at one place and time.
type Record struct {
	Latitude, Longitude float32
	Time                time.Time

	// Variable is the requested variable name and GRIBVariable is the short
	// name of the variable in the file.
	Variable, GRIBVariable string

	Value       float32
	Year, Month int
}

// timeNames are the accepted names of the time coordinate, in order of
// preference.
var timeNames = []string{"valid_time", "time"}

// ReadFile reads every gridded variable, with dimensions time, latitude and
// longitude, from the NetCDF classic file at path. Packed values are
// unpacked and missing values are dropped. The records are ordered by
// variable, time, latitude and longitude.
func ReadFile(path, variable string, year, month int) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}
	nc, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("era5: opening %s: %v", path, err)
	}
	r := &ncReader{nc: nc, size: info.Size()}

	timeName := ""
	for _, n := range timeNames {
		if r.has(n) {
			timeName = n
			break
		}
	}
	if timeName == "" {
		return nil, fmt.Errorf("era5: %s has no time coordinate", path)
	}
	times, err := r.times(timeName)
	if err != nil {
		return nil, fmt.Errorf("era5: %s: %v", path, err)
	}
	lats, err := r.coord("latitude")
	if err != nil {
		return nil, fmt.Errorf("era5: %s: %v", path, err)
	}
	lons, err := r.coord("longitude")
	if err != nil {
		return nil, fmt.Errorf("era5: %s: %v", path, err)
	}

	var vars []string
	for _, v := range nc.Header.Variables() {
		d := nc.Header.Dimensions(v)
		if len(d) == 3 && d[0] == timeName && d[1] == "latitude" && d[2] == "longitude" {
			vars = append(vars, v)
		}
	}
	sort.Strings(vars)

	var o []Record
	for _, v := range vars {
		data, err := r.unpacked(v)
		if err != nil {
			return nil, fmt.Errorf("era5: %s: reading %s: %v", path, v, err)
		}
		if len(data) != len(times)*len(lats)*len(lons) {
			return nil, fmt.Errorf("era5: %s: variable %s has %d values for %d times, %d latitudes and %d longitudes",
				path, v, len(data), len(times), len(lats), len(lons))
		}
		i := 0
		for _, t := range times {
			for _, lat := range lats {
				for _, lon := range lons {
					val := data[i]
					i++
					if math.IsNaN(val) {
						continue
					}
					o = append(o, Record{
						Latitude:     float32(lat),
						Longitude:    float32(lon),
						Time:         t,
						Variable:     variable,
						GRIBVariable: v,
						Value:        float32(val),
						Year:         year,
						Month:        month,
					})
				}
			}
		}
	}
	return o, nil
}

type ncReader struct {
	nc   *cdf.File
	size int64
}

func (r *ncReader) has(v string) bool { return r.nc.Header.Lengths(v) != nil }

// read reads all values of v as float64.
func (r *ncReader) read(v string) ([]float64, error) {
	h := r.nc.Header
	if !r.has(v) {
		return nil, fmt.Errorf("variable %s is missing", v)
	}
	lengths := append([]int{}, h.Lengths(v)...)
	if h.IsRecordVariable(v) {
		lengths[0] = int(h.NumRecs(r.size))
	}
	n := 1
	end := make([]int, len(lengths))
	for i, l := range lengths {
		n *= l
		end[i] = l - 1
	}
	if n == 0 {
		return nil, nil
	}
	rd := r.nc.Reader(v, nil, end)
	buf := rd.Zero(n)
	if _, err := rd.Read(buf); err != nil {
		return nil, err
	}
	o := make([]float64, n)
	switch d := buf.(type) {
	case []uint8:
		for i, x := range d {
			o[i] = float64(x)
		}
	case []int16:
		for i, x := range d {
			o[i] = float64(x)
		}
	case []int32:
		for i, x := range d {
			o[i] = float64(x)
		}
	case []float32:
		for i, x := range d {
			o[i] = float64(x)
		}
	case []float64:
		copy(o, d)
	default:
		return nil, fmt.Errorf("variable %s has unsupported type %T", v, buf)
	}
	return o, nil
}

// attr returns the first value of a numeric attribute.
func (r *ncReader) attr(v, name string) (float64, bool) {
	switch a := r.nc.Header.GetAttribute(v, name).(type) {
	case []uint8:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int16:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []int32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []float32:
		if len(a) > 0 {
			return float64(a[0]), true
		}
	case []float64:
		if len(a) > 0 {
			return a[0], true
		}
	}
	return 0, false
}

// unpacked reads v, replacing fill and missing values with NaN and applying
// scale_factor and add_offset.
func (r *ncReader) unpacked(v string) ([]float64, error) {
	data, err := r.read(v)
	if err != nil {
		return nil, err
	}
	fill, hasFill := r.attr(v, "_FillValue")
	missing, hasMissing := r.attr(v, "missing_value")
	scale, ok := r.attr(v, "scale_factor")
	if !ok {
		scale = 1
	}
	offset, _ := r.attr(v, "add_offset")
	for i, d := range data {
		if (hasFill && d == fill) || (hasMissing && d == missing) || math.IsNaN(d) {
			data[i] = math.NaN()
			continue
		}
		data[i] = d*scale + offset
	}
	return data, nil
}

func (r *ncReader) coord(v string) ([]float64, error) {
	if !r.has(v) {
		return nil, fmt.Errorf("missing coordinate %s", v)
	}
	return r.unpacked(v)
}

func (r *ncReader) times(v string) ([]time.Time, error) {
	vals, err := r.read(v)
	if err != nil {
		return nil, err
	}
	units, _ := r.nc.Header.GetAttribute(v, "units").(string)
	step, ref, err := ParseTimeUnits(units)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", v, err)
	}
	o := make([]time.Time, len(vals))
	for i, x := range vals {
		o[i] = ref.Add(time.Duration(math.Round(x * float64(step))))
	}
	return o, nil
}

// ParseTimeUnits parses CF time units of the form "<unit> since <date>".
func ParseTimeUnits(units string) (step time.Duration, ref time.Time, err error) {
	unit, date, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, ref, fmt.Errorf("invalid time units %q", units)
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute", "min":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, ref, fmt.Errorf("unsupported time unit %q", unit)
	}
	date = strings.TrimSuffix(strings.TrimSpace(date), " UTC")
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if ref, err = time.Parse(layout, date); err == nil {
			return step, ref.UTC(), nil
		}
	}
	return 0, ref, fmt.Errorf("invalid reference date %q", date)
}
