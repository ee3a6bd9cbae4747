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

// Package era5 converts monthly ERA5 reanalysis files, one per variable,
// into long-format compressed CSV tables with one file per month.
package era5

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// MinFileSize is the size in bytes below which an input file is considered
// incomplete.
const MinFileSize = 1024

// Month holds the input files of one month.
type Month struct {
	Year, Month int

	// Files maps variable names to file paths.
	Files map[string]string
}

// Key returns the month in YYYY_MM form.
func (m *Month) Key() string { return fmt.Sprintf("%d_%02d", m.Year, m.Month) }

// Variables returns the variable names of m in sorted order.
func (m *Month) Variables() []string {
	o := make([]string, 0, len(m.Files))
	for v := range m.Files {
		o = append(o, v)
	}
	sort.Strings(o)
	return o
}

// ParseFileName parses a file name of the form era5_YYYY_MM_<variable>.nc.
func ParseFileName(name string) (year, month int, variable string, err error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) < 4 || parts[0] != "era5" || filepath.Ext(name) != ".nc" {
		return 0, 0, "", fmt.Errorf("era5: %s is not of the form era5_YYYY_MM_<variable>.nc", name)
	}
	if year, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, "", fmt.Errorf("era5: %s: invalid year %q", name, parts[1])
	}
	if month, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, "", fmt.Errorf("era5: %s: invalid month %q", name, parts[2])
	}
	if year < 1900 || year > time.Now().Year() {
		return 0, 0, "", fmt.Errorf("era5: %s: year %d is out of range", name, year)
	}
	if month < 1 || month > 12 {
		return 0, 0, "", fmt.Errorf("era5: %s: month %d is out of range", name, month)
	}
	return year, month, strings.Join(parts[3:], "_"), nil
}

// Discover finds the ERA5 files in dir and groups them by month, sorted
// by date. Files whose names cannot be parsed or that are smaller than
// MinFileSize are skipped.
func Discover(dir string, log logrus.FieldLogger) ([]*Month, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}
	months := make(map[string]*Month)
	var n int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "era5_") {
			continue
		}
		year, month, variable, err := ParseFileName(name)
		if err != nil {
			log.WithField("file", name).Debug(err)
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("era5: %v", err)
		}
		if info.Size() < MinFileSize {
			log.WithFields(logrus.Fields{"file": name, "bytes": info.Size()}).Warn("skipping incomplete file")
			continue
		}
		m := &Month{Year: year, Month: month}
		if mm, ok := months[m.Key()]; ok {
			m = mm
		} else {
			m.Files = make(map[string]string)
			months[m.Key()] = m
		}
		m.Files[variable] = filepath.Join(dir, name)
		n++
	}
	o := make([]*Month, 0, len(months))
	for _, m := range months {
		o = append(o, m)
	}
	sort.Slice(o, func(i, j int) bool { return o[i].Key() < o[j].Key() })
	log.WithFields(logrus.Fields{"files": n, "months": len(o)}).Info("found ERA5 files")
	return o, nil
}
