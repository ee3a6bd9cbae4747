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
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eurotiger/spatialprep"
)

// MetadataFile is the name of the file that records processed months.
const MetadataFile = "processing_metadata.json"

// Columns are the columns of the monthly tables.
var Columns = []string{"latitude", "longitude", "time", "variable_name", "grib_variable_name", "value", "year", "month"}

// TimeFormat is the format of the time column.
const TimeFormat = "2006-01-02 15:04:05"

// Config holds the settings of a wrangling run.
type Config struct {
	InputDir, OutputDir string

	// Force reprocesses months that have already been processed.
	Force bool

	// RecentMonths is the number of most recent months that WrangleMonthly
	// collects into one table after each run. Zero disables it.
	RecentMonths int

	// CombinedFile is the combined table written by Combine, relative to
	// OutputDir unless it is absolute.
	CombinedFile string

	Workers int
	Log     logrus.FieldLogger
}

// Metadata tracks which months have been processed.
type Metadata struct {
	ProcessedMonths []string  `json:"processed_months"`
	LastUpdated     time.Time `json:"last_updated"`
}

// ReadMetadata reads the metadata at path. A missing file gives empty
// metadata.
func ReadMetadata(path string) (*Metadata, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return new(Metadata), nil
	} else if err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}
	m := new(Metadata)
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("era5: reading %s: %v", path, err)
	}
	return m, nil
}

// Write writes m to path.
func (m *Metadata) Write(path string) error {
	sort.Strings(m.ProcessedMonths)
	m.LastUpdated = time.Now().UTC().Truncate(time.Second)
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("era5: %v", err)
	}
	return os.WriteFile(path, b, 0644)
}

func (m *Metadata) has(key string) bool {
	for _, k := range m.ProcessedMonths {
		if k == key {
			return true
		}
	}
	return false
}

func (m *Metadata) add(key string) {
	if !m.has(key) {
		m.ProcessedMonths = append(m.ProcessedMonths, key)
	}
}

// MonthPath returns the path of the output table of a month.
func MonthPath(outputDir string, year, month int) string {
	return filepath.Join(outputDir, "processed", strconv.Itoa(year),
		fmt.Sprintf("era5_%d_%02d_all_variables.csv.gz", year, month))
}

// complete reports whether the output at path exists. Outputs are renamed
// into place once written, so a non-empty file is complete.
func complete(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// Summary reports what a wrangling run did.
type Summary struct {
	Months, Files, Skipped int
}

// WrangleMonthly converts the ERA5 files in cfg.InputDir into one table per
// month. Months that are recorded as processed and whose output is
// complete are skipped unless cfg.Force is set. The metadata file is
// updated after each month.
func WrangleMonthly(ctx context.Context, cfg Config) (*Summary, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = cfg.InputDir
	}
	months, err := Discover(cfg.InputDir, log)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return nil, fmt.Errorf("era5: no valid ERA5 files in %s", cfg.InputDir)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}
	metaPath := filepath.Join(cfg.OutputDir, MetadataFile)
	meta, err := ReadMetadata(metaPath)
	if err != nil {
		return nil, err
	}

	s := new(Summary)
	for _, m := range months {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		mlog := log.WithField("month", m.Key())
		out := MonthPath(cfg.OutputDir, m.Year, m.Month)
		if !cfg.Force && complete(out) {
			if meta.has(m.Key()) {
				mlog.Debug("skipping processed month")
			} else {
				mlog.Info("output already exists")
				meta.add(m.Key())
				if err := meta.Write(metaPath); err != nil {
					return s, err
				}
			}
			s.Skipped++
			continue
		}
		if meta.has(m.Key()) && !cfg.Force {
			mlog.Warn("reprocessing month whose output is missing")
		}
		n, err := processMonth(ctx, m, out, cfg.Workers, mlog)
		if err != nil {
			return s, err
		}
		if n == 0 {
			mlog.Warn("no data for month")
			continue
		}
		meta.add(m.Key())
		if err := meta.Write(metaPath); err != nil {
			return s, err
		}
		s.Months++
		s.Files += n
	}
	log.WithFields(logrus.Fields{
		"months":  s.Months,
		"files":   s.Files,
		"skipped": s.Skipped,
	}).Info("ERA5 wrangling complete")
	if cfg.RecentMonths > 0 {
		if _, err := CombineRecent(cfg.OutputDir, cfg.RecentMonths, log); err != nil {
			return s, err
		}
	}
	return s, nil
}

// processMonth reads the variables of m in parallel and writes them to out.
// It returns the number of variables with data.
func processMonth(ctx context.Context, m *Month, out string, workers int, log logrus.FieldLogger) (int, error) {
	vars := m.Variables()
	recs, err := spatialprep.Map(ctx, workers, vars, func(_ context.Context, v string) ([]Record, error) {
		log.WithField("variable", v).Info("reading")
		return ReadFile(m.Files[v], v, m.Year, m.Month)
	})
	if err != nil {
		return 0, err
	}
	var n, rows int
	for i, r := range recs {
		if len(r) == 0 {
			log.WithField("variable", vars[i]).Warn("no data")
			continue
		}
		n++
		rows += len(r)
	}
	if n == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return 0, fmt.Errorf("era5: %v", err)
	}
	if err := writeGzipFile(out, func(w io.Writer) error { return WriteRecords(w, recs...) }); err != nil {
		return 0, err
	}
	log.WithFields(logrus.Fields{"rows": rows, "file": out}).Info("wrote month")
	return n, nil
}

// WriteRecords writes the records as CSV with a header line.
func WriteRecords(w io.Writer, recs ...[]Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("era5: %v", err)
	}
	return writeLines(cw, recs)
}

// writeRows writes the records as CSV without a header line.
func writeRows(w io.Writer, recs ...[]Record) error {
	return writeLines(csv.NewWriter(w), recs)
}

func writeLines(cw *csv.Writer, recs [][]Record) error {
	line := make([]string, len(Columns))
	for _, rs := range recs {
		for _, r := range rs {
			line[0] = strconv.FormatFloat(float64(r.Latitude), 'g', -1, 32)
			line[1] = strconv.FormatFloat(float64(r.Longitude), 'g', -1, 32)
			line[2] = r.Time.UTC().Format(TimeFormat)
			line[3] = r.Variable
			line[4] = r.GRIBVariable
			line[5] = strconv.FormatFloat(float64(r.Value), 'g', -1, 32)
			line[6] = strconv.Itoa(r.Year)
			line[7] = strconv.Itoa(r.Month)
			if err := cw.Write(line); err != nil {
				return fmt.Errorf("era5: %v", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("era5: %v", err)
	}
	return nil
}
