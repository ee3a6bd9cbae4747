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
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/eurotiger/spatialprep"
)

// DefaultCombinedFile is the default name of the combined table.
const DefaultCombinedFile = "era5_weather_data_long.csv.gz"

// RecentPath returns the path of the table of the n most recent months.
func RecentPath(outputDir string, n int) string {
	return filepath.Join(outputDir, fmt.Sprintf("era5_recent_%dmonths.csv.gz", n))
}

// CombineRecent concatenates the n most recent monthly tables in outputDir,
// newest first, into the file at RecentPath. It returns the number of
// tables used, which is zero if there are none.
func CombineRecent(outputDir string, n int, log logrus.FieldLogger) (int, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	tables, err := filepath.Glob(filepath.Join(outputDir, "processed", "*", "era5_*_all_variables.csv.gz"))
	if err != nil {
		return 0, fmt.Errorf("era5: %v", err)
	}
	sort.Slice(tables, func(i, j int) bool { return filepath.Base(tables[i]) > filepath.Base(tables[j]) })
	if len(tables) > n {
		tables = tables[:n]
	}
	if len(tables) == 0 {
		log.Warn("no monthly tables to combine")
		return 0, nil
	}
	out := RecentPath(outputDir, n)
	var rows int
	err = writeGzipFile(out, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(Columns); err != nil {
			return err
		}
		for _, t := range tables {
			m, err := copyRows(cw, t)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"file": filepath.Base(t), "rows": m}).Debug("added recent month")
			rows += m
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return 0, err
	}
	log.WithFields(logrus.Fields{"months": len(tables), "rows": rows, "file": out}).Info("wrote recent months")
	return len(tables), nil
}

// copyRows copies the rows of the table at path, without its header, to cw.
func copyRows(cw *csv.Writer, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return 0, fmt.Errorf("reading %s: %v", path, err)
	}
	r := csv.NewReader(gz)
	r.ReuseRecord = true
	if _, err := header(r, path); err != nil {
		return 0, err
	}
	var n int
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, fmt.Errorf("reading %s: %v", path, err)
		}
		if err := cw.Write(rec); err != nil {
			return n, err
		}
		n++
	}
}

// header reads the header line of a table and checks that it has Columns.
func header(r *csv.Reader, path string) (map[string]int, error) {
	h, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %v", path, err)
	}
	idx := make(map[string]int, len(h))
	for i, c := range h {
		idx[c] = i
	}
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%s has no %s column", path, c)
		}
	}
	return idx, nil
}

// IndexKey identifies the data of one variable in one month.
type IndexKey struct {
	Year, Month int
	Variable    string
}

// ReadIndex returns the months and variables present in the combined table
// at path. A missing file gives an empty index.
func ReadIndex(path string) (map[IndexKey]bool, error) {
	idx := make(map[IndexKey]bool)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return idx, nil
	} else if err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("era5: reading %s: %v", path, err)
	}
	r := csv.NewReader(gz)
	r.ReuseRecord = true
	cols, err := header(r, path)
	if err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}
	yc, mc, vc := cols["year"], cols["month"], cols["variable_name"]
	var last IndexKey
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return idx, nil
		} else if err != nil {
			return nil, fmt.Errorf("era5: reading %s: %v", path, err)
		}
		if last.Variable == rec[vc] && strconv.Itoa(last.Year) == rec[yc] && strconv.Itoa(last.Month) == rec[mc] {
			continue
		}
		k := IndexKey{Variable: rec[vc]}
		if k.Year, err = strconv.Atoi(rec[yc]); err != nil {
			return nil, fmt.Errorf("era5: %s: invalid year %q", path, rec[yc])
		}
		if k.Month, err = strconv.Atoi(rec[mc]); err != nil {
			return nil, fmt.Errorf("era5: %s: invalid month %q", path, rec[mc])
		}
		idx[k] = true
		last = k
	}
}

// CombinedPath returns the path of the combined table of cfg.
func CombinedPath(cfg Config) string {
	name := cfg.CombinedFile
	if name == "" {
		name = DefaultCombinedFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	dir := cfg.OutputDir
	if dir == "" {
		dir = cfg.InputDir
	}
	return filepath.Join(dir, name)
}

// Combine appends the ERA5 files in cfg.InputDir to a single combined
// table. Variables whose month is already in the table are skipped, so
// the table can be updated as new files arrive. Each month is added as a
// new gzip member, and the table is replaced only once all months have
// been added.
func Combine(ctx context.Context, cfg Config) (*Summary, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	path := CombinedPath(cfg)
	months, err := Discover(cfg.InputDir, log)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return nil, fmt.Errorf("era5: no valid ERA5 files in %s", cfg.InputDir)
	}
	idx, err := ReadIndex(path)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"file": path, "entries": len(idx)}).Info("read combined table index")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("era5: %v", err)
	}
	fail := func(err error) (*Summary, error) {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}
	bw := bufio.NewWriter(f)
	fresh := len(idx) == 0
	if !fresh {
		if err := copyFile(bw, path); err != nil {
			return fail(err)
		}
	}

	s := new(Summary)
	for _, m := range months {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		var vars []string
		for _, v := range m.Variables() {
			if idx[IndexKey{Year: m.Year, Month: m.Month, Variable: v}] {
				s.Skipped++
				continue
			}
			vars = append(vars, v)
		}
		if len(vars) == 0 {
			continue
		}
		mlog := log.WithField("month", m.Key())
		recs, err := spatialprep.Map(ctx, cfg.Workers, vars, func(_ context.Context, v string) ([]Record, error) {
			mlog.WithField("variable", v).Info("reading")
			return ReadFile(m.Files[v], v, m.Year, m.Month)
		})
		if err != nil {
			return fail(err)
		}
		var n, rows int
		for i, r := range recs {
			if len(r) == 0 {
				mlog.WithField("variable", vars[i]).Warn("no data")
				continue
			}
			n++
			rows += len(r)
			idx[IndexKey{Year: m.Year, Month: m.Month, Variable: vars[i]}] = true
		}
		if n == 0 {
			continue
		}
		gz := gzip.NewWriter(bw)
		if fresh {
			err = WriteRecords(gz, recs...)
			fresh = false
		} else {
			err = writeRows(gz, recs...)
		}
		if err == nil {
			err = gz.Close()
		}
		if err != nil {
			return fail(fmt.Errorf("era5: writing %s: %v", path, err))
		}
		mlog.WithFields(logrus.Fields{"variables": n, "rows": rows}).Info("appended month")
		s.Months++
		s.Files += n
	}

	if s.Files == 0 {
		f.Close()
		os.Remove(tmp)
		log.WithField("skipped", s.Skipped).Info("combined table is up to date")
		return s, nil
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("era5: %v", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("era5: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("era5: %v", err)
	}
	log.WithFields(logrus.Fields{
		"months":  s.Months,
		"files":   s.Files,
		"skipped": s.Skipped,
		"file":    path,
	}).Info("ERA5 combining complete")
	return s, nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("era5: %v", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("era5: copying %s: %v", path, err)
	}
	return nil
}

// writeGzipFile writes a gzip-compressed file at path with write, through a
// temporary file that is renamed into place once complete.
func writeGzipFile(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("era5: %v", err)
	}
	bw := bufio.NewWriter(f)
	gz := gzip.NewWriter(bw)
	err = write(gz)
	if err == nil {
		err = gz.Close()
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("era5: writing %s: %v", path, err)
	}
	return nil
}
