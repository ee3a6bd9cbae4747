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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"

	"github.com/eurotiger/spatialprep/internal/geotiff"
)

// Output file names.
const (
	ClassKeyFile     = "landcover_key.csv"
	CoverageFile     = "landcover_coverage.csv"
	GridRasterFile   = "sampling_grid.tif"
	GridShapeFile    = "sampling_grid.shp"
	GridLookupFile   = "grid_lookup.csv"
	ShortestDayFile  = "shortest_day.gob"
	ShortestDayTable = "shortest_day.csv"
)

// Config holds the settings of a pipeline run.
type Config struct {
	OutputDir  string
	NumWorkers int

	// BoundaryFiles holds the source shapefile of each level.
	BoundaryFiles []string
	IDFields      []string
	NameFields    []string

	// SourceProj overrides the spatial reference of the boundary files.
	SourceProj string

	GeoProj, PlanarProj string

	// BBox is the study region in geographic coordinates.
	BBox geom.Bounds

	LandCoverFile    string
	LandCoverProj    string
	LandCoverKeyFile string

	CellSize        float64
	ExpansionFactor float64
	Origin          Origin
	AllowEmptyUnits bool

	Year int
}

// Pipeline runs the stages of the data preparation. Each stage reads the
// outputs of the previous ones from OutputDir and writes its own outputs
// there once all of its calculations have succeeded.
type Pipeline struct {
	Config
	Log logrus.FieldLogger

	sourceSR, geoSR, planarSR, landCoverSR *proj.SR
}

// NewPipeline checks cfg and prepares a pipeline.
func NewPipeline(cfg Config, log logrus.FieldLogger) (*Pipeline, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Pipeline{Config: cfg, Log: log}
	if len(cfg.BoundaryFiles) != NumLevels {
		return nil, fmt.Errorf("spatialprep: %d boundary files are needed but %d were given",
			NumLevels, len(cfg.BoundaryFiles))
	}
	if len(cfg.IDFields) != NumLevels || len(cfg.NameFields) != NumLevels {
		return nil, fmt.Errorf("spatialprep: %d ID and name fields are needed but %d and %d were given",
			NumLevels, len(cfg.IDFields), len(cfg.NameFields))
	}
	if !(cfg.BBox.Min.X < cfg.BBox.Max.X) || !(cfg.BBox.Min.Y < cfg.BBox.Max.Y) {
		return nil, fmt.Errorf("spatialprep: invalid bounding box %+v", cfg.BBox)
	}
	if !(cfg.ExpansionFactor >= 1) {
		return nil, fmt.Errorf("spatialprep: sampling grid expansion factor must be at least 1, have %g", cfg.ExpansionFactor)
	}
	if _, err := NewSamplingGrid(cfg.CellSize, cfg.Origin); err != nil {
		return nil, err
	}
	var err error
	parse := func(name, def string) *proj.SR {
		if err != nil || def == "" {
			return nil
		}
		var sr *proj.SR
		if sr, err = proj.Parse(def); err != nil {
			err = fmt.Errorf("spatialprep: parsing %s %q: %v", name, def, err)
		}
		return sr
	}
	p.sourceSR = parse("SourceProj", cfg.SourceProj)
	p.geoSR = parse("GeoProj", cfg.GeoProj)
	p.planarSR = parse("PlanarProj", cfg.PlanarProj)
	p.landCoverSR = parse("LandCover.Proj", cfg.LandCoverProj)
	if err != nil {
		return nil, err
	}
	if p.geoSR == nil || p.planarSR == nil {
		return nil, fmt.Errorf("spatialprep: GeoProj and PlanarProj must be set")
	}
	return p, nil
}

// BoundaryPath returns the path of the curated boundaries of level in the
// geographic or planar coordinate system.
func (p *Pipeline) BoundaryPath(level Level, planar bool) string {
	kind := "geo"
	if planar {
		kind = "planar"
	}
	return filepath.Join(p.OutputDir, fmt.Sprintf("boundaries_l%d_%s.shp", level, kind))
}

func (p *Pipeline) path(name string) string { return filepath.Join(p.OutputDir, name) }

// levels holds the units of every level in one coordinate system.
type levels [NumLevels][]*Unit

func (l *levels) all() []*Unit {
	var o []*Unit
	for _, u := range l {
		o = append(o, u...)
	}
	return o
}

// Boundaries curates the source boundaries of every level and writes them
// in geographic and planar coordinates.
func (p *Pipeline) Boundaries(ctx context.Context) error {
	c := &Curator{
		GeoSR:    p.geoSR,
		PlanarSR: p.planarSR,
		BBox:     &p.BBox,
		Workers:  p.NumWorkers,
		Log:      p.Log,
	}
	var geo, planar levels
	for i, path := range p.BoundaryFiles {
		level := Level(i + 1)
		p.Log.WithFields(logrus.Fields{"level": level, "file": path}).Info("reading boundaries")
		units, sr, err := ReadUnits(path, level, FieldSpec{IDFields: p.IDFields, NameField: p.NameFields[i]}, p.sourceSR)
		if err != nil {
			return err
		}
		if geo[i], planar[i], err = c.Curate(ctx, units, sr); err != nil {
			return err
		}
		if len(geo[i]) == 0 {
			return fmt.Errorf("spatialprep: no level %d units are inside the bounding box", level)
		}
	}
	return p.writeBoundaries(&geo, &planar)
}

func (p *Pipeline) writeBoundaries(geo, planar *levels) error {
	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return fmt.Errorf("spatialprep: %v", err)
	}
	for i := range geo {
		level := Level(i + 1)
		if err := WriteUnits(p.BoundaryPath(level, false), &UnitSet{Level: level, Proj: p.GeoProj, Units: geo[i]}); err != nil {
			return err
		}
		if err := WriteUnits(p.BoundaryPath(level, true), &UnitSet{Level: level, Proj: p.PlanarProj, Units: planar[i]}); err != nil {
			return err
		}
		p.Log.WithFields(logrus.Fields{
			"level":       level,
			"units":       len(geo[i]),
			"fingerprint": Fingerprint(geo[i]),
		}).Info("wrote boundaries")
	}
	return nil
}

func (p *Pipeline) readBoundaries(planar bool) (*levels, error) {
	var l levels
	for i := range l {
		s, err := ReadUnitsFile(p.BoundaryPath(Level(i+1), planar))
		if err != nil {
			return nil, err
		}
		l[i] = s.Units
	}
	return &l, nil
}

// ClassKey returns the land-cover class key, read from LandCoverKeyFile if
// it is set.
func (p *Pipeline) ClassKey() (ClassKey, error) {
	if p.LandCoverKeyFile == "" {
		return DefaultClassKey(), nil
	}
	f, err := os.Open(p.LandCoverKeyFile)
	if err != nil {
		return nil, fmt.Errorf("spatialprep: %v", err)
	}
	defer f.Close()
	return ReadClassKey(f)
}

// landCover reads the land-cover raster and its spatial reference.
func (p *Pipeline) landCover() (*geotiff.Raster, *proj.SR, error) {
	p.Log.WithField("file", p.LandCoverFile).Info("reading land cover")
	raster, err := geotiff.Read(p.LandCoverFile)
	if err != nil {
		return nil, nil, fmt.Errorf("spatialprep: reading land cover: %v", err)
	}
	sr, err := rasterCRS(raster, p.landCoverSR)
	if err != nil {
		return nil, nil, fmt.Errorf("spatialprep: %s: %v", p.LandCoverFile, err)
	}
	p.Log.WithFields(logrus.Fields{
		"epsg":    raster.EPSG,
		"samples": raster.Kind.String(),
		"rows":    raster.Ny,
		"columns": raster.Nx,
	}).Debug("read land cover")
	return raster, sr, nil
}

// Coverage extracts the land-cover coverage of the curated units, drops
// units without land cover, and rewrites the boundaries without them.
func (p *Pipeline) Coverage(ctx context.Context) error {
	key, err := p.ClassKey()
	if err != nil {
		return err
	}
	geo, err := p.readBoundaries(false)
	if err != nil {
		return err
	}
	planar, err := p.readBoundaries(true)
	if err != nil {
		return err
	}
	raster, sr, err := p.landCover()
	if err != nil {
		return err
	}

	pts := rasterPoints(raster)
	var units []*Unit
	if same, _ := equivalent(sr, p.planarSR, pts, 1e-3*raster.Dx); same {
		units = planar.all()
	} else if same, _ := equivalent(sr, p.geoSR, pts, 1e-3*raster.Dx); same {
		units = geo.all()
	} else if units, err = TransformUnits(planar.all(), p.planarSR, sr); err != nil {
		return err
	}
	if len(units) == 0 {
		return fmt.Errorf("spatialprep: there are no curated units to extract land cover for")
	}
	w := raster.Window(UnitBounds(units))
	if w == nil {
		return fmt.Errorf("spatialprep: no unit overlaps the land cover in %s; check its coordinate system", p.LandCoverFile)
	}
	p.Log.WithFields(logrus.Fields{"rows": w.Ny, "columns": w.Nx}).Debug("cropped land cover to the units")
	raster = w
	records, err := ExtractCoverage(ctx, raster, units, p.NumWorkers)
	if err != nil {
		return err
	}
	rows, unmapped, err := Pivot(records, key)
	if err != nil {
		return err
	}
	for _, u := range unmapped {
		p.Log.WithFields(logrus.Fields{
			"code":  u.Code,
			"area":  u.Area,
			"units": u.Units,
		}).Warn("land-cover code is not in the class key; its area is reported as unmapped")
	}

	keep := FilterUnits(rows)
	rows = TrimCoverage(rows, keep)
	for i := range geo {
		before := len(geo[i])
		geo[i] = TrimUnits(geo[i], keep)
		planar[i] = TrimUnits(planar[i], keep)
		if d := before - len(geo[i]); d > 0 {
			p.Log.WithFields(logrus.Fields{"level": i + 1, "units": d}).Info("dropped units without land cover")
		}
		if len(geo[i]) == 0 {
			return fmt.Errorf("spatialprep: no level %d unit has land cover in %s", i+1, p.LandCoverFile)
		}
	}

	if err := writeFile(p.path(ClassKeyFile), func(w io.Writer) error { return WriteClassKey(w, key) }); err != nil {
		return err
	}
	if err := writeFile(p.path(CoverageFile), func(w io.Writer) error { return WriteCoverage(w, rows) }); err != nil {
		return err
	}
	return p.writeBoundaries(geo, planar)
}

// SamplingGrid builds the sampling grid over the expanded land-cover extent
// and finds the cells that overlap each unit.
func (p *Pipeline) SamplingGrid(ctx context.Context) error {
	raster, sr, err := p.landCover()
	if err != nil {
		return err
	}
	ext, err := RasterExtent(raster, sr, p.geoSR, 100)
	if err != nil {
		return err
	}
	grid, err := NewSamplingGrid(p.CellSize, p.Origin)
	if err != nil {
		return err
	}
	if err := grid.Cover(ExpandExtent(ext, p.ExpansionFactor)); err != nil {
		return err
	}
	p.Log.WithFields(logrus.Fields{
		"rows":    grid.Row1 - grid.Row0 + 1,
		"columns": grid.Col1 - grid.Col0 + 1,
	}).Info("built sampling grid")

	geo, err := p.readBoundaries(false)
	if err != nil {
		return err
	}
	links, err := JoinGrid(ctx, grid, geo.all(), p.NumWorkers)
	var empty *EmptyUnitsError
	if errors.As(err, &empty) && p.AllowEmptyUnits {
		for _, u := range empty.Units {
			p.Log.WithField("unit", u.String()).Warn("unit does not overlap any sampling grid cell")
		}
	} else if err != nil {
		return err
	}

	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return fmt.Errorf("spatialprep: %v", err)
	}
	if err := grid.WriteGeoTIFF(p.path(GridRasterFile)); err != nil {
		return err
	}
	if err := grid.WriteToShp(p.path(GridShapeFile)); err != nil {
		return err
	}
	return writeFile(p.path(GridLookupFile), func(w io.Writer) error { return WriteGridLinks(w, links) })
}

// Seasonality finds the shortest day of Year for every unit.
func (p *Pipeline) Seasonality(ctx context.Context) error {
	geo, err := p.readBoundaries(false)
	if err != nil {
		return err
	}
	days := ShortestDays(geo.all(), p.Year)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeFile(p.path(ShortestDayFile), func(w io.Writer) error { return WriteShortestDays(w, days) }); err != nil {
		return err
	}
	return writeFile(p.path(ShortestDayTable), func(w io.Writer) error { return WriteShortestDaysCSV(w, days) })
}

// All runs every stage in order.
func (p *Pipeline) All(ctx context.Context) error {
	for _, s := range []struct {
		name string
		run  func(context.Context) error
	}{
		{"boundaries", p.Boundaries},
		{"coverage", p.Coverage},
		{"sampling grid", p.SamplingGrid},
		{"seasonality", p.Seasonality},
	} {
		p.Log.WithField("stage", s.name).Info("starting stage")
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// writeFile writes path with write. The output goes to a temporary file
// that replaces path only once it is complete.
func writeFile(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("spatialprep: %v", err)
	}
	w := bufio.NewWriter(f)
	err = write(w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("spatialprep: writing %s: %v", path, err)
	}
	return nil
}
