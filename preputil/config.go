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

package preputil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/eurotiger/spatialprep"
	"github.com/eurotiger/spatialprep/era5"
)

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// stringSlice reads a list option, which may come from a flag, the
// configuration file or an environment variable.
func stringSlice(cfg *viper.Viper, name string) ([]string, error) {
	v := cfg.Get(name)
	if s, ok := v.(string); ok {
		v = strings.Split(s, ",")
	}
	s, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, fmt.Errorf("spatialprep: invalid %s: %v", name, err)
	}
	for i := range s {
		s[i] = strings.TrimSpace(s[i])
	}
	return s, nil
}

func float(cfg *viper.Viper, name string) (float64, error) {
	f, err := cast.ToFloat64E(cfg.Get(name))
	if err != nil {
		return 0, fmt.Errorf("spatialprep: invalid %s: %v", name, err)
	}
	return f, nil
}

// PipelineConfig reads the configuration of the spatial stages from cfg.
func PipelineConfig(cfg *viper.Viper) (spatialprep.Config, error) {
	var c spatialprep.Config
	var err error
	c.OutputDir = os.ExpandEnv(cfg.GetString("OutputDir"))
	if c.OutputDir == "" {
		return c, fmt.Errorf("spatialprep: OutputDir must be set")
	}
	if c.NumWorkers, err = cast.ToIntE(cfg.Get("NumWorkers")); err != nil {
		return c, fmt.Errorf("spatialprep: invalid NumWorkers: %v", err)
	}

	if c.BoundaryFiles, err = stringSlice(cfg, "Boundaries.Files"); err != nil {
		return c, err
	}
	c.BoundaryFiles = expandStringSlice(c.BoundaryFiles)
	if c.IDFields, err = stringSlice(cfg, "Boundaries.IDFields"); err != nil {
		return c, err
	}
	if c.NameFields, err = stringSlice(cfg, "Boundaries.NameFields"); err != nil {
		return c, err
	}
	c.SourceProj = os.ExpandEnv(cfg.GetString("Boundaries.SourceProj"))
	c.GeoProj = os.ExpandEnv(cfg.GetString("GeoProj"))
	c.PlanarProj = os.ExpandEnv(cfg.GetString("PlanarProj"))

	bbox := make([]float64, 4)
	for i, k := range []string{"West", "South", "East", "North"} {
		if bbox[i], err = float(cfg, "BoundingBox."+k); err != nil {
			return c, err
		}
	}
	c.BBox = geom.Bounds{
		Min: geom.Point{X: bbox[0], Y: bbox[1]},
		Max: geom.Point{X: bbox[2], Y: bbox[3]},
	}

	c.LandCoverFile = os.ExpandEnv(cfg.GetString("LandCover.File"))
	c.LandCoverProj = os.ExpandEnv(cfg.GetString("LandCover.Proj"))
	c.LandCoverKeyFile = os.ExpandEnv(cfg.GetString("LandCover.KeyFile"))

	if c.CellSize, err = float(cfg, "SamplingGrid.CellSize"); err != nil {
		return c, err
	}
	if c.ExpansionFactor, err = float(cfg, "SamplingGrid.ExpansionFactor"); err != nil {
		return c, err
	}
	if c.Origin, err = spatialprep.ParseOrigin(cfg.GetString("SamplingGrid.Origin")); err != nil {
		return c, err
	}
	if c.AllowEmptyUnits, err = cast.ToBoolE(cfg.Get("SamplingGrid.AllowEmptyUnits")); err != nil {
		return c, fmt.Errorf("spatialprep: invalid SamplingGrid.AllowEmptyUnits: %v", err)
	}
	if c.Year, err = cast.ToIntE(cfg.Get("Seasonality.Year")); err != nil {
		return c, fmt.Errorf("spatialprep: invalid Seasonality.Year: %v", err)
	}
	return c, nil
}

// ERA5Config reads the configuration of the ERA5 stage from cfg.
func ERA5Config(cfg *viper.Viper, log logrus.FieldLogger) (era5.Config, error) {
	c := era5.Config{
		InputDir:  os.ExpandEnv(cfg.GetString("ERA5.InputDir")),
		OutputDir: os.ExpandEnv(cfg.GetString("ERA5.OutputDir")),
		Log:       log,
	}
	if c.InputDir == "" {
		return c, fmt.Errorf("spatialprep: ERA5.InputDir must be set")
	}
	var err error
	if c.Force, err = cast.ToBoolE(cfg.Get("ERA5.Force")); err != nil {
		return c, fmt.Errorf("spatialprep: invalid ERA5.Force: %v", err)
	}
	if c.Workers, err = cast.ToIntE(cfg.Get("NumWorkers")); err != nil {
		return c, fmt.Errorf("spatialprep: invalid NumWorkers: %v", err)
	}
	if c.RecentMonths, err = cast.ToIntE(cfg.Get("ERA5.RecentMonths")); err != nil || c.RecentMonths < 0 {
		return c, fmt.Errorf("spatialprep: invalid ERA5.RecentMonths %v", cfg.Get("ERA5.RecentMonths"))
	}
	c.CombinedFile = os.ExpandEnv(cfg.GetString("ERA5.CombinedFile"))
	return c, nil
}

// newLogger returns a logger writing to the output of cmd and, if logFile
// is not empty, to logFile. The returned function closes the log file.
func newLogger(cmd *cobra.Command, logFile, level string) (*logrus.Logger, func() error, error) {
	lvl, err := logrus.ParseLevel(os.ExpandEnv(level))
	if err != nil {
		return nil, nil, fmt.Errorf("spatialprep: invalid LogLevel: %v", err)
	}
	log := logrus.New()
	log.Level = lvl
	log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	}
	log.Out = cmd.OutOrStdout()
	closer := func() error { return nil }
	if logFile = os.ExpandEnv(logFile); logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			return nil, nil, fmt.Errorf("spatialprep: problem creating log file: %v", err)
		}
		log.Out = io.MultiWriter(cmd.OutOrStdout(), f)
		closer = f.Close
	}
	return log, closer, nil
}
