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

// Package preputil provides the command-line interface of spatialprep.
package preputil

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/eurotiger/spatialprep"
	"github.com/eurotiger/spatialprep/era5"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

var options []option

func init() {
	stages := []*pflag.FlagSet{boundariesCmd.Flags(), coverageCmd.Flags(),
		samplingGridCmd.Flags(), seasonalityCmd.Flags(), allCmd.Flags()}
	every := []*pflag.FlagSet{Root.PersistentFlags()}

	// Options are the configuration options available to spatialprep.
	options = []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   every,
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to a file that log messages are written to
              in addition to standard output. It can include environment variables.`,
			defaultVal: "",
			flagsets:   every,
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of the log messages that are written.
              It can be debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   every,
		},
		{
			name: "NumWorkers",
			usage: `
              NumWorkers is the number of units or files processed at the same time.
              0 means one per processor.`,
			shorthand:  "n",
			defaultVal: 0,
			flagsets:   every,
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory that the outputs of the spatial stages are
              written to and read from. It can include environment variables.`,
			shorthand:  "o",
			defaultVal: "processed data",
			flagsets:   stages,
		},
		{
			name: "Boundaries.Files",
			usage: `
              Boundaries.Files are the paths to the source boundary shapefiles of
              levels 1 through 4, in that order. They can include environment variables.`,
			defaultVal: []string{
				"data/gadm/gadm_1.shp",
				"data/gadm/gadm_2.shp",
				"data/gadm/gadm_3.shp",
				"data/gadm/gadm_4.shp",
			},
			flagsets: stages,
		},
		{
			name: "Boundaries.IDFields",
			usage: `
              Boundaries.IDFields are the attribute fields holding the unit IDs of
              levels 1 through 4. A unit at level n must have the ID fields of
              levels 1 through n.`,
			defaultVal: []string{"GID_0", "GID_1", "GID_2", "GID_3"},
			flagsets:   stages,
		},
		{
			name: "Boundaries.NameFields",
			usage: `
              Boundaries.NameFields are the attribute fields holding the unit names
              of levels 1 through 4.`,
			defaultVal: []string{"COUNTRY", "NAME_1", "NAME_2", "NAME_3"},
			flagsets:   stages,
		},
		{
			name: "Boundaries.SourceProj",
			usage: `
              Boundaries.SourceProj gives the spatial reference of the source boundary
              files in proj4 format. If it is empty, the .prj file of each shapefile
              is used.`,
			defaultVal: "",
			flagsets:   stages,
		},
		{
			name: "GeoProj",
			usage: `
              GeoProj gives the geographic coordinate system in proj4 format.`,
			defaultVal: spatialprep.WGS84,
			flagsets:   stages,
		},
		{
			name: "PlanarProj",
			usage: `
              PlanarProj gives the equal-area coordinate system that areas are
              calculated in, in proj4 format.`,
			defaultVal: "+proj=aea +lat_1=43 +lat_2=62 +lat_0=30 +lon_0=10 +x_0=0 +y_0=0 +ellps=intl +units=m +no_defs",
			flagsets:   stages,
		},
		{
			name: "BoundingBox.West",
			usage: `
              BoundingBox.West is the western edge of the study region in degrees longitude.`,
			defaultVal: -25.0,
			flagsets:   stages,
		},
		{
			name: "BoundingBox.South",
			usage: `
              BoundingBox.South is the southern edge of the study region in degrees latitude.`,
			defaultVal: 34.0,
			flagsets:   stages,
		},
		{
			name: "BoundingBox.East",
			usage: `
              BoundingBox.East is the eastern edge of the study region in degrees longitude.`,
			defaultVal: 45.0,
			flagsets:   stages,
		},
		{
			name: "BoundingBox.North",
			usage: `
              BoundingBox.North is the northern edge of the study region in degrees latitude.`,
			defaultVal: 72.0,
			flagsets:   stages,
		},
		{
			name: "LandCover.File",
			usage: `
              LandCover.File is the path to the land-cover GeoTIFF. It can include
              environment variables.`,
			defaultVal: "data/landcover/corine_100m.tif",
			flagsets:   stages,
		},
		{
			name: "LandCover.Proj",
			usage: `
              LandCover.Proj gives the spatial reference of the land-cover raster in
              proj4 format. If it is empty, the EPSG code stored in the raster is
              used. If both are given they must agree.`,
			defaultVal: "",
			flagsets:   stages,
		},
		{
			name: "LandCover.KeyFile",
			usage: `
              LandCover.KeyFile is the path to a TOML file that maps raster codes to
              land-cover categories. If it is empty, the built-in key is used.`,
			defaultVal: "",
			flagsets:   stages,
		},
		{
			name: "SamplingGrid.CellSize",
			usage: `
              SamplingGrid.CellSize is the edge length of sampling grid cells in
              degrees. It must divide both 360 and 180.`,
			defaultVal: 0.1,
			flagsets:   stages,
		},
		{
			name: "SamplingGrid.ExpansionFactor",
			usage: `
              SamplingGrid.ExpansionFactor is the factor that the land-cover extent is
              scaled by about its center before the sampling grid is laid over it.`,
			defaultVal: 1.1,
			flagsets:   stages,
		},
		{
			name: "SamplingGrid.Origin",
			usage: `
              SamplingGrid.Origin is the corner that cell numbering starts from:
              northwest or southwest.`,
			defaultVal: "northwest",
			flagsets:   stages,
		},
		{
			name: "SamplingGrid.AllowEmptyUnits",
			usage: `
              If SamplingGrid.AllowEmptyUnits is true, units that overlap no sampling
              grid cell are logged instead of causing an error.`,
			defaultVal: false,
			flagsets:   stages,
		},
		{
			name: "Seasonality.Year",
			usage: `
              Seasonality.Year is the year that the shortest day of each unit is
              found in.`,
			defaultVal: 2023,
			flagsets:   stages,
		},
		{
			name: "ERA5.InputDir",
			usage: `
              ERA5.InputDir is the directory holding the monthly ERA5 files, named
              era5_YYYY_MM_<variable>.nc. It can include environment variables.`,
			defaultVal: "data/era5",
			flagsets:   []*pflag.FlagSet{era5Cmd.PersistentFlags()},
		},
		{
			name: "ERA5.OutputDir",
			usage: `
              ERA5.OutputDir is the directory that the processed tables and the
              processing metadata are written to. If it is empty, ERA5.InputDir is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{era5Cmd.PersistentFlags()},
		},
		{
			name: "ERA5.Force",
			usage: `
              If ERA5.Force is true, months that have already been processed are
              processed again.`,
			shorthand:  "f",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{era5Cmd.Flags()},
		},
		{
			name: "ERA5.RecentMonths",
			usage: `
              ERA5.RecentMonths is the number of most recent months that are copied
              into era5_recent_<n>months.csv.gz in ERA5.OutputDir after each run.
              Zero turns this off.`,
			defaultVal: 3,
			flagsets:   []*pflag.FlagSet{era5Cmd.Flags()},
		},
		{
			name: "ERA5.CombinedFile",
			usage: `
              ERA5.CombinedFile is the single table that "era5 combine" appends new
              months and variables to. A relative path is taken from ERA5.OutputDir.`,
			defaultVal: era5.DefaultCombinedFile,
			flagsets:   []*pflag.FlagSet{era5CombineCmd.Flags()},
		},
	}

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
		}
	}
	Cfg = NewConfig()

	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(boundariesCmd)
	Root.AddCommand(coverageCmd)
	Root.AddCommand(samplingGridCmd)
	Root.AddCommand(seasonalityCmd)
	Root.AddCommand(allCmd)
	Root.AddCommand(era5Cmd)
	era5Cmd.AddCommand(era5CombineCmd)
}

// NewConfig returns a configuration bound to the command-line flags, with
// environment variables in the format SPATIALPREP_Section_Var.
func NewConfig() *viper.Viper {
	cfg := viper.New()
	cfg.SetEnvPrefix("SPATIALPREP")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()
	for _, option := range options {
		cfg.BindPFlag(option.name, option.flagsets[0].Lookup(option.name))
	}
	return cfg
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := os.ExpandEnv(Cfg.GetString("config")); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("spatialprep: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "spatialprep",
	Short: "Prepare spatial inputs for a gridded disease-risk model.",
	Long: `spatialprep curates administrative boundaries, aggregates land cover over
them, builds a global sampling grid and its lookup table, finds the shortest
day of the year of every unit and converts monthly ERA5 files into tables.
Use the subcommands specified below to run each stage.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'SPATIALPREP_var' where 'var'
is the name of the variable to be set, with '.' replaced by '_'. Paths can
contain environment variables.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of spatialprep.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("spatialprep v%s\n", spatialprep.Version)
	},
	DisableAutoGenTag: true,
}

// runStage returns a command function that runs stage of a pipeline
// configured from Cfg.
func runStage(stage func(*spatialprep.Pipeline, context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(cmd, Cfg.GetString("LogFile"), Cfg.GetString("LogLevel"))
		if err != nil {
			return err
		}
		defer closeLog()
		c, err := PipelineConfig(Cfg)
		if err != nil {
			return err
		}
		p, err := spatialprep.NewPipeline(c, log)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := stage(p, ctx); err != nil {
			log.WithField("command", cmd.Name()).Error(err)
			return err
		}
		log.WithField("command", cmd.Name()).Info("finished")
		return nil
	}
}

var boundariesCmd = &cobra.Command{
	Use:   "boundaries",
	Short: "Curate the administrative boundaries.",
	Long: `boundaries reads the source boundary shapefiles of the four levels, crops
them to the study region, repairs or rejects invalid geometries and writes
each level in the geographic and planar coordinate systems.`,
	RunE:              runStage((*spatialprep.Pipeline).Boundaries),
	DisableAutoGenTag: true,
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Aggregate land cover over the curated units.",
	Long: `coverage finds the area of each land-cover category in every curated unit,
writes the coverage table and the class key, and drops units that have no
land cover from the boundary files.`,
	RunE:              runStage((*spatialprep.Pipeline).Coverage),
	DisableAutoGenTag: true,
}

var samplingGridCmd = &cobra.Command{
	Use:   "samplinggrid",
	Short: "Build the sampling grid and its unit lookup.",
	Long: `samplinggrid lays a global grid over the expanded extent of the land-cover
raster, writes it as a GeoTIFF and a shapefile, and writes the cells that
overlap each unit.`,
	RunE:              runStage((*spatialprep.Pipeline).SamplingGrid),
	DisableAutoGenTag: true,
}

var seasonalityCmd = &cobra.Command{
	Use:   "seasonality",
	Short: "Find the shortest day of the year of every unit.",
	Long: `seasonality finds the date with the least daylight at the centroid of each
unit during Seasonality.Year.`,
	RunE:              runStage((*spatialprep.Pipeline).Seasonality),
	DisableAutoGenTag: true,
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run all of the spatial stages in order.",
	Long: `all runs the boundaries, coverage, samplinggrid and seasonality stages
one after another, stopping at the first error.`,
	RunE:              runStage((*spatialprep.Pipeline).All),
	DisableAutoGenTag: true,
}

var era5Cmd = &cobra.Command{
	Use:   "era5",
	Short: "Convert monthly ERA5 files into long-format tables.",
	Long: `era5 reads the per-variable ERA5 NetCDF files of each month in ERA5.InputDir
and writes one compressed table per month holding every variable. Months that
are already recorded in the processing metadata are skipped unless ERA5.Force
is set. The most recent ERA5.RecentMonths tables are then copied into one file.`,
	RunE:              runERA5(era5.WrangleMonthly),
	DisableAutoGenTag: true,
}

var era5CombineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Append ERA5 files to a single long-format table.",
	Long: `combine reads the per-variable ERA5 NetCDF files in ERA5.InputDir and appends
the months and variables that are not yet in ERA5.CombinedFile to it. The table
is replaced only once every new month has been added.`,
	RunE:              runERA5(era5.Combine),
	DisableAutoGenTag: true,
}

// runERA5 returns a command function that runs an ERA5 conversion.
func runERA5(run func(context.Context, era5.Config) (*era5.Summary, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log, closeLog, err := newLogger(cmd, Cfg.GetString("LogFile"), Cfg.GetString("LogLevel"))
		if err != nil {
			return err
		}
		defer closeLog()
		c, err := ERA5Config(Cfg, log)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		s, err := run(ctx, c)
		if err != nil {
			log.WithField("command", cmd.CommandPath()).Error(err)
			return err
		}
		log.WithFields(logrus.Fields{
			"command": cmd.CommandPath(),
			"months":  s.Months,
			"files":   s.Files,
			"skipped": s.Skipped,
		}).Info("finished")
		return nil
	}
}
