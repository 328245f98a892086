/*
Copyright © 2019 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.*/


// Package emisgridutil contains the command-line interface and
// configuration handling for emisgrid.
package emisgridutil

import (
	"fmt"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/emisgrid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
type Cfg struct {
	*viper.Viper

	// Root is the main command.
	Root *cobra.Command

	versionCmd, runCmd, weightsCmd, gridCmd *cobra.Command
	cacheCmd, cacheListCmd, cacheClearCmd   *cobra.Command
}

type option struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

// InitializeConfig creates the commands and configuration options.
func InitializeConfig() *Cfg {
	cfg := &Cfg{Viper: viper.New()}

	cfg.Root = &cobra.Command{
		Use:   "emisgrid",
		Short: "Regrid emissions inventories onto model grids.",
		Long: `emisgrid maps gridded, point, polygon, and raster emissions inventories
onto a target model grid and writes the resulting emission fluxes to a
NetCDF file. Use the subcommands specified below to access the functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'EMISGRID_var' where 'var' is
the name of the variable to be set, with '.' replaced by '_'.
File paths are allowed to contain environment variables.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return cfg.setConfig() },
		SilenceUsage:      true,
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "version prints the version number of this version of emisgrid.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("emisgrid v%s\n", emisgrid.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run",
		Short: "Regrid all sectors and write the output file.",
		Long: `run reads every sector in the sector file, maps it onto the target grid
at each output time step, and writes the fluxes to OutputFile.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := NewPipeline(cmd.Context(), cfg.Viper)
			if err != nil {
				return err
			}
			return p.Run(cmd.Context(), cfg.GetString("OutputFile"))
		},
		DisableAutoGenTag: true,
	}

	cfg.weightsCmd = &cobra.Command{
		Use:   "weights",
		Short: "Build the weight tables for gridded sectors.",
		Long: `weights builds the weight tables for every gridded sector and saves them
to the cache in CacheDir so that later runs can reuse them. Use --ForceRebuild
to replace tables that are already cached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := NewPipeline(cmd.Context(), cfg.Viper)
			if err != nil {
				return err
			}
			return p.BuildWeights(cmd.Context())
		},
		DisableAutoGenTag: true,
	}

	cfg.gridCmd = &cobra.Command{
		Use:   "grid [outdir]",
		Short: "Write the target grid to a shapefile.",
		Long: `grid writes the cells of the target grid as a shapefile in outdir (the
current directory by default), which can be used to check the domain
configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := TargetGrid(cfg.Viper)
			if err != nil {
				return err
			}
			outdir := "."
			if len(args) == 1 {
				outdir = args[0]
			}
			if err := g.WriteToShp(outdir); err != nil {
				return err
			}
			cmd.Printf("wrote grid %s (%dx%d) to %s\n", g.Name, g.Nx, g.Ny, outdir)
			return nil
		},
		DisableAutoGenTag: true,
	}

	cfg.cacheCmd = &cobra.Command{
		Use:               "cache",
		Short:             "Manage the weight table cache.",
		Long:              `cache lists or deletes the weight tables saved in CacheDir.`,
		DisableAutoGenTag: true,
	}

	cfg.cacheListCmd = &cobra.Command{
		Use:   "list [prefix]",
		Short: "List cached weight tables.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := listCache(cmd.Context(), cfg.Viper, strings.Join(args, ""))
			if err != nil {
				return err
			}
			for _, k := range keys {
				cmd.Println(k)
			}
			return nil
		},
		DisableAutoGenTag: true,
	}

	cfg.cacheClearCmd = &cobra.Command{
		Use:   "clear [prefix]",
		Short: "Delete cached weight tables.",
		Long: `clear deletes the cached weight tables whose keys begin with prefix, or
all of them if no prefix is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := clearCache(cmd.Context(), cfg.Viper, strings.Join(args, ""))
			if err != nil {
				return err
			}
			cmd.Printf("deleted %d weight tables\n", n)
			return nil
		},
		DisableAutoGenTag: true,
	}

	// Link the commands together.
	cfg.Root.AddCommand(cfg.versionCmd, cfg.runCmd, cfg.weightsCmd, cfg.gridCmd, cfg.cacheCmd)
	cfg.cacheCmd.AddCommand(cfg.cacheListCmd, cfg.cacheClearCmd)

	gridSets := []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.weightsCmd.Flags(), cfg.gridCmd.Flags()}
	sectorSets := []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.weightsCmd.Flags()}
	cacheSets := []*pflag.FlagSet{cfg.runCmd.Flags(), cfg.weightsCmd.Flags(), cfg.cacheCmd.PersistentFlags()}

	// Options are the configuration options available to emisgrid.
	options := []option{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel specifies the minimum level of log messages to print:
              one of debug, info, warn, or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{cfg.Root.PersistentFlags()},
		},
		{
			name: "Domain.Name",
			usage: `
              Domain.Name is the name of the target grid when it is specified
              with the Domain.Nx, Ny, Dx, Dy, X0, Y0, and Proj options.`,
			defaultVal: "domain",
			flagsets:   gridSets,
		},
		{
			name: "Domain.Nx",
			usage: `
              Domain.Nx is the number of target grid columns.`,
			defaultVal: 0,
			flagsets:   gridSets,
		},
		{
			name: "Domain.Ny",
			usage: `
              Domain.Ny is the number of target grid rows.`,
			defaultVal: 0,
			flagsets:   gridSets,
		},
		{
			name: "Domain.Dx",
			usage: `
              Domain.Dx is the width of the target grid cells, in the units of
              Domain.Proj.`,
			defaultVal: 0.0,
			flagsets:   gridSets,
		},
		{
			name: "Domain.Dy",
			usage: `
              Domain.Dy is the height of the target grid cells, in the units of
              Domain.Proj.`,
			defaultVal: 0.0,
			flagsets:   gridSets,
		},
		{
			name: "Domain.X0",
			usage: `
              Domain.X0 is the X coordinate of the lower-left corner of the
              target grid.`,
			defaultVal: 0.0,
			flagsets:   gridSets,
		},
		{
			name: "Domain.Y0",
			usage: `
              Domain.Y0 is the Y coordinate of the lower-left corner of the
              target grid.`,
			defaultVal: 0.0,
			flagsets:   gridSets,
		},
		{
			name: "Domain.Proj",
			usage: `
              Domain.Proj is the proj4 projection of the target grid. If it is
              empty, the grid is in longitude-latitude coordinates.`,
			defaultVal: "",
			flagsets:   gridSets,
		},
		{
			name: "Domain.WPSNamelist",
			usage: `
              Domain.WPSNamelist is the path to a WPS namelist. If it is set,
              the target grid is read from it instead of from the other
              Domain options.`,
			defaultVal: "",
			flagsets:   gridSets,
		},
		{
			name: "Domain.WRFNamelist",
			usage: `
              Domain.WRFNamelist is the path to an optional WRF namelist that is
              checked for consistency with Domain.WPSNamelist.`,
			defaultVal: "",
			flagsets:   gridSets,
		},
		{
			name: "Domain.Index",
			usage: `
              Domain.Index is the WRF nest to use as the target grid, where 1 is
              the outermost domain.`,
			defaultVal: 1,
			flagsets:   gridSets,
		},
		{
			name: "SectorFile",
			usage: `
              SectorFile is the path to the TOML file that defines the emissions
              sectors.`,
			shorthand:  "s",
			defaultVal: "sectors.toml",
			flagsets:   sectorSets,
		},
		{
			name: "CacheDir",
			usage: `
              CacheDir is where weight tables are saved for reuse. It can be a
              local directory or a bucket URL such as gs://bucket or
              s3://bucket. If it is empty, tables are only kept in memory.`,
			defaultVal: "",
			flagsets:   cacheSets,
		},
		{
			name: "ForceRebuild",
			usage: `
              ForceRebuild specifies whether to rebuild weight tables even if
              they are already in the cache.`,
			defaultVal: false,
			flagsets:   sectorSets,
		},
		{
			name: "MemCacheSize",
			usage: `
              MemCacheSize is the number of weight tables to keep in memory.`,
			defaultVal: 20,
			flagsets:   sectorSets,
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the output NetCDF file.`,
			shorthand:  "o",
			defaultVal: "emissions.nc",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the beginning of the first output time step, in the
              format 2006-01-02 or 2006-01-02T15:04:05Z07:00.`,
			defaultVal: "2016-01-01",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name: "EndDate",
			usage: `
              EndDate is the end (exclusive) of the output time period. If it
              is empty, there is a single time step.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
		{
			name: "TimeStep",
			usage: `
              TimeStep is the length of each output time step, either a
              duration such as 1h or 24h, or "month" for calendar months.`,
			defaultVal: "month",
			flagsets:   []*pflag.FlagSet{cfg.runCmd.Flags()},
		},
	}

	// Set the prefix for configuration environment variables.
	cfg.SetEnvPrefix("EMISGRID")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
	return cfg
}

// setConfig finds and reads in the configuration file, if there is one.
func (cfg *Cfg) setConfig() error {
	if cfgpath := cfg.GetString("config"); cfgpath != "" {
		cfg.SetConfigFile(expand(cfgpath))
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("emisgrid: problem reading configuration file: %v", err)
		}
	}
	return nil
}
