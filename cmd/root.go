// Package cmd builds the bibfinder command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/racephotos/bibfinder/cmd/detect"
	"github.com/racephotos/bibfinder/cmd/reprocess"
	"github.com/racephotos/bibfinder/cmd/serve"
	"github.com/racephotos/bibfinder/cmd/version"
	"github.com/racephotos/bibfinder/internal/app"
	"github.com/racephotos/bibfinder/internal/buildinfo"
	"github.com/racephotos/bibfinder/internal/conf"
	"github.com/racephotos/bibfinder/internal/logger"
	"github.com/racephotos/bibfinder/internal/telemetry"
)

// RootCommand creates and returns the root command.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	ctx := &app.Context{Build: build}

	var configFile string
	var debug bool
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "bibfinder",
		Short:         "Find race bib numbers in photos",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	versionCmd := version.Command(ctx)
	rootCmd.AddCommand(
		serve.Command(ctx),
		detect.Command(ctx),
		reprocess.Command(ctx),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		settings, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		if debug || settings.Debug {
			settings.Debug = true
			settings.Logging.DefaultLevel = "debug"
			if settings.Logging.Console != nil {
				settings.Logging.Console.Level = "debug"
			}
		}
		ctx.Settings = settings

		central, err = logger.NewCentralLogger(&settings.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.SetGlobal(central)

		if _, err := telemetry.Init(&settings.Sentry, build.Release(settings.Main.Name)); err != nil {
			logger.Global().Module("main").Warn("error reporting disabled", logger.Error(err))
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		telemetry.Flush()
		if central != nil {
			return central.Close()
		}
		return nil
	}

	cobra.CheckErr(viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))

	return rootCmd
}
