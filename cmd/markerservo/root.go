package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teslashibe/markerservo/internal/config"
	"github.com/teslashibe/markerservo/internal/log"
)

// cli carries state shared by the subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

// load reads the configuration and initialises logging from it.
func (c *cli) load() (*config.Config, error) {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "markerservo",
		Short: "Drive a servo from ArUco markers seen by a camera.",
		Long: `markerservo reads frames from a camera, detects ArUco markers and sends a ` +
			`single-byte command over serial: '0' (servo to 0°) when a marker appears and ` +
			`'9' (servo to 90°) when all markers are gone. Commands are debounced by a cooldown.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default ./markerservo.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")
	c.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	c.v.BindPFlag("log.format", root.PersistentFlags().Lookup("log-format"))

	run := newRunCmd(c)
	root.AddCommand(run, newPortsCmd(), newHistoryCmd(c))

	// Bare "markerservo" runs the loop
	root.Flags().AddFlagSet(run.Flags())
	root.RunE = run.RunE

	return root
}
