package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the marker loop (default command)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app := NewApp(cfg, cmd.OutOrStdout())
			defer app.Shutdown()

			if err := app.Init(ctx); err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}

	f := cmd.Flags()
	f.Int("camera", 0, "camera device index")
	f.String("camera-preset", "", "capture mode: native, vga, 720p or 1080p")
	f.String("port", "", "serial port of the servo controller (e.g. /dev/ttyACM0, COM5)")
	f.Int("baud", 9600, "serial baud rate")
	f.Duration("cooldown", 0, "minimum time between servo commands (default 2s)")
	f.Bool("hold-on-start", false, "wait a full cooldown after startup before the first command")
	f.String("dictionary", "", "ArUco dictionary, e.g. 4x4_250, 5x5_100, apriltag_36h11")
	f.Bool("display", true, "show the annotated camera window")
	f.Bool("dashboard", false, "serve the web dashboard")
	f.Int("dashboard-port", 8080, "web dashboard port")
	f.Bool("history", false, "record commands in SQLite")
	f.String("history-path", "", "SQLite database path (default markerservo.db)")
	f.String("nats-url", "", "publish transitions to this NATS server")

	for key, flag := range map[string]string{
		"camera.device":          "camera",
		"camera.preset":          "camera-preset",
		"serial.port":            "port",
		"serial.baud":            "baud",
		"debounce.cooldown":      "cooldown",
		"debounce.hold_on_start": "hold-on-start",
		"detector.dictionary":    "dictionary",
		"display.enabled":        "display",
		"dashboard.enabled":      "dashboard",
		"dashboard.port":         "dashboard-port",
		"history.enabled":        "history",
		"history.path":           "history-path",
		"nats.url":               "nats-url",
	} {
		c.v.BindPFlag(key, f.Lookup(flag))
	}

	return cmd
}
