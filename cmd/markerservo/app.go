package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/teslashibe/markerservo/internal/config"
	"github.com/teslashibe/markerservo/internal/log"
	"github.com/teslashibe/markerservo/pkg/actuator"
	"github.com/teslashibe/markerservo/pkg/camera"
	"github.com/teslashibe/markerservo/pkg/debounce"
	"github.com/teslashibe/markerservo/pkg/history"
	"github.com/teslashibe/markerservo/pkg/marker/aruco"
	"github.com/teslashibe/markerservo/pkg/metrics"
	"github.com/teslashibe/markerservo/pkg/overlay"
	"github.com/teslashibe/markerservo/pkg/pipeline"
	"github.com/teslashibe/markerservo/pkg/telemetry"
	"github.com/teslashibe/markerservo/pkg/web"
	"gocv.io/x/gocv"
)

// resource is something opened during Init that Shutdown must release.
type resource struct {
	name  string
	close func() error
}

// App wires the camera, detector, debouncer and servo link together.
type App struct {
	cfg    *config.Config
	out    io.Writer
	logger *slog.Logger

	registry  *prom.Registry
	recorder  *metrics.PrometheusRecorder
	dashboard *web.Server
	loop      *pipeline.Loop[gocv.Mat]

	resources    []resource
	shutdownOnce sync.Once
}

// NewApp creates an application from validated configuration.
func NewApp(cfg *config.Config, out io.Writer) *App {
	reg := prom.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &App{
		cfg:      cfg,
		out:      out,
		logger:   log.L(),
		registry: reg,
		recorder: metrics.NewPrometheusRecorder(reg),
	}
}

func (a *App) own(name string, close func() error) {
	a.resources = append(a.resources, resource{name: name, close: close})
}

// Init opens every resource. On error, resources opened so far are still
// released by Shutdown.
func (a *App) Init(ctx context.Context) error {
	cfg := a.cfg
	a.banner()

	link, err := actuator.OpenSerial(ctx, actuator.Config{
		Port:     cfg.Serial.Port,
		BaudRate: cfg.Serial.Baud,
		Settle:   cfg.Serial.Settle,
	}, a.logger)
	if err != nil {
		return err
	}
	a.own("serial port "+link.Name(), link.Close)

	cam, err := camera.Open(cfg.Camera, a.logger)
	if err != nil {
		return err
	}
	a.own("camera", cam.Close)

	detector, err := aruco.New(aruco.Config{Dictionary: cfg.Detector.Dictionary}, a.logger)
	if err != nil {
		return err
	}
	a.own("marker detector", detector.Close)

	var sinks []pipeline.Sink

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path, a.logger)
		if err != nil {
			return err
		}
		a.own("command history", store.Close)
		sinks = append(sinks, store)
	}

	if cfg.NATS.URL != "" {
		pub, err := telemetry.Connect(cfg.NATS.URL, cfg.NATS.Subject, a.logger)
		if err != nil {
			return err
		}
		a.own("NATS publisher", pub.Close)
		sinks = append(sinks, pub)
	}

	loopOpts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.recorder),
	}

	if cfg.Dashboard.Enabled {
		webOpts := []web.Option{web.WithMetrics(a.registry), web.WithLogger(a.logger)}
		if store != nil {
			webOpts = append(webOpts, web.WithHistory(store))
		}
		a.dashboard = web.NewServer(web.Config{Host: cfg.Dashboard.Host, Port: cfg.Dashboard.Port}, webOpts...)
		a.dashboard.StartAsync(ctx)
		a.own("web dashboard", a.dashboard.Shutdown)
		sinks = append(sinks, a.dashboard)
		loopOpts = append(loopOpts, pipeline.WithStatus(a.dashboard))
	}
	loopOpts = append(loopOpts, pipeline.WithSinks(sinks...))

	var overlayOpts []overlay.Option
	if cfg.Display.Enabled {
		overlayOpts = append(overlayOpts, overlay.WithWindow(cfg.Display.Window))
	}
	if a.dashboard != nil {
		overlayOpts = append(overlayOpts, overlay.WithStream(a.dashboard, cfg.Dashboard.StreamFPS))
	}

	machineOpts := []debounce.Option{debounce.WithCooldown(cfg.Debounce.Cooldown)}
	if cfg.Debounce.HoldOnStart {
		machineOpts = append(machineOpts, debounce.WithStartupHold(time.Now()))
	}

	deps := pipeline.Deps[gocv.Mat]{
		Source:   cam,
		Detector: detector,
		Machine:  debounce.New(machineOpts...),
		Link:     link,
	}
	if len(overlayOpts) > 0 {
		ov := overlay.New(append(overlayOpts, overlay.WithLogger(a.logger))...)
		a.own("display", ov.Close)
		deps.Overlay = ov
	}

	a.loop, err = pipeline.New(deps, loopOpts...)
	return err
}

func (a *App) banner() {
	cfg := a.cfg
	fmt.Fprintln(a.out, "markerservo: marker present -> servo 0°, marker gone -> servo 90°")
	fmt.Fprintf(a.out, "  camera %d, serial %s @ %d baud, cooldown %s, dictionary %s\n",
		cfg.Camera.Device, cfg.Serial.Port, cfg.Serial.Baud, cfg.Debounce.Cooldown, cfg.Detector.Dictionary)
	if cfg.Dashboard.Enabled {
		fmt.Fprintf(a.out, "  dashboard http://%s\n", web.Config{Host: cfg.Dashboard.Host, Port: cfg.Dashboard.Port}.Addr())
	}
	if cfg.Display.Enabled {
		fmt.Fprintln(a.out, "  press q in the window or Ctrl+C to stop")
	} else {
		fmt.Fprintln(a.out, "  press Ctrl+C to stop")
	}
}

// Run drives the loop until interrupted, quit, or a camera failure.
func (a *App) Run(ctx context.Context) error {
	if err := a.loop.Run(ctx); err != nil {
		return err
	}
	frames, commands, failures := a.loop.Stats()
	a.logger.Info("run finished", "frames", frames, "commands", commands, "send_failures", failures)
	return nil
}

// Shutdown releases resources in reverse order of acquisition. It runs
// once; later calls do nothing.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		if len(a.resources) > 0 {
			fmt.Fprintln(a.out, "releasing resources...")
		}
		for i := len(a.resources) - 1; i >= 0; i-- {
			r := a.resources[i]
			if err := r.close(); err != nil {
				a.logger.Warn("release failed", "resource", r.name, "error", err)
				continue
			}
			fmt.Fprintf(a.out, "released %s\n", r.name)
		}
		a.resources = nil
	})
}
