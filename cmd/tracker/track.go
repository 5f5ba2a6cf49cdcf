package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/mount-tracker/control"
	"github.com/signalsfoundry/mount-tracker/ephem"
	"github.com/signalsfoundry/mount-tracker/hardware"
	"github.com/signalsfoundry/mount-tracker/internal/config"
	"github.com/signalsfoundry/mount-tracker/internal/logging"
	"github.com/signalsfoundry/mount-tracker/internal/observability"
	"github.com/signalsfoundry/mount-tracker/internal/spacetrack"
	"github.com/signalsfoundry/mount-tracker/tle"
	"github.com/signalsfoundry/mount-tracker/tracker"
)

func newTrackCmd() *cobra.Command {
	cfg, envErr := config.FromEnv(config.Default())
	var locationsPath string

	cmd := &cobra.Command{
		Use:   "track",
		Short: "track a satellite until interrupted",
		Long: `track resolves the target element set, waits for the mount controller to
announce itself, engages the motors and streams speed and position commands.

Without --port the protocol runs over stdin/stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			run := cfg
			if locationsPath != "" {
				var err error
				if run, err = run.LoadLocations(locationsPath); err != nil {
					return err
				}
			}
			return runTrack(cmd.Context(), run.ApplyDefaults())
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Target, "tle", cfg.Target, "name of the TLE to track")
	f.StringVar(&cfg.FallbackID, "fallback-id", cfg.FallbackID, "catalog id to fetch when --tle matches nothing")
	f.StringVar(&cfg.Location, "location", cfg.Location, "observer location name")
	f.StringVar(&locationsPath, "locations", "", "JSON file of extra named locations")
	f.StringVar(&cfg.SerialPort, "port", cfg.SerialPort, "serial port of the mount controller (default stdin/stdout)")
	f.IntVar(&cfg.BaudRate, "baudrate", cfg.BaudRate, "serial baud rate")
	f.BoolVar(&cfg.Echo, "echo", cfg.Echo, "log every line received from the mount")
	f.Float64Var(&cfg.StartAzimuth, "az", cfg.StartAzimuth, "starting azimuth of the mount, degrees")
	f.Float64Var(&cfg.StartAltitude, "al", cfg.StartAltitude, "starting altitude of the mount, degrees")
	f.Float64Var(&cfg.MaxSpeed, "max-speed", cfg.MaxSpeed, "fastest azimuth rate of the mount, deg/s")
	f.StringVar(&cfg.TLEDir, "tle-dir", cfg.TLEDir, "directory of persisted element sets")
	f.DurationVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "age after which an element set is refreshed")
	f.DurationVar(&cfg.ControlPeriod, "control-period", cfg.ControlPeriod, "controller tick period")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics (disabled when empty)")
	return cmd
}

func runTrack(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.NewFromEnv()
	defer initTracing(ctx, log,
		attribute.String("tracker.target", cfg.Target),
		attribute.String("tracker.location", cfg.Location),
		attribute.String("tracker.port", cfg.SerialPort),
	)()

	collector, err := observability.NewTrackerCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	schedMetrics, err := observability.NewSchedulerCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	if srv := serveMetrics(cfg.MetricsAddr, collector.Handler(), log); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cache, err := openCache(ctx, cfg, log, tle.WithRefreshObserver(collector))
	if err != nil {
		return err
	}
	rec, err := tracker.ResolveRecord(ctx, cache, cfg.Target, cfg.FallbackID)
	if err != nil {
		log.Error(ctx, "TLE could not be found", logging.String("tle", cfg.Target), logging.Err(err))
		return err
	}
	log.Info(ctx, "tracking target", logging.String("name", rec.Name), logging.String("catalog_id", rec.CatalogID))

	obs, ok := cfg.Observer()
	if !ok {
		log.Warn(ctx, "unknown location; using default",
			logging.String("location", cfg.Location),
			logging.String("default", config.DefaultLocation),
			logging.Any("known", cfg.LocationNames()),
		)
	}

	transport, err := openTransport(cfg)
	if err != nil {
		log.Error(ctx, "mount transport unusable", logging.Err(err))
		return err
	}
	defer transport.Close()

	link := hardware.NewLink(transport,
		hardware.WithEcho(cfg.Echo),
		hardware.WithReadTimeout(cfg.ReadTimeout),
		hardware.WithObserver(collector),
		hardware.WithLogger(log),
	)
	ctrl := control.New(control.Config{MaxSpeed: cfg.MaxSpeed}, ephem.NewSampler(ephem.NewSGP4Propagator(), obs), log)

	tr := tracker.New(tracker.Config{
		ControlPeriod:        cfg.ControlPeriod,
		PollInterval:         cfg.PollInterval,
		RefreshCheckInterval: cfg.RefreshCheckInterval,
	}, cache, ctrl, link,
		tracker.WithLogger(log),
		tracker.WithTickObserver(collector),
		tracker.WithTaskObserver(schedMetrics),
	)
	tr.Track(rec)

	err = tr.Run(ctx, cfg.StartAzimuth, cfg.StartAltitude)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info(context.Background(), "tracker stopped")
	return nil
}

// openCache loads persisted element sets and attaches the remote catalog when
// credentials are configured.
func openCache(ctx context.Context, cfg config.Config, log logging.Logger, opts ...tle.Option) (*tle.Cache, error) {
	store, err := tle.NewFileStore(cfg.TLEDir)
	if err != nil {
		return nil, err
	}

	var catalog tle.Catalog
	client, err := spacetrack.NewClient(spacetrack.ConfigFromEnv(), nil, log)
	switch {
	case err == nil:
		catalog = client
	case errors.Is(err, spacetrack.ErrMissingCredentials):
		log.Warn(ctx, "no catalog credentials; element sets will not be refreshed")
	default:
		return nil, err
	}

	opts = append(opts,
		tle.WithLogger(log),
		tle.WithRefreshInterval(cfg.RefreshInterval),
	)
	cache := tle.NewCache(catalog, store, opts...)
	if err := cache.Load(ctx); err != nil {
		return nil, err
	}
	return cache, nil
}

func openTransport(cfg config.Config) (hardware.Transport, error) {
	if cfg.SerialPort == "" {
		return hardware.NewStreamTransport(os.Stdin, os.Stdout), nil
	}
	return hardware.OpenSerial(hardware.SerialConfig{Port: cfg.SerialPort, BaudRate: cfg.BaudRate})
}
