package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/mount-tracker/internal/logging"
	"github.com/signalsfoundry/mount-tracker/internal/observability"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "tracker: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tracker",
		Short: "point an az-alt mount at a satellite",
		Long: `tracker follows an orbiting object with an azimuth/altitude mount.

Element sets are cached on disk and refreshed from space-track.org when
SPACETRACK_IDENTITY and SPACETRACK_PASSWORD are set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTrackCmd(), newTLECmd(), newPortsCmd())
	return root
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" || handler == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// initTracing starts tracing from the environment, tagging the resource with
// attrs, and returns its shutdown.
func initTracing(ctx context.Context, log logging.Logger, attrs ...attribute.KeyValue) func() {
	cfg := observability.TracingConfigFromEnv().WithAttributes(attrs...)
	shutdown, err := observability.InitTracing(ctx, cfg, log)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logging.Err(err))
		return func() {}
	}
	return func() { observability.ShutdownWithTimeout(context.Background(), shutdown, log) }
}
