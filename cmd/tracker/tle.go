package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/mount-tracker/hardware"
	"github.com/signalsfoundry/mount-tracker/internal/config"
	"github.com/signalsfoundry/mount-tracker/internal/logging"
)

func newTLECmd() *cobra.Command {
	cfg, envErr := config.FromEnv(config.Default())

	cmd := &cobra.Command{
		Use:   "tle",
		Short: "inspect and fetch cached element sets",
	}
	cmd.PersistentFlags().StringVar(&cfg.TLEDir, "tle-dir", cfg.TLEDir, "directory of persisted element sets")

	list := &cobra.Command{
		Use:   "list",
		Short: "list cached element sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			log := logging.NewFromEnv()
			cache, err := openCache(cmd.Context(), cfg.ApplyDefaults(), log)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCATALOG ID\tLAST UPDATE")
			for _, r := range cache.Records() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.CatalogID, r.LastUpdate.UTC().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}

	get := &cobra.Command{
		Use:   "get <catalog-id>",
		Short: "print an element set, fetching and caching it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			ctx := cmd.Context()
			log := logging.NewFromEnv()
			defer initTracing(ctx, log, attribute.String("tle.catalog_id", args[0]))()

			cache, err := openCache(ctx, cfg.ApplyDefaults(), log)
			if err != nil {
				return err
			}
			rec, err := cache.GetOrFetch(ctx, args[0])
			if err != nil {
				return err
			}
			for _, line := range rec.Lines() {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "list serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := hardware.ListSerialPorts()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
