package main

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/teslashibe/markerservo/pkg/history"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		limit int
		path  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently sent servo commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.History.Path
			}

			store, err := history.Open(path, slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintf(out, "no commands recorded in %s\n", path)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tRUN\tSEQ\tCOMMAND\tANGLE\tMARKERS\tSTATUS")
			for _, r := range recs {
				status := "sent"
				if !r.Delivered {
					status = "failed: " + r.Error
				}
				markers := r.MarkerIDs
				if markers == "" {
					markers = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
					r.At.Local().Format(time.DateTime), shortID(r.RunID), r.Seq, r.Command, r.Angle, markers, status)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "number of commands to show")
	cmd.Flags().StringVar(&path, "path", "", "SQLite database path (default from config)")
	return cmd
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
