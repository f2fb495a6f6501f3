package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"spawnlimiter.ai/internal/persistence/indexdb"
)

func newStatsCmd() *cobra.Command {
	var (
		dbPath string
		world  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize limiter activity recorded in the usage index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dataDir, _ := cmd.Flags().GetString("data")
				dbPath = filepath.Join(dataDir, "index", "usage.sqlite")
			}
			r, err := indexdb.OpenReader(dbPath)
			if err != nil {
				return err
			}
			defer r.Close()
			ctx := cmd.Context()

			out := cmd.OutOrStdout()
			if cv, ok, err := r.LatestConfig(ctx); err != nil {
				return err
			} else if ok {
				fmt.Fprintf(out, "config v%d %s (digest %.12s, %d warnings, loaded %s)\n\n", cv.Version, cv.Path, cv.Digest, cv.Warnings, cv.LoadedAt)
			}

			trig, err := r.TriggerStats(ctx, world)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORLD\tTRIGGER\tEVALUATIONS\tREJECTED\tREMOVED\tUPDATED")
			for _, s := range trig {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.World, s.Trigger,
					humanize.Comma(s.Count), humanize.Comma(s.Rejections), humanize.Comma(s.Removals), s.UpdatedAt)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out)

			keys, err := r.KeyStats(ctx, world, limit)
			if err != nil {
				return err
			}
			tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORLD\tKEY\tREJECTED\tEVICTIONS\tREMOVED\tFORCED")
			for _, s := range keys {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.World, s.Key,
					humanize.Comma(s.Rejections), humanize.Comma(s.Evictions), humanize.Comma(s.Removals), humanize.Comma(s.Forced))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "usage index path (default <data>/index/usage.sqlite)")
	cmd.Flags().StringVar(&world, "world", "", "only this world")
	cmd.Flags().IntVar(&limit, "limit", 20, "max keys listed")
	return cmd
}
