package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"spawnlimiter.ai/internal/sim/entities"
	"spawnlimiter.ai/internal/sim/tuning"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [config.yaml]",
		Short: "Validate a configuration file and print its warnings and limits",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "./configs/spawnlimiter.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			t, warnings, err := tuning.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintln(out, "warning:", w)
			}

			keys := make([]string, 0, len(t.Entities))
			for k := range t.Entities {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				kind := "type"
				if _, ok := entities.ParseCategory(k); ok {
					kind = "category"
				}
				fmt.Fprintf(out, "%-12s %-9s %d\n", k, kind, t.Entities[k])
			}
			if !t.ListenersEnabled() {
				fmt.Fprintln(out, "note: no listeners enabled; nothing will be enforced")
			}
			fmt.Fprintf(out, "ok: %s (%d limits, %d warnings)\n", path, len(keys), len(warnings))
			return nil
		},
	}
}
