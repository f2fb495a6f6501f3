package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	persistlog "spawnlimiter.ai/internal/persistence/log"
)

func newLogsCmd() *cobra.Command {
	var (
		level     string
		component string
		tail      int
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print service logs written with --log_files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data")
			files, err := persistlog.Files(filepath.Join(dataDir, "logs"))
			if err != nil {
				return err
			}
			var lines [][]byte
			for _, f := range files {
				err := persistlog.ReadLines(f, func(line []byte) error {
					if !matchLogLine(line, level, component) {
						return nil
					}
					lines = append(lines, bytes.Clone(line))
					if tail > 0 && len(lines) > tail {
						lines = lines[1:]
					}
					return nil
				})
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			for _, l := range lines {
				fmt.Fprintln(out, string(l))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "only this level (debug, info, warn, error)")
	cmd.Flags().StringVar(&component, "component", "", "only this component (limiter, world, bridge, indexdb, admin)")
	cmd.Flags().IntVar(&tail, "tail", 0, "print only the last N matching lines")
	return cmd
}

func matchLogLine(line []byte, level, component string) bool {
	if level == "" && component == "" {
		return true
	}
	var rec struct {
		Level     string `json:"level"`
		Component string `json:"component"`
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return false
	}
	if level != "" && rec.Level != level {
		return false
	}
	if component != "" && rec.Component != component {
		return false
	}
	return true
}
