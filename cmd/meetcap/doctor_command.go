package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meetcap/internal/deps"
	"meetcap/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var skipNetwork bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools, credentials, and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := wantsColor(out)

			statuses := preflight.CheckSystemDeps(cfg)
			printLines(out, sectionHeader("Dependencies", colorize))
			printLines(out, dependencyLines(statuses, colorize))

			failures := len(deps.Missing(statuses))
			if !skipNetwork {
				fmt.Fprintln(out)
				printLines(out, sectionHeader("Preflight", colorize))
				for _, result := range preflight.RunAll(cmd.Context(), cfg) {
					kind := toneOK
					if !result.Passed {
						kind = toneError
						failures++
					}
					fmt.Fprintln(out, statusLine(result.Name, kind, result.Detail, colorize))
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d check(s) failed", failures)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipNetwork, "offline", false, "Only check local binaries")
	return cmd
}
