package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"meetcap/internal/config"
	"meetcap/internal/logs"
	"meetcap/internal/session"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var meetingID string
	var ffmpeg bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log or a session's log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path, err := logPath(cfg, meetingID, ffmpeg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			emit := func(line string) { fmt.Fprintln(out, line) }

			if follow {
				runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
				return logs.Follow(runCtx, path, lines, nil, emit)
			}
			res, err := logs.Tail(cmd.Context(), path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			if len(res.Lines) == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "no log lines in %s\n", path)
			}
			for _, line := range res.Lines {
				emit(line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&meetingID, "meeting", "", "Show the log of this meeting id instead of the daemon log")
	cmd.Flags().BoolVar(&ffmpeg, "ffmpeg", false, "With --meeting, show the capture log")
	return cmd
}

func logPath(cfg *config.Config, meetingID string, ffmpeg bool) (string, error) {
	meetingID = strings.TrimSpace(meetingID)
	if meetingID == "" {
		if ffmpeg {
			return "", fmt.Errorf("--ffmpeg requires --meeting")
		}
		return filepath.Join(cfg.Paths.LogDir, "meetcap.log"), nil
	}
	if meetingID != filepath.Base(meetingID) || meetingID == "." || meetingID == ".." {
		return "", fmt.Errorf("invalid meeting id %q", meetingID)
	}
	layout := session.NewLayout(cfg.Paths.StorageDir, meetingID)
	if ffmpeg {
		return layout.CaptureLogPath(), nil
	}
	return layout.ProcessLogPath(), nil
}
