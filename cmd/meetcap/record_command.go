package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"meetcap/internal/daemonrun"
	"meetcap/internal/ledger"
	"meetcap/internal/logging"
	"meetcap/internal/notifications"
	"meetcap/internal/scheduler"
	"meetcap/internal/session"
	"meetcap/internal/workflow"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var taskID string
	var username string
	var noProcess bool

	cmd := &cobra.Command{
		Use:   "record <meeting-link>",
		Short: "Join and record one meeting in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			link := strings.TrimSpace(args[0])
			meetingID, err := session.MeetingIDFromLink(link)
			if err != nil {
				return err
			}
			if noProcess {
				cfg.Processing.Enabled = false
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := ledger.Open(cfg.LedgerPath())
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			opts := []workflow.ManagerOption{
				workflow.WithLedger(store),
				workflow.WithNotifier(notifications.NewService(cfg)),
			}
			if post := daemonrun.NewPostProcessor(runCtx, cfg, logger); post != nil {
				opts = append(opts, workflow.WithPostProcessor(post))
			}
			manager := workflow.NewManager(cfg, logger, opts...)

			rec, runErr := manager.RunSession(runCtx, scheduler.Request{
				Link:      link,
				MeetingID: meetingID,
				TaskID:    strings.TrimSpace(taskID),
				Username:  strings.TrimSpace(username),
			})
			printRecordSummary(cmd, rec)
			return runErr
		},
	}

	cmd.Flags().StringVar(&taskID, "task-id", "", "Task identifier reported with the results")
	cmd.Flags().StringVar(&username, "username", "", "User the results are reported for")
	cmd.Flags().BoolVar(&noProcess, "no-process", false, "Skip transcription and minutes after recording")
	return cmd
}

func printRecordSummary(cmd *cobra.Command, rec session.Record) {
	if rec.Descriptor.MeetingID == "" {
		return
	}
	out := cmd.OutOrStdout()
	colorize := wantsColor(out)
	printLines(out, sectionHeader("Session "+rec.Descriptor.MeetingID, colorize))
	kind := toneOK
	if rec.State == session.StateFailed {
		kind = toneError
	}
	fmt.Fprintln(out, statusLine("State", kind, rec.State.String(), colorize))
	if rec.Layout.Root != "" {
		fmt.Fprintln(out, statusLine("Directory", toneInfo, rec.Layout.Root, colorize))
	}
	if rec.Artifact != nil {
		verified := toneOK
		if !rec.Artifact.Verified {
			verified = toneWarn
		}
		fmt.Fprintln(out, statusLine("Recording", verified, rec.Artifact.OutputPath, colorize))
	}
	if rec.MonitorEnd != "" {
		fmt.Fprintln(out, statusLine("Monitoring ended", toneInfo, rec.MonitorEnd, colorize))
	}
	if !rec.StartedAt.IsZero() && !rec.EndedAt.IsZero() {
		fmt.Fprintln(out, statusLine("Duration", toneInfo, rec.EndedAt.Sub(rec.StartedAt).Round(time.Second).String(), colorize))
	}
	for _, warn := range rec.Warnings {
		fmt.Fprintln(out, statusLine("Warning", toneWarn, warn.Error(), colorize))
	}
	if rec.Fatal != nil {
		fmt.Fprintln(out, statusLine("Error", toneError, rec.Fatal.Error(), colorize))
	}
}
