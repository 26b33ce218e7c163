package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"meetcap/internal/api"
	"meetcap/internal/config"
	"meetcap/internal/daemonctl"
	"meetcap/internal/deps"
)

const statusTimeout = 5 * time.Second

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			status, err := fetchDaemonStatus(cmd.Context(), cfg)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
					out := cmd.OutOrStdout()
					message := "not running"
					if alive, pid, _ := daemonctl.ProcessInfo(cfg.PIDPath()); alive {
						message = fmt.Sprintf("running (pid %d) but the API at %s is unreachable", pid, cfg.Paths.APIBind)
					}
					fmt.Fprintln(out, statusLine("Daemon", toneWarn, message, wantsColor(out)))
					return nil
				}
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func fetchDaemonStatus(ctx context.Context, cfg *config.Config) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return status, errors.New("paths.api_bind is empty; the daemon has no HTTP API")
	}
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+bind+"/api/status", nil)
	if err != nil {
		return status, err
	}
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return status, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return status, fmt.Errorf("daemon status: %s", apiErr.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode daemon status: %w", err)
	}
	return status, nil
}

func renderDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	colorize := wantsColor(out)

	printLines(out, sectionHeader("Daemon", colorize))
	running := toneWarn
	if status.Running {
		running = toneOK
	}
	fmt.Fprintln(out, statusLine("Running", running, fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	fmt.Fprintln(out, statusLine("Ledger", toneInfo, status.LedgerPath, colorize))
	if status.APIAddress != "" {
		fmt.Fprintln(out, statusLine("API", toneInfo, status.APIAddress, colorize))
	}

	fmt.Fprintln(out)
	printLines(out, sectionHeader("Sessions", colorize))
	wf := status.Workflow
	fmt.Fprintln(out, statusLine("Active", toneInfo, fmt.Sprintf("%d", len(wf.Active)), colorize))
	for _, active := range wf.Active {
		fmt.Fprintln(out, statusLine(active.MeetingID, toneInfo, active.State, colorize))
	}
	fmt.Fprintln(out, statusLine("Completed", toneOK, fmt.Sprintf("%d", wf.Completed), colorize))
	failedKind := toneOK
	if wf.Failed > 0 {
		failedKind = toneWarn
	}
	fmt.Fprintln(out, statusLine("Failed", failedKind, fmt.Sprintf("%d", wf.Failed), colorize))
	if wf.LastError != "" {
		fmt.Fprintln(out, statusLine("Last error", toneError, wf.LastError, colorize))
	}

	fmt.Fprintln(out)
	printLines(out, sectionHeader("Scheduler", colorize))
	sched := status.Scheduler
	if !sched.Enabled {
		fmt.Fprintln(out, statusLine("Polling", toneInfo, "disabled", colorize))
	} else {
		last := sched.LastPollAt
		if last == "" {
			last = "never"
		}
		fmt.Fprintln(out, statusLine("Polls", toneInfo, fmt.Sprintf("%d (last %s)", sched.Polls, last), colorize))
		fmt.Fprintln(out, statusLine("Last poll", toneInfo,
			fmt.Sprintf("%d fetched, %d in window, %d dispatched", sched.Fetched, sched.InWindow, sched.Dispatched), colorize))
		if sched.LastError != "" {
			fmt.Fprintln(out, statusLine("Poll error", toneError, sched.LastError, colorize))
		}
	}

	if len(status.Dependencies) > 0 {
		fmt.Fprintln(out)
		printLines(out, sectionHeader("Dependencies", colorize))
		statuses := make([]deps.Status, 0, len(status.Dependencies))
		for _, d := range status.Dependencies {
			statuses = append(statuses, deps.Status{
				Name: d.Name, Command: d.Command, Description: d.Description,
				Optional: d.Optional, Available: d.Available, Detail: d.Detail,
			})
		}
		printLines(out, dependencyLines(statuses, colorize))
	}
}
