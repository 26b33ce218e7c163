package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"meetcap/internal/api"
	"meetcap/internal/ledger"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	var id int64

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := ledger.Open(cfg.LedgerPath())
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			if id > 0 {
				return showSession(cmd, store, id, asJSON)
			}

			rows, err := store.ListSessions(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			sessions := api.FromLedgerSessions(rows)
			if asJSON {
				return writeJSON(cmd, api.SessionListResponse{Sessions: sessions})
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}
			table := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				table = append(table, []string{
					strconv.FormatInt(s.ID, 10),
					s.MeetingID,
					s.State,
					s.ErrorKind,
					yesNo(s.Verified),
					yesNo(s.Processed),
					s.StartedAt,
				})
			}
			fmt.Fprintln(out, formatTable(
				[]string{"ID", "Meeting", "State", "Error", "Verified", "Processed", "Started"},
				table,
				0,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	cmd.Flags().Int64Var(&id, "id", 0, "Show one session with its state history")
	return cmd
}

func showSession(cmd *cobra.Command, store *ledger.Store, id int64, asJSON bool) error {
	row, err := store.GetSession(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("session %d: %w", id, err)
	}
	transitions, err := store.Transitions(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("session %d transitions: %w", id, err)
	}
	detail := api.SessionDetailResponse{
		Session:     api.FromLedgerSession(row),
		Transitions: api.FromTransitions(transitions),
	}
	if asJSON {
		return writeJSON(cmd, detail)
	}

	out := cmd.OutOrStdout()
	s := detail.Session
	fmt.Fprintf(out, "Session %d (%s)\n", s.ID, s.MeetingID)
	fmt.Fprintf(out, "  Link:      %s\n", s.Link)
	fmt.Fprintf(out, "  Directory: %s\n", s.Dir)
	fmt.Fprintf(out, "  State:     %s\n", s.State)
	if s.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:     %s (%s)\n", s.ErrorMessage, s.ErrorKind)
	}
	rows := make([][]string, 0, len(detail.Transitions))
	for _, t := range detail.Transitions {
		rows = append(rows, []string{t.At, t.From, t.To, t.Error})
	}
	fmt.Fprintln(out, formatTable([]string{"At", "From", "To", "Error"}, rows))
	return nil
}
