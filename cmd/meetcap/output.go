package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"meetcap/internal/deps"
)

// tone picks the tag and color of a status line.
type tone int

const (
	toneInfo tone = iota
	toneOK
	toneWarn
	toneError
)

var toneTags = [...]string{toneInfo: "INFO", toneOK: "OK", toneWarn: "WARN", toneError: "ERROR"}

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var toneColors = [...]string{toneInfo: ansiBlue, toneOK: ansiGreen, toneWarn: ansiYellow, toneError: ansiRed}

const labelWidth = 20

// statusLine renders "  Label:               [TAG] message".
func statusLine(label string, t tone, message string, color bool) string {
	tag := "[" + toneTags[t] + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", labelWidth, label+":", tag)
	if color {
		return toneColors[t] + line + ansiReset
	}
	return line
}

func sectionHeader(title string, color bool) []string {
	head := "== " + strings.TrimSpace(title) + " =="
	lines := []string{head, strings.Repeat("-", len(head))}
	if color {
		for i := range lines {
			lines[i] = ansiBlue + lines[i] + ansiReset
		}
	}
	return lines
}

func printLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// wantsColor reports whether w is an interactive terminal.
func wantsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// dependencyLines renders one line per dependency plus a summary naming the
// missing required ones.
func dependencyLines(statuses []deps.Status, color bool) []string {
	var lines, missing []string
	for _, dep := range statuses {
		switch {
		case dep.Available && dep.Command != "":
			lines = append(lines, statusLine(dep.Name, toneOK, "Ready (command: "+dep.Command+")", color))
		case dep.Available:
			lines = append(lines, statusLine(dep.Name, toneOK, "Ready", color))
		default:
			detail := strings.TrimSpace(dep.Detail)
			if detail == "" {
				detail = "not available"
			}
			t := toneWarn
			if !dep.Optional {
				t = toneError
				missing = append(missing, dep.Name)
			}
			lines = append(lines, statusLine(dep.Name, t, detail, color))
		}
	}
	if len(missing) > 0 {
		lines = append(lines, statusLine("Missing dependencies", toneWarn, strings.Join(missing, ", "), color))
	}
	return lines
}

// formatTable renders rows under headers with rounded borders. Columns listed
// in rightAligned (zero-based) are right aligned; short rows are padded.
func formatTable(headers []string, rows [][]string, rightAligned ...int) string {
	if len(headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(toRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(toRow(row, len(headers)))
	}
	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: col + 1, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}

// writeJSON prints v as indented JSON on the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
