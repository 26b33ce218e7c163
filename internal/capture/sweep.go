package capture

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// Sweeper kills capture processes left behind by an earlier crash that still
// write to the same output file.
type Sweeper interface {
	Sweep(ctx context.Context, binary, outputPath string) (int, error)
}

type processSweeper struct{}

// NewProcessSweeper returns a Sweeper that scans the process table.
func NewProcessSweeper() Sweeper {
	return processSweeper{}
}

func (processSweeper) Sweep(ctx context.Context, binary, outputPath string) (int, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, err
	}
	name := filepath.Base(binary)
	killed := 0
	for _, p := range procs {
		if ctx.Err() != nil {
			return killed, ctx.Err()
		}
		procName, err := p.Name()
		if err != nil || !strings.EqualFold(procName, name) {
			continue
		}
		args, err := p.CmdlineSlice()
		if err != nil || !writesTo(args, outputPath) {
			continue
		}
		if err := p.Kill(); err == nil {
			killed++
		}
	}
	return killed, nil
}

func writesTo(args []string, outputPath string) bool {
	if len(args) == 0 {
		return false
	}
	target := filepath.Clean(outputPath)
	return filepath.Clean(args[len(args)-1]) == target
}
