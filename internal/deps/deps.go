package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement names an external program and whether meetcap can run
// without it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of probing one Requirement. Path is the resolved
// executable when Available; Detail explains a miss.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// CheckBinaries probes each requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		out[i] = check(req)
	}
	return out
}

func check(req Requirement) Status {
	st := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if st.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	path, err := locate(st.Command)
	if err != nil {
		st.Detail = err.Error()
		return st
	}
	st.Available, st.Path = true, path
	return st
}

var errNotExecutable = errors.New("not executable")

// locate resolves cmd the way exec does: absolute or relative paths are
// checked in place, bare names are searched on PATH.
func locate(cmd string) (string, error) {
	if strings.ContainsRune(cmd, filepath.Separator) {
		info, err := os.Stat(cmd)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("%q does not exist", cmd)
		case err != nil:
			return "", fmt.Errorf("stat %q: %w", cmd, err)
		case info.IsDir() || info.Mode().Perm()&0o111 == 0:
			return "", fmt.Errorf("%q is %w", cmd, errNotExecutable)
		}
		return cmd, nil
	}
	path, err := exec.LookPath(cmd)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", cmd)
	}
	return path, nil
}

// Missing filters statuses down to unavailable required programs.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}
