// Package deps reports whether the external binaries monistor runs are
// installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"monistor/internal/config"
)

// Requirement defines an external binary monistor relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// Companion is the supervised display daemon configured in daemon.binary.
func Companion(cfg *config.Config) Requirement {
	req := Requirement{
		Name:        "Companion daemon",
		Description: "display daemon supervised while monistor is enabled",
	}
	if cfg != nil {
		req.Command = cfg.Daemon.Binary
	}
	return req
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = resolved
		results = append(results, status)
	}
	return results
}
