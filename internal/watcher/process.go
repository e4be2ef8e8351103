package watcher

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// AgentProcess describes a running coding-agent process.
type AgentProcess struct {
	PID        int32
	WorkingDir string
	CmdLine    string
	CPUPercent float64
	StartedAt  time.Time
}

// agentBinaries are the executables recognized as coding-agent processes.
// Compile-time table, no runtime mutation.
var agentBinaries = map[string]bool{
	"claude":      true,
	"claude-code": true,
	"codex":       true,
	"gemini":      true,
}

// DiscoverAgentProcesses finds running coding-agent processes. Sessions
// whose working directory matches a live process are tailed live; the rest
// are replayed. Per-process failures are skipped, not fatal.
func DiscoverAgentProcesses() ([]AgentProcess, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var results []AgentProcess
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || !isAgentCmdline(cmdline) {
			continue
		}
		cwd, err := p.Cwd()
		if err != nil || cwd == "" {
			continue
		}

		ap := AgentProcess{
			PID:        p.Pid,
			WorkingDir: cwd,
			CmdLine:    cmdline,
		}
		if cpu, err := p.CPUPercent(); err == nil {
			ap.CPUPercent = cpu
		}
		if ms, err := p.CreateTime(); err == nil {
			ap.StartedAt = time.UnixMilli(ms)
		}
		results = append(results, ap)
	}
	return results, nil
}

// LiveWorkingDirs returns the set of working directories with a running
// agent process. Returns an empty set on discovery failure so callers fall
// back to treating every session as replay.
func LiveWorkingDirs() map[string]bool {
	procs, err := DiscoverAgentProcesses()
	if err != nil {
		return map[string]bool{}
	}
	dirs := make(map[string]bool, len(procs))
	for _, p := range procs {
		dirs[p.WorkingDir] = true
	}
	return dirs
}

func isAgentCmdline(cmdline string) bool {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return false
	}
	exe := filepath.Base(fields[0])
	if agentBinaries[exe] {
		return true
	}
	// Agents installed as node scripts run as "node /path/to/claude".
	if exe == "node" {
		for _, arg := range fields[1:] {
			base := filepath.Base(arg)
			if agentBinaries[base] && !strings.Contains(arg, "node_modules/.bin") {
				return true
			}
		}
	}
	return false
}
