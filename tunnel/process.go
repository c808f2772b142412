package tunnel

import (
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo is one visible process: its pid and argument vector.
type ProcessInfo struct {
	PID  int32
	Args []string
}

// Inspector queries and signals processes. The process table is an external
// world the manager must never conflate with registry state, so it sits
// behind an interface that tests can substitute.
type Inspector interface {
	// Processes returns the argument vectors of all visible processes.
	// Processes whose arguments cannot be read are skipped.
	Processes() ([]ProcessInfo, error)

	// Terminate sends a graceful termination signal to pid, allowing the
	// process to clean up. It does not force-kill.
	Terminate(pid int32) error
}

// NewInspector returns an Inspector backed by the OS process table.
func NewInspector() Inspector {
	return systemInspector{}
}

type systemInspector struct{}

func (systemInspector) Processes() ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, errors.Wrap(err, "list processes")
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		args, err := p.CmdlineSlice()
		if err != nil || len(args) == 0 {
			continue
		}
		infos = append(infos, ProcessInfo{PID: p.Pid, Args: args})
	}
	return infos, nil
}

func (systemInspector) Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return errors.Wrapf(err, "find process %d", pid)
	}
	return p.Terminate()
}
