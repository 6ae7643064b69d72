package shell

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ForegroundInfo summarizes what's currently running in the PTY's
// foreground process group, used by StatusCheck to tell a caller whether a
// long-running command is actually making progress.
type ForegroundInfo struct {
	Pgid      int
	Processes []ForegroundProcess
}

// ForegroundProcess is one process in the foreground group.
type ForegroundProcess struct {
	PID     int32
	Command string
}

// foregroundGroup reads the PTY's foreground process group id and resolves
// the processes in it, grounded in the teacher's startupWatchdog diagnostic
// calls: gopsutil first, falling back to shelling out to ps when gopsutil
// fails or finds no process in the group.
func foregroundGroup(ptyFd int) (*ForegroundInfo, error) {
	pgid, err := unix.IoctlGetInt(ptyFd, unix.TIOCGPGRP)
	if err != nil {
		return nil, fmt.Errorf("read foreground pgid: %w", err)
	}

	info := &ForegroundInfo{Pgid: pgid}

	if procs, err := foregroundViaGopsutil(pgid); err == nil && len(procs) > 0 {
		info.Processes = procs
		return info, nil
	}

	procs, err := foregroundViaPS(pgid)
	if err != nil {
		return info, nil // best-effort: an empty process list is not fatal
	}
	info.Processes = procs
	return info, nil
}

func foregroundViaGopsutil(pgid int) ([]ForegroundProcess, error) {
	all, err := gopsprocess.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var out []ForegroundProcess
	for _, p := range all {
		groups, err := processGroupID(p)
		if err != nil || groups != pgid {
			continue
		}
		name, err := p.Name()
		if err != nil {
			name = "?"
		}
		out = append(out, ForegroundProcess{PID: p.Pid, Command: name})
	}
	return out, nil
}

// processGroupID returns p's process group id via getpgid, since gopsutil
// itself does not expose pgid directly.
func processGroupID(p *gopsprocess.Process) (int, error) {
	return unix.Getpgid(int(p.Pid))
}

// foregroundViaPS shells out to ps, the fallback the teacher's
// startupWatchdog itself uses when richer introspection is unavailable.
func foregroundViaPS(pgid int) ([]ForegroundProcess, error) {
	out, err := exec.Command("ps", "-o", "pid,command", "-g", strconv.Itoa(pgid)).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ps -g %d: %w", pgid, err)
	}
	return parsePSOutput(string(out)), nil
}

func parsePSOutput(out string) []ForegroundProcess {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) <= 1 {
		return nil
	}
	var procs []ForegroundProcess
	for _, line := range lines[1:] {
		fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		procs = append(procs, ForegroundProcess{PID: int32(pid), Command: strings.TrimSpace(fields[1])})
	}
	return procs
}
