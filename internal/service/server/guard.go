package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/safezone/internal/logger"
)

// errAlreadyRunning is returned when another server owns the state file.
var errAlreadyRunning = errors.New("another safezone-server is already running")

// ensureSingleInstance refuses to start when another process runs the same executable.
func ensureSingleInstance(ctx context.Context) error {
	executable, err := os.Executable()
	if err != nil {
		logger.WarnKV(ctx, "Unable to detect own executable, skipping instance check", "error", err)

		return nil
	}

	pids, err := otherInstances(filepath.Base(executable))
	if err != nil {
		logger.WarnKV(ctx, "Unable to list processes, skipping instance check", "error", err)

		return nil
	}

	if len(pids) > 0 {
		return fmt.Errorf("%w: pid %v", errAlreadyRunning, pids)
	}

	return nil
}

// otherInstances returns the ids of other processes running the named executable.
func otherInstances(name string) ([]int, error) {
	processList, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	var pids []int

	for _, process := range processList {
		if process.Pid() == thisProcessID || process.Executable() != name {
			continue
		}

		pids = append(pids, process.Pid())
	}

	return pids, nil
}
