//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-ps"
)

var (
	// ErrAlreadyRunning is returned when another process of the same executable is alive.
	ErrAlreadyRunning = errors.New("another instance is already running")
	// errOwnProcessMissing is returned when the process table does not list this process.
	errOwnProcessMissing = errors.New("own process not found in process table")
)

// EnsureSingleInstance fails when another process runs the same executable,
// which happens when cron fires again before a slow device answered.
func EnsureSingleInstance() error {
	processList, err := ps.Processes()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	self, err := ps.FindProcess(thisProcessID)
	if err != nil {
		return fmt.Errorf("find own process: %w", err)
	}

	if self == nil {
		return errOwnProcessMissing
	}

	if other := findOtherInstance(processList, thisProcessID, self.Executable()); other != nil {
		return fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, other.Executable(), other.Pid())
	}

	return nil
}

// findOtherInstance returns a process other than thisProcessID named executable.
func findOtherInstance(processList []ps.Process, thisProcessID int, executable string) ps.Process {
	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == executable {
			return process
		}
	}

	return nil
}
