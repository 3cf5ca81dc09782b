// Package privsep drops the CAP_SYS_NICE scheduling capability before the
// frame loop starts, following the teacher's capability.go
// one-for-one: the same getCurrentCaps/hasCapSysResource/makeBinarySetcapped
// shape, swapped from CAP_SYS_RESOURCE (rlimit bumps) to CAP_SYS_NICE
// (the capability that permits raising scheduling priority).
package privsep

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/syndtr/gocapability/capability"
)

// currentCaps loads the running process's capability set.
func currentCaps() (capability.Capabilities, error) {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return nil, fmt.Errorf("privsep: load self caps: %w", err)
	}
	if err := caps.Load(); err != nil {
		return nil, fmt.Errorf("privsep: load self caps: %w", err)
	}
	return caps, nil
}

// selfFileCaps loads the file capabilities set on the running binary.
func selfFileCaps() (capability.Capabilities, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("privsep: find own executable: %w", err)
	}
	caps, err := capability.NewFile2(self)
	if err != nil {
		return nil, fmt.Errorf("privsep: read file caps: %w", err)
	}
	if err := caps.Load(); err != nil {
		return nil, fmt.Errorf("privsep: load file caps: %w", err)
	}
	return caps, nil
}

// HasSysNice reports whether the running process currently holds
// CAP_SYS_NICE in its effective set.
func HasSysNice() (bool, error) {
	caps, err := currentCaps()
	if err != nil {
		return false, err
	}
	return caps.Get(capability.EFFECTIVE, capability.CAP_SYS_NICE), nil
}

// EnsureFileCapSysNice sets CAP_SYS_NICE in the binary's file capability
// set if it is not already present, mirroring makeBinarySetcapped.
// Requires the caller to already be privileged enough to call setcap on
// its own executable (normally run once via PkexecSetcapSelf).
func EnsureFileCapSysNice() error {
	fileCaps, err := selfFileCaps()
	if err != nil {
		return err
	}
	if fileCaps.Get(capability.EFFECTIVE, capability.CAP_SYS_NICE) {
		return nil
	}
	fileCaps.Set(capability.EFFECTIVE|capability.PERMITTED|capability.INHERITABLE, capability.CAP_SYS_NICE)
	if err := fileCaps.Apply(capability.EFFECTIVE | capability.PERMITTED | capability.INHERITABLE); err != nil {
		return fmt.Errorf("privsep: apply file caps: %w", err)
	}
	return nil
}

// PkexecSetcapSelf re-execs the current binary under pkexec with the
// -setcap flag, following the teacher's elevation dance for a one-time,
// user-consented privilege grant instead of running the whole daemon as
// root.
func PkexecSetcapSelf(setcapFlag string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("privsep: find own executable: %w", err)
	}
	cmd := exec.Command("pkexec", self, setcapFlag)
	return cmd.Run()
}

// DropSysNice clears CAP_SYS_NICE from the process's effective and
// permitted sets. Nothing in this module raises the scheduling priority
// before it is called.
func DropSysNice() error {
	caps, err := currentCaps()
	if err != nil {
		return err
	}
	caps.Unset(capability.EFFECTIVE|capability.PERMITTED, capability.CAP_SYS_NICE)
	if err := caps.Apply(capability.EFFECTIVE | capability.PERMITTED); err != nil {
		return fmt.Errorf("privsep: drop CAP_SYS_NICE: %w", err)
	}
	return nil
}
