package ipc

import "syscall"

// The engine gets its own process group so it can be killed with any helpers
// it forked, and is killed by the kernel if this process dies first.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}
