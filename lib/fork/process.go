// Package fork implements copy-on-write process duplication in user space on
// top of the exokernel primitives described by package sys.
package fork

import (
	"fmt"

	"cowfork/kernel/kfmt"
	"cowfork/kernel/sys"

	"github.com/sirupsen/logrus"
)

// Process is the user-space state of one context: its syscall interface,
// its own id and its fault handler registration.
type Process struct {
	sys  sys.Syscalls
	self sys.EnvID
	reg  *Registration
}

// Entry is the code a forked child runs once it is scheduled.
type Entry func(p *Process)

// New returns the Process for the context that owns s.
func New(s sys.Syscalls) *Process {
	return &Process{sys: s, self: s.EnvID()}
}

// Self returns the id of the context p runs in.
func (p *Process) Self() sys.EnvID {
	return p.self
}

// Sys returns the syscall interface of the context.
func (p *Process) Sys() sys.Syscalls {
	return p.sys
}

// Printf writes a formatted line to the kernel console.
func (p *Process) Printf(format string, args ...interface{}) {
	p.sys.Cputs(fmt.Sprintf(format, args...))
}

func (p *Process) logger() *logrus.Entry {
	return kfmt.Logger().WithFields(logrus.Fields{"module": "fork", "env": p.self})
}
