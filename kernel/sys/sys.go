// Package sys describes the capabilities that the exokernel exposes to a
// user-space context. The kernel implements address-space primitives only;
// everything else, including fork, is built on top of them in user space.
package sys

import (
	"fmt"

	"cowfork/kernel"
	"cowfork/kernel/mm/vmm"
)

// EnvID identifies an execution context (environment). Valid ids are
// positive. Passing zero to a syscall refers to the calling context.
type EnvID int32

// Self is the EnvID that syscalls interpret as "the calling context".
const Self EnvID = 0

// String implements fmt.Stringer.
func (id EnvID) String() string {
	return fmt.Sprintf("%08x", int32(id))
}

// Status is the scheduling status of a context.
type Status uint8

const (
	StatusFree Status = iota
	StatusDying
	StatusRunnable
	StatusRunning
	StatusNotRunnable
)

var statusNames = [...]string{
	StatusFree:        "free",
	StatusDying:       "dying",
	StatusRunnable:    "runnable",
	StatusRunning:     "running",
	StatusNotRunnable: "not-runnable",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// FaultCode holds the hardware error code bits reported for a page fault.
type FaultCode uint32

const (
	// FaultPresent is set for protection violations and cleared when the
	// page was not present.
	FaultPresent FaultCode = 1 << iota

	// FaultWrite is set when the faulting access was a write.
	FaultWrite

	// FaultUser is set when the fault happened in user mode.
	FaultUser
)

// Has returns true if all bits in flags are set.
func (c FaultCode) Has(flags FaultCode) bool {
	return c&flags == flags
}

// UTrapframe is the snapshot that the kernel pushes onto the user exception
// stack before invoking a context's fault upcall.
type UTrapframe struct {
	// FaultVA is the faulting virtual address.
	FaultVA uintptr

	// Err is the hardware error code.
	Err FaultCode
}

// Upcall is the entry point the kernel invokes on the faulting context's
// exception stack. s is the faulting context's own syscall interface.
type Upcall func(s Syscalls, tf *UTrapframe)

// Resume is the continuation of a newly created context. The kernel runs it
// inside the child, with the child's own syscall interface, once the child is
// marked runnable.
type Resume func(s Syscalls)

// Memory is the load/store path of a context. Accesses are translated
// through the context's page tables; a failing access raises a page fault
// which is delivered to the context's upcall and retried once the upcall
// returns. An access that cannot be resolved terminates the context.
type Memory interface {
	Load(virtAddr uintptr, p []byte)
	Store(virtAddr uintptr, p []byte)
}

// Syscalls is the capability set that a context receives from the kernel.
// Every call is issued on behalf of the context that owns the value.
type Syscalls interface {
	vmm.VPT
	Memory

	// EnvID returns the id of the calling context. It is always fetched
	// fresh from the kernel.
	EnvID() EnvID

	// Exofork creates a new context with an empty address space and
	// status StatusNotRunnable. It returns the child's id to the caller;
	// resume is the child's return path and runs inside the child.
	Exofork(resume Resume) (EnvID, *kernel.Error)

	// AllocPage allocates a zeroed frame and maps it at virtAddr in env,
	// replacing any existing mapping.
	AllocPage(env EnvID, virtAddr uintptr, perm vmm.PageTableEntryFlag) *kernel.Error

	// MapPage maps the frame behind srcVA in srcEnv at dstVA in dstEnv,
	// replacing any existing mapping at dstVA.
	MapPage(srcEnv EnvID, srcVA uintptr, dstEnv EnvID, dstVA uintptr, perm vmm.PageTableEntryFlag) *kernel.Error

	// UnmapPage removes the mapping at virtAddr in env. Unmapping a hole
	// silently succeeds.
	UnmapPage(env EnvID, virtAddr uintptr) *kernel.Error

	// SetStatus sets the status of env to StatusRunnable or
	// StatusNotRunnable.
	SetStatus(env EnvID, status Status) *kernel.Error

	// SetFaultUpcall installs the page fault entry point for env.
	SetFaultUpcall(env EnvID, upcall Upcall) *kernel.Error

	// Cputs writes s to the kernel console.
	Cputs(s string)
}
