package sim

import "cowfork/kernel"

// FaultOutcome describes what the kernel did with a page fault.
type FaultOutcome string

const (
	// FaultDelivered means the fault was pushed to the context's upcall.
	FaultDelivered FaultOutcome = "delivered"

	// FaultKilled means the context was destroyed because the fault could
	// not be delivered.
	FaultKilled FaultOutcome = "killed"
)

// Observer receives kernel events. Implementations must be safe for
// concurrent use; some methods are invoked with the kernel lock held.
type Observer interface {
	// Syscall is invoked once per syscall with its name and result.
	Syscall(call string, err *kernel.Error)

	// PageFault is invoked for every page fault.
	PageFault(outcome FaultOutcome)

	// SetFramesInUse reports the number of reserved physical frames.
	SetFramesInUse(n uint32)

	// SetEnvs reports the number of allocated contexts.
	SetEnvs(n int)
}

type nopObserver struct{}

func (nopObserver) Syscall(string, *kernel.Error) {}
func (nopObserver) PageFault(FaultOutcome)        {}
func (nopObserver) SetFramesInUse(uint32)         {}
func (nopObserver) SetEnvs(int)                   {}
