package sim

import (
	"fmt"

	"cowfork/kernel"
	"cowfork/kernel/kfmt"
	"cowfork/kernel/sys"
)

const (
	// NEnv is the size of the environment table.
	NEnv = 1 << logNEnv

	logNEnv = 10

	// envGenShift is the shift for the generation part of an EnvID.
	// Generations start above the slot index bits so ids are always
	// positive and never reused immediately after a slot is freed.
	envGenShift = 12
)

// envx returns the environment table slot referenced by id.
func envx(id sys.EnvID) int {
	return int(id) & (NEnv - 1)
}

// Stats holds per-context fault accounting.
type Stats struct {
	// Faults counts every page fault raised by the context.
	Faults int

	// Upcalls counts the faults that were delivered to the context's
	// fault upcall.
	Upcalls int
}

// env is an entry in the environment table.
type env struct {
	id     sys.EnvID
	parent sys.EnvID
	status sys.Status

	as      *addrSpace
	upcall  sys.Upcall
	resume  sys.Resume
	started bool

	// upcallDepth counts the trap frames currently pushed onto the user
	// exception stack.
	upcallDepth int

	console *kfmt.PrefixWriter
}

// allocEnv claims a free slot in the environment table and sets up an empty
// address space for it. Must be called with k.mu held.
func (k *Kernel) allocEnv(parent sys.EnvID) (*env, *kernel.Error) {
	for slot := 0; slot < k.maxEnvs; slot++ {
		e := k.envs[slot]
		if e.status != sys.StatusFree {
			continue
		}

		as, err := newAddrSpace(k.alloc)
		if err != nil {
			return nil, err
		}

		generation := (int32(e.id) + (1 << envGenShift)) &^ (NEnv - 1)
		if generation <= 0 {
			generation = 1 << envGenShift
		}

		*e = env{
			id:     sys.EnvID(generation | int32(slot)),
			parent: parent,
			status: sys.StatusNotRunnable,
			as:     as,
		}
		e.console = &kfmt.PrefixWriter{
			Sink:   k.consoleSink,
			Prefix: []byte(fmt.Sprintf("[%s] ", e.id)),
		}
		k.stats[e.id] = &Stats{}
		k.live++
		k.obs.SetEnvs(k.live)
		k.obs.SetFramesInUse(k.alloc.InUse())

		return e, nil
	}

	return nil, kernel.ErrNoFreeEnv
}

// envid2env converts an EnvID to an env pointer. Id zero refers to cur. If
// checkPerm is set, the target must be cur or an immediate child of cur.
// Must be called with k.mu held.
func (k *Kernel) envid2env(cur *env, id sys.EnvID, checkPerm bool) (*env, *kernel.Error) {
	if id == sys.Self {
		return cur, nil
	}

	e := k.envs[envx(id)]
	if e.status == sys.StatusFree || e.id != id {
		return nil, kernel.ErrBadEnv
	}

	if checkPerm && e != cur && e.parent != cur.id {
		return nil, kernel.ErrBadEnv
	}

	return e, nil
}

// freeEnv releases the address space of e and returns its slot to the free
// pool. Must be called with k.mu held.
func (k *Kernel) freeEnv(e *env) {
	if e.as != nil {
		e.as.free()
		e.as = nil
	}

	e.status = sys.StatusFree
	e.upcall = nil
	e.resume = nil
	e.console = nil
	k.live--
	k.obs.SetEnvs(k.live)
	k.obs.SetFramesInUse(k.alloc.InUse())
}
