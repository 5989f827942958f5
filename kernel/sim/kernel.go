// Package sim implements an in-memory exokernel. It provides exactly the
// primitives a user-space fork needs: empty context creation, page
// allocation and mapping, page fault upcalls and a read-only view of each
// context's page tables. Contexts run on their own goroutines; all kernel
// state is serialised by a single kernel lock.
package sim

import (
	"fmt"
	"io"
	"sync"

	"cowfork/kernel"
	"cowfork/kernel/kfmt"
	"cowfork/kernel/mm"
	"cowfork/kernel/mm/vmm"
	"cowfork/kernel/sys"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFrames is the amount of physical memory (in frames) used
	// when Config.Frames is zero.
	DefaultFrames = 4096

	// MinFrames is the smallest physical memory the kernel accepts.
	MinFrames = 16
)

var errBadConfig = &kernel.Error{Module: "sim", Message: "invalid kernel configuration", Code: kernel.CodeInvalid}

// Config controls the reference kernel.
type Config struct {
	// Frames is the number of physical frames.
	Frames uint32

	// MaxEnvs caps the number of live contexts; it may not exceed NEnv.
	MaxEnvs int

	// Console receives a copy of every context's console output.
	Console io.Writer

	// Observer receives kernel events. It may be nil.
	Observer Observer
}

// Kernel is the reference exokernel.
type Kernel struct {
	mu sync.Mutex

	alloc   *BitmapAllocator
	envs    [NEnv]*env
	maxEnvs int
	live    int

	stats map[sys.EnvID]*Stats
	exits map[sys.EnvID]*kernel.Error

	console     kfmt.RingBuffer
	consoleSink io.Writer

	obs   Observer
	group errgroup.Group
	log   *logrus.Entry
}

// New boots a kernel with the supplied configuration.
func New(cfg Config) (*Kernel, *kernel.Error) {
	if cfg.Frames == 0 {
		cfg.Frames = DefaultFrames
	}
	if cfg.MaxEnvs == 0 {
		cfg.MaxEnvs = NEnv
	}
	if cfg.Frames < MinFrames || cfg.MaxEnvs < 0 || cfg.MaxEnvs > NEnv {
		return nil, errBadConfig
	}

	k := &Kernel{
		alloc:   newBitmapAllocator(cfg.Frames),
		maxEnvs: cfg.MaxEnvs,
		stats:   make(map[sys.EnvID]*Stats),
		exits:   make(map[sys.EnvID]*kernel.Error),
		obs:     cfg.Observer,
		log:     kfmt.Logger().WithField("module", "sim"),
	}
	if k.obs == nil {
		k.obs = nopObserver{}
	}

	k.consoleSink = &k.console
	if cfg.Console != nil {
		k.consoleSink = io.MultiWriter(&k.console, cfg.Console)
	}

	for slot := range k.envs {
		k.envs[slot] = &env{status: sys.StatusFree}
	}

	k.obs.SetFramesInUse(k.alloc.InUse())
	return k, nil
}

// Spawn creates a root context with an empty address space, marks it
// runnable and starts it. main runs inside the new context.
func (k *Kernel) Spawn(main sys.Resume) (sys.EnvID, *kernel.Error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, err := k.allocEnv(0)
	if err != nil {
		return 0, err
	}

	e.resume = main
	e.status = sys.StatusRunnable
	k.launch(e)

	k.log.WithField("env", e.id).Info("spawned root env")
	return e.id, nil
}

// Wait blocks until every started context has exited.
func (k *Kernel) Wait() {
	_ = k.group.Wait()
}

// launch starts running e on its own goroutine. Must be called with k.mu
// held.
func (k *Kernel) launch(e *env) {
	if e.started {
		return
	}
	e.started = true

	id := e.id
	k.group.Go(func() error {
		k.run(e, id)
		return nil
	})
}

// run executes the resume continuation of e and tears the context down once
// it returns or halts.
func (k *Kernel) run(e *env, id sys.EnvID) {
	p := &proc{k: k, e: e, id: id}

	defer func() {
		k.exit(e, id, haltReason(recover()))
	}()

	k.mu.Lock()
	e.status = sys.StatusRunning
	resume := e.resume
	k.mu.Unlock()

	resume(p)
}

// haltReason converts a recovered panic value to the context exit error.
func haltReason(r interface{}) *kernel.Error {
	switch t := r.(type) {
	case nil:
		return nil
	case *kernel.Error:
		return t
	case error:
		return &kernel.Error{Module: "rt", Message: t.Error()}
	default:
		return &kernel.Error{Module: "rt", Message: fmt.Sprint(t)}
	}
}

func (k *Kernel) exit(e *env, id sys.EnvID, reason *kernel.Error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.exits[id] = reason
	if e.id == id && e.status != sys.StatusFree {
		k.freeEnv(e)
	}

	entry := k.log.WithField("env", id)
	if reason != nil {
		entry.WithField("reason", reason.Message).Warn("env destroyed")
		return
	}
	entry.Debug("env exited")
}

// ExitErr returns the error that terminated id. The second return value is
// false if id has not exited yet.
func (k *Kernel) ExitErr(id sys.EnvID) (*kernel.Error, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	err, exited := k.exits[id]
	return err, exited
}

// Status returns the scheduling status of id or StatusFree if it does not
// exist.
func (k *Kernel) Status(id sys.EnvID) sys.Status {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.envs[envx(id)]
	if e.id != id {
		return sys.StatusFree
	}
	return e.status
}

// Stats returns the fault accounting for id.
func (k *Kernel) Stats(id sys.EnvID) Stats {
	k.mu.Lock()
	defer k.mu.Unlock()

	if st, ok := k.stats[id]; ok {
		return *st
	}
	return Stats{}
}

// Mapping returns the page table entry for virtAddr in the live context id.
func (k *Kernel) Mapping(id sys.EnvID, virtAddr uintptr) (vmm.PageTableEntry, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := k.envs[envx(id)]
	if e.id != id || e.status == sys.StatusFree {
		return 0, false
	}
	return e.as.lookup(virtAddr)
}

// FrameRefs returns the number of references held on frame.
func (k *Kernel) FrameRefs(frame mm.Frame) uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.alloc.Refs(frame)
}

// FrameContents returns a copy of the bytes stored in frame.
func (k *Kernel) FrameContents(frame mm.Frame) []byte {
	k.mu.Lock()
	defer k.mu.Unlock()

	return append([]byte(nil), k.alloc.FrameData(frame)...)
}

// FramesInUse returns the number of reserved physical frames.
func (k *Kernel) FramesInUse() uint32 {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.alloc.InUse()
}

// Console drains and returns the buffered console output.
func (k *Kernel) Console() string {
	k.mu.Lock()
	defer k.mu.Unlock()

	out, _ := io.ReadAll(&k.console)
	return string(out)
}
