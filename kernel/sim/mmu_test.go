package sim

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"cowfork/kernel/mm"
	"cowfork/kernel/sys"
)

func TestLoadStore(t *testing.T) {
	k := newTestKernel(t, Config{})

	runRoot(t, k, func(s sys.Syscalls) {
		base := uintptr(0x00800000)
		_ = s.AllocPage(sys.Self, base, userRW)
		_ = s.AllocPage(sys.Self, base+mm.PageSize, userRW)

		// Straddle the page boundary.
		va := base + mm.PageSize - 3
		payload := []byte("cross-page")
		s.Store(va, payload)

		got := make([]byte, len(payload))
		s.Load(va, got)
		if !bytes.Equal(got, payload) {
			t.Errorf("expected to read back %q; got %q", payload, got)
		}

		first, _ := k.Mapping(s.EnvID(), base)
		if tail := k.FrameContents(first.Frame())[mm.PageSize-3:]; !bytes.Equal(tail, payload[:3]) {
			t.Errorf("expected the first frame to end with %q; got %q", payload[:3], tail)
		}
		if st := k.Stats(s.EnvID()); st.Faults != 0 {
			t.Errorf("expected no faults; got %d", st.Faults)
		}
	})
}

func TestFaultDelivery(t *testing.T) {
	const hole = uintptr(0x00900000)

	t.Run("upcall maps the page", func(t *testing.T) {
		obs := newRecordingObserver()
		k := newTestKernel(t, Config{Observer: obs})

		var frames []sys.UTrapframe
		id := runRoot(t, k, func(s sys.Syscalls) {
			_ = s.AllocPage(sys.Self, mm.UXStack, userRW)
			_ = s.SetFaultUpcall(sys.Self, func(us sys.Syscalls, tf *sys.UTrapframe) {
				frames = append(frames, *tf)

				// The trap frame sits at the top of the exception stack.
				var raw [8]byte
				us.Load(mm.UXStackTop-utfSize, raw[:])
				if va := binary.LittleEndian.Uint32(raw[0:]); uintptr(va) != tf.FaultVA {
					t.Errorf("expected trap frame va %08x; got %08x", tf.FaultVA, va)
				}
				if code := binary.LittleEndian.Uint32(raw[4:]); sys.FaultCode(code) != tf.Err {
					t.Errorf("expected trap frame err %x; got %x", tf.Err, code)
				}

				if err := us.AllocPage(sys.Self, mm.PageFromAddress(tf.FaultVA).Address(), userRW); err != nil {
					t.Errorf("upcall alloc: %v", err)
				}
			})

			var b [1]byte
			s.Load(hole+5, b[:])
			s.Store(hole+6, []byte{1})
		})

		if err, _ := k.ExitErr(id); err != nil {
			t.Fatalf("expected a clean exit; got %v", err)
		}
		if len(frames) != 1 {
			t.Fatalf("expected one delivered fault; got %d", len(frames))
		}
		if exp := (sys.UTrapframe{FaultVA: hole + 5, Err: sys.FaultUser}); frames[0] != exp {
			t.Errorf("expected trap frame %+v; got %+v", exp, frames[0])
		}
		if st := k.Stats(id); st.Faults != 1 || st.Upcalls != 1 {
			t.Errorf("expected 1 fault and 1 upcall; got %+v", st)
		}
		if obs.faults[FaultDelivered] != 1 || obs.faults[FaultKilled] != 0 {
			t.Errorf("unexpected fault outcomes: %v", obs.faults)
		}
	})

	t.Run("write to a read-only page", func(t *testing.T) {
		k := newTestKernel(t, Config{})

		var got sys.FaultCode
		runRoot(t, k, func(s sys.Syscalls) {
			_ = s.AllocPage(sys.Self, mm.UXStack, userRW)
			_ = s.AllocPage(sys.Self, hole, userRO)
			_ = s.SetFaultUpcall(sys.Self, func(us sys.Syscalls, tf *sys.UTrapframe) {
				got = tf.Err
				_ = us.AllocPage(sys.Self, hole, userRW)
			})
			s.Store(hole, []byte{1})
		})

		if exp := sys.FaultUser | sys.FaultWrite | sys.FaultPresent; got != exp {
			t.Errorf("expected error code %x; got %x", exp, got)
		}
	})

	specs := []struct {
		name      string
		setup     func(s sys.Syscalls)
		access    uintptr
		expReason string
		expStats  Stats
	}{
		{
			"no upcall",
			func(s sys.Syscalls) {
				_ = s.AllocPage(sys.Self, mm.UXStack, userRW)
			},
			hole,
			"no page fault upcall",
			Stats{Faults: 1},
		},
		{
			"no exception stack",
			func(s sys.Syscalls) {
				_ = s.SetFaultUpcall(sys.Self, func(sys.Syscalls, *sys.UTrapframe) {})
			},
			hole,
			"user exception stack not writable",
			Stats{Faults: 1},
		},
		{
			"read-only exception stack",
			func(s sys.Syscalls) {
				_ = s.AllocPage(sys.Self, mm.UXStack, userRO)
				_ = s.SetFaultUpcall(sys.Self, func(sys.Syscalls, *sys.UTrapframe) {})
			},
			hole,
			"user exception stack not writable",
			Stats{Faults: 1},
		},
		{
			"upcall does not resolve the fault",
			func(s sys.Syscalls) {
				_ = s.AllocPage(sys.Self, mm.UXStack, userRW)
				_ = s.SetFaultUpcall(sys.Self, func(sys.Syscalls, *sys.UTrapframe) {})
			},
			hole,
			"not resolved by upcall",
			Stats{Faults: maxRefaults, Upcalls: maxRefaults},
		},
		{
			"kernel address",
			func(s sys.Syscalls) {
				_ = s.AllocPage(sys.Self, mm.UXStack, userRW)
				_ = s.SetFaultUpcall(sys.Self, func(sys.Syscalls, *sys.UTrapframe) {})
			},
			mm.UTop,
			"not resolved by upcall",
			Stats{Faults: maxRefaults, Upcalls: maxRefaults},
		},
		{
			"recursive faults",
			func(s sys.Syscalls) {
				_ = s.AllocPage(sys.Self, mm.UXStack, userRW)
				_ = s.SetFaultUpcall(sys.Self, func(us sys.Syscalls, tf *sys.UTrapframe) {
					var b [1]byte
					us.Load(tf.FaultVA+mm.PageSize, b[:])
				})
			},
			hole,
			"user exception stack overflow",
			Stats{Faults: maxUpcallDepth + 1, Upcalls: maxUpcallDepth},
		},
	}

	for _, spec := range specs {
		t.Run(spec.name, func(t *testing.T) {
			obs := newRecordingObserver()
			k := newTestKernel(t, Config{Observer: obs})

			id := runRoot(t, k, func(s sys.Syscalls) {
				spec.setup(s)

				var b [1]byte
				s.Load(spec.access, b[:])
				t.Error("expected the access to terminate the context")
			})

			err, exited := k.ExitErr(id)
			if !exited || err == nil {
				t.Fatal("expected the context to be destroyed")
			}
			if !strings.Contains(err.Message, spec.expReason) {
				t.Errorf("expected exit reason to contain %q; got %q", spec.expReason, err.Message)
			}
			if st := k.Stats(id); st != spec.expStats {
				t.Errorf("expected stats %+v; got %+v", spec.expStats, st)
			}
			if obs.faults[FaultKilled] != 1 {
				t.Errorf("expected one killing fault; got %v", obs.faults)
			}
		})
	}
}
