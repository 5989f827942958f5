package kfmt

import (
	"fmt"

	"cowfork/kernel"

	"github.com/sirupsen/logrus"
)

var (
	// haltFn terminates the calling context. The kernel recovers the
	// *kernel.Error value and records it as the context's exit error.
	// It is mocked by tests.
	haltFn = func(err *kernel.Error) { panic(err) }

	errUnknownFormat = &kernel.Error{Module: "kfmt", Message: "unknown log format"}
)

// Panic logs the supplied error (if not nil) as an unrecoverable error and
// halts the calling context. Calls to Panic never return.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		err = &kernel.Error{Module: "rt", Message: t}
	case error:
		err = &kernel.Error{Module: "rt", Message: t.Error()}
	default:
		err = &kernel.Error{Module: "rt", Message: fmt.Sprintf("unknown cause: %v", t)}
	}

	log.WithFields(logrus.Fields{"module": err.Module}).Errorf("[%s] unrecoverable error: %s", err.Module, err.Message)
	haltFn(err)
}
