package kernel

// Code is a negative exokernel status code. Syscalls report failures with
// one of the codes below; zero means success.
type Code int32

const (
	CodeUnspecified   Code = -1
	CodeBadEnv        Code = -2
	CodeInvalid       Code = -3
	CodeNoMem         Code = -4
	CodeNoFreeEnv     Code = -5
	CodeUnimplemented Code = -6
)

var codeNames = map[Code]string{
	0:                 "ok",
	CodeUnspecified:   "unspecified",
	CodeBadEnv:        "bad_env",
	CodeInvalid:       "invalid",
	CodeNoMem:         "no_mem",
	CodeNoFreeEnv:     "no_free_env",
	CodeUnimplemented: "unimplemented",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Error describes a kernel error. Errors that callers need to match against
// are defined as global variables that are pointers to the Error structure.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// Code is the status code reported to user space. It may be zero for
	// errors that never cross the syscall boundary.
	Code Code
}

var (
	ErrUnspecified   = &Error{Module: "kernel", Message: "unspecified or unknown problem", Code: CodeUnspecified}
	ErrBadEnv        = &Error{Module: "kernel", Message: "environment does not exist or otherwise cannot be used", Code: CodeBadEnv}
	ErrInvalid       = &Error{Module: "kernel", Message: "invalid parameter", Code: CodeInvalid}
	ErrNoMem         = &Error{Module: "kernel", Message: "out of memory", Code: CodeNoMem}
	ErrNoFreeEnv     = &Error{Module: "kernel", Message: "out of environments", Code: CodeNoFreeEnv}
	ErrUnimplemented = &Error{Module: "kernel", Message: "not implemented", Code: CodeUnimplemented}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is a kernel error carrying the same non-zero
// status code. It allows errors.Is(err, kernel.ErrNoMem) to match errors
// that were raised with a module-specific message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}

	if e == t {
		return true
	}

	return e.Code != 0 && e.Code == t.Code
}
