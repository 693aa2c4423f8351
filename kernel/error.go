package kernel

// Error describes a kernel error. Kernel errors are defined as global
// variables that are pointers to the Error structure so callers can compare
// them by identity. Errors that originate from a host collaborator (a block
// device image or a host file) carry the underlying cause in Err.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// The underlying host error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target refers to the same kernel error. Errors created
// by Wrap compare equal to the template they were created from.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e == t || (e.Module == t.Module && e.Message == t.Message)
}

// Wrap returns a copy of the template error that carries cause as its
// underlying host error.
func Wrap(template *Error, cause error) *Error {
	return &Error{Module: template.Module, Message: template.Message, Err: cause}
}
