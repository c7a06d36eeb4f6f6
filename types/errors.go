package types

import "fmt"

// RemoteError is a failure reported by the other side of the boundary,
// reconstructed from its wire descriptor. The original error text is
// preserved in Message; ErrorType names the original Go error type when
// it was known to the serving side.
type RemoteError struct {
	Kind      ErrorKind
	ErrorType string
	Message   string
	Stack     string
}

func (e *RemoteError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("remote %s (%s): %s", e.Kind, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
}

// Err reconstructs the descriptor as an error value.
func (d *ErrorDescriptor) Err() error {
	if d == nil {
		return nil
	}
	e := &RemoteError{
		Kind:      d.Kind,
		ErrorType: d.ErrorType,
		Message:   d.Message,
	}
	if d.Stack != nil {
		e.Stack = *d.Stack
	}
	return e
}

// NewErrorDescriptor builds a wire descriptor for an error.
func NewErrorDescriptor(kind ErrorKind, err error) *ErrorDescriptor {
	d := &ErrorDescriptor{Kind: kind}
	if err != nil {
		d.Message = err.Error()
		d.ErrorType = fmt.Sprintf("%T", err)
	}
	return d
}
