package capability

import (
	"errors"
	"fmt"
)

// PortError reports that a port call failed. The cause is a transport or storage
// fault; callers treat it as fatal for the current unit of work only.
type PortError struct {
	Op  string
	Err error
}

func (e *PortError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PortError) Unwrap() error { return e.Err }

// Wrap tags err as a failure of op. Nil stays nil and an existing PortError is
// returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PortError
	if errors.As(err, &pe) {
		return err
	}
	return &PortError{Op: op, Err: err}
}

// IsPortError reports whether err carries a PortError.
func IsPortError(err error) bool {
	var pe *PortError
	return errors.As(err, &pe)
}
