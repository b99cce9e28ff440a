package protocol

import "fmt"

// ErrElementNotFound reports a ref or selector that resolves to nothing in
// the current generation.
type ErrElementNotFound struct {
	Target string
}

func (e *ErrElementNotFound) Error() string {
	return fmt.Sprintf("Element not found: %s", e.Target)
}

// ErrInvalidParam reports a missing or malformed operation parameter.
type ErrInvalidParam struct {
	Name   string
	Reason string
}

func (e *ErrInvalidParam) Error() string {
	return fmt.Sprintf("Invalid parameter %q: %s", e.Name, e.Reason)
}

// ErrUnknownOperation reports an operation kind outside the known set.
type ErrUnknownOperation struct {
	Type Kind
}

func (e *ErrUnknownOperation) Error() string {
	return fmt.Sprintf("Unknown operation: %s", e.Type)
}
