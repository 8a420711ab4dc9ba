package orders

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrUserNotFound           = &notFoundError{msg: "user not found"}
	ErrOrderNotFound          = &notFoundError{msg: "order not found"}
	ErrInvalidStateTransition = errors.New("invalid order state transition")
)

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }
