package protocol

import "errors"

var (
	// ErrShortCommand indicates an outbound command shorter than its fixed size.
	ErrShortCommand = errors.New("short command")
	// ErrUnknownCommand indicates a command tag other than TouchCommandTag.
	ErrUnknownCommand = errors.New("unknown command")
)
