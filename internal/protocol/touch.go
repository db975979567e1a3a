package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// TouchCommandTag identifies a touch/click command.
	TouchCommandTag uint8 = 1

	// TouchCommandSize is the encoded length of a touch command.
	TouchCommandSize = 5
)

// TouchCommand is a touch or click at device-relative coordinates.
type TouchCommand struct {
	Tag uint8
	X   uint16
	Y   uint16
}

// NewTouchCommand creates a touch command for (x, y).
func NewTouchCommand(x, y uint16) TouchCommand {
	return TouchCommand{
		Tag: TouchCommandTag,
		X:   x,
		Y:   y,
	}
}

// Serialize encodes the command to wire format.
func (c TouchCommand) Serialize() []byte {
	buf := make([]byte, TouchCommandSize)

	buf[0] = c.Tag
	binary.LittleEndian.PutUint16(buf[1:3], c.X)
	binary.LittleEndian.PutUint16(buf[3:5], c.Y)

	return buf
}

// EncodeTouch returns the 5-byte wire form of a touch at (x, y).
func EncodeTouch(x, y uint16) []byte {
	return NewTouchCommand(x, y).Serialize()
}

// DecodeTouch parses a touch command. Bytes past TouchCommandSize are ignored.
func DecodeTouch(b []byte) (TouchCommand, error) {
	if len(b) < TouchCommandSize {
		return TouchCommand{}, fmt.Errorf("%w: %d bytes", ErrShortCommand, len(b))
	}

	if b[0] != TouchCommandTag {
		return TouchCommand{}, fmt.Errorf("%w: tag %d", ErrUnknownCommand, b[0])
	}

	return TouchCommand{
		Tag: b[0],
		X:   binary.LittleEndian.Uint16(b[1:3]),
		Y:   binary.LittleEndian.Uint16(b[3:5]),
	}, nil
}
