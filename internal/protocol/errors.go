package protocol

import "errors"

var (
	// ErrNotSnapshot is returned for inbound messages that are not a JSON
	// array of printer objects. Such messages are ignored, not applied.
	ErrNotSnapshot = errors.New("protocol: message is not a fleet snapshot")

	// ErrInvalidCommand is returned when a command is missing a field its
	// action requires, or a field is malformed.
	ErrInvalidCommand = errors.New("protocol: invalid command")

	// ErrUnknownAction is returned for an action verb outside the protocol.
	ErrUnknownAction = errors.New("protocol: unknown action")
)
