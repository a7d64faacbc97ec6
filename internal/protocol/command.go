package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Action is the verb of an outbound command.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
	ActionPause  Action = "pause"
	ActionStop   Action = "stop"
	ActionStart  Action = "start"
	ActionResume Action = "resume"
)

// Actions lists every verb the backend accepts. "remove" is the only
// spelling for deleting a printer; "delete" is rejected.
var Actions = []Action{ActionAdd, ActionRemove, ActionPause, ActionStop, ActionStart, ActionResume}

// Valid reports whether a is part of the protocol.
func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// IsPrinterControl reports whether a is addressed to a printer by IP
// rather than to the registry by name.
func (a Action) IsPrinterControl() bool {
	switch a {
	case ActionPause, ActionStop, ActionStart, ActionResume:
		return true
	}
	return false
}

// Command is one self-contained operator instruction. Fields an action
// does not use are omitted from the wire form.
type Command struct {
	Action    Action `json:"action"`
	Name      string `json:"name,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	File      string `json:"file,omitempty"`
}

func AddCommand(name, ip string) Command {
	return Command{Action: ActionAdd, Name: name, IPAddress: ip}
}

func RemoveCommand(name string) Command {
	return Command{Action: ActionRemove, Name: name}
}

func PauseCommand(ip string) Command {
	return Command{Action: ActionPause, IPAddress: ip}
}

func StopCommand(ip string) Command {
	return Command{Action: ActionStop, IPAddress: ip}
}

func ResumeCommand(ip string) Command {
	return Command{Action: ActionResume, IPAddress: ip}
}

func StartCommand(ip, file string) Command {
	return Command{Action: ActionStart, IPAddress: ip, File: file}
}

// Validate checks the required-field table:
//
//	add                  name, ip_address
//	remove               name
//	pause, stop, resume  ip_address
//	start                ip_address, file
func (c Command) Validate() error {
	if !c.Action.Valid() {
		return fmt.Errorf("%w %q", ErrUnknownAction, c.Action)
	}
	switch c.Action {
	case ActionAdd:
		if err := requireName(c.Name); err != nil {
			return err
		}
		return requireIP(c.IPAddress)
	case ActionRemove:
		return requireName(c.Name)
	case ActionStart:
		if err := requireIP(c.IPAddress); err != nil {
			return err
		}
		if c.File == "" {
			return fmt.Errorf("%w: start requires a file", ErrInvalidCommand)
		}
		return nil
	default:
		return requireIP(c.IPAddress)
	}
}

// ParseCommand decodes and validates an inbound command frame.
func ParseCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCommand)
	}
	return nil
}

func requireIP(ip string) error {
	if !ValidIPv4(ip) {
		return fmt.Errorf("%w: %q is not a dotted-quad IPv4 address", ErrInvalidCommand, ip)
	}
	return nil
}

var ipv4Pattern = regexp.MustCompile(`^((\d{1,2}|1\d\d|2[0-4]\d|25[0-5])\.){3}(\d{1,2}|1\d\d|2[0-4]\d|25[0-5])$`)

// ValidIPv4 reports whether s is four dotted decimal octets in 0-255.
func ValidIPv4(s string) bool {
	return ipv4Pattern.MatchString(s)
}
