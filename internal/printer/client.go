// Package printer talks to fleet printers over their UDP gcode port.
//
//	M20        list files
//	M24        resume
//	M25        pause
//	M27        print position ("SD printing byte 0/58349339")
//	M33        stop
//	M4000      printer status ("ok B:0/0 X:0.000 Y:0.000 Z:-45.796 F:256/0 D:0/0/1")
//	M6030 "f"  start file f
package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	DefaultPort    = 3000
	DefaultTimeout = 2 * time.Second

	maxDatagram = 4096
)

// ErrNoResponse is returned when a printer sent nothing back before the
// read timeout.
var ErrNoResponse = errors.New("printer: no response")

// Client sends gcode to printers. Each call opens its own socket, so a
// Client is safe for concurrent use.
type Client struct {
	port    int
	timeout time.Duration
	log     *zap.Logger
}

// NewClient returns a client for printers listening on port. Zero
// values select DefaultPort and DefaultTimeout.
func NewClient(port int, timeout time.Duration) *Client {
	if port <= 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{port: port, timeout: timeout, log: logger.Named("printer")}
}

// Send writes gcode to the printer at ip and collects reply lines until
// one starts with "ok" or the read times out. A timeout after at least
// one line still returns those lines.
func (c *Client) Send(ctx context.Context, ip, gcode string) ([]string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(ip, strconv.Itoa(c.port)))
	if err != nil {
		return nil, fmt.Errorf("dialing printer %s: %w", ip, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(gcode)); err != nil {
		return nil, fmt.Errorf("sending %s to %s: %w", gcode, ip, err)
	}

	var lines []string
	buf := make([]byte, maxDatagram)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if len(lines) > 0 {
				c.log.Debug("Reply ended without ok",
					zap.String("ip", ip), zap.String("gcode", gcode), zap.Error(err))
				return lines, nil
			}
			return nil, fmt.Errorf("%w from %s to %s: %v", ErrNoResponse, ip, gcode, err)
		}
		done := false
		for _, line := range splitReply(buf[:n]) {
			lines = append(lines, line)
			if strings.HasPrefix(line, "ok") {
				done = true
			}
		}
		if done {
			return lines, nil
		}
	}
}

// splitReply turns one datagram into lines without CR/LF.
func splitReply(datagram []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(datagram), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// ListFiles sends M20 and returns the file names in listing order. The
// list markers and the trailing ok line are dropped, and so is the size
// that follows each name.
func (c *Client) ListFiles(ctx context.Context, ip string) ([]string, error) {
	lines, err := c.Send(ctx, ip, "M20")
	if err != nil {
		return nil, err
	}
	return ParseFileList(lines), nil
}

// ParseFileList extracts names from an M20 reply.
func ParseFileList(lines []string) []string {
	files := []string{}
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "Begin file list"),
			strings.HasPrefix(line, "End file list"),
			strings.HasPrefix(line, "ok"):
			continue
		}
		files = append(files, stripSize(line))
	}
	return files
}

func stripSize(line string) string {
	i := strings.LastIndexByte(line, ' ')
	if i <= 0 {
		return line
	}
	if _, err := strconv.ParseUint(line[i+1:], 10, 64); err != nil {
		return line
	}
	return line[:i]
}

// Status sends M4000 and parses the reply.
func (c *Client) Status(ctx context.Context, ip string) (State, error) {
	lines, err := c.Send(ctx, ip, "M4000")
	if err != nil {
		return State{}, err
	}
	return ParseState(lines[0]), nil
}

// PrintStatus sends M27 and returns the "position/size" text.
func (c *Client) PrintStatus(ctx context.Context, ip string) (string, error) {
	lines, err := c.Send(ctx, ip, "M27")
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(lines[0], "SD printing byte "), nil
}

// Gcode returns the gcode for a printer control action.
func Gcode(action protocol.Action, file string) (string, error) {
	switch action {
	case protocol.ActionResume:
		return "M24", nil
	case protocol.ActionPause:
		return "M25", nil
	case protocol.ActionStop:
		return "M33", nil
	case protocol.ActionStart:
		if file == "" {
			return "", fmt.Errorf("%w: start requires a file", protocol.ErrInvalidCommand)
		}
		return "M6030 " + strconv.Quote(file), nil
	}
	return "", fmt.Errorf("%w %q for a printer", protocol.ErrUnknownAction, action)
}

// Action runs a control action and returns the printer's first reply
// line.
func (c *Client) Action(ctx context.Context, ip string, action protocol.Action, file string) (string, error) {
	gcode, err := Gcode(action, file)
	if err != nil {
		return "", err
	}
	c.log.Info("Sending printer action",
		zap.String("ip", ip), zap.String("action", string(action)), zap.String("gcode", gcode))
	lines, err := c.Send(ctx, ip, gcode)
	if err != nil {
		return "", fmt.Errorf("failed to %s printer at %s: %w", action, ip, err)
	}
	return lines[0], nil
}
