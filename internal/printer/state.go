package printer

import (
	"math"
	"strconv"
	"strings"

	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

// Pair is a "current/target" field such as a temperature.
type Pair struct {
	Current uint16 `json:"current"`
	Target  uint16 `json:"target"`
}

// Triple is the D field of an M4000 reply: file position, file size and
// the paused flag.
type Triple struct {
	Position uint64 `json:"position"`
	Size     uint64 `json:"size"`
	Paused   bool   `json:"paused"`
}

// State is a parsed M4000 reply, e.g.
//
//	ok B:0/0 X:0.000 Y:0.000 Z:-45.796 F:256/0 D:0/0/1
//
// B, E1 and E2 are bed and hot end temperatures, X/Y/Z the head
// position, F the two fan PWM values, D the file progress and T the
// seconds since the print started.
type State struct {
	B  Pair    `json:"bed"`
	E1 Pair    `json:"e1"`
	E2 Pair    `json:"e2"`
	X  float32 `json:"x"`
	Y  float32 `json:"y"`
	Z  float32 `json:"z"`
	F  Pair    `json:"fan"`
	D  Triple  `json:"file"`
	T  uint32  `json:"elapsed"`
}

// Printing reports whether a file is loaded.
func (s State) Printing() bool { return s.D.Size > 0 }

// ParsePair parses "1/2". Anything else is the zero Pair; unparsable
// halves are zero.
func ParsePair(s string) Pair {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return Pair{}
	}
	return Pair{
		Current: uint16(parseUint(parts[0], 16)),
		Target:  uint16(parseUint(parts[1], 16)),
	}
}

// ParseTriple parses "50/100/1".
func ParseTriple(s string) Triple {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Triple{}
	}
	return Triple{
		Position: parseUint(parts[0], 64),
		Size:     parseUint(parts[1], 64),
		Paused:   parts[2] == "1",
	}
}

// ParseState parses an M4000 reply. Unknown keys, tokens without exactly
// one colon and empty values are skipped; bad numbers are zero. It never
// fails.
func ParseState(s string) State {
	var state State
	for _, token := range strings.Fields(s) {
		parts := strings.Split(token, ":")
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		value := parts[1]
		switch parts[0] {
		case "B":
			state.B = ParsePair(value)
		case "E1":
			state.E1 = ParsePair(value)
		case "E2":
			state.E2 = ParsePair(value)
		case "X":
			state.X = parseFloat(value)
		case "Y":
			state.Y = parseFloat(value)
		case "Z":
			state.Z = parseFloat(value)
		case "F":
			state.F = ParsePair(value)
		case "D":
			state.D = ParseTriple(value)
		case "T":
			state.T = uint32(parseUint(value, 32))
		}
	}
	return state
}

// ProgressFrom derives the dashboard progress for one poll. An
// unreachable printer is "offline", one with no file loaded is "idle",
// anything else is the percent of the file consumed, paused or not.
func ProgressFrom(state State, err error) protocol.Progress {
	if err != nil {
		return protocol.Status("offline")
	}
	if !state.Printing() {
		return protocol.Status("idle")
	}
	pct := 100 * float64(state.D.Position) / float64(state.D.Size)
	return protocol.Percent(math.Round(pct*10) / 10)
}

func parseUint(s string, bits int) uint64 {
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0
	}
	return float32(v)
}
