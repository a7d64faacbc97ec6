package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ProgressKind tags which arm of a Progress value is set.
type ProgressKind int

const (
	// ProgressStatus is an opaque status text such as "idle" or "jammed".
	ProgressStatus ProgressKind = iota
	// ProgressPercent is a numeric percent complete. It is not clamped.
	ProgressPercent
)

// Progress is either a percent complete or a status string. The zero
// value is a blank status, which is what an absent field decodes to.
type Progress struct {
	kind    ProgressKind
	percent float64
	status  string
}

// Percent returns a numeric Progress.
func Percent(v float64) Progress {
	return Progress{kind: ProgressPercent, percent: v}
}

// Status returns a textual Progress.
func Status(s string) Progress {
	return Progress{kind: ProgressStatus, status: s}
}

func (p Progress) Kind() ProgressKind { return p.kind }

// Percent returns the numeric value and true for a percent Progress.
func (p Progress) Percent() (float64, bool) {
	return p.percent, p.kind == ProgressPercent
}

// Status returns the status text. It is empty for percent values.
func (p Progress) Status() string {
	if p.kind != ProgressStatus {
		return ""
	}
	return p.status
}

// String renders the value as a dashboard label: "50%" or the raw text.
func (p Progress) String() string {
	if p.kind == ProgressPercent {
		return FormatPercent(p.percent)
	}
	return p.status
}

// FormatPercent renders v with the shortest exact decimal form and a
// percent sign, so 50 is "50%" and 12.5 is "12.5%".
func FormatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

func (p Progress) MarshalJSON() ([]byte, error) {
	if p.kind == ProgressPercent {
		return json.Marshal(p.percent)
	}
	return json.Marshal(p.status)
}

// UnmarshalJSON accepts a number, a numeric string, or any other string.
// Values of other JSON types become a status holding their raw text so
// that one odd field never rejects a whole snapshot.
func (p *Progress) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*p = Progress{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ParseProgress(s)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*p = Percent(v)
		return nil
	}
	*p = Status(string(data))
	return nil
}

// ParseProgress interprets a textual progress value. Strings that parse
// as finite decimal numbers become percent values.
func ParseProgress(s string) Progress {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Status(s)
	}
	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Status(s)
	}
	return Percent(v)
}

// PrinterState is one printer as reported by the backend. PrinterName is
// the reconciliation key across snapshots.
type PrinterState struct {
	PrinterName    string   `json:"printer_name"`
	IPAddress      string   `json:"ip_address"`
	FilesAvailable []string `json:"files_available"`
	Progress       Progress `json:"progress"`
}

// UnmarshalJSON decodes each field independently. Missing or mistyped
// fields are left blank instead of failing the decode.
func (s *PrinterState) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("printer state is null")
	}

	*s = PrinterState{
		PrinterName: lenientString(fields["printer_name"]),
		IPAddress:   lenientString(fields["ip_address"]),
	}
	if raw, ok := fields["files_available"]; ok {
		var files []json.RawMessage
		if err := json.Unmarshal(raw, &files); err == nil {
			s.FilesAvailable = make([]string, 0, len(files))
			for _, f := range files {
				s.FilesAvailable = append(s.FilesAvailable, lenientString(f))
			}
		}
	}
	if raw, ok := fields["progress"]; ok {
		if err := s.Progress.UnmarshalJSON(raw); err != nil {
			s.Progress = Progress{}
		}
	}
	return nil
}

func lenientString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// FleetSnapshot is the entire known fleet at one instant, in display
// order. It always replaces the previous snapshot; it is never a delta.
type FleetSnapshot []PrinterState

// Names returns the reconciliation keys in snapshot order.
func (f FleetSnapshot) Names() []string {
	names := make([]string, len(f))
	for i, p := range f {
		names[i] = p.PrinterName
	}
	return names
}

// Clone returns a deep copy so callers can hand snapshots across
// goroutines without sharing slices.
func (f FleetSnapshot) Clone() FleetSnapshot {
	if f == nil {
		return nil
	}
	out := make(FleetSnapshot, len(f))
	for i, p := range f {
		out[i] = p
		out[i].FilesAvailable = slices.Clone(p.FilesAvailable)
	}
	return out
}

// DecodeSnapshot accepts exactly one inbound shape: a JSON array of
// printer objects. Anything else (null, an object, a primitive, bad
// JSON, or an array holding a non-object) returns ErrNotSnapshot.
func DecodeSnapshot(raw []byte) (FleetSnapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotSnapshot
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSnapshot, err)
	}

	snapshot := make(FleetSnapshot, 0, len(elements))
	for i, element := range elements {
		element = bytes.TrimSpace(element)
		if len(element) == 0 || element[0] != '{' {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrNotSnapshot, i)
		}
		var state PrinterState
		if err := json.Unmarshal(element, &state); err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrNotSnapshot, i, err)
		}
		snapshot = append(snapshot, state)
	}
	return snapshot, nil
}

// EncodeSnapshot is the backend side of DecodeSnapshot. A nil snapshot
// encodes as an empty array, never as null.
func EncodeSnapshot(snapshot FleetSnapshot) ([]byte, error) {
	if snapshot == nil {
		snapshot = FleetSnapshot{}
	}
	for i := range snapshot {
		if snapshot[i].FilesAvailable == nil {
			snapshot = snapshot.Clone()
			for j := range snapshot {
				if snapshot[j].FilesAvailable == nil {
					snapshot[j].FilesAvailable = []string{}
				}
			}
			break
		}
	}
	return json.Marshal(snapshot)
}
