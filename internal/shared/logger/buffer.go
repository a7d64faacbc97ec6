package logger

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const defaultBufferSize = 500

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogBuffer holds recent log entries in memory
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	maxSize int
}

var (
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

// GetLogBuffer returns the global log buffer instance
func GetLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(defaultBufferSize)
	})
	return globalBuffer
}

// NewLogBuffer returns an empty buffer keeping at most maxSize entries.
func NewLogBuffer(maxSize int) *LogBuffer {
	if maxSize <= 0 {
		maxSize = defaultBufferSize
	}
	return &LogBuffer{
		entries: make([]LogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add adds a new log entry to the buffer
func (lb *LogBuffer) Add(entry LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = append(lb.entries, entry)

	// Remove old entries if buffer exceeds max size
	if len(lb.entries) > lb.maxSize {
		lb.entries = lb.entries[len(lb.entries)-lb.maxSize:]
	}
}

// GetAll returns all log entries
func (lb *LogBuffer) GetAll() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, len(lb.entries))
	copy(result, lb.entries)
	return result
}

// GetRecent returns the most recent n log entries
func (lb *LogBuffer) GetRecent(n int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if n > len(lb.entries) {
		n = len(lb.entries)
	}
	if n < 0 {
		n = 0
	}

	result := make([]LogEntry, n)
	copy(result, lb.entries[len(lb.entries)-n:])
	return result
}

// Latest returns the newest entry, if any.
func (lb *LogBuffer) Latest() (LogEntry, bool) {
	recent := lb.GetRecent(1)
	if len(recent) == 0 {
		return LogEntry{}, false
	}
	return recent[0], true
}

// Clear clears all log entries
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.entries = lb.entries[:0]
}

// ToJSON converts log entries to JSON
func (lb *LogBuffer) ToJSON() ([]byte, error) {
	return json.Marshal(lb.GetAll())
}

// ToText converts log entries to plain text
func (lb *LogBuffer) ToText() string {
	var b strings.Builder
	for _, entry := range lb.GetAll() {
		b.WriteString(entry.Timestamp.Format("2006-01-02 15:04:05"))
		b.WriteString(" [" + entry.Level + "] ")
		b.WriteString(entry.Message)
		if len(entry.Fields) > 0 {
			fieldsJSON, _ := json.Marshal(entry.Fields)
			b.WriteString(" ")
			b.Write(fieldsJSON)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// bufferCore is a zapcore.Core that copies every enabled record into a
// LogBuffer. It is teed next to the regular JSON core.
type bufferCore struct {
	zapcore.LevelEnabler
	buffer *LogBuffer
	fields []zapcore.Field
}

func newBufferCore(buffer *LogBuffer, enabler zapcore.LevelEnabler) zapcore.Core {
	return &bufferCore{LevelEnabler: enabler, buffer: buffer}
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &bufferCore{LevelEnabler: c.LevelEnabler, buffer: c.buffer, fields: merged}
}

func (c *bufferCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *bufferCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	logEntry := LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if len(enc.Fields) > 0 {
		logEntry.Fields = enc.Fields
	}
	c.buffer.Add(logEntry)
	return nil
}

func (c *bufferCore) Sync() error {
	return nil
}
