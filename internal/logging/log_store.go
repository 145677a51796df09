package logging

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Log levels used by the relay
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// LogEntry represents a single relay log entry
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
}

// LogStore keeps the most recent relay log entries in memory
type LogStore struct {
	entries []LogEntry
	mu      sync.RWMutex
	maxSize int // Maximum number of entries to keep (0 = unlimited)
	now     func() time.Time
}

// NewLogStore creates a new log store
func NewLogStore(maxSize int) *LogStore {
	return &LogStore{
		entries: make([]LogEntry, 0),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Add adds a log entry to the store, dropping the oldest entries beyond maxSize
func (ls *LogStore) Add(level, message string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.entries = append(ls.entries, LogEntry{
		Timestamp: ls.now(),
		Message:   message,
		Level:     level,
	})

	if ls.maxSize > 0 && len(ls.entries) > ls.maxSize {
		ls.entries = append([]LogEntry(nil), ls.entries[len(ls.entries)-ls.maxSize:]...)
	}
}

// GetAll returns a copy of all log entries, oldest first
func (ls *LogStore) GetAll() []LogEntry {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	result := make([]LogEntry, len(ls.entries))
	copy(result, ls.entries)
	return result
}

// GetByLevel returns the entries of one level, oldest first
func (ls *LogStore) GetByLevel(level string) []LogEntry {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	result := make([]LogEntry, 0)
	for _, e := range ls.entries {
		if e.Level == level {
			result = append(result, e)
		}
	}
	return result
}

// Clear clears all log entries
func (ls *LogStore) Clear() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.entries = make([]LogEntry, 0)
}

// LogAndStore writes the message to the process log and keeps it in the store.
// A nil LogStore only writes to the process log.
func (ls *LogStore) LogAndStore(level, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	log.Printf("[%s] %s", level, message)
	if ls != nil {
		ls.Add(level, message)
	}
}
