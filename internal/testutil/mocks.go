package testutil

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// MockClock implements periodic.Clock for testing with controllable time.
// Tests advance it explicitly instead of sleeping until a job is due.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// MockWriter collects log output written from many goroutines. Tests hand
// it to hclog as the Output and inspect what was logged.
type MockWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
}

// NewMockWriter creates an empty MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write implements io.Writer.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writes++
	return mw.buf.Write(p)
}

// String returns everything written so far.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Contains reports whether substr has been written.
func (mw *MockWriter) Contains(substr string) bool {
	return strings.Contains(mw.String(), substr)
}

// WriteCount returns the number of Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writes
}
