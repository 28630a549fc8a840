// Package metrics collects in-process counters about requests, tool calls and sessions,
// served as a JSON snapshot on the session transport's /metrics route.
// file: internal/metrics/collector.go.
package metrics

import (
	"runtime"
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	StartTime     time.Time     `json:"startTime"`
	Uptime        time.Duration `json:"uptime"`
	GoVersion     string        `json:"goVersion"`
	NumGoroutines int           `json:"numGoroutines"`

	MemoryAllocated uint64 `json:"memoryAllocated"`
	MemoryGCCount   uint32 `json:"memoryGCCount"`

	// Sessions on the SSE transport.
	ActiveSessions int `json:"activeSessions"`
	TotalSessions  int `json:"totalSessions"`

	// Requests counts every answered envelope; ProtocolErrors counts those that could not be answered.
	TotalRequests  int `json:"totalRequests"`
	FailedRequests int `json:"failedRequests"`
	ProtocolErrors int `json:"protocolErrors"`
	// UndeliveredResponses were dropped because their session closed first.
	UndeliveredResponses int `json:"undeliveredResponses"`

	// Tools maps tool name to call statistics.
	Tools map[string]ToolStats `json:"tools"`

	LastErrors []ErrorInfo `json:"lastErrors,omitempty"`
}

// ToolStats aggregates calls of one tool.
type ToolStats struct {
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// ErrorInfo contains details about an error that occurred.
type ErrorInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// Collector manages metrics collection. All methods are safe for concurrent use,
// and a nil *Collector is a valid no-op collector.
type Collector struct {
	mu          sync.Mutex
	snap        Snapshot
	startTime   time.Time
	errorBuffer []ErrorInfo
	bufferSize  int
	sessions    map[string]struct{}
}

// NewCollector creates a collector keeping the last errorBufferSize errors.
func NewCollector(errorBufferSize int) *Collector {
	if errorBufferSize < 0 {
		errorBufferSize = 0
	}
	startTime := time.Now()
	return &Collector{
		snap: Snapshot{
			StartTime: startTime,
			GoVersion: runtime.Version(),
			Tools:     make(map[string]ToolStats),
		},
		startTime:   startTime,
		errorBuffer: make([]ErrorInfo, 0, errorBufferSize),
		bufferSize:  errorBufferSize,
		sessions:    make(map[string]struct{}),
	}
}

// Snapshot returns a copy of the current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Tools: map[string]ToolStats{}}
	}
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.snap
	out.Uptime = time.Since(c.startTime)
	out.NumGoroutines = runtime.NumGoroutine()
	out.MemoryAllocated = memStats.Alloc
	out.MemoryGCCount = memStats.NumGC
	out.Tools = make(map[string]ToolStats, len(c.snap.Tools))
	for k, v := range c.snap.Tools {
		out.Tools[k] = v
	}
	if len(c.errorBuffer) > 0 {
		out.LastErrors = append([]ErrorInfo(nil), c.errorBuffer...)
	}
	return out
}

// RecordRequest counts one answered request.
func (c *Collector) RecordRequest(success bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.TotalRequests++
	if !success {
		c.snap.FailedRequests++
	}
}

// RecordProtocolError counts an envelope that could not be answered.
func (c *Collector) RecordProtocolError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.ProtocolErrors++
}

// RecordToolCall updates the running average latency and failure count of a tool.
func (c *Collector) RecordToolCall(tool string, latency time.Duration, success bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.snap.Tools[tool]
	stats.Calls++
	if !success {
		stats.Failures++
	}
	ms := float64(latency) / float64(time.Millisecond)
	stats.AvgLatencyMs += (ms - stats.AvgLatencyMs) / float64(stats.Calls)
	c.snap.Tools[tool] = stats
}

// RecordSession tracks session open (active=true) and close.
func (c *Collector) RecordSession(sessionID string, active bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if active {
		if _, exists := c.sessions[sessionID]; !exists {
			c.sessions[sessionID] = struct{}{}
			c.snap.TotalSessions++
		}
	} else {
		delete(c.sessions, sessionID)
	}
	c.snap.ActiveSessions = len(c.sessions)
}

// RecordUndelivered counts a response dropped because its session was gone.
func (c *Collector) RecordUndelivered() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.UndeliveredResponses++
}

// RecordError adds an error to the ring buffer.
func (c *Collector) RecordError(component, message string) {
	if c == nil || c.bufferSize == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errorBuffer) >= c.bufferSize {
		c.errorBuffer = c.errorBuffer[1:]
	}
	c.errorBuffer = append(c.errorBuffer, ErrorInfo{
		Timestamp: time.Now(),
		Component: component,
		Message:   message,
	})
}
