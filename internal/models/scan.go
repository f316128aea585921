package models

import "time"

// ScanRequest describes one discovery sweep over a port range.
type ScanRequest struct {
	PortStart int   `json:"port_start"`
	PortEnd   int   `json:"port_end"`
	Exclude   []int `json:"exclude,omitempty"` // registered app ports, never surfaced
}

// PortStatus holds the probe outcome for a single port.
type PortStatus struct {
	Port      int  `json:"port"`
	Responded bool `json:"responded"` // TCP connect succeeded
	Verified  bool `json:"verified"`  // framework signature matched
}

// ScanResult is a completed sweep with its probe outcomes.
type ScanResult struct {
	Request    ScanRequest  `json:"request"`
	Ports      []PortStatus `json:"ports"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	FromCache  bool         `json:"from_cache"`
}

// Scan event types broadcast to websocket subscribers.
const (
	ScanEventStarted   = "scan_started"
	ScanEventPortFound = "port_found"
	ScanEventCompleted = "scan_completed"
)

// ScanEvent is one lifecycle notification for a running sweep.
type ScanEvent struct {
	Type      string      `json:"type"`
	Port      *PortStatus `json:"port,omitempty"`
	Found     int         `json:"found,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
