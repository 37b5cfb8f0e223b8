// Package events provides an event system for pool and connection notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventWorkerExited is emitted when a worker leaves its loop after the queue closed
	EventWorkerExited EventType = "worker_exited"
	// EventWorkerFault is emitted when a panicking job terminates a worker
	EventWorkerFault EventType = "worker_fault"
	// EventPoolShutdown is emitted when the pool stops accepting jobs
	EventPoolShutdown EventType = "pool_shutdown"
	// EventRequestServed is emitted when a connection has been answered
	EventRequestServed EventType = "request_served"
)

// Event represents a pool or connection event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  *int      `json:"worker_id,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	ConnID  string `json:"conn_id,omitempty"`
	Path    string `json:"path,omitempty"`
	Status  string `json:"status,omitempty"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewWorkerExitedEvent creates a worker exit event
func NewWorkerExitedEvent(workerID int) Event {
	return Event{
		Type:      EventWorkerExited,
		Timestamp: time.Now(),
		WorkerID:  &workerID,
	}
}

// NewWorkerFaultEvent creates a worker fault event
func NewWorkerFaultEvent(workerID int, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventWorkerFault,
		Timestamp: time.Now(),
		WorkerID:  &workerID,
		Data: EventData{
			Error: errMsg,
		},
	}
}

// NewPoolShutdownEvent creates a pool shutdown event
func NewPoolShutdownEvent() Event {
	return Event{
		Type:      EventPoolShutdown,
		Timestamp: time.Now(),
	}
}

// NewRequestServedEvent creates a request served event
func NewRequestServedEvent(connID, path, status string, latency time.Duration) Event {
	return Event{
		Type:      EventRequestServed,
		Timestamp: time.Now(),
		Data: EventData{
			ConnID:  connID,
			Path:    path,
			Status:  status,
			Latency: latency.String(),
		},
	}
}
