package orchestrator

import "time"

// EventType classifies orchestrator lifecycle events.
type EventType int

const (
	EventTaskSkipped   EventType = iota // task already ready, nothing to do
	EventTaskStart                      // run action about to be invoked
	EventTaskEnd                        // run action returned
	EventReportWritten                  // junit record written
)

func (t EventType) String() string {
	switch t {
	case EventTaskSkipped:
		return "skipped"
	case EventTaskStart:
		return "start"
	case EventTaskEnd:
		return "end"
	case EventReportWritten:
		return "report"
	default:
		return "unknown"
	}
}

// Event carries data about an orchestrator lifecycle event.
type Event struct {
	Type     EventType
	Time     time.Time
	RunID    string
	Task     string
	Template string
	Depth    int           // 0 for the requested task, >0 for prerequisites
	Duration time.Duration // for EventTaskEnd
	Error    string        // for EventTaskEnd on failure
	Path     string        // for EventReportWritten
}

// EventHandler is a callback that receives orchestrator events.
type EventHandler func(Event)
