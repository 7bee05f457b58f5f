package notification

import (
	"github.com/felixgeelhaar/clitool-registry/domain/notification"
	"github.com/felixgeelhaar/clitool-registry/infrastructure/logging"
)

// MultiSender forwards every notification to each sender in order.
type MultiSender []notification.Sender

// Send implements notification.Sender.
func (m MultiSender) Send(eventType notification.EventType, toolID string) {
	for _, s := range m {
		if s != nil {
			s.Send(eventType, toolID)
		}
	}
}

// LoggingSender debug-logs each notification.
type LoggingSender struct{}

// Send implements notification.Sender.
func (LoggingSender) Send(eventType notification.EventType, toolID string) {
	e := logging.Debug().
		Add(logging.Component("notifications")).
		Add(logging.EventName(string(eventType)))
	if toolID != "" {
		e = e.Add(logging.ToolID(toolID))
	}
	e.Msg("registry notification")
}

var (
	_ notification.Sender = MultiSender(nil)
	_ notification.Sender = LoggingSender{}
)
