package session

import (
	"fmt"

	"github.com/teslashibe/go-nav/internal/protocol"
)

// Message converts the event to its wire message
func (e Event) Message() (*protocol.Message, error) {
	var (
		msg *protocol.Message
		err error
	)

	switch e.Type {
	case EventState, EventCompleted:
		msg, err = protocol.NewStateMessage(e.State, e.Waypoint)
	case EventCommand:
		if e.Command == nil {
			return nil, fmt.Errorf("command event without command")
		}
		msg, err = protocol.NewCommandMessage(*e.Command)
	case EventError:
		msg, err = protocol.NewErrorMessage(e.Message)
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if err != nil {
		return nil, err
	}

	if !e.Timestamp.IsZero() {
		msg.Timestamp = e.Timestamp.UnixMilli()
	}
	return msg, nil
}
