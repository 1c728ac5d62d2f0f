package events

import "github.com/traumwelt-mud/traumwelt/pkg/gamedb"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // Raw text (universal fallback)
	EvSay                         // Speech
	EvEcho                        // Echo command output
	EvRoom                        // Room description
	EvMove                        // Object taken/dropped/moved
	EvConnect                     // Character bound by a connection
	EvDisconnect                  // Character released
	EvWho                         // WHO data
	EvSheet                       // Character sheet data
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvSay:
		return "say"
	case EvEcho:
		return "echo"
	case EvRoom:
		return "room"
	case EvMove:
		return "move"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvWho:
		return "who"
	case EvSheet:
		return "sheet"
	default:
		return "unknown"
	}
}

// Event is a structured game event that flows through the event bus.
// Telnet transports use Text; the WebSocket transport sends the full
// structured form.
type Event struct {
	Type      EventType
	Character gamedb.ObjRef  // Recipient character (Nothing for broadcast)
	Source    gamedb.ObjRef  // Who generated the event
	Room      gamedb.ObjRef  // Room context
	Text      string         // Pre-formatted text (telnet uses this)
	Data      map[string]any // Structured data for JSON clients
}
